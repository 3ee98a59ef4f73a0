// Package telemetry starts the process-wide metric export sinks that
// publish whatever the root package's MetricSet catalog has recorded into
// rcrowley/go-metrics.DefaultRegistry: this is the same registry
// EndpointCore.GetTelemetryInfo hands out sparse per-endpoint sets from,
// so anything an endpoint records shows up here without further wiring.
package telemetry

import (
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"runtime"
	"time"

	graphite "github.com/cyberdelia/go-metrics-graphite"
	mp "github.com/nbrownus/go-metrics-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	metrics "github.com/rcrowley/go-metrics"
	"github.com/sirupsen/logrus"

	"github.com/relaycore/tcpendpoint/config"
)

// Start reads the stats.* namespace out of c and launches whichever sink
// it names, plus the process-wide GC/mem-stats samplers every sink shares.
// configTest suppresses the network-facing goroutines so a --test-config
// style dry run still validates the settings without binding a port.
func Start(l *logrus.Logger, c *config.C, buildVersion string, configTest bool) error {
	mType := c.GetString("stats.type", "")
	if mType == "" || mType == "none" {
		return nil
	}

	interval := c.GetDuration("stats.interval", 0)
	if interval == 0 {
		return fmt.Errorf("stats.interval was an invalid duration: %s", c.GetString("stats.interval", ""))
	}

	switch mType {
	case "graphite":
		if err := startGraphite(l, interval, c, configTest); err != nil {
			return err
		}
	case "prometheus":
		if err := startPrometheus(l, interval, c, buildVersion, configTest); err != nil {
			return err
		}
	default:
		return fmt.Errorf("stats.type was not understood: %s", mType)
	}

	metrics.RegisterDebugGCStats(metrics.DefaultRegistry)
	metrics.RegisterRuntimeMemStats(metrics.DefaultRegistry)

	go metrics.CaptureDebugGCStats(metrics.DefaultRegistry, interval)
	go metrics.CaptureRuntimeMemStats(metrics.DefaultRegistry, interval)

	return nil
}

func startGraphite(l *logrus.Logger, i time.Duration, c *config.C, configTest bool) error {
	proto := c.GetString("stats.protocol", "tcp")
	host := c.GetString("stats.host", "")
	if host == "" {
		return errors.New("stats.host can not be empty")
	}

	prefix := c.GetString("stats.prefix", "tcpendpoint")
	addr, err := net.ResolveTCPAddr(proto, host)
	if err != nil {
		return fmt.Errorf("error while setting up graphite sink: %s", err)
	}

	l.WithFields(logrus.Fields{"interval": i, "prefix": prefix, "addr": addr}).Info("starting graphite stats sink")
	if !configTest {
		go graphite.Graphite(metrics.DefaultRegistry, i, prefix, addr)
	}
	return nil
}

func startPrometheus(l *logrus.Logger, i time.Duration, c *config.C, buildVersion string, configTest bool) error {
	namespace := c.GetString("stats.namespace", "")
	subsystem := c.GetString("stats.subsystem", "")

	listen := c.GetString("stats.listen", "")
	if listen == "" {
		return errors.New("stats.listen should not be empty")
	}

	path := c.GetString("stats.path", "/metrics")

	pr := prometheus.NewRegistry()
	pClient := mp.NewPrometheusProvider(metrics.DefaultRegistry, namespace, subsystem, pr, i)
	go pClient.UpdatePrometheusMetrics()

	g := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "info",
		Help:      "Version information for the tcpendpoint-echo binary",
		ConstLabels: prometheus.Labels{
			"version":   buildVersion,
			"goversion": runtime.Version(),
		},
	})
	pr.MustRegister(g)
	g.Set(1)

	if !configTest {
		go func() {
			l.WithFields(logrus.Fields{"listen": listen, "path": path}).Info("starting prometheus stats sink")
			mux := http.NewServeMux()
			mux.Handle(path, promhttp.HandlerFor(pr, promhttp.HandlerOpts{ErrorLog: l}))
			log.Fatal(http.ListenAndServe(listen, mux))
		}()
	}

	return nil
}
