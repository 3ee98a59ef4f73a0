package tcpendpoint

import (
	"fmt"
	"sync"

	metrics "github.com/rcrowley/go-metrics"
)

// MetricKey names one entry in the write-metric catalog. These mirror the
// counters the original posix endpoint tracks per read/write: the size of
// each write, the number of iovecs a write needed, the size of each read,
// and how much space a read was offered versus how much it used.
type MetricKey int

const (
	MetricTCPWriteSize MetricKey = iota
	MetricTCPWriteIovSize
	MetricTCPReadSize
	MetricTCPReadOffer
	MetricTCPReadOfferIovSize

	numMetrics
)

func (k MetricKey) String() string {
	switch k {
	case MetricTCPWriteSize:
		return "tcp_write_size"
	case MetricTCPWriteIovSize:
		return "tcp_write_iov_size"
	case MetricTCPReadSize:
		return "tcp_read_size"
	case MetricTCPReadOffer:
		return "tcp_read_offer"
	case MetricTCPReadOfferIovSize:
		return "tcp_read_offer_iov_size"
	default:
		return "unknown"
	}
}

// Catalog is the immutable list of metric keys and names GetTelemetryInfo
// exposes to callers that want to know what an endpoint records before any
// endpoint has recorded anything.
type Catalog struct {
	Keys []MetricKey
}

// CatalogV1 is the catalog every endpoint in this package reports.
var CatalogV1 = Catalog{Keys: []MetricKey{
	MetricTCPWriteSize,
	MetricTCPWriteIovSize,
	MetricTCPReadSize,
	MetricTCPReadOffer,
	MetricTCPReadOfferIovSize,
}}

// MetricSet is a sparse, per-endpoint set of histograms: entries are
// created lazily, the first time a key is recorded, rather than
// pre-registering all of Catalog against the global registry for every
// endpoint (most endpoints are short-lived; most keys go unused on any
// given one).
type MetricSet struct {
	mu       sync.Mutex
	registry metrics.Registry
	prefix   string
	hist     [numMetrics]metrics.Histogram
}

// NewMetricSet creates a sparse metric set rooted at prefix (typically the
// endpoint's peer address) within registry, following the same
// GetOrRegister-on-demand idiom nebula uses for its go-metrics counters in
// startStats.
func NewMetricSet(registry metrics.Registry, prefix string) *MetricSet {
	if registry == nil {
		registry = metrics.DefaultRegistry
	}
	return &MetricSet{registry: registry, prefix: prefix}
}

func (m *MetricSet) histogram(k MetricKey) metrics.Histogram {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.hist[k] == nil {
		name := fmt.Sprintf("%s.%s", m.prefix, k)
		m.hist[k] = metrics.GetOrRegisterHistogram(name, m.registry, metrics.NewUniformSample(512))
	}
	return m.hist[k]
}

// Record adds a sample for k. Safe for concurrent use, since the write and
// read paths never run on the same side concurrently but may record
// alongside error-queue processing.
func (m *MetricSet) Record(k MetricKey, v int64) {
	m.histogram(k).Update(v)
}

// TelemetryInfo is returned by EndpointCore.GetTelemetryInfo.
type TelemetryInfo struct {
	Catalog Catalog
	NewSet  func(prefix string) *MetricSet
}

// GetTelemetryInfo describes the metric catalog this package writes to and
// hands back a factory for per-endpoint sparse metric sets rooted in reg.
func GetTelemetryInfo(reg metrics.Registry) TelemetryInfo {
	return TelemetryInfo{
		Catalog: CatalogV1,
		NewSet: func(prefix string) *MetricSet {
			return NewMetricSet(reg, prefix)
		},
	}
}
