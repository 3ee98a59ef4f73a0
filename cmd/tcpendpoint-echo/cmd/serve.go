package cmd

import (
	"context"
	"errors"
	"net/netip"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sys/unix"

	"github.com/relaycore/tcpendpoint"
	"github.com/relaycore/tcpendpoint/buffer"
	"github.com/relaycore/tcpendpoint/config"
	"github.com/relaycore/tcpendpoint/netpoll"
	"github.com/relaycore/tcpendpoint/posix"
	"github.com/relaycore/tcpendpoint/telemetry"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Short:   "Accept connections and echo back everything read",
	PreRunE: bindServeFlags,
	RunE:    runServe,
}

func init() {
	serveCmd.Flags().String("listen", "127.0.0.1:9000", "address to listen on")
	serveCmd.Flags().Bool("zerocopy", false, "negotiate SO_ZEROCOPY for large writes")
	serveCmd.Flags().Int64("quota-bytes", 0, "process-wide read memory quota; 0 disables the bound")
}

func bindServeFlags(cmd *cobra.Command, _ []string) error {
	return viper.BindPFlags(cmd.Flags())
}

func runServe(cmd *cobra.Command, _ []string) error {
	var c *config.C
	if path := viper.GetString("config"); path != "" {
		c = config.NewC(logger)
		if err := c.Load(path); err != nil {
			return err
		}
		if err := config.ConfigureLogger(logger, c); err != nil {
			return err
		}
	}

	settings := tcpendpoint.Options{Logger: logger}
	if c != nil {
		settings = config.NewEndpointSettingsFromConfig(logger, c).Options
		if err := telemetry.Start(logger, c, Version, false); err != nil {
			return err
		}
	}
	if viper.GetBool("zerocopy") {
		settings.ZeroCopyEnabled = true
	}
	if q := viper.GetInt64("quota-bytes"); q > 0 {
		settings.Quota = tcpendpoint.NewBoundedQuota(q)
	}

	laddr, err := netip.ParseAddrPort(viper.GetString("listen"))
	if err != nil {
		return err
	}

	ln, err := posix.Listen(laddr, 128)
	if err != nil {
		return err
	}
	defer ln.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reactor, err := netpoll.New(ctx)
	if err != nil {
		return err
	}

	logger.WithField("addr", laddr).Info("tcpendpoint-echo listening")
	go acceptLoop(ctx, ln, reactor, settings)

	err = reactor.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func acceptLoop(ctx context.Context, ln *posix.Listener, reactor *netpoll.Reactor, settings tcpendpoint.Options) {
	fds := []unix.PollFd{{Fd: int32(ln.FD()), Events: unix.POLLIN}}
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		n, err := unix.Poll(fds, 250)
		if err == unix.EINTR {
			continue
		}
		if err != nil || n == 0 {
			continue
		}

		for {
			sock, err := ln.Accept()
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				break
			}
			if err != nil {
				logger.WithError(err).Warn("accept failed")
				break
			}
			serveConn(reactor, sock, settings)
		}
	}
}

func serveConn(reactor *netpoll.Reactor, sock *posix.Socket, settings tcpendpoint.Options) {
	handle, err := reactor.Register(sock)
	if err != nil {
		logger.WithError(err).Warn("failed to register connection")
		sock.Close()
		return
	}

	e := tcpendpoint.New(handle, settings)
	peer, _ := e.PeerAddress()
	log := logger.WithField("peer", peer)
	log.Info("connection accepted")

	buf := buffer.New()
	var readNext func()
	var writeBack func()

	readNext = func() {
		if e.Read(buf, func(status *tcpendpoint.Status) {
			if !status.OK() {
				log.WithError(status).Info("connection closed")
				return
			}
			writeBack()
		}, tcpendpoint.ReadHints{}) {
			writeBack()
		}
	}

	writeBack = func() {
		if buf.Len() == 0 {
			readNext()
			return
		}
		if e.Write(buf, func(status *tcpendpoint.Status) {
			if !status.OK() {
				log.WithError(status).Info("write failed")
				return
			}
			readNext()
		}, tcpendpoint.WriteArgs{}) {
			readNext()
		}
	}

	readNext()
}
