// Command serial-transport-demo opens the reliable framed transport
// over a real serial device, runs the channel-0 sync handshake, sends a
// CLOSE on SIGINT/SIGTERM, and optionally mirrors transport health
// events to Redis.
// It exists to exercise pkg/transport, pkg/control, pkg/stream and
// pkg/diagnostics together the way a real peer would use them.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	charmlog "github.com/charmbracelet/log"
	flag "github.com/spf13/pflag"

	"github.com/librescoot/serialtransport/pkg/control"
	"github.com/librescoot/serialtransport/pkg/diagnostics"
	"github.com/librescoot/serialtransport/pkg/logx"
	"github.com/librescoot/serialtransport/pkg/stream"
	"github.com/librescoot/serialtransport/pkg/transport"
)

var (
	serialDevice = flag.String("serial", "/dev/ttymxc1", "serial device path")
	baudRate     = flag.Int("baud", 115200, "serial baud rate")
	maxBlockSize = flag.Int("max-block-size", 512, "locally advertised payload buffer size")
	serialBuffer = flag.Int("serial-buffer-size", 512, "locally advertised serial buffer size")

	redisAddr = flag.String("redis-addr", "", "redis address for diagnostics (disabled if empty)")
	redisPass = flag.String("redis-pass", "", "redis password")
	redisDB   = flag.Int("redis-db", 0, "redis database number")

	verbose = flag.BoolP("verbose", "v", false, "enable debug logging")
)

func main() {
	flag.Parse()

	level := charmlog.InfoLevel
	if *verbose {
		level = charmlog.DebugLevel
	}
	charmLogger := charmlog.NewWithOptions(os.Stderr, charmlog.Options{
		ReportTimestamp: true,
		Level:           level,
	})
	logger := logx.NewCharm(charmLogger)

	logger.Info("starting serial-transport-demo", "serial", *serialDevice, "baud", *baudRate)

	var notifier transport.Notifier
	if *redisAddr != "" {
		pub, err := diagnostics.New(*redisAddr, *redisPass, *redisDB, logger)
		if err != nil {
			logger.Error("diagnostics disabled: failed to connect to redis", "err", err)
		} else {
			defer pub.Close()
			notifier = pub
			logger.Info("diagnostics publishing to redis", "addr", *redisAddr)
		}
	}

	channel := stream.NewSerialChannel(stream.Config{
		PortName: *serialDevice,
		BaudRate: *baudRate,
	}, logger)
	if err := channel.Open(); err != nil {
		logger.Error("failed to open serial device", "err", err)
		os.Exit(1)
	}
	defer channel.Close()

	opts := []transport.Option{transport.WithLogger(logger)}
	if notifier != nil {
		opts = append(opts, transport.WithNotifier(notifier))
	}
	t := transport.New(channel, *maxBlockSize, opts...)

	ctrl := control.New(logger, control.Version{Major: 0, Minor: 2, Patch: 0}, *serialBuffer, *maxBlockSize)
	if err := t.Attach(control.Channel, ctrl); err != nil {
		logger.Error("failed to attach control service", "err", err)
		os.Exit(1)
	}
	t.SetReconnectHandler(func() error { return t.Reconnect(ctrl) })

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := t.Connect(ctx, ctrl); err != nil {
		cancel()
		logger.Error("sync handshake did not complete", "err", err)
		os.Exit(1)
	}
	cancel()
	logger.Info("transport synchronised", "max_block_size", t.MaxBlockSize())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down")
	closeCtx, closeCancel := context.WithTimeout(context.Background(), 2*time.Second)
	if err := ctrl.Close(closeCtx); err != nil {
		logger.Warn("graceful close did not complete cleanly", "err", err)
	}
	closeCancel()
	t.Shutdown()
}
