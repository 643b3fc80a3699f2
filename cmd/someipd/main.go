// Command someipd is the SOME/IP client daemon.
//
// It routes SOME/IP packets between local applications and the network,
// searches for the required service instances and maintains eventgroup
// subscriptions on behalf of the applications.
//
// Usage:
//
//	someipd [flags]
//
// Flags:
//
//	-config string          Configuration file path
//	-log-level string       Log level: debug, info, warn, error (default "info")
//	-protocol-log string    File path for protocol event logging (CBOR format)
//	-metrics-listen string  Prometheus listen address (overrides the config file)
//	-drain-interval dur     Interval for flushing queued SD entries (default 100ms)
//	-trace                  Mirror protocol events into the log at debug level
//	-interactive            Start the interactive console
//
// Examples:
//
//	# Start with a config file and debug logging
//	someipd -config /etc/someipd/someipd.yaml -log-level debug
//
//	# Record a protocol trace and inspect it with someipd-log
//	someipd -config someipd.yaml -protocol-log /tmp/someipd.trace
//	someipd-log view /tmp/someipd.trace
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/flankersky/vector-ap-bsw-sub007/cmd/someipd/interactive"
	"github.com/flankersky/vector-ap-bsw-sub007/pkg/config"
	"github.com/flankersky/vector-ap-bsw-sub007/pkg/log"
)

var (
	configFile    = flag.String("config", "", "Configuration file path")
	logLevel      = flag.String("log-level", "info", "Log level: debug, info, warn, error")
	protocolLog   = flag.String("protocol-log", "", "File path for protocol event logging (CBOR format)")
	metricsListen = flag.String("metrics-listen", "", "Prometheus listen address (overrides the config file)")
	drainInterval = flag.Duration("drain-interval", 100*time.Millisecond, "Interval for flushing queued SD entries")
	traceToLog    = flag.Bool("trace", false, "Mirror protocol events into the log at debug level")
	interactiveOn = flag.Bool("interactive", false, "Start the interactive console")
)

func main() {
	flag.Parse()
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	level, err := parseLevel(*logLevel)
	if err != nil {
		flag.Usage()
		return err
	}

	cfg := config.Default()
	if *configFile != "" {
		if cfg, err = config.Load(*configFile); err != nil {
			return err
		}
	}
	if *metricsListen != "" {
		cfg.Metrics.Listen = *metricsListen
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var out io.Writer = os.Stderr
	var term *interactive.Terminal
	if *interactiveOn {
		if term, err = interactive.NewTerminal(); err != nil {
			return err
		}
		// Log output goes through readline so it does not clobber the prompt.
		out = term.Stdout()
	}
	logger := slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level}))

	opts := options{
		Logger:        logger,
		TraceToLog:    *traceToLog,
		DrainInterval: *drainInterval,
	}
	if *protocolLog != "" {
		fileLogger, err := log.NewFileLogger(*protocolLog)
		if err != nil {
			return fmt.Errorf("create protocol logger: %w", err)
		}
		defer func() {
			if err := fileLogger.Close(); err != nil {
				logger.Warn("close protocol log", "error", err)
			}
		}()
		logger.Info("protocol logging", "path", *protocolLog)
		opts.ProtocolLogger = fileLogger
	}

	d := newDaemon(cfg, opts)
	if term != nil {
		console := interactive.New(term, d.console())
		go console.Run(ctx, cancel)
	}

	logger.Info("someipd starting",
		"services", len(cfg.Services),
		"required", len(cfg.RequiredServices),
		"metrics", cfg.Metrics.Listen)
	if err := d.run(ctx); err != nil {
		return err
	}
	logger.Info("someipd stopped")
	return nil
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", s)
	}
}
