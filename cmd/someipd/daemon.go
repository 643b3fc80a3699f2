package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/flankersky/vector-ap-bsw-sub007/cmd/someipd/interactive"
	"github.com/flankersky/vector-ap-bsw-sub007/pkg/application"
	"github.com/flankersky/vector-ap-bsw-sub007/pkg/config"
	"github.com/flankersky/vector-ap-bsw-sub007/pkg/log"
	"github.com/flankersky/vector-ap-bsw-sub007/pkg/reactor"
	"github.com/flankersky/vector-ap-bsw-sub007/pkg/router"
	"github.com/flankersky/vector-ap-bsw-sub007/pkg/sd"
	"github.com/flankersky/vector-ap-bsw-sub007/pkg/timer"
)

const shutdownTimeout = 2 * time.Second

// options are the daemon settings that do not come from the config file.
type options struct {
	Logger         *slog.Logger
	ProtocolLogger log.Logger

	// TraceToLog mirrors protocol events into Logger at Debug level.
	TraceToLog bool

	// DrainInterval is the period of the SD entry flush. Zero uses 100ms.
	DrainInterval time.Duration

	// Clock drives timers and the flush ticker. Nil uses the wall clock.
	Clock clock.Clock
}

// daemon wires the components together. Everything except the trigger and
// the registry is touched only from the loop goroutine.
type daemon struct {
	cfg    *config.Config
	logger *slog.Logger
	clock  clock.Clock
	drain  time.Duration

	registry *prometheus.Registry
	loop     *reactor.Loop
	timers   *timer.Manager
	catalog  *config.Catalog
	router   *router.Router
	trigger  *sd.MemoryTrigger
	sd       *sd.Client
	apps     *application.Manager
}

func newDaemon(cfg *config.Config, opts options) *daemon {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.New()
	}
	drain := opts.DrainInterval
	if drain <= 0 {
		drain = 100 * time.Millisecond
	}

	var tracers []log.Logger
	if opts.ProtocolLogger != nil {
		tracers = append(tracers, opts.ProtocolLogger)
	}
	if opts.TraceToLog {
		tracers = append(tracers, log.NewSlogAdapter(logger))
	}
	trace := log.NewMultiLogger(tracers...)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	d := &daemon{
		cfg:      cfg,
		logger:   logger,
		clock:    clk,
		drain:    drain,
		registry: reg,
		loop:     reactor.New(0),
		catalog:  config.NewCatalog(cfg.Services),
		trigger:  sd.NewMemoryTrigger(0),
	}
	d.timers = timer.NewManager(clk, d.loop.Post)
	d.router = router.New(router.NewRegistry(), router.Config{
		Events:         d.catalog,
		Logger:         logger.With("component", "router"),
		ProtocolLogger: trace,
		Metrics:        router.NewMetrics(reg),
	})
	d.sd = sd.NewClient(sd.Config{
		FindService:    cfg.ServiceDiscovery.FindService(),
		Eventgroup:     cfg.ServiceDiscovery.Eventgroup(),
		FindTTL:        cfg.ServiceDiscovery.FindTTL.D(),
		Router:         d.router,
		Transmitter:    sd.TriggerTransmitter{Trigger: d.trigger},
		Timers:         d.timers,
		Logger:         logger.With("component", "sd"),
		ProtocolLogger: trace,
		Metrics:        sd.NewMetrics(reg),
	})
	d.apps = application.NewManager(application.Config{
		Router:         d.router,
		SD:             d.sd,
		Catalog:        d.catalog,
		QueueSize:      cfg.Applications.QueueSize,
		Logger:         logger.With("component", "application"),
		ProtocolLogger: trace,
		Metrics:        application.NewMetrics(reg),
	})
	return d
}

// run starts the loop, requests the configured services and blocks until
// ctx is cancelled. Shutdown releases everything on the loop before the
// loop stops.
func (d *daemon) run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	// The loop outlives ctx so shutdown can still run on it; Close stops it.
	g.Go(func() error { return d.loop.Run(context.WithoutCancel(ctx)) })
	g.Go(func() error { return d.flush(ctx) })
	if d.cfg.Metrics.Listen != "" {
		srv := &http.Server{
			Addr:              d.cfg.Metrics.Listen,
			Handler:           d.metricsHandler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			d.logger.Info("metrics endpoint", "listen", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(sctx)
		})
	}
	g.Go(func() error {
		<-ctx.Done()
		d.shutdown()
		return nil
	})

	if err := d.loop.Do(ctx, d.start); err != nil && ctx.Err() == nil {
		return fmt.Errorf("start: %w", err)
	}
	return g.Wait()
}

// start runs on the loop.
func (d *daemon) start() {
	d.sd.OnNetworkUp()
	for _, key := range d.cfg.Required() {
		if err := d.sd.RequestService(key); err != nil {
			d.logger.Warn("required service skipped", "service", key, "error", err)
			continue
		}
		d.logger.Info("requesting service", "service", key)
	}
}

func (d *daemon) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err := d.loop.Do(ctx, func() {
		d.apps.Shutdown()
		d.sd.Shutdown()
		d.sd.OnNetworkDown()
		d.timers.StopAll()
	})
	if err != nil {
		d.logger.Warn("shutdown incomplete", "error", err)
	}
	d.flushOnce()
	d.loop.Close()
}

// flush drains the SD trigger periodically. Datagrams are handed to the
// network side, which is outside the daemon; here they are only logged.
func (d *daemon) flush(ctx context.Context) error {
	ticker := d.clock.Ticker(d.drain)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			d.flushOnce()
		}
	}
}

func (d *daemon) flushOnce() int {
	datagrams := d.trigger.Drain()
	for _, dg := range datagrams {
		dest := "multicast"
		if dg.Dest.IsValid() {
			dest = dg.Dest.String()
		}
		d.logger.Debug("sd datagram", "dest", dest, "entries", len(dg.Entries))
	}
	return len(datagrams)
}

func (d *daemon) metricsHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(d.registry, promhttp.HandlerOpts{}))
	return mux
}

// console exposes the components to the interactive console.
func (d *daemon) console() interactive.Daemon {
	return interactive.Daemon{
		Loop:    d.loop,
		Router:  d.router,
		SD:      d.sd,
		Apps:    d.apps,
		Trigger: d.trigger,
		Catalog: d.catalog,
	}
}
