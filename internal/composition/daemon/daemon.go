// Package daemon assembles the chat engine, the client, the event hub and the
// RPC server into one runnable process.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"chatsdk/go-backend/internal/adapters/rpc"
	"chatsdk/go-backend/internal/chatsdk"
	"chatsdk/go-backend/internal/config"
	"chatsdk/go-backend/internal/engine/loopback"
	"chatsdk/go-backend/internal/notify"
	"chatsdk/go-backend/internal/platform/privacylog"
	"chatsdk/go-backend/internal/waku"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
)

const (
	componentName          = "daemon"
	lifecycleWaitTimeout   = time.Minute
	engineShutdownTimeout  = 5 * time.Second
	lifecycleOutcomeBuffer = 8
)

type Options struct {
	// LogOutput receives the JSON log stream. Nil selects stdout.
	LogOutput io.Writer
	// Bus carries mock transport traffic. Nil selects the process-wide bus.
	Bus *waku.Bus
	Now func() time.Time
}

// Daemon owns every long-lived component of the process.
type Daemon struct {
	cfg      config.Config
	logger   *slog.Logger
	registry *prometheus.Registry
	hub      *notify.Hub
	engine   *loopback.Engine
	client   *chatsdk.Client
	server   *rpc.Server
	stale    *StaleReporter
	outcomes chan chatsdk.Event
}

// Build wires the components described by cfg without starting anything.
func Build(cfg config.Config, opts Options) (*Daemon, error) {
	if opts.LogOutput == nil {
		opts.LogOutput = os.Stdout
	}
	logger := privacylog.New(opts.LogOutput, privacylog.ParseLevel(cfg.Log.Level))

	if err := ResolveEnginePassphrase(&cfg); err != nil {
		return nil, fmt.Errorf("resolve engine passphrase: %w", err)
	}
	engineConfig, err := cfg.EngineConfigJSON()
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	d := &Daemon{
		cfg:      cfg,
		logger:   logger.With("component", componentName),
		registry: registry,
		hub:      notify.NewHub(cfg.Events.Prefix, cfg.Events.Backlog),
		outcomes: make(chan chatsdk.Event, lifecycleOutcomeBuffer),
	}
	d.engine = loopback.New(loopback.Options{Bus: opts.Bus, Logger: logger, Now: opts.Now})
	d.client = chatsdk.NewClient(d.engine, chatsdk.SinkFunc(d.deliver), chatsdk.ClientOptions{
		Logger:  logger,
		Metrics: chatsdk.NewMetrics(registry),
		Now:     opts.Now,
	})
	d.server, err = rpc.NewServer(d.client, d.hub, rpc.Options{
		Addr:            cfg.RPC.Addr,
		Token:           cfg.RPC.Token,
		TokenFile:       cfg.RPC.TokenFile,
		RequireToken:    cfg.RequiresRPCToken(),
		AllowNullOrigin: cfg.RPC.AllowNullOrigin,
		RateLimit:       cfg.RPC.RateLimit,
		Streams:         cfg.RPC.Streams,
		EngineConfig:    engineConfig,
		Gatherer:        registry,
		Logger:          logger,
	})
	if err != nil {
		return nil, err
	}
	d.stale = NewStaleReporter(d.client, cfg.Diagnostics.StaleAfter, cfg.Diagnostics.StaleInterval, registry, logger)
	return d, nil
}

// Client exposes the chat client, mainly for embedding hosts and tests.
func (d *Daemon) Client() *chatsdk.Client { return d.client }

// Hub is the event hub the RPC stream reads from.
func (d *Daemon) Hub() *notify.Hub { return d.hub }

// Server is the RPC server.
func (d *Daemon) Server() *rpc.Server { return d.server }

// deliver is the client's sink. It runs on engine goroutines and must not block.
func (d *Daemon) deliver(ev chatsdk.Event) {
	d.hub.Deliver(ev)
	switch ev.(type) {
	case chatsdk.InitResult, chatsdk.StartResult:
		select {
		case d.outcomes <- ev:
		default:
		}
	}
}

// Run serves RPC and bootstraps the configured session until ctx is done,
// then tears the session and the engine down.
func (d *Daemon) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return d.server.Run(gctx) })
	g.Go(func() error { return d.stale.Run(gctx) })
	g.Go(func() error { return d.bootstrapSession(gctx) })

	err := g.Wait()
	if shutdownErr := d.shutdown(); err == nil {
		err = shutdownErr
	}
	return err
}

// bootstrapSession runs the auto-initialize flow. A failed init or start is
// logged and leaves the session to RPC callers rather than stopping the daemon.
func (d *Daemon) bootstrapSession(ctx context.Context) error {
	session := d.cfg.Session
	if !session.AutoInitialize {
		return nil
	}
	engineConfig, err := d.cfg.EngineConfigJSON()
	if err != nil {
		return err
	}
	if err := d.client.Initialize(engineConfig); err != nil {
		d.logger.Warn("auto initialize rejected", "operation", "initialize", "reason", chatsdk.Reason(err), "error", err)
		return nil
	}
	ok, err := d.awaitOutcome(ctx, chatsdk.EventInitResult)
	if err != nil || !ok {
		return err
	}
	if session.SubscribePush {
		if err := d.client.RegisterPushHandler(); err != nil {
			d.logger.Warn("push subscription rejected", "operation", "push", "reason", chatsdk.Reason(err), "error", err)
		}
	}
	if !session.AutoStart {
		return nil
	}
	if err := d.client.Start(); err != nil {
		d.logger.Warn("auto start rejected", "operation", "start", "reason", chatsdk.Reason(err), "error", err)
		return nil
	}
	_, err = d.awaitOutcome(ctx, chatsdk.EventStartResult)
	return err
}

// awaitOutcome waits for the next lifecycle result named name and reports
// whether it succeeded. Cancellation is not an error.
func (d *Daemon) awaitOutcome(ctx context.Context, name string) (bool, error) {
	timer := time.NewTimer(lifecycleWaitTimeout)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return false, nil
		case <-timer.C:
			d.logger.Warn("lifecycle result did not arrive", "operation", name, "timeout_ms", lifecycleWaitTimeout.Milliseconds())
			return false, nil
		case ev := <-d.outcomes:
			if ev.Name() != name {
				continue
			}
			outcome := lifecycleOutcome(ev)
			if !outcome.Success {
				d.logger.Warn("lifecycle step failed", "operation", name, "status", outcome.Status.String(), "detail", outcome.Message)
				return false, nil
			}
			d.logger.Info("lifecycle step completed", "operation", name)
			return true, nil
		}
	}
}

func lifecycleOutcome(ev chatsdk.Event) chatsdk.LifecycleOutcome {
	switch e := ev.(type) {
	case chatsdk.InitResult:
		return e.LifecycleOutcome
	case chatsdk.StartResult:
		return e.LifecycleOutcome
	case chatsdk.StopResult:
		return e.LifecycleOutcome
	default:
		return chatsdk.LifecycleOutcome{}
	}
}

func (d *Daemon) shutdown() error {
	if err := d.client.Destroy(); err != nil && !errors.Is(err, chatsdk.ErrNotInitialized) {
		d.logger.Warn("session destroy on shutdown failed", "operation", "destroy", "error", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), engineShutdownTimeout)
	defer cancel()
	err := d.engine.Shutdown(ctx)
	d.hub.Close()
	if err != nil {
		return fmt.Errorf("engine shutdown: %w", err)
	}
	d.logger.Info("daemon stopped")
	return nil
}
