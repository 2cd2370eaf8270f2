package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ultratendency/sentry/internal/catalog"
	"github.com/ultratendency/sentry/internal/config"
	"github.com/ultratendency/sentry/internal/pathsync"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Follow the catalog and push path updates to the remote service",
		Long: `Follow the catalog's notification log and push every path mutation to the
remote authorization service. Mutations that arrive before the path cache is
built are queued and replayed in order. A repair loop pushes a full image
whenever the remote service's last-seen sequence number diverges.

Send SIGHUP (or run "resync --daemon") to force a full-image push.`,
		Args: cobra.NoArgs,
		RunE: runRun,
	}
}

func runRun(cmd *cobra.Command, _ []string) error {
	logger := buildLogger()
	ctx := shutdownContext(cmd.Context(), logger)

	if pidPath := resolvedCfg.Daemon.PIDFile; pidPath != "" {
		cleanup, err := writePIDFile(pidPath)
		if err != nil {
			return err
		}
		defer cleanup()
	}

	return runDaemon(ctx, resolvedCfg, logger)
}

// runDaemon wires catalog, engine, remote client, and metrics together and
// blocks until ctx is canceled or a component fails.
func runDaemon(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	parser, err := newParser(cfg, logger)
	if err != nil {
		return err
	}

	store, err := openCatalog(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	engine := pathsync.NewEngine(&pathsync.EngineConfig{
		Parser:       parser,
		Dial:         remoteDialer(remoteOptions(cfg, logger)),
		InitialDelay: cfg.Repair.InitialDelayDuration(),
		Period:       cfg.Repair.PeriodDuration(),
		Logger:       logger,
		Registerer:   reg,
	})

	// The listener starts at the current head so that mutations racing with
	// bootstrap are queued; the snapshot is read after this point.
	head, err := store.LastEventID(ctx)
	if err != nil {
		return err
	}

	listener := catalog.NewListener(&catalog.ListenerConfig{
		Store:        store,
		Sink:         engine,
		After:        head,
		PollInterval: cfg.Catalog.PollIntervalDuration(),
		BatchSize:    cfg.Catalog.BatchSize,
		Watch:        true,
		Logger:       logger,
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return listener.Run(gctx)
	})

	g.Go(func() error {
		if err := engine.Initialize(gctx, catalog.NewBootstrapper(store, parser, logger)); err != nil {
			return err
		}

		return engine.RunRepair(gctx)
	})

	g.Go(func() error {
		onSignal(gctx, syscall.SIGHUP, func(ctx context.Context) {
			forceResync(ctx, engine, logger)
		})

		return nil
	})

	if addr := cfg.Daemon.MetricsListen; addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

		g.Go(func() error {
			return serveHTTP(gctx, addr, mux, logger)
		})
	}

	logger.Info("path sync daemon started",
		slog.String("catalog", store.Path()),
		slog.String("scheme", parser.Scheme()),
		slog.Int64("catalog_head", head),
		slog.Any("remote", cfg.Remote.Addresses),
	)

	if err := g.Wait(); err != nil {
		return fmt.Errorf("path sync daemon: %w", err)
	}

	logger.Info("path sync daemon stopped", slog.Int64("last_sent_seq_num", engine.LastSentSeqNum()))

	return nil
}

// forceResync pushes a full image regardless of the remote's last-seen
// sequence number.
func forceResync(ctx context.Context, engine *pathsync.Engine, logger *slog.Logger) {
	logger.Info("SIGHUP received, forcing full-image resync")

	if err := engine.Resync(ctx, true); err != nil {
		logger.Warn("forced resync failed", slog.String("error", err.Error()))
	}
}
