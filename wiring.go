package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ultratendency/sentry/internal/catalog"
	"github.com/ultratendency/sentry/internal/config"
	"github.com/ultratendency/sentry/internal/pathsync"
	"github.com/ultratendency/sentry/internal/pathtree"
	"github.com/ultratendency/sentry/internal/remote"
)

// httpShutdownTimeout bounds graceful shutdown of the HTTP listeners.
const httpShutdownTimeout = 10 * time.Second

// readHeaderTimeout guards the HTTP listeners against slow clients.
const readHeaderTimeout = 10 * time.Second

func newParser(cfg *config.Config, logger *slog.Logger) (*pathtree.Parser, error) {
	return pathtree.NewParser(cfg.Paths.Scheme, cfg.Paths.DefaultFS, logger)
}

func remoteOptions(cfg *config.Config, logger *slog.Logger) *remote.Options {
	rc := cfg.Remote

	return &remote.Options{
		Endpoints:         remote.Endpoints(rc.Addresses, rc.RPCPort),
		ConnectionTimeout: rc.ConnectionTimeoutDuration(),
		RPCRetryTotal:     rc.RPCRetryTotal,
		FullRetryTotal:    rc.FullRetryTotal,
		PoolMaxTotal:      rc.PoolMaxTotal,
		PoolMaxIdle:       rc.PoolMaxIdle,
		PoolMinIdle:       rc.PoolMinIdle,
		Compress:          rc.Compress,
		Logger:            logger,
	}
}

// remoteDialer returns the engine's DialFunc. Each call builds a fresh
// pooled client, so a dropped handle also drops its connections.
func remoteDialer(opts *remote.Options) pathsync.DialFunc {
	return func(ctx context.Context) (pathsync.RemoteClient, error) {
		c, err := remote.Dial(ctx, opts)
		if err != nil {
			return nil, err
		}

		return c, nil
	}
}

func openCatalog(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*catalog.Store, error) {
	if cfg.Catalog.DBPath == "" {
		return nil, errors.New("no catalog database configured: set [catalog] db_path, SENTRY_PATHS_CATALOG, or --catalog")
	}

	return catalog.Open(ctx, cfg.Catalog.DBPath, logger)
}

// serveHTTP runs an HTTP server on addr until ctx is canceled, then shuts
// it down gracefully.
func serveHTTP(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)

	go func() {
		logger.Info("http listener starting", slog.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("listening on %s: %w", addr, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), httpShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down %s: %w", addr, err)
	}

	logger.Info("http listener stopped", slog.String("addr", addr))

	return nil
}
