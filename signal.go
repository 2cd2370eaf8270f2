package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

// shutdownContext is canceled by the first SIGINT or SIGTERM so the daemon
// can flush its pending push and stop the repair loop. A second signal exits
// immediately.
func shutdownContext(parent context.Context, logger *slog.Logger) context.Context {
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigCh)

		select {
		case <-ctx.Done():
			return
		case sig := <-sigCh:
			logger.Info("stopping path sync", slog.String("signal", sig.String()))
			cancel()
		}

		select {
		case <-parent.Done():
		case sig := <-sigCh:
			logger.Warn("second signal, exiting now", slog.String("signal", sig.String()))
			os.Exit(1)
		}
	}()

	return ctx
}

// onSignal calls fn for every delivery of sig until ctx is done.
func onSignal(ctx context.Context, sig os.Signal, fn func(context.Context)) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, sig)
	defer signal.Stop(ch)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ch:
			fn(ctx)
		}
	}
}
