package pathsync

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// RunRepair runs the divergence check on a fixed-delay timer until ctx is
// canceled: first after the initial delay, then Period after each tick
// finishes. Ticks never queue up behind a busy push lock; a tick that finds
// the lock held is skipped. Always returns nil.
func (e *Engine) RunRepair(ctx context.Context) error {
	e.logger.Info("path repair loop starting",
		slog.Duration("initial_delay", e.initialDelay),
		slog.Duration("period", e.period),
	)

	timer := time.NewTimer(e.initialDelay)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("path repair loop stopped")
			return nil
		case <-timer.C:
			e.repairTick(ctx)
			timer.Reset(e.period)
		}
	}
}

// repairTick is one advisory repair round. It reports whether the round
// ran (false when the push lock was busy).
func (e *Engine) repairTick(ctx context.Context) bool {
	if !e.pushMu.TryLock() {
		e.logger.Debug("skipping path repair: push in progress")
		return false
	}
	defer e.pushMu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			e.client = nil
			e.logger.Error("path repair panicked", slog.String("panic", fmt.Sprint(r)))
		}
	}()

	_ = e.repairLocked(ctx, false)

	return true
}

// Resync runs a repair round on demand, waiting for the push lock. With
// force set, the full image is pushed even when the sequence numbers agree.
func (e *Engine) Resync(ctx context.Context, force bool) error {
	e.pushMu.Lock()
	defer e.pushMu.Unlock()

	return e.repairLocked(ctx, force)
}

// repairLocked compares the remote service's last-seen sequence number with
// the last one sent and pushes a full image of the local cache on mismatch.
// The image is tagged with the last sent number; no new number is minted.
// Must hold pushMu.
func (e *Engine) repairLocked(ctx context.Context, force bool) error {
	ref := e.cache.Load()
	if ref == nil {
		e.logger.Warn(initializationFailureMsg)
		return fmt.Errorf("pathsync: repair: %s", StateUninitialized)
	}

	e.synced = true

	if err := e.syncRemoteLocked(ctx, ref, force); err != nil {
		// Retried on the next tick even if later incremental pushes succeed.
		e.repairPending = true
		return err
	}

	return nil
}

func (e *Engine) syncRemoteLocked(ctx context.Context, ref LocalCache, force bool) error {
	client, err := e.clientLocked(ctx)
	if err != nil {
		e.logger.Error("error talking to remote service", slog.String("error", err.Error()))
		return err
	}

	lastSeen, err := client.LastSeenSeqNum(ctx)
	if err != nil {
		e.client = nil
		e.logger.Error("error talking to remote service", slog.String("error", err.Error()))

		return fmt.Errorf("pathsync: reading remote sequence number: %w", err)
	}

	lastSent := e.lastSent.Load()
	if lastSeen == lastSent && !e.repairPending && !force {
		return nil
	}

	e.logger.Warn("remote service not in sync with catalog",
		slog.Int64("remote_last_seen", lastSeen),
		slog.Int64("last_sent", lastSent),
		slog.Bool("push_failed", e.repairPending),
		slog.Bool("forced", force),
	)

	e.cacheMu.RLock()
	img := ref.CreateFullImageUpdate(lastSent)
	e.cacheMu.RUnlock()

	if err := e.pushLocked(ctx, img); err != nil {
		return err
	}

	e.repairPending = false
	e.metrics.repairs.Inc()

	e.logger.Warn("synced remote service with full image",
		slog.Int64("seq_num", lastSent),
		slog.Int("objects", img.Len()),
	)

	return nil
}
