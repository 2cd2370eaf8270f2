// Package pathsync keeps a remote authorization service's view of the
// filesystem namespace consistent with the metadata catalog.
//
// Every catalog mutation becomes a sequence-numbered update that is applied
// to the local path cache and then pushed to the remote service. Updates that
// arrive before the local cache has been bootstrapped are queued and replayed
// in order once bootstrap succeeds. A background repair loop compares the
// remote service's last-seen sequence number with the last one sent and, on
// mismatch, pushes a full image of the local cache.
package pathsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ultratendency/sentry/internal/update"
)

// initialSeqNum seeds the sequence counter above 1 so the first real update
// is distinguishable from "never initialized".
const initialSeqNum = 5

// Repair loop defaults, used when EngineConfig leaves them zero.
const (
	DefaultRepairInitialDelay = 10 * time.Second
	DefaultRepairPeriod       = 1 * time.Second
)

const initializationFailureMsg = "path cache failed to initialize, cannot send path updates to the remote service; " +
	"review the bootstrap error, and if it was caused by a malformed path, fix the location in the catalog and restart"

// Sentinel errors.
var (
	// ErrInitialization is returned by every mutation signal once bootstrap
	// of the local cache has failed. It wraps the bootstrap error.
	ErrInitialization = errors.New("pathsync: path cache initialization failed")

	// ErrAlreadyInitialized is returned by a second call to Initialize.
	ErrAlreadyInitialized = errors.New("pathsync: engine already initialized")
)

// LocalCache is the authoritative in-process path tree. UpdatePartial must
// take lock for writing; the engine holds lock for reading around
// CreateFullImageUpdate.
type LocalCache interface {
	UpdatePartial(updates []*update.Update, lock *sync.RWMutex)
	CreateFullImageUpdate(seqNum int64) *update.Update
}

// RemoteClient pushes updates to the remote authorization service.
// Satisfied by *remote.Client.
type RemoteClient interface {
	PushUpdate(ctx context.Context, u *update.Update) error
	LastSeenSeqNum(ctx context.Context) (int64, error)
}

// DialFunc creates a connected RemoteClient. It is called whenever the
// engine has no usable client handle.
type DialFunc func(ctx context.Context) (RemoteClient, error)

// Bootstrapper builds the local cache from the catalog's current state.
type Bootstrapper interface {
	Bootstrap(ctx context.Context) (LocalCache, error)
}

// PathParser splits a catalog location into path segments. Satisfied by
// *pathtree.Parser.
type PathParser interface {
	Parse(location string) ([]string, error)
}

// EngineConfig holds the options for NewEngine.
type EngineConfig struct {
	Parser       PathParser
	Dial         DialFunc
	InitialDelay time.Duration // delay before the first repair tick
	Period       time.Duration // fixed delay between repair ticks
	Logger       *slog.Logger
	Registerer   prometheus.Registerer // optional; nil leaves metrics unregistered
}

// cacheRef lets the cache be published atomically once bootstrap succeeds.
type cacheRef struct {
	LocalCache
}

// Engine is the path update controller. There is one Engine per catalog
// plugin lifetime; its state only moves forward.
type Engine struct {
	parser       PathParser
	dial         DialFunc
	initialDelay time.Duration
	period       time.Duration
	logger       *slog.Logger
	metrics      *Metrics

	seqNum atomic.Int64

	// cacheMu is the lock handed to the cache for partial updates and held
	// for reading while a full image is built.
	cacheMu sync.RWMutex
	cache   atomic.Pointer[cacheRef]

	// pushMu serializes pushes and repair rounds. Everything below it up to
	// the queue fields is guarded by pushMu.
	pushMu        sync.Mutex
	client        RemoteClient
	synced        bool // a repair round has run against a bootstrapped cache
	repairPending bool // a push failed since the last successful repair
	lastSent      atomic.Int64

	// qmu guards the pending queue and the lifecycle fields.
	qmu           sync.Mutex
	pending       []*update.Update
	bootstrapping bool
	initErr       error
	state         atomic.Int32
}

// NewEngine creates an Engine in the UNINITIALIZED state.
func NewEngine(cfg *EngineConfig) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	initialDelay := cfg.InitialDelay
	if initialDelay <= 0 {
		initialDelay = DefaultRepairInitialDelay
	}

	period := cfg.Period
	if period <= 0 {
		period = DefaultRepairPeriod
	}

	e := &Engine{
		parser:       cfg.Parser,
		dial:         cfg.Dial,
		initialDelay: initialDelay,
		period:       period,
		logger:       logger,
		metrics:      NewMetrics(cfg.Registerer),
	}

	e.seqNum.Store(initialSeqNum)
	e.lastSent.Store(initialSeqNum)
	e.metrics.lastSent.Set(initialSeqNum)
	e.metrics.state.Set(float64(StateUninitialized))

	return e
}

// State returns the current lifecycle state.
func (e *Engine) State() State {
	return State(e.state.Load())
}

// LastSentSeqNum returns the sequence number of the most recent update the
// remote service accepted.
func (e *Engine) LastSentSeqNum() int64 {
	return e.lastSent.Load()
}

// PendingCount returns the number of updates waiting for bootstrap.
func (e *Engine) PendingCount() int {
	e.qmu.Lock()
	defer e.qmu.Unlock()

	return len(e.pending)
}

// setState must be called with qmu held.
func (e *Engine) setState(s State) {
	e.state.Store(int32(s))
	e.metrics.state.Set(float64(s))
}

// Initialize bootstraps the local cache and replays every update queued
// so far, in arrival order. On bootstrap failure the engine latches the
// error and every later mutation signal returns ErrInitialization.
func (e *Engine) Initialize(ctx context.Context, b Bootstrapper) error {
	e.qmu.Lock()
	if e.bootstrapping || e.State() != StateUninitialized {
		e.qmu.Unlock()
		return ErrAlreadyInitialized
	}

	e.bootstrapping = true
	e.qmu.Unlock()

	start := time.Now()

	cache, err := b.Bootstrap(ctx)
	if err == nil && cache == nil {
		err = errors.New("bootstrapper returned no cache")
	}

	if err != nil {
		e.qmu.Lock()
		e.initErr = err
		dropped := len(e.pending)
		e.pending = nil
		e.setState(StateFailed)
		e.qmu.Unlock()

		e.metrics.pending.Set(0)
		e.logger.Error("path cache bootstrap failed",
			slog.String("error", err.Error()),
			slog.Int("dropped_updates", dropped),
		)

		return fmt.Errorf("%w: %w", ErrInitialization, err)
	}

	e.cache.Store(&cacheRef{cache})

	e.qmu.Lock()
	e.setState(StateDraining)
	e.qmu.Unlock()

	replayed := e.drain(ctx)

	e.logger.Info("path cache initialized",
		slog.Duration("duration", time.Since(start)),
		slog.Int("replayed_updates", replayed),
	)

	return nil
}

// drain processes queued updates FIFO until the queue is empty, then moves
// to READY. Updates submitted while draining are appended to the queue and
// picked up by a later pass, so they never overtake queued ones.
func (e *Engine) drain(ctx context.Context) int {
	replayed := 0

	for {
		e.qmu.Lock()
		if len(e.pending) == 0 {
			e.setState(StateReady)
			e.qmu.Unlock()
			e.metrics.pending.Set(0)

			return replayed
		}

		batch := e.pending
		e.pending = nil
		e.qmu.Unlock()

		for _, u := range batch {
			e.processUpdate(ctx, u)
			replayed++
		}
	}
}

// submit routes an update according to the lifecycle state: queue it,
// process it, or fail fast after a bootstrap failure.
func (e *Engine) submit(ctx context.Context, u *update.Update) error {
	e.qmu.Lock()

	switch e.State() {
	case StateFailed:
		initErr := e.initErr
		e.qmu.Unlock()

		e.logger.Error("rejecting path update: engine failed to initialize",
			slog.Int64("seq_num", u.SeqNum),
			slog.String("error", initErr.Error()),
		)

		return fmt.Errorf("%w: %w", ErrInitialization, initErr)

	case StateUninitialized, StateDraining:
		e.pending = append(e.pending, u)
		queued := len(e.pending)
		e.qmu.Unlock()

		e.metrics.pending.Set(float64(queued))
		e.logger.Warn("path update queued, not sent: path cache not initialized yet",
			slog.Int64("seq_num", u.SeqNum),
			slog.Int("queued", queued),
		)

		return nil
	}

	e.qmu.Unlock()
	e.processUpdate(ctx, u)

	return nil
}

// processUpdate applies u locally, then pushes it to the remote service.
// Both steps always run; neither failure is returned to the caller.
func (e *Engine) processUpdate(ctx context.Context, u *update.Update) {
	e.applyLocal(u)
	e.notifyRemote(ctx, u)
}

func (e *Engine) applyLocal(u *update.Update) {
	ref := e.cache.Load()
	if ref == nil {
		e.logger.Error(initializationFailureMsg, slog.Int64("seq_num", u.SeqNum))
		return
	}

	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("applying path update to local cache failed",
				slog.Int64("seq_num", u.SeqNum),
				slog.String("panic", fmt.Sprint(r)),
			)
		}
	}()

	ref.UpdatePartial([]*update.Update{u}, &e.cacheMu)

	e.metrics.applyDuration.Observe(time.Since(start).Seconds())
	e.metrics.applyChanges.Observe(float64(u.Len()))
}

// notifyRemote pushes u while holding the push lock. The first push after
// bootstrap runs a repair round first so a cold start converges before any
// incremental update is sent.
func (e *Engine) notifyRemote(ctx context.Context, u *update.Update) {
	e.pushMu.Lock()
	defer e.pushMu.Unlock()

	if !e.synced {
		_ = e.repairLocked(ctx, false)
	}

	if err := e.pushLocked(ctx, u); err != nil {
		e.repairPending = true
		return
	}

	e.lastSent.Store(u.SeqNum)
	e.metrics.lastSent.Set(float64(u.SeqNum))

	e.logger.Debug("path update sent", slog.Int64("seq_num", u.SeqNum))
}

// pushLocked sends u to the remote service. Must hold pushMu.
func (e *Engine) pushLocked(ctx context.Context, u *update.Update) error {
	start := time.Now()
	defer func() { e.metrics.pushDuration.Observe(time.Since(start).Seconds()) }()

	client, err := e.clientLocked(ctx)
	if err == nil {
		err = client.PushUpdate(ctx, u)
	}

	if err != nil {
		e.client = nil
		e.metrics.pushFailures.Inc()
		e.logger.Error("could not send path update to remote service",
			slog.Int64("seq_num", u.SeqNum),
			slog.Bool("full_image", u.FullImage),
			slog.String("error", err.Error()),
		)

		return err
	}

	return nil
}

// clientLocked returns the cached remote client, dialing a new one when
// none is held. Must hold pushMu.
func (e *Engine) clientLocked(ctx context.Context) (RemoteClient, error) {
	if e.client != nil {
		return e.client, nil
	}

	if e.dial == nil {
		return nil, errors.New("pathsync: no remote dialer configured")
	}

	client, err := e.dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("pathsync: connecting to remote service: %w", err)
	}

	e.client = client

	return client, nil
}
