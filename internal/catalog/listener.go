package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Listener defaults.
const (
	DefaultPollInterval = time.Second
	DefaultBatchSize    = 100
)

// Sink receives catalog mutations in log order. *pathsync.Engine
// satisfies it. A returned error stops the listener.
type Sink interface {
	OnPathAdded(ctx context.Context, authzObj, location string) error
	OnPathRemoved(ctx context.Context, authzObj, location string) error
	OnAllPathsRemoved(ctx context.Context, authzObj string, children []string) error
	OnObjectRenamed(ctx context.Context, oldName, oldLocation, newName, newLocation string) error
}

// ListenerConfig holds the options for NewListener.
type ListenerConfig struct {
	Store        *Store
	Sink         Sink
	After        int64 // cursor: events with id <= After are skipped
	PollInterval time.Duration
	BatchSize    int
	Watch        bool // wake on database file writes as well as on the timer
	Logger       *slog.Logger
}

// Listener tails the notification log and dispatches each event to a Sink.
type Listener struct {
	store        *Store
	sink         Sink
	pollInterval time.Duration
	batchSize    int
	watch        bool
	logger       *slog.Logger

	cursor atomic.Int64
}

// NewListener creates a Listener positioned after cfg.After.
func NewListener(cfg *ListenerConfig) *Listener {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	poll := cfg.PollInterval
	if poll <= 0 {
		poll = DefaultPollInterval
	}

	batch := cfg.BatchSize
	if batch <= 0 {
		batch = DefaultBatchSize
	}

	l := &Listener{
		store:        cfg.Store,
		sink:         cfg.Sink,
		pollInterval: poll,
		batchSize:    batch,
		watch:        cfg.Watch,
		logger:       logger,
	}
	l.cursor.Store(cfg.After)

	return l
}

// Cursor returns the id of the last dispatched event.
func (l *Listener) Cursor() int64 {
	return l.cursor.Load()
}

// Run polls until ctx is canceled or the sink fails. It returns nil on
// cancellation.
func (l *Listener) Run(ctx context.Context) error {
	var events <-chan fsnotify.Event
	var watchErrs <-chan error

	if l.watch {
		w, err := fsnotify.NewWatcher()
		if err != nil {
			l.logger.Warn("catalog watcher unavailable, polling only", slog.String("error", err.Error()))
		} else {
			defer w.Close()

			if err := w.Add(filepath.Dir(l.store.Path())); err != nil {
				l.logger.Warn("cannot watch catalog directory, polling only", slog.String("error", err.Error()))
			} else {
				events, watchErrs = w.Events, w.Errors
			}
		}
	}

	ticker := time.NewTicker(l.pollInterval)
	defer ticker.Stop()

	l.logger.Info("catalog listener starting",
		slog.Int64("cursor", l.Cursor()),
		slog.Duration("poll_interval", l.pollInterval),
		slog.Bool("watch", events != nil),
	)

	if err := l.poll(ctx); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}

			if !l.isCatalogFile(ev) {
				continue
			}

		case err, ok := <-watchErrs:
			if !ok {
				watchErrs = nil
			} else {
				l.logger.Warn("catalog watcher error", slog.String("error", err.Error()))
			}

			continue

		case <-ticker.C:
		}

		if err := l.poll(ctx); err != nil {
			return err
		}
	}
}

// poll is Poll with cancellation mapped to nil.
func (l *Listener) poll(ctx context.Context) error {
	if _, err := l.Poll(ctx); err != nil && ctx.Err() == nil {
		return err
	}

	return nil
}

// isCatalogFile reports whether ev touched the database or its WAL.
func (l *Listener) isCatalogFile(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
		return false
	}

	return strings.HasPrefix(filepath.Base(ev.Name), filepath.Base(l.store.Path()))
}

// Poll dispatches every event after the cursor and returns how many it
// dispatched. Store read errors are logged and retried on the next poll;
// a sink error is returned.
func (l *Listener) Poll(ctx context.Context) (int, error) {
	dispatched := 0

	for {
		batch, err := l.store.EventsSince(ctx, l.Cursor(), l.batchSize)
		if err != nil {
			l.logger.Warn("reading catalog notifications", slog.String("error", err.Error()))
			return dispatched, nil
		}

		for i := range batch {
			ev := &batch[i]

			if err := l.dispatch(ctx, ev); err != nil {
				if errors.Is(err, ErrUnknownEvent) {
					l.logger.Warn("skipping catalog notification",
						slog.Int64("event_id", ev.ID),
						slog.String("type", string(ev.Type)),
					)
				} else {
					return dispatched, fmt.Errorf("catalog: dispatching event %d: %w", ev.ID, err)
				}
			}

			l.cursor.Store(ev.ID)
			dispatched++
		}

		if len(batch) < l.batchSize {
			return dispatched, nil
		}
	}
}

func (l *Listener) dispatch(ctx context.Context, ev *Event) error {
	switch ev.Type {
	case EventAddPath:
		return l.sink.OnPathAdded(ctx, ev.ObjectName, ev.Path)
	case EventRemovePath:
		return l.sink.OnPathRemoved(ctx, ev.ObjectName, ev.Path)
	case EventRemoveAllPaths:
		return l.sink.OnAllPathsRemoved(ctx, ev.ObjectName, ev.Children)
	case EventRenameObject:
		return l.sink.OnObjectRenamed(ctx, ev.ObjectName, ev.Path, ev.NewObjectName, ev.NewPath)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownEvent, ev.Type)
	}
}
