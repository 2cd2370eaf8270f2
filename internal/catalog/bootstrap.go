package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/ultratendency/sentry/internal/authzpaths"
	"github.com/ultratendency/sentry/internal/pathsync"
	"github.com/ultratendency/sentry/internal/pathtree"
)

// Bootstrapper builds the engine's local path cache from a catalog
// snapshot.
type Bootstrapper struct {
	store  *Store
	parser *pathtree.Parser
	logger *slog.Logger
}

// NewBootstrapper creates a Bootstrapper.
func NewBootstrapper(store *Store, parser *pathtree.Parser, logger *slog.Logger) *Bootstrapper {
	if logger == nil {
		logger = slog.Default()
	}

	return &Bootstrapper{store: store, parser: parser, logger: logger}
}

// Bootstrap satisfies pathsync.Bootstrapper.
func (b *Bootstrapper) Bootstrap(ctx context.Context) (pathsync.LocalCache, error) {
	p, err := b.Build(ctx)
	if err != nil {
		return nil, err
	}

	return p, nil
}

// Build reads a snapshot and loads every tracked location into a new path
// tree. Locations on other filesystems are skipped; a malformed location
// fails the build.
func (b *Bootstrapper) Build(ctx context.Context) (*authzpaths.Paths, error) {
	start := time.Now()

	snap, err := b.store.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(snap.Objects))
	for name := range snap.Objects {
		names = append(names, name)
	}

	sort.Strings(names)

	lower := cases.Lower(language.Und)
	paths := authzpaths.New(b.logger)
	loaded, skipped := 0, 0

	for _, name := range names {
		obj := lower.String(name)

		for _, location := range snap.Objects[name] {
			segments, err := b.parser.Parse(location)
			if errors.Is(err, pathtree.ErrNotApplicable) {
				skipped++
				continue
			}

			if err != nil {
				return nil, fmt.Errorf("catalog: bootstrap: object %q: %w", name, err)
			}

			paths.AddPath(obj, segments)
			loaded++
		}
	}

	b.logger.Info("path cache loaded from catalog",
		slog.Int("objects", len(names)),
		slog.Int("paths", loaded),
		slog.Int("skipped", skipped),
		slog.Int64("as_of_event", snap.LastEventID),
		slog.Duration("duration", time.Since(start)),
	)

	return paths, nil
}
