package pathsync

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/ultratendency/sentry/internal/pathtree"
	"github.com/ultratendency/sentry/internal/update"
)

// wildcardPath is the location the catalog reports when every path of an
// object is being removed.
const wildcardPath = "*"

// The four mutation signals below are called synchronously by the catalog
// listener. They never return errors for dropped or undeliverable updates;
// the only error they return is ErrInitialization, once bootstrap has failed.

// OnPathAdded records that authzObj gained location.
func (e *Engine) OnPathAdded(ctx context.Context, authzObj, location string) error {
	segments, ok := e.parse("addPath", authzObj, location)
	if !ok {
		return nil
	}

	obj := normalizeName(authzObj)

	e.logger.Debug("path update",
		slog.String("op", "addPath"),
		slog.String("authz_obj", obj),
		slog.String("path", location),
	)

	u := e.newUpdate()
	u.NewPathChange(obj).AddPath(segments)

	return e.submit(ctx, u)
}

// OnPathRemoved records that authzObj lost location. The wildcard location
// "*" removes every path of the object.
func (e *Engine) OnPathRemoved(ctx context.Context, authzObj, location string) error {
	if location == wildcardPath {
		return e.OnAllPathsRemoved(ctx, authzObj, nil)
	}

	segments, ok := e.parse("removePath", authzObj, location)
	if !ok {
		return nil
	}

	obj := normalizeName(authzObj)

	e.logger.Debug("path update",
		slog.String("op", "removePath"),
		slog.String("authz_obj", obj),
		slog.String("path", location),
	)

	u := e.newUpdate()
	u.NewPathChange(obj).RemovePath(segments)

	return e.submit(ctx, u)
}

// OnAllPathsRemoved removes every path of authzObj and of each named child
// (authzObj + "." + child) in a single update.
func (e *Engine) OnAllPathsRemoved(ctx context.Context, authzObj string, children []string) error {
	obj := normalizeName(authzObj)

	e.logger.Debug("path update",
		slog.String("op", "removeAllPaths"),
		slog.String("authz_obj", obj),
		slog.Any("children", children),
	)

	u := e.newUpdate()
	for _, child := range children {
		u.NewPathChange(normalizeName(obj + "." + child)).RemoveAll()
	}

	u.NewPathChange(obj).RemoveAll()

	return e.submit(ctx, u)
}

// OnObjectRenamed moves an object from oldLocation to newLocation. A
// malformed location on either side abandons the whole rename; a location
// on an untracked filesystem just omits that half.
func (e *Engine) OnObjectRenamed(ctx context.Context, oldName, oldLocation, newName, newLocation string) error {
	oldObj := normalizeName(oldName)
	newObj := normalizeName(newName)

	u := e.newUpdate()

	e.logger.Debug("path update",
		slog.String("op", "renameAuthzObject"),
		slog.String("old_name", oldObj),
		slog.String("old_path", oldLocation),
		slog.String("new_name", newObj),
		slog.String("new_path", newLocation),
	)

	newSegments, err := e.parser.Parse(newLocation)
	switch {
	case err == nil:
		u.NewPathChange(newObj).AddPath(newSegments)
	case !errors.Is(err, pathtree.ErrNotApplicable):
		e.logRenameAbandoned(u, "newPath", oldName, oldLocation, newName, newLocation, err)
		return nil
	}

	oldSegments, err := e.parser.Parse(oldLocation)
	switch {
	case err == nil:
		u.NewPathChange(oldObj).RemovePath(oldSegments)
	case !errors.Is(err, pathtree.ErrNotApplicable):
		e.logRenameAbandoned(u, "oldPath", oldName, oldLocation, newName, newLocation, err)
		return nil
	}

	return e.submit(ctx, u)
}

func (e *Engine) logRenameAbandoned(u *update.Update, side, oldName, oldLocation, newName, newLocation string, err error) {
	e.logger.Error("unexpected path in renameAuthzObject, rename dropped",
		slog.String("while_parsing", side),
		slog.Int64("seq_num", u.SeqNum),
		slog.String("old_name", oldName),
		slog.String("old_path", oldLocation),
		slog.String("new_name", newName),
		slog.String("new_path", newLocation),
		slog.String("error", err.Error()),
	)
}

// parse resolves location, logging malformed input. ok is false when the
// mutation must be skipped.
func (e *Engine) parse(op, authzObj, location string) (segments []string, ok bool) {
	segments, err := e.parser.Parse(location)
	if err == nil {
		return segments, true
	}

	if !errors.Is(err, pathtree.ErrNotApplicable) {
		e.logger.Error("unexpected path in "+op+", update dropped",
			slog.String("authz_obj", authzObj),
			slog.String("path", location),
			slog.String("error", err.Error()),
		)
	}

	return nil, false
}

// newUpdate mints the next sequence number. Numbers are taken at creation
// so their order always matches arrival order.
func (e *Engine) newUpdate() *update.Update {
	seq := e.seqNum.Add(1)
	e.logger.Debug("creating path update", slog.Int64("seq_num", seq))

	return update.New(seq, false)
}

// normalizeName lower-cases an authorized object name. A Caser is not safe
// for concurrent use, so one is built per call.
func normalizeName(name string) string {
	return cases.Lower(language.Und).String(name)
}
