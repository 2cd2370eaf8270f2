// Package authzpaths holds the in-memory tree mapping filesystem paths to the
// authorized catalog objects that own them. The same structure backs the
// catalog-side cache and the remote replica.
//
// Paths is not safe for concurrent use on its own. UpdatePartial takes the
// lock handed to it; every other method must be called with that lock held
// (read lock for queries, write lock for ApplyFullImage).
package authzpaths

import (
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/ultratendency/sentry/internal/update"
)

// node is one path segment. objs lists the authorized objects whose
// location ends exactly at this node.
type node struct {
	children map[string]*node
	objs     map[string]struct{}
}

func newNode() *node {
	return &node{
		children: make(map[string]*node),
		objs:     make(map[string]struct{}),
	}
}

func (n *node) empty() bool {
	return len(n.children) == 0 && len(n.objs) == 0
}

// Paths is the authorization path tree plus an object -> paths index.
type Paths struct {
	root    *node
	byObj   map[string]map[string][]string // authz object -> path key -> segments
	lastSeq int64
	logger  *slog.Logger
}

// New creates an empty tree.
func New(logger *slog.Logger) *Paths {
	if logger == nil {
		logger = slog.Default()
	}

	return &Paths{
		root:   newNode(),
		byObj:  make(map[string]map[string][]string),
		logger: logger,
	}
}

// UpdatePartial applies updates in order while holding lock for writing.
// A full-image update replaces the whole tree; incremental updates add and
// remove paths. Applying the same update twice leaves the tree unchanged.
func (p *Paths) UpdatePartial(updates []*update.Update, lock *sync.RWMutex) {
	lock.Lock()
	defer lock.Unlock()

	for _, u := range updates {
		if u.FullImage {
			p.ApplyFullImage(u)
			continue
		}

		p.applyChanges(u.Changes)

		if u.SeqNum > p.lastSeq {
			p.lastSeq = u.SeqNum
		}

		p.logger.Debug("applied partial path update",
			slog.Int64("seq_num", u.SeqNum),
			slog.Int("changes", u.Len()),
		)
	}
}

// ApplyFullImage discards the current tree and rebuilds it from a
// full-image update. The caller must hold the write lock.
func (p *Paths) ApplyFullImage(u *update.Update) {
	p.root = newNode()
	p.byObj = make(map[string]map[string][]string)

	p.applyChanges(u.Changes)
	p.lastSeq = u.SeqNum

	p.logger.Info("applied full path image",
		slog.Int64("seq_num", u.SeqNum),
		slog.Int("objects", len(p.byObj)),
	)
}

func (p *Paths) applyChanges(changes []*update.PathChange) {
	for _, c := range changes {
		for _, segs := range c.AddPaths {
			p.AddPath(c.AuthzObj, segs)
		}

		for _, segs := range c.DelPaths {
			if update.IsRemoveAll(segs) {
				p.RemoveAllPaths(c.AuthzObj)
				continue
			}

			p.RemovePath(c.AuthzObj, segs)
		}
	}
}

// AddPath associates segments with authzObj.
func (p *Paths) AddPath(authzObj string, segments []string) {
	n := p.root
	for _, s := range segments {
		child, ok := n.children[s]
		if !ok {
			child = newNode()
			n.children[s] = child
		}

		n = child
	}

	n.objs[authzObj] = struct{}{}

	paths, ok := p.byObj[authzObj]
	if !ok {
		paths = make(map[string][]string)
		p.byObj[authzObj] = paths
	}

	paths[pathKey(segments)] = append([]string(nil), segments...)
}

// RemovePath drops the association between segments and authzObj and
// prunes tree nodes left without owners or children.
func (p *Paths) RemovePath(authzObj string, segments []string) {
	p.detach(p.root, authzObj, segments)

	paths, ok := p.byObj[authzObj]
	if !ok {
		return
	}

	delete(paths, pathKey(segments))

	if len(paths) == 0 {
		delete(p.byObj, authzObj)
	}
}

// RemoveAllPaths drops every path of authzObj.
func (p *Paths) RemoveAllPaths(authzObj string) {
	for _, segs := range p.byObj[authzObj] {
		p.detach(p.root, authzObj, segs)
	}

	delete(p.byObj, authzObj)
}

// detach removes authzObj from the node at segments below n and reports
// whether n became empty.
func (p *Paths) detach(n *node, authzObj string, segments []string) bool {
	if len(segments) == 0 {
		delete(n.objs, authzObj)
		return n.empty()
	}

	child, ok := n.children[segments[0]]
	if !ok {
		return false
	}

	if p.detach(child, authzObj, segments[1:]) {
		delete(n.children, segments[0])
	}

	return n != p.root && n.empty()
}

// CreateFullImageUpdate snapshots the tree as a full-image update tagged
// with seqNum. Objects and their paths are emitted in sorted order.
func (p *Paths) CreateFullImageUpdate(seqNum int64) *update.Update {
	u := update.New(seqNum, true)

	for _, obj := range p.Objects() {
		c := u.NewPathChange(obj)
		for _, segs := range p.PathsOf(obj) {
			c.AddPath(segs)
		}
	}

	return u
}

// Objects returns the authorized objects that own at least one path, sorted.
func (p *Paths) Objects() []string {
	objs := make([]string, 0, len(p.byObj))
	for obj := range p.byObj {
		objs = append(objs, obj)
	}

	sort.Strings(objs)

	return objs
}

// PathsOf returns the paths of authzObj sorted by their rendered form.
func (p *Paths) PathsOf(authzObj string) [][]string {
	paths := p.byObj[authzObj]

	keys := make([]string, 0, len(paths))
	for k := range paths {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	out := make([][]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, append([]string(nil), paths[k]...))
	}

	return out
}

// FindAuthzObjects returns the objects owning the deepest prefix of
// segments that has an owner, sorted. Nil when no prefix is owned.
func (p *Paths) FindAuthzObjects(segments []string) []string {
	var owners map[string]struct{}

	n := p.root
	for _, s := range segments {
		child, ok := n.children[s]
		if !ok {
			break
		}

		n = child
		if len(n.objs) > 0 {
			owners = n.objs
		}
	}

	if owners == nil {
		return nil
	}

	out := make([]string, 0, len(owners))
	for obj := range owners {
		out = append(out, obj)
	}

	sort.Strings(out)

	return out
}

// LastSeqNum returns the sequence number of the most recent update applied.
func (p *Paths) LastSeqNum() int64 {
	return p.lastSeq
}

func pathKey(segments []string) string {
	return strings.Join(segments, "/")
}
