// Package update defines the sequence-numbered path update record exchanged
// between the catalog plugin, its local authorization path cache, and the
// remote authorization service.
package update

import (
	"fmt"
	"strings"
)

// AllPaths is the reserved segment that, as the single element of a removed
// path, means "every path of this authorized object".
const AllPaths = "__ALL_PATHS__"

// PathChange records the paths added to and removed from one authorized
// object. Each element of AddPaths/DelPaths is one path as an ordered list
// of segments. A nil list and an empty list are distinct on the wire.
type PathChange struct {
	AuthzObj string     `cbor:"1,keyasint"`
	AddPaths [][]string `cbor:"2,keyasint"`
	DelPaths [][]string `cbor:"3,keyasint"`
}

// AddPath appends one path to the additions.
func (c *PathChange) AddPath(segments []string) *PathChange {
	c.AddPaths = append(c.AddPaths, segments)
	return c
}

// RemovePath appends one path to the removals.
func (c *PathChange) RemovePath(segments []string) *PathChange {
	c.DelPaths = append(c.DelPaths, segments)
	return c
}

// RemoveAll appends the AllPaths sentinel to the removals.
func (c *PathChange) RemoveAll() *PathChange {
	return c.RemovePath([]string{AllPaths})
}

// IsRemoveAll reports whether a removed path is the AllPaths sentinel.
func IsRemoveAll(segments []string) bool {
	return len(segments) == 1 && segments[0] == AllPaths
}

// Update is one batch of path changes tagged with a sequence number. It is
// built by a single goroutine and treated as immutable once handed to the
// cache or the remote client.
type Update struct {
	SeqNum    int64         `cbor:"1,keyasint"`
	FullImage bool          `cbor:"2,keyasint"`
	Changes   []*PathChange `cbor:"3,keyasint"`
}

// New creates an empty update. Incremental updates pass fullImage=false.
func New(seqNum int64, fullImage bool) *Update {
	return &Update{
		SeqNum:    seqNum,
		FullImage: fullImage,
		Changes:   []*PathChange{},
	}
}

// NewPathChange appends a change entry for authzObj and returns it for the
// caller to populate. Entries keep insertion order.
func (u *Update) NewPathChange(authzObj string) *PathChange {
	c := &PathChange{
		AuthzObj: authzObj,
		AddPaths: [][]string{},
		DelPaths: [][]string{},
	}
	u.Changes = append(u.Changes, c)

	return c
}

// Len returns the number of path change entries.
func (u *Update) Len() int {
	return len(u.Changes)
}

// String renders a compact description for logs.
func (u *Update) String() string {
	var b strings.Builder

	fmt.Fprintf(&b, "update[seq=%d full=%t", u.SeqNum, u.FullImage)

	for _, c := range u.Changes {
		fmt.Fprintf(&b, " %s(+%d -%d)", c.AuthzObj, len(c.AddPaths), len(c.DelPaths))
	}

	b.WriteString("]")

	return b.String()
}
