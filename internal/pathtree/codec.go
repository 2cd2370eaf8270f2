// Package pathtree converts filesystem locations reported by the metadata
// catalog into the segment lists stored in the authorization path tree.
//
// Only locations on the configured namespace scheme (hdfs by default) are
// tracked. Locations on any other filesystem are reported as
// ErrNotApplicable so callers can skip them without treating the mutation
// as a failure.
package pathtree

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
)

// DefaultScheme is the namespace scheme tracked when none is configured.
const DefaultScheme = "hdfs"

// Sentinel errors. Use errors.Is to classify a Parse failure.
var (
	// ErrMalformedPath reports input that cannot be turned into a path tree:
	// empty input, an unparseable URI, a missing scheme with no default, or a
	// missing/unrooted path component.
	ErrMalformedPath = errors.New("pathtree: malformed path")

	// ErrNotApplicable reports a well-formed location on a filesystem other
	// than the tracked scheme. It is not a failure; the location is ignored.
	ErrNotApplicable = errors.New("pathtree: location not on tracked filesystem")
)

// Parser resolves locations against a tracked scheme and a default
// filesystem URI. A Parser is immutable and safe for concurrent use.
type Parser struct {
	scheme        string
	defaultScheme string
	defaultFS     string
	logger        *slog.Logger
}

// NewParser creates a Parser. scheme is the tracked namespace scheme (empty
// means DefaultScheme). defaultFS is the filesystem URI whose scheme is
// substituted for scheme-less locations, e.g. "hdfs://namenode:8020"; it
// may be empty, in which case scheme-less input is malformed.
func NewParser(scheme, defaultFS string, logger *slog.Logger) (*Parser, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if scheme == "" {
		scheme = DefaultScheme
	}

	p := &Parser{
		scheme:    scheme,
		defaultFS: defaultFS,
		logger:    logger,
	}

	if defaultFS != "" {
		u, err := url.Parse(defaultFS)
		if err != nil {
			return nil, fmt.Errorf("pathtree: parsing default filesystem %q: %w", defaultFS, err)
		}

		p.defaultScheme = u.Scheme
	}

	return p, nil
}

// Scheme returns the tracked namespace scheme.
func (p *Parser) Scheme() string {
	return p.scheme
}

// Parse splits a location into its path segments with the scheme and
// authority stripped. Accepted forms:
//
//	hdfs://namenode:8020/warehouse/db/tbl
//	hdfs:///warehouse/db/tbl
//	/warehouse/db/tbl   (scheme taken from the default filesystem)
//
// Segments keep their order and are not deduplicated. Trailing empty
// segments ("/a/b/") are dropped; interior empty segments ("/a//b") are kept.
func (p *Parser) Parse(location string) ([]string, error) {
	p.logger.Debug("parsing path", slog.String("path", location))

	if location == "" {
		return nil, fmt.Errorf("%w: input is empty", ErrMalformedPath)
	}

	u, err := url.Parse(escapePath(location))
	if err != nil {
		return nil, fmt.Errorf("%w: incomprehensible path %q: %w", ErrMalformedPath, location, err)
	}

	scheme := u.Scheme
	if scheme == "" {
		scheme = p.defaultScheme
		if scheme == "" {
			return nil, fmt.Errorf("%w: scheme is missing and could not be constructed from default filesystem %q",
				ErrMalformedPath, p.defaultFS)
		}
	}

	if !strings.EqualFold(scheme, p.scheme) {
		p.logger.Debug("skipping location on untracked filesystem",
			slog.String("scheme", scheme),
			slog.String("expected", p.scheme),
		)

		return nil, fmt.Errorf("%w: %s:// (expected %s://)", ErrNotApplicable, scheme, p.scheme)
	}

	if u.Path == "" {
		return nil, fmt.Errorf("%w: path is empty, uri=%s", ErrMalformedPath, u)
	}

	if !strings.HasPrefix(u.Path, "/") || len(u.Path) < 2 {
		return nil, fmt.Errorf("%w: expected a non-empty rooted path, got %q (uri=%s)", ErrMalformedPath, u.Path, u)
	}

	segments := strings.Split(u.Path[1:], "/")
	for len(segments) > 0 && segments[len(segments)-1] == "" {
		segments = segments[:len(segments)-1]
	}

	if len(segments) == 0 {
		return nil, fmt.Errorf("%w: path has no segments, uri=%s", ErrMalformedPath, u)
	}

	return segments, nil
}

// Join renders segments back into a rooted path on the tracked scheme, e.g.
// ["a","b"] -> "hdfs:///a/b". parse-path prints it as the normalized form.
func (p *Parser) Join(segments []string) string {
	return p.scheme + ":///" + strings.Join(segments, "/")
}

// escapePath percent-encodes every byte of the path component that may not
// appear literally in a URI path, so locations containing spaces, '%', '?'
// or '#' parse as plain path text. The scheme and authority are copied
// verbatim; an IPv6 host keeps its brackets.
func escapePath(s string) string {
	var b strings.Builder

	b.Grow(len(s))

	start := authorityEnd(s)
	b.WriteString(s[:start])

	for i := start; i < len(s); i++ {
		c := s[i]
		if allowedInPath(c) {
			b.WriteByte(c)
			continue
		}

		fmt.Fprintf(&b, "%%%02X", c)
	}

	return b.String()
}

// authorityEnd returns the index where the path of s begins: just past
// "scheme://authority" or "//authority", and 0 when s has no authority.
func authorityEnd(s string) int {
	i := 0
	if j := strings.Index(s, "://"); j > 0 && !strings.ContainsAny(s[:j], "/?#") {
		i = j + len("://")
	} else if strings.HasPrefix(s, "//") {
		i = len("//")
	} else {
		return 0
	}

	if k := strings.IndexByte(s[i:], '/'); k >= 0 {
		return i + k
	}

	return len(s)
}

// allowedInPath reports whether c is an unreserved character or one of the
// path sub-delimiters permitted unescaped in an absolute URI path.
func allowedInPath(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}

	switch c {
	case '-', '_', '.', '!', '~', '*', '\'', '(', ')',
		':', '@', '&', '=', '+', '$', ',', '/', ';':
		return true
	}

	return false
}
