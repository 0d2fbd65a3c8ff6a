package providers

import (
	"path"
	"strings"

	"github.com/gobwas/glob"

	"github.com/exploopio/sbomkit/pkg/errors"
)

// Ignore matches package-relative paths against glob patterns. The zero
// value matches nothing.
type Ignore struct {
	patterns []string
	globs    []glob.Glob
}

// NewIgnore compiles patterns. '/' separates path segments, so "*" stays
// inside one directory and "**" crosses them. A pattern without '/' is
// also tried against the base name.
func NewIgnore(patterns []string) (*Ignore, error) {
	ig := &Ignore{}
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, errors.E(errors.KindInvalidInput, "providers.NewIgnore", "bad ignore pattern "+p, err)
		}
		ig.patterns = append(ig.patterns, p)
		ig.globs = append(ig.globs, g)
	}
	return ig, nil
}

// Match reports whether relPath is ignored. A leading "./" is dropped.
func (ig *Ignore) Match(relPath string) bool {
	if ig == nil || len(ig.globs) == 0 {
		return false
	}
	rel := strings.TrimPrefix(relPath, "./")
	base := path.Base(rel)
	for i, g := range ig.globs {
		if g.Match(rel) {
			return true
		}
		if !strings.Contains(ig.patterns[i], "/") && g.Match(base) {
			return true
		}
	}
	return false
}

// Patterns returns the compiled patterns.
func (ig *Ignore) Patterns() []string {
	if ig == nil {
		return nil
	}
	return append([]string(nil), ig.patterns...)
}
