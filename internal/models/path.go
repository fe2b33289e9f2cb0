// Package models defines the folder tree data model shared by the engine, CLI and GUI.
package models

import (
	"fmt"
	"strings"

	"github.com/driftbox/driftbox/internal/validation"
)

// Path is an ordered sequence of folder names. The empty Path is the root.
//
// Paths are values: Child and Parent always return fresh slices, so a Path
// held by a task is never changed by later navigation.
type Path []string

// Root returns the empty path.
func Root() Path {
	return Path{}
}

// ParsePath parses a slash separated path ("a/b/c"). Leading, trailing and
// repeated slashes are ignored, so "", "/" and "a//b/" are all accepted.
func ParsePath(s string) (Path, error) {
	var p Path
	for _, seg := range strings.Split(s, "/") {
		if seg == "" {
			continue
		}
		if err := validation.ValidateName(seg); err != nil {
			return nil, fmt.Errorf("invalid path %q: %w", s, err)
		}
		p = append(p, seg)
	}
	if p == nil {
		return Root(), nil
	}
	return p, nil
}

// IsRoot reports whether p is the root path.
func (p Path) IsRoot() bool {
	return len(p) == 0
}

// Child returns p extended by name.
func (p Path) Child(name string) Path {
	out := make(Path, len(p), len(p)+1)
	copy(out, p)
	return append(out, name)
}

// Parent returns p without its last segment. The parent of root is root.
func (p Path) Parent() Path {
	if len(p) == 0 {
		return Root()
	}
	out := make(Path, len(p)-1)
	copy(out, p[:len(p)-1])
	return out
}

// Last returns the final segment, or "" for root.
func (p Path) Last() string {
	if len(p) == 0 {
		return ""
	}
	return p[len(p)-1]
}

// Equal reports whether p and other name the same folder.
func (p Path) Equal(other Path) bool {
	if len(p) != len(other) {
		return false
	}
	for i := range p {
		if p[i] != other[i] {
			return false
		}
	}
	return true
}

// HasPrefix reports whether p is prefix or lies beneath it.
func (p Path) HasPrefix(prefix Path) bool {
	if len(prefix) > len(p) {
		return false
	}
	return p[:len(prefix)].Equal(prefix)
}

// String renders the path as "a/b/c"; root renders as "/".
func (p Path) String() string {
	if len(p) == 0 {
		return "/"
	}
	return strings.Join(p, "/")
}

// Breadcrumb renders the path for display: "Home > a > b".
func (p Path) Breadcrumb() string {
	return strings.Join(append([]string{"Home"}, p...), " > ")
}
