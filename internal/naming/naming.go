// Package naming picks file names that do not collide with existing
// entries in a folder.
package naming

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/driftbox/driftbox/internal/metadata"
	"github.com/driftbox/driftbox/internal/models"
	"github.com/driftbox/driftbox/internal/pathresolve"
	"github.com/driftbox/driftbox/internal/validation"
)

// MaxSuffix bounds the probe loop. A folder with this many copies of one
// name is treated as a failure rather than probed forever.
const MaxSuffix = 10000

// ErrExhausted is returned when every suffix up to MaxSuffix is taken.
var ErrExhausted = errors.New("no free name")

// Resolver probes the files collection of a folder for free names.
type Resolver struct {
	store metadata.Store
	paths *pathresolve.Resolver
}

// New creates a Resolver.
func New(store metadata.Store, paths *pathresolve.Resolver) *Resolver {
	return &Resolver{store: store, paths: paths}
}

// UniqueName returns proposed if no file of that name exists at p, and
// otherwise the first free "stem_N.ext" for N = 1, 2, ... It issues one
// existence probe per candidate, so N colliding names cost N+1 probes.
//
// Only files are probed. A folder and a file may share a name.
func (r *Resolver) UniqueName(ctx context.Context, p models.Path, proposed string) (string, error) {
	if err := validation.ValidateName(proposed); err != nil {
		return "", err
	}

	files := r.paths.Resolve(p).Files
	taken := func(name string) (bool, error) {
		ok, err := r.store.Exists(ctx, files.Doc(name))
		if err != nil {
			return false, fmt.Errorf("failed to check whether %q exists in %s: %w", name, p, err)
		}
		return ok, nil
	}

	exists, err := taken(proposed)
	if err != nil {
		return "", err
	}
	if !exists {
		return proposed, nil
	}

	stem, ext := SplitExt(proposed)
	for i := 1; i <= MaxSuffix; i++ {
		candidate := Candidate(stem, ext, i)
		exists, err := taken(candidate)
		if err != nil {
			return "", err
		}
		if !exists {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w for %q in %s", ErrExhausted, proposed, p)
}

// Candidate formats the n-th alternative for stem+ext.
func Candidate(stem, ext string, n int) string {
	return fmt.Sprintf("%s_%d%s", stem, n, ext)
}

// SplitExt splits name into stem and extension at the last dot. Leading
// dots belong to the stem, so ".bashrc" has no extension and
// "archive.tar.gz" splits into "archive.tar" and ".gz".
func SplitExt(name string) (stem, ext string) {
	dot := strings.LastIndex(name, ".")
	if dot <= 0 {
		return name, ""
	}
	if strings.TrimLeft(name[:dot], ".") == "" {
		return name, ""
	}
	return name[:dot], name[dot:]
}
