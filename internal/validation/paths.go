// Package validation provides input validation for names, keys and local paths.
package validation

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrInvalidName is wrapped by every name validation failure.
var ErrInvalidName = errors.New("invalid name")

// ValidateName validates a single folder or file name (not a full path).
//
// Returns an error if the name:
//   - Is empty or only whitespace
//   - Contains path separators (/ or \)
//   - Is "." or ".."
//   - Contains null bytes
//
// Names become document IDs and blob key segments, so anything that could
// change the shape of a key is rejected here.
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: name cannot be empty", ErrInvalidName)
	}

	if strings.ContainsRune(name, 0) {
		return fmt.Errorf("%w: name contains null byte: %q", ErrInvalidName, name)
	}

	if strings.ContainsRune(name, '/') || strings.ContainsRune(name, '\\') {
		return fmt.Errorf("%w: name cannot contain path separators: %s", ErrInvalidName, name)
	}

	if name == "." || name == ".." {
		return fmt.Errorf("%w: name cannot be %q", ErrInvalidName, name)
	}

	return nil
}

// ValidatePathInDirectory validates that a path, when resolved, stays within baseDir.
// The local blob backend uses it so a crafted key cannot escape its root.
//
// Both path and baseDir are cleaned and made absolute before comparison.
//
// Example:
//
//	ValidatePathInDirectory("../../etc/passwd", "/tmp/blobs") // Error: escapes base dir
//	ValidatePathInDirectory("users/a/files/x", "/tmp/blobs")  // OK: within base dir
func ValidatePathInDirectory(path string, baseDir string) error {
	if path == "" {
		return fmt.Errorf("path cannot be empty")
	}
	if baseDir == "" {
		return fmt.Errorf("base directory cannot be empty")
	}

	cleanPath := filepath.Clean(path)
	cleanBase := filepath.Clean(baseDir)

	var err error
	if !filepath.IsAbs(cleanBase) {
		cleanBase, err = filepath.Abs(cleanBase)
		if err != nil {
			return fmt.Errorf("failed to resolve base directory: %w", err)
		}
	}

	var resolvedPath string
	if filepath.IsAbs(cleanPath) {
		resolvedPath = cleanPath
	} else {
		resolvedPath = filepath.Join(cleanBase, cleanPath)
	}
	resolvedPath = filepath.Clean(resolvedPath)

	relPath, err := filepath.Rel(cleanBase, resolvedPath)
	if err != nil {
		return fmt.Errorf("failed to compute relative path: %w", err)
	}

	if strings.HasPrefix(relPath, ".."+string(filepath.Separator)) || relPath == ".." {
		return fmt.Errorf("path escapes base directory: %s (base: %s)", path, baseDir)
	}

	return nil
}
