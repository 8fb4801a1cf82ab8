// Package utils provides internal helpers for handling user-supplied paths.
package utils

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/hyp3rd/ewrap"
)

// SecurePath resolves a user-supplied file path.
//
// Absolute paths are cleaned and returned as-is: the operator chose them.
// Relative paths are joined onto base and must stay inside it, both
// lexically (no ".." segments) and after resolving symlinks of the parts
// that already exist.
func SecurePath(base, path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", ewrap.New("path cannot be empty")
	}

	cleanPath := filepath.Clean(path)
	if filepath.IsAbs(cleanPath) {
		return cleanPath, nil
	}

	if cleanPath == ".." || strings.HasPrefix(cleanPath, ".."+string(filepath.Separator)) {
		return "", ewrap.New("invalid path contains directory traversal sequence").
			WithMetadata("path", path)
	}

	cleanBase, err := filepath.Abs(base)
	if err != nil {
		return "", ewrap.Wrap(err, "resolving base directory").WithMetadata("base", base)
	}

	fullPath := filepath.Join(cleanBase, cleanPath)

	resolvedBase, err := filepath.EvalSymlinks(cleanBase)
	if err != nil {
		resolvedBase = cleanBase
	}

	// only the existing part of the path can be a symlink
	existing := fullPath
	for existing != cleanBase {
		if _, statErr := os.Lstat(existing); statErr == nil {
			break
		}

		existing = filepath.Dir(existing)
	}

	resolved, err := filepath.EvalSymlinks(existing)
	if err == nil && !within(resolvedBase, resolved) {
		return "", ewrap.New("path resolves to location outside of base directory").
			WithMetadata("path", path).
			WithMetadata("base", base)
	}

	return fullPath, nil
}

func within(base, path string) bool {
	rel, err := filepath.Rel(base, path)
	if err != nil {
		return false
	}

	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
