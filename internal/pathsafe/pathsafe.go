// Package pathsafe guards every filesystem write Kaya's workers perform
// (§6): a generated or caller-supplied path is resolved against its
// configured root and rejected if it would land outside it, the same
// Abs-then-Rel check the teacher's file scope walker uses to keep import
// path resolution inside a project root.
package pathsafe

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Resolve joins root and path (path may be relative or already absolute)
// and returns the resolved absolute path, or an error if it would escape
// root — e.g. path containing a "../" traversal, or an absolute path
// pointed elsewhere entirely.
func Resolve(root, path string) (string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolving root %q: %w", root, err)
	}

	joined := path
	if !filepath.IsAbs(path) {
		joined = filepath.Join(absRoot, path)
	}
	absPath, err := filepath.Abs(joined)
	if err != nil {
		return "", fmt.Errorf("resolving path %q: %w", path, err)
	}

	rel, err := filepath.Rel(absRoot, absPath)
	if err != nil {
		return "", fmt.Errorf("path %q is not relative to root %q: %w", path, root, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes root %q", path, root)
	}
	return absPath, nil
}
