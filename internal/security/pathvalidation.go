// Package security contains filesystem path validation helpers.
package security

import (
	"fmt"
	"path/filepath"
	"strings"
)

// resolve returns path with symlinks in its deepest existing ancestor
// resolved, so a link cannot smuggle a not-yet-created path out of a
// directory tree.
func resolve(path string) string {
	if r, err := filepath.EvalSymlinks(path); err == nil {
		return r
	}
	dir := filepath.Dir(path)
	if dir == path {
		return path
	}
	return filepath.Join(resolve(dir), filepath.Base(path))
}

// ValidatePathWithinDirectory reports an error when filePath resolves
// outside safeDir. Neither path needs to exist yet.
func ValidatePathWithinDirectory(filePath, safeDir string) error {
	absPath, err := filepath.Abs(filepath.Clean(filePath))
	if err != nil {
		return fmt.Errorf("failed to resolve absolute path: %w", err)
	}
	absSafe, err := filepath.Abs(filepath.Clean(safeDir))
	if err != nil {
		return fmt.Errorf("failed to resolve safe directory path: %w", err)
	}

	rel, err := filepath.Rel(resolve(absSafe), resolve(absPath))
	if err != nil {
		return fmt.Errorf("path is outside safe directory: %w", err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return fmt.Errorf("path traversal detected: %s attempts to escape %s", filePath, safeDir)
	}
	return nil
}
