// Package security checks user-supplied output paths before files are
// written to them.
package security

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrPathEscapes is returned when a path resolves outside every allowed
// directory.
var ErrPathEscapes = errors.New("path is outside the allowed directories")

// resolve returns the canonical absolute form of path. Symlinks are
// resolved on the longest existing prefix so a new file below a linked
// directory is judged by where it will really land.
func resolve(path string) (string, error) {
	abs, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("failed to resolve absolute path: %w", err)
	}
	var rest []string
	for cur := abs; ; {
		if resolved, err := filepath.EvalSymlinks(cur); err == nil {
			parts := append([]string{resolved}, rest...)
			return filepath.Join(parts...), nil
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return abs, nil
		}
		rest = append([]string{filepath.Base(cur)}, rest...)
		cur = parent
	}
}

// WithinDir reports an error unless path resolves to dir or somewhere below it.
func WithinDir(path, dir string) error {
	p, err := resolve(path)
	if err != nil {
		return err
	}
	d, err := resolve(dir)
	if err != nil {
		return err
	}
	rel, err := filepath.Rel(d, p)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrPathEscapes, path)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("%w: %s", ErrPathEscapes, path)
	}
	return nil
}

// ValidateOutputPath accepts path if it lies within any of dirs. With no
// dirs the working directory and the system temp directory are allowed.
func ValidateOutputPath(path string, dirs ...string) error {
	if path == "" {
		return errors.New("empty output path")
	}
	if len(dirs) == 0 {
		dirs = []string{os.TempDir()}
		if cwd, err := os.Getwd(); err == nil {
			dirs = append(dirs, cwd)
		}
	}
	for _, dir := range dirs {
		if err := WithinDir(path, dir); err == nil {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrPathEscapes, path)
}
