// Package sandbox provides scratch workspaces and toolchain discovery for harness runs.
package sandbox

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// PathPlaceholder replaces the scratch directory in diagnostics.
const PathPlaceholder = "<workspace>"

// Workspace is a private scratch directory owned by one run.
type Workspace struct {
	dir string
}

// NewWorkspace creates a uniquely named directory under root (os.TempDir when empty).
func NewWorkspace(root, prefix string) (*Workspace, error) {
	if root != "" {
		if err := os.MkdirAll(root, 0o755); err != nil {
			return nil, fmt.Errorf("create workspace root: %w", err)
		}
	}
	dir, err := os.MkdirTemp(root, prefix)
	if err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	return &Workspace{dir: dir}, nil
}

// Dir returns the absolute workspace path.
func (w *Workspace) Dir() string {
	return w.dir
}

// Path joins name onto the workspace directory.
func (w *Workspace) Path(name string) string {
	return filepath.Join(w.dir, name)
}

// WriteFiles writes flat file names into the workspace.
func (w *Workspace) WriteFiles(files map[string][]byte) error {
	for name, data := range files {
		if name == "" || name != filepath.Base(name) || name == "." || name == ".." {
			return fmt.Errorf("invalid workspace file name %q", name)
		}
		if err := os.WriteFile(w.Path(name), data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
	}
	return nil
}

// Scrub replaces the workspace path in text with PathPlaceholder.
func (w *Workspace) Scrub(text string) string {
	return ScrubPath(text, w.dir)
}

// Cleanup removes the workspace and everything in it.
func (w *Workspace) Cleanup() error {
	if w == nil || w.dir == "" {
		return nil
	}
	return os.RemoveAll(w.dir)
}

// ScrubPath replaces dir (and its symlink-resolved form) in text.
func ScrubPath(text, dir string) string {
	if dir == "" || text == "" {
		return text
	}
	paths := []string{dir}
	if resolved, err := filepath.EvalSymlinks(dir); err == nil && resolved != dir {
		paths = append(paths, resolved)
	}
	for _, p := range paths {
		text = strings.ReplaceAll(text, p, PathPlaceholder)
	}
	return text
}
