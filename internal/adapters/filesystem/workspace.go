// Package filesystem contains filesystem-based adapter implementations.
package filesystem

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/example/episteme/internal/ports/secondary"
)

// Project markers, checked in order at each directory level.
const (
	MarkerDir  = ".episteme"
	MarkerFile = "project.yaml"
	gitDir     = ".git"
)

// WorkspaceAdapter implements secondary.WorkspaceAdapter for filesystem operations.
type WorkspaceAdapter struct {
	// acceptGit makes a .git entry count as a project root when no marker is found.
	acceptGit bool
}

// NewWorkspaceAdapter creates a new filesystem workspace adapter.
func NewWorkspaceAdapter(acceptGit bool) *WorkspaceAdapter {
	return &WorkspaceAdapter{acceptGit: acceptGit}
}

var _ secondary.WorkspaceAdapter = (*WorkspaceAdapter)(nil)

// FindProjectRoot walks up from dir looking for a project marker, then
// (if enabled) a .git entry. The nearest marker wins over a nearer .git.
func (a *WorkspaceAdapter) FindProjectRoot(ctx context.Context, dir string) (string, error) {
	if dir == "" {
		return "", nil
	}
	start, err := a.Canonicalize(dir)
	if err != nil {
		return "", err
	}

	gitRoot := ""
	for current := start; ; {
		if exists(filepath.Join(current, MarkerDir, MarkerFile)) {
			return current, nil
		}
		if gitRoot == "" && a.acceptGit && exists(filepath.Join(current, gitDir)) {
			gitRoot = current
		}

		parent := filepath.Dir(current)
		if parent == current {
			break
		}
		current = parent
	}
	return gitRoot, nil
}

// ReadMarker reads root/.episteme/project.yaml.
func (a *WorkspaceAdapter) ReadMarker(ctx context.Context, root string) (*secondary.ProjectMarker, error) {
	data, err := os.ReadFile(filepath.Join(root, MarkerDir, MarkerFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("project marker in %s: %w", root, secondary.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read project marker: %w", err)
	}

	var marker secondary.ProjectMarker
	if err := yaml.Unmarshal(data, &marker); err != nil {
		return nil, fmt.Errorf("failed to parse project marker: %w", err)
	}
	return &marker, nil
}

// WriteMarker creates root/.episteme/project.yaml.
func (a *WorkspaceAdapter) WriteMarker(ctx context.Context, root string, marker *secondary.ProjectMarker) error {
	dir := filepath.Join(root, MarkerDir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create %s dir: %w", MarkerDir, err)
	}

	data, err := yaml.Marshal(marker)
	if err != nil {
		return fmt.Errorf("failed to marshal project marker: %w", err)
	}

	f, err := os.OpenFile(filepath.Join(dir, MarkerFile), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if errors.Is(err, os.ErrExist) {
		return fmt.Errorf("project marker in %s: %w", root, secondary.ErrExists)
	}
	if err != nil {
		return fmt.Errorf("failed to create project marker: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("failed to write project marker: %w", err)
	}
	return nil
}

// Canonicalize returns the absolute path with symlinks resolved, so the same
// project reached through different links maps to the same records.
func (a *WorkspaceAdapter) Canonicalize(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved, nil
	}
	return abs, nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
