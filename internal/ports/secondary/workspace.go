package secondary

import (
	"context"
	"time"
)

// ProjectMarker is the content of a project's marker file.
type ProjectMarker struct {
	ProjectID string    `yaml:"project_id"`
	Name      string    `yaml:"name"`
	CreatedAt time.Time `yaml:"created_at"`
}

// WorkspaceAdapter defines the secondary port for locating projects on disk.
type WorkspaceAdapter interface {
	// FindProjectRoot walks up from dir to the nearest project root.
	// Returns "" when none is found.
	FindProjectRoot(ctx context.Context, dir string) (string, error)

	// ReadMarker reads the marker of a project root, or ErrNotFound.
	ReadMarker(ctx context.Context, root string) (*ProjectMarker, error)

	// WriteMarker creates the marker in root. It fails with ErrExists if one
	// is already present.
	WriteMarker(ctx context.Context, root string, marker *ProjectMarker) error

	// Canonicalize returns the absolute, symlink-resolved form of a path.
	Canonicalize(path string) (string, error)
}
