package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Workspace is a private scratch directory for a single render request.
// Nothing outside the owning request may touch it, and Cleanup must run on
// every exit path so failed renders do not leak disk.
type Workspace struct {
	ID   string
	Root string
}

// Create makes a fresh uniquely named directory under baseDir.
func Create(baseDir string) (*Workspace, error) {
	id := fmt.Sprintf("%d_%s", time.Now().UTC().Unix(), uuid.New().String()[:8])
	root := filepath.Join(baseDir, id)

	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create workspace %s: %w", root, err)
	}

	return &Workspace{ID: id, Root: root}, nil
}

// Path returns the absolute path of a file inside the workspace.
func (w *Workspace) Path(name string) string {
	return filepath.Join(w.Root, name)
}

// Cleanup removes the workspace and everything in it.
func (w *Workspace) Cleanup() error {
	if err := os.RemoveAll(w.Root); err != nil {
		return fmt.Errorf("failed to remove workspace %s: %w", w.Root, err)
	}
	return nil
}
