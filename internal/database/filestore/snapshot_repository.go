package filestore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// SnapshotRepository keeps each snapshot in <dir>/<name>.json.
type SnapshotRepository struct {
	dir string
	mu  sync.RWMutex
}

func NewSnapshotRepository(dir string) *SnapshotRepository {
	return &SnapshotRepository{dir: dir}
}

func (r *SnapshotRepository) path(name string) string {
	return filepath.Join(r.dir, name+".json")
}

// Load returns nil when the file does not exist yet.
func (r *SnapshotRepository) Load(ctx context.Context, name string) ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	data, err := os.ReadFile(r.path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return data, nil
}

// Save writes through a temp file and renames it into place so a crash
// mid-write never leaves a truncated snapshot behind.
func (r *SnapshotRepository) Save(ctx context.Context, name string, blob []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.MkdirAll(r.dir, 0755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	tmp, err := os.CreateTemp(r.dir, name+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(blob); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}

	return os.Rename(tmpName, r.path(name))
}
