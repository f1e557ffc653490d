package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// SnapshotInfo describes a stored snapshot without its payload.
type SnapshotInfo struct {
	Name      string    `db:"name" json:"name"`
	Size      int       `db:"size" json:"size"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// SnapshotRepository persists store snapshots in the state_snapshots table.
type SnapshotRepository struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewSnapshotRepository creates a new snapshot repository
func NewSnapshotRepository(db *sqlx.DB) *SnapshotRepository {
	return &SnapshotRepository{db: db, now: time.Now}
}

// Save upserts the blob stored under name.
func (r *SnapshotRepository) Save(ctx context.Context, name string, blob []byte) error {
	query := `
		INSERT INTO state_snapshots (name, data, size, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			data = excluded.data,
			size = excluded.size,
			updated_at = excluded.updated_at
	`

	if _, err := r.db.ExecContext(ctx, query, name, blob, len(blob), r.now().UTC()); err != nil {
		return fmt.Errorf("failed to save snapshot %s: %w", name, err)
	}
	return nil
}

// Load returns the blob stored under name, or nil when there is none.
func (r *SnapshotRepository) Load(ctx context.Context, name string) ([]byte, error) {
	var data []byte
	err := r.db.GetContext(ctx, &data, `SELECT data FROM state_snapshots WHERE name = ?`, name)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load snapshot %s: %w", name, err)
	}
	return data, nil
}

// Info returns metadata about the snapshot stored under name.
func (r *SnapshotRepository) Info(ctx context.Context, name string) (*SnapshotInfo, error) {
	var info SnapshotInfo
	err := r.db.GetContext(ctx, &info, `SELECT name, size, updated_at FROM state_snapshots WHERE name = ?`, name)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get snapshot info %s: %w", name, err)
	}
	return &info, nil
}

// Delete removes the snapshot stored under name.
func (r *SnapshotRepository) Delete(ctx context.Context, name string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM state_snapshots WHERE name = ?`, name); err != nil {
		return fmt.Errorf("failed to delete snapshot %s: %w", name, err)
	}
	return nil
}
