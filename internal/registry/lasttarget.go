package registry

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ykondo/sshmux/internal/model"
)

// SetLastTarget overwrites the single-slot pointer to the most recently
// connected target. The target is stored as a whole column, so strings
// embedding :port round-trip exactly.
func (s *Store) SetLastTarget(ctx context.Context, target string, at time.Time) error {
	if at.IsZero() {
		at = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO last_target(id, target, set_at)
VALUES (1, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	target=excluded.target,
	set_at=excluded.set_at
`, target, ts(at))
	if err != nil {
		return fmt.Errorf("%w: set last target: %v", model.ErrRegistryIO, err)
	}
	return nil
}

// LastTarget returns the pointer slot when present, otherwise falls back
// to the connection row with the newest registered_at. ErrNotFound only
// when both sources are empty.
func (s *Store) LastTarget(ctx context.Context) (string, error) {
	var target string
	err := s.db.QueryRowContext(ctx, `SELECT target FROM last_target WHERE id = 1`).Scan(&target)
	if err == nil {
		return target, nil
	}
	if err != sql.ErrNoRows {
		return "", fmt.Errorf("%w: read last target: %v", model.ErrRegistryIO, err)
	}

	err = s.db.QueryRowContext(ctx, `
SELECT target FROM connections
ORDER BY registered_at DESC, connection_id ASC
LIMIT 1
`).Scan(&target)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("%w: scan for last target: %v", model.ErrRegistryIO, err)
	}
	return target, nil
}

// ClearLastTarget empties the pointer slot. Used when the pointed-at
// connection is closed explicitly.
func (s *Store) ClearLastTarget(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM last_target WHERE id = 1`)
	if err != nil {
		return fmt.Errorf("%w: clear last target: %v", model.ErrRegistryIO, err)
	}
	return nil
}
