package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ykondo/sshmux/internal/model"
)

var ErrNotFound = errors.New("not found")

// Store is the durable connection registry. It is the source of truth for
// pool accounting and reverse target lookup; every invocation of the tool
// opens its own Store, so all cross-call coordination happens through the
// database (WAL + busy_timeout), never through process memory.
type Store struct {
	db *sql.DB
}

func Open(ctx context.Context, path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("%w: create registry dir: %v", model.ErrRegistryIO, err)
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open sqlite: %v", model.ErrRegistryIO, err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("%w: ping sqlite: %v", model.ErrRegistryIO, err)
	}
	if err := os.Chmod(path, 0o600); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: chmod registry: %v", model.ErrRegistryIO, err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) DB() *sql.DB {
	return s.db
}

// Register replaces any existing row for the connection id with a fresh
// timestamp. Re-registration never duplicates a row.
func (s *Store) Register(ctx context.Context, id model.ConnectionID, target string, at time.Time) error {
	if at.IsZero() {
		at = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO connections(connection_id, target, registered_at)
VALUES (?, ?, ?)
ON CONFLICT(connection_id) DO UPDATE SET
	target=excluded.target,
	registered_at=excluded.registered_at
`, string(id), target, ts(at))
	if err != nil {
		return fmt.Errorf("%w: register %s: %v", model.ErrRegistryIO, id, err)
	}
	return nil
}

// Unregister removes the row for the connection id. Removing an absent
// row is a no-op.
func (s *Store) Unregister(ctx context.Context, id model.ConnectionID) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM connections WHERE connection_id = ?`, string(id))
	if err != nil {
		return fmt.Errorf("%w: unregister %s: %v", model.ErrRegistryIO, id, err)
	}
	return nil
}

func (s *Store) TargetByID(ctx context.Context, id model.ConnectionID) (string, error) {
	var target string
	err := s.db.QueryRowContext(ctx, `SELECT target FROM connections WHERE connection_id = ?`, string(id)).Scan(&target)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("%w: lookup target %s: %v", model.ErrRegistryIO, id, err)
	}
	return target, nil
}

func (s *Store) RegisteredAt(ctx context.Context, id model.ConnectionID) (time.Time, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT registered_at FROM connections WHERE connection_id = ?`, string(id)).Scan(&raw)
	if err == sql.ErrNoRows {
		return time.Time{}, ErrNotFound
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: lookup registered_at %s: %v", model.ErrRegistryIO, id, err)
	}
	at, err := parseTS(raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: parse registered_at %s: %v", model.ErrRegistryIO, id, err)
	}
	return at, nil
}

// List returns every row ordered by registration time ascending, oldest
// first, with connection id as the deterministic tie-break.
func (s *Store) List(ctx context.Context) ([]model.RegistryRow, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT connection_id, target, registered_at
FROM connections
ORDER BY registered_at ASC, connection_id ASC
`)
	if err != nil {
		return nil, fmt.Errorf("%w: list connections: %v", model.ErrRegistryIO, err)
	}
	defer rows.Close()

	out := make([]model.RegistryRow, 0)
	for rows.Next() {
		var (
			id, target, raw string
		)
		if err := rows.Scan(&id, &target, &raw); err != nil {
			return nil, fmt.Errorf("%w: scan connection: %v", model.ErrRegistryIO, err)
		}
		at, err := parseTS(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: parse registered_at: %v", model.ErrRegistryIO, err)
		}
		out = append(out, model.RegistryRow{
			ConnectionID: model.ConnectionID(id),
			Target:       target,
			RegisteredAt: at,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iter connections: %v", model.ErrRegistryIO, err)
	}
	return out, nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM connections`).Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: count connections: %v", model.ErrRegistryIO, err)
	}
	return n, nil
}

// Oldest returns up to n rows with the smallest registered_at, the pool
// manager's eviction candidates.
func (s *Store) Oldest(ctx context.Context, n int) ([]model.RegistryRow, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	if n < len(all) {
		all = all[:n]
	}
	return all, nil
}

// PruneMissing removes every row whose connection id is not in keep.
// Sweeper support: rows without a live socket are orphans.
func (s *Store) PruneMissing(ctx context.Context, keep map[model.ConnectionID]bool) (int, error) {
	all, err := s.List(ctx)
	if err != nil {
		return 0, err
	}
	pruned := 0
	for _, row := range all {
		if keep[row.ConnectionID] {
			continue
		}
		if err := s.Unregister(ctx, row.ConnectionID); err != nil {
			return pruned, err
		}
		pruned++
	}
	return pruned, nil
}

// tsLayout is fixed width: RFC3339 with nine fractional digits always
// present, never trimmed. The registered_at column is compared as text
// in SQL, so the encoding has to sort in timestamp order (RFC3339Nano
// does not: it drops trailing zeros, making ".12Z" sort before ".1Z").
const tsLayout = "2006-01-02T15:04:05.000000000Z07:00"

func ts(t time.Time) string {
	return t.UTC().Format(tsLayout)
}

func parseTS(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, strings.TrimSpace(s))
}
