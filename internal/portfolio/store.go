// Package portfolio persists simulated investments in a local sqlite
// file and recomputes the aggregate portfolio view on every read.
package portfolio

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/arthur-zhuk/yieldsnap/internal/model"
)

// ErrNotFound is returned when an investment id is not in the store
var ErrNotFound = errors.New("investment not found")

// Store is the local investment store: one sqlite file guarded by a
// file lock for writes, each investment kept as a JSON payload column.
// There is no migration logic; older payloads decode with zero values.
type Store struct {
	db   *sql.DB
	lock *flock.Flock
}

// Open creates or opens the store at path, with a companion lock file
func Open(path, lockPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open portfolio sqlite: %w", err)
	}

	queries := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		`CREATE TABLE IF NOT EXISTS investments (
			investment_id TEXT PRIMARY KEY,
			protocol TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			payload BLOB NOT NULL
		);`,
		"CREATE INDEX IF NOT EXISTS idx_investments_updated ON investments(updated_at DESC);",
	}
	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init portfolio schema: %w", err)
		}
	}

	return &Store{db: db, lock: flock.New(lockPath)}, nil
}

// Close releases the underlying database handle
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Save upserts an investment under a file lock so concurrent processes
// sharing the store do not interleave writes.
func (s *Store) Save(inv model.Investment) error {
	if inv.ID == uuid.Nil {
		return fmt.Errorf("save investment: missing id")
	}
	unlock, err := s.acquireLock()
	if err != nil {
		return err
	}
	defer unlock()

	payload, err := json.Marshal(inv)
	if err != nil {
		return fmt.Errorf("marshal investment: %w", err)
	}

	createdUnix := inv.CreatedAt.UTC().Unix()
	updatedUnix := inv.UpdatedAt.UTC().Unix()
	if inv.CreatedAt.IsZero() {
		createdUnix = time.Now().UTC().Unix()
	}
	if inv.UpdatedAt.IsZero() {
		updatedUnix = time.Now().UTC().Unix()
	}

	_, err = s.db.Exec(`
		INSERT INTO investments (investment_id, protocol, created_at, updated_at, payload)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(investment_id) DO UPDATE SET
			protocol=excluded.protocol,
			updated_at=excluded.updated_at,
			payload=excluded.payload
	`, inv.ID.String(), inv.Protocol, createdUnix, updatedUnix, payload)
	if err != nil {
		return fmt.Errorf("save investment: %w", err)
	}
	return nil
}

// Get returns one investment by id
func (s *Store) Get(id uuid.UUID) (model.Investment, error) {
	var payload []byte
	err := s.db.QueryRow("SELECT payload FROM investments WHERE investment_id = ?", id.String()).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Investment{}, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return model.Investment{}, fmt.Errorf("read investment: %w", err)
	}

	var inv model.Investment
	if err := json.Unmarshal(payload, &inv); err != nil {
		return model.Investment{}, fmt.Errorf("decode investment payload: %w", err)
	}
	return inv, nil
}

// List returns all investments, most recently updated first
func (s *Store) List() ([]model.Investment, error) {
	rows, err := s.db.Query("SELECT payload FROM investments ORDER BY updated_at DESC, investment_id")
	if err != nil {
		return nil, fmt.Errorf("list investments: %w", err)
	}
	defer rows.Close()

	invs := make([]model.Investment, 0)
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan investment row: %w", err)
		}
		var inv model.Investment
		if err := json.Unmarshal(payload, &inv); err != nil {
			return nil, fmt.Errorf("decode investment row: %w", err)
		}
		invs = append(invs, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate investment rows: %w", err)
	}
	return invs, nil
}

// Delete removes an investment by id
func (s *Store) Delete(id uuid.UUID) error {
	unlock, err := s.acquireLock()
	if err != nil {
		return err
	}
	defer unlock()

	res, err := s.db.Exec("DELETE FROM investments WHERE investment_id = ?", id.String())
	if err != nil {
		return fmt.Errorf("delete investment: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

func (s *Store) acquireLock() (func(), error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	locked, err := s.lock.TryLockContext(ctx, 100*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("lock portfolio store: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("lock portfolio store: timeout acquiring lock")
	}
	return func() { _ = s.lock.Unlock() }, nil
}
