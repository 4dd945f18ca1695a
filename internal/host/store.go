package host

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// StateStore persists the last known value of restorable entities.
type StateStore interface {
	// Load returns ErrStateNotFound when nothing is stored for uniqueID.
	Load(ctx context.Context, uniqueID string) (string, error)
	Save(ctx context.Context, uniqueID, value string) error
}

// SQLiteStateStore implements StateStore over the entity_states table.
type SQLiteStateStore struct {
	db *sql.DB
}

// NewSQLiteStateStore creates a store on an open, migrated database.
func NewSQLiteStateStore(db *sql.DB) *SQLiteStateStore {
	return &SQLiteStateStore{db: db}
}

// Load implements StateStore.
func (s *SQLiteStateStore) Load(ctx context.Context, uniqueID string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		"SELECT value FROM entity_states WHERE unique_id = ?", uniqueID).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrStateNotFound
		}
		return "", fmt.Errorf("loading state for %s: %w", uniqueID, err)
	}
	return value, nil
}

// Save implements StateStore.
func (s *SQLiteStateStore) Save(ctx context.Context, uniqueID, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO entity_states (unique_id, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(unique_id) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at`,
		uniqueID, value, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("saving state for %s: %w", uniqueID, err)
	}
	return nil
}
