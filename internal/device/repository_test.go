package device

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestDB creates a SQLite database with the devices table.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "devices.db"))
	require.NoError(t, err)
	db.SetMaxOpenConns(1)

	schema := `
		CREATE TABLE devices (
			id           TEXT PRIMARY KEY,
			identifier   TEXT NOT NULL UNIQUE,
			name         TEXT NOT NULL,
			manufacturer TEXT NOT NULL,
			model        TEXT NOT NULL,
			sw_version   TEXT NOT NULL DEFAULT '',
			via_device   TEXT NOT NULL DEFAULT '',
			config_entry TEXT NOT NULL DEFAULT '',
			created_at   TEXT NOT NULL,
			updated_at   TEXT NOT NULL
		) STRICT;
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		t.Fatalf("failed to create test schema: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})
	return db
}

// testRecord creates a record for testing.
func testRecord(id, identifier string) *Record {
	return &Record{
		ID:           id,
		Identifier:   identifier,
		Name:         "A1234 8A3F",
		Manufacturer: Manufacturer,
		Model:        Model,
		SWVersion:    "4.5.3",
		ConfigEntry:  "site-001",
	}
}

func TestSQLiteRepository_CreateAndGet(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	rec := testRecord("dev-1", "A1234_8A3F")
	require.NoError(t, repo.Create(ctx, rec))
	assert.False(t, rec.CreatedAt.IsZero())

	got, err := repo.GetByID(ctx, "dev-1")
	require.NoError(t, err)
	assert.Equal(t, "A1234_8A3F", got.Identifier)
	assert.Equal(t, Manufacturer, got.Manufacturer)
	assert.Equal(t, "site-001", got.ConfigEntry)

	got, err = repo.GetByIdentifier(ctx, "A1234_8A3F")
	require.NoError(t, err)
	assert.Equal(t, "dev-1", got.ID)
}

func TestSQLiteRepository_NotFound(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	_, err := repo.GetByID(ctx, "missing")
	assert.True(t, errors.Is(err, ErrDeviceNotFound))

	_, err = repo.GetByIdentifier(ctx, "missing")
	assert.ErrorIs(t, err, ErrDeviceNotFound)

	err = repo.Update(ctx, testRecord("missing", "X_0001"))
	assert.ErrorIs(t, err, ErrDeviceNotFound)
}

func TestSQLiteRepository_CreateConflicts(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, testRecord("dev-1", "A1234_8A3F")))

	err := repo.Create(ctx, testRecord("dev-2", "A1234_8A3F"))
	assert.ErrorIs(t, err, ErrDeviceExists, "duplicate identifier")

	err = repo.Create(ctx, testRecord("dev-1", "B5678_0001"))
	assert.ErrorIs(t, err, ErrDeviceExists, "duplicate id")
}

func TestSQLiteRepository_UpdateAndList(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	a := testRecord("dev-1", "A1234_8A3F")
	b := testRecord("dev-2", "B5678_0001")
	b.Name = "B5678 0001"
	require.NoError(t, repo.Create(ctx, b))
	require.NoError(t, repo.Create(ctx, a))

	a.SWVersion = "4.6.0"
	require.NoError(t, repo.Update(ctx, a))

	list, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "dev-1", list[0].ID)
	assert.Equal(t, "4.6.0", list[0].SWVersion)
}
