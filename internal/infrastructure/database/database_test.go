package database

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(Config{
		Path:        filepath.Join(t.TempDir(), "twc.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // test cleanup
	return db
}

func TestOpen(t *testing.T) {
	t.Run("creates nested directory and file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "a", "b", "twc.db")
		db, err := Open(Config{Path: path, BusyTimeout: 1})
		require.NoError(t, err)
		defer db.Close() //nolint:errcheck // test cleanup

		_, err = db.ExecContext(testContext(t), "CREATE TABLE t (x INTEGER)")
		require.NoError(t, err)

		_, err = os.Stat(path)
		assert.NoError(t, err)
		assert.Equal(t, path, db.Path())
	})

	t.Run("wal mode", func(t *testing.T) {
		db := openTestDB(t)
		var mode string
		require.NoError(t, db.QueryRowContext(testContext(t), "PRAGMA journal_mode").Scan(&mode))
		assert.Equal(t, "wal", mode)
	})

	t.Run("foreign keys enabled", func(t *testing.T) {
		db := openTestDB(t)
		var on int
		require.NoError(t, db.QueryRowContext(testContext(t), "PRAGMA foreign_keys").Scan(&on))
		assert.Equal(t, 1, on)
	})
}

func TestConfigDSN(t *testing.T) {
	assert.Equal(t, "file:/x.db?_busy_timeout=3000&_foreign_keys=on",
		Config{Path: "/x.db", BusyTimeout: 3}.dsn())
	assert.Contains(t, Config{Path: "/x.db", WALMode: true}.dsn(), "_journal_mode=WAL")
}

func TestHealthCheck(t *testing.T) {
	db := openTestDB(t)
	assert.NoError(t, db.HealthCheck(testContext(t)))

	require.NoError(t, db.Close())
	assert.Error(t, db.HealthCheck(testContext(t)))
}

func TestCloseNil(t *testing.T) {
	var db *DB
	assert.NoError(t, db.Close())
}
