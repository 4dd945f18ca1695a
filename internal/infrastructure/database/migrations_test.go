package database

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func useMigrations(t *testing.T, fsys fstest.MapFS) {
	t.Helper()
	orig := migrationSource
	RegisterMigrations(fsys)
	t.Cleanup(func() { migrationSource = orig })
}

func testMigrations() fstest.MapFS {
	return fstest.MapFS{
		"0001_chargers.up.sql":   {Data: []byte("CREATE TABLE chargers (serial TEXT PRIMARY KEY);")},
		"0001_chargers.down.sql": {Data: []byte("DROP TABLE chargers;")},
		"0002_sessions.up.sql":   {Data: []byte("CREATE TABLE sessions (id INTEGER PRIMARY KEY);")},
		"README.md":              {Data: []byte("ignored")},
	}
}

func tableExists(t *testing.T, db *DB, name string) bool {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRowContext(testContext(t),
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", name).Scan(&n))
	return n == 1
}

func TestMigrate(t *testing.T) {
	useMigrations(t, testMigrations())
	db := openTestDB(t)

	require.NoError(t, db.Migrate(testContext(t)))
	assert.True(t, tableExists(t, db, "chargers"))
	assert.True(t, tableExists(t, db, "sessions"))

	applied, pending, err := db.GetMigrationStatus(testContext(t))
	require.NoError(t, err)
	require.Len(t, applied, 2)
	assert.Equal(t, 1, applied[0].Version)
	assert.Equal(t, 2, applied[1].Version)
	assert.False(t, applied[0].AppliedAt.IsZero())
	assert.Empty(t, pending)

	// Idempotent.
	require.NoError(t, db.Migrate(testContext(t)))
}

func TestMigrateDown(t *testing.T) {
	fsys := testMigrations()
	delete(fsys, "0002_sessions.up.sql")
	useMigrations(t, fsys)
	db := openTestDB(t)

	require.NoError(t, db.Migrate(testContext(t)))
	require.NoError(t, db.MigrateDown(testContext(t)))
	assert.False(t, tableExists(t, db, "chargers"))

	applied, pending, err := db.GetMigrationStatus(testContext(t))
	require.NoError(t, err)
	assert.Empty(t, applied)
	assert.Len(t, pending, 1)

	// Nothing left to roll back.
	assert.NoError(t, db.MigrateDown(testContext(t)))
}

func TestMigrateDown_NoDownSQL(t *testing.T) {
	useMigrations(t, testMigrations())
	db := openTestDB(t)

	require.NoError(t, db.Migrate(testContext(t)))
	err := db.MigrateDown(testContext(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no down SQL")
}

func TestMigrate_FailureKeepsEarlierSteps(t *testing.T) {
	useMigrations(t, fstest.MapFS{
		"0001_ok.up.sql":     {Data: []byte("CREATE TABLE ok (x INTEGER);")},
		"0002_broken.up.sql": {Data: []byte("CREATE TABLE broken (;")},
	})
	db := openTestDB(t)

	err := db.Migrate(testContext(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "0002")
	assert.True(t, tableExists(t, db, "ok"))

	applied, pending, err := db.GetMigrationStatus(testContext(t))
	require.NoError(t, err)
	assert.Len(t, applied, 1)
	assert.Len(t, pending, 1)
}

func TestMigrate_NoSource(t *testing.T) {
	orig := migrationSource
	migrationSource = nil
	t.Cleanup(func() { migrationSource = orig })

	db := openTestDB(t)
	assert.NoError(t, db.Migrate(testContext(t)))
}

func TestMigrate_DownWithoutUp(t *testing.T) {
	useMigrations(t, fstest.MapFS{
		"0001_orphan.down.sql": {Data: []byte("DROP TABLE x;")},
	})
	db := openTestDB(t)
	assert.Error(t, db.Migrate(testContext(t)))
}

func TestParseMigrationFilename(t *testing.T) {
	tests := []struct {
		file    string
		version int
		name    string
		up      bool
		ok      bool
	}{
		{"0001_devices.up.sql", 1, "devices", true, true},
		{"0002_entity_states.down.sql", 2, "entity_states", false, true},
		{"0003.up.sql", 0, "", false, false},
		{"abcd_x.up.sql", 0, "", false, false},
		{"0000_zero.up.sql", 0, "", false, false},
		{"0001_devices.sql", 0, "", false, false},
		{"notes.txt", 0, "", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			version, name, up, ok := parseMigrationFilename(tt.file)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.version, version)
			assert.Equal(t, tt.name, name)
			assert.Equal(t, tt.up, up)
		})
	}
}
