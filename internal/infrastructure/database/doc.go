// Package database provides the SQLite store behind the device registry
// and the entity last-state store.
//
// This package manages:
//   - Connection setup with WAL mode and a busy timeout
//   - Numbered up/down schema migrations read from an fs.FS
//   - Health checks
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migrations are additive: new columns must be nullable or carry a default.
package database
