// Package device provides the device registry for TWC Director.
//
// Every wall charger gets one Record, keyed by its "<serial>_<ADDR>"
// identifier. Platforms call Registry.GetOrCreate for each entity they
// build; the first call creates the record and later calls return it
// unchanged, so three platforms discovering the same charger at once
// still produce a single row.
//
// # Architecture
//
//	┌──────────────────┐    ┌──────────────────┐
//	│     Registry     │───▶│    Repository    │───▶ SQLite (devices table)
//	│ • GetOrCreate    │    │ • SQL queries    │
//	│ • in-memory cache│    │ • conflict check │
//	└──────────────────┘    └──────────────────┘
//
// # Usage
//
//	repo := device.NewSQLiteRepository(db.DB)
//	registry := device.NewRegistry(repo, cfg.Site.ID)
//	registry.SetLogger(log)
//
//	if err := registry.RefreshCache(ctx); err != nil {
//	    return err
//	}
//
//	rec, err := registry.GetOrCreate(ctx, device.InfoFor(peripheral))
//
// # Thread Safety
//
// Registry methods are safe for concurrent use. A concurrent insert of the
// same identifier surfaces as ErrDeviceExists from the repository and is
// resolved by re-reading the stored record.
package device
