package device

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Logger defines the logging interface used by the Registry.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry provides idempotent device registration with caching.
// It wraps a Repository and keeps every record in memory, indexed by ID
// and by identifier.
//
// All public methods are thread-safe.
type Registry struct {
	repo        Repository
	configEntry string

	cacheMu      sync.RWMutex
	byID         map[string]*Record
	byIdentifier map[string]*Record

	logger Logger
}

// NewRegistry creates a new device registry. configEntry is stamped on
// every record this registry creates (the site ID).
func NewRegistry(repo Repository, configEntry string) *Registry {
	return &Registry{
		repo:         repo,
		configEntry:  configEntry,
		byID:         make(map[string]*Record),
		byIdentifier: make(map[string]*Record),
		logger:       noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	r.logger = logger
}

// RefreshCache reloads all records from the repository.
// This should be called on application startup.
func (r *Registry) RefreshCache(ctx context.Context) error {
	records, err := r.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading devices: %w", err)
	}

	r.cacheMu.Lock()
	r.byID = make(map[string]*Record, len(records))
	r.byIdentifier = make(map[string]*Record, len(records))
	for i := range records {
		r.storeLocked(records[i].Clone())
	}
	r.cacheMu.Unlock()

	r.logger.Info("device cache refreshed", "count", len(records))
	return nil
}

func (r *Registry) storeLocked(rec *Record) {
	r.byID[rec.ID] = rec
	r.byIdentifier[rec.Identifier] = rec
}

func (r *Registry) store(rec *Record) {
	r.cacheMu.Lock()
	r.storeLocked(rec.Clone())
	r.cacheMu.Unlock()
}

// GetOrCreate returns the record for info.Identifier, creating it on
// first sight. Calling it again with the same identifier returns the same
// record; a changed SWVersion is written back. A concurrent insert of the
// same identifier is resolved by re-reading the winner.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - info: Device description built by a platform
//
// Returns:
//   - *Record: A copy of the registered record
//   - error: ErrInvalidDevice, or a repository error
func (r *Registry) GetOrCreate(ctx context.Context, info Info) (*Record, error) {
	if err := info.Validate(); err != nil {
		return nil, err
	}

	rec, err := r.GetByIdentifier(ctx, info.Identifier)
	switch {
	case err == nil:
		return r.refresh(ctx, rec, info)
	case !errors.Is(err, ErrDeviceNotFound):
		return nil, err
	}

	rec = &Record{
		ID:           GenerateID(),
		Identifier:   info.Identifier,
		Name:         info.Name,
		Manufacturer: info.Manufacturer,
		Model:        info.Model,
		SWVersion:    info.SWVersion,
		ViaDevice:    info.ViaDevice,
		ConfigEntry:  r.configEntry,
	}
	if err := r.repo.Create(ctx, rec); err != nil {
		if !errors.Is(err, ErrDeviceExists) {
			return nil, fmt.Errorf("creating device %s: %w", info.Identifier, err)
		}
		existing, getErr := r.repo.GetByIdentifier(ctx, info.Identifier)
		if getErr != nil {
			return nil, fmt.Errorf("reading device %s after conflict: %w", info.Identifier, getErr)
		}
		r.store(existing)
		r.logger.Debug("device registered concurrently", "identifier", info.Identifier)
		return r.refresh(ctx, existing, info)
	}

	r.store(rec)
	r.logger.Info("device registered", "id", rec.ID, "identifier", rec.Identifier, "name", rec.Name)
	return rec.Clone(), nil
}

// refresh writes back a changed firmware version.
func (r *Registry) refresh(ctx context.Context, rec *Record, info Info) (*Record, error) {
	if info.SWVersion == "" || info.SWVersion == rec.SWVersion {
		return rec, nil
	}

	updated := rec.Clone()
	updated.SWVersion = info.SWVersion
	if err := r.repo.Update(ctx, updated); err != nil {
		return nil, fmt.Errorf("updating device %s: %w", rec.Identifier, err)
	}
	r.store(updated)
	r.logger.Info("device firmware changed",
		"identifier", rec.Identifier,
		"from", rec.SWVersion,
		"to", updated.SWVersion)
	return updated.Clone(), nil
}

// GetByID retrieves a record by ID.
// Returns ErrDeviceNotFound if the record does not exist.
func (r *Registry) GetByID(ctx context.Context, id string) (*Record, error) {
	r.cacheMu.RLock()
	cached, ok := r.byID[id]
	r.cacheMu.RUnlock()
	if ok {
		return cached.Clone(), nil
	}

	rec, err := r.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	r.store(rec)
	return rec, nil
}

// GetByIdentifier retrieves a record by its "<serial>_<ADDR>" identifier.
// Returns ErrDeviceNotFound if the record does not exist.
func (r *Registry) GetByIdentifier(ctx context.Context, identifier string) (*Record, error) {
	r.cacheMu.RLock()
	cached, ok := r.byIdentifier[identifier]
	r.cacheMu.RUnlock()
	if ok {
		return cached.Clone(), nil
	}

	rec, err := r.repo.GetByIdentifier(ctx, identifier)
	if err != nil {
		return nil, err
	}
	r.store(rec)
	return rec, nil
}

// List returns every cached record ordered by name.
func (r *Registry) List() []Record {
	r.cacheMu.RLock()
	records := make([]Record, 0, len(r.byID))
	for _, rec := range r.byID {
		records = append(records, *rec)
	}
	r.cacheMu.RUnlock()

	sort.Slice(records, func(i, j int) bool {
		if records[i].Name == records[j].Name {
			return records[i].ID < records[j].ID
		}
		return records[i].Name < records[j].Name
	})
	return records
}

// Count returns the number of cached records.
func (r *Registry) Count() int {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()
	return len(r.byID)
}
