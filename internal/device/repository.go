package device

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Repository defines device record persistence.
type Repository interface {
	// GetByID returns ErrDeviceNotFound if the record does not exist.
	GetByID(ctx context.Context, id string) (*Record, error)

	// GetByIdentifier returns ErrDeviceNotFound if the record does not exist.
	GetByIdentifier(ctx context.Context, identifier string) (*Record, error)

	// List returns every record ordered by name.
	List(ctx context.Context) ([]Record, error)

	// Create returns ErrDeviceExists if the ID or identifier is taken.
	Create(ctx context.Context, rec *Record) error

	// Update returns ErrDeviceNotFound if the record does not exist.
	Update(ctx context.Context, rec *Record) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const selectColumns = `
		SELECT id, identifier, name, manufacturer, model, sw_version,
			via_device, config_entry, created_at, updated_at
		FROM devices`

// GetByID retrieves a record by its ID.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Record, error) {
	return r.getOne(ctx, selectColumns+" WHERE id = ?", id)
}

// GetByIdentifier retrieves a record by its device identifier.
func (r *SQLiteRepository) GetByIdentifier(ctx context.Context, identifier string) (*Record, error) {
	return r.getOne(ctx, selectColumns+" WHERE identifier = ?", identifier)
}

func (r *SQLiteRepository) getOne(ctx context.Context, query string, arg string) (*Record, error) {
	rec, err := scanRecord(r.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("querying device: %w", err)
	}
	return rec, nil
}

// List retrieves all records.
func (r *SQLiteRepository) List(ctx context.Context) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx, selectColumns+" ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning device: %w", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}
	return records, nil
}

// Create inserts a new record, filling timestamps when unset.
func (r *SQLiteRepository) Create(ctx context.Context, rec *Record) error {
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	query := `
		INSERT INTO devices (
			id, identifier, name, manufacturer, model, sw_version,
			via_device, config_entry, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		rec.ID,
		rec.Identifier,
		rec.Name,
		rec.Manufacturer,
		rec.Model,
		rec.SWVersion,
		rec.ViaDevice,
		rec.ConfigEntry,
		rec.CreatedAt.Format(time.RFC3339),
		rec.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrDeviceExists
		}
		return fmt.Errorf("inserting device: %w", err)
	}
	return nil
}

// Update rewrites the mutable columns of an existing record.
func (r *SQLiteRepository) Update(ctx context.Context, rec *Record) error {
	rec.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE devices SET
			name = ?, manufacturer = ?, model = ?, sw_version = ?,
			via_device = ?, config_entry = ?, updated_at = ?
		WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query,
		rec.Name,
		rec.Manufacturer,
		rec.Model,
		rec.SWVersion,
		rec.ViaDevice,
		rec.ConfigEntry,
		rec.UpdatedAt.Format(time.RFC3339),
		rec.ID,
	)
	if err != nil {
		return fmt.Errorf("updating device: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

// rowScanner is an interface that sql.Row and sql.Rows both implement.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(scanner rowScanner) (*Record, error) {
	var rec Record
	var createdAt, updatedAt string

	err := scanner.Scan(
		&rec.ID,
		&rec.Identifier,
		&rec.Name,
		&rec.Manufacturer,
		&rec.Model,
		&rec.SWVersion,
		&rec.ViaDevice,
		&rec.ConfigEntry,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if rec.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if rec.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &rec, nil
}

// isUniqueConstraintError checks if an error is a SQLite unique constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "unique constraint")
}
