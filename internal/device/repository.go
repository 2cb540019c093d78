package device

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Repository defines the interface for device persistence operations.
type Repository interface {
	// Create registers a new device.
	// Returns ErrDeviceExists if the ID is already registered.
	Create(ctx context.Context, d *Device) error

	// GetByID retrieves a device by ID.
	// Returns ErrDeviceNotFound if the device does not exist.
	GetByID(ctx context.Context, id string) (*Device, error)

	// List retrieves all registered devices.
	List(ctx context.Context) ([]Device, error)

	// ListByStore retrieves all devices at a store.
	ListByStore(ctx context.Context, storeID string) ([]Device, error)

	// UpdateLastSeen records a heartbeat: stamps last_seen_at and moves
	// the device online unless it is in maintenance.
	UpdateLastSeen(ctx context.Context, id string, seenAt time.Time) error

	// ListSilentSince retrieves devices considered online whose last
	// heartbeat is older than the cutoff (or never seen). Maintenance
	// devices are exempt.
	ListSilentSince(ctx context.Context, cutoff time.Time) ([]Device, error)

	// SetStatus sets a device's operational status.
	SetStatus(ctx context.Context, id string, status Status) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const deviceColumns = `id, store_id, name, model, status, last_seen_at, created_at, updated_at`

// Create registers a new device.
func (r *SQLiteRepository) Create(ctx context.Context, d *Device) error {
	now := time.Now().UTC()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	d.UpdatedAt = now
	if d.Status == "" {
		d.Status = StatusOffline
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO devices (id, store_id, name, model, status, last_seen_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID,
		d.StoreID,
		d.Name,
		d.Model,
		string(d.Status),
		formatTimePtr(d.LastSeenAt),
		formatTime(d.CreatedAt),
		formatTime(d.UpdatedAt),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrDeviceExists
		}
		return fmt.Errorf("inserting device: %w", err)
	}
	return nil
}

// GetByID retrieves a device by ID.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Device, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+deviceColumns+` FROM devices WHERE id = ?`, id)
	return scanDevice(row)
}

// List retrieves all registered devices.
func (r *SQLiteRepository) List(ctx context.Context) ([]Device, error) {
	return r.queryDevices(ctx,
		`SELECT `+deviceColumns+` FROM devices ORDER BY store_id, id`)
}

// ListByStore retrieves all devices at a store.
func (r *SQLiteRepository) ListByStore(ctx context.Context, storeID string) ([]Device, error) {
	return r.queryDevices(ctx,
		`SELECT `+deviceColumns+` FROM devices WHERE store_id = ? ORDER BY id`, storeID)
}

// UpdateLastSeen records a heartbeat for a device.
func (r *SQLiteRepository) UpdateLastSeen(ctx context.Context, id string, seenAt time.Time) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE devices
		SET last_seen_at = ?,
		    status = CASE WHEN status = 'maintenance' THEN status ELSE 'online' END,
		    updated_at = ?
		WHERE id = ?`,
		formatTime(seenAt),
		formatTime(time.Now().UTC()),
		id,
	)
	if err != nil {
		return fmt.Errorf("updating last seen: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking update result: %w", err)
	}
	if affected == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

// ListSilentSince retrieves online devices that have missed the liveness
// window.
func (r *SQLiteRepository) ListSilentSince(ctx context.Context, cutoff time.Time) ([]Device, error) {
	return r.queryDevices(ctx, `
		SELECT `+deviceColumns+` FROM devices
		WHERE status = 'online'
		  AND (last_seen_at IS NULL OR last_seen_at < ?)
		ORDER BY id`,
		formatTime(cutoff))
}

// SetStatus sets a device's operational status.
func (r *SQLiteRepository) SetStatus(ctx context.Context, id string, status Status) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE devices SET status = ?, updated_at = ? WHERE id = ?`,
		string(status),
		formatTime(time.Now().UTC()),
		id,
	)
	if err != nil {
		return fmt.Errorf("setting device status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking update result: %w", err)
	}
	if affected == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

func (r *SQLiteRepository) queryDevices(ctx context.Context, query string, args ...any) ([]Device, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	var devices []Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		devices = append(devices, *d)
	}
	return devices, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDevice(scanner rowScanner) (*Device, error) {
	var (
		d          Device
		model      sql.NullString
		status     string
		lastSeenAt sql.NullString
		createdAt  string
		updatedAt  string
	)

	err := scanner.Scan(
		&d.ID,
		&d.StoreID,
		&d.Name,
		&model,
		&status,
		&lastSeenAt,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("scanning device: %w", err)
	}

	d.Status = Status(status)
	if model.Valid {
		d.Model = &model.String
	}
	if lastSeenAt.Valid {
		t, err := parseTime(lastSeenAt.String)
		if err != nil {
			return nil, fmt.Errorf("parsing last_seen_at: %w", err)
		}
		d.LastSeenAt = &t
	}
	if d.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if d.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &d, nil
}

// formatTime formats a timestamp for storage. All stored timestamps are
// RFC3339 UTC at second precision.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

// parseTime parses a stored RFC3339 timestamp.
func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}
