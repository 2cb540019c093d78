package alert

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for alert persistence operations.
//
// Raising is race-safe against concurrent evaluators: the partial unique
// index on (type, subject) over open alerts means the second of two
// simultaneous raises loses at the storage layer and reports not-created,
// never a duplicate row.
type Repository interface {
	// Raise creates an alert unless one is already open for the same
	// (type, subject). Returns true if a new alert was created.
	Raise(ctx context.Context, a *Alert) (bool, error)

	// Resolve closes any open alert for the (type, subject) pair.
	// Returns true if an alert was resolved, false if none was open.
	Resolve(ctx context.Context, typ Type, subject string) (bool, error)

	// GetByID retrieves an alert by ID.
	// Returns ErrAlertNotFound if the alert does not exist.
	GetByID(ctx context.Context, id string) (*Alert, error)

	// Acknowledge marks an active alert as seen by an operator.
	// Returns ErrInvalidAlertState unless the alert is active.
	Acknowledge(ctx context.Context, id, remark string) error

	// ResolveByID closes a specific open alert.
	// Returns ErrInvalidAlertState if the alert is already resolved.
	ResolveByID(ctx context.Context, id string) error

	// ListOpen retrieves active and acknowledged alerts, newest first.
	ListOpen(ctx context.Context, limit int) ([]Alert, error)

	// ListByStatus retrieves alerts in a given status, newest first.
	ListByStatus(ctx context.Context, status Status, limit int) ([]Alert, error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const alertColumns = `id, type, severity, subject, store_id, device_id, item_id,
	message, status, remark, created_at, acknowledged_at, resolved_at`

// Raise creates an alert unless one is already open for the same pair.
func (r *SQLiteRepository) Raise(ctx context.Context, a *Alert) (bool, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Status == "" {
		a.Status = StatusActive
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO alerts (
			id, type, severity, subject, store_id, device_id, item_id,
			message, status, remark, created_at, acknowledged_at, resolved_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL, NULL)`,
		a.ID,
		string(a.Type),
		string(a.Severity),
		a.Subject,
		a.StoreID,
		a.DeviceID,
		a.ItemID,
		a.Message,
		string(a.Status),
		a.Remark,
		formatTime(a.CreatedAt),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			// An open alert for this condition already exists.
			return false, nil
		}
		return false, fmt.Errorf("inserting alert: %w", err)
	}
	return true, nil
}

// Resolve closes any open alert for the (type, subject) pair.
func (r *SQLiteRepository) Resolve(ctx context.Context, typ Type, subject string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE alerts
		SET status = 'resolved', resolved_at = ?
		WHERE type = ? AND subject = ? AND status IN ('active', 'acknowledged')`,
		formatTime(time.Now().UTC()),
		string(typ),
		subject,
	)
	if err != nil {
		return false, fmt.Errorf("resolving alert: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking resolve result: %w", err)
	}
	return affected > 0, nil
}

// GetByID retrieves an alert by ID.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Alert, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+alertColumns+` FROM alerts WHERE id = ?`, id)
	return scanAlert(row)
}

// Acknowledge marks an active alert as seen by an operator.
func (r *SQLiteRepository) Acknowledge(ctx context.Context, id, remark string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE alerts
		SET status = 'acknowledged', remark = ?, acknowledged_at = ?
		WHERE id = ? AND status = 'active'`,
		remark,
		formatTime(time.Now().UTC()),
		id,
	)
	if err != nil {
		return fmt.Errorf("acknowledging alert: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking acknowledge result: %w", err)
	}
	if affected == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return ErrInvalidAlertState
	}
	return nil
}

// ResolveByID closes a specific open alert.
func (r *SQLiteRepository) ResolveByID(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE alerts
		SET status = 'resolved', resolved_at = ?
		WHERE id = ? AND status IN ('active', 'acknowledged')`,
		formatTime(time.Now().UTC()),
		id,
	)
	if err != nil {
		return fmt.Errorf("resolving alert: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking resolve result: %w", err)
	}
	if affected == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return ErrInvalidAlertState
	}
	return nil
}

// ListOpen retrieves active and acknowledged alerts, newest first.
func (r *SQLiteRepository) ListOpen(ctx context.Context, limit int) ([]Alert, error) {
	return r.queryAlerts(ctx, `
		SELECT `+alertColumns+` FROM alerts
		WHERE status IN ('active', 'acknowledged')
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, limit)
}

// ListByStatus retrieves alerts in a given status, newest first.
func (r *SQLiteRepository) ListByStatus(ctx context.Context, status Status, limit int) ([]Alert, error) {
	return r.queryAlerts(ctx, `
		SELECT `+alertColumns+` FROM alerts
		WHERE status = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, string(status), limit)
}

func (r *SQLiteRepository) queryAlerts(ctx context.Context, query string, args ...any) ([]Alert, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying alerts: %w", err)
	}
	defer rows.Close()

	var alerts []Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, *a)
	}
	return alerts, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAlert(scanner rowScanner) (*Alert, error) {
	var (
		a                        Alert
		typ, severity, status    string
		storeID, deviceID        sql.NullString
		itemID, remark           sql.NullString
		createdAt                string
		acknowledgedAt, resolved sql.NullString
	)

	err := scanner.Scan(
		&a.ID,
		&typ,
		&severity,
		&a.Subject,
		&storeID,
		&deviceID,
		&itemID,
		&a.Message,
		&status,
		&remark,
		&createdAt,
		&acknowledgedAt,
		&resolved,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAlertNotFound
		}
		return nil, fmt.Errorf("scanning alert: %w", err)
	}

	a.Type = Type(typ)
	a.Severity = Severity(severity)
	a.Status = Status(status)
	if storeID.Valid {
		a.StoreID = &storeID.String
	}
	if deviceID.Valid {
		a.DeviceID = &deviceID.String
	}
	if itemID.Valid {
		a.ItemID = &itemID.String
	}
	if remark.Valid {
		a.Remark = &remark.String
	}
	if a.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if a.AcknowledgedAt, err = parseTimePtr(acknowledgedAt); err != nil {
		return nil, fmt.Errorf("parsing acknowledged_at: %w", err)
	}
	if a.ResolvedAt, err = parseTimePtr(resolved); err != nil {
		return nil, fmt.Errorf("parsing resolved_at: %w", err)
	}
	return &a, nil
}

// formatTime formats a timestamp for storage. All stored timestamps are
// RFC3339 UTC at second precision.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// parseTime parses a stored RFC3339 timestamp.
func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}

func parseTimePtr(s sql.NullString) (*time.Time, error) {
	if !s.Valid {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
