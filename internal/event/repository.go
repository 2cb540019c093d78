package event

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for event persistence operations.
// This abstraction allows for different implementations (SQLite, mock, etc.)
// and enables unit testing without database dependencies.
type Repository interface {
	// Ingest stores a received event. Ingest is idempotent: re-ingesting an
	// event with the same (device, kind, device timestamp) returns the
	// existing row with created=false instead of creating a duplicate.
	Ingest(ctx context.Context, ev *DeviceEvent) (stored *DeviceEvent, created bool, err error)

	// GetByID retrieves an event by its unique identifier.
	// Returns ErrEventNotFound if the event does not exist.
	GetByID(ctx context.Context, id string) (*DeviceEvent, error)

	// ListPending retrieves pending events ordered by device timestamp.
	ListPending(ctx context.Context, limit int) ([]DeviceEvent, error)

	// ListFailedByReason retrieves failed events whose failure reason is in
	// reasons and whose attempt count is below maxAttempts (0 = unlimited).
	ListFailedByReason(ctx context.Context, reasons []string, maxAttempts, limit int) ([]DeviceEvent, error)

	// ListByDevice retrieves recent events for a device, newest first.
	ListByDevice(ctx context.Context, deviceID string, limit int) ([]DeviceEvent, error)

	// MarkProcessed finalises a row, persisting the fact and correlated
	// order number. Returns ErrEventImmutable if the row is already
	// processed (processed rows are never mutated).
	MarkProcessed(ctx context.Context, id string, fact *Fact, orderNo *string) error

	// MarkFailed records a failure reason on the row. The fact and order
	// number, if known, are persisted so partially applied work stays
	// visible to operators.
	MarkFailed(ctx context.Context, id string, fact *Fact, orderNo *string, reason string) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
// The db parameter should be an open SQLite connection.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const eventColumns = `id, device_id, kind, payload, device_ts, received_at,
	status, fact, order_no, fail_reason, attempts, created_at, updated_at`

// Ingest stores a received event, deduplicating retransmissions.
func (r *SQLiteRepository) Ingest(ctx context.Context, ev *DeviceEvent) (*DeviceEvent, bool, error) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Status == "" {
		ev.Status = StatusPending
	}
	if len(ev.Payload) == 0 {
		ev.Payload = json.RawMessage("{}")
	}

	now := time.Now().UTC()
	if ev.ReceivedAt.IsZero() {
		ev.ReceivedAt = now
	}
	ev.CreatedAt = now
	ev.UpdatedAt = now

	// INSERT OR IGNORE leans on the (device_id, kind, device_ts) unique
	// index: a retransmission affects zero rows and we return the original.
	res, err := r.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO events (
			id, device_id, kind, payload, device_ts, received_at,
			status, attempts, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		ev.ID,
		ev.DeviceID,
		string(ev.Kind),
		string(ev.Payload),
		formatTime(ev.DeviceTS),
		formatTime(ev.ReceivedAt),
		string(ev.Status),
		formatTime(ev.CreatedAt),
		formatTime(ev.UpdatedAt),
	)
	if err != nil {
		return nil, false, fmt.Errorf("inserting event: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("checking insert result: %w", err)
	}

	if affected == 0 {
		existing, err := r.getByTriple(ctx, ev.DeviceID, ev.Kind, ev.DeviceTS)
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}

	stored, err := r.GetByID(ctx, ev.ID)
	if err != nil {
		return nil, false, err
	}
	return stored, true, nil
}

// GetByID retrieves an event by its unique identifier.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*DeviceEvent, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = ?`, id)

	ev, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("querying event by id: %w", err)
	}
	return ev, nil
}

// getByTriple retrieves the event matching the idempotence key.
func (r *SQLiteRepository) getByTriple(ctx context.Context, deviceID string, kind Kind, deviceTS time.Time) (*DeviceEvent, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM events
		WHERE device_id = ? AND kind = ? AND device_ts = ?`,
		deviceID, string(kind), formatTime(deviceTS))

	ev, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("querying event by triple: %w", err)
	}
	return ev, nil
}

// ListPending retrieves pending events ordered by device timestamp.
func (r *SQLiteRepository) ListPending(ctx context.Context, limit int) ([]DeviceEvent, error) {
	return r.queryEvents(ctx, `
		SELECT `+eventColumns+` FROM events
		WHERE status = ?
		ORDER BY device_ts, received_at
		LIMIT ?`,
		string(StatusPending), limit)
}

// ListFailedByReason retrieves retryable failed events.
func (r *SQLiteRepository) ListFailedByReason(ctx context.Context, reasons []string, maxAttempts, limit int) ([]DeviceEvent, error) {
	if len(reasons) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?,", len(reasons))
	placeholders = placeholders[:len(placeholders)-1]

	args := make([]any, 0, len(reasons)+3)
	args = append(args, string(StatusFailed))
	for _, reason := range reasons {
		args = append(args, reason)
	}

	query := `
		SELECT ` + eventColumns + ` FROM events
		WHERE status = ? AND fail_reason IN (` + placeholders + `)`
	if maxAttempts > 0 {
		query += ` AND attempts < ?`
		args = append(args, maxAttempts)
	}
	query += ` ORDER BY device_ts LIMIT ?`
	args = append(args, limit)

	return r.queryEvents(ctx, query, args...)
}

// ListByDevice retrieves recent events for a device, newest first.
func (r *SQLiteRepository) ListByDevice(ctx context.Context, deviceID string, limit int) ([]DeviceEvent, error) {
	return r.queryEvents(ctx, `
		SELECT `+eventColumns+` FROM events
		WHERE device_id = ?
		ORDER BY device_ts DESC
		LIMIT ?`,
		deviceID, limit)
}

// MarkProcessed finalises an event row.
func (r *SQLiteRepository) MarkProcessed(ctx context.Context, id string, fact *Fact, orderNo *string) error {
	return r.finalise(ctx, id, StatusProcessed, fact, orderNo, nil)
}

// MarkFailed records a failure reason on an event row.
func (r *SQLiteRepository) MarkFailed(ctx context.Context, id string, fact *Fact, orderNo *string, reason string) error {
	return r.finalise(ctx, id, StatusFailed, fact, orderNo, &reason)
}

// finalise writes the outcome of one pipeline run onto the row.
// A processed row is immutable; the guard clause enforces it here rather
// than trusting every caller.
func (r *SQLiteRepository) finalise(ctx context.Context, id string, status Status, fact *Fact, orderNo *string, reason *string) error {
	var factJSON any
	if fact != nil {
		data, err := json.Marshal(fact)
		if err != nil {
			return fmt.Errorf("marshalling fact: %w", err)
		}
		factJSON = string(data)
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE events
		SET status = ?, fact = ?, order_no = ?, fail_reason = ?,
			attempts = attempts + 1, updated_at = ?
		WHERE id = ? AND status != ?`,
		string(status),
		factJSON,
		orderNo,
		reason,
		formatTime(time.Now().UTC()),
		id,
		string(StatusProcessed),
	)
	if err != nil {
		return fmt.Errorf("updating event: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking update result: %w", err)
	}
	if affected == 0 {
		// Either the row does not exist or it is already processed.
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return ErrEventImmutable
	}
	return nil
}

// queryEvents executes a query returning multiple events.
func (r *SQLiteRepository) queryEvents(ctx context.Context, query string, args ...any) ([]DeviceEvent, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	var events []DeviceEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning event row: %w", err)
		}
		events = append(events, *ev)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating events: %w", err)
	}
	return events, nil
}

// rowScanner abstracts sql.Row and sql.Rows for shared scanning.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanEvent scans a single row into a DeviceEvent.
func scanEvent(scanner rowScanner) (*DeviceEvent, error) {
	var ev DeviceEvent
	var kind, status, payload string
	var deviceTS, receivedAt, createdAt, updatedAt string
	var factJSON, orderNo, failReason sql.NullString

	err := scanner.Scan(
		&ev.ID,
		&ev.DeviceID,
		&kind,
		&payload,
		&deviceTS,
		&receivedAt,
		&status,
		&factJSON,
		&orderNo,
		&failReason,
		&ev.Attempts,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	ev.Kind = Kind(kind)
	ev.Status = Status(status)
	ev.Payload = json.RawMessage(payload)

	if factJSON.Valid {
		var fact Fact
		if err := json.Unmarshal([]byte(factJSON.String), &fact); err != nil {
			return nil, fmt.Errorf("unmarshalling fact: %w", err)
		}
		ev.Fact = &fact
	}
	if orderNo.Valid {
		ev.OrderNo = &orderNo.String
	}
	if failReason.Valid {
		ev.FailReason = &failReason.String
	}

	if ev.DeviceTS, err = parseTime(deviceTS); err != nil {
		return nil, fmt.Errorf("parsing device_ts: %w", err)
	}
	if ev.ReceivedAt, err = parseTime(receivedAt); err != nil {
		return nil, fmt.Errorf("parsing received_at: %w", err)
	}
	if ev.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if ev.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	return &ev, nil
}

// formatTime formats a timestamp for storage. All stored timestamps are
// RFC3339 UTC at second precision, which keeps lexicographic and temporal
// ordering identical and makes the idempotence key stable. Two reports of
// the same kind from one device within the same second collapse into one
// row; units report at most once per kind per second, so the collapse is
// the dedup contract, not a loss.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// parseTime parses a stored RFC3339 timestamp.
func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}
