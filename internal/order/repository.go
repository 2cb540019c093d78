package order

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Repository defines the interface for order persistence operations.
//
// Status-changing writes use optimistic version checks so that a
// device-reported transition racing an administrative edit cannot both
// succeed; the loser observes ErrConcurrencyConflict.
type Repository interface {
	// Create inserts a new order.
	// Returns ErrOrderExists if the order number is already taken.
	Create(ctx context.Context, o *Order) error

	// GetByOrderNo retrieves an order by its unique number.
	// Returns ErrOrderNotFound if the order does not exist.
	GetByOrderNo(ctx context.Context, orderNo string) (*Order, error)

	// List retrieves recent orders, newest first.
	List(ctx context.Context, limit int) ([]Order, error)

	// ListByDevice retrieves recent orders for a device, newest first.
	ListByDevice(ctx context.Context, deviceID string, limit int) ([]Order, error)

	// FindStartCandidate finds the order a session-start should bind to:
	// the paid, not-yet-started order for the device with the most recent
	// paid_at. Returns ErrOrderNotFound if no eligible order exists.
	FindStartCandidate(ctx context.Context, deviceID string) (*Order, error)

	// FindUsing finds the order currently in `using` for the device.
	// At most one exists (an order has at most one open session).
	// Returns ErrOrderNotFound if no session is open.
	FindUsing(ctx context.Context, deviceID string) (*Order, error)

	// FindByDeviceSession finds an order for the device whose session
	// boundary matches the given timestamps. Used to recognise duplicate
	// delivery of an already-applied session fact.
	FindByDeviceSession(ctx context.Context, deviceID string, status Status, startedAt, endedAt *time.Time) (*Order, error)

	// UpdateTransition persists a status change together with session
	// fields (started/ended/duration). The write is guarded by the version
	// the order was read at; ErrConcurrencyConflict means another writer
	// won and the caller should re-read and retry.
	UpdateTransition(ctx context.Context, o *Order) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const orderColumns = `order_no, device_id, store_id, user_id, tier, status,
	planned_duration_s, started_at, ended_at, actual_duration_s,
	amount_cents, payment_ref, paid_at, version, created_at, updated_at`

// Create inserts a new order.
func (r *SQLiteRepository) Create(ctx context.Context, o *Order) error {
	now := time.Now().UTC()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	o.UpdatedAt = now
	if o.Status == "" {
		o.Status = StatusDraft
	}
	if o.Version == 0 {
		o.Version = 1
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO orders (
			order_no, device_id, store_id, user_id, tier, status,
			planned_duration_s, started_at, ended_at, actual_duration_s,
			amount_cents, payment_ref, paid_at, version, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.OrderNo,
		o.DeviceID,
		o.StoreID,
		o.UserID,
		string(o.Tier),
		string(o.Status),
		o.PlannedDurationS,
		formatTimePtr(o.StartedAt),
		formatTimePtr(o.EndedAt),
		o.ActualDurationS,
		o.AmountCents,
		o.PaymentRef,
		formatTimePtr(o.PaidAt),
		o.Version,
		formatTime(o.CreatedAt),
		formatTime(o.UpdatedAt),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrOrderExists
		}
		return fmt.Errorf("inserting order: %w", err)
	}
	return nil
}

// GetByOrderNo retrieves an order by its unique number.
func (r *SQLiteRepository) GetByOrderNo(ctx context.Context, orderNo string) (*Order, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE order_no = ?`, orderNo)

	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("querying order: %w", err)
	}
	return o, nil
}

// List retrieves recent orders, newest first.
func (r *SQLiteRepository) List(ctx context.Context, limit int) ([]Order, error) {
	return r.queryOrders(ctx, `
		SELECT `+orderColumns+` FROM orders
		ORDER BY created_at DESC
		LIMIT ?`, limit)
}

// ListByDevice retrieves recent orders for a device, newest first.
func (r *SQLiteRepository) ListByDevice(ctx context.Context, deviceID string, limit int) ([]Order, error) {
	return r.queryOrders(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE device_id = ?
		ORDER BY created_at DESC
		LIMIT ?`, deviceID, limit)
}

// FindStartCandidate finds the paid order a session-start binds to.
// Ties on paid_at break to the most recently paid order: a device serves
// one customer at a time, so the latest payment is the active one.
func (r *SQLiteRepository) FindStartCandidate(ctx context.Context, deviceID string) (*Order, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE device_id = ? AND status = ? AND started_at IS NULL
		ORDER BY paid_at DESC
		LIMIT 1`,
		deviceID, string(StatusPaid))

	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("querying start candidate: %w", err)
	}
	return o, nil
}

// FindUsing finds the order with an open session on the device.
func (r *SQLiteRepository) FindUsing(ctx context.Context, deviceID string) (*Order, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE device_id = ? AND status = ?
		ORDER BY started_at DESC
		LIMIT 1`,
		deviceID, string(StatusUsing))

	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("querying using order: %w", err)
	}
	return o, nil
}

// FindByDeviceSession finds an order matching a session boundary exactly.
func (r *SQLiteRepository) FindByDeviceSession(ctx context.Context, deviceID string, status Status, startedAt, endedAt *time.Time) (*Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE device_id = ? AND status = ?`
	args := []any{deviceID, string(status)}

	if startedAt != nil {
		query += ` AND started_at = ?`
		args = append(args, formatTime(*startedAt))
	}
	if endedAt != nil {
		query += ` AND ended_at = ?`
		args = append(args, formatTime(*endedAt))
	}
	query += ` LIMIT 1`

	row := r.db.QueryRowContext(ctx, query, args...)
	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("querying session order: %w", err)
	}
	return o, nil
}

// UpdateTransition persists a status change with an optimistic version check.
func (r *SQLiteRepository) UpdateTransition(ctx context.Context, o *Order) error {
	now := time.Now().UTC()

	res, err := r.db.ExecContext(ctx, `
		UPDATE orders
		SET status = ?, started_at = ?, ended_at = ?, actual_duration_s = ?,
			payment_ref = ?, paid_at = ?, version = version + 1, updated_at = ?
		WHERE order_no = ? AND version = ?`,
		string(o.Status),
		formatTimePtr(o.StartedAt),
		formatTimePtr(o.EndedAt),
		o.ActualDurationS,
		o.PaymentRef,
		formatTimePtr(o.PaidAt),
		formatTime(now),
		o.OrderNo,
		o.Version,
	)
	if err != nil {
		return fmt.Errorf("updating order: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking update result: %w", err)
	}
	if affected == 0 {
		// Distinguish a lost race from a missing row.
		if _, err := r.GetByOrderNo(ctx, o.OrderNo); err != nil {
			return err
		}
		return ErrConcurrencyConflict
	}

	o.Version++
	o.UpdatedAt = now
	return nil
}

// queryOrders executes a query returning multiple orders.
func (r *SQLiteRepository) queryOrders(ctx context.Context, query string, args ...any) ([]Order, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying orders: %w", err)
	}
	defer rows.Close()

	var orders []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning order row: %w", err)
		}
		orders = append(orders, *o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating orders: %w", err)
	}
	return orders, nil
}

// rowScanner abstracts sql.Row and sql.Rows for shared scanning.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanOrder scans a single row into an Order.
func scanOrder(scanner rowScanner) (*Order, error) {
	var o Order
	var tier, status string
	var startedAt, endedAt, paidAt, paymentRef sql.NullString
	var actualDuration sql.NullInt64
	var createdAt, updatedAt string

	err := scanner.Scan(
		&o.OrderNo,
		&o.DeviceID,
		&o.StoreID,
		&o.UserID,
		&tier,
		&status,
		&o.PlannedDurationS,
		&startedAt,
		&endedAt,
		&actualDuration,
		&o.AmountCents,
		&paymentRef,
		&paidAt,
		&o.Version,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	o.Tier = Tier(tier)
	o.Status = Status(status)

	if actualDuration.Valid {
		o.ActualDurationS = &actualDuration.Int64
	}
	if paymentRef.Valid {
		o.PaymentRef = &paymentRef.String
	}

	var parseErr error
	if o.StartedAt, parseErr = parseTimePtr(startedAt); parseErr != nil {
		return nil, fmt.Errorf("parsing started_at: %w", parseErr)
	}
	if o.EndedAt, parseErr = parseTimePtr(endedAt); parseErr != nil {
		return nil, fmt.Errorf("parsing ended_at: %w", parseErr)
	}
	if o.PaidAt, parseErr = parseTimePtr(paidAt); parseErr != nil {
		return nil, fmt.Errorf("parsing paid_at: %w", parseErr)
	}
	if o.CreatedAt, parseErr = time.Parse(time.RFC3339, createdAt); parseErr != nil {
		return nil, fmt.Errorf("parsing created_at: %w", parseErr)
	}
	if o.UpdatedAt, parseErr = time.Parse(time.RFC3339, updatedAt); parseErr != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", parseErr)
	}

	return &o, nil
}

// formatTime formats a timestamp for storage (RFC3339 UTC, second precision).
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// formatTimePtr formats an optional timestamp, preserving NULL.
func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

// parseTimePtr parses an optional stored timestamp.
func parseTimePtr(s sql.NullString) (*time.Time, error) {
	if !s.Valid {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
