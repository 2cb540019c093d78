package order

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of an order.
type Status string

// Order lifecycle states.
//
// The happy path is draft → pending → paid → using → completed.
// cancelled is reachable from draft, pending and paid; refunded from paid,
// using and completed. No other edges are legal.
const (
	StatusDraft     Status = "draft"
	StatusPending   Status = "pending"
	StatusPaid      Status = "paid"
	StatusUsing     Status = "using"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusRefunded  Status = "refunded"
)

// transitions is the allowed state graph. An order never revisits a state:
// every edge moves strictly forward, and terminal states have no edges.
var transitions = map[Status][]Status{
	StatusDraft:     {StatusPending, StatusCancelled},
	StatusPending:   {StatusPaid, StatusCancelled},
	StatusPaid:      {StatusUsing, StatusCancelled, StatusRefunded},
	StatusUsing:     {StatusCompleted, StatusRefunded},
	StatusCompleted: {StatusRefunded},
	StatusCancelled: {},
	StatusRefunded:  {},
}

// CanTransition reports whether from → to is a legal edge.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether a status has no outgoing edges.
func IsTerminal(s Status) bool {
	return len(transitions[s]) == 0
}

// Tier is the commercial wash tier, which determines inventory consumption
// rates and pricing.
type Tier string

// Wash tiers.
const (
	TierBasic    Tier = "basic"
	TierStandard Tier = "standard"
	TierPremium  Tier = "premium"
)

// Order is a commercial wash transaction.
//
// Monetary amounts are integer cents. Durations are integer seconds.
// Version implements optimistic locking: every successful mutation bumps it,
// and a stale writer loses with ErrConcurrencyConflict.
type Order struct {
	OrderNo          string     `json:"order_no"`
	DeviceID         string     `json:"device_id"`
	StoreID          string     `json:"store_id"`
	UserID           string     `json:"user_id"`
	Tier             Tier       `json:"tier"`
	Status           Status     `json:"status"`
	PlannedDurationS int64      `json:"planned_duration_s"`
	StartedAt        *time.Time `json:"started_at,omitempty"`
	EndedAt          *time.Time `json:"ended_at,omitempty"`
	ActualDurationS  *int64     `json:"actual_duration_s,omitempty"`
	AmountCents      int64      `json:"amount_cents"`
	PaymentRef       *string    `json:"payment_ref,omitempty"`
	PaidAt           *time.Time `json:"paid_at,omitempty"`
	Version          int64      `json:"version"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// Transition moves the order to a new status, validating the edge.
// The order is left untouched on an illegal transition.
//
// Returns:
//   - error: ErrInvalidTransition (wrapped with from/to detail) if the edge
//     is not in the graph
func (o *Order) Transition(to Status) error {
	if !CanTransition(o.Status, to) {
		return fmt.Errorf("%w: %s → %s for order %s", ErrInvalidTransition, o.Status, to, o.OrderNo)
	}
	o.Status = to
	return nil
}
