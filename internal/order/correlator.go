package order

import (
	"context"
	"errors"
	"fmt"

	"github.com/washlogic/washlogic-core/internal/event"
)

// Logger defines the logging interface used by the Correlator.
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

// Result describes the outcome of correlating one session fact.
type Result struct {
	// Order is the matched order after any transition.
	Order *Order

	// Completed is true when this fact completed the order. The inventory
	// ledger consumes only on completion.
	Completed bool

	// Duplicate is true when the fact had already been applied; the
	// correlation was a no-op success.
	Duplicate bool
}

// Correlator maps normalised session facts onto the order lifecycle.
//
// Only session facts reach the correlator: heartbeats, errors and
// fault-cleared events never change order state.
//
// Thread Safety: Apply is safe for concurrent use; races on the same order
// are resolved by the repository's version checks, not by locking here.
type Correlator struct {
	repo   Repository
	logger Logger
}

// NewCorrelator creates a new correlator over the given repository.
func NewCorrelator(repo Repository) *Correlator {
	return &Correlator{
		repo:   repo,
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the correlator.
func (c *Correlator) SetLogger(logger Logger) {
	c.logger = logger
}

// Apply correlates a session fact with the order lifecycle.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - fact: A session_start or session_stop fact
//
// Returns:
//   - *Result: The matched order and what happened
//   - error: nil on success (including duplicate no-ops), or:
//   - ErrUnmatchedSession if no eligible order exists
//   - ErrInvalidTransition if the order cannot legally move
//   - ErrConcurrencyConflict if a concurrent writer won the race
func (c *Correlator) Apply(ctx context.Context, fact *event.Fact) (*Result, error) {
	switch fact.Kind {
	case event.KindSessionStart:
		return c.applyStart(ctx, fact)
	case event.KindSessionStop:
		return c.applyStop(ctx, fact)
	case event.KindHeartbeat, event.KindError, event.KindFaultCleared:
		// Not session facts; nothing to correlate.
		return &Result{}, nil
	default:
		return nil, fmt.Errorf("%w: unexpected fact kind %q", ErrUnmatchedSession, fact.Kind)
	}
}

// applyStart binds a session-start to the most recently paid order for the
// device and moves it paid → using.
func (c *Correlator) applyStart(ctx context.Context, fact *event.Fact) (*Result, error) {
	startedAt := fact.OccurredAt

	candidate, err := c.repo.FindStartCandidate(ctx, fact.DeviceID)
	if err != nil {
		if !errors.Is(err, ErrOrderNotFound) {
			return nil, err
		}

		// No paid order. If a session with exactly this start time is
		// already open, this is a retransmission: no-op success.
		if dup, dupErr := c.repo.FindByDeviceSession(ctx, fact.DeviceID, StatusUsing, &startedAt, nil); dupErr == nil {
			c.logger.Debug("duplicate session_start", "device_id", fact.DeviceID, "order_no", dup.OrderNo)
			return &Result{Order: dup, Duplicate: true}, nil
		}

		return nil, fmt.Errorf("%w: no paid order for device %s", ErrUnmatchedSession, fact.DeviceID)
	}

	if err := candidate.Transition(StatusUsing); err != nil {
		return nil, err
	}
	candidate.StartedAt = &startedAt

	if err := c.repo.UpdateTransition(ctx, candidate); err != nil {
		return nil, err
	}

	c.logger.Info("session started",
		"device_id", fact.DeviceID,
		"order_no", candidate.OrderNo,
		"started_at", startedAt,
	)
	return &Result{Order: candidate}, nil
}

// applyStop completes the open session on the device, stamping the end time
// and the observed duration.
func (c *Correlator) applyStop(ctx context.Context, fact *event.Fact) (*Result, error) {
	endedAt := fact.OccurredAt

	using, err := c.repo.FindUsing(ctx, fact.DeviceID)
	if err != nil {
		if !errors.Is(err, ErrOrderNotFound) {
			return nil, err
		}

		// No open session. A completed order with exactly this end time
		// means the stop was already applied: no-op success.
		if dup, dupErr := c.repo.FindByDeviceSession(ctx, fact.DeviceID, StatusCompleted, nil, &endedAt); dupErr == nil {
			c.logger.Debug("duplicate session_stop", "device_id", fact.DeviceID, "order_no", dup.OrderNo)
			return &Result{Order: dup, Duplicate: true}, nil
		}

		return nil, fmt.Errorf("%w: no open session for device %s", ErrUnmatchedSession, fact.DeviceID)
	}

	if err := using.Transition(StatusCompleted); err != nil {
		return nil, err
	}

	duration := fact.Measurements.DurationS
	using.EndedAt = &endedAt
	using.ActualDurationS = &duration

	if err := c.repo.UpdateTransition(ctx, using); err != nil {
		return nil, err
	}

	c.logger.Info("session completed",
		"device_id", fact.DeviceID,
		"order_no", using.OrderNo,
		"duration_s", duration,
	)
	return &Result{Order: using, Completed: true}, nil
}
