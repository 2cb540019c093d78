package event

import (
	"encoding/json"
	"fmt"
	"time"
)

// Kind identifies what a device event reports.
//
// Kinds form a closed set; the parser and correlator switch over them
// exhaustively. Adding a kind means extending both switches.
type Kind string

// Device event kinds.
const (
	// KindSessionStart reports a wash session beginning on the device.
	KindSessionStart Kind = "session_start"

	// KindSessionStop reports a wash session ending. Carries the observed
	// duration in seconds.
	KindSessionStop Kind = "session_stop"

	// KindHeartbeat reports device liveness. Never touches order state.
	KindHeartbeat Kind = "heartbeat"

	// KindError reports a device fault. Carries an error code.
	KindError Kind = "error"

	// KindFaultCleared reports a previously raised fault has cleared.
	KindFaultCleared Kind = "fault_cleared"
)

// ParseKind validates a raw kind string.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindSessionStart, KindSessionStop, KindHeartbeat, KindError, KindFaultCleared:
		return Kind(s), nil
	default:
		return "", fmt.Errorf("%w: unknown kind %q", ErrInvalidKind, s)
	}
}

// Status is the processing state of a stored event.
type Status string

// Event processing states.
const (
	StatusPending   Status = "pending"
	StatusProcessed Status = "processed"
	StatusFailed    Status = "failed"
)

// Failure reasons recorded on event rows. These mirror the error taxonomy:
// only conflict and timeout are automatically retried; the rest are terminal
// for the event unless the underlying data changes.
const (
	ReasonMalformedPayload  = "malformed_payload"
	ReasonUnmatchedSession  = "unmatched_session"
	ReasonInvalidTransition = "invalid_transition"
	ReasonConflict          = "conflict"
	ReasonTimeout           = "timeout"
)

// DeviceEvent is one physical telemetry report and its processing state.
//
// Rows are created on receipt, mutated only by the reconciliation
// coordinator, and never deleted (audit trail). Once Status is
// StatusProcessed the row is immutable.
type DeviceEvent struct {
	ID         string          `json:"id"`
	DeviceID   string          `json:"device_id"`
	Kind       Kind            `json:"kind"`
	Payload    json.RawMessage `json:"payload"`
	DeviceTS   time.Time       `json:"device_ts"`
	ReceivedAt time.Time       `json:"received_at"`
	Status     Status          `json:"status"`

	// Fact is the normalised parse result, nil until parsed.
	Fact *Fact `json:"fact,omitempty"`

	// OrderNo is the correlated order, nil until (and unless) correlated.
	OrderNo *string `json:"order_no,omitempty"`

	// FailReason holds the failure taxonomy code for failed rows.
	FailReason *string `json:"fail_reason,omitempty"`

	// Attempts counts pipeline runs for this event.
	Attempts int `json:"attempts"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Fact is the normalised form of a device event payload.
//
// Parsing is pure: a Fact carries everything downstream stages need without
// re-reading the raw payload.
type Fact struct {
	Kind         Kind           `json:"kind"`
	DeviceID     string         `json:"device_id"`
	OccurredAt   time.Time      `json:"occurred_at"`
	Measurements Measurements   `json:"measurements"`

	// Extra preserves unknown payload fields unvalidated, for forensics.
	Extra map[string]any `json:"extra,omitempty"`
}

// Measurements holds the quantities a device reports, in fixed-point integer
// minor units (seconds, millilitres, watt-hours). Floating point is never
// used for measured values.
type Measurements struct {
	// DurationS is the observed session duration (session_stop).
	DurationS int64 `json:"duration_s,omitempty"`

	// WaterML is device-metered water usage, when reported.
	WaterML int64 `json:"water_ml,omitempty"`

	// DetergentML is device-metered detergent usage, when reported.
	DetergentML int64 `json:"detergent_ml,omitempty"`

	// EnergyWh is device-metered energy usage, when reported.
	EnergyWh int64 `json:"energy_wh,omitempty"`

	// SignalDBM is the radio signal strength (heartbeat).
	SignalDBM int64 `json:"signal_dbm,omitempty"`

	// ErrorCode identifies the fault (error, fault_cleared).
	ErrorCode string `json:"error_code,omitempty"`
}
