package event

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Payload field names recognised by the parser.
const (
	fieldDurationS   = "duration_s"
	fieldWaterML     = "water_ml"
	fieldDetergentML = "detergent_ml"
	fieldEnergyWh    = "energy_wh"
	fieldSignalDBM   = "signal_dbm"
	fieldErrorCode   = "code"
)

// ParsePayload maps a raw payload and its declared kind into a normalised
// Fact, or fails with ErrMalformedPayload.
//
// Parsing is pure and side-effect free: no I/O, no correlation lookups.
// Missing required fields for the declared kind are a hard failure, never a
// best-effort guess. Unknown fields are preserved in Fact.Extra unvalidated.
//
// Numbers are decoded with json.Number and converted to int64 minor units;
// a fractional or non-numeric value where an integer is required is
// malformed.
//
// Parameters:
//   - deviceID: The reporting device
//   - kind: The declared event kind
//   - raw: The raw payload blob (JSON object; empty payload means "{}")
//   - occurredAt: The device-reported timestamp
//
// Returns:
//   - *Fact: The normalised fact
//   - error: ErrMalformedPayload (wrapped with detail) on any parse failure
func ParsePayload(deviceID string, kind Kind, raw json.RawMessage, occurredAt time.Time) (*Fact, error) {
	if deviceID == "" {
		return nil, fmt.Errorf("%w: missing device id", ErrMalformedPayload)
	}
	if occurredAt.IsZero() {
		return nil, fmt.Errorf("%w: missing device timestamp", ErrMalformedPayload)
	}

	fields, err := decodeObject(raw)
	if err != nil {
		return nil, err
	}

	fact := &Fact{
		Kind:       kind,
		DeviceID:   deviceID,
		OccurredAt: occurredAt.UTC(),
	}

	// Pull known quantities out of the payload; whatever remains is Extra.
	if err := extractMeasurements(fields, &fact.Measurements); err != nil {
		return nil, err
	}
	if len(fields) > 0 {
		fact.Extra = fields
	}

	// Per-kind required fields. The switch is exhaustive over Kind.
	switch kind {
	case KindSessionStart, KindHeartbeat:
		// No required payload fields.
	case KindSessionStop:
		if fact.Measurements.DurationS <= 0 {
			return nil, fmt.Errorf("%w: session_stop requires positive %s", ErrMalformedPayload, fieldDurationS)
		}
	case KindError:
		if fact.Measurements.ErrorCode == "" {
			return nil, fmt.Errorf("%w: error requires %s", ErrMalformedPayload, fieldErrorCode)
		}
	case KindFaultCleared:
		// Code is optional; absent means "all faults cleared".
	default:
		return nil, fmt.Errorf("%w: kind %q", ErrInvalidKind, kind)
	}

	return fact, nil
}

// decodeObject decodes a raw JSON object preserving integer precision.
// Numbers come back as json.Number, not float64.
func decodeObject(raw json.RawMessage) (map[string]any, error) {
	if len(raw) == 0 {
		return map[string]any{}, nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if fields == nil {
		fields = map[string]any{}
	}
	return fields, nil
}

// extractMeasurements moves recognised quantity fields from the payload map
// into Measurements, deleting them from the map as they are consumed.
func extractMeasurements(fields map[string]any, m *Measurements) error {
	intFields := []struct {
		key  string
		dest *int64
	}{
		{fieldDurationS, &m.DurationS},
		{fieldWaterML, &m.WaterML},
		{fieldDetergentML, &m.DetergentML},
		{fieldEnergyWh, &m.EnergyWh},
		{fieldSignalDBM, &m.SignalDBM},
	}

	for _, f := range intFields {
		raw, ok := fields[f.key]
		if !ok {
			continue
		}
		num, ok := raw.(json.Number)
		if !ok {
			return fmt.Errorf("%w: %s must be a number", ErrMalformedPayload, f.key)
		}
		v, err := num.Int64()
		if err != nil {
			return fmt.Errorf("%w: %s must be an integer: %v", ErrMalformedPayload, f.key, err)
		}
		*f.dest = v
		delete(fields, f.key)
	}

	if raw, ok := fields[fieldErrorCode]; ok {
		code, ok := raw.(string)
		if !ok {
			return fmt.Errorf("%w: %s must be a string", ErrMalformedPayload, fieldErrorCode)
		}
		m.ErrorCode = code
		delete(fields, fieldErrorCode)
	}

	return nil
}
