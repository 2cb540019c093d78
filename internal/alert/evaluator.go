package alert

import (
	"context"
	"fmt"
	"time"

	"github.com/washlogic/washlogic-core/internal/inventory"
)

// Logger captures the logging interface the evaluator needs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Notifier receives alerts the moment they are raised, for fan-out beyond
// the database (MQTT publication, pager integrations). Notification is
// best-effort: a notifier must not block and its failures do not affect
// the alert row, which is already committed when the notifier runs.
type Notifier interface {
	AlertRaised(a *Alert)
}

type noopNotifier struct{}

func (noopNotifier) AlertRaised(*Alert) {}

// Evaluator inspects post-transition state and raises or resolves alerts.
//
// Every rule is independently idempotent: re-evaluating the same state
// leaves the alert table unchanged. Concurrent evaluations for the same
// subject are serialised by the storage-layer uniqueness constraint rather
// than by locking here.
type Evaluator struct {
	repo     Repository
	logger   Logger
	notifier Notifier
}

// NewEvaluator creates an alert evaluator.
func NewEvaluator(repo Repository) *Evaluator {
	return &Evaluator{
		repo:     repo,
		logger:   noopLogger{},
		notifier: noopNotifier{},
	}
}

// SetLogger sets the logger for the evaluator.
func (e *Evaluator) SetLogger(logger Logger) {
	e.logger = logger
}

// SetNotifier sets the fan-out target for newly raised alerts.
func (e *Evaluator) SetNotifier(notifier Notifier) {
	e.notifier = notifier
}

// InventoryChanged evaluates a ledger application result: a transition into
// low or empty raises a low_inventory alert for the item, and a transition
// back to normal resolves it.
func (e *Evaluator) InventoryChanged(ctx context.Context, res *inventory.ApplyResult) error {
	item := res.Item
	subject := ItemSubject(item.ID)

	switch item.Status {
	case inventory.StatusNormal:
		resolved, err := e.repo.Resolve(ctx, TypeLowInventory, subject)
		if err != nil {
			return err
		}
		if resolved {
			e.logger.Info("low inventory cleared",
				"item_id", item.ID, "item_type", item.ItemType, "stock", item.CurrentStock)
		}
		return nil

	case inventory.StatusLow, inventory.StatusEmpty:
		severity := SeverityWarning
		if item.Status == inventory.StatusEmpty {
			severity = SeverityCritical
		}

		message := fmt.Sprintf("%s stock at %d %s (threshold %d)",
			item.ItemType, item.CurrentStock, item.Unit, item.MinThreshold)
		if res.Shortfall > 0 {
			message = fmt.Sprintf("%s; wash ran %d %s short", message, res.Shortfall, item.Unit)
		}

		a := &Alert{
			Type:     TypeLowInventory,
			Severity: severity,
			Subject:  subject,
			StoreID:  &item.StoreID,
			ItemID:   &item.ID,
			Message:  message,
		}
		created, err := e.repo.Raise(ctx, a)
		if err != nil {
			return err
		}
		if created {
			e.logger.Warn("low inventory alert raised",
				"item_id", item.ID, "item_type", item.ItemType, "status", item.Status)
			e.notifier.AlertRaised(a)
		}
		return nil
	}
	return nil
}

// DeviceError raises a device_error alert for a device-reported fault.
// Re-raising while the fault is still open is a no-op.
func (e *Evaluator) DeviceError(ctx context.Context, deviceID, storeID, code, message string) error {
	msg := message
	if code != "" {
		msg = fmt.Sprintf("[%s] %s", code, message)
	}

	a := &Alert{
		Type:     TypeDeviceError,
		Severity: SeverityCritical,
		Subject:  DeviceSubject(deviceID),
		DeviceID: &deviceID,
		Message:  msg,
	}
	if storeID != "" {
		a.StoreID = &storeID
	}

	created, err := e.repo.Raise(ctx, a)
	if err != nil {
		return err
	}
	if created {
		e.logger.Error("device error alert raised", "device_id", deviceID, "code", code)
		e.notifier.AlertRaised(a)
	}
	return nil
}

// FaultCleared resolves any open device_error alert for the device.
func (e *Evaluator) FaultCleared(ctx context.Context, deviceID string) error {
	resolved, err := e.repo.Resolve(ctx, TypeDeviceError, DeviceSubject(deviceID))
	if err != nil {
		return err
	}
	if resolved {
		e.logger.Info("device error cleared", "device_id", deviceID)
	}
	return nil
}

// SystemError raises a system_error alert for an engine-side failure, such
// as an unparseable payload or an illegal order transition.
func (e *Evaluator) SystemError(ctx context.Context, deviceID, message string) error {
	a := &Alert{
		Type:     TypeSystemError,
		Severity: SeverityWarning,
		Subject:  DeviceSubject(deviceID),
		DeviceID: &deviceID,
		Message:  message,
	}
	created, err := e.repo.Raise(ctx, a)
	if err != nil {
		return err
	}
	if created {
		e.logger.Warn("system error alert raised", "device_id", deviceID, "message", message)
		e.notifier.AlertRaised(a)
	}
	return nil
}

// HeartbeatSeen resolves any open device_offline alert for the device.
func (e *Evaluator) HeartbeatSeen(ctx context.Context, deviceID string) error {
	resolved, err := e.repo.Resolve(ctx, TypeDeviceOffline, DeviceSubject(deviceID))
	if err != nil {
		return err
	}
	if resolved {
		e.logger.Info("device back online", "device_id", deviceID)
	}
	return nil
}

// DeviceSilent raises a device_offline alert for a device that has not
// heartbeated within the liveness window.
func (e *Evaluator) DeviceSilent(ctx context.Context, deviceID, storeID string, lastSeen *time.Time) error {
	message := "no heartbeat received"
	if lastSeen != nil {
		message = fmt.Sprintf("no heartbeat since %s", lastSeen.UTC().Format(time.RFC3339))
	}

	a := &Alert{
		Type:     TypeDeviceOffline,
		Severity: SeverityCritical,
		Subject:  DeviceSubject(deviceID),
		DeviceID: &deviceID,
		Message:  message,
	}
	if storeID != "" {
		a.StoreID = &storeID
	}

	created, err := e.repo.Raise(ctx, a)
	if err != nil {
		return err
	}
	if created {
		e.logger.Warn("device offline alert raised", "device_id", deviceID)
		e.notifier.AlertRaised(a)
	}
	return nil
}
