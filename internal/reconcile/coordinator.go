package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/washlogic/washlogic-core/internal/alert"
	"github.com/washlogic/washlogic-core/internal/device"
	"github.com/washlogic/washlogic-core/internal/event"
	"github.com/washlogic/washlogic-core/internal/infrastructure/config"
	"github.com/washlogic/washlogic-core/internal/inventory"
	"github.com/washlogic/washlogic-core/internal/order"
)

// Logger captures the logging interface the coordinator needs.
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

// retryableReasons are the failure reasons the automatic retry pass picks
// up. Everything else needs data or operator intervention and stays parked.
var retryableReasons = []string{event.ReasonConflict, event.ReasonTimeout}

// Coordinator drives device events through the reconciliation pipeline:
// parse, correlate, consume inventory, evaluate alerts, finalise the event
// row.
//
// Each event runs as one unit bounded by the configured per-event timeout.
// Side effects committed before a downstream failure are never rolled back;
// the row is marked failed with the reason and the retry relies on the
// idempotence of every step.
type Coordinator struct {
	cfg        config.ReconcileConfig
	events     event.Repository
	devices    device.Repository
	correlator SessionCorrelator
	ledger     *inventory.Ledger
	alerts     *alert.Evaluator
	metrics    MetricsSink
	logger     Logger
}

// SessionCorrelator matches session facts to the order lifecycle.
// order.Correlator is the production implementation.
type SessionCorrelator interface {
	Apply(ctx context.Context, fact *event.Fact) (*order.Result, error)
}

// NewCoordinator creates a reconciliation coordinator.
func NewCoordinator(
	cfg config.ReconcileConfig,
	events event.Repository,
	devices device.Repository,
	correlator SessionCorrelator,
	ledger *inventory.Ledger,
	alerts *alert.Evaluator,
) *Coordinator {
	return &Coordinator{
		cfg:        cfg,
		events:     events,
		devices:    devices,
		correlator: correlator,
		ledger:     ledger,
		alerts:     alerts,
		metrics:    noopMetrics{},
		logger:     noopLogger{},
	}
}

// SetLogger sets the logger for the coordinator.
func (c *Coordinator) SetLogger(logger Logger) {
	c.logger = logger
}

// SetMetrics sets the metrics sink for the coordinator.
func (c *Coordinator) SetMetrics(sink MetricsSink) {
	c.metrics = sink
}

// Ingest accepts a raw device report into the event store.
//
// Ingest is safe to call multiple times with identical arguments: the
// (device, kind, device timestamp) triple deduplicates retransmissions and
// the original event ID is returned.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - deviceID: Reporting device
//   - kind: Event kind string from the wire
//   - payload: Raw payload, stored as received
//   - deviceTS: Device-reported timestamp
//
// Returns:
//   - string: The event ID (existing ID for a retransmission)
//   - error: event.ErrInvalidKind for an unknown kind, or a storage error
func (c *Coordinator) Ingest(ctx context.Context, deviceID, kind string, payload json.RawMessage, deviceTS time.Time) (string, error) {
	k, err := event.ParseKind(kind)
	if err != nil {
		return "", err
	}

	ev := &event.DeviceEvent{
		DeviceID:   deviceID,
		Kind:       k,
		Payload:    payload,
		DeviceTS:   deviceTS,
		ReceivedAt: time.Now().UTC(),
	}

	stored, created, err := c.events.Ingest(ctx, ev)
	if err != nil {
		return "", err
	}
	if !created {
		c.logger.Debug("duplicate ingest", "event_id", stored.ID, "device_id", deviceID, "kind", kind)
	}
	return stored.ID, nil
}

// ProcessPending runs one reconciliation pass over the pending queue.
//
// Events for different devices are processed concurrently; events for the
// same device run sequentially in device-timestamp order, since a
// session_stop must never be evaluated before its session_start.
func (c *Coordinator) ProcessPending(ctx context.Context) error {
	pending, err := c.events.ListPending(ctx, c.cfg.BatchSize)
	if err != nil {
		return fmt.Errorf("listing pending events: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}

	c.runBatch(ctx, pending)
	return nil
}

// RetryFailed re-runs events that failed for a transient reason (conflict,
// timeout), up to the configured attempt cap.
func (c *Coordinator) RetryFailed(ctx context.Context) error {
	failed, err := c.events.ListFailedByReason(ctx, retryableReasons, c.cfg.MaxAttempts, c.cfg.BatchSize)
	if err != nil {
		return fmt.Errorf("listing retryable events: %w", err)
	}
	if len(failed) == 0 {
		return nil
	}

	c.logger.Info("retrying failed events", "count", len(failed))
	c.runBatch(ctx, failed)
	return nil
}

// runBatch partitions events by device and processes the partitions
// concurrently, preserving the slice order within each device.
func (c *Coordinator) runBatch(ctx context.Context, events []event.DeviceEvent) {
	byDevice := make(map[string][]event.DeviceEvent)
	for _, ev := range events {
		byDevice[ev.DeviceID] = append(byDevice[ev.DeviceID], ev)
	}

	var wg sync.WaitGroup
	for deviceID, queue := range byDevice {
		wg.Add(1)
		go func(deviceID string, queue []event.DeviceEvent) {
			defer wg.Done()
			for i := range queue {
				if ctx.Err() != nil {
					return
				}
				if err := c.processEvent(ctx, &queue[i]); err != nil {
					c.logger.Error("event processing failed",
						"event_id", queue[i].ID,
						"device_id", deviceID,
						"error", err,
					)
				}
			}
		}(deviceID, queue)
	}
	wg.Wait()
}

// processEvent drives one event through the pipeline and finalises its row.
// The returned error covers storage failures while finalising; pipeline
// failures are captured on the row instead.
func (c *Coordinator) processEvent(ctx context.Context, ev *event.DeviceEvent) error {
	runCtx := ctx
	if c.cfg.EventTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, c.cfg.EventTimeout)
		defer cancel()
	}

	fact, err := event.ParsePayload(ev.DeviceID, ev.Kind, ev.Payload, ev.DeviceTS)
	if err != nil {
		c.logger.Warn("malformed payload",
			"event_id", ev.ID, "device_id", ev.DeviceID, "kind", ev.Kind, "error", err)
		if aerr := c.alerts.SystemError(ctx, ev.DeviceID, fmt.Sprintf("malformed %s payload: %v", ev.Kind, err)); aerr != nil {
			return aerr
		}
		return c.events.MarkFailed(ctx, ev.ID, nil, nil, event.ReasonMalformedPayload)
	}

	var outcome pipelineOutcome
	switch ev.Kind {
	case event.KindHeartbeat:
		outcome = c.applyHeartbeat(runCtx, fact)
	case event.KindError:
		outcome = c.applyDeviceError(runCtx, fact)
	case event.KindFaultCleared:
		outcome = c.applyFaultCleared(runCtx, fact)
	case event.KindSessionStart, event.KindSessionStop:
		outcome = c.applySession(runCtx, ev, fact)
	default:
		outcome = failure(event.ReasonMalformedPayload, fmt.Errorf("unhandled kind %q", ev.Kind))
	}

	// Finalise on the parent context so a per-event timeout cannot stop
	// the row being marked.
	switch {
	case outcome.held:
		// Left pending for a later pass (out-of-order tolerance).
		return nil
	case outcome.reason != "":
		if outcome.err != nil {
			c.logger.Warn("pipeline step failed",
				"event_id", ev.ID,
				"device_id", ev.DeviceID,
				"kind", ev.Kind,
				"reason", outcome.reason,
				"error", outcome.err,
			)
		}
		return c.events.MarkFailed(ctx, ev.ID, fact, outcome.orderNo, outcome.reason)
	default:
		return c.events.MarkProcessed(ctx, ev.ID, fact, outcome.orderNo)
	}
}

// pipelineOutcome is the result of running an event's pipeline steps.
type pipelineOutcome struct {
	orderNo *string
	reason  string
	err     error
	held    bool
}

func success(orderNo *string) pipelineOutcome {
	return pipelineOutcome{orderNo: orderNo}
}

func failure(reason string, err error) pipelineOutcome {
	return pipelineOutcome{reason: reason, err: err}
}

// classify maps a pipeline error to the failure taxonomy.
func classify(err error) pipelineOutcome {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return failure(event.ReasonTimeout, err)
	case errors.Is(err, order.ErrConcurrencyConflict), errors.Is(err, inventory.ErrConcurrencyConflict):
		return failure(event.ReasonConflict, err)
	case errors.Is(err, order.ErrInvalidTransition):
		return failure(event.ReasonInvalidTransition, err)
	case errors.Is(err, order.ErrUnmatchedSession):
		return failure(event.ReasonUnmatchedSession, err)
	default:
		// Unclassified errors are treated as transient and retried.
		return failure(event.ReasonConflict, err)
	}
}

func (c *Coordinator) applyHeartbeat(ctx context.Context, fact *event.Fact) pipelineOutcome {
	if err := c.devices.UpdateLastSeen(ctx, fact.DeviceID, fact.OccurredAt); err != nil {
		if !errors.Is(err, device.ErrDeviceNotFound) {
			return classify(err)
		}
		// Heartbeat from an unregistered device: nothing to track, but
		// the report itself is valid.
		c.logger.Warn("heartbeat from unknown device", "device_id", fact.DeviceID)
	}
	if err := c.alerts.HeartbeatSeen(ctx, fact.DeviceID); err != nil {
		return classify(err)
	}
	return success(nil)
}

func (c *Coordinator) applyDeviceError(ctx context.Context, fact *event.Fact) pipelineOutcome {
	storeID := c.lookupStore(ctx, fact.DeviceID)

	message := "device reported fault"
	if m, ok := fact.Extra["message"].(string); ok && m != "" {
		message = m
	}

	if err := c.alerts.DeviceError(ctx, fact.DeviceID, storeID, fact.Measurements.ErrorCode, message); err != nil {
		return classify(err)
	}
	return success(nil)
}

func (c *Coordinator) applyFaultCleared(ctx context.Context, fact *event.Fact) pipelineOutcome {
	if err := c.alerts.FaultCleared(ctx, fact.DeviceID); err != nil {
		return classify(err)
	}
	return success(nil)
}

// applySession correlates a session boundary with the order lifecycle and,
// on completion, charges inventory and evaluates alerts.
func (c *Coordinator) applySession(ctx context.Context, ev *event.DeviceEvent, fact *event.Fact) pipelineOutcome {
	res, err := c.correlator.Apply(ctx, fact)
	if err != nil {
		if errors.Is(err, order.ErrUnmatchedSession) {
			// A stop can arrive ahead of its start. Hold it in the
			// pending queue for the tolerance window before parking it.
			if ev.Kind == event.KindSessionStop &&
				time.Since(ev.ReceivedAt) < c.cfg.ReorderTolerance {
				c.logger.Debug("holding premature session_stop",
					"event_id", ev.ID, "device_id", ev.DeviceID)
				return pipelineOutcome{held: true}
			}

			storeID := c.lookupStore(ctx, fact.DeviceID)
			if aerr := c.alerts.DeviceError(ctx, fact.DeviceID, storeID, "",
				fmt.Sprintf("unexpected %s with no matching order", fact.Kind)); aerr != nil {
				return classify(aerr)
			}
		}
		if errors.Is(err, order.ErrInvalidTransition) {
			if aerr := c.alerts.SystemError(ctx, fact.DeviceID,
				fmt.Sprintf("illegal order transition on %s: %v", fact.Kind, err)); aerr != nil {
				return classify(aerr)
			}
		}
		return classify(err)
	}

	orderNo := &res.Order.OrderNo

	// Anything short of a completed order has no inventory effect: a
	// fresh start, or a duplicate of one.
	if !res.Completed && res.Order.Status != order.StatusCompleted {
		return success(orderNo)
	}

	// Completion: charge consumption and evaluate inventory alerts.
	// The order transition is already committed; a failure past this point
	// surfaces on the event row, and the retry re-enters here through the
	// duplicate-stop match (res.Duplicate with a completed order) so an
	// interrupted charge is finished. Each per-item charge is guarded
	// once-per-order, so re-entry never deducts twice.
	results, err := c.ledger.ConsumeForOrder(ctx, res.Order)
	if err != nil {
		out := classify(err)
		out.orderNo = orderNo
		return out
	}

	for i := range results {
		if err := c.alerts.InventoryChanged(ctx, &results[i]); err != nil {
			out := classify(err)
			out.orderNo = orderNo
			return out
		}
		c.metrics.ConsumptionApplied(ctx, &results[i])
	}

	c.metrics.WashCompleted(ctx, res.Order)
	c.logger.Info("wash session reconciled",
		"order_no", res.Order.OrderNo,
		"device_id", fact.DeviceID,
		"duration_s", fact.Measurements.DurationS,
	)
	return success(orderNo)
}

// SweepLiveness moves devices that missed the liveness window offline and
// raises device_offline alerts for them.
func (c *Coordinator) SweepLiveness(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-c.cfg.LivenessWindow)

	silent, err := c.devices.ListSilentSince(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("listing silent devices: %w", err)
	}

	for _, d := range silent {
		if err := c.devices.SetStatus(ctx, d.ID, device.StatusOffline); err != nil {
			return fmt.Errorf("marking device %s offline: %w", d.ID, err)
		}
		if err := c.alerts.DeviceSilent(ctx, d.ID, d.StoreID, d.LastSeenAt); err != nil {
			return err
		}
		c.logger.Warn("device went silent", "device_id", d.ID, "last_seen_at", d.LastSeenAt)
	}
	return nil
}

// lookupStore resolves a device's store for alert context. Best effort: an
// unknown device yields an empty store.
func (c *Coordinator) lookupStore(ctx context.Context, deviceID string) string {
	d, err := c.devices.GetByID(ctx, deviceID)
	if err != nil {
		return ""
	}
	return d.StoreID
}

// Run drives the coordinator until the context is cancelled: pending and
// retry passes every poll interval, liveness sweeps on their own interval.
func (c *Coordinator) Run(ctx context.Context) error {
	poll := time.NewTicker(c.cfg.PollInterval)
	defer poll.Stop()
	sweep := time.NewTicker(c.cfg.LivenessSweepInterval)
	defer sweep.Stop()

	c.logger.Info("reconciliation loop started",
		"poll_interval", c.cfg.PollInterval,
		"liveness_window", c.cfg.LivenessWindow,
	)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("reconciliation loop stopped")
			return ctx.Err()
		case <-poll.C:
			if err := c.ProcessPending(ctx); err != nil {
				c.logger.Error("pending pass failed", "error", err)
			}
			if err := c.RetryFailed(ctx); err != nil {
				c.logger.Error("retry pass failed", "error", err)
			}
		case <-sweep.C:
			if err := c.SweepLiveness(ctx); err != nil {
				c.logger.Error("liveness sweep failed", "error", err)
			}
		}
	}
}
