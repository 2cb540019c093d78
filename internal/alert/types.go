package alert

import "time"

// Type categorises the operational condition an alert surfaces.
type Type string

// Alert types.
const (
	TypeLowInventory  Type = "low_inventory"
	TypeDeviceOffline Type = "device_offline"
	TypeDeviceError   Type = "device_error"
	TypeSystemError   Type = "system_error"
)

// Severity grades how urgently an alert needs attention.
type Severity string

// Severity levels.
const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Status is the lifecycle state of an alert.
//
// An acknowledged alert is still open: the condition has been seen by an
// operator but has not cleared, so it continues to block duplicate raises.
type Status string

// Alert statuses.
const (
	StatusActive       Status = "active"
	StatusAcknowledged Status = "acknowledged"
	StatusResolved     Status = "resolved"
)

// Alert is a surfaced operational condition.
//
// Subject identifies what the alert is about ("device:dev-01",
// "item:<uuid>"). At most one open alert exists per (type, subject) pair,
// enforced by a partial unique index at the storage layer.
type Alert struct {
	ID             string     `json:"id"`
	Type           Type       `json:"type"`
	Severity       Severity   `json:"severity"`
	Subject        string     `json:"subject"`
	StoreID        *string    `json:"store_id,omitempty"`
	DeviceID       *string    `json:"device_id,omitempty"`
	ItemID         *string    `json:"item_id,omitempty"`
	Message        string     `json:"message"`
	Status         Status     `json:"status"`
	Remark         *string    `json:"remark,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
}

// DeviceSubject builds the alert subject for a device.
func DeviceSubject(deviceID string) string {
	return "device:" + deviceID
}

// ItemSubject builds the alert subject for an inventory item.
func ItemSubject(itemID string) string {
	return "item:" + itemID
}
