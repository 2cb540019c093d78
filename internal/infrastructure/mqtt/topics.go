package mqtt

import (
	"fmt"
	"strings"
)

// Topic prefixes for the WashLogic MQTT namespace.
//
// Devices publish telemetry under the flat scheme:
// washlogic/event/{device_id}/{kind}. The core publishes its own liveness
// and alert fan-out under washlogic/system and washlogic/core.
const (
	// TopicPrefix is the base for all WashLogic topics.
	TopicPrefix = "washlogic"

	// TopicPrefixEvent is the base for device telemetry topics.
	TopicPrefixEvent = "washlogic/event"

	// TopicPrefixCore is the base for core-published topics.
	TopicPrefixCore = "washlogic/core"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "washlogic/system"
)

// Topics provides builders for WashLogic MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	t := topics.DeviceEvent("dev-01", "session_stop")
//	// Returns: "washlogic/event/dev-01/session_stop"
type Topics struct{}

// DeviceEvent returns the topic a device publishes one event kind on.
//
// Example: washlogic/event/dev-01/heartbeat
func (Topics) DeviceEvent(deviceID, kind string) string {
	return fmt.Sprintf("%s/%s/%s", TopicPrefixEvent, deviceID, kind)
}

// AllDeviceEvents returns a pattern matching all device telemetry.
//
// Pattern: washlogic/event/+/+
func (Topics) AllDeviceEvents() string {
	return TopicPrefixEvent + "/+/+"
}

// CoreAlert returns the topic an alert is fanned out on.
//
// Example: washlogic/core/alert/low_inventory
func (Topics) CoreAlert(alertType string) string {
	return fmt.Sprintf("%s/alert/%s", TopicPrefixCore, alertType)
}

// AllCoreAlerts returns a pattern matching all alert fan-out topics.
//
// Pattern: washlogic/core/alert/+
func (Topics) AllCoreAlerts() string {
	return TopicPrefixCore + "/alert/+"
}

// SystemStatus returns the core liveness topic (retained, with LWT).
//
// Example: washlogic/system/status
func (Topics) SystemStatus() string {
	return TopicPrefixSystem + "/status"
}

// AllTopics returns a pattern matching the whole WashLogic namespace.
// Use with caution - this receives ALL traffic.
//
// Pattern: washlogic/#
func (Topics) AllTopics() string {
	return TopicPrefix + "/#"
}

// ParseEventTopic extracts the device ID and event kind from a device
// telemetry topic.
//
// Parameters:
//   - topic: A concrete topic as delivered by the broker
//
// Returns:
//   - string: Device ID
//   - string: Event kind
//   - error: If the topic is not under washlogic/event/{device_id}/{kind}
func ParseEventTopic(topic string) (string, string, error) {
	rest, ok := strings.CutPrefix(topic, TopicPrefixEvent+"/")
	if !ok {
		return "", "", fmt.Errorf("%w: %q is not an event topic", ErrInvalidTopic, topic)
	}

	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("%w: %q is not an event topic", ErrInvalidTopic, topic)
	}
	return parts[0], parts[1], nil
}
