//go:build integration

package mqtt

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/washlogic/washlogic-core/internal/infrastructure/config"
)

// testConfig returns a valid MQTT configuration for integration testing.
// These tests require a running Mosquitto broker at 127.0.0.1:1883.
func testConfig(clientID string) config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: clientID,
			TLS:      false,
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

func TestIntegration_ConnectAndHealthCheck(t *testing.T) {
	client, err := Connect(testConfig("washlogic-test"))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	if !client.IsConnected() {
		t.Error("IsConnected() = false, want true")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := client.HealthCheck(ctx); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestIntegration_EventRoundtrip(t *testing.T) {
	pub, err := Connect(testConfig("washlogic-test-pub"))
	if err != nil {
		t.Fatalf("Connect(pub) error = %v", err)
	}
	defer pub.Close()

	sub, err := Connect(testConfig("washlogic-test-sub"))
	if err != nil {
		t.Fatalf("Connect(sub) error = %v", err)
	}
	defer sub.Close()

	var (
		mu       sync.Mutex
		received []string
	)
	done := make(chan struct{})

	err = sub.Subscribe(Topics{}.AllDeviceEvents(), 1, func(topic string, payload []byte) error {
		mu.Lock()
		received = append(received, topic)
		if len(received) == 2 {
			close(done)
		}
		mu.Unlock()
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	topics := Topics{}
	for _, topic := range []string{
		topics.DeviceEvent("dev-01", "heartbeat"),
		topics.DeviceEvent("dev-02", "session_stop"),
	} {
		if err := pub.Publish(topic, []byte(`{"device_ts":"2026-09-01T10:00:00Z"}`), 1, false); err != nil {
			t.Fatalf("Publish(%s) error = %v", topic, err)
		}
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for wildcard delivery")
	}

	mu.Lock()
	defer mu.Unlock()
	for _, topic := range received {
		if _, _, err := ParseEventTopic(topic); err != nil {
			t.Errorf("received non-event topic %q: %v", topic, err)
		}
	}
}
