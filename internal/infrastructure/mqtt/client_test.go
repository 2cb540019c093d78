package mqtt

import (
	"errors"
	"testing"
)

// disconnectedClient returns a client that was never connected.
func disconnectedClient() *Client {
	return &Client{
		subscriptions: make(map[string]subscription),
	}
}

func TestPublishEmptyTopic(t *testing.T) {
	c := disconnectedClient()

	if err := c.Publish("", []byte("x"), 1, false); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Publish() error = %v, want ErrInvalidTopic", err)
	}
}

func TestPublishInvalidQoS(t *testing.T) {
	c := disconnectedClient()

	topic := Topics{}.DeviceEvent("dev-01", "heartbeat")
	if err := c.Publish(topic, []byte("x"), 3, false); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("Publish() error = %v, want ErrInvalidQoS", err)
	}
}

func TestPublishDisconnected(t *testing.T) {
	c := disconnectedClient()

	topic := Topics{}.DeviceEvent("dev-01", "heartbeat")
	if err := c.Publish(topic, []byte("x"), 1, false); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Publish() error = %v, want ErrNotConnected", err)
	}
}

func TestPublishOversizedPayload(t *testing.T) {
	c := disconnectedClient()

	topic := Topics{}.DeviceEvent("dev-01", "heartbeat")
	payload := make([]byte, maxPayloadSize+1)
	if err := c.Publish(topic, payload, 1, false); !errors.Is(err, ErrPublishFailed) {
		t.Errorf("Publish() error = %v, want ErrPublishFailed", err)
	}
}

func TestSubscribeEmptyTopic(t *testing.T) {
	c := disconnectedClient()

	err := c.Subscribe("", 1, func(string, []byte) error { return nil })
	if !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Subscribe() error = %v, want ErrInvalidTopic", err)
	}
}

func TestSubscribeInvalidQoS(t *testing.T) {
	c := disconnectedClient()

	err := c.Subscribe(Topics{}.AllDeviceEvents(), 3, func(string, []byte) error { return nil })
	if !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("Subscribe() error = %v, want ErrInvalidQoS", err)
	}
}

func TestSubscribeNilHandler(t *testing.T) {
	c := disconnectedClient()

	err := c.Subscribe(Topics{}.AllDeviceEvents(), 1, nil)
	if !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("Subscribe() error = %v, want ErrSubscribeFailed", err)
	}
}

func TestSubscribeDisconnected(t *testing.T) {
	c := disconnectedClient()

	err := c.Subscribe(Topics{}.AllDeviceEvents(), 1, func(string, []byte) error { return nil })
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("Subscribe() error = %v, want ErrNotConnected", err)
	}
}

func TestUnsubscribeEmptyTopic(t *testing.T) {
	c := disconnectedClient()

	if err := c.Unsubscribe(""); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Unsubscribe() error = %v, want ErrInvalidTopic", err)
	}
}

func TestSubscriptionTracking(t *testing.T) {
	c := disconnectedClient()

	if c.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount() = %d, want 0", c.SubscriptionCount())
	}
	if c.HasSubscription(Topics{}.AllDeviceEvents()) {
		t.Error("HasSubscription() = true for untracked topic")
	}
}

func TestCloseNil(t *testing.T) {
	c := &Client{}

	if err := c.Close(); err != nil {
		t.Errorf("Close() on unconnected client error = %v", err)
	}
}
