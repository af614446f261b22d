//go:build integration

package mqtt

import (
	"sync/atomic"
	"testing"
	"time"
)

// Integration tests need a broker at 127.0.0.1:1883.
//
//	go test -tags=integration -v ./internal/infrastructure/mqtt/...

func TestIntegration_PublishSubscribeRoundTrip(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.ClientID = "ezvizbridge-int-roundtrip"

	client, err := Connect(cfg, Topics{Protocol: "ezviz-int"}.Health())
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	topic := Topics{Protocol: "ezviz-int"}.Command("Q123")
	var received atomic.Int32
	if err := client.Subscribe(topic, 1, func(string, []byte) error {
		received.Add(1)
		return nil
	}); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if client.SubscriptionCount() != 1 {
		t.Errorf("SubscriptionCount() = %d, want 1", client.SubscriptionCount())
	}

	if err := client.Publish(topic, []byte(`{"command":"unlock_door"}`), 1, false); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for received.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	if received.Load() == 0 {
		t.Fatal("message not received")
	}

	if err := client.Unsubscribe(topic); err != nil {
		t.Fatalf("Unsubscribe() error = %v", err)
	}
}
