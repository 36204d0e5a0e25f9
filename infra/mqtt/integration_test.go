//go:build integration

package mqtt

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/kilianp07/gridsim/core/grid"
	"github.com/kilianp07/gridsim/internal/testutil"
)

// TestPublisherIntegration publishes an allocation through a real Mosquitto
// broker and reads it back.
func TestPublisherIntegration(t *testing.T) {
	ctx := context.Background()
	broker, cleanup, err := testutil.StartMosquitto(ctx)
	if err != nil {
		t.Fatalf("start mosquitto: %v", err)
	}
	defer cleanup()

	sub := paho.NewClient(paho.NewClientOptions().AddBroker(broker).SetClientID("reader"))
	if tok := sub.Connect(); tok.Wait() && tok.Error() != nil {
		t.Fatalf("subscriber connect: %v", tok.Error())
	}
	defer sub.Disconnect(250)
	got := make(chan []byte, 1)
	if tok := sub.Subscribe("it/+/allocation", 1, func(_ paho.Client, m paho.Message) {
		got <- m.Payload()
	}); tok.Wait() && tok.Error() != nil {
		t.Fatalf("subscribe: %v", tok.Error())
	}

	pub, err := NewPublisher(Config{Broker: broker, ClientID: "writer", TopicPrefix: "it", QoS: 1})
	if err != nil {
		t.Fatalf("publisher: %v", err)
	}
	defer func() { _ = pub.Close() }()
	if err := pub.RecordAllocation(grid.Allocation{Substation: "sub", Step: 1, TotalPower: 248}); err != nil {
		t.Fatalf("record: %v", err)
	}

	select {
	case payload := <-got:
		var a grid.Allocation
		if err := json.Unmarshal(payload, &a); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if a.TotalPower != 248 || a.Substation != "sub" {
			t.Fatalf("unexpected allocation %+v", a)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no message received")
	}
}
