package eventbus

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	natsserver "github.com/nats-io/nats-server/v2/test"
	nats "github.com/nats-io/nats.go"
)

func newNATSBus(t *testing.T) (*NATSBus, func()) {
	t.Helper()
	addr := os.Getenv("WEBLOCKS_TEST_NATS_ADDR")

	var conn *nats.Conn
	var s *server.Server
	var err error

	if addr != "" {
		t.Logf("using real NATS at %s", addr)
		conn, err = nats.Connect(addr)
	} else {
		s = natsserver.RunRandClientPortServer()
		conn, err = nats.Connect(s.ClientURL())
	}
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	cleanup := func() {
		conn.Close()
		if s != nil {
			s.Shutdown()
		}
	}
	return NewNATSBus(conn), cleanup
}

func TestNATSPublishSubscribe(t *testing.T) {
	bus, cleanup := newNATSBus(t)
	defer cleanup()
	ctx := context.Background()

	ch, err := bus.Subscribe(ctx, "res")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	ev := Event{Kind: KindReleased, Resource: "res", Mode: "shared", ClientID: "c2"}
	if err := bus.Publish(ctx, ev); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case got := <-ch:
		if got != ev {
			t.Fatalf("event mismatch: %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for nats delivery")
	}
}

func TestNATSUnsubscribe(t *testing.T) {
	bus, cleanup := newNATSBus(t)
	defer cleanup()
	ctx := context.Background()

	ch, err := bus.Subscribe(ctx, "res")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := bus.Unsubscribe(ctx, "res", ch); err != nil {
		t.Fatalf("unsubscribe: %v", err)
	}
	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected channel closed")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for close")
	}
}
