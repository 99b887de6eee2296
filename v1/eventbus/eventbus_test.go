package eventbus

import (
	"context"
	"testing"
	"time"
)

func TestPublishSubscribeFlowAndMetrics(t *testing.T) {
	bus := NewInMemoryBus()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := bus.Subscribe(ctx, "res")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	ev := Event{Kind: KindGranted, Resource: "res", Mode: "exclusive", ClientID: "c1"}
	if err := bus.Publish(context.Background(), ev); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case got := <-ch:
		if got != ev {
			t.Fatalf("event mismatch: %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for publish")
	}

	m := bus.Metrics()
	if m.Published != 1 {
		t.Fatalf("expected published 1 got %d", m.Published)
	}
	if m.Delivered != 1 {
		t.Fatalf("expected delivered 1 got %d", m.Delivered)
	}
}

func TestSubscriberIsolationPerResource(t *testing.T) {
	bus := NewInMemoryBus()
	ctx := context.Background()

	other, err := bus.Subscribe(ctx, "other")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := bus.Publish(ctx, Event{Kind: KindQueued, Resource: "res"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	select {
	case ev := <-other:
		t.Fatalf("unexpected delivery: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestContextBasedUnsubscribe(t *testing.T) {
	bus := NewInMemoryBus()
	ctx, cancel := context.WithCancel(context.Background())
	ch, err := bus.Subscribe(ctx, "res")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	cancel()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected channel closed")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for unsubscribe")
	}

	bus.mu.Lock()
	defer bus.mu.Unlock()
	if _, ok := bus.subs["res"]; ok {
		t.Fatal("subscription still present after context cancel")
	}
}
