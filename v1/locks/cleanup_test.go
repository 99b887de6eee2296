package locks

import (
	"testing"
	"time"

	"github.com/mirkobrombin/go-weblocks/v1/promise"
	"github.com/mirkobrombin/go-weblocks/v1/runtime"
)

// neverSettles returns a promise that stays pending for the lifetime of the
// test, keeping its lock held.
func neverSettles() *promise.Promise {
	return promise.New()
}

func TestEnvironmentTeardownReleasesHoldings(t *testing.T) {
	m := newManager()
	doomed := runtime.New()
	survivor := newTestEnv(t)

	gate := promise.New()
	t.Cleanup(func() { gate.Resolve(nil) })
	started := make(chan struct{})
	if _, err := m.Request(doomed, "r", nil, func(l *Lock) (any, error) {
		close(started)
		return gate, nil
	}); err != nil {
		t.Fatalf("holder request: %v", err)
	}
	waitStarted(t, started, "holder callback")

	// A pending request from the doomed environment must never be granted.
	pendingRan := make(chan struct{})
	pPending, err := m.Request(doomed, "r", nil, func(l *Lock) (any, error) {
		close(pendingRan)
		return nil, nil
	})
	if err != nil {
		t.Fatalf("pending request: %v", err)
	}

	pSurvivor, err := m.Request(survivor, "r", nil, func(l *Lock) (any, error) {
		return "unblocked", nil
	})
	if err != nil {
		t.Fatalf("survivor request: %v", err)
	}

	doomed.Stop()

	if v, err := await(t, pSurvivor); err != nil || v != "unblocked" {
		t.Fatalf("survivor result: %v %v", v, err)
	}
	mustNotStart(t, pendingRan, "doomed pending callback")
	if pPending.Settled() {
		t.Fatal("doomed pending handle must stay unsettled")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.envs[doomed]; ok {
		t.Fatal("environment still registered after teardown")
	}
}

func TestTeardownDropsOnlyOwnRecords(t *testing.T) {
	m := newManager()
	doomed := runtime.New()
	survivor := newTestEnv(t)

	gate := promise.New()
	started := make(chan struct{})
	pSurvivor, err := m.Request(survivor, "keep", nil, func(l *Lock) (any, error) {
		close(started)
		return gate, nil
	})
	if err != nil {
		t.Fatalf("survivor request: %v", err)
	}
	waitStarted(t, started, "survivor callback")

	if _, err := m.Request(doomed, "drop", nil, func(l *Lock) (any, error) {
		return promise.New(), nil
	}); err != nil {
		t.Fatalf("doomed request: %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	doomed.Stop()

	v, err := await(t, m.Query(survivor))
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	snap := v.(*Snapshot)
	if len(snap.Held) != 1 || snap.Held[0].Name != "keep" {
		t.Fatalf("survivor holdings disturbed: %+v", snap)
	}

	gate.Resolve("done")
	if v, err := await(t, pSurvivor); err != nil || v != "done" {
		t.Fatalf("survivor release: %v %v", v, err)
	}
}
