package locks

import (
	"testing"

	"github.com/mirkobrombin/go-weblocks/v1/promise"
)

func TestQueryReturnsOwnHoldingsAndPending(t *testing.T) {
	m := newManager()
	env := newTestEnv(t)

	gate := promise.New()
	started := make(chan struct{})
	if _, err := m.Request(env, "a", nil, func(l *Lock) (any, error) {
		close(started)
		return gate, nil
	}); err != nil {
		t.Fatalf("holder request: %v", err)
	}
	waitStarted(t, started, "holder callback")

	if _, err := m.Request(env, "a", &RequestOptions{Mode: ModeShared}, func(l *Lock) (any, error) {
		return nil, nil
	}); err != nil {
		t.Fatalf("pending request: %v", err)
	}

	v, err := await(t, m.Query(env))
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	snap := v.(*Snapshot)
	if len(snap.Held) != 1 || len(snap.Pending) != 1 {
		t.Fatalf("snapshot shape: %+v", snap)
	}
	held := snap.Held[0]
	if held.Name != "a" || held.Mode != ModeExclusive || held.ClientID != env.ClientID() {
		t.Fatalf("held descriptor: %+v", held)
	}
	pending := snap.Pending[0]
	if pending.Name != "a" || pending.Mode != ModeShared || pending.ClientID != env.ClientID() {
		t.Fatalf("pending descriptor: %+v", pending)
	}

	gate.Resolve(nil)
}

func TestQueryIsolatesEnvironments(t *testing.T) {
	m := newManager()
	env1 := newTestEnv(t)
	env2 := newTestEnv(t)

	gate := promise.New()
	started := make(chan struct{})
	if _, err := m.Request(env1, "mine", nil, func(l *Lock) (any, error) {
		close(started)
		return gate, nil
	}); err != nil {
		t.Fatalf("request: %v", err)
	}
	waitStarted(t, started, "holder callback")

	v, err := await(t, m.Query(env2))
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	snap := v.(*Snapshot)
	if len(snap.Held) != 0 || len(snap.Pending) != 0 {
		t.Fatalf("foreign records visible: %+v", snap)
	}

	gate.Resolve(nil)
}
