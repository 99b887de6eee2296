package locks

import (
	"errors"
	"testing"

	"github.com/mirkobrombin/go-weblocks/v1/promise"
)

func TestIfAvailableMissNeverQueues(t *testing.T) {
	m := newManager()
	env := newTestEnv(t)

	gate := promise.New()
	started := make(chan struct{})
	if _, err := m.Request(env, "r", nil, func(l *Lock) (any, error) {
		close(started)
		return gate, nil
	}); err != nil {
		t.Fatalf("holder request: %v", err)
	}
	waitStarted(t, started, "holder callback")

	gotLock := make(chan *Lock, 1)
	p, err := m.Request(env, "r", &RequestOptions{IfAvailable: true}, func(l *Lock) (any, error) {
		gotLock <- l
		return "missed", nil
	})
	if err != nil {
		t.Fatalf("ifAvailable request: %v", err)
	}

	// The handle settles with the callback's value while the holder is
	// still in place.
	if v, err := await(t, p); err != nil || v != "missed" {
		t.Fatalf("ifAvailable result: %v %v", v, err)
	}
	if l := <-gotLock; l != nil {
		t.Fatal("miss callback must receive a nil lock")
	}

	m.mu.Lock()
	pendingLen := len(m.pending)
	m.mu.Unlock()
	if pendingLen != 0 {
		t.Fatalf("ifAvailable miss left %d queued requests", pendingLen)
	}

	gate.Resolve(nil)
}

func TestIfAvailableGrantsWhenFree(t *testing.T) {
	m := newManager()
	env := newTestEnv(t)

	gotLock := make(chan *Lock, 1)
	p, err := m.Request(env, "r", &RequestOptions{IfAvailable: true}, func(l *Lock) (any, error) {
		gotLock <- l
		return "granted", nil
	})
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if v, err := await(t, p); err != nil || v != "granted" {
		t.Fatalf("result: %v %v", v, err)
	}
	l := <-gotLock
	if l == nil {
		t.Fatal("free resource must grant a real lock")
	}
	if l.Name() != "r" || l.Mode() != ModeExclusive {
		t.Fatalf("descriptor: %s %s", l.Name(), l.Mode())
	}
}

func TestIfAvailableMissCallbackError(t *testing.T) {
	m := newManager()
	env := newTestEnv(t)

	gate := promise.New()
	if _, err := m.Request(env, "r", nil, func(l *Lock) (any, error) {
		return gate, nil
	}); err != nil {
		t.Fatalf("holder request: %v", err)
	}

	boom := errors.New("boom")
	p, err := m.Request(env, "r", &RequestOptions{IfAvailable: true}, func(l *Lock) (any, error) {
		if l != nil {
			t.Error("expected miss")
		}
		return nil, boom
	})
	if err != nil {
		t.Fatalf("ifAvailable request: %v", err)
	}
	if _, err := await(t, p); !errors.Is(err, boom) {
		t.Fatalf("expected callback error, got %v", err)
	}
	gate.Resolve(nil)
}
