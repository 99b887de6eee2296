package locks

import (
	"context"
	"errors"
	"sync"

	"github.com/mirkobrombin/go-weblocks/v1/eventbus"
	"github.com/mirkobrombin/go-weblocks/v1/metrics"
	"github.com/mirkobrombin/go-weblocks/v1/promise"
	"github.com/mirkobrombin/go-weblocks/v1/runtime"
)

// errLockStolen marks a released handle rejected by a steal. The request
// driver rewrites it to the aborted kind before it reaches callers.
var errLockStolen = errors.New("LOCK_STOLEN")

// Manager arbitrates lock requests across all environments of the process.
// One mutex protects the held-locks map, the pending FIFO and the set of
// registered environments; user callbacks, wake postings and promise
// settlements all happen with the mutex released.
type Manager struct {
	mu      sync.Mutex
	held    map[string][]*Lock
	pending []*lockRequest
	envs    map[*runtime.Environment]struct{}
	bus     eventbus.Bus

	// version counts state mutations; lastPass records the version each
	// environment last scanned. An environment is only woken when the
	// state changed since its last pass, which keeps mutually blocked
	// environments from waking each other forever.
	version  uint64
	lastPass map[*runtime.Environment]uint64
}

var current = newManager()

// Current returns the process-wide manager.
func Current() *Manager { return current }

func newManager() *Manager {
	return &Manager{
		held:     make(map[string][]*Lock),
		envs:     make(map[*runtime.Environment]struct{}),
		lastPass: make(map[*runtime.Environment]uint64),
	}
}

// AttachBus publishes lifecycle events to b. Events are best-effort and
// observational only; grant decisions never depend on the bus. Passing nil
// detaches.
func (m *Manager) AttachBus(b eventbus.Bus) {
	m.mu.Lock()
	m.bus = b
	m.mu.Unlock()
}

// publish emits a lifecycle event outside the manager mutex.
func (m *Manager) publish(kind eventbus.Kind, name string, mode Mode, clientID string) {
	m.mu.Lock()
	bus := m.bus
	m.mu.Unlock()
	if bus == nil {
		return
	}
	_ = bus.Publish(context.Background(), eventbus.Event{
		Kind:     kind,
		Resource: name,
		Mode:     string(mode),
		ClientID: clientID,
	})
}

// submit enqueues a validated request and schedules a grant pass on the
// requesting environment. It returns the request's released handle.
func (m *Manager) submit(env *runtime.Environment, name string, mode Mode, steal, ifAvailable bool, cb Callback) *promise.Promise {
	req := &lockRequest{
		name:        name,
		mode:        mode,
		clientID:    env.ClientID(),
		env:         env,
		steal:       steal,
		ifAvailable: ifAvailable,
		callback:    cb,
		waiting:     promise.New(),
		released:    promise.New(),
	}

	m.mu.Lock()
	if _, ok := m.envs[env]; !ok {
		m.envs[env] = struct{}{}
		env.AddCleanupHook(func() { m.cleanupEnvironment(env) })
	}
	// Steal requests get priority by going to the front of the queue.
	if req.steal {
		m.pending = append([]*lockRequest{req}, m.pending...)
	} else {
		m.pending = append(m.pending, req)
	}
	m.version++
	m.mu.Unlock()

	metrics.RequestCounter.Inc()
	metrics.PendingGauge.Inc()
	m.publish(eventbus.KindQueued, req.name, req.mode, req.clientID)

	m.schedule(env)
	return req.released
}

// schedule posts a grant pass onto env's run loop. Posting is best-effort;
// a stopping environment is skipped.
func (m *Manager) schedule(env *runtime.Environment) {
	_ = env.Post(func() { m.processQueue(env) })
}

// wakeEnvironment schedules a grant pass for another environment that may
// have become grantable.
func (m *Manager) wakeEnvironment(env *runtime.Environment) {
	if env == nil || env.Stopping() {
		return
	}
	m.schedule(env)
}
