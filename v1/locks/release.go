package locks

import (
	"github.com/mirkobrombin/go-weblocks/v1/eventbus"
	"github.com/mirkobrombin/go-weblocks/v1/metrics"
	"github.com/mirkobrombin/go-weblocks/v1/runtime"
)

// removeLock erases lock from the held set. It returns false when the lock
// was already removed, by a steal or by environment cleanup.
func (m *Manager) removeLock(lock *Lock) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	held, ok := m.held[lock.name]
	if !ok {
		return false
	}
	for i, l := range held {
		if l == lock {
			m.held[lock.name] = append(held[:i], held[i+1:]...)
			if len(m.held[lock.name]) == 0 {
				delete(m.held, lock.name)
			}
			m.version++
			metrics.HeldGauge.Dec()
			return true
		}
	}
	return false
}

// release settles a lock whose callback result has settled. A stolen lock's
// released handle was already rejected when it was marked stolen; its
// outcome is discarded.
func (m *Manager) release(lock *Lock, value any, err error) {
	m.removeLock(lock)
	if !lock.stolen.Load() {
		if err != nil {
			lock.released.Reject(err)
		} else {
			lock.released.Resolve(value)
		}
		m.publish(eventbus.KindReleased, lock.name, lock.mode, lock.clientID)
	}
}

// releaseAndProcess runs on the owning environment's loop after the
// callback's promise settles.
func (m *Manager) releaseAndProcess(env *runtime.Environment, lock *Lock, value any, err error) {
	m.release(lock, value, err)
	m.processQueue(env)
}

// releaseOrphan handles settlement after the owning environment stopped:
// the state is cleaned up and environments with pending requests are woken
// so they can claim the freed resource.
func (m *Manager) releaseOrphan(lock *Lock, value any, err error) {
	m.release(lock, value, err)

	toWake := make(map[*runtime.Environment]struct{})
	m.mu.Lock()
	for _, req := range m.pending {
		toWake[req.env] = struct{}{}
	}
	m.mu.Unlock()
	for env := range toWake {
		m.wakeEnvironment(env)
	}
}
