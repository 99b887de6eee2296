package locks

import (
	"github.com/mirkobrombin/go-weblocks/v1/eventbus"
	"github.com/mirkobrombin/go-weblocks/v1/metrics"
	"github.com/mirkobrombin/go-weblocks/v1/promise"
	"github.com/mirkobrombin/go-weblocks/v1/runtime"
)

// grantableLocked reports whether req is compatible with the held locks of
// its resource. Callers hold m.mu.
func (m *Manager) grantableLocked(req *lockRequest) bool {
	// Steal requests bypass all normal granting rules.
	if req.steal {
		return true
	}
	held, ok := m.held[req.name]
	if !ok {
		return true
	}
	if req.mode == ModeExclusive {
		return false
	}
	for _, l := range held {
		if l.mode == ModeExclusive {
			return false
		}
	}
	return true
}

// cleanupStolen removes held locks that were stolen and are owned by an
// environment other than env. Their owners have already observed the
// rejection. Stolen records owned by env itself are not touched here; they
// go on a pass of another environment or when env's callback settles.
func (m *Manager) cleanupStolen(env *runtime.Environment) {
	m.mu.Lock()
	for name, held := range m.held {
		kept := held[:0]
		for _, l := range held {
			if l.stolen.Load() && l.env != env {
				metrics.HeldGauge.Dec()
				m.version++
				continue
			}
			kept = append(kept, l)
		}
		if len(kept) == 0 {
			delete(m.held, name)
		} else {
			m.held[name] = kept
		}
	}
	m.mu.Unlock()
}

// processQueue runs the grant algorithm on env. It is entered when env
// enqueues a request, when another environment wakes env, and after a lock
// held by env is released.
func (m *Manager) processQueue(env *runtime.Environment) {
	m.cleanupStolen(env)

	for {
		var grantable, ifAvailableMiss *lockRequest
		others := make(map[*runtime.Environment]struct{})

		m.mu.Lock()
		m.lastPass[env] = m.version
		// The first time a resource name appears in the scan is the
		// earliest pending request for it.
		firstSeen := make(map[string]*lockRequest)
		for i, req := range m.pending {
			if req.env != env {
				others[req.env] = struct{}{}
			}

			first, ok := firstSeen[req.name]
			if !ok {
				first = req
				firstSeen[req.name] = req
			}

			// A later request waits behind the earliest one unless both
			// are shared.
			blocked := first != req &&
				(req.mode == ModeExclusive || first.mode == ModeExclusive)

			if req.env != env {
				continue
			}

			if blocked || !m.grantableLocked(req) {
				if req.ifAvailable {
					ifAvailableMiss = req
					m.pending = append(m.pending[:i], m.pending[i+1:]...)
					m.version++
					break
				}
				continue
			}

			grantable = req
			m.pending = append(m.pending[:i], m.pending[i+1:]...)
			m.version++
			break
		}
		var othersToWake []*runtime.Environment
		for other := range others {
			if m.lastPass[other] < m.version {
				othersToWake = append(othersToWake, other)
			}
		}
		m.mu.Unlock()

		for _, other := range othersToWake {
			m.wakeEnvironment(other)
		}

		if ifAvailableMiss != nil {
			metrics.PendingGauge.Dec()
			m.grantUnavailable(ifAvailableMiss)
			return
		}
		if grantable == nil {
			return
		}
		metrics.PendingGauge.Dec()
		m.grant(env, grantable)
	}
}

// grantUnavailable settles an ifAvailable request that could not be granted
// immediately: the callback runs with a nil lock and both handles follow
// its result. No lock record is created.
func (m *Manager) grantUnavailable(req *lockRequest) {
	result, err := req.callback(nil)
	if err != nil {
		req.waiting.Reject(err)
		req.released.Reject(err)
		return
	}
	if p, ok := result.(*promise.Promise); ok {
		req.waiting.Resolve(p)
		go func() {
			<-p.Done()
			v, perr := p.Result()
			if perr != nil {
				req.released.Reject(perr)
			} else {
				req.released.Resolve(v)
			}
		}()
		return
	}
	req.waiting.Resolve(result)
	req.released.Resolve(result)
}

// grant makes req a holder and runs its callback. For steal requests every
// existing holder of the resource is evicted first.
func (m *Manager) grant(env *runtime.Environment, req *lockRequest) {
	if req.steal {
		m.evictHolders(env, req.name)
	}

	lock := newLock(req)
	m.mu.Lock()
	m.held[req.name] = append(m.held[req.name], lock)
	m.version++
	m.mu.Unlock()

	metrics.GrantCounter.Inc()
	metrics.HeldGauge.Inc()
	m.publish(eventbus.KindGranted, lock.name, lock.mode, lock.clientID)

	result, err := req.callback(lock)
	if err != nil {
		m.removeLock(lock)
		req.waiting.Reject(err)
		req.released.Reject(err)
		return
	}

	if p, ok := result.(*promise.Promise); ok {
		req.waiting.Resolve(p)
		go func() {
			<-p.Done()
			v, perr := p.Result()
			if !env.Post(func() { m.releaseAndProcess(env, lock, v, perr) }) {
				m.releaseOrphan(lock, v, perr)
			}
		}()
		return
	}

	// Plain values are treated as already settled.
	req.waiting.Resolve(result)
	m.release(lock, result, nil)
}

// evictHolders marks every holder of name stolen, rejects their released
// handles with the stolen sentinel, removes the holders owned by env right
// away, and wakes the other owners. The stolen records of other owners stay
// in the held set until cleanupStolen runs on a different environment or
// their callbacks settle.
func (m *Manager) evictHolders(env *runtime.Environment, name string) {
	var stolen []*Lock
	toNotify := make(map[*runtime.Environment]struct{})

	m.mu.Lock()
	held, ok := m.held[name]
	if ok {
		m.version++
		for _, l := range held {
			l.stolen.Store(true)
			stolen = append(stolen, l)
			toNotify[l.env] = struct{}{}
		}
		kept := held[:0]
		for _, l := range held {
			if l.env == env {
				metrics.HeldGauge.Dec()
				continue
			}
			kept = append(kept, l)
		}
		if len(kept) == 0 {
			delete(m.held, name)
		} else {
			m.held[name] = kept
		}
	}
	m.mu.Unlock()

	for _, l := range stolen {
		l.released.Reject(errLockStolen)
		metrics.StealCounter.Inc()
		m.publish(eventbus.KindStolen, l.name, l.mode, l.clientID)
	}
	for other := range toNotify {
		if other != env {
			m.wakeEnvironment(other)
		}
	}
}
