package locks

import (
	"github.com/mirkobrombin/go-weblocks/v1/metrics"
	"github.com/mirkobrombin/go-weblocks/v1/runtime"
)

// cleanupEnvironment drops every held lock and pending request belonging to
// a stopping environment and unregisters it. Other environments observe the
// freed resources on their next grant pass; those with pending requests are
// woken so that pass happens promptly.
func (m *Manager) cleanupEnvironment(env *runtime.Environment) {
	toWake := make(map[*runtime.Environment]struct{})

	m.mu.Lock()
	for name, held := range m.held {
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

	kept := m.pending[:0]
	for _, req := range m.pending {
		if req.env == env {
			metrics.PendingGauge.Dec()
			continue
		}
		toWake[req.env] = struct{}{}
		kept = append(kept, req)
	}
	m.pending = kept

	delete(m.envs, env)
	delete(m.lastPass, env)
	m.version++
	m.mu.Unlock()

	for other := range toWake {
		m.wakeEnvironment(other)
	}
}
