package locks

import (
	"github.com/mirkobrombin/go-weblocks/v1/promise"
	"github.com/mirkobrombin/go-weblocks/v1/runtime"
)

// Query resolves with a *Snapshot of env's held locks and pending requests.
// Held entries keep insertion order within a resource; order across
// distinct resources is unspecified. Pending entries keep FIFO order.
func (m *Manager) Query(env *runtime.Environment) *promise.Promise {
	p := promise.New()

	snap := &Snapshot{Held: []Descriptor{}, Pending: []Descriptor{}}
	m.mu.Lock()
	for _, held := range m.held {
		for _, l := range held {
			if l.env == env {
				snap.Held = append(snap.Held, Descriptor{
					Name:     l.name,
					Mode:     l.mode,
					ClientID: l.clientID,
				})
			}
		}
	}
	for _, req := range m.pending {
		if req.env == env {
			snap.Pending = append(snap.Pending, Descriptor{
				Name:     req.name,
				Mode:     req.mode,
				ClientID: req.clientID,
			})
		}
	}
	m.mu.Unlock()

	p.Resolve(snap)
	return p
}
