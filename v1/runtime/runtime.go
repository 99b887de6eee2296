// Package runtime models cooperating execution environments inside one
// process. Each Environment owns a single-threaded run loop; work is handed
// to it from any goroutine with Post and executes in FIFO order. Stopping an
// environment runs its registered cleanup hooks.
package runtime

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Task is a unit of work executed on an environment's run loop.
type Task func()

// Environment is an isolated execution context with a single-threaded run
// loop. Tasks posted from any goroutine run sequentially on the loop.
type Environment struct {
	id       string
	clientID string

	mu    sync.Mutex
	queue []Task
	wake  chan struct{}
	quit  chan struct{}

	stopping atomic.Bool
	stopOnce sync.Once

	hookMu sync.Mutex
	hooks  []func()
}

// New creates an Environment and starts its run loop.
func New() *Environment {
	id := uuid.NewString()
	e := &Environment{
		id:       id,
		clientID: fmt.Sprintf("%d-%s", os.Getpid(), id[:8]),
		wake:     make(chan struct{}, 1),
		quit:     make(chan struct{}),
	}
	go e.run()
	return e
}

// ID returns the environment's unique identifier.
func (e *Environment) ID() string { return e.id }

// ClientID returns the opaque client identifier derived from the process id
// and the environment identity.
func (e *Environment) ClientID() string { return e.clientID }

// Stopping reports whether Stop has been called.
func (e *Environment) Stopping() bool { return e.stopping.Load() }

// Post enqueues t onto the run loop from any goroutine. It returns false
// when the environment is stopping and the task was dropped.
func (e *Environment) Post(t Task) bool {
	if t == nil || e.stopping.Load() {
		return false
	}
	e.mu.Lock()
	e.queue = append(e.queue, t)
	e.mu.Unlock()
	select {
	case e.wake <- struct{}{}:
	default:
	}
	return true
}

// AddCleanupHook registers fn to run when the environment stops. Hooks run
// in reverse registration order on the goroutine calling Stop. A hook added
// after Stop runs asynchronously right away.
func (e *Environment) AddCleanupHook(fn func()) {
	if fn == nil {
		return
	}
	e.hookMu.Lock()
	if e.stopping.Load() {
		e.hookMu.Unlock()
		go fn()
		return
	}
	e.hooks = append(e.hooks, fn)
	e.hookMu.Unlock()
}

// Stop shuts down the run loop and runs cleanup hooks in reverse
// registration order. Queued tasks that have not started are dropped; a
// task already executing finishes on its own. Stop is idempotent and safe
// from any goroutine, including the run loop itself.
func (e *Environment) Stop() {
	e.stopOnce.Do(func() {
		e.hookMu.Lock()
		e.stopping.Store(true)
		hooks := e.hooks
		e.hooks = nil
		e.hookMu.Unlock()
		close(e.quit)
		for i := len(hooks) - 1; i >= 0; i-- {
			hooks[i]()
		}
	})
}

func (e *Environment) run() {
	for {
		if e.stopping.Load() {
			return
		}
		e.mu.Lock()
		var t Task
		if len(e.queue) > 0 {
			t = e.queue[0]
			e.queue = e.queue[1:]
		}
		e.mu.Unlock()

		if t != nil {
			t()
			continue
		}

		select {
		case <-e.wake:
		case <-e.quit:
			return
		}
	}
}
