package locks

import (
	"context"

	"github.com/mirkobrombin/go-weblocks/v1/promise"
	"github.com/mirkobrombin/go-weblocks/v1/runtime"
)

// Callback runs on the requesting environment's run loop while the lock is
// held. The lock argument is nil when an ifAvailable request could not be
// granted. Returning a *promise.Promise keeps the lock held until that
// promise settles; any other value releases the lock immediately. A non-nil
// error rejects both completion handles with it.
type Callback func(lock *Lock) (any, error)

// RequestOptions qualify a lock request. The zero value asks for an
// exclusive lock with no flags and no signal.
type RequestOptions struct {
	// Mode selects the compatibility class; empty defaults to exclusive.
	Mode Mode
	// IfAvailable grants only when no queuing would be needed; on a miss
	// the callback runs with a nil lock.
	IfAvailable bool
	// Steal preempts all current holders of the resource. Requires
	// exclusive mode.
	Steal bool
	// Signal cancels the request if it fires before the callback begins.
	// context.Cause supplies the rejection reason. Incompatible with
	// IfAvailable and Steal.
	Signal context.Context
}

// lockRequest is a pending request in the manager's FIFO.
type lockRequest struct {
	name     string
	mode     Mode
	clientID string
	env      *runtime.Environment

	steal       bool
	ifAvailable bool
	callback    Callback

	// waiting settles as soon as the callback returns, with its return
	// value (for promise-returning callbacks, the returned promise);
	// released settles when the callback's result does.
	waiting  *promise.Promise
	released *promise.Promise
}

// Descriptor describes a held lock or pending request in a query snapshot
// or a lifecycle event.
type Descriptor struct {
	Name     string `json:"name"`
	Mode     Mode   `json:"mode"`
	ClientID string `json:"clientId"`
}

// Snapshot is the result of a query, restricted to the calling environment.
type Snapshot struct {
	Held    []Descriptor `json:"held"`
	Pending []Descriptor `json:"pending"`
}
