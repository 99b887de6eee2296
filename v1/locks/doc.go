// Package locks implements cooperative resource locking across execution
// environments sharing one process, following the Web Locks contract. A
// request names a resource, picks a mode (shared or exclusive) and supplies
// a callback that runs on the requesting environment's run loop while the
// lock is held; the lock is released when the callback's result settles.
// Requests on the same resource are served in FIFO order, steal requests
// preempt current holders, ifAvailable requests never queue, and a signal
// cancels a request that has not been granted yet.
//
// A single process-wide Manager arbitrates all environments; obtain it with
// Current. Callbacks that need to hold the lock across asynchronous work
// return a *promise.Promise instead of blocking the run loop.
package locks
