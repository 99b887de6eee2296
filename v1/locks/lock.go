package locks

import (
	"sync/atomic"

	weberrors "github.com/mirkobrombin/go-weblocks/v1/errors"
	"github.com/mirkobrombin/go-weblocks/v1/promise"
	"github.com/mirkobrombin/go-weblocks/v1/runtime"
)

// Mode is the compatibility class of a lock. Shared locks coexist with each
// other; an exclusive lock excludes all others.
type Mode string

const (
	ModeShared    Mode = "shared"
	ModeExclusive Mode = "exclusive"
)

// Lock is a granted lock. Its identity is immutable; the stolen flag is set
// when a steal request preempts the holder. The record stays alive after
// removal from the manager's state while the holder's callback is still in
// flight.
type Lock struct {
	name     string
	mode     Mode
	clientID string
	env      *runtime.Environment

	waiting  *promise.Promise
	released *promise.Promise

	stolen atomic.Bool
}

func newLock(req *lockRequest) *Lock {
	return &Lock{
		name:     req.name,
		mode:     req.mode,
		clientID: req.clientID,
		env:      req.env,
		waiting:  req.waiting,
		released: req.released,
	}
}

// Name returns the resource name. It panics with the invocation sentinel
// on a nil receiver.
func (l *Lock) Name() string {
	if l == nil {
		panic(weberrors.ErrInvocation)
	}
	return l.name
}

// Mode returns the lock mode. It panics with the invocation sentinel on a
// nil receiver.
func (l *Lock) Mode() Mode {
	if l == nil {
		panic(weberrors.ErrInvocation)
	}
	return l.mode
}

// ClientID returns the owning environment's client identifier. It panics
// with the invocation sentinel on a nil receiver.
func (l *Lock) ClientID() string {
	if l == nil {
		panic(weberrors.ErrInvocation)
	}
	return l.clientID
}
