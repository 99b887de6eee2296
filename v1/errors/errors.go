package errors

import "errors"

var (
	// ErrArgumentType reports an argument of a disallowed kind, such as a
	// nil callback or a nil environment.
	ErrArgumentType = errors.New("invalid argument type")
	// ErrArgumentValue reports an argument outside its permitted set, such
	// as an unknown lock mode.
	ErrArgumentValue = errors.New("invalid argument value")
	// ErrUnsupported reports an option combination the locking contract
	// forbids, such as a reserved resource name or steal together with
	// ifAvailable.
	ErrUnsupported = errors.New("unsupported operation")
	// ErrInvocation reports a descriptor accessor invoked on a receiver
	// that did not originate from a grant.
	ErrInvocation = errors.New("invalid invocation receiver")
	// ErrAborted reports a request cancelled through its signal or a holder
	// preempted by a steal.
	ErrAborted = errors.New("request aborted")

	ErrTimeout          = errors.New("timeout")
	ErrConnectionClosed = errors.New("connection closed")
)
