package locks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	weberrors "github.com/mirkobrombin/go-weblocks/v1/errors"
	"github.com/mirkobrombin/go-weblocks/v1/metrics"
	"github.com/mirkobrombin/go-weblocks/v1/promise"
	"github.com/mirkobrombin/go-weblocks/v1/runtime"
)

// reservedPrefix marks resource names reserved for internal use.
const reservedPrefix = "-"

var tracer = otel.Tracer("github.com/mirkobrombin/go-weblocks/v1/locks")

// Request submits a lock request for name on behalf of env and returns the
// released handle: it settles with the callback's result once the lock is
// released, or with the abort reason when the request is cancelled or the
// holder is preempted. Validation errors are returned synchronously; no
// state is mutated until every check passes.
func (m *Manager) Request(env *runtime.Environment, name string, opts *RequestOptions, cb Callback) (*promise.Promise, error) {
	o := RequestOptions{}
	if opts != nil {
		o = *opts
	}

	_, span := tracer.Start(context.Background(), "Manager.Request", trace.WithAttributes(
		attribute.String("weblocks.resource", name),
		attribute.String("weblocks.mode", string(o.Mode)),
		attribute.Bool("weblocks.steal", o.Steal),
		attribute.Bool("weblocks.if_available", o.IfAvailable),
	))
	defer span.End()

	if cb == nil {
		return nil, fmt.Errorf("%w: callback must be non-nil", weberrors.ErrArgumentType)
	}
	if env == nil {
		return nil, fmt.Errorf("%w: environment must be non-nil", weberrors.ErrArgumentType)
	}
	if o.Mode == "" {
		o.Mode = ModeExclusive
	}
	if strings.HasPrefix(name, reservedPrefix) {
		return nil, fmt.Errorf("%w: names starting with %q are reserved", weberrors.ErrUnsupported, reservedPrefix)
	}
	if o.IfAvailable && o.Steal {
		return nil, fmt.Errorf("%w: ifAvailable and steal are mutually exclusive", weberrors.ErrUnsupported)
	}
	if o.Mode != ModeShared && o.Mode != ModeExclusive {
		return nil, fmt.Errorf("%w: unknown mode %q", weberrors.ErrArgumentValue, o.Mode)
	}
	if o.Steal && o.Mode != ModeExclusive {
		return nil, fmt.Errorf("%w: steal requires exclusive mode", weberrors.ErrUnsupported)
	}
	if o.Signal != nil && (o.Steal || o.IfAvailable) {
		return nil, fmt.Errorf("%w: signal cannot be combined with steal or ifAvailable", weberrors.ErrUnsupported)
	}

	if o.Signal != nil {
		select {
		case <-o.Signal.Done():
			out := promise.New()
			out.Reject(abortReason(o.Signal))
			metrics.AbortCounter.Inc()
			return out, nil
		default:
		}
		return m.requestWithSignal(env, name, o, cb), nil
	}

	internal := m.submit(env, name, o.Mode, o.Steal, o.IfAvailable, cb)
	out := promise.New()
	go func() {
		<-internal.Done()
		settleOutward(out, internal)
	}()
	return out, nil
}

// requestWithSignal races the grant against the signal. Until the callback
// body begins, a firing signal rejects the outward handle with its reason
// and the callback never runs; once the callback has begun the signal is
// ignored and the outward handle follows the callback's settlement.
func (m *Manager) requestWithSignal(env *runtime.Environment, name string, o RequestOptions, cb Callback) *promise.Promise {
	out := promise.New()

	var gate sync.Mutex
	var granted, aborted bool

	guarded := func(l *Lock) (any, error) {
		gate.Lock()
		if aborted {
			gate.Unlock()
			return nil, abortReason(o.Signal)
		}
		// The signal is detached from here on.
		granted = true
		gate.Unlock()
		return cb(l)
	}

	internal := m.submit(env, name, o.Mode, false, false, guarded)

	detach := make(chan struct{})
	go func() {
		select {
		case <-o.Signal.Done():
			gate.Lock()
			if granted {
				gate.Unlock()
				return
			}
			aborted = true
			gate.Unlock()
			if out.Reject(abortReason(o.Signal)) {
				metrics.AbortCounter.Inc()
			}
		case <-detach:
		}
	}()
	go func() {
		<-internal.Done()
		close(detach)
		settleOutward(out, internal)
	}()
	return out
}

// settleOutward mirrors the internal released handle onto the outward one,
// rewriting the stolen sentinel to the aborted kind.
func settleOutward(out, internal *promise.Promise) {
	v, err := internal.Result()
	switch {
	case err == nil:
		out.Resolve(v)
	case errors.Is(err, errLockStolen):
		if out.Reject(weberrors.ErrAborted) {
			metrics.AbortCounter.Inc()
		}
	default:
		out.Reject(err)
	}
}

// abortReason maps a fired signal to its rejection reason: the stored cause
// when one was supplied, the synthetic aborted error otherwise.
func abortReason(sig context.Context) error {
	if cause := context.Cause(sig); cause != nil && !errors.Is(cause, context.Canceled) {
		return cause
	}
	return weberrors.ErrAborted
}

// Request submits a lock request through the process-wide manager.
func Request(env *runtime.Environment, name string, opts *RequestOptions, cb Callback) (*promise.Promise, error) {
	return Current().Request(env, name, opts, cb)
}

// Query snapshots the process-wide manager's state for env.
func Query(env *runtime.Environment) *promise.Promise {
	return Current().Query(env)
}
