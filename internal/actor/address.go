package actor

import "context"

// Address is a type-safe handle to an actor that only accepts messages of
// type M. It is a thin wrapper over Engine+PID: the engine's mailbox still
// carries `any`, but every call site that holds an Address[M] can only ever
// construct well-typed sends, which is where the mistakes actually happen
// (e.g. sending a game message to a player actor).
type Address[M any] struct {
	engine *Engine
	pid    PID
}

// NewAddress wraps pid for messages of type M.
func NewAddress[M any](engine *Engine, pid PID) Address[M] {
	return Address[M]{engine: engine, pid: pid}
}

// PID returns the underlying actor identity.
func (a Address[M]) PID() PID { return a.pid }

// Tell enqueues msg without waiting for it to be processed.
func (a Address[M]) Tell(ctx context.Context, msg M) error {
	return a.engine.Tell(ctx, a.pid, msg)
}

// Ask enqueues msg and waits for a reply of type R.
func Ask[M, R any](ctx context.Context, a Address[M], msg M) (R, error) {
	var zero R
	v, err := a.engine.Ask(ctx, a.pid, msg)
	if err != nil {
		return zero, err
	}
	r, ok := v.(R)
	if !ok {
		return zero, errUnexpectedReplyType(v)
	}
	return r, nil
}

func errUnexpectedReplyType(v any) error {
	return &unexpectedReplyError{got: v}
}

type unexpectedReplyError struct {
	got any
}

func (e *unexpectedReplyError) Error() string {
	return "actor: unexpected reply type"
}
