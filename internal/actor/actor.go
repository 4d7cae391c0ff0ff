// Package actor implements a small typed-mailbox actor runtime: every
// stateful entity in the controller (a player session, a game lobby) runs as
// one actor with a private mailbox, so all mutation of its state happens on
// a single goroutine and callers never take a lock directly.
package actor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// DefaultMailboxCapacity is the per-actor inbound queue depth. Chosen to
// absorb a burst of lobby chatter (slot updates, ping reports) without
// unbounded growth.
const DefaultMailboxCapacity = 256

// Started is delivered once, before any other message, after an actor's
// mailbox loop is running.
type Started struct{}

// Stopping is delivered once a Stop has been requested, before the mailbox
// loop exits; it is the last chance to flush state.
type Stopping struct{}

// Critical marks a message that must never be dropped by backpressure (e.g.
// a start-handshake ack). Messages that don't implement it are subject to
// drop-oldest backpressure when a mailbox is full.
type Critical interface {
	Critical() bool
}

// PID identifies one running actor within an Engine.
type PID struct {
	ID string
}

func (p PID) String() string { return p.ID }

// Producer constructs a fresh Receiver for a newly spawned actor.
type Producer func() Receiver

// Receiver processes one message at a time on its actor's goroutine.
// Receive must not block indefinitely: a slow actor stalls only its own
// mailbox, not its siblings', but the engine has no cross-actor deadline.
type Receiver interface {
	Receive(ctx *Context, msg any)
}

type envelope struct {
	msg     any
	replyTo chan any
}

type cell struct {
	pid      PID
	receiver Receiver
	mailbox  chan envelope
	done     chan struct{}
}

// Engine is a registry of running actors, keyed by PID. Actors are spawned
// on first reference via GetOrSpawn; nothing pre-populates the registry.
type Engine struct {
	mu    sync.RWMutex
	cells map[string]*cell
}

// NewEngine returns an empty, ready-to-use Engine.
func NewEngine() *Engine {
	return &Engine{cells: make(map[string]*cell)}
}

// GetOrSpawn returns the PID for id, spawning a new actor via produce if one
// isn't already registered. Concurrent callers racing on the same id all
// observe the same, single spawned actor.
func (e *Engine) GetOrSpawn(id string, produce Producer) PID {
	e.mu.Lock()
	defer e.mu.Unlock()

	if c, ok := e.cells[id]; ok {
		return c.pid
	}

	c := &cell{
		pid:     PID{ID: id},
		mailbox: make(chan envelope, DefaultMailboxCapacity),
		done:    make(chan struct{}),
	}
	c.receiver = produce()
	e.cells[id] = c
	go e.run(c)
	return c.pid
}

// Lookup returns the PID for id and whether it is currently registered,
// without spawning.
func (e *Engine) Lookup(id string) (PID, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	c, ok := e.cells[id]
	if !ok {
		return PID{}, false
	}
	return c.pid, true
}

// Stop tells the actor at id to drain Stopping and exit, then removes it
// from the registry. A no-op if id isn't registered.
func (e *Engine) Stop(id string) {
	e.mu.Lock()
	c, ok := e.cells[id]
	if ok {
		delete(e.cells, id)
	}
	e.mu.Unlock()
	if !ok {
		return
	}
	close(c.mailbox)
	<-c.done
}

// Tell enqueues msg for asynchronous delivery to pid. If the mailbox is full
// and msg does not implement Critical, the oldest queued message is dropped
// to make room; a Critical message instead blocks until space frees up or
// ctx is done.
func (e *Engine) Tell(ctx context.Context, pid PID, msg any) error {
	c, ok := e.cellFor(pid)
	if !ok {
		return fmt.Errorf("actor: %s not registered", pid)
	}
	return e.enqueue(ctx, c, envelope{msg: msg})
}

// Ask enqueues msg and blocks for a reply sent via ctx.Reply from the
// actor's Receive call, or until ctx is done.
func (e *Engine) Ask(ctx context.Context, pid PID, msg any) (any, error) {
	c, ok := e.cellFor(pid)
	if !ok {
		return nil, fmt.Errorf("actor: %s not registered", pid)
	}
	reply := make(chan any, 1)
	if err := e.enqueue(ctx, c, envelope{msg: msg, replyTo: reply}); err != nil {
		return nil, err
	}
	select {
	case v := <-reply:
		return v, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (e *Engine) cellFor(pid PID) (*cell, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	c, ok := e.cells[pid.ID]
	return c, ok
}

func (e *Engine) enqueue(ctx context.Context, c *cell, env envelope) error {
	_, critical := env.msg.(Critical)

	select {
	case c.mailbox <- env:
		return nil
	default:
	}

	if critical {
		select {
		case c.mailbox <- env:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	// Drop-oldest: make room for this message rather than block or reject it.
	select {
	case old := <-c.mailbox:
		slog.Warn("actor mailbox full, dropping oldest message", "pid", c.pid, "dropped", fmt.Sprintf("%T", old.msg))
	default:
	}
	select {
	case c.mailbox <- env:
		return nil
	default:
		return fmt.Errorf("actor: %s mailbox still full after drop", c.pid)
	}
}

func (e *Engine) run(c *cell) {
	ctx := &Context{engine: e, self: c.pid}
	e.deliver(ctx, c.receiver, Started{}, nil)

	for env := range c.mailbox {
		e.deliver(ctx, c.receiver, env.msg, env.replyTo)
	}

	e.deliver(ctx, c.receiver, Stopping{}, nil)
	close(c.done)
}

// deliver invokes Receive with panic recovery: one bad message must not take
// the whole actor (and its goroutine) down silently.
func (e *Engine) deliver(ctx *Context, r Receiver, msg any, replyTo chan any) {
	ctx.replyTo = replyTo
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("actor panic recovered", "pid", ctx.self, "panic", rec)
		}
	}()
	r.Receive(ctx, msg)
}

// Context is handed to Receive for the duration of one message.
type Context struct {
	engine  *Engine
	self    PID
	replyTo chan any
}

// Self returns the PID of the actor currently processing a message.
func (c *Context) Self() PID { return c.self }

// Engine returns the owning Engine, for sending to other actors.
func (c *Context) Engine() *Engine { return c.engine }

// Reply answers the in-flight Ask with v. A no-op if the current message was
// sent via Tell (no reply channel) or Reply was already called.
func (c *Context) Reply(v any) {
	if c.replyTo == nil {
		return
	}
	select {
	case c.replyTo <- v:
	default:
	}
	c.replyTo = nil
}
