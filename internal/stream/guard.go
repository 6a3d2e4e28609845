package stream

import (
	"context"
	"errors"
	"sync"
)

// Guard enforces the terminal contract on a sink: at most one complete/error event,
// and nothing after it.
type Guard struct {
	mu       sync.Mutex
	sink     Sink
	terminal *Event
}

func NewGuard(sink Sink) *Guard {
	return &Guard{sink: sink}
}

func (g *Guard) Emit(ctx context.Context, ev Event) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.terminal != nil {
		return ErrStreamClosed
	}
	if ev.IsTerminal() {
		cp := ev
		g.terminal = &cp
	}
	return g.sink.Emit(ctx, ev)
}

// Terminated reports whether a terminal event was emitted.
func (g *Guard) Terminated() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.terminal != nil
}

// Terminal returns the terminal event, if any.
func (g *Guard) Terminal() (Event, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.terminal == nil {
		return Event{}, false
	}
	return *g.terminal, true
}

// Finish emits an error event when the stream ended without a terminal event.
// cause supplies the message; nil yields a generic one.
func (g *Guard) Finish(ctx context.Context, cause error) error {
	if g.Terminated() {
		return nil
	}
	msg := "stream ended unexpectedly"
	if cause != nil {
		msg = cause.Error()
	}
	err := g.Emit(context.WithoutCancel(ctx), Error(msg))
	if errors.Is(err, ErrStreamClosed) {
		return nil
	}
	return err
}
