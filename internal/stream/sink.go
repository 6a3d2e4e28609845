package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
)

var ErrStreamClosed = errors.New("stream already terminated")

// Sink receives events in emission order.
type Sink interface {
	Emit(ctx context.Context, ev Event) error
}

type SinkFunc func(ctx context.Context, ev Event) error

func (f SinkFunc) Emit(ctx context.Context, ev Event) error { return f(ctx, ev) }

type lineWriter struct {
	mu    sync.Mutex
	w     io.Writer
	flush func()
}

func newLineWriter(w io.Writer) *lineWriter {
	lw := &lineWriter{w: w, flush: func() {}}
	if f, ok := w.(http.Flusher); ok {
		lw.flush = f.Flush
	}
	return lw
}

func (lw *lineWriter) write(ctx context.Context, prefix string, ev Event, suffix string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	lw.mu.Lock()
	defer lw.mu.Unlock()
	if _, err := fmt.Fprintf(lw.w, "%s%s%s", prefix, b, suffix); err != nil {
		return err
	}
	lw.flush()
	return nil
}

// NDJSONWriter writes one JSON object per line and flushes after each event.
type NDJSONWriter struct{ lw *lineWriter }

func NewNDJSONWriter(w io.Writer) *NDJSONWriter { return &NDJSONWriter{lw: newLineWriter(w)} }

func (n *NDJSONWriter) Emit(ctx context.Context, ev Event) error {
	return n.lw.write(ctx, "", ev, "\n")
}

// SSEWriter frames each event as a server-sent event data line.
type SSEWriter struct{ lw *lineWriter }

func NewSSEWriter(w io.Writer) *SSEWriter { return &SSEWriter{lw: newLineWriter(w)} }

func (s *SSEWriter) Emit(ctx context.Context, ev Event) error {
	return s.lw.write(ctx, "data: ", ev, "\n\n")
}

// Heartbeat writes an SSE comment line; clients ignore it.
func (s *SSEWriter) Heartbeat() error {
	s.lw.mu.Lock()
	defer s.lw.mu.Unlock()
	if _, err := io.WriteString(s.lw.w, ": ping\n\n"); err != nil {
		return err
	}
	s.lw.flush()
	return nil
}

// SetSSEHeaders prepares a response for an event stream behind proxies.
func SetSSEHeaders(h http.Header) {
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
}

// Recorder keeps every event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Emit(_ context.Context, ev Event) error {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	return nil
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func (r *Recorder) Types() []EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventType, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}

// Last returns the most recent event, or false when nothing was recorded.
func (r *Recorder) Last() (Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return Event{}, false
	}
	return r.events[len(r.events)-1], true
}

// Concat joins the content of every event of type t in arrival order.
func (r *Recorder) Concat(t EventType) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var s string
	for _, ev := range r.events {
		if ev.Type == t {
			s += ev.Content
		}
	}
	return s
}

// Tee emits to every sink in order and returns the first error.
func Tee(sinks ...Sink) Sink {
	return SinkFunc(func(ctx context.Context, ev Event) error {
		var first error
		for _, s := range sinks {
			if err := s.Emit(ctx, ev); err != nil && first == nil {
				first = err
			}
		}
		return first
	})
}
