package events

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

// Type is the kind of a progress-stream event
type Type string

const (
	TypeProgress Type = "progress"
	TypeComplete Type = "complete"
	TypeError    Type = "error"
)

// Event is one entry of the ordered, append-only progress stream
type Event struct {
	Type Type
	Data interface{}
}

// Progress is the payload of a progress event
type Progress struct {
	Stage    string `json:"stage"`
	Message  string `json:"message"`
	Progress int    `json:"progress"`
}

// Complete is the payload of the terminal success event
type Complete struct {
	Status           string `json:"status"`
	TranslatedVideo  string `json:"translated_video"`
	OriginalLanguage string `json:"original_language"`
	TargetLanguage   string `json:"target_language"`
	Progress         int    `json:"progress"`
}

// Failure is the payload of the terminal error event
type Failure struct {
	Message  string `json:"message"`
	Progress int    `json:"progress"`
}

// Reporter receives progress updates from a running pipeline
type Reporter interface {
	Progress(stage, message string, percent int)
}

// Stream delivers events to one consumer. Progress must strictly increase,
// exactly one terminal event is accepted, and nothing follows it. Once the
// consumer's context ends, events are dropped instead of blocking the run.
type Stream struct {
	ctx    context.Context
	ch     chan Event
	mu     sync.Mutex
	last   int
	closed bool
}

// NewStream creates a new Stream instance bound to the consumer's context
func NewStream(ctx context.Context, buffer int) *Stream {
	return &Stream{
		ctx:  ctx,
		ch:   make(chan Event, buffer),
		last: -1,
	}
}

// Events returns the channel closed after the terminal event
func (s *Stream) Events() <-chan Event {
	return s.ch
}

// Progress emits a progress event unless it does not advance the percentage
func (s *Stream) Progress(stage, message string, percent int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || percent <= s.last || percent < 0 || percent > 100 {
		return
	}
	s.last = percent
	s.send(Event{Type: TypeProgress, Data: Progress{Stage: stage, Message: message, Progress: percent}})
}

// Complete emits the terminal success event and closes the stream
func (s *Stream) Complete(payload Complete) bool {
	payload.Status = "success"
	payload.Progress = 100
	return s.terminate(Event{Type: TypeComplete, Data: payload})
}

// Fail emits the terminal error event and closes the stream
func (s *Stream) Fail(message string) bool {
	return s.terminate(Event{Type: TypeError, Data: Failure{Message: message, Progress: 0}})
}

// Done reports whether a terminal event has been emitted
func (s *Stream) Done() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Stream) terminate(ev Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	s.send(ev)
	s.closed = true
	close(s.ch)
	return true
}

// send must be called with mu held
func (s *Stream) send(ev Event) {
	select {
	case s.ch <- ev:
	case <-s.ctx.Done():
	}
}

// WriteSSE encodes ev as "event: <type>\ndata: <json>\n\n"
func WriteSSE(w io.Writer, ev Event) error {
	data, err := json.Marshal(ev.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", ev.Type, err)
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data); err != nil {
		return fmt.Errorf("failed to write %s event: %w", ev.Type, err)
	}
	return nil
}

// Discard is a Reporter that ignores every update
type Discard struct{}

func (Discard) Progress(stage, message string, percent int) {}
