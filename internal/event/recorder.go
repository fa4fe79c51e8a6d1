package event

import (
	"sync"
	"time"
)

// Recorded is one event captured by a Recorder.
type Recorded struct {
	Name    string
	Payload any
}

// Recorder is an Emitter that keeps every event in memory. Used by tests
// across packages.
type Recorder struct {
	mu     sync.Mutex
	events []Recorded
	notify chan struct{}
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{notify: make(chan struct{}, 1)}
}

// Emit implements Emitter.
func (r *Recorder) Emit(name string, payload any) {
	r.mu.Lock()
	r.events = append(r.events, Recorded{Name: name, Payload: payload})
	r.mu.Unlock()

	select {
	case r.notify <- struct{}{}:
	default:
	}
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Recorded {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Recorded, len(r.events))
	copy(out, r.events)
	return out
}

// Named returns the string payloads of events with the given name, in
// emission order. Non-string payloads are skipped.
func (r *Recorder) Named(name string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, ev := range r.events {
		if ev.Name != name {
			continue
		}
		if s, ok := ev.Payload.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// Count returns how many events with the given name were recorded.
func (r *Recorder) Count(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Name == name {
			n++
		}
	}
	return n
}

// WaitFor blocks until at least n events named name were recorded or the
// timeout elapses. It reports whether the count was reached.
func (r *Recorder) WaitFor(name string, n int, timeout time.Duration) bool {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		if r.Count(name) >= n {
			return true
		}
		select {
		case <-r.notify:
		case <-deadline.C:
			return r.Count(name) >= n
		}
	}
}

// Reset drops all recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}

var _ Emitter = (*Recorder)(nil)
