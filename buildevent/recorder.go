package buildevent

import "sync"

// Recorder is a Sink that keeps every event it receives, in order.
// Safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// LogEvent implements Sink.
func (r *Recorder) LogEvent(ev Event) {
	if ev == nil {
		return
	}
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Count returns the number of recorded events per category.
func (r *Recorder) Count(c Category) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Category() == c {
			n++
		}
	}
	return n
}
