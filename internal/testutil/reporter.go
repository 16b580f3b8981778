package testutil

import (
	"sort"
	"sync"

	"fim-go/internal/fim"
)

// RecordingReporter keeps every event it receives.
type RecordingReporter struct {
	mu     sync.Mutex
	events []fim.Event
}

func (r *RecordingReporter) Report(e fim.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns the events received so far.
func (r *RecordingReporter) Events() []fim.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]fim.Event(nil), r.events...)
}

// Paths returns the sorted paths of the events of the given kind.
func (r *RecordingReporter) Paths(kind fim.EventKind) []string {
	var paths []string
	for _, e := range r.Events() {
		if e.Kind == kind {
			paths = append(paths, e.Path)
		}
	}
	sort.Strings(paths)
	return paths
}

// Find returns the first event for path of the given kind.
func (r *RecordingReporter) Find(kind fim.EventKind, path string) (fim.Event, bool) {
	for _, e := range r.Events() {
		if e.Kind == kind && e.Path == path {
			return e, true
		}
	}
	return fim.Event{}, false
}

// Reset drops all recorded events.
func (r *RecordingReporter) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
