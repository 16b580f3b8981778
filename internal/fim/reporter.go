package fim

import (
	"fmt"

	"fim-go/internal/model"
)

// EventKind classifies a reported event.
type EventKind int

const (
	// update
	EventAdded   EventKind = iota // path stored for the first time
	EventUpdated                  // stored record replaced by a different one
	EventPruned                   // path no longer on disk, removed from the store

	// check and compare
	EventUnknown   // path on disk but not in the store
	EventChanged   // path differs from the store
	EventUnchanged // path matches the store
	EventRemoved   // path in the store but not seen on disk

	// list
	EventListed

	// reputation
	EventScore        // hash known to the reputation service
	EventUnknownHash  // hash not known to the reputation service
	EventLookupFailed // lookup failed after retries
)

func (k EventKind) String() string {
	switch k {
	case EventAdded:
		return "added"
	case EventUpdated:
		return "updated"
	case EventPruned:
		return "pruned"
	case EventUnknown:
		return "unknown"
	case EventChanged:
		return "changed"
	case EventUnchanged:
		return "unchanged"
	case EventRemoved:
		return "removed"
	case EventListed:
		return "listed"
	case EventScore:
		return "score"
	case EventUnknownHash:
		return "unknown-hash"
	case EventLookupFailed:
		return "lookup-failed"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event is a single per-path observation produced by a service operation.
// Only the fields relevant to Kind are set.
type Event struct {
	Kind   EventKind
	Path   string
	Record model.Record // current record (new, listed, or the removed one)
	Change *Change      // EventChanged and EventUpdated
	Score  uint8        // EventScore
	Err    error        // EventLookupFailed
}

// Reporter receives events. Operations call it from a single goroutine.
type Reporter interface {
	Report(Event)
}

// ReporterFunc adapts a function to the Reporter interface.
type ReporterFunc func(Event)

func (f ReporterFunc) Report(e Event) { f(e) }

// LogReporter writes events to a Logger. Severity follows what each event
// means for integrity: unexpected differences are errors, drift the
// operator should look at is a warning, routine bookkeeping is info.
type LogReporter struct {
	logger Logger
}

func NewLogReporter(logger Logger) *LogReporter {
	return &LogReporter{logger: logger}
}

func (r *LogReporter) Report(e Event) {
	switch e.Kind {
	case EventAdded:
		r.logger.Info("New file", "path", e.Path, "record", e.Record.String())
	case EventUpdated:
		r.logger.Info("File updated", "path", e.Path, "old", e.Change.Old.String(), "new", e.Change.New.String())
	case EventPruned:
		r.logger.Info("Removing file", "path", e.Path)
	case EventUnknown:
		r.logger.Warn("New file", "path", e.Path, "record", e.Record.String())
	case EventChanged:
		if e.Change.Structural {
			r.logger.Error(fmt.Sprintf("%s changed to %s", e.Change.Old.Kind, e.Change.New.Kind),
				"path", e.Path, "old", e.Change.Old.String(), "new", e.Change.New.String())
			return
		}
		r.logger.Error(fmt.Sprintf("%s changed", e.Change.New.Kind), "path", e.Path, "changes", e.Change.Description())
	case EventUnchanged:
		r.logger.Debug("File ok", "path", e.Path)
	case EventRemoved:
		r.logger.Warn("File removed", "path", e.Path, "record", e.Record.String())
	case EventListed:
		r.logger.Info("File", "path", e.Path, "record", e.Record.String())
	case EventScore:
		r.logger.Info("hash found", "path", e.Path, "hash", e.Record.Hash.String(), "score", e.Score)
	case EventUnknownHash:
		r.logger.Warn("hash not found", "path", e.Path, "hash", e.Record.Hash.String())
	case EventLookupFailed:
		r.logger.Error("hash lookup failed", "path", e.Path, "hash", e.Record.Hash.String(), "error", e.Err)
	}
}
