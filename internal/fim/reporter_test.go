package fim

import (
	"errors"
	"testing"

	"fim-go/internal/model"
)

type levelLogger struct {
	NopLogger
	levels map[string]string // msg -> level
}

func (l *levelLogger) Debug(msg string, _ ...any) { l.levels[msg] = "debug" }
func (l *levelLogger) Info(msg string, _ ...any)  { l.levels[msg] = "info" }
func (l *levelLogger) Warn(msg string, _ ...any)  { l.levels[msg] = "warn" }
func (l *levelLogger) Error(msg string, _ ...any) { l.levels[msg] = "error" }

func TestLogReporter_Severity(t *testing.T) {
	file := fileRec(1, 0o100644, 0, 1)
	content, _ := Diff(file, fileRec(2, 0o100644, 0, 1), false)
	variant, _ := Diff(file, model.NewDirRecord(file.Meta), false)

	tests := []struct {
		event Event
		msg   string
		level string
	}{
		{Event{Kind: EventAdded, Path: "/a", Record: file}, "New file", "info"},
		{Event{Kind: EventUnknown, Path: "/a", Record: file}, "New file", "warn"},
		{Event{Kind: EventChanged, Path: "/a", Change: &content}, "File changed", "error"},
		{Event{Kind: EventChanged, Path: "/a", Change: &variant}, "File changed to Directory", "error"},
		{Event{Kind: EventUnchanged, Path: "/a"}, "File ok", "debug"},
		{Event{Kind: EventRemoved, Path: "/a", Record: file}, "File removed", "warn"},
		{Event{Kind: EventPruned, Path: "/a"}, "Removing file", "info"},
		{Event{Kind: EventUnknownHash, Path: "/a", Record: file}, "hash not found", "warn"},
		{Event{Kind: EventLookupFailed, Path: "/a", Record: file, Err: errors.New("boom")}, "hash lookup failed", "error"},
	}

	for _, tt := range tests {
		t.Run(tt.event.Kind.String(), func(t *testing.T) {
			logger := &levelLogger{levels: make(map[string]string)}
			NewLogReporter(logger).Report(tt.event)
			if got := logger.levels[tt.msg]; got != tt.level {
				t.Errorf("level of %q = %q, want %q (logged: %v)", tt.msg, got, tt.level, logger.levels)
			}
		})
	}
}
