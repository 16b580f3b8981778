package app

import "fim-go/internal/fim"

// Operation tracks the CLI command being run. Only commands that modify
// the snapshot store are recorded as runs; the others stay in memory.
type Operation struct {
	Name   string
	run    *fim.Run
	counts fim.Counts
	err    error
}

// Mutating operations record a run and archive the baseline on close.
const (
	OpCreate = "create"
	OpUpdate = "update"
)

// OpBaselinePush archives the store without walking; it needs write access
// for the snapshot copy but records no run.
const OpBaselinePush = "baseline-push"

func NewOperation(name string) *Operation {
	return &Operation{Name: name}
}

// Mutating reports whether the operation modifies the snapshot store.
func (op *Operation) Mutating() bool {
	return op.Name == OpCreate || op.Name == OpUpdate
}

// Persisted reports whether a run was recorded for this operation.
func (op *Operation) Persisted() bool {
	return op.run != nil && op.run.Seq != 0
}

// Fail marks the operation as failed. The first error is kept.
func (op *Operation) Fail(err error) {
	if op.err == nil {
		op.err = err
	}
}
