package fim

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyExists is returned by create when the snapshot store exists
	// and overwrite was not requested.
	ErrAlreadyExists = errors.New("snapshot store already exists")

	// ErrStoreNotFound is returned when a mode other than create is asked to
	// open a snapshot store that does not exist.
	ErrStoreNotFound = errors.New("snapshot store not found")
)

// StoreOp identifies the phase of a store operation that failed.
type StoreOp string

const (
	StoreOpInit        StoreOp = "init"
	StoreOpTransaction StoreOp = "transaction"
	StoreOpCommit      StoreOp = "commit"
	StoreOpQuery       StoreOp = "query"
)

// StoreError reports a failure of the underlying transactional store. When
// it is returned from a batch operation, nothing of that batch is visible.
type StoreError struct {
	Op  StoreOp
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// IOError reports a filesystem failure on a specific path.
type IOError struct {
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }
