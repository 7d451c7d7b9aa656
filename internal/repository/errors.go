package repository

import (
	"errors"
	"fmt"
)

// ErrNotFound indicates an entity was not located.
var ErrNotFound = errors.New("repository: not found")

// ErrDuplicate indicates a write collided with a unique key.
var ErrDuplicate = errors.New("repository: duplicate key")

// MissingDocument reports a push whose target document does not exist.
func MissingDocument(collection, id string) error {
	return fmt.Errorf("%w: %s/%s", ErrNotFound, collection, id)
}

// StageError reports the step of a staged write that failed. Steps listed in
// Applied were committed before the failure and are not rolled back.
type StageError struct {
	FailedStep int
	Applied    []int
	Cause      error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("repository: staged write failed at step %d (applied %v): %v", e.FailedStep, e.Applied, e.Cause)
}

func (e *StageError) Unwrap() error { return e.Cause }
