package scheduler

import "errors"

var (
	// ErrDuplicateTask means a non-terminal task already holds the same
	// (container, path) key. The per-path mutual exclusion invariant
	// rejects the new submission; the next diff pass re-derives it if it
	// is still needed.
	ErrDuplicateTask = errors.New("duplicate task for path")
	// ErrUnknownContainer means the task's container is not registered
	// with the scheduler (never added, or already deregistered).
	ErrUnknownContainer = errors.New("container not registered")
)
