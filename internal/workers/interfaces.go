// Package workers provides abstractions for managing and running
// background workers in the application.
// It defines the Worker interface and a Workers aggregate that allows
// running multiple workers in a unified way.
package workers

import "context"

// Worker is the interface that must be implemented by any background worker.
// It defines a single Run method that starts the worker's execution.
//
// Implementations are expected to block until ctx is cancelled and to have
// fully stopped by the time Run returns.
type Worker interface {
	Run(ctx context.Context)
}

// WorkerFunc adapts a plain function to the Worker interface.
type WorkerFunc func(ctx context.Context)

// Run implements Worker.
func (f WorkerFunc) Run(ctx context.Context) {
	f(ctx)
}
