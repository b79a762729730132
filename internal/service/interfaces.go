package service

import (
	"context"
	"time"
)

// Syncer is one container's diff-pass entry point, driven by the periodic
// sync job and by watcher notifications.
type Syncer interface {
	SyncPass(ctx context.Context) error
}

// SyncJob drives a Syncer on a schedule. Start is idempotent in the sense
// that it restarts the job; Stop blocks until the job's goroutine has exited.
type SyncJob interface {
	Start(ctx context.Context, interval time.Duration)
	Stop()
}
