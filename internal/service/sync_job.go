package service

import (
	"context"
	"sync"
	"time"

	"github.com/MKhiriev/go-vault-sync/internal/logger"
)

type syncJob struct {
	syncer  Syncer
	changes <-chan struct{}
	log     *logger.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSyncJob creates a syncJob that runs syncer.SyncPass on a ticker and
// additionally whenever the changes channel fires (filesystem watcher
// notifications). changes may be nil, in which case only the ticker drives
// passes. The job is idle until Start is called.
func NewSyncJob(syncer Syncer, changes <-chan struct{}, log *logger.Logger) SyncJob {
	return &syncJob{syncer: syncer, changes: changes, log: log}
}

// Start implements SyncJob. It stops any previously running job, then
// launches a background goroutine that runs a sync pass every interval and on
// each change notification. If interval is zero or negative it defaults to 30
// seconds. The goroutine exits when ctx is cancelled or Stop is called.
func (j *syncJob) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}

	j.Stop()

	j.mu.Lock()
	jobCtx, cancel := context.WithCancel(ctx)
	j.cancel = cancel
	j.wg.Add(1)
	j.mu.Unlock()

	go func() {
		defer j.wg.Done()
		t := time.NewTicker(interval)
		defer t.Stop()

		changes := j.changes
		j.pass(jobCtx)
		for {
			select {
			case <-jobCtx.Done():
				return
			case <-t.C:
				j.pass(jobCtx)
			case _, ok := <-changes:
				if !ok {
					// Watcher gone, keep running on the ticker alone.
					changes = nil
					continue
				}
				j.pass(jobCtx)
			}
		}
	}()
}

func (j *syncJob) pass(ctx context.Context) {
	if err := j.syncer.SyncPass(ctx); err != nil && ctx.Err() == nil {
		j.log.Error().Err(err).Msg("sync pass failed")
	}
}

// Stop implements SyncJob. It cancels the background goroutine's context and
// blocks until the goroutine has fully exited. Safe to call when the job is
// not running (no-op in that case).
func (j *syncJob) Stop() {
	j.mu.Lock()
	cancel := j.cancel
	j.cancel = nil
	j.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	j.wg.Wait()
}
