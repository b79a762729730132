package service

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MKhiriev/go-vault-sync/internal/logger"
)

type countingSyncer struct {
	calls atomic.Int64
}

func (c *countingSyncer) SyncPass(ctx context.Context) error {
	c.calls.Add(1)
	return nil
}

func TestSyncJob_RunsImmediatelyAndOnTicker(t *testing.T) {
	syncer := &countingSyncer{}
	job := NewSyncJob(syncer, nil, logger.Nop())
	defer job.Stop()

	job.Start(context.Background(), 20*time.Millisecond)

	require.Eventually(t, func() bool {
		return syncer.calls.Load() >= 3
	}, 5*time.Second, 5*time.Millisecond)
}

func TestSyncJob_ChangeNotificationTriggersPass(t *testing.T) {
	syncer := &countingSyncer{}
	changes := make(chan struct{}, 1)
	job := NewSyncJob(syncer, changes, logger.Nop())
	defer job.Stop()

	// Interval long enough that only the initial pass and change
	// notifications drive counts.
	job.Start(context.Background(), time.Hour)

	require.Eventually(t, func() bool {
		return syncer.calls.Load() == 1
	}, 5*time.Second, 5*time.Millisecond)

	changes <- struct{}{}
	require.Eventually(t, func() bool {
		return syncer.calls.Load() == 2
	}, 5*time.Second, 5*time.Millisecond)
}

func TestSyncJob_StopBlocksUntilGoroutineExits(t *testing.T) {
	syncer := &countingSyncer{}
	job := NewSyncJob(syncer, nil, logger.Nop())

	job.Start(context.Background(), 10*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	job.Stop()

	after := syncer.calls.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, after, syncer.calls.Load())
}

func TestSyncJob_StopWithoutStartIsSafe(t *testing.T) {
	job := NewSyncJob(&countingSyncer{}, nil, logger.Nop())
	job.Stop()
	job.Stop()
}

func TestSyncJob_RestartReplacesPreviousRun(t *testing.T) {
	syncer := &countingSyncer{}
	job := NewSyncJob(syncer, nil, logger.Nop())
	defer job.Stop()

	job.Start(context.Background(), time.Hour)
	job.Start(context.Background(), time.Hour)

	// Both starts run their initial pass; only one goroutine remains.
	require.Eventually(t, func() bool {
		return syncer.calls.Load() == 2
	}, 5*time.Second, 5*time.Millisecond)

	job.Stop()
	assert.Equal(t, int64(2), syncer.calls.Load())
}
