// Package scheduler executes sync tasks under a global concurrency bound
// while enforcing the engine's core invariant: at most one non-terminal task
// per (container, path) pair. Transient failures re-enter through an
// exponential backoff with jitter; quota-exceeded responses defer every
// upload of the affected container for a cooldown window. Both delays share
// one ready-at queue driven by an injectable clock, so timing is testable
// with a fake clock.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/sethvargo/go-retry"

	"github.com/MKhiriev/go-vault-sync/internal/adapter"
	"github.com/MKhiriev/go-vault-sync/internal/config"
	"github.com/MKhiriev/go-vault-sync/internal/logger"
	"github.com/MKhiriev/go-vault-sync/models"
)

// Executor performs the actual I/O for one task. Each container registers its
// own executor (its sync pool). Execute must honor ctx cancellation and must
// persist the task's index entry before returning nil; a canceled execution
// performs no partial index mutation.
type Executor interface {
	Execute(ctx context.Context, task *models.Task) error

	// TaskFinished is called after every terminal transition (done,
	// failed, canceled) with a copy of the task. It runs outside the
	// scheduler lock and must not block.
	TaskFinished(task models.Task)
}

type pathKey struct {
	containerID string
	path        string
}

type taskEntry struct {
	task    *models.Task
	exec    Executor
	backoff retry.Backoff

	readyAt   time.Time
	heapIndex int

	cancel context.CancelFunc
}

type containerState struct {
	exec   Executor
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Scheduler admits, deduplicates, sequences, retries, and cancels sync
// tasks. One instance serves all containers.
type Scheduler struct {
	cfg   config.Sync
	clock clockwork.Clock
	log   *logger.Logger

	mu         sync.Mutex
	runCtx     context.Context
	containers map[string]*containerState
	byKey      map[pathKey]*taskEntry
	high       []*taskEntry // conflict and delete tasks, ahead of transfers
	normal     []*taskEntry
	delayed    delayedQueue
	cooldown   map[string]time.Time // containerID → uploads deferred until
	running    int

	wake chan struct{}
}

// New constructs a Scheduler. Run must be called before tasks execute.
func New(cfg config.Sync, clock clockwork.Clock, log *logger.Logger) *Scheduler {
	return &Scheduler{
		cfg:        cfg,
		clock:      clock,
		log:        log,
		containers: make(map[string]*containerState),
		byKey:      make(map[pathKey]*taskEntry),
		cooldown:   make(map[string]time.Time),
		wake:       make(chan struct{}, 1),
	}
}

// RegisterContainer makes containerID eligible for task submission, with exec
// executing its tasks. Re-registering an active container is a no-op.
func (s *Scheduler) RegisterContainer(containerID string, exec Executor) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.containers[containerID]; ok {
		return
	}

	parent := s.runCtx
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	s.containers[containerID] = &containerState{exec: exec, ctx: ctx, cancel: cancel}
}

// DeregisterContainer cancels every outstanding task for containerID
// (pending and delayed ones become canceled immediately, running ones get
// their context canceled) and blocks until the running ones have returned.
// The container's index store is untouched: a canceled task performs no index
// mutation.
func (s *Scheduler) DeregisterContainer(containerID string) {
	s.mu.Lock()
	cs, ok := s.containers[containerID]
	if !ok {
		s.mu.Unlock()
		return
	}
	delete(s.containers, containerID)
	delete(s.cooldown, containerID)

	var canceled []*taskEntry
	for k, e := range s.byKey {
		if k.containerID != containerID {
			continue
		}
		delete(s.byKey, k)
		if e.task.State == models.TaskStateRunning {
			continue // context cancellation handles it
		}
		if e.task.State.Terminal() {
			continue
		}
		s.delayed.remove(e)
		e.task.State = models.TaskStateCanceled
		e.task.FinishedAt = s.clock.Now()
		canceled = append(canceled, e)
	}
	s.mu.Unlock()

	cs.cancel()
	cs.wg.Wait()

	seen := make(map[string]bool, len(canceled))
	for _, e := range canceled {
		if seen[e.task.ID] {
			continue
		}
		seen[e.task.ID] = true
		cs.exec.TaskFinished(*e.task)
	}
	s.signal()
}

// Submit admits one task descriptor. It returns ErrDuplicateTask when a
// non-terminal task already holds the same (container, path) key (for move
// tasks both the source and destination paths are keyed) and
// ErrUnknownContainer for unregistered containers. Uploads submitted during a
// quota cooldown go straight to the delayed queue.
func (s *Scheduler) Submit(spec models.TaskSpec) (*models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cs, ok := s.containers[spec.ContainerID]
	if !ok {
		return nil, ErrUnknownContainer
	}

	keys := []pathKey{{spec.ContainerID, spec.Path}}
	if spec.Kind == models.TaskMove && spec.DestPath != "" {
		keys = append(keys, pathKey{spec.ContainerID, spec.DestPath})
	}
	for _, k := range keys {
		if _, busy := s.byKey[k]; busy {
			return nil, ErrDuplicateTask
		}
	}

	task := &models.Task{
		ID:          uuid.NewString(),
		ContainerID: spec.ContainerID,
		Path:        spec.Path,
		DestPath:    spec.DestPath,
		Kind:        spec.Kind,
		State:       models.TaskStatePending,
		CreatedAt:   s.clock.Now(),
	}

	e := &taskEntry{
		task:      task,
		exec:      cs.exec,
		backoff:   s.newBackoff(),
		heapIndex: -1,
	}
	for _, k := range keys {
		s.byKey[k] = e
	}

	if until, cooling := s.cooldown[spec.ContainerID]; cooling &&
		spec.Kind == models.TaskUpload && s.clock.Now().Before(until) {
		s.deferLocked(e, until)
	} else {
		s.enqueueLocked(e)
	}

	s.signalLocked()
	return task, nil
}

// Run drives admission until ctx is done. Containers registered before Run
// are re-parented onto ctx.
func (s *Scheduler) Run(ctx context.Context) {
	s.mu.Lock()
	s.runCtx = ctx
	s.mu.Unlock()

	for {
		s.mu.Lock()
		now := s.clock.Now()
		s.promoteDueLocked(now)

		for s.running < s.cfg.MaxConcurrentTasks {
			e := s.popReadyLocked()
			if e == nil {
				break
			}
			s.startLocked(e)
		}

		var timer <-chan time.Time
		if next := s.delayed.peek(); next != nil {
			timer = s.clock.After(next.readyAt.Sub(now))
		}
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return
		case <-s.wake:
		case <-timer:
		}
	}
}

// Activity returns the non-terminal tasks for one container, for the status
// projection surface. Read-only.
func (s *Scheduler) Activity(containerID string) []models.PathActivity {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]bool)
	var out []models.PathActivity
	for k, e := range s.byKey {
		if k.containerID != containerID || seen[e.task.ID] {
			continue
		}
		seen[e.task.ID] = true
		out = append(out, models.PathActivity{
			Path:     e.task.Path,
			Kind:     e.task.Kind,
			Attempts: e.task.Attempts,
		})
	}
	return out
}

// Outstanding reports the number of non-terminal tasks for one container.
func (s *Scheduler) Outstanding(containerID string) int {
	return len(s.Activity(containerID))
}

// CoolingDown reports whether containerID's uploads are currently deferred
// by a quota cooldown.
func (s *Scheduler) CoolingDown(containerID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	until, ok := s.cooldown[containerID]
	return ok && s.clock.Now().Before(until)
}

func (s *Scheduler) newBackoff() retry.Backoff {
	b := retry.NewExponential(s.cfg.RetryBase)
	b = retry.WithJitterPercent(20, b)
	if s.cfg.RetryMaxDelay > 0 {
		b = retry.WithCappedDuration(s.cfg.RetryMaxDelay, b)
	}
	return b
}

// enqueueLocked places a pending entry on the ready queues. Conflict and
// delete tasks go ahead of transfers to cut wasted transfer work.
func (s *Scheduler) enqueueLocked(e *taskEntry) {
	e.task.State = models.TaskStatePending
	switch e.task.Kind {
	case models.TaskConflictResolve, models.TaskDeleteLocal, models.TaskDeleteRemote:
		s.high = append(s.high, e)
	default:
		s.normal = append(s.normal, e)
	}
}

func (s *Scheduler) deferLocked(e *taskEntry, until time.Time) {
	e.task.State = models.TaskStateRetryScheduled
	e.readyAt = until
	s.delayed.push(e)
}

// promoteDueLocked moves due delayed entries back onto the ready queues and
// drops expired cooldown markers.
func (s *Scheduler) promoteDueLocked(now time.Time) {
	for {
		next := s.delayed.peek()
		if next == nil || next.readyAt.After(now) {
			break
		}
		s.delayed.pop()
		if next.task.State != models.TaskStateRetryScheduled {
			continue
		}
		s.enqueueLocked(next)
	}

	for id, until := range s.cooldown {
		if !until.After(now) {
			delete(s.cooldown, id)
		}
	}
}

// popReadyLocked returns the next runnable entry, high-priority queue first.
// Stale slots (tasks canceled or deferred after being queued) are skipped.
func (s *Scheduler) popReadyLocked() *taskEntry {
	for _, q := range []*[]*taskEntry{&s.high, &s.normal} {
		for len(*q) > 0 {
			e := (*q)[0]
			*q = (*q)[1:]
			if e.task.State == models.TaskStatePending {
				return e
			}
		}
	}
	return nil
}

func (s *Scheduler) startLocked(e *taskEntry) {
	cs, ok := s.containers[e.task.ContainerID]
	if !ok {
		// Container vanished between queueing and start.
		s.finishLocked(e, models.TaskStateCanceled, nil)
		return
	}

	taskCtx, cancel := context.WithCancel(cs.ctx)
	e.cancel = cancel
	e.task.State = models.TaskStateRunning
	e.task.Attempts++
	e.task.StartedAt = s.clock.Now()
	s.running++

	cs.wg.Add(1)
	go s.runTask(cs, e, taskCtx)
}

func (s *Scheduler) runTask(cs *containerState, e *taskEntry, ctx context.Context) {
	defer cs.wg.Done()

	err := e.exec.Execute(ctx, e.task)
	e.cancel()

	s.mu.Lock()
	s.running--

	var finished *models.Task
	switch {
	case err == nil:
		finished = s.finishLocked(e, models.TaskStateDone, nil)

	case ctx.Err() != nil || errors.Is(err, context.Canceled):
		finished = s.finishLocked(e, models.TaskStateCanceled, err)

	case errors.Is(err, adapter.ErrQuotaExceeded):
		until := s.clock.Now().Add(s.cfg.QuotaCooldown)
		s.cooldown[e.task.ContainerID] = until
		s.deferUploadsLocked(e.task.ContainerID, until)
		// The failed upload itself waits out the cooldown without
		// burning retry budget.
		e.task.Attempts--
		s.deferLocked(e, until)
		s.log.Warn().Str("container_id", e.task.ContainerID).Time("until", until).
			Msg("quota exceeded, deferring uploads")

	case isTransient(err):
		if e.task.Attempts >= s.cfg.MaxAttempts {
			finished = s.finishLocked(e, models.TaskStateFailed, err)
		} else {
			delay, ok := e.backoff.Next()
			if !ok {
				finished = s.finishLocked(e, models.TaskStateFailed, err)
			} else {
				s.deferLocked(e, s.clock.Now().Add(delay))
				s.log.Debug().Str("task_id", e.task.ID).Str("path", e.task.Path).
					Dur("delay", delay).Int("attempts", e.task.Attempts).
					Msg("transient failure, retry scheduled")
			}
		}

	default:
		finished = s.finishLocked(e, models.TaskStateFailed, err)
	}
	s.mu.Unlock()

	if finished != nil {
		e.exec.TaskFinished(*finished)
	}
	s.signal()
}

// finishLocked moves an entry to a terminal state and releases its path keys.
// Returns a copy for notification, or nil when the entry was already
// finished.
func (s *Scheduler) finishLocked(e *taskEntry, state models.TaskState, err error) *models.Task {
	if e.task.State.Terminal() {
		return nil
	}

	e.task.State = state
	e.task.FinishedAt = s.clock.Now()
	if err != nil {
		e.task.Err = err.Error()
	}

	keys := []pathKey{{e.task.ContainerID, e.task.Path}}
	if e.task.Kind == models.TaskMove && e.task.DestPath != "" {
		keys = append(keys, pathKey{e.task.ContainerID, e.task.DestPath})
	}
	for _, k := range keys {
		if s.byKey[k] == e {
			delete(s.byKey, k)
		}
	}

	t := *e.task
	return &t
}

// deferUploadsLocked moves every pending upload of one container into the
// delayed queue. Other containers and other task kinds are untouched.
func (s *Scheduler) deferUploadsLocked(containerID string, until time.Time) {
	seen := make(map[string]bool)
	for k, e := range s.byKey {
		if k.containerID != containerID || seen[e.task.ID] {
			continue
		}
		seen[e.task.ID] = true
		if e.task.Kind == models.TaskUpload && e.task.State == models.TaskStatePending {
			s.deferLocked(e, until)
		}
	}
}

func isTransient(err error) bool {
	return errors.Is(err, adapter.ErrTransient) || errors.Is(err, context.DeadlineExceeded)
}

func (s *Scheduler) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Scheduler) signalLocked() {
	s.signal()
}
