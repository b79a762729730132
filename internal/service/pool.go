package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/MKhiriev/go-vault-sync/internal/adapter"
	"github.com/MKhiriev/go-vault-sync/internal/crypto"
	"github.com/MKhiriev/go-vault-sync/internal/diff"
	"github.com/MKhiriev/go-vault-sync/internal/index"
	"github.com/MKhiriev/go-vault-sync/internal/localfs"
	"github.com/MKhiriev/go-vault-sync/internal/logger"
	"github.com/MKhiriev/go-vault-sync/internal/scheduler"
	"github.com/MKhiriev/go-vault-sync/models"
)

// ContainerSyncPool supervises synchronization for one container. It owns the
// container's index store (sole writer), gates all work on passphrase
// availability, feeds diff output into the shared scheduler, executes the
// scheduled tasks, and aggregates their outcomes into the container's derived
// status.
type ContainerSyncPool struct {
	container models.Container
	path      string

	tree        *localfs.Tree
	idx         *index.Store
	storage     adapter.Storage
	gateway     crypto.Gateway
	passphrases crypto.PassphraseStore
	sched       *scheduler.Scheduler
	clock       clockwork.Clock
	log         *logger.Logger

	mu             sync.Mutex
	paused         bool
	encryptionDown bool
	conflicts      map[string]bool
	failures       map[string]string
}

// NewContainerSyncPool binds a container to its local path and index store.
// The caller registers the pool with the scheduler before submitting work.
func NewContainerSyncPool(
	container models.Container,
	path string,
	tree *localfs.Tree,
	idx *index.Store,
	storage adapter.Storage,
	gateway crypto.Gateway,
	passphrases crypto.PassphraseStore,
	sched *scheduler.Scheduler,
	clock clockwork.Clock,
	log *logger.Logger,
) *ContainerSyncPool {
	return &ContainerSyncPool{
		container:   container,
		path:        path,
		tree:        tree,
		idx:         idx,
		storage:     storage,
		gateway:     gateway,
		passphrases: passphrases,
		sched:       sched,
		clock:       clock,
		log:         log.WithContainer(container.ID),
		conflicts:   make(map[string]bool),
		failures:    make(map[string]string),
	}
}

// Container returns the remote-side container this pool mirrors.
func (p *ContainerSyncPool) Container() models.Container {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.container
}

// Rename updates the container's display name after a server-side rename.
func (p *ContainerSyncPool) Rename(name string) {
	p.mu.Lock()
	p.container.Name = name
	p.mu.Unlock()
}

// SetPaused pauses or resumes task submission for this container. Running
// tasks are unaffected; pausing only stops new passes from submitting work.
func (p *ContainerSyncPool) SetPaused(paused bool) {
	p.mu.Lock()
	p.paused = paused
	p.mu.Unlock()
}

// SyncPass runs one full diff pass: snapshot the local tree and the remote
// listing concurrently, diff them against the index, persist index-only
// merges, and submit the resulting tasks. Duplicate submissions (a previous
// task for the same path still in flight) are skipped silently; the next
// pass re-derives whatever is still needed.
//
// While the container's passphrase is unavailable no tasks are submitted at
// all; validating remote content requires the encryption context, so even
// local deletes stay paused until the user supplies the passphrase.
func (p *ContainerSyncPool) SyncPass(ctx context.Context) error {
	p.mu.Lock()
	paused := p.paused
	p.mu.Unlock()
	if paused {
		return nil
	}

	if p.container.Encrypted && !p.passphrases.Available(p.container.ID) {
		p.log.Debug().Msg("passphrase unavailable, sync pass skipped")
		return nil
	}

	var (
		local  map[string]models.FileState
		remote []models.RemoteObject
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		local, err = p.tree.Snapshot(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		remote, err = p.storage.List(gctx, p.container.ID)
		return err
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("gather sync inputs: %w", err)
	}

	remoteByPath := make(map[string]models.RemoteObject, len(remote))
	for _, obj := range remote {
		remoteByPath[obj.Path] = obj
	}

	plan, err := diff.BuildPlan(ctx, p.container.ID, local, p.idx.Entries(), remoteByPath)
	if err != nil {
		return fmt.Errorf("build plan: %w", err)
	}

	if err := p.idx.PutAll(plan.Adoptions); err != nil {
		return fmt.Errorf("persist adoptions: %w", err)
	}
	if err := p.idx.Forget(plan.Forgets...); err != nil {
		return fmt.Errorf("forget stale entries: %w", err)
	}

	submitted := 0
	for _, spec := range plan.Tasks {
		if _, err := p.sched.Submit(spec); err != nil {
			if errors.Is(err, scheduler.ErrDuplicateTask) {
				continue
			}
			return fmt.Errorf("submit %s task for %s: %w", spec.Kind, spec.Path, err)
		}
		submitted++
	}

	if submitted > 0 || !plan.Empty() {
		p.log.Info().Int("submitted", submitted).
			Int("adoptions", len(plan.Adoptions)).
			Int("forgets", len(plan.Forgets)).
			Msg("sync pass planned")
	}
	return nil
}

// Execute implements [scheduler.Executor]. The index entry for the task's
// path is updated and persisted before Execute returns nil, so a crash after
// the remote operation but before the index write is healed by the next diff
// pass re-observing the same state.
func (p *ContainerSyncPool) Execute(ctx context.Context, task *models.Task) error {
	switch task.Kind {
	case models.TaskUpload:
		return p.upload(ctx, task.Path)
	case models.TaskDownload:
		return p.download(ctx, task.Path)
	case models.TaskDeleteLocal:
		return p.deleteLocal(task.Path)
	case models.TaskDeleteRemote:
		return p.deleteRemote(ctx, task.Path)
	case models.TaskMove:
		return p.move(ctx, task.Path, task.DestPath)
	case models.TaskConflictResolve:
		return p.resolveConflict(ctx, task.Path)
	default:
		return fmt.Errorf("unknown task kind %q", task.Kind)
	}
}

// TaskFinished implements [scheduler.Executor]. Failed outcomes and resolved
// conflicts feed the container report; a successful retry clears the path's
// recorded failure.
func (p *ContainerSyncPool) TaskFinished(task models.Task) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch task.State {
	case models.TaskStateDone:
		delete(p.failures, task.Path)
		if task.Kind == models.TaskConflictResolve {
			p.conflicts[task.Path] = true
		}
	case models.TaskStateFailed:
		p.failures[task.Path] = task.Err
		p.log.Error().Str("path", task.Path).Str("kind", string(task.Kind)).
			Str("error", task.Err).Msg("task failed")
	}
}

// AcknowledgeConflicts clears the recorded conflict notices after they have
// been surfaced to the user.
func (p *ContainerSyncPool) AcknowledgeConflicts() {
	p.mu.Lock()
	p.conflicts = make(map[string]bool)
	p.mu.Unlock()
}

// Status derives the container's aggregate state, worst outcome first.
func (p *ContainerSyncPool) Status() models.ContainerStatus {
	p.mu.Lock()
	paused := p.paused
	encryptionDown := p.encryptionDown
	troubled := len(p.failures) > 0 || len(p.conflicts) > 0
	p.mu.Unlock()

	switch {
	case p.container.Encrypted && !p.passphrases.Available(p.container.ID):
		return models.ContainerStatusPassphraseNeeded
	case encryptionDown:
		return models.ContainerStatusPaused
	case paused:
		return models.ContainerStatusPaused
	case troubled:
		return models.ContainerStatusError
	case p.sched.CoolingDown(p.container.ID):
		return models.ContainerStatusQuotaExceeded
	default:
		return models.ContainerStatusStarted
	}
}

// Report builds the read-only status projection for this container.
func (p *ContainerSyncPool) Report() models.ContainerReport {
	status := p.Status()

	p.mu.Lock()
	conflicts := make([]string, 0, len(p.conflicts))
	for path := range p.conflicts {
		conflicts = append(conflicts, path)
	}
	failures := make([]string, 0, len(p.failures))
	for path, msg := range p.failures {
		failures = append(failures, path+": "+msg)
	}
	container := p.container
	p.mu.Unlock()

	sort.Strings(conflicts)
	sort.Strings(failures)

	return models.ContainerReport{
		Container:     container,
		Path:          p.path,
		Status:        status,
		QuotaExceeded: p.sched.CoolingDown(container.ID),
		Conflicts:     conflicts,
		Errors:        failures,
		Activity:      p.sched.Activity(container.ID),
	}
}

// IndexPath returns the location of this container's index file.
func (p *ContainerSyncPool) IndexPath() string {
	return p.idx.Path()
}

func (p *ContainerSyncPool) upload(ctx context.Context, path string) error {
	st, err := p.tree.Stat(path)
	if err != nil {
		return err
	}

	src, err := p.tree.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	body, err := p.cipherForUpload(ctx, src)
	if err != nil {
		return err
	}

	rev, err := p.storage.Upload(ctx, p.container.ID, path, body)
	if err != nil {
		return err
	}

	return p.idx.Put(models.IndexEntry{
		Path:           path,
		LocalHash:      st.Hash,
		LocalMTime:     st.MTime,
		RemoteRevision: rev,
		RemoteHash:     st.Hash,
		State:          models.SyncStateSynced,
	})
}

func (p *ContainerSyncPool) download(ctx context.Context, path string) error {
	data, rev, err := p.storage.Download(ctx, p.container.ID, path)
	if err != nil {
		return err
	}

	plaintext, err := p.plaintextFromRemote(ctx, data)
	if err != nil {
		return err
	}

	if err = p.tree.WriteAtomic(path, plaintext); err != nil {
		return err
	}

	st, err := p.tree.Stat(path)
	if err != nil {
		return err
	}

	return p.idx.Put(models.IndexEntry{
		Path:           path,
		LocalHash:      st.Hash,
		LocalMTime:     st.MTime,
		RemoteRevision: rev,
		RemoteHash:     st.Hash,
		State:          models.SyncStateSynced,
	})
}

func (p *ContainerSyncPool) deleteLocal(path string) error {
	if err := p.tree.Remove(path); err != nil {
		return err
	}
	return p.idx.Forget(path)
}

func (p *ContainerSyncPool) deleteRemote(ctx context.Context, path string) error {
	err := p.storage.Delete(ctx, p.container.ID, path)
	if err != nil && !errors.Is(err, adapter.ErrNotFound) {
		return err
	}
	return p.idx.Forget(path)
}

func (p *ContainerSyncPool) move(ctx context.Context, fromPath, toPath string) error {
	rev, err := p.storage.Move(ctx, p.container.ID, fromPath, toPath)
	if err != nil {
		return err
	}

	entry, ok := p.idx.Get(fromPath)
	if err = p.idx.Move(fromPath, toPath); err != nil {
		return err
	}
	if ok {
		entry.Path = toPath
		entry.RemoteRevision = rev
		if err = p.idx.Put(entry); err != nil {
			return err
		}
	}
	return nil
}

// resolveConflict preserves both versions: the local copy is renamed with a
// conflict suffix, then the remote version is taken as authoritative for the
// original path. The renamed copy is a brand-new local file the next pass
// uploads. Content is never merged automatically.
func (p *ContainerSyncPool) resolveConflict(ctx context.Context, path string) error {
	copyName := p.tree.ConflictCopyName(path, p.clock.Now())
	if err := p.tree.Rename(path, copyName); err != nil {
		return err
	}

	p.log.Warn().Str("path", path).Str("conflict_copy", copyName).
		Msg("conflicting versions preserved")

	if err := p.download(ctx, path); err != nil {
		return err
	}
	return nil
}

// cipherForUpload runs plaintext through the encryption gateway for encrypted
// containers and passes it straight through otherwise.
func (p *ContainerSyncPool) cipherForUpload(ctx context.Context, src io.Reader) (io.Reader, error) {
	if !p.container.Encrypted {
		return src, nil
	}
	if !p.passphrases.Available(p.container.ID) {
		return nil, fmt.Errorf("%w: passphrase missing for container %s", ErrFatalConfig, p.container.ID)
	}

	var buf bytes.Buffer
	if err := p.gateway.Encrypt(ctx, p.container.ID, src, &buf); err != nil {
		p.noteGatewayError(err)
		return nil, err
	}
	p.noteGatewayRecovered()
	return &buf, nil
}

func (p *ContainerSyncPool) plaintextFromRemote(ctx context.Context, data []byte) ([]byte, error) {
	if !p.container.Encrypted {
		return data, nil
	}
	if !p.passphrases.Available(p.container.ID) {
		return nil, fmt.Errorf("%w: passphrase missing for container %s", ErrFatalConfig, p.container.ID)
	}

	var buf bytes.Buffer
	if err := p.gateway.Decrypt(ctx, p.container.ID, bytes.NewReader(data), &buf); err != nil {
		p.noteGatewayError(err)
		return nil, err
	}
	p.noteGatewayRecovered()
	return buf.Bytes(), nil
}

func (p *ContainerSyncPool) noteGatewayError(err error) {
	if !errors.Is(err, crypto.ErrUnavailable) {
		return
	}
	p.mu.Lock()
	p.encryptionDown = true
	p.mu.Unlock()
}

func (p *ContainerSyncPool) noteGatewayRecovered() {
	p.mu.Lock()
	p.encryptionDown = false
	p.mu.Unlock()
}
