// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/MKhiriev/go-vault-sync/internal/adapter"
	"github.com/MKhiriev/go-vault-sync/internal/config"
	"github.com/MKhiriev/go-vault-sync/internal/crypto"
	"github.com/MKhiriev/go-vault-sync/internal/index"
	"github.com/MKhiriev/go-vault-sync/internal/localfs"
	"github.com/MKhiriev/go-vault-sync/internal/logger"
	"github.com/MKhiriev/go-vault-sync/internal/scheduler"
	"github.com/MKhiriev/go-vault-sync/models"
)

// registration bundles everything that has to be torn down together when a
// container leaves the registry.
type registration struct {
	pool          *ContainerSyncPool
	job           SyncJob
	watcherCancel context.CancelFunc
	watcherWG     sync.WaitGroup
}

// ContainerRegistry tracks the containers bound to local folders and keeps
// that set reconciled with the remote account listing. Each registered
// container gets its own sync pool, filesystem watcher, and periodic sync
// job; the shared scheduler bounds their combined concurrency.
type ContainerRegistry struct {
	cfg         *config.StructuredConfig
	storage     adapter.Storage
	gateway     crypto.Gateway
	passphrases crypto.PassphraseStore
	sched       *scheduler.Scheduler
	clock       clockwork.Clock
	log         *logger.Logger

	mu      sync.Mutex
	runCtx  context.Context
	entries map[string]*registration
}

// NewContainerRegistry creates an empty registry. Run performs the initial
// remote reconciliation and starts the periodic refresh.
func NewContainerRegistry(
	cfg *config.StructuredConfig,
	storage adapter.Storage,
	gateway crypto.Gateway,
	passphrases crypto.PassphraseStore,
	sched *scheduler.Scheduler,
	clock clockwork.Clock,
	log *logger.Logger,
) *ContainerRegistry {
	return &ContainerRegistry{
		cfg:         cfg,
		storage:     storage,
		gateway:     gateway,
		passphrases: passphrases,
		sched:       sched,
		clock:       clock,
		log:         log,
		entries:     make(map[string]*registration),
	}
}

// Add binds container to a local folder under the configured root directory
// and starts synchronizing it. The folder and the container's index store are
// created if absent. Returns ErrContainerExists when the container is already
// registered.
func (r *ContainerRegistry) Add(ctx context.Context, container models.Container) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[container.ID]; ok {
		return fmt.Errorf("%w: %s", ErrContainerExists, container.ID)
	}
	if r.runCtx == nil {
		r.runCtx = ctx
	}

	path := filepath.Join(r.cfg.Storage.RootDir, safeFolderName(container.Name, container.ID))
	if err := os.MkdirAll(path, 0o750); err != nil {
		return fmt.Errorf("create container folder: %w", err)
	}

	idx, err := index.Open(r.cfg.Storage.IndexDir, container.ID, r.log)
	if err != nil {
		return fmt.Errorf("open index for container %s: %w", container.ID, err)
	}

	pool := NewContainerSyncPool(
		container, path,
		localfs.NewTree(path), idx,
		r.storage, r.gateway, r.passphrases,
		r.sched, r.clock, r.log,
	)
	r.sched.RegisterContainer(container.ID, pool)

	reg := &registration{pool: pool}

	// Watcher failures degrade to ticker-only sync, they never block Add.
	var changes <-chan struct{}
	if watcher, werr := localfs.NewWatcher(path, r.log); werr != nil {
		r.log.Warn().Err(werr).Str("container_id", container.ID).
			Msg("filesystem watcher unavailable, falling back to interval sync")
	} else {
		wctx, wcancel := context.WithCancel(r.runCtx)
		reg.watcherCancel = wcancel
		reg.watcherWG.Add(1)
		go func() {
			defer reg.watcherWG.Done()
			watcher.Run(wctx)
		}()
		changes = watcher.Changes()
	}

	reg.job = NewSyncJob(pool, changes, r.log.WithContainer(container.ID))
	reg.job.Start(r.runCtx, r.cfg.Workers.SyncInterval)

	r.entries[container.ID] = reg
	r.log.Info().Str("container_id", container.ID).Str("name", container.Name).
		Str("path", path).Msg("container registered")
	return nil
}

// Remove detaches the container from synchronization. It stops the sync job
// and watcher, then deregisters from the scheduler, which cancels any
// in-flight tasks and blocks until they have fully stopped. Local files and
// the index file are left in place so re-adding the container resumes from
// the last synced state. Returns ErrContainerNotFound for unknown IDs.
func (r *ContainerRegistry) Remove(containerID string) error {
	r.mu.Lock()
	reg, ok := r.entries[containerID]
	if ok {
		delete(r.entries, containerID)
	}
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrContainerNotFound, containerID)
	}

	reg.job.Stop()
	if reg.watcherCancel != nil {
		reg.watcherCancel()
		reg.watcherWG.Wait()
	}
	r.sched.DeregisterContainer(containerID)

	r.log.Info().Str("container_id", containerID).Msg("container deregistered")
	return nil
}

// Refresh reconciles the registry against the remote account listing:
// unknown remote containers are added, registered containers missing from
// the listing are removed, and renames are propagated to the pool. Errors
// adding individual containers are logged and do not abort the pass.
func (r *ContainerRegistry) Refresh(ctx context.Context) error {
	remote, err := r.storage.ListContainers(ctx)
	if err != nil {
		return fmt.Errorf("list containers: %w", err)
	}

	remoteByID := make(map[string]models.Container, len(remote))
	for _, c := range remote {
		remoteByID[c.ID] = c
	}

	r.mu.Lock()
	var gone []string
	for id := range r.entries {
		if _, ok := remoteByID[id]; !ok {
			gone = append(gone, id)
		}
	}
	for id, c := range remoteByID {
		if reg, ok := r.entries[id]; ok && reg.pool.Container().Name != c.Name {
			reg.pool.Rename(c.Name)
		}
	}
	r.mu.Unlock()

	for _, id := range gone {
		if err := r.Remove(id); err != nil && !errors.Is(err, ErrContainerNotFound) {
			r.log.Error().Err(err).Str("container_id", id).Msg("failed to deregister container")
		}
	}

	for _, c := range remote {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		err := r.Add(ctx, c)
		if err != nil && !errors.Is(err, ErrContainerExists) {
			r.log.Error().Err(err).Str("container_id", c.ID).Msg("failed to register container")
		}
	}
	return nil
}

// Reports returns one status report per registered container, sorted by
// container name for stable presentation.
func (r *ContainerRegistry) Reports() []models.ContainerReport {
	r.mu.Lock()
	pools := make([]*ContainerSyncPool, 0, len(r.entries))
	for _, reg := range r.entries {
		pools = append(pools, reg.pool)
	}
	r.mu.Unlock()

	reports := make([]models.ContainerReport, 0, len(pools))
	for _, pool := range pools {
		reports = append(reports, pool.Report())
	}
	sort.Slice(reports, func(i, j int) bool {
		return reports[i].Container.Name < reports[j].Container.Name
	})
	return reports
}

// Pool returns the sync pool for a registered container.
func (r *ContainerRegistry) Pool(containerID string) (*ContainerSyncPool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	reg, ok := r.entries[containerID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrContainerNotFound, containerID)
	}
	return reg.pool, nil
}

// Run performs the initial remote reconciliation, then refreshes on the
// configured interval until ctx is cancelled. All containers registered
// during the run are torn down before Run returns.
func (r *ContainerRegistry) Run(ctx context.Context) error {
	r.mu.Lock()
	r.runCtx = ctx
	r.mu.Unlock()

	if err := r.Refresh(ctx); err != nil && ctx.Err() == nil {
		r.log.Error().Err(err).Msg("initial container refresh failed")
	}

	interval := r.cfg.Workers.RefreshInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	t := r.clock.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			r.Close()
			return ctx.Err()
		case <-t.Chan():
			if err := r.Refresh(ctx); err != nil && ctx.Err() == nil {
				r.log.Error().Err(err).Msg("container refresh failed")
			}
		}
	}
}

// Close deregisters every container, waiting for their tasks to stop.
func (r *ContainerRegistry) Close() {
	r.mu.Lock()
	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	for _, id := range ids {
		if err := r.Remove(id); err != nil && !errors.Is(err, ErrContainerNotFound) {
			r.log.Error().Err(err).Str("container_id", id).Msg("failed to deregister container")
		}
	}
}

// safeFolderName derives a filesystem-safe folder name from the container
// name, falling back to the ID when the name is empty or unusable.
func safeFolderName(name, id string) string {
	cleaned := make([]rune, 0, len(name))
	for _, r := range name {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			cleaned = append(cleaned, '_')
		default:
			cleaned = append(cleaned, r)
		}
	}
	folder := string(cleaned)
	if folder == "" || folder == "." || folder == ".." {
		return id
	}
	return folder
}
