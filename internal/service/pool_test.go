// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/MKhiriev/go-vault-sync/internal/adapter"
	"github.com/MKhiriev/go-vault-sync/internal/config"
	"github.com/MKhiriev/go-vault-sync/internal/crypto"
	"github.com/MKhiriev/go-vault-sync/internal/index"
	"github.com/MKhiriev/go-vault-sync/internal/localfs"
	"github.com/MKhiriev/go-vault-sync/internal/logger"
	"github.com/MKhiriev/go-vault-sync/internal/mock"
	"github.com/MKhiriev/go-vault-sync/internal/scheduler"
	"github.com/MKhiriev/go-vault-sync/models"
)

type poolFixture struct {
	pool        *ContainerSyncPool
	tree        *localfs.Tree
	idx         *index.Store
	storage     *mock.MockStorage
	gateway     *mock.MockGateway
	passphrases *crypto.MemoryPassphrases
	sched       *scheduler.Scheduler
}

func newPoolFixture(t *testing.T, ctrl *gomock.Controller, container models.Container) *poolFixture {
	t.Helper()

	tree := localfs.NewTreeFS(memfs.New())
	idx, err := index.Open(t.TempDir(), container.ID, logger.Nop())
	require.NoError(t, err)

	storage := mock.NewMockStorage(ctrl)
	gateway := mock.NewMockGateway(ctrl)
	passphrases := crypto.NewMemoryPassphrases()

	sched := scheduler.New(config.Sync{
		MaxConcurrentTasks: 4,
		MaxAttempts:        3,
		RetryBase:          time.Millisecond,
		RetryMaxDelay:      time.Second,
		QuotaCooldown:      time.Minute,
	}, clockwork.NewRealClock(), logger.Nop())

	pool := NewContainerSyncPool(
		container, "/vault/"+container.Name,
		tree, idx, storage, gateway, passphrases,
		sched, clockwork.NewRealClock(), logger.Nop(),
	)
	sched.RegisterContainer(container.ID, pool)

	return &poolFixture{
		pool:        pool,
		tree:        tree,
		idx:         idx,
		storage:     storage,
		gateway:     gateway,
		passphrases: passphrases,
		sched:       sched,
	}
}

func plainContainer() models.Container {
	return models.Container{ID: "c1", Name: "shared", Encrypted: false}
}

func encryptedContainer() models.Container {
	return models.Container{ID: "c1", Name: "private", Encrypted: true, KeyRef: "c1"}
}

func writeLocal(t *testing.T, tree *localfs.Tree, path, content string) {
	t.Helper()
	require.NoError(t, tree.WriteAtomic(path, []byte(content)))
}

func task(kind models.TaskKind, path string) *models.Task {
	return &models.Task{ID: "t1", ContainerID: "c1", Path: path, Kind: kind}
}

// passthroughEncrypt wires the gateway mock to prefix content with "enc:".
func passthroughEncrypt(gateway *mock.MockGateway) {
	gateway.EXPECT().
		Encrypt(gomock.Any(), "c1", gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, src io.Reader, dst io.Writer) error {
			data, err := io.ReadAll(src)
			if err != nil {
				return err
			}
			_, err = dst.Write(append([]byte("enc:"), data...))
			return err
		})
}

func passthroughDecrypt(gateway *mock.MockGateway) {
	gateway.EXPECT().
		Decrypt(gomock.Any(), "c1", gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, src io.Reader, dst io.Writer) error {
			data, err := io.ReadAll(src)
			if err != nil {
				return err
			}
			_, err = dst.Write(bytes.TrimPrefix(data, []byte("enc:")))
			return err
		})
}

func TestPool_ExecuteUpload_Plaintext(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	f := newPoolFixture(t, ctrl, plainContainer())

	writeLocal(t, f.tree, "docs/a.txt", "alpha")

	f.storage.EXPECT().
		Upload(gomock.Any(), "c1", "docs/a.txt", gomock.Any()).
		DoAndReturn(func(_ context.Context, _, _ string, content io.Reader) (string, error) {
			data, err := io.ReadAll(content)
			require.NoError(t, err)
			assert.Equal(t, "alpha", string(data))
			return "r1", nil
		})

	require.NoError(t, f.pool.Execute(context.Background(), task(models.TaskUpload, "docs/a.txt")))

	entry, ok := f.idx.Get("docs/a.txt")
	require.True(t, ok)
	assert.Equal(t, "r1", entry.RemoteRevision)
	assert.Equal(t, localfs.HashBytes([]byte("alpha")), entry.LocalHash)
	assert.Equal(t, models.SyncStateSynced, entry.State)
}

func TestPool_ExecuteUpload_EncryptedGoesThroughGateway(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	f := newPoolFixture(t, ctrl, encryptedContainer())
	require.NoError(t, f.passphrases.Set("c1", "pass"))

	writeLocal(t, f.tree, "secret.txt", "payload")

	passthroughEncrypt(f.gateway)
	f.storage.EXPECT().
		Upload(gomock.Any(), "c1", "secret.txt", gomock.Any()).
		DoAndReturn(func(_ context.Context, _, _ string, content io.Reader) (string, error) {
			data, err := io.ReadAll(content)
			require.NoError(t, err)
			assert.Equal(t, "enc:payload", string(data))
			return "r1", nil
		})

	require.NoError(t, f.pool.Execute(context.Background(), task(models.TaskUpload, "secret.txt")))

	// The index records the plaintext hash, not the ciphertext hash.
	entry, ok := f.idx.Get("secret.txt")
	require.True(t, ok)
	assert.Equal(t, localfs.HashBytes([]byte("payload")), entry.LocalHash)
}

func TestPool_ExecuteUpload_EncryptedWithoutPassphraseIsFatal(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	f := newPoolFixture(t, ctrl, encryptedContainer())

	writeLocal(t, f.tree, "secret.txt", "payload")

	err := f.pool.Execute(context.Background(), task(models.TaskUpload, "secret.txt"))
	assert.ErrorIs(t, err, ErrFatalConfig)
}

func TestPool_ExecuteDownload_Plaintext(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	f := newPoolFixture(t, ctrl, plainContainer())

	f.storage.EXPECT().
		Download(gomock.Any(), "c1", "docs/b.txt").
		Return([]byte("beta"), "r2", nil)

	require.NoError(t, f.pool.Execute(context.Background(), task(models.TaskDownload, "docs/b.txt")))

	st, err := f.tree.Stat("docs/b.txt")
	require.NoError(t, err)
	assert.Equal(t, localfs.HashBytes([]byte("beta")), st.Hash)

	entry, ok := f.idx.Get("docs/b.txt")
	require.True(t, ok)
	assert.Equal(t, "r2", entry.RemoteRevision)
	assert.Equal(t, st.Hash, entry.LocalHash)
}

func TestPool_ExecuteDownload_EncryptedGoesThroughGateway(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	f := newPoolFixture(t, ctrl, encryptedContainer())
	require.NoError(t, f.passphrases.Set("c1", "pass"))

	f.storage.EXPECT().
		Download(gomock.Any(), "c1", "secret.txt").
		Return([]byte("enc:payload"), "r2", nil)
	passthroughDecrypt(f.gateway)

	require.NoError(t, f.pool.Execute(context.Background(), task(models.TaskDownload, "secret.txt")))

	st, err := f.tree.Stat("secret.txt")
	require.NoError(t, err)
	assert.Equal(t, localfs.HashBytes([]byte("payload")), st.Hash)
}

func TestPool_ExecuteDeleteLocal(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	f := newPoolFixture(t, ctrl, plainContainer())

	writeLocal(t, f.tree, "gone.txt", "bye")
	require.NoError(t, f.idx.Put(models.IndexEntry{Path: "gone.txt", State: models.SyncStateSynced}))

	require.NoError(t, f.pool.Execute(context.Background(), task(models.TaskDeleteLocal, "gone.txt")))

	ok, err := f.tree.Exists("gone.txt")
	require.NoError(t, err)
	assert.False(t, ok)
	_, indexed := f.idx.Get("gone.txt")
	assert.False(t, indexed)
}

func TestPool_ExecuteDeleteRemote_MissingObjectIsSuccess(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	f := newPoolFixture(t, ctrl, plainContainer())

	require.NoError(t, f.idx.Put(models.IndexEntry{Path: "gone.txt", State: models.SyncStateSynced}))
	f.storage.EXPECT().
		Delete(gomock.Any(), "c1", "gone.txt").
		Return(fmt.Errorf("%w: object missing", adapter.ErrNotFound))

	require.NoError(t, f.pool.Execute(context.Background(), task(models.TaskDeleteRemote, "gone.txt")))
	_, indexed := f.idx.Get("gone.txt")
	assert.False(t, indexed)
}

func TestPool_ExecuteMove_UpdatesIndexAndRevision(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	f := newPoolFixture(t, ctrl, plainContainer())

	require.NoError(t, f.idx.Put(models.IndexEntry{
		Path: "old.txt", LocalHash: "h1", RemoteRevision: "r1", RemoteHash: "h1",
		State: models.SyncStateSynced,
	}))
	f.storage.EXPECT().
		Move(gomock.Any(), "c1", "old.txt", "new.txt").
		Return("r2", nil)

	moveTask := task(models.TaskMove, "old.txt")
	moveTask.DestPath = "new.txt"
	require.NoError(t, f.pool.Execute(context.Background(), moveTask))

	_, ok := f.idx.Get("old.txt")
	assert.False(t, ok)
	entry, ok := f.idx.Get("new.txt")
	require.True(t, ok)
	assert.Equal(t, "new.txt", entry.Path)
	assert.Equal(t, "r2", entry.RemoteRevision)
	assert.Equal(t, "h1", entry.LocalHash)
}

func TestPool_ExecuteConflictResolve_PreservesBothVersions(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	f := newPoolFixture(t, ctrl, plainContainer())

	writeLocal(t, f.tree, "report.txt", "local version")
	f.storage.EXPECT().
		Download(gomock.Any(), "c1", "report.txt").
		Return([]byte("remote version"), "r3", nil)

	require.NoError(t, f.pool.Execute(context.Background(), task(models.TaskConflictResolve, "report.txt")))

	// The original path now holds the remote version.
	st, err := f.tree.Stat("report.txt")
	require.NoError(t, err)
	assert.Equal(t, localfs.HashBytes([]byte("remote version")), st.Hash)

	// The local version survives under a conflict copy name.
	states, err := f.tree.Snapshot(context.Background())
	require.NoError(t, err)
	require.Len(t, states, 2)

	var copyHash string
	for path, state := range states {
		if path != "report.txt" {
			assert.Contains(t, path, "conflict copy")
			copyHash = state.Hash
		}
	}
	assert.Equal(t, localfs.HashBytes([]byte("local version")), copyHash)
}

func TestPool_SyncPass_SkipsWhilePassphraseUnavailable(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	f := newPoolFixture(t, ctrl, encryptedContainer())

	// No storage call expected at all.
	require.NoError(t, f.pool.SyncPass(context.Background()))
	assert.Equal(t, 0, f.sched.Outstanding("c1"))
	assert.Equal(t, models.ContainerStatusPassphraseNeeded, f.pool.Status())
}

func TestPool_SyncPass_SubmitsPlannedTasks(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	f := newPoolFixture(t, ctrl, plainContainer())

	writeLocal(t, f.tree, "up.txt", "local only")
	f.storage.EXPECT().
		List(gomock.Any(), "c1").
		Return([]models.RemoteObject{{Path: "down.txt", Revision: "r1", Hash: "h1"}}, nil).
		Times(2)

	require.NoError(t, f.pool.SyncPass(context.Background()))
	assert.Equal(t, 2, f.sched.Outstanding("c1"))

	// A second pass re-plans the same work; duplicates are skipped silently.
	require.NoError(t, f.pool.SyncPass(context.Background()))
	assert.Equal(t, 2, f.sched.Outstanding("c1"))
}

func TestPool_SyncPass_PersistsAdoptions(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	f := newPoolFixture(t, ctrl, plainContainer())

	writeLocal(t, f.tree, "same.txt", "identical")
	hash := localfs.HashBytes([]byte("identical"))
	f.storage.EXPECT().
		List(gomock.Any(), "c1").
		Return([]models.RemoteObject{{Path: "same.txt", Revision: "r1", Hash: hash}}, nil)

	require.NoError(t, f.pool.SyncPass(context.Background()))

	assert.Equal(t, 0, f.sched.Outstanding("c1"))
	entry, ok := f.idx.Get("same.txt")
	require.True(t, ok)
	assert.Equal(t, "r1", entry.RemoteRevision)
}

func TestPool_SyncPass_PausedSubmitsNothing(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	f := newPoolFixture(t, ctrl, plainContainer())

	f.pool.SetPaused(true)
	require.NoError(t, f.pool.SyncPass(context.Background()))
	assert.Equal(t, 0, f.sched.Outstanding("c1"))
	assert.Equal(t, models.ContainerStatusPaused, f.pool.Status())

	f.pool.SetPaused(false)
	assert.Equal(t, models.ContainerStatusStarted, f.pool.Status())
}

func TestPool_TaskFinished_FailureDrivesErrorStatus(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	f := newPoolFixture(t, ctrl, plainContainer())

	f.pool.TaskFinished(models.Task{
		ID: "t1", ContainerID: "c1", Path: "bad.txt",
		Kind: models.TaskUpload, State: models.TaskStateFailed, Err: "permission denied",
	})
	assert.Equal(t, models.ContainerStatusError, f.pool.Status())

	report := f.pool.Report()
	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0], "bad.txt")

	// A later success on the same path clears the failure.
	f.pool.TaskFinished(models.Task{
		ID: "t2", ContainerID: "c1", Path: "bad.txt",
		Kind: models.TaskUpload, State: models.TaskStateDone,
	})
	assert.Equal(t, models.ContainerStatusStarted, f.pool.Status())
}

func TestPool_TaskFinished_ConflictRecordedAndAcknowledged(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	f := newPoolFixture(t, ctrl, plainContainer())

	f.pool.TaskFinished(models.Task{
		ID: "t1", ContainerID: "c1", Path: "report.txt",
		Kind: models.TaskConflictResolve, State: models.TaskStateDone,
	})

	report := f.pool.Report()
	assert.Equal(t, []string{"report.txt"}, report.Conflicts)
	assert.Equal(t, models.ContainerStatusError, f.pool.Status())

	f.pool.AcknowledgeConflicts()
	assert.Equal(t, models.ContainerStatusStarted, f.pool.Status())
}

func TestPool_Report_IncludesActivity(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	f := newPoolFixture(t, ctrl, plainContainer())

	writeLocal(t, f.tree, "up.txt", "content")
	f.storage.EXPECT().List(gomock.Any(), "c1").Return(nil, nil)
	require.NoError(t, f.pool.SyncPass(context.Background()))

	report := f.pool.Report()
	assert.Equal(t, "c1", report.Container.ID)
	require.Len(t, report.Activity, 1)
	assert.Equal(t, "up.txt", report.Activity[0].Path)
	assert.Equal(t, models.TaskUpload, report.Activity[0].Kind)
}
