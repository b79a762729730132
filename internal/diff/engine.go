// Package diff computes the three-way difference between a local filesystem
// snapshot, the persisted index, and a remote listing, and emits the set of
// operations required to converge them. The comparison is purely in-memory
// and produces no side effects, so no storage layer or logger is required.
package diff

import (
	"context"
	"sort"

	"github.com/MKhiriev/go-vault-sync/models"
)

// Plan is the output of one diff pass.
//
// Tasks are the operations to submit to the scheduler. Adoptions are index
// entries to persist without any transfer: both sides already hold identical
// content, so the engine just records the agreement. Forgets are stale index
// paths no longer present on either side.
type Plan struct {
	Tasks     []models.TaskSpec
	Adoptions []models.IndexEntry
	Forgets   []string
}

// Empty reports whether the plan requires no work at all. A converged
// container (local == index == remote) always yields an empty plan.
func (p Plan) Empty() bool {
	return len(p.Tasks) == 0 && len(p.Adoptions) == 0 && len(p.Forgets) == 0
}

// BuildPlan classifies every path present in the union of the three inputs.
//
// The decision table, per path:
//   - local only → upload.
//   - remote only → download.
//   - index only → forget the stale entry.
//   - local+remote, no index: identical hashes → adoption; different →
//     conflict (never an arbitrary pick).
//   - local+index, no remote: local unchanged → delete_local; local edited
//     since the last agreement → upload (user edits are never discarded).
//   - index+remote, no local: remote unchanged → delete_remote (propagate the
//     local deletion); remote changed since the last agreement → download
//     (the newer remote edit wins over the stale deletion).
//   - all three: changed on one side → transfer that side; changed on both
//     with identical result → adoption; changed on both with different
//     result → conflict.
//
// Before emitting, upload/delete_remote pairs with matching content hashes
// are folded into single move tasks so unchanged bytes are not re-encrypted
// and re-uploaded.
//
// Output ordering is deterministic: categories in fixed order, paths sorted
// within each. ctx cancellation is checked per iteration so callers can abort
// early on large trees.
func BuildPlan(
	ctx context.Context,
	containerID string,
	local map[string]models.FileState,
	index map[string]models.IndexEntry,
	remote map[string]models.RemoteObject,
) (Plan, error) {
	union := make(map[string]struct{}, len(local)+len(index)+len(remote))
	for p := range local {
		union[p] = struct{}{}
	}
	for p := range index {
		union[p] = struct{}{}
	}
	for p := range remote {
		union[p] = struct{}{}
	}

	paths := make([]string, 0, len(union))
	for p := range union {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var (
		plan          Plan
		uploads       []string
		downloads     []string
		deleteLocals  []string
		deleteRemotes []string
		conflicts     []string
	)

	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return Plan{}, err
		}

		l, hasLocal := local[p]
		i, hasIndex := index[p]
		r, hasRemote := remote[p]

		switch {
		case hasLocal && !hasIndex && !hasRemote:
			uploads = append(uploads, p)

		case !hasLocal && !hasIndex && hasRemote:
			downloads = append(downloads, p)

		case !hasLocal && hasIndex && !hasRemote:
			plan.Forgets = append(plan.Forgets, p)

		case hasLocal && !hasIndex && hasRemote:
			// New on both sides without a prior agreement.
			if l.Hash == r.Hash {
				plan.Adoptions = append(plan.Adoptions, mergedEntry(l, r))
			} else {
				conflicts = append(conflicts, p)
			}

		case hasLocal && hasIndex && !hasRemote:
			if localChanged(l, i) {
				uploads = append(uploads, p)
			} else {
				deleteLocals = append(deleteLocals, p)
			}

		case !hasLocal && hasIndex && hasRemote:
			if remoteChanged(r, i) {
				downloads = append(downloads, p)
			} else {
				deleteRemotes = append(deleteRemotes, p)
			}

		default: // present everywhere
			lc, rc := localChanged(l, i), remoteChanged(r, i)
			switch {
			case !lc && !rc:
				// Converged, nothing to do.
			case lc && !rc:
				uploads = append(uploads, p)
			case !lc && rc:
				downloads = append(downloads, p)
			case l.Hash == r.Hash:
				// Diverged independently to the same content.
				plan.Adoptions = append(plan.Adoptions, mergedEntry(l, r))
			default:
				conflicts = append(conflicts, p)
			}
		}
	}

	moves, uploads, deleteRemotes := detectMoves(local, index, remote, uploads, deleteRemotes)

	appendTasks := func(kind models.TaskKind, paths []string) {
		for _, p := range paths {
			plan.Tasks = append(plan.Tasks, models.TaskSpec{
				ContainerID: containerID,
				Path:        p,
				Kind:        kind,
			})
		}
	}

	appendTasks(models.TaskConflictResolve, conflicts)
	appendTasks(models.TaskDeleteLocal, deleteLocals)
	appendTasks(models.TaskDeleteRemote, deleteRemotes)
	for _, m := range moves {
		plan.Tasks = append(plan.Tasks, models.TaskSpec{
			ContainerID: containerID,
			Path:        m.from,
			DestPath:    m.to,
			Kind:        models.TaskMove,
		})
	}
	appendTasks(models.TaskDownload, downloads)
	appendTasks(models.TaskUpload, uploads)

	return plan, nil
}

func localChanged(l models.FileState, i models.IndexEntry) bool {
	return l.Hash != i.LocalHash
}

func remoteChanged(r models.RemoteObject, i models.IndexEntry) bool {
	if r.Revision != i.RemoteRevision {
		return true
	}
	return r.Hash != "" && i.RemoteHash != "" && r.Hash != i.RemoteHash
}

func mergedEntry(l models.FileState, r models.RemoteObject) models.IndexEntry {
	return models.IndexEntry{
		Path:           l.Path,
		LocalHash:      l.Hash,
		LocalMTime:     l.MTime,
		RemoteRevision: r.Revision,
		RemoteHash:     r.Hash,
		State:          models.SyncStateSynced,
	}
}

type move struct {
	from string
	to   string
}

// detectMoves folds upload/delete_remote pairs with identical content into
// move tasks: a brand-new local path whose hash equals the indexed hash of a
// path deleted locally is the same file renamed. Matching is one-to-one in
// sorted order so the outcome is deterministic.
func detectMoves(
	local map[string]models.FileState,
	index map[string]models.IndexEntry,
	remote map[string]models.RemoteObject,
	uploads, deleteRemotes []string,
) ([]move, []string, []string) {
	if len(uploads) == 0 || len(deleteRemotes) == 0 {
		return nil, uploads, deleteRemotes
	}

	// Only brand-new local files (no index entry) can be move destinations.
	byHash := make(map[string][]string)
	for _, p := range uploads {
		if _, indexed := index[p]; indexed {
			continue
		}
		h := local[p].Hash
		byHash[h] = append(byHash[h], p)
	}

	var (
		moves         []move
		keptDeletes   []string
		movedUploads  = make(map[string]bool)
		keptUploadSet []string
	)

	for _, old := range deleteRemotes {
		h := index[old].LocalHash
		candidates := byHash[h]
		if len(candidates) == 0 || h == "" {
			keptDeletes = append(keptDeletes, old)
			continue
		}
		// The remote object must still match the last agreement, otherwise
		// a plain rename would clobber a concurrent remote edit.
		if r, ok := remote[old]; !ok || remoteChanged(r, index[old]) {
			keptDeletes = append(keptDeletes, old)
			continue
		}

		dest := candidates[0]
		byHash[h] = candidates[1:]
		movedUploads[dest] = true
		moves = append(moves, move{from: old, to: dest})
	}

	for _, p := range uploads {
		if !movedUploads[p] {
			keptUploadSet = append(keptUploadSet, p)
		}
	}

	return moves, keptUploadSet, keptDeletes
}
