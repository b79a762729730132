package models

import "time"

// SyncState classifies an index entry relative to the last successful pass.
type SyncState string

const (
	SyncStateSynced     SyncState = "synced"
	SyncStateLocalOnly  SyncState = "local_only"
	SyncStateRemoteOnly SyncState = "remote_only"
	SyncStateConflict   SyncState = "conflict"
	SyncStateDeleted    SyncState = "deleted"
)

// IndexEntry records the last known agreement between the local and remote
// copies of one relative path. An entry exists iff the path has been observed
// in at least one of {local filesystem, remote listing} during a prior
// successful pass. Entries are mutated only by the container's owning sync
// pool and persisted atomically.
type IndexEntry struct {
	Path           string    `json:"path"`
	LocalHash      string    `json:"local_hash,omitempty"`
	LocalMTime     time.Time `json:"local_mtime,omitempty"`
	RemoteRevision string    `json:"remote_revision,omitempty"`
	RemoteHash     string    `json:"remote_hash,omitempty"`
	State          SyncState `json:"state"`
}
