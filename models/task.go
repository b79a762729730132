package models

import "time"

// TaskKind is the closed set of synchronization operations. The scheduler
// dispatches on it with a single switch; new kinds are added here, never via
// open subtyping.
type TaskKind string

const (
	TaskDownload        TaskKind = "download"
	TaskUpload          TaskKind = "upload"
	TaskDeleteLocal     TaskKind = "delete_local"
	TaskDeleteRemote    TaskKind = "delete_remote"
	TaskMove            TaskKind = "move"
	TaskConflictResolve TaskKind = "conflict_resolve"
)

// TaskState is the lifecycle state of a task. Pending tasks wait for a worker
// slot, retry_scheduled tasks wait in the delayed queue and become pending
// again when due. Done, failed, and canceled are terminal.
type TaskState string

const (
	TaskStatePending        TaskState = "pending"
	TaskStateRunning        TaskState = "running"
	TaskStateRetryScheduled TaskState = "retry_scheduled"
	TaskStateDone           TaskState = "done"
	TaskStateFailed         TaskState = "failed"
	TaskStateCanceled       TaskState = "canceled"
)

// Terminal reports whether a task in this state has finished for good.
func (s TaskState) Terminal() bool {
	return s == TaskStateDone || s == TaskStateFailed || s == TaskStateCanceled
}

// TaskSpec describes one unit of work to submit to the scheduler. DestPath is
// set only for move tasks.
type TaskSpec struct {
	ContainerID string   `json:"container_id"`
	Path        string   `json:"path"`
	DestPath    string   `json:"dest_path,omitempty"`
	Kind        TaskKind `json:"kind"`
}

// Task is a TaskSpec admitted by the scheduler. It is owned exclusively by the
// scheduler for its lifetime; index updates happen only when a task reaches
// done. At most one non-terminal Task exists per (container, path) pair.
type Task struct {
	ID          string    `json:"id"`
	ContainerID string    `json:"container_id"`
	Path        string    `json:"path"`
	DestPath    string    `json:"dest_path,omitempty"`
	Kind        TaskKind  `json:"kind"`
	Attempts    int       `json:"attempts"`
	State       TaskState `json:"state"`
	Err         string    `json:"error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	StartedAt   time.Time `json:"started_at,omitempty"`
	FinishedAt  time.Time `json:"finished_at,omitempty"`
}
