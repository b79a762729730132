package models

// Container is a synchronized remote namespace: a personal or shared folder
// with its own encryption key, membership, and quota. Containers are owned by
// the remote service; the engine mirrors each active one with a
// [LocalContainer].
type Container struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	Encrypted         bool   `json:"encrypted"`
	KeyRef            string `json:"key_ref,omitempty"`
	MembershipVersion int64  `json:"membership_version"`
}

// ContainerStatus is the derived synchronization status of a LocalContainer.
// It is never set directly: it reflects scheduler, quota, and passphrase state.
type ContainerStatus string

const (
	ContainerStatusUnknown          ContainerStatus = "unknown"
	ContainerStatusStopped          ContainerStatus = "stopped"
	ContainerStatusPaused           ContainerStatus = "paused"
	ContainerStatusStarted          ContainerStatus = "started"
	ContainerStatusQuotaExceeded    ContainerStatus = "quota_exceeded"
	ContainerStatusPassphraseNeeded ContainerStatus = "passphrase_needed"
	ContainerStatusError            ContainerStatus = "error"
)

// LocalContainer binds a Container to a local filesystem path. Exactly one
// exists per active container.
type LocalContainer struct {
	Container Container       `json:"container"`
	Path      string          `json:"path"`
	Status    ContainerStatus `json:"status"`
}
