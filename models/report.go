package models

// PathActivity describes one path with an active task, for status display.
type PathActivity struct {
	Path     string   `json:"path"`
	Kind     TaskKind `json:"kind"`
	Attempts int      `json:"attempts"`
}

// ContainerReport is the read-only status projection for one container,
// consumed by the GUI collaborator. It is never a control channel back into
// the engine.
type ContainerReport struct {
	Container     Container       `json:"container"`
	Path          string          `json:"path"`
	Status        ContainerStatus `json:"status"`
	QuotaExceeded bool            `json:"quota_exceeded"`
	Conflicts     []string        `json:"conflicts,omitempty"`
	Errors        []string        `json:"errors,omitempty"`
	Activity      []PathActivity  `json:"activity,omitempty"`
}
