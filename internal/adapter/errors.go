package adapter

import "errors"

// Error kinds reported by the remote storage client. The scheduler's retry
// policy keys off these: ErrTransient feeds the backoff path, ErrQuotaExceeded
// triggers the container-wide upload cooldown, and the rest are permanent for
// the attempt.
var (
	// ErrTransient covers network faults, timeouts, and server 5xx
	// responses. Safe to retry with backoff.
	ErrTransient = errors.New("transient storage error")
	// ErrQuotaExceeded means the container's storage quota is exhausted.
	// Uploads for that container back off for the cooldown window.
	ErrQuotaExceeded = errors.New("storage quota exceeded")
	// ErrPermissionDenied means the session lacks access to the container
	// or object.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrNotFound means the requested object or container does not exist.
	ErrNotFound = errors.New("object not found")
	// ErrConflict means the remote object changed under the operation.
	ErrConflict = errors.New("remote conflict")
	// ErrBadRequest means the request was malformed; retrying cannot help.
	ErrBadRequest = errors.New("bad request")
)
