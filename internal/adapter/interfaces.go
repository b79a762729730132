package adapter

import (
	"context"
	"io"

	"github.com/MKhiriev/go-vault-sync/models"
)

//go:generate mockgen -source=interfaces.go -destination=../mock/mock_adapter.go -package=mock

// Storage is the remote storage accessor used by the sync engine. Every
// method reports failures through the sentinel error kinds in errors.go so
// callers can distinguish transient faults, quota exhaustion, and permission
// problems without knowing the wire protocol.
type Storage interface {
	// ListContainers returns the containers visible to the authenticated
	// account. The registry reconciles its pool set against this listing.
	ListContainers(ctx context.Context) ([]models.Container, error)

	// List returns the objects currently stored in a container.
	List(ctx context.Context, containerID string) ([]models.RemoteObject, error)

	// Upload stores content at path and returns the new object revision.
	Upload(ctx context.Context, containerID, path string, content io.Reader) (string, error)

	// Download returns the stored object content and its revision.
	Download(ctx context.Context, containerID, path string) ([]byte, string, error)

	// Delete removes the object at path. Deleting a missing object returns
	// ErrNotFound; callers decide whether that counts as success.
	Delete(ctx context.Context, containerID, path string) error

	// Move renames an object inside a container without re-transferring its
	// content and returns the revision at the destination path.
	Move(ctx context.Context, containerID, fromPath, toPath string) (string, error)
}
