package crypto

import (
	"context"
	"io"
)

//go:generate mockgen -source=interfaces.go -destination=../mock/mock_crypto.go -package=mock

// Gateway is the narrow boundary the sync engine ciphers file content
// through. Both calls may be long-running; they are executed by the gateway's
// own workers, never on the caller's goroutine, and must be safely
// cancellable via ctx without wedging the gateway for later requests.
type Gateway interface {
	Encrypt(ctx context.Context, keyRef string, src io.Reader, dst io.Writer) error
	Decrypt(ctx context.Context, keyRef string, src io.Reader, dst io.Writer) error
}

// Cipher performs the actual cryptographic transform for one request. The
// default implementation is AES-256-GCM keyed per container; swapping in an
// out-of-process implementation only changes this interface's provider.
type Cipher interface {
	Encrypt(keyRef string, plaintext []byte) ([]byte, error)
	Decrypt(keyRef string, ciphertext []byte) ([]byte, error)
}

// PassphraseStore hands out container passphrases. Absence is reported with
// ErrPassphraseNotSet, which the pool maps to the passphrase_needed status.
type PassphraseStore interface {
	Get(containerID string) (string, error)
	Set(containerID, passphrase string) error
	Forget(containerID string) error
	Available(containerID string) bool
}
