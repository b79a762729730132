package crypto

import "errors"

var (
	// ErrUnavailable means the encryption gateway cannot serve requests:
	// it is closed, shutting down, or its worker failed. Distinct from
	// network errors so the pool can pause the container instead of
	// retrying per task.
	ErrUnavailable = errors.New("encryption gateway unavailable")
	// ErrPassphraseNotSet means no passphrase is stored for the container,
	// so its content cannot be ciphered or validated.
	ErrPassphraseNotSet = errors.New("container passphrase not set")
	// ErrDecrypt means the ciphertext could not be authenticated: wrong
	// passphrase or corrupted content.
	ErrDecrypt = errors.New("decryption failed")
)
