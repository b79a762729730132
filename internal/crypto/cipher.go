// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
)

// passphraseCipher implements [Cipher] with AES-256-GCM. The key is derived
// per container from its passphrase with Argon2id; a random 16-byte salt and
// the 12-byte GCM nonce are prepended to every blob:
//
//	blob = salt ‖ nonce ‖ ciphertext
//
// so decryption needs nothing beyond the passphrase itself.
type passphraseCipher struct {
	passphrases PassphraseStore

	// Argon2id tuning parameters. Stored in the struct so they can be
	// adjusted per deployment target (e.g. mobile vs. desktop).
	argonTime    uint32
	argonMemory  uint32
	argonThreads uint8
	argonKeyLen  uint32
}

const cipherSaltLen = 16

// NewPassphraseCipher constructs a [Cipher] with the Argon2id parameters
// recommended by OWASP (2024):
//   - time cost:   1 iteration
//   - memory cost: 64 MiB
//   - parallelism: 4 threads
//   - key length:  32 bytes (256 bits)
//
// keyRef values are container ids resolved through passphrases.
func NewPassphraseCipher(passphrases PassphraseStore) Cipher {
	return &passphraseCipher{
		passphrases:  passphrases,
		argonTime:    1,
		argonMemory:  64 * 1024,
		argonThreads: 4,
		argonKeyLen:  32,
	}
}

// Encrypt implements [Cipher]. Returns ErrPassphraseNotSet (wrapped) when no
// passphrase is stored for keyRef.
func (c *passphraseCipher) Encrypt(keyRef string, plaintext []byte) ([]byte, error) {
	passphrase, err := c.passphrases.Get(keyRef)
	if err != nil {
		return nil, err
	}

	salt := make([]byte, cipherSaltLen)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}

	gcm, err := c.gcm(passphrase, salt)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	blob := make([]byte, 0, len(salt)+len(nonce)+len(plaintext)+gcm.Overhead())
	blob = append(blob, salt...)
	blob = append(blob, nonce...)
	blob = gcm.Seal(blob, nonce, plaintext, nil)

	return blob, nil
}

// Decrypt implements [Cipher]. An authentication failure almost always means
// a wrong passphrase; it surfaces as ErrDecrypt so the pool can request the
// passphrase again instead of retrying the transfer.
func (c *passphraseCipher) Decrypt(keyRef string, blob []byte) ([]byte, error) {
	passphrase, err := c.passphrases.Get(keyRef)
	if err != nil {
		return nil, err
	}

	if len(blob) < cipherSaltLen {
		return nil, fmt.Errorf("%w: ciphertext too short", ErrDecrypt)
	}
	salt, rest := blob[:cipherSaltLen], blob[cipherSaltLen:]

	gcm, err := c.gcm(passphrase, salt)
	if err != nil {
		return nil, err
	}

	nonceSize := gcm.NonceSize()
	if len(rest) < nonceSize {
		return nil, fmt.Errorf("%w: ciphertext too short", ErrDecrypt)
	}
	nonce, ciphertext := rest[:nonceSize], rest[nonceSize:]

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecrypt, err)
	}

	return plaintext, nil
}

func (c *passphraseCipher) gcm(passphrase string, salt []byte) (cipher.AEAD, error) {
	key := argon2.IDKey(
		[]byte(passphrase),
		salt,
		c.argonTime,
		c.argonMemory,
		c.argonThreads,
		c.argonKeyLen,
	)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}

	return gcm, nil
}
