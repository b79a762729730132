// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCipher(t *testing.T) (Cipher, *MemoryPassphrases) {
	t.Helper()
	passphrases := NewMemoryPassphrases()
	require.NoError(t, passphrases.Set("c1", "correct horse battery staple"))
	return NewPassphraseCipher(passphrases), passphrases
}

func TestPassphraseCipher_RoundTrip(t *testing.T) {
	c, _ := newTestCipher(t)
	plaintext := []byte("the vault contents")

	blob, err := c.Encrypt("c1", plaintext)
	require.NoError(t, err)
	assert.NotEqual(t, plaintext, blob)

	decrypted, err := c.Decrypt("c1", blob)
	require.NoError(t, err)
	assert.Equal(t, plaintext, decrypted)
}

func TestPassphraseCipher_FreshSaltAndNoncePerEncryption(t *testing.T) {
	c, _ := newTestCipher(t)
	plaintext := []byte("same input")

	first, err := c.Encrypt("c1", plaintext)
	require.NoError(t, err)
	second, err := c.Encrypt("c1", plaintext)
	require.NoError(t, err)

	assert.NotEqual(t, first, second)

	// Both still decrypt to the original.
	for _, blob := range [][]byte{first, second} {
		out, err := c.Decrypt("c1", blob)
		require.NoError(t, err)
		assert.Equal(t, plaintext, out)
	}
}

func TestPassphraseCipher_WrongPassphraseFailsClosed(t *testing.T) {
	c, passphrases := newTestCipher(t)

	blob, err := c.Encrypt("c1", []byte("secret"))
	require.NoError(t, err)

	require.NoError(t, passphrases.Set("c1", "a different passphrase"))

	_, err = c.Decrypt("c1", blob)
	assert.ErrorIs(t, err, ErrDecrypt)
}

func TestPassphraseCipher_TamperedBlobFailsClosed(t *testing.T) {
	c, _ := newTestCipher(t)

	blob, err := c.Encrypt("c1", []byte("secret"))
	require.NoError(t, err)

	blob[len(blob)-1] ^= 0xff
	_, err = c.Decrypt("c1", blob)
	assert.ErrorIs(t, err, ErrDecrypt)
}

func TestPassphraseCipher_TruncatedBlobFailsClosed(t *testing.T) {
	c, _ := newTestCipher(t)

	_, err := c.Decrypt("c1", []byte("way too short"))
	assert.ErrorIs(t, err, ErrDecrypt)
}

func TestPassphraseCipher_MissingPassphrase(t *testing.T) {
	c := NewPassphraseCipher(NewMemoryPassphrases())

	_, err := c.Encrypt("unknown", []byte("secret"))
	assert.ErrorIs(t, err, ErrPassphraseNotSet)
}

func TestMemoryPassphrases_Lifecycle(t *testing.T) {
	p := NewMemoryPassphrases()

	assert.False(t, p.Available("c1"))
	_, err := p.Get("c1")
	assert.ErrorIs(t, err, ErrPassphraseNotSet)

	require.NoError(t, p.Set("c1", "pass"))
	assert.True(t, p.Available("c1"))

	got, err := p.Get("c1")
	require.NoError(t, err)
	assert.Equal(t, "pass", got)

	require.NoError(t, p.Forget("c1"))
	assert.False(t, p.Available("c1"))
}
