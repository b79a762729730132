// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package crypto

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MKhiriev/go-vault-sync/internal/config"
	"github.com/MKhiriev/go-vault-sync/internal/logger"
)

// reversingCipher is a trivial test cipher: both directions reverse the
// input, so Encrypt followed by Decrypt restores the original.
type reversingCipher struct {
	mu    sync.Mutex
	block chan struct{} // when non-nil, serve blocks until it is closed
	calls int
}

func (c *reversingCipher) transform(data []byte) []byte {
	c.mu.Lock()
	block := c.block
	c.calls++
	c.mu.Unlock()

	if block != nil {
		<-block
	}

	out := make([]byte, len(data))
	for i, b := range data {
		out[len(data)-1-i] = b
	}
	return out
}

func (c *reversingCipher) Encrypt(_ string, plaintext []byte) ([]byte, error) {
	return c.transform(plaintext), nil
}

func (c *reversingCipher) Decrypt(_ string, ciphertext []byte) ([]byte, error) {
	return c.transform(ciphertext), nil
}

func testGatewayConfig() config.Encryption {
	return config.Encryption{QueueSize: 8, Workers: 2}
}

func TestQueueGateway_EncryptDecryptRoundTrip(t *testing.T) {
	g := NewQueueGateway(testGatewayConfig(), &reversingCipher{}, logger.Nop())
	defer g.Close()

	var encrypted bytes.Buffer
	err := g.Encrypt(context.Background(), "c1", strings.NewReader("abc"), &encrypted)
	require.NoError(t, err)
	assert.Equal(t, "cba", encrypted.String())

	var decrypted bytes.Buffer
	err = g.Decrypt(context.Background(), "c1", &encrypted, &decrypted)
	require.NoError(t, err)
	assert.Equal(t, "abc", decrypted.String())
}

func TestQueueGateway_ConcurrentRequests(t *testing.T) {
	g := NewQueueGateway(testGatewayConfig(), &reversingCipher{}, logger.Nop())
	defer g.Close()

	const n = 20
	var wg sync.WaitGroup
	errs := make([]error, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var out bytes.Buffer
			errs[i] = g.Encrypt(context.Background(), "c1", strings.NewReader("data"), &out)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		assert.NoError(t, err, "request %d", i)
	}
}

func TestQueueGateway_CanceledCallerDoesNotWedgeWorkers(t *testing.T) {
	cipher := &reversingCipher{block: make(chan struct{})}
	g := NewQueueGateway(config.Encryption{QueueSize: 1, Workers: 1}, cipher, logger.Nop())

	// First request occupies the only worker.
	firstDone := make(chan error, 1)
	go func() {
		var out bytes.Buffer
		firstDone <- g.Encrypt(context.Background(), "c1", strings.NewReader("slow"), &out)
	}()

	require.Eventually(t, func() bool {
		cipher.mu.Lock()
		defer cipher.mu.Unlock()
		return cipher.calls == 1
	}, 5*time.Second, time.Millisecond)

	// Second request waits in the queue; its caller gives up.
	ctx, cancel := context.WithCancel(context.Background())
	abandoned := make(chan error, 1)
	go func() {
		var out bytes.Buffer
		abandoned <- g.Encrypt(ctx, "c1", strings.NewReader("abandoned"), &out)
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-abandoned:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("abandoned caller never returned")
	}

	// Releasing the worker lets everything complete and Close drain cleanly.
	close(cipher.block)
	require.NoError(t, <-firstDone)
	assert.NoError(t, g.Close())

	// A fresh request after the abandoned one would have worked too: the
	// worker skipped the dead request instead of blocking on it.
	cipher.mu.Lock()
	defer cipher.mu.Unlock()
	assert.Equal(t, 1, cipher.calls)
}

func TestQueueGateway_SubmitAfterCloseFails(t *testing.T) {
	g := NewQueueGateway(testGatewayConfig(), &reversingCipher{}, logger.Nop())
	require.NoError(t, g.Close())

	var out bytes.Buffer
	err := g.Encrypt(context.Background(), "c1", strings.NewReader("late"), &out)
	assert.ErrorIs(t, err, ErrUnavailable)

	err = g.Decrypt(context.Background(), "c1", strings.NewReader("late"), &out)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestQueueGateway_CloseIsIdempotent(t *testing.T) {
	g := NewQueueGateway(testGatewayConfig(), &reversingCipher{}, logger.Nop())
	require.NoError(t, g.Close())
	assert.NoError(t, g.Close())
}

func TestQueueGateway_CloseDrainsInFlightWork(t *testing.T) {
	cipher := &reversingCipher{block: make(chan struct{})}
	g := NewQueueGateway(config.Encryption{QueueSize: 4, Workers: 1}, cipher, logger.Nop())

	result := make(chan error, 1)
	var out bytes.Buffer
	go func() {
		result <- g.Encrypt(context.Background(), "c1", strings.NewReader("abc"), &out)
	}()

	require.Eventually(t, func() bool {
		cipher.mu.Lock()
		defer cipher.mu.Unlock()
		return cipher.calls == 1
	}, 5*time.Second, time.Millisecond)

	// Release the worker shortly after Close starts draining.
	go func() {
		time.Sleep(20 * time.Millisecond)
		close(cipher.block)
	}()

	assert.NoError(t, g.Close())
	require.NoError(t, <-result)
	assert.Equal(t, "cba", out.String())
}
