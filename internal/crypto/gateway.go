package crypto

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/MKhiriev/go-vault-sync/internal/config"
	"github.com/MKhiriev/go-vault-sync/internal/logger"
)

// drainTimeout bounds how long Close waits for in-flight cipher work. A
// worker stuck past it is abandoned rather than letting shutdown hang.
const drainTimeout = 5 * time.Second

type cipherRequest struct {
	ctx     context.Context
	decrypt bool
	keyRef  string
	src     io.Reader
	dst     io.Writer
	// done is buffered so a worker can post its result even after the
	// caller gave up waiting; the gateway must never wedge on an abandoned
	// request.
	done chan error
}

// QueueGateway implements [Gateway] with a bounded request queue served by a
// fixed set of worker goroutines. The queue is shared process-wide across all
// containers. Shutdown follows an explicit close/drain protocol: stop
// accepting, let in-flight requests finish or time out, release the workers;
// a caller is never blocked indefinitely on a gateway that has already
// stopped.
type QueueGateway struct {
	cipher Cipher
	log    *logger.Logger

	mu       sync.RWMutex
	closed   bool
	requests chan *cipherRequest
	wg       sync.WaitGroup
}

// NewQueueGateway starts cfg.Workers workers over a queue of cfg.QueueSize
// pending requests.
func NewQueueGateway(cfg config.Encryption, cipher Cipher, log *logger.Logger) *QueueGateway {
	g := &QueueGateway{
		cipher:   cipher,
		log:      log,
		requests: make(chan *cipherRequest, cfg.QueueSize),
	}

	for i := 0; i < cfg.Workers; i++ {
		g.wg.Add(1)
		go g.worker()
	}

	return g
}

// Encrypt implements [Gateway].
func (g *QueueGateway) Encrypt(ctx context.Context, keyRef string, src io.Reader, dst io.Writer) error {
	return g.submit(ctx, &cipherRequest{ctx: ctx, keyRef: keyRef, src: src, dst: dst, done: make(chan error, 1)})
}

// Decrypt implements [Gateway].
func (g *QueueGateway) Decrypt(ctx context.Context, keyRef string, src io.Reader, dst io.Writer) error {
	return g.submit(ctx, &cipherRequest{ctx: ctx, decrypt: true, keyRef: keyRef, src: src, dst: dst, done: make(chan error, 1)})
}

func (g *QueueGateway) submit(ctx context.Context, req *cipherRequest) error {
	g.mu.RLock()
	if g.closed {
		g.mu.RUnlock()
		return ErrUnavailable
	}

	select {
	case g.requests <- req:
		g.mu.RUnlock()
	case <-ctx.Done():
		g.mu.RUnlock()
		return ctx.Err()
	}

	select {
	case err := <-req.done:
		return err
	case <-ctx.Done():
		// The worker will notice the dead context or post into the
		// buffered done channel; either way it keeps running.
		return ctx.Err()
	}
}

func (g *QueueGateway) worker() {
	defer g.wg.Done()

	for req := range g.requests {
		// Skip work the caller has already abandoned.
		if err := req.ctx.Err(); err != nil {
			req.done <- err
			continue
		}
		req.done <- g.serve(req)
	}
}

func (g *QueueGateway) serve(req *cipherRequest) error {
	data, err := io.ReadAll(req.src)
	if err != nil {
		return fmt.Errorf("read cipher input: %w", err)
	}

	var out []byte
	if req.decrypt {
		out, err = g.cipher.Decrypt(req.keyRef, data)
	} else {
		out, err = g.cipher.Encrypt(req.keyRef, data)
	}
	if err != nil {
		return err
	}

	if _, err = req.dst.Write(out); err != nil {
		return fmt.Errorf("write cipher output: %w", err)
	}
	return nil
}

// Close stops accepting requests, drains the in-flight ones, and releases the
// workers. Returns ErrUnavailable (wrapped) when the drain exceeds its
// timeout; the workers are abandoned in that case, never the caller.
func (g *QueueGateway) Close() error {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return nil
	}
	g.closed = true
	close(g.requests)
	g.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		return nil
	case <-time.After(drainTimeout):
		g.log.Error().Msg("encryption gateway drain timed out")
		return fmt.Errorf("%w: drain timed out", ErrUnavailable)
	}
}
