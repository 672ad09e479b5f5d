package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"sync"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/semaphore"
)

// Option configures a TCP transport at construction time.
type Option func(*TCP)

// WithReadBufferSize overrides the per-Read scratch buffer size (default
// 32 KiB).
func WithReadBufferSize(n int) Option {
	return func(t *TCP) {
		if n > 0 {
			t.readBufSize = n
		}
	}
}

// TCP adapts a net.Conn (plain or *tls.Conn) to the Transport interface.
type TCP struct {
	conn        net.Conn
	isTLS       bool
	readBufSize int
	hooks       Hooks

	readSem *semaphore.Weighted // held while reading is paused

	writeMu sync.Mutex

	mu      sync.Mutex
	paused  bool
	closing bool
	closed  bool
}

// NewTCP wraps conn as a Transport. TLS detection is a type assertion
// against *tls.Conn.
func NewTCP(conn net.Conn, opts ...Option) *TCP {
	_, isTLS := conn.(*tls.Conn)
	t := &TCP{
		conn:        conn,
		isTLS:       isTLS,
		readBufSize: 32 * 1024,
		readSem:     semaphore.NewWeighted(1),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *TCP) SetHooks(h Hooks) { t.hooks = h }

func (t *TCP) IsTLS() bool { return t.isTLS }

// Start launches the read loop. It must be called after SetHooks.
func (t *TCP) Start() {
	go t.readLoop()
}

func (t *TCP) readLoop() {
	buf := make([]byte, t.readBufSize)
	for {
		// Acquire-then-release blocks here for as long as PauseReading
		// holds the single token, and is a no-op otherwise.
		if err := t.readSem.Acquire(context.Background(), 1); err != nil {
			return
		}
		t.readSem.Release(1)

		n, err := t.conn.Read(buf)
		if n > 0 && t.hooks.OnBytes != nil {
			data := append([]byte(nil), buf[:n]...)
			t.hooks.OnBytes(data)
		}
		if err != nil {
			t.handleReadError(err)
			return
		}
	}
}

func (t *TCP) handleReadError(err error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	t.closing = true
	t.mu.Unlock()

	var cause error
	if errors.Is(err, io.EOF) {
		if t.hooks.OnEOF != nil {
			t.hooks.OnEOF()
		}
	} else {
		cause = err
	}

	closeErr := t.conn.Close()
	final := combineErrors(cause, closeErr)

	if t.hooks.OnClosed != nil {
		t.hooks.OnClosed(final)
	}
}

// combineErrors aggregates a read-loop error and a close error when both
// occur together (e.g. a peer RST racing a local Abort), grounded in the
// same "don't drop either cause" idiom go-multierror provides elsewhere in
// the stack's dependency graph.
func combineErrors(a, b error) error {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	default:
		return multierror.Append(nil, a, b).ErrorOrNil()
	}
}

// WriteFrame writes already-framed bytes to the peer. Concurrent callers
// are serialized; net.Conn does not guarantee atomicity of interleaved
// Write calls.
func (t *TCP) WriteFrame(data []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	_, err := t.conn.Write(data)
	return err
}

// Flush blocks until bytes written so far have left this Transport. Writes
// are synchronous net.Conn.Write calls, so by the time WriteFrame returns
// its bytes are already handed to the OS; Flush only needs to honor
// cancellation.
func (t *TCP) Flush(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

// PauseReading blocks the read loop from issuing its next Read call until
// ResumeReading is called. Idempotent.
func (t *TCP) PauseReading() {
	t.mu.Lock()
	if t.paused {
		t.mu.Unlock()
		return
	}
	t.paused = true
	t.mu.Unlock()
	_ = t.readSem.Acquire(context.Background(), 1)
}

// ResumeReading releases a prior PauseReading. Idempotent.
func (t *TCP) ResumeReading() {
	t.mu.Lock()
	if !t.paused {
		t.mu.Unlock()
		return
	}
	t.paused = false
	t.mu.Unlock()
	t.readSem.Release(1)
}

// Close tears the transport down from this side.
func (t *TCP) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.closing = true
	t.mu.Unlock()
	return t.conn.Close()
}

// IsClosing reports whether shutdown has begun, from either side.
func (t *TCP) IsClosing() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closing
}
