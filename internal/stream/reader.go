// Package stream implements the Stream Reader and Stream Writer: the
// per-exchange body queue and the per-exchange outgoing body encoder. Both
// types serialize concurrent callers with a weighted semaphore of 1. The
// Writer signals completion through internal/waiter; the Reader wakes
// blocked callers by closing and replacing a notify channel.
package stream

import (
	"bytes"
	"context"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/nyxio/h1x/internal/herr"
	"github.com/nyxio/h1x/internal/netx"
)

// BackpressureHooks lets a Reader ask its owning Stream Manager to pause or
// resume the transport's read side once the buffered body crosses
// MaxBufLen in either direction. Either field may be nil.
type BackpressureHooks struct {
	PauseReading  func()
	ResumeReading func()
}

// Reader is an in-memory byte queue fed by Append/End/Fail and drained by
// Read/ReadUntil. All read operations are mutually exclusive: only one may
// be outstanding on a given Reader at a time.
type Reader struct {
	sem *semaphore.Weighted

	mu        sync.Mutex
	buf       *netx.Buffer
	ended     bool
	err       error
	notify    chan struct{}
	maxBufLen int64
	paused    bool
	hooks     BackpressureHooks
}

// NewReader returns an empty Reader. maxBufLen <= 0 disables both the
// MAX_BUFFER_REACHED cap and backpressure signalling.
func NewReader(maxBufLen int64, hooks BackpressureHooks) *Reader {
	return &Reader{
		sem:       semaphore.NewWeighted(1),
		buf:       netx.NewBuffer(),
		notify:    make(chan struct{}),
		maxBufLen: maxBufLen,
		hooks:     hooks,
	}
}

// Append adds decoded body bytes to the queue. Called by the owning Stream
// Manager as the connection's buffer yields them.
func (r *Reader) Append(data []byte) {
	if len(data) == 0 {
		return
	}
	r.mu.Lock()
	r.buf.Append(data)
	r.checkBackpressureLocked()
	r.wakeLocked()
	r.mu.Unlock()
}

// End signals that no more bytes are coming; the body ended cleanly.
func (r *Reader) End() {
	r.mu.Lock()
	r.ended = true
	r.wakeLocked()
	r.mu.Unlock()
}

// Fail records a terminal error and ends the stream. The first error wins.
func (r *Reader) Fail(err error) {
	r.mu.Lock()
	if r.err == nil {
		r.err = err
	}
	r.ended = true
	r.wakeLocked()
	r.mu.Unlock()
}

// Abort is Fail(herr.ErrReadAborted), exposed as the public C5 operation.
func (r *Reader) Abort() {
	r.Fail(herr.ErrReadAborted)
}

func (r *Reader) wakeLocked() {
	close(r.notify)
	r.notify = make(chan struct{})
}

func (r *Reader) checkBackpressureLocked() {
	if r.maxBufLen <= 0 {
		return
	}
	n := int64(r.buf.Len())
	switch {
	case !r.paused && n > r.maxBufLen:
		r.paused = true
		if r.hooks.PauseReading != nil {
			r.hooks.PauseReading()
		}
	case r.paused && n <= r.maxBufLen:
		r.paused = false
		if r.hooks.ResumeReading != nil {
			r.hooks.ResumeReading()
		}
	}
}

func (r *Reader) terminalErrLocked(fallback error) error {
	if r.err != nil {
		return r.err
	}
	return fallback
}

// Read implements the C5 `read(n, exactly)` operation.
//
//   - n == 0 returns an empty slice immediately.
//   - exactly == true requires n >= 0; it waits for exactly n bytes and
//     fails with ErrReadUnsatisfiable if the stream ends first.
//   - n < 0 reads until end; exceeding maxBufLen before end fails with
//     ErrMaxBufferReached.
//   - n > 0, exactly == false returns at most n bytes, waiting for the
//     first append if the buffer is currently empty.
func (r *Reader) Read(ctx context.Context, n int64, exactly bool) ([]byte, error) {
	if exactly && n < 0 {
		return nil, herr.ErrReadUnsatisfiable
	}
	if n == 0 {
		return []byte{}, nil
	}
	if err := r.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer r.sem.Release(1)

	for {
		r.mu.Lock()
		avail := int64(r.buf.Len())

		switch {
		case exactly:
			if avail >= n {
				out := cloneAndDiscard(r.buf, n)
				r.checkBackpressureLocked()
				r.mu.Unlock()
				return out, nil
			}
			if r.ended {
				err := r.terminalErrLocked(herr.ErrReadUnsatisfiable)
				r.mu.Unlock()
				return nil, err
			}

		case n < 0:
			if r.maxBufLen > 0 && avail > r.maxBufLen {
				r.mu.Unlock()
				return nil, herr.ErrMaxBufferReached
			}
			if r.ended {
				if r.err != nil {
					err := r.err
					r.mu.Unlock()
					return nil, err
				}
				out := cloneAndDiscard(r.buf, avail)
				r.mu.Unlock()
				return out, nil
			}

		default: // n > 0, exactly == false
			if avail > 0 {
				take := n
				if take > avail {
					take = avail
				}
				out := cloneAndDiscard(r.buf, take)
				r.checkBackpressureLocked()
				r.mu.Unlock()
				return out, nil
			}
			if r.ended {
				err := r.terminalErrLocked(herr.ErrReadFinished)
				r.mu.Unlock()
				return nil, err
			}
		}

		wake := r.notify
		r.mu.Unlock()
		select {
		case <-wake:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// ReadUntil implements the C5 `read_until(separator, keep_separator)`
// operation.
func (r *Reader) ReadUntil(ctx context.Context, sep []byte, keepSeparator bool) ([]byte, error) {
	if err := r.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer r.sem.Release(1)

	for {
		r.mu.Lock()
		data := r.buf.Bytes()
		if idx := bytes.Index(data, sep); idx >= 0 {
			end := idx
			if keepSeparator {
				end += len(sep)
			}
			out := append([]byte(nil), data[:end]...)
			r.buf.Discard(idx + len(sep))
			r.checkBackpressureLocked()
			r.mu.Unlock()
			return out, nil
		}

		avail := int64(len(data))
		if r.maxBufLen > 0 && avail > r.maxBufLen {
			r.mu.Unlock()
			return nil, herr.ErrMaxBufferReached
		}
		if r.ended {
			if avail > 0 {
				err := r.terminalErrLocked(herr.ErrSeparatorNotFound)
				r.mu.Unlock()
				return nil, err
			}
			err := r.terminalErrLocked(herr.ErrReadFinished)
			r.mu.Unlock()
			return nil, err
		}

		wake := r.notify
		r.mu.Unlock()
		select {
		case <-wake:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// WaitEnd blocks until the stream ends, successfully or with error.
func (r *Reader) WaitEnd(ctx context.Context) error {
	for {
		r.mu.Lock()
		if r.ended {
			err := r.err
			r.mu.Unlock()
			return err
		}
		wake := r.notify
		r.mu.Unlock()
		select {
		case <-wake:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Finished reports whether the stream has ended and its buffer is drained.
func (r *Reader) Finished() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ended && r.buf.Len() == 0
}

// EndAppended reports whether end-of-stream has been signaled, regardless
// of whether the buffer has been fully drained yet.
func (r *Reader) EndAppended() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ended
}

func cloneAndDiscard(buf *netx.Buffer, n int64) []byte {
	out := append([]byte(nil), buf.Bytes()[:n]...)
	buf.Discard(int(n))
	return out
}
