package stream

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/nyxio/h1x/internal/herr"
	"github.com/nyxio/h1x/internal/httpx"
	"github.com/nyxio/h1x/internal/parser"
	"github.com/nyxio/h1x/internal/waiter"
)

// Sink is the Writer's view of its transport: already-framed bytes go out
// through WriteFrame, and Flush blocks until the transport reports the
// prior writes drained to the OS.
type Sink interface {
	WriteFrame(data []byte) error
	Flush(ctx context.Context) error
}

// Writer encodes an outgoing body per its Framing and hands the result to a
// Sink. Flush and Finish share a weighted semaphore of 1 so at most one is
// in flight at a time.
type Writer struct {
	sem  *semaphore.Weighted
	sink Sink

	mu       sync.Mutex
	framing  parser.Framing
	finished bool
	err      error
	waiter   *waiter.Waiter
}

// NewWriter returns a Writer that encodes its body according to framing and
// delivers frames to sink.
func NewWriter(sink Sink, framing parser.Framing) *Writer {
	return &Writer{
		sem:     semaphore.NewWeighted(1),
		sink:    sink,
		framing: framing,
		waiter:  waiter.New(),
	}
}

// Write appends data to the body. Empty data is a no-op; calling after
// Finish fails with ErrWriteAfterFinished, and after Abort or a transport
// failure with ErrWriteAborted.
func (w *Writer) Write(data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(data) == 0 {
		return nil
	}
	if w.finished {
		if w.err != nil {
			return w.err
		}
		return herr.ErrWriteAfterFinished
	}
	return w.emitLocked(data, false)
}

// Flush yields until the transport reports the writer's prior output
// drained.
func (w *Writer) Flush(ctx context.Context) error {
	if err := w.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer w.sem.Release(1)

	w.mu.Lock()
	if w.finished {
		err := w.err
		w.mu.Unlock()
		return err
	}
	w.mu.Unlock()

	return w.sink.Flush(ctx)
}

// Finish writes any trailing data with the terminal framing signal and
// transitions the writer to FINISHED. Calling it a second time with empty
// trailing data is a no-op; calling it again with non-empty data fails with
// ErrWriteAfterFinished.
func (w *Writer) Finish(ctx context.Context, trailing []byte) error {
	if err := w.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer w.sem.Release(1)

	w.mu.Lock()
	if w.finished {
		w.mu.Unlock()
		if len(trailing) == 0 {
			return nil
		}
		return herr.ErrWriteAfterFinished
	}
	err := w.emitLocked(trailing, true)
	w.finished = true
	w.err = err
	w.mu.Unlock()

	w.waiter.Complete(err)
	return err
}

// Abort tears the writer down immediately; subsequent writes fail with
// ErrWriteAborted.
func (w *Writer) Abort() {
	w.mu.Lock()
	if w.finished {
		w.mu.Unlock()
		return
	}
	w.finished = true
	w.err = herr.ErrWriteAborted
	w.mu.Unlock()
	w.waiter.Complete(herr.ErrWriteAborted)
}

// WaitFinished blocks until the writer reaches FINISHED, by Finish or by
// Abort.
func (w *Writer) WaitFinished(ctx context.Context) error {
	return w.waiter.Wait(ctx)
}

// emitLocked must be called with w.mu held.
func (w *Writer) emitLocked(data []byte, finish bool) error {
	var frame []byte
	if w.framing == parser.FramingChunked {
		frame = httpx.EncodeChunk(data, finish)
	} else {
		frame = data
	}
	if len(frame) == 0 {
		return nil
	}
	if err := w.sink.WriteFrame(frame); err != nil {
		w.finished = true
		w.err = herr.ErrWriteAborted
		w.waiter.Complete(herr.ErrWriteAborted)
		return herr.ErrWriteAborted
	}
	return nil
}
