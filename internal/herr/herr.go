// Package herr defines the sentinel error taxonomy surfaced to applications
// by the Reader and Writer contracts.
package herr

import "errors"

// Read-side errors.
var (
	// ErrReadFinished means the stream ended cleanly and the buffer is drained.
	ErrReadFinished = errors.New("h1x: read finished")
	// ErrReadAborted means the transport or the user tore the connection down.
	ErrReadAborted = errors.New("h1x: read aborted")
	// ErrDataMalformed wraps any parse failure observed after the initial.
	ErrDataMalformed = errors.New("h1x: received data malformed")
	// ErrEntityTooLarge covers the initial, a chunk length line, or a chunked
	// body that exceeds the configured cap.
	ErrEntityTooLarge = errors.New("h1x: entity too large")
	// ErrReadUnsatisfiable means an exact-length read could not be satisfied
	// before end-of-stream.
	ErrReadUnsatisfiable = errors.New("h1x: read unsatisfiable")
	// ErrMaxBufferReached means the in-memory buffer grew past max_buf_len.
	ErrMaxBufferReached = errors.New("h1x: max buffer reached")
	// ErrSeparatorNotFound means ReadUntil's separator never appeared before
	// end-of-stream, with data still pending.
	ErrSeparatorNotFound = errors.New("h1x: separator not found")
)

// Write-side errors.
var (
	// ErrWriteAfterFinished means Write/Finish was called on an already
	// FINISHED writer with non-empty data.
	ErrWriteAfterFinished = errors.New("h1x: write after finished")
	// ErrWriteAborted means the transport or the user tore the connection down.
	ErrWriteAborted = errors.New("h1x: write aborted")
)

// Connection-level errors.
var (
	// ErrConnectionClosed is returned by WriteRequest/NextRequest once the
	// connection has rotated past its last stream.
	ErrConnectionClosed = errors.New("h1x: connection closed")
)
