// Package transport implements the Transport collaborator (C9): the
// external duplex byte stream a connection.Driver is multiplexed over. It
// exposes backpressure (pause/resume reading) and TLS detection as a Go
// interface with a net.Conn-backed adapter.
package transport

import "context"

// Hooks are the downward calls a Transport makes as bytes, end-of-stream,
// and closure events occur. A connection.Driver installs these via
// SetHooks before the Transport starts reading.
type Hooks struct {
	OnBytes  func([]byte)
	OnEOF    func()
	OnClosed func(error)
}

// Transport is the duplex byte stream collaborator. It satisfies
// stream.Sink (WriteFrame, Flush) so a Writer can be driven directly by a
// Transport without an adapter.
type Transport interface {
	// WriteFrame writes already-framed bytes to the peer.
	WriteFrame(data []byte) error
	// Flush blocks until bytes written so far have left this Transport.
	Flush(ctx context.Context) error
	// PauseReading / ResumeReading gate the read loop for backpressure.
	PauseReading()
	ResumeReading()
	// Close tears the transport down from this side.
	Close() error
	// IsClosing reports whether Close has been called or a read error or
	// end-of-stream has already begun shutdown.
	IsClosing() bool
	// IsTLS reports whether the underlying connection is TLS-secured.
	IsTLS() bool
	// SetHooks installs the downward event callbacks. Must be called
	// before the first Start.
	SetHooks(h Hooks)
	// Start begins the read loop in a background goroutine.
	Start()
}
