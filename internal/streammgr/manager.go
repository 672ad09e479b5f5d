// Package streammgr implements the Stream Manager (C7): the per-exchange
// coordinator that parses one initial off the connection's buffer, decodes
// its body into a stream.Reader, composes and writes the other side's
// initial, and computes the connection's last-stream decision.
package streammgr

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"

	"github.com/nyxio/h1x/internal/herr"
	"github.com/nyxio/h1x/internal/httpx"
	"github.com/nyxio/h1x/internal/netx"
	"github.com/nyxio/h1x/internal/parser"
	"github.com/nyxio/h1x/internal/stream"
)

// Limits bounds the exchange's initial section and body buffering.
type Limits struct {
	MaxInitialSize int64
	MaxBufLen      int64
}

// role distinguishes which side of the exchange a Manager drives: a server
// Manager parses the request and composes the response; a client Manager
// composes the request and parses the response. One Manager type serves
// both roles. The reqInitial/respInitial fields always hold the request and
// response respectively regardless of role; only which one is parsed
// versus composed, and in which order, changes.
type role int

const (
	roleServer role = iota
	roleClient
)

// Manager owns one exchange: on the server it parses the inbound request
// and composes/writes the outbound response; on the client it composes/
// writes the outbound request and parses the inbound response. Either way
// its core loop is driven by OnBytes and OnEOF, called by the owning
// connection.Driver.
type Manager struct {
	role       role
	limits     Limits
	composeCfg httpx.ComposeConfig
	tlsHint    bool
	sink       stream.Sink

	mu        sync.Mutex
	buf       *netx.Buffer
	ready     chan struct{}
	readyOnce sync.Once

	reqInitial   *httpx.RequestInitial
	reqFraming   parser.Framing
	reqRemaining int64

	respInitial   *httpx.ResponseInitial
	respFraming   parser.Framing
	respRemaining int64

	// chunkDecoder, reader and writer are reused across roles: reader is
	// always the body of whichever initial this Manager parses (request
	// on the server, response on the client); writer is always the body
	// of whichever initial it composes.
	chunkDecoder *parser.ChunkedDecoder
	reader       *stream.Reader
	writer       *stream.Writer

	initialErr error
}

// NewServerExchange returns a Manager that parses a request initial off
// bytes fed through OnBytes and writes its response through sink.
func NewServerExchange(sink stream.Sink, limits Limits, composeCfg httpx.ComposeConfig, tlsHint bool) *Manager {
	return &Manager{
		limits:     limits,
		composeCfg: composeCfg,
		tlsHint:    tlsHint,
		sink:       sink,
		buf:        netx.NewBuffer(),
		ready:      make(chan struct{}),
	}
}

// Ready closes once the inbound initial (the request on a server Manager,
// the response on a client Manager) has parsed successfully, or once a
// terminal initial-section error (Err) is available.
func (m *Manager) Ready() <-chan struct{} { return m.ready }

// Request returns the parsed request initial, or nil if the initial hasn't
// parsed (yet, or ever, if Err is set).
func (m *Manager) Request() *httpx.RequestInitial {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reqInitial
}

// Err returns the terminal error recorded while trying to parse the
// inbound initial: on a server Manager *RequestInitialTooLargeError or
// *RequestInitialMalformedError, on a client Manager herr.ErrEntityTooLarge
// or herr.ErrDataMalformed, and herr.ErrConnectionClosed on either if the
// transport closed first.
func (m *Manager) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.initialErr
}

// Reader returns the inbound body reader (the request body on a server
// Manager, the response body on a client Manager), or nil until Ready closes
// without an error.
func (m *Manager) Reader() *stream.Reader {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reader
}

// Writer returns this exchange's outbound body writer (the response writer
// on a server Manager, the request writer on a client Manager), or nil
// before it has been created.
func (m *Manager) Writer() *stream.Writer {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writer
}

// Response returns the parsed or composed response initial, or nil if it
// isn't available yet.
func (m *Manager) Response() *httpx.ResponseInitial {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.respInitial
}

// TakeLeftover removes and returns any bytes already buffered beyond this
// exchange's own message (e.g. a pipelined next request). The caller is
// expected to feed them to the next exchange's Manager.
func (m *Manager) TakeLeftover() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n := m.buf.Len(); n > 0 {
		out := append([]byte(nil), m.buf.Bytes()...)
		m.buf.Discard(n)
		return out
	}
	return nil
}

// OnBytes feeds newly received bytes into the exchange.
func (m *Manager) OnBytes(data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buf.Append(data)
	m.pumpLocked()
}

// OnEOF signals the transport has reached end-of-stream.
func (m *Manager) OnEOF() {
	m.mu.Lock()
	defer m.mu.Unlock()

	parsedMissing := m.reqInitial == nil
	inboundFraming := m.reqFraming
	if m.role == roleClient {
		parsedMissing = m.respInitial == nil
		inboundFraming = m.respFraming
	}

	if parsedMissing && m.initialErr == nil {
		m.initialErr = herr.ErrConnectionClosed
		m.signalReadyLocked()
	}
	if m.reader != nil && !m.reader.Finished() {
		if inboundFraming == parser.FramingEndless {
			m.reader.End()
		} else {
			m.reader.Fail(herr.ErrDataMalformed)
		}
	}
	if m.writer != nil {
		m.writer.Abort()
	}
}

func (m *Manager) signalReadyLocked() {
	m.readyOnce.Do(func() { close(m.ready) })
}

func (m *Manager) pumpLocked() {
	if m.role == roleClient {
		m.pumpClientLocked()
		return
	}
	m.pumpServerLocked()
}

func (m *Manager) pumpServerLocked() {
	if m.reqInitial == nil && m.initialErr == nil {
		res, err := parser.ParseRequestInitial(m.buf, parser.Limits{MaxInitialSize: m.limits.MaxInitialSize}, m.tlsHint)
		switch {
		case err == nil:
			m.reqInitial = res.Initial
			m.reqFraming = res.Framing
			m.reqRemaining = res.ContentLength
			m.reader = stream.NewReader(m.limits.MaxBufLen, stream.BackpressureHooks{})
			switch res.Framing {
			case parser.FramingChunked:
				m.chunkDecoder = parser.NewChunkedDecoder()
			case parser.FramingFixed:
				if m.reqRemaining == 0 {
					m.reader.End()
				}
			case parser.FramingNone:
				m.reader.End()
			}
			m.signalReadyLocked()
		case errors.Is(err, parser.ErrNeedMore):
			return
		case errors.Is(err, herr.ErrEntityTooLarge):
			m.initialErr = &RequestInitialTooLargeError{Respond: m.makeResponder(431)}
			m.signalReadyLocked()
			return
		default:
			m.initialErr = &RequestInitialMalformedError{Respond: m.makeResponder(400)}
			m.signalReadyLocked()
			return
		}
	}

	if m.reqInitial != nil && m.reader != nil && !m.reader.Finished() {
		m.pumpBodyLocked()
	}
}

// pumpBodyLocked drains whatever is newly available in buf into m.reader,
// using the inbound side's framing: the request's on a server Manager, the
// response's on a client Manager.
func (m *Manager) pumpBodyLocked() {
	framing := m.reqFraming
	remaining := &m.reqRemaining
	if m.role == roleClient {
		framing = m.respFraming
		remaining = &m.respRemaining
	}

	switch framing {
	case parser.FramingChunked:
		data, done, err := m.chunkDecoder.Decode(m.buf, parser.Limits{MaxInitialSize: m.limits.MaxInitialSize})
		if len(data) > 0 {
			m.reader.Append(data)
		}
		if err != nil {
			m.reader.Fail(mapBodyErr(err))
			return
		}
		if done {
			m.reader.End()
		}

	case parser.FramingFixed:
		if *remaining <= 0 {
			return
		}
		avail := m.buf.Bytes()
		take := int64(len(avail))
		if take > *remaining {
			take = *remaining
		}
		if take > 0 {
			chunk := append([]byte(nil), avail[:take]...)
			m.buf.Discard(int(take))
			m.reader.Append(chunk)
			*remaining -= take
			if *remaining == 0 {
				m.reader.End()
			}
		}

	case parser.FramingEndless:
		if n := m.buf.Len(); n > 0 {
			data := append([]byte(nil), m.buf.Bytes()...)
			m.buf.Discard(n)
			m.reader.Append(data)
		}

	case parser.FramingNone:
		// Already ended when the initial parsed.
	}
}

func mapBodyErr(err error) error {
	if errors.Is(err, herr.ErrEntityTooLarge) {
		return herr.ErrEntityTooLarge
	}
	var merr *parser.MalformedError
	if errors.As(err, &merr) {
		return herr.ErrDataMalformed
	}
	return err
}

// WriteResponse composes and writes the response initial, then returns a
// stream.Writer bound to the framing the composer selected.
func (m *Manager) WriteResponse(ctx context.Context, status int, header *httpx.Header, isConnectRequest bool) (*stream.Writer, error) {
	m.mu.Lock()

	fc := httpx.ResponseFramingContext{}
	if m.reqInitial != nil {
		fc.RequestMethod = m.reqInitial.Method
		fc.RequestConnectionClose = connectionHasToken(m.reqInitial.Header, "close")
		fc.RequestExpectContinue = strings.EqualFold(m.reqInitial.Header.Get("Expect"), "100-continue")
	}
	fc.IsConnectRequest = isConnectRequest

	resp := &httpx.ResponseInitial{StatusCode: status, Version: httpx.Version11, Header: header}
	interim, final, normalized, err := httpx.ComposeResponse(m.composeCfg, resp, fc)
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}
	if interim != nil {
		if werr := m.sink.WriteFrame(interim); werr != nil {
			m.mu.Unlock()
			return nil, herr.ErrWriteAborted
		}
	}
	if werr := m.sink.WriteFrame(final); werr != nil {
		m.mu.Unlock()
		return nil, herr.ErrWriteAborted
	}

	noBody := fc.RequestMethod == httpx.MethodHEAD || status == 204 || status == 304 || status == 101 || isConnectRequest
	framing, _ := parser.FramingFromHeader(normalized.Header, noBody)

	m.respInitial = normalized
	m.respFraming = framing
	w := stream.NewWriter(m.sink, framing)
	m.writer = w
	m.mu.Unlock()

	return w, nil
}

// makeResponder builds the Respond closure carried by the initial-section
// error types: it writes a fixed-length, Connection: Close response with
// the given default status and the caller-supplied body, bypassing the
// normal per-exchange composition path since no request initial exists.
func (m *Manager) makeResponder(defaultStatus int) Responder {
	return func(ctx context.Context, body []byte) (*stream.Writer, error) {
		m.mu.Lock()
		header := httpx.NewHeader()
		_ = header.Set("Content-Length", strconv.Itoa(len(body)))
		resp := &httpx.ResponseInitial{StatusCode: defaultStatus, Version: httpx.Version11, Header: header}
		_, final, normalized, err := httpx.ComposeResponse(m.composeCfg, resp, httpx.ResponseFramingContext{RequestConnectionClose: true})
		if err != nil {
			m.mu.Unlock()
			return nil, err
		}
		if werr := m.sink.WriteFrame(final); werr != nil {
			m.mu.Unlock()
			return nil, herr.ErrWriteAborted
		}
		m.respInitial = normalized
		m.respFraming = parser.FramingFixed
		w := stream.NewWriter(m.sink, parser.FramingFixed)
		m.writer = w
		m.mu.Unlock()

		if ferr := w.Finish(ctx, body); ferr != nil {
			return w, ferr
		}
		return w, nil
	}
}

// IsLast reports whether this connection must end after the current
// exchange: an error on either side, an Upgrade/CONNECT tunnel, or anything
// other than HTTP/1.1 without Close / HTTP/1.0 with both sides Keep-Alive
// forces the connection to end.
func (m *Manager) IsLast() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.initialErr != nil {
		return true
	}
	if m.reqInitial == nil || m.respInitial == nil {
		return true
	}
	if m.reqFraming == parser.FramingEndless || m.respFraming == parser.FramingEndless {
		return true
	}

	reqClose := connectionHasToken(m.reqInitial.Header, "close")
	respClose := connectionHasToken(m.respInitial.Header, "close")

	if m.reqInitial.Version == httpx.Version11 && m.respInitial.Version == httpx.Version11 {
		return reqClose || respClose
	}
	if m.reqInitial.Version == httpx.Version10 && m.respInitial.Version == httpx.Version10 {
		reqKeep := connectionHasToken(m.reqInitial.Header, "keep-alive")
		respKeep := connectionHasToken(m.respInitial.Header, "keep-alive")
		return !(reqKeep && respKeep)
	}
	return true
}

func connectionHasToken(h *httpx.Header, token string) bool {
	if h == nil {
		return false
	}
	for _, v := range h.Values("Connection") {
		for _, tok := range strings.Split(v, ",") {
			if strings.EqualFold(strings.TrimSpace(tok), token) {
				return true
			}
		}
	}
	return false
}
