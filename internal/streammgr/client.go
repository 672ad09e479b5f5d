package streammgr

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/nyxio/h1x/internal/herr"
	"github.com/nyxio/h1x/internal/httpx"
	"github.com/nyxio/h1x/internal/parser"
	"github.com/nyxio/h1x/internal/stream"
)

// NewClientExchange returns a Manager that composes an outbound request via
// WriteRequest and parses the inbound response off bytes fed through
// OnBytes. It shares the server constructor's buffer/ready setup, only its
// role differs.
func NewClientExchange(sink stream.Sink, limits Limits, composeCfg httpx.ComposeConfig, tlsHint bool) *Manager {
	m := NewServerExchange(sink, limits, composeCfg, tlsHint)
	m.role = roleClient
	return m
}

// WriteRequest composes and writes this exchange's request initial,
// returning a stream.Writer bound to its selected body framing. It must be
// called at most once per client Manager, before any bytes are fed to
// OnBytes.
func (m *Manager) WriteRequest(ctx context.Context, method httpx.Method, uri, authority, scheme string, header *httpx.Header) (*stream.Writer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if header == nil {
		header = httpx.NewHeader()
	}
	req := &httpx.RequestInitial{
		Method:    method,
		Version:   httpx.Version11,
		URI:       uri,
		Authority: authority,
		Scheme:    scheme,
		Header:    header,
	}
	data, normalized, err := httpx.ComposeRequest(m.composeCfg, req)
	if err != nil {
		return nil, err
	}
	if werr := m.sink.WriteFrame(data); werr != nil {
		return nil, herr.ErrWriteAborted
	}

	framing, remaining := requestBodyFraming(normalized.Header)
	m.reqInitial = normalized
	m.reqFraming = framing
	m.reqRemaining = remaining
	w := stream.NewWriter(m.sink, framing)
	m.writer = w
	return w, nil
}

// requestBodyFraming derives the Framing a just-composed request header
// implies. Unlike FramingFromHeader's response-side default, the absence of
// both Transfer-Encoding and Content-Length means no body at all: a request
// can never be close-delimited, since the connection outlives it.
func requestBodyFraming(h *httpx.Header) (parser.Framing, int64) {
	if te := h.Get("Transfer-Encoding"); strings.EqualFold(te, "chunked") {
		return parser.FramingChunked, -1
	}
	if cl := h.Get("Content-Length"); cl != "" {
		if n, err := strconv.ParseInt(cl, 10, 64); err == nil && n >= 0 {
			return parser.FramingFixed, n
		}
	}
	return parser.FramingNone, 0
}

// pumpClientLocked parses the inbound response initial once enough bytes
// have arrived, then drains whatever body bytes follow it.
func (m *Manager) pumpClientLocked() {
	if m.respInitial == nil && m.initialErr == nil {
		rc := parser.ResponseContext{}
		if m.reqInitial != nil {
			rc.RequestMethod = m.reqInitial.Method
			rc.IsConnectRequest = m.reqInitial.Method == httpx.MethodCONNECT
			rc.RequestVersion10 = m.reqInitial.Version == httpx.Version10
		}

		res, err := parser.ParseResponseInitial(m.buf, parser.Limits{MaxInitialSize: m.limits.MaxInitialSize}, rc)
		switch {
		case err == nil:
			m.respInitial = res.Initial
			m.respFraming = res.Framing
			m.respRemaining = res.ContentLength
			m.reader = stream.NewReader(m.limits.MaxBufLen, stream.BackpressureHooks{})
			switch res.Framing {
			case parser.FramingChunked:
				m.chunkDecoder = parser.NewChunkedDecoder()
			case parser.FramingFixed:
				if m.respRemaining == 0 {
					m.reader.End()
				}
			case parser.FramingNone:
				m.reader.End()
			}
			m.signalReadyLocked()
		case errors.Is(err, parser.ErrNeedMore):
			return
		case errors.Is(err, herr.ErrEntityTooLarge):
			m.initialErr = herr.ErrEntityTooLarge
			m.signalReadyLocked()
			return
		default:
			m.initialErr = herr.ErrDataMalformed
			m.signalReadyLocked()
			return
		}
	}

	if m.respInitial != nil && m.reader != nil && !m.reader.Finished() {
		m.pumpBodyLocked()
	}
}
