// Package parser implements the incremental HTTP/1.x parser: request/
// response initials, framing selection, and the chunked-transfer decode
// state machine. It never blocks — callers drive it with repeated attempts
// as more bytes arrive. Parsed initials and decoded body bytes are copied
// out of the shared netx.Buffer, not returned as slices of it.
package parser

import (
	"bytes"
	"errors"
	"strconv"
	"strings"

	"github.com/nyxio/h1x/internal/herr"
	"github.com/nyxio/h1x/internal/httpx"
	"github.com/nyxio/h1x/internal/netx"
)

// ErrNeedMore is returned by every parsing entry point when the buffer does
// not yet contain enough bytes to make progress. It is an internal signal,
// never surfaced to applications.
var ErrNeedMore = errors.New("parser: need more data")

// Limits bounds the initial section and chunk-length lines.
type Limits struct {
	MaxInitialSize int64
}

// Framing is the body-framing class selected for one direction of an
// exchange.
type Framing int

const (
	FramingNone Framing = iota
	FramingFixed
	FramingChunked
	FramingEndless
)

func (f Framing) String() string {
	switch f {
	case FramingNone:
		return "none"
	case FramingFixed:
		return "fixed"
	case FramingChunked:
		return "chunked"
	case FramingEndless:
		return "endless"
	default:
		return "unknown"
	}
}

// RequestResult is what ParseRequestInitial produces on success.
type RequestResult struct {
	Initial       *httpx.RequestInitial
	Framing       Framing
	ContentLength int64 // valid when Framing == FramingFixed
}

// ResponseContext supplies the request-side facts the response parser needs
// to pick Endless/No-body framing.
type ResponseContext struct {
	RequestMethod    httpx.Method
	IsConnectRequest bool
	RequestVersion10 bool
}

// ResponseResult is what ParseResponseInitial produces on success.
type ResponseResult struct {
	Initial       *httpx.ResponseInitial
	Framing       Framing
	ContentLength int64
}

// splitInitialBlock locates the first "\r\n\r\n", enforcing MaxInitialSize.
// On success it returns the header block (request/status line + header
// lines, "\r\n"-joined, NOT including the trailing blank line) and the
// total byte count to discard from buf (header block + blank line).
func splitInitialBlock(buf *netx.Buffer, lim Limits) (block []byte, total int, err error) {
	data := buf.Bytes()
	idx := bytes.Index(data, []byte("\r\n\r\n"))
	if idx < 0 {
		if lim.MaxInitialSize > 0 && int64(len(data)) > lim.MaxInitialSize {
			return nil, 0, herr.ErrEntityTooLarge
		}
		return nil, 0, ErrNeedMore
	}
	total = idx + 4
	if lim.MaxInitialSize > 0 && int64(total) > lim.MaxInitialSize {
		return nil, 0, herr.ErrEntityTooLarge
	}
	return data[:idx], total, nil
}

func splitLines(block []byte) []string {
	if len(block) == 0 {
		return nil
	}
	raw := strings.Split(string(block), "\n")
	lines := make([]string, 0, len(raw))
	for _, l := range raw {
		lines = append(lines, strings.TrimSuffix(l, "\r"))
	}
	return lines
}

func parseHeaderLines(lines []string) (*httpx.Header, error) {
	h := httpx.NewHeader()
	for _, line := range lines {
		colon := strings.IndexByte(line, ':')
		if colon <= 0 {
			return nil, newInvalidHeaderLineError(line)
		}
		name := strings.TrimSpace(line[:colon])
		value := strings.TrimSpace(line[colon+1:])
		if name == "" {
			return nil, newInvalidHeaderLineError(line)
		}
		if err := h.Add(name, value); err != nil {
			return nil, err
		}
	}
	return h, nil
}

func newInvalidHeaderLineError(line string) error {
	return &MalformedError{Reason: "invalid header line: " + strconv.Quote(line)}
}

// MalformedError wraps herr.ErrDataMalformed with a human-readable reason.
// It always unwraps to herr.ErrDataMalformed via errors.Is.
type MalformedError struct {
	Reason string
}

func (e *MalformedError) Error() string { return "parser: " + e.Reason }
func (e *MalformedError) Unwrap() error { return herr.ErrDataMalformed }

// ParseRequestInitial attempts to parse one request initial (request line +
// headers) from buf and select its body framing. On success it discards the
// consumed bytes from buf; on ErrNeedMore it discards nothing.
func ParseRequestInitial(buf *netx.Buffer, lim Limits, tlsHint bool) (*RequestResult, error) {
	block, total, err := splitInitialBlock(buf, lim)
	if err != nil {
		return nil, err
	}

	lines := splitLines(block)
	if len(lines) == 0 {
		buf.Discard(total)
		return nil, &MalformedError{Reason: "empty request line"}
	}

	method, uri, version, err := parseRequestLine(lines[0])
	if err != nil {
		buf.Discard(total)
		return nil, err
	}

	header, err := parseHeaderLines(lines[1:])
	if err != nil {
		buf.Discard(total)
		return nil, err
	}

	u, uerr := httpx.ParseRequestURI(uri)
	if uerr != nil {
		buf.Discard(total)
		return nil, &MalformedError{Reason: "invalid request-target: " + uerr.Error()}
	}

	authority := httpx.DeriveAuthority(u, header)
	scheme := httpx.DeriveScheme(tlsHint, header)

	req := &httpx.RequestInitial{
		Method:    method,
		Version:   version,
		URI:       uri,
		Authority: authority,
		Scheme:    scheme,
		Header:    header.Freeze(),
	}

	framing, contentLength, ferr := selectRequestFraming(version, header)
	if ferr != nil {
		buf.Discard(total)
		return nil, ferr
	}

	buf.Discard(total)
	return &RequestResult{Initial: req, Framing: framing, ContentLength: contentLength}, nil
}

func parseRequestLine(line string) (httpx.Method, string, httpx.Version, error) {
	parts := strings.Split(line, " ")
	if len(parts) != 3 {
		return "", "", "", &MalformedError{Reason: "malformed request line: " + strconv.Quote(line)}
	}
	method, ok := httpx.ParseMethod(parts[0])
	if !ok {
		return "", "", "", &MalformedError{Reason: "unknown method: " + strconv.Quote(parts[0])}
	}
	version, ok := httpx.ParseVersion(parts[2])
	if !ok {
		return "", "", "", &MalformedError{Reason: "unknown version: " + strconv.Quote(parts[2])}
	}
	return method, parts[1], version, nil
}

// ParseResponseInitial attempts to parse one response initial from buf and
// select its body framing given the originating request's context.
func ParseResponseInitial(buf *netx.Buffer, lim Limits, rc ResponseContext) (*ResponseResult, error) {
	block, total, err := splitInitialBlock(buf, lim)
	if err != nil {
		return nil, err
	}

	lines := splitLines(block)
	if len(lines) == 0 {
		buf.Discard(total)
		return nil, &MalformedError{Reason: "empty status line"}
	}

	version, code, reason, err := parseStatusLine(lines[0])
	if err != nil {
		buf.Discard(total)
		return nil, err
	}

	header, err := parseHeaderLines(lines[1:])
	if err != nil {
		buf.Discard(total)
		return nil, err
	}

	resp := &httpx.ResponseInitial{
		StatusCode: code,
		Reason:     reason,
		Version:    version,
		Header:     header.Freeze(),
	}

	framing, contentLength, ferr := selectResponseFraming(version, code, header, rc)
	if ferr != nil {
		buf.Discard(total)
		return nil, ferr
	}

	buf.Discard(total)
	return &ResponseResult{Initial: resp, Framing: framing, ContentLength: contentLength}, nil
}

func parseStatusLine(line string) (httpx.Version, int, string, error) {
	parts := strings.SplitN(line, " ", 3)
	if len(parts) < 2 {
		return "", 0, "", &MalformedError{Reason: "malformed status line: " + strconv.Quote(line)}
	}
	version, ok := httpx.ParseVersion(parts[0])
	if !ok {
		return "", 0, "", &MalformedError{Reason: "unknown version: " + strconv.Quote(parts[0])}
	}
	if len(parts[1]) != 3 {
		return "", 0, "", &MalformedError{Reason: "malformed status code: " + strconv.Quote(parts[1])}
	}
	code, err := strconv.Atoi(parts[1])
	if err != nil || code < 100 || code > 599 {
		return "", 0, "", &MalformedError{Reason: "malformed status code: " + strconv.Quote(parts[1])}
	}
	reason := ""
	if len(parts) == 3 {
		reason = parts[2]
	}
	return version, code, reason, nil
}

// selectRequestFraming picks the body-framing rules for the request side
// (Endless only applies via Upgrade on requests; a normal request with no
// framing headers carries no body).
func selectRequestFraming(version httpx.Version, h *httpx.Header) (Framing, int64, error) {
	if hasUpgrade(h) {
		return FramingEndless, -1, nil
	}
	return selectCommonFraming(version, h, false)
}

// selectResponseFraming implements the response-side rules: the HEAD/204/304
// no-body cases, the 101/CONNECT/Upgrade endless cases, and the
// HTTP/1.0-no-length-means-endless case.
func selectResponseFraming(version httpx.Version, status int, h *httpx.Header, rc ResponseContext) (Framing, int64, error) {
	if rc.RequestMethod == httpx.MethodHEAD || status == 204 || status == 304 {
		return FramingNone, 0, nil
	}
	if rc.IsConnectRequest || status == 101 || hasUpgrade(h) {
		return FramingEndless, -1, nil
	}
	framing, cl, err := selectCommonFraming(version, h, true)
	if err != nil {
		return 0, 0, err
	}
	if framing == FramingNone && version == httpx.Version10 {
		// HTTP/1.0 response with no Content-Length: read until EOF.
		return FramingEndless, -1, nil
	}
	return framing, cl, nil
}

func hasUpgrade(h *httpx.Header) bool {
	for _, v := range h.Values("Connection") {
		for _, tok := range strings.Split(v, ",") {
			if strings.EqualFold(strings.TrimSpace(tok), "upgrade") {
				return true
			}
		}
	}
	return h.Contains("Upgrade")
}

// selectCommonFraming implements the Transfer-Encoding/Content-Length
// precedence shared by both directions: chunked wins over content-length
// (RFC 7230 §3.3.3); a bare Content-Length with no Transfer-Encoding is
// fixed-length; neither present means "no framing headers" (FramingNone),
// which callers interpret per-direction (no body for requests; endless on
// HTTP/1.0 responses, handled by the caller).
func selectCommonFraming(version httpx.Version, h *httpx.Header, allowNone bool) (Framing, int64, error) {
	if te := h.Get("Transfer-Encoding"); te != "" {
		tokens := strings.Split(te, ",")
		for i, tok := range tokens {
			tokens[i] = strings.ToLower(strings.TrimSpace(tok))
		}
		last := tokens[len(tokens)-1]
		hasIdentity := false
		hasOther := false
		for _, tok := range tokens {
			if tok == "identity" {
				hasIdentity = true
			} else if tok != "chunked" {
				hasOther = true
			}
		}
		if last != "chunked" {
			return 0, 0, &MalformedError{Reason: "Transfer-Encoding does not end in chunked: " + strconv.Quote(te)}
		}
		if hasIdentity && (hasOther || len(tokens) > 1) {
			return 0, 0, &MalformedError{Reason: "identity combined with other Transfer-Encoding tokens: " + strconv.Quote(te)}
		}
		return FramingChunked, -1, nil
	}

	if cl := h.Get("Content-Length"); cl != "" {
		n, err := strconv.ParseInt(strings.TrimSpace(cl), 10, 64)
		if err != nil || n < 0 || !isAllDigits(strings.TrimSpace(cl)) {
			return 0, 0, &MalformedError{Reason: "invalid Content-Length: " + strconv.Quote(cl)}
		}
		return FramingFixed, n, nil
	}

	_ = version
	if allowNone {
		return FramingNone, 0, nil
	}
	return FramingNone, 0, nil
}

// FramingFromHeader derives the Framing implied by an already-composed
// header (Transfer-Encoding / Content-Length), for callers that just wrote
// a composed initial and need to know how to drive their stream.Writer.
// noBody forces FramingNone regardless of headers present (the HEAD/204/
// 304/101/CONNECT cases, decided by the caller).
func FramingFromHeader(h *httpx.Header, noBody bool) (Framing, int64) {
	if noBody {
		return FramingNone, 0
	}
	if te := h.Get("Transfer-Encoding"); strings.EqualFold(te, "chunked") {
		return FramingChunked, -1
	}
	if cl := h.Get("Content-Length"); cl != "" {
		if n, err := strconv.ParseInt(cl, 10, 64); err == nil && n >= 0 {
			return FramingFixed, n
		}
	}
	return FramingEndless, -1
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
