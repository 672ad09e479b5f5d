package httpx

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/pkg/errors"
)

// ComposeConfig carries the product identity used to default User-Agent /
// Server, plus the header size limits composed initials are checked
// against before they reach the wire. A zero-valued Limits disables the
// check entirely.
type ComposeConfig struct {
	Product        string
	ProductVersion string
	Limits         HeaderLimits
}

func (c ComposeConfig) productString() string {
	product := c.Product
	if product == "" {
		product = "h1x"
	}
	version := c.ProductVersion
	if version == "" {
		version = "0"
	}
	return product + "/" + version
}

// ComposeRequest produces the serialized bytes of a request initial and the
// frozen, normalized RequestInitial the Writer exposes to the caller.
func ComposeRequest(cfg ComposeConfig, req *RequestInitial) ([]byte, *RequestInitial, error) {
	if !req.Method.Valid() {
		return nil, nil, fmt.Errorf("httpx: invalid method %q", req.Method)
	}
	if !req.Version.Valid() {
		return nil, nil, fmt.Errorf("httpx: invalid version %q", req.Version)
	}

	h := req.Header.Clone()
	hasUpgrade := h.Contains("Upgrade")

	if err := h.SetDefault("User-Agent", cfg.productString()); err != nil {
		return nil, nil, err
	}
	if !hasUpgrade {
		if err := h.SetDefault("Accept", "*/*"); err != nil {
			return nil, nil, err
		}
	}
	if req.Version == Version10 && !h.Contains("Connection") {
		if err := h.Set("Connection", "Keep-Alive"); err != nil {
			return nil, nil, err
		}
	}
	if req.Authority != "" && !h.Contains("Host") {
		if err := h.Set("Host", req.Authority); err != nil {
			return nil, nil, err
		}
	}

	frozen := h.Freeze()
	if err := ValidateHeader(frozen, cfg.Limits); err != nil {
		return nil, nil, errors.WithMessagef(err, "composing %s %s", req.Method, req.URI)
	}

	normalized := &RequestInitial{
		Method:    req.Method,
		Version:   req.Version,
		URI:       req.URI,
		Authority: req.Authority,
		Scheme:    req.Scheme,
		Header:    frozen,
	}

	var buf bytes.Buffer
	buf.WriteString(normalized.Line())
	buf.WriteString("\r\n")
	if err := frozen.Write(&buf); err != nil {
		return nil, nil, err
	}
	return buf.Bytes(), normalized, nil
}

// ResponseFramingContext carries just enough of the originating request to
// drive the response-side defaulting rules (HEAD/CONNECT suppress a body,
// the request's Connection/Expect headers affect the response's).
type ResponseFramingContext struct {
	RequestMethod          Method
	IsConnectRequest       bool
	RequestConnectionClose bool
	RequestExpectContinue  bool
}

// ComposeResponse produces the serialized bytes of a response initial (C3).
// interim is non-nil only when a "100 Continue" must be sent first. final
// is always the serialized final response. normalized is the frozen,
// defaulted ResponseInitial the Writer exposes to the caller.
func ComposeResponse(cfg ComposeConfig, resp *ResponseInitial, fc ResponseFramingContext) (interim, final []byte, normalized *ResponseInitial, err error) {
	if !resp.Version.Valid() {
		return nil, nil, nil, fmt.Errorf("httpx: invalid version %q", resp.Version)
	}
	if resp.StatusCode < 100 || resp.StatusCode > 599 {
		return nil, nil, nil, fmt.Errorf("httpx: invalid status code %d", resp.StatusCode)
	}

	reason := resp.Reason
	if reason == "" {
		reason = ReasonPhrase(resp.StatusCode)
		if reason == "" {
			reason = strconv.Itoa(resp.StatusCode)
		}
	}

	h := resp.Header.Clone()
	if err := h.SetDefault("Server", cfg.productString()); err != nil {
		return nil, nil, nil, err
	}

	switch {
	case resp.StatusCode >= 400:
		err = h.Set("Connection", "Close")
	case resp.Version == Version10 && !h.Contains("Connection"):
		err = h.Set("Connection", "Keep-Alive")
	case fc.RequestConnectionClose:
		err = h.Set("Connection", "Close")
	}
	if err != nil {
		return nil, nil, nil, err
	}

	noBody := fc.RequestMethod == MethodHEAD || fc.IsConnectRequest ||
		resp.StatusCode == 204 || resp.StatusCode == 304 || resp.StatusCode == 101

	if !h.Contains("Content-Length") && !h.Contains("Transfer-Encoding") && !noBody {
		if resp.Version == Version11 {
			err = h.Set("Transfer-Encoding", "Chunked")
		} else {
			err = h.Set("Connection", "Close")
		}
		if err != nil {
			return nil, nil, nil, err
		}
	}

	frozen := h.Freeze()
	if verr := ValidateHeader(frozen, cfg.Limits); verr != nil {
		return nil, nil, nil, errors.WithMessagef(verr, "composing response with status %d", resp.StatusCode)
	}

	normalized = &ResponseInitial{
		StatusCode: resp.StatusCode,
		Reason:     reason,
		Version:    resp.Version,
		Header:     frozen,
	}

	var buf bytes.Buffer
	buf.WriteString(normalized.Line())
	buf.WriteString("\r\n")
	if err := frozen.Write(&buf); err != nil {
		return nil, nil, nil, err
	}
	final = buf.Bytes()

	if fc.RequestExpectContinue && resp.StatusCode < 400 {
		interim = []byte("HTTP/1.1 100 Continue\r\n\r\n")
	}
	return interim, final, normalized, nil
}
