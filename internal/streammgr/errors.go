package streammgr

import (
	"context"

	"github.com/nyxio/h1x/internal/herr"
	"github.com/nyxio/h1x/internal/stream"
)

// Responder answers an exchange whose initial never parsed. It is the only
// way to write a response when no stream.Reader/Writer pair exists yet.
type Responder func(ctx context.Context, body []byte) (*stream.Writer, error)

// RequestInitialTooLargeError is produced server-side when a request's
// initial section exceeds MaxInitialSize before its terminating blank line
// is found. Respond defaults to status 431.
type RequestInitialTooLargeError struct {
	Respond Responder
}

func (e *RequestInitialTooLargeError) Error() string { return "h1x: request initial too large" }
func (e *RequestInitialTooLargeError) Unwrap() error { return herr.ErrEntityTooLarge }

// RequestInitialMalformedError is produced server-side when a request's
// initial section cannot be parsed. Respond defaults to status 400.
type RequestInitialMalformedError struct {
	Respond Responder
}

func (e *RequestInitialMalformedError) Error() string { return "h1x: request initial malformed" }
func (e *RequestInitialMalformedError) Unwrap() error { return herr.ErrDataMalformed }
