// Package h1x is the public face of the engine: Server and Client types
// that wrap a connection.Driver over a transport.Transport. Everything
// below internal/ is the engine; this package just gives it the two shapes
// an HTTP/1.x implementation needs.
package h1x

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/nyxio/h1x/config"
	"github.com/nyxio/h1x/internal/connection"
	"github.com/nyxio/h1x/internal/httpx"
	"github.com/nyxio/h1x/internal/stream"
	"github.com/nyxio/h1x/internal/streammgr"
	"github.com/nyxio/h1x/transport"
)

// driverConfig adapts a config.Config into the engine's internal shapes.
func driverConfig(cfg config.Config, tlsHint bool) connection.Config {
	cfg = cfg.WithDefaults()
	return connection.Config{
		Limits: streammgr.Limits{
			MaxInitialSize: cfg.MaxInitialSize,
			MaxBufLen:      cfg.MaxBufLen,
		},
		Compose: httpx.ComposeConfig{
			Product:        cfg.Product,
			ProductVersion: cfg.ProductVersion,
		},
		TLSHint: tlsHint,
	}
}

// Server drives one accepted connection's request/response lifecycle.
type Server struct {
	driver *connection.Driver
}

// NewServer wraps tr as a server-side connection: tr.Start must not have
// been called yet, since Server installs its own hooks first.
func NewServer(tr transport.Transport, cfg config.Config, logger logrus.FieldLogger) *Server {
	d := connection.NewServerDriver(tr, driverConfig(cfg, tr.IsTLS()), logger)
	tr.SetHooks(transport.Hooks{
		OnBytes:  d.OnBytes,
		OnEOF:    d.OnEOF,
		OnClosed: d.OnClosed,
	})
	tr.Start()
	return &Server{driver: d}
}

// Exchange is a request paired with the means to answer it.
type Exchange = connection.Exchange

// NextRequest blocks until the next request initial on this connection has
// parsed (or the connection has ended), returning an Exchange exposing the
// request's body Reader and a WriteResponse method.
func (s *Server) NextRequest(ctx context.Context) (*Exchange, error) {
	return s.driver.NextRequest(ctx)
}

// Close marks the connection for shutdown after the in-flight exchange
// completes.
func (s *Server) Close() { s.driver.Close() }

// Abort tears the connection down immediately, failing any in-flight
// Reader/Writer.
func (s *Server) Abort(err error) { s.driver.Abort(err) }

// WaitClosed blocks until the connection has fully closed.
func (s *Server) WaitClosed(ctx context.Context) error { return s.driver.WaitClosed(ctx) }

// Client drives one dialed connection's request/response lifecycle.
type Client struct {
	driver *connection.Driver
}

// NewClient wraps tr as a client-side connection: tr.Start must not have
// been called yet, since Client installs its own hooks first.
func NewClient(tr transport.Transport, cfg config.Config, logger logrus.FieldLogger) *Client {
	d := connection.NewClientDriver(tr, driverConfig(cfg, tr.IsTLS()), logger)
	tr.SetHooks(transport.Hooks{
		OnBytes:  d.OnBytes,
		OnEOF:    d.OnEOF,
		OnClosed: d.OnClosed,
	})
	tr.Start()
	return &Client{driver: d}
}

// ClientExchange bundles an outbound request's Writer with the means to
// read its response.
type ClientExchange = connection.ClientExchange

// WriteRequest composes and writes the request initial, returning a
// ClientExchange whose Writer drives the request body and whose
// ReadResponse blocks for the response.
func (c *Client) WriteRequest(ctx context.Context, method httpx.Method, uri, authority, scheme string, headers *httpx.Header) (*ClientExchange, error) {
	return c.driver.WriteRequest(ctx, method, uri, authority, scheme, headers)
}

// Close marks the connection for shutdown after the in-flight exchange
// completes.
func (c *Client) Close() { c.driver.Close() }

// Abort tears the connection down immediately, failing any in-flight
// Reader/Writer.
func (c *Client) Abort(err error) { c.driver.Abort(err) }

// WaitClosed blocks until the connection has fully closed.
func (c *Client) WaitClosed(ctx context.Context) error { return c.driver.WaitClosed(ctx) }

// NewHeader is a convenience re-export so callers building requests or
// responses don't need to import internal/httpx directly.
func NewHeader() *httpx.Header { return httpx.NewHeader() }

// Reader and Writer are re-exported so callers can name the types returned
// by NextRequest/WriteRequest/WriteResponse without importing internal/stream.
type (
	Reader = stream.Reader
	Writer = stream.Writer
)
