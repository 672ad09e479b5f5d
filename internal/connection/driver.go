// Package connection implements the Connection Driver: the object that owns
// the transport-facing buffer, rotates Stream Managers across successive
// exchanges on one connection, and enforces the last-stream decision.
package connection

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/nyxio/h1x/internal/herr"
	"github.com/nyxio/h1x/internal/httpx"
	"github.com/nyxio/h1x/internal/stream"
	"github.com/nyxio/h1x/internal/streammgr"
	"github.com/nyxio/h1x/internal/waiter"
)

// Role distinguishes which side of the exchange this Driver parses versus
// composes.
type Role int

const (
	RoleServer Role = iota
	RoleClient
)

// Config bundles the limits and product identity a Driver hands down to
// every Stream Manager it creates.
type Config struct {
	Limits  streammgr.Limits
	Compose httpx.ComposeConfig
	TLSHint bool
}

// Driver serializes exchanges over one connection: NextRequest (server
// role) blocks until the current exchange's request initial has parsed,
// and will not hand back a second exchange until the first's response has
// finished writing. OnBytes/OnEOF/OnClosed are the downward API called by
// a transport.Transport as bytes arrive.
type Driver struct {
	role   Role
	sink   stream.Sink
	cfg    Config
	logger logrus.FieldLogger
	connID string

	mu      sync.Mutex
	current *streammgr.Manager
	closing bool
	closed  bool
	seq     int

	closedWaiter *waiter.Waiter
}

// NewServerDriver returns a Driver that parses inbound requests and
// composes outbound responses over sink.
func NewServerDriver(sink stream.Sink, cfg Config, logger logrus.FieldLogger) *Driver {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	d := &Driver{
		role:         RoleServer,
		sink:         sink,
		cfg:          cfg,
		logger:       logger,
		connID:       uuid.NewString(),
		closedWaiter: waiter.New(),
	}
	d.current = streammgr.NewServerExchange(sink, cfg.Limits, cfg.Compose, cfg.TLSHint)
	d.logger.WithField("conn_id", d.connID).Debug("connection opened")
	return d
}

// Exchange bundles one parsed request with the means to answer it.
type Exchange struct {
	Request *httpx.RequestInitial
	Reader  *stream.Reader

	mgr    *streammgr.Manager
	driver *Driver
}

// WriteResponse composes and writes the response initial for this
// exchange, returning a stream.Writer bound to its selected body framing.
func (e *Exchange) WriteResponse(ctx context.Context, status int, header *httpx.Header) (*stream.Writer, error) {
	isConnect := e.Request != nil && e.Request.Method == httpx.MethodCONNECT
	w, err := e.mgr.WriteResponse(ctx, status, header, isConnect)
	if err != nil {
		e.driver.logger.WithFields(logrus.Fields{"conn_id": e.driver.connID, "error": err}).Warn("response composition failed")
		return nil, err
	}
	e.driver.logger.WithFields(logrus.Fields{
		"conn_id": e.driver.connID,
		"method":  e.Request.Method,
		"status":  status,
	}).Info("response initial written")
	return w, nil
}

// NextRequest returns the next exchange on this connection. The first call
// returns the exchange already being parsed; every subsequent call blocks
// until the previous exchange's response has finished writing, then either
// rotates to a freshly parsed exchange or reports ErrConnectionClosed if
// that was the connection's last exchange.
func (d *Driver) NextRequest(ctx context.Context) (*Exchange, error) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil, herr.ErrConnectionClosed
	}
	prev := d.current
	rotating := d.seq > 0
	d.mu.Unlock()

	if rotating {
		if err := d.finishAndRotate(ctx, prev); err != nil {
			return nil, err
		}
	}

	d.mu.Lock()
	mgr := d.current
	d.seq++
	seq := d.seq
	d.mu.Unlock()

	select {
	case <-mgr.Ready():
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if err := mgr.Err(); err != nil {
		d.logger.WithFields(logrus.Fields{"conn_id": d.connID, "exchange_seq": seq, "error": err}).Warn("request initial unparseable")
		return nil, err
	}

	req := mgr.Request()
	d.logger.WithFields(logrus.Fields{
		"conn_id":      d.connID,
		"exchange_seq": seq,
		"method":       req.Method,
	}).Info("request initial parsed")

	return &Exchange{Request: req, Reader: mgr.Reader(), mgr: mgr, driver: d}, nil
}

// finishAndRotate waits for prev's response writer to finish, then either
// closes the connection (last stream) or creates the next Manager.
func (d *Driver) finishAndRotate(ctx context.Context, prev *streammgr.Manager) error {
	select {
	case <-prev.Ready():
	case <-ctx.Done():
		return ctx.Err()
	}

	if prev.Err() != nil {
		d.closeAfterLast()
		return herr.ErrConnectionClosed
	}

	if w := prev.Writer(); w != nil {
		if err := w.WaitFinished(ctx); err != nil {
			return err
		}
	}

	d.mu.Lock()
	closing := d.closing
	d.mu.Unlock()

	if closing || prev.IsLast() {
		d.closeAfterLast()
		return herr.ErrConnectionClosed
	}

	leftover := prev.TakeLeftover()
	next := streammgr.NewServerExchange(d.sink, d.cfg.Limits, d.cfg.Compose, d.cfg.TLSHint)
	d.mu.Lock()
	d.current = next
	d.mu.Unlock()
	if len(leftover) > 0 {
		next.OnBytes(leftover)
	}
	return nil
}

func (d *Driver) closeAfterLast() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.current = nil
	d.mu.Unlock()
	d.logger.WithField("conn_id", d.connID).Debug("connection reached last stream")
	d.closedWaiter.Complete(nil)
}

// OnBytes feeds newly received transport bytes to the current exchange.
func (d *Driver) OnBytes(data []byte) {
	d.mu.Lock()
	cur := d.current
	closed := d.closed
	d.mu.Unlock()
	if closed || cur == nil {
		return
	}
	cur.OnBytes(data)
}

// OnEOF signals that the transport's read side reached end-of-stream.
func (d *Driver) OnEOF() {
	d.mu.Lock()
	cur := d.current
	d.mu.Unlock()
	if cur != nil {
		cur.OnEOF()
	}
}

// OnDrain notifies the Driver that a prior Writer.Flush's bytes have left
// the transport's send buffer. The current transport.TCP implementation
// writes synchronously in WriteFrame and its Flush returns at once, so this
// is reserved for transports that signal drain asynchronously instead.
func (d *Driver) OnDrain() {}

// OnClosed signals that the transport has fully torn down, with err
// recording the cause (nil for a clean close).
func (d *Driver) OnClosed(err error) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	cur := d.current
	d.mu.Unlock()
	if cur != nil {
		cur.OnEOF()
	}
	d.logger.WithFields(logrus.Fields{"conn_id": d.connID, "error": err}).Debug("connection closed")
	d.closedWaiter.Complete(err)
}

// Close marks the connection for shutdown after the in-flight exchange
// completes; it does not truncate that exchange.
func (d *Driver) Close() {
	d.mu.Lock()
	d.closing = true
	d.mu.Unlock()
}

// Abort tears the connection down immediately, failing any in-flight
// Reader/Writer.
func (d *Driver) Abort(err error) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	cur := d.current
	d.mu.Unlock()

	if cur != nil {
		if w := cur.Writer(); w != nil {
			w.Abort()
		}
		if r := cur.Reader(); r != nil {
			r.Abort()
		}
	}
	d.logger.WithFields(logrus.Fields{"conn_id": d.connID, "error": err}).Error("connection aborted")
	d.closedWaiter.Complete(err)
}

// WaitClosed blocks until the connection has fully closed, returning the
// cause recorded by OnClosed/Abort (nil for a clean close).
func (d *Driver) WaitClosed(ctx context.Context) error {
	return d.closedWaiter.Wait(ctx)
}

// NewClientDriver returns a Driver that composes outbound requests and
// parses inbound responses over sink.
func NewClientDriver(sink stream.Sink, cfg Config, logger logrus.FieldLogger) *Driver {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	d := &Driver{
		role:         RoleClient,
		sink:         sink,
		cfg:          cfg,
		logger:       logger,
		connID:       uuid.NewString(),
		closedWaiter: waiter.New(),
	}
	d.current = streammgr.NewClientExchange(sink, cfg.Limits, cfg.Compose, cfg.TLSHint)
	d.logger.WithField("conn_id", d.connID).Debug("connection opened")
	return d
}

// ClientExchange bundles one outbound request's Writer with the means to
// read its response.
type ClientExchange struct {
	Writer *stream.Writer

	mgr    *streammgr.Manager
	driver *Driver
}

// ReadResponse blocks until the response initial has parsed and returns it
// together with its body Reader.
func (e *ClientExchange) ReadResponse(ctx context.Context) (*httpx.ResponseInitial, *stream.Reader, error) {
	select {
	case <-e.mgr.Ready():
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}
	if err := e.mgr.Err(); err != nil {
		return nil, nil, err
	}
	return e.mgr.Response(), e.mgr.Reader(), nil
}

// WriteRequest composes and writes the next request on this connection. The
// first call uses the Manager created at construction; every later call
// first waits for the previous exchange's response to finish and rotates to
// a fresh Manager, mirroring NextRequest on the server side.
func (d *Driver) WriteRequest(ctx context.Context, method httpx.Method, uri, authority, scheme string, header *httpx.Header) (*ClientExchange, error) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil, herr.ErrConnectionClosed
	}
	prev := d.current
	rotating := d.seq > 0
	d.mu.Unlock()

	if rotating {
		if err := d.finishAndRotateClient(ctx, prev); err != nil {
			return nil, err
		}
	}

	d.mu.Lock()
	mgr := d.current
	d.seq++
	seq := d.seq
	d.mu.Unlock()

	w, err := mgr.WriteRequest(ctx, method, uri, authority, scheme, header)
	if err != nil {
		d.logger.WithFields(logrus.Fields{"conn_id": d.connID, "exchange_seq": seq, "error": err}).Warn("request composition failed")
		return nil, err
	}
	d.logger.WithFields(logrus.Fields{
		"conn_id":      d.connID,
		"exchange_seq": seq,
		"method":       method,
	}).Info("request initial written")
	return &ClientExchange{Writer: w, mgr: mgr, driver: d}, nil
}

// finishAndRotateClient waits for prev's response to finish, then either
// closes the connection (last stream) or creates the next Manager.
func (d *Driver) finishAndRotateClient(ctx context.Context, prev *streammgr.Manager) error {
	select {
	case <-prev.Ready():
	case <-ctx.Done():
		return ctx.Err()
	}

	if prev.Err() != nil {
		d.closeAfterLast()
		return herr.ErrConnectionClosed
	}

	if r := prev.Reader(); r != nil {
		if err := r.WaitEnd(ctx); err != nil {
			return err
		}
	}

	d.mu.Lock()
	closing := d.closing
	d.mu.Unlock()

	if closing || prev.IsLast() {
		d.closeAfterLast()
		return herr.ErrConnectionClosed
	}

	leftover := prev.TakeLeftover()
	next := streammgr.NewClientExchange(d.sink, d.cfg.Limits, d.cfg.Compose, d.cfg.TLSHint)
	d.mu.Lock()
	d.current = next
	d.mu.Unlock()
	if len(leftover) > 0 {
		next.OnBytes(leftover)
	}
	return nil
}
