package connection

import (
	"context"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nyxio/h1x/internal/herr"
	"github.com/nyxio/h1x/internal/httpx"
	"github.com/nyxio/h1x/internal/streammgr"
)

type recordingSink struct {
	frames [][]byte
}

func (s *recordingSink) WriteFrame(data []byte) error {
	s.frames = append(s.frames, append([]byte(nil), data...))
	return nil
}

func (s *recordingSink) Flush(ctx context.Context) error { return nil }

func testConfig() Config {
	return Config{
		Limits:  streammgr.Limits{MaxInitialSize: 1024, MaxBufLen: 4096},
		Compose: httpx.ComposeConfig{Product: "h1x", ProductVersion: "1.0"},
	}
}

func discardLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	l.SetLevel(logrus.PanicLevel)
	return l
}

func TestDriverServesTwoKeepAliveExchangesThenCloses(t *testing.T) {
	sink := &recordingSink{}
	d := NewServerDriver(sink, testConfig(), discardLogger())

	d.OnBytes([]byte("GET /a HTTP/1.1\r\n\r\n"))
	ex1, err := d.NextRequest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "/a", ex1.Request.URI)

	header := httpx.NewHeader()
	_ = header.Set("Content-Length", "0")
	w1, err := ex1.WriteResponse(context.Background(), 200, header)
	require.NoError(t, err)
	require.NoError(t, w1.Finish(context.Background(), nil))

	d.OnBytes([]byte("GET /b HTTP/1.1\r\nConnection: close\r\n\r\n"))
	ex2, err := d.NextRequest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "/b", ex2.Request.URI)

	header2 := httpx.NewHeader()
	_ = header2.Set("Content-Length", "0")
	w2, err := ex2.WriteResponse(context.Background(), 200, header2)
	require.NoError(t, err)
	require.NoError(t, w2.Finish(context.Background(), nil))

	_, err = d.NextRequest(context.Background())
	assert.ErrorIs(t, err, herr.ErrConnectionClosed)
}

func TestDriverPipelinedBytesCarryOverToNextExchange(t *testing.T) {
	sink := &recordingSink{}
	d := NewServerDriver(sink, testConfig(), discardLogger())

	d.OnBytes([]byte("GET /a HTTP/1.1\r\n\r\nGET /b HTTP/1.1\r\nConnection: close\r\n\r\n"))
	ex1, err := d.NextRequest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "/a", ex1.Request.URI)

	header := httpx.NewHeader()
	_ = header.Set("Content-Length", "0")
	w1, err := ex1.WriteResponse(context.Background(), 200, header)
	require.NoError(t, err)
	require.NoError(t, w1.Finish(context.Background(), nil))

	ex2, err := d.NextRequest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "/b", ex2.Request.URI)
}

func TestDriverCloseEndsConnectionAfterInFlightExchange(t *testing.T) {
	sink := &recordingSink{}
	d := NewServerDriver(sink, testConfig(), discardLogger())

	d.OnBytes([]byte("GET /a HTTP/1.1\r\n\r\n"))
	ex1, err := d.NextRequest(context.Background())
	require.NoError(t, err)

	d.Close()

	header := httpx.NewHeader()
	_ = header.Set("Content-Length", "0")
	w1, err := ex1.WriteResponse(context.Background(), 200, header)
	require.NoError(t, err)
	require.NoError(t, w1.Finish(context.Background(), nil))

	_, err = d.NextRequest(context.Background())
	assert.ErrorIs(t, err, herr.ErrConnectionClosed)
}

func TestDriverClientWritesRequestThenReadsResponse(t *testing.T) {
	sink := &recordingSink{}
	d := NewClientDriver(sink, testConfig(), discardLogger())

	header := httpx.NewHeader()
	_ = header.Set("Content-Length", "0")
	ex, err := d.WriteRequest(context.Background(), httpx.MethodGET, "/a", "example.test", "http", header)
	require.NoError(t, err)
	require.NoError(t, ex.Writer.Finish(context.Background(), nil))
	assert.Contains(t, string(sink.frames[0]), "GET /a HTTP/1.1")

	d.OnBytes([]byte("HTTP/1.1 200 OK\r\nContent-Length: 2\r\n\r\nok"))
	resp, reader, err := ex.ReadResponse(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	body, err := reader.Read(context.Background(), -1, false)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(body))
}

func TestDriverClientRotatesAfterPriorResponseEnds(t *testing.T) {
	sink := &recordingSink{}
	d := NewClientDriver(sink, testConfig(), discardLogger())

	header := httpx.NewHeader()
	_ = header.Set("Content-Length", "0")
	ex1, err := d.WriteRequest(context.Background(), httpx.MethodGET, "/a", "example.test", "http", header)
	require.NoError(t, err)
	require.NoError(t, ex1.Writer.Finish(context.Background(), nil))

	d.OnBytes([]byte("HTTP/1.1 200 OK\r\nContent-Length: 0\r\n\r\n"))
	_, reader1, err := ex1.ReadResponse(context.Background())
	require.NoError(t, err)
	require.NoError(t, reader1.WaitEnd(context.Background()))

	ex2, err := d.WriteRequest(context.Background(), httpx.MethodGET, "/b", "example.test", "http", header)
	require.NoError(t, err)
	require.NoError(t, ex2.Writer.Finish(context.Background(), nil))
	assert.Contains(t, string(sink.frames[1]), "GET /b HTTP/1.1")

	d.OnBytes([]byte("HTTP/1.1 200 OK\r\nContent-Length: 0\r\n\r\n"))
	resp2, _, err := ex2.ReadResponse(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 200, resp2.StatusCode)
}

func TestDriverAbortFailsInFlightReaderAndWriter(t *testing.T) {
	sink := &recordingSink{}
	d := NewServerDriver(sink, testConfig(), discardLogger())

	d.OnBytes([]byte("POST /a HTTP/1.1\r\nContent-Length: 100\r\n\r\n"))
	ex1, err := d.NextRequest(context.Background())
	require.NoError(t, err)
	w1, err := ex1.WriteResponse(context.Background(), 200, httpx.NewHeader())
	require.NoError(t, err)

	d.Abort(herr.ErrReadAborted)

	_, rerr := ex1.Reader.Read(context.Background(), 1, true)
	assert.Error(t, rerr)
	assert.ErrorIs(t, w1.Write([]byte("x")), herr.ErrWriteAborted)
	assert.ErrorIs(t, d.WaitClosed(context.Background()), herr.ErrReadAborted)
}
