package streammgr

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nyxio/h1x/internal/herr"
	"github.com/nyxio/h1x/internal/httpx"
	"github.com/nyxio/h1x/internal/parser"
)

func newTestClient() (*Manager, *recordingSink) {
	sink := &recordingSink{}
	m := NewClientExchange(sink, Limits{MaxInitialSize: 1024, MaxBufLen: 4096}, httpx.ComposeConfig{Product: "h1x", ProductVersion: "1.0"}, false)
	return m, sink
}

func TestClientWriteRequestComposesAndFramesFixedBody(t *testing.T) {
	m, sink := newTestClient()
	header := httpx.NewHeader()
	require.NoError(t, header.Set("Content-Length", "5"))

	w, err := m.WriteRequest(context.Background(), httpx.MethodPOST, "/a", "example.test", "http", header)
	require.NoError(t, err)
	require.NotNil(t, w)
	require.Len(t, sink.frames, 1)
	assert.Contains(t, string(sink.frames[0]), "POST /a HTTP/1.1")
	assert.Contains(t, string(sink.frames[0]), "Host: example.test")
}

func TestClientWriteRequestWithoutFramingHeadersGetsNoBodyFraming(t *testing.T) {
	m, _ := newTestClient()
	w, err := m.WriteRequest(context.Background(), httpx.MethodGET, "/", "example.test", "http", nil)
	require.NoError(t, err)
	assert.Equal(t, parser.FramingNone, m.reqFraming)
	require.NoError(t, w.Finish(context.Background(), nil))
}

func TestClientParsesResponseAndFixedBody(t *testing.T) {
	m, _ := newTestClient()
	_, err := m.WriteRequest(context.Background(), httpx.MethodGET, "/", "example.test", "http", httpx.NewHeader())
	require.NoError(t, err)

	m.OnBytes([]byte("HTTP/1.1 200 OK\r\nContent-Length: 5\r\n\r\nhe"))
	<-m.Ready()
	require.NoError(t, m.Err())
	require.NotNil(t, m.Response())
	assert.Equal(t, 200, m.Response().StatusCode)

	m.OnBytes([]byte("llo"))
	body, err := m.Reader().Read(context.Background(), -1, false)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(body))
}

func TestClientParsesChunkedResponseBody(t *testing.T) {
	m, _ := newTestClient()
	_, err := m.WriteRequest(context.Background(), httpx.MethodGET, "/", "example.test", "http", httpx.NewHeader())
	require.NoError(t, err)

	m.OnBytes([]byte("HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\n5\r\nhe"))
	<-m.Ready()
	m.OnBytes([]byte("llo\r\n0\r\n\r\n"))
	body, err := m.Reader().Read(context.Background(), -1, false)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(body))
}

func TestClientResponseTooLargeIsPlainSentinelError(t *testing.T) {
	m, _ := newTestClient()
	m.limits.MaxInitialSize = 8
	_, err := m.WriteRequest(context.Background(), httpx.MethodGET, "/", "example.test", "http", httpx.NewHeader())
	require.NoError(t, err)

	m.OnBytes([]byte("HTTP/1.1 200 This Reason Phrase Is Way Too Long\r\n\r\n"))
	<-m.Ready()
	assert.ErrorIs(t, m.Err(), herr.ErrEntityTooLarge)
}

func TestClientMalformedResponseIsPlainSentinelError(t *testing.T) {
	m, _ := newTestClient()
	_, err := m.WriteRequest(context.Background(), httpx.MethodGET, "/", "example.test", "http", httpx.NewHeader())
	require.NoError(t, err)

	m.OnBytes([]byte("NOT A STATUS LINE\r\n\r\n"))
	<-m.Ready()
	assert.ErrorIs(t, m.Err(), herr.ErrDataMalformed)
}

func TestClientOnEOFDuringFixedBodyFailsReaderAsMalformed(t *testing.T) {
	m, _ := newTestClient()
	_, err := m.WriteRequest(context.Background(), httpx.MethodGET, "/", "example.test", "http", httpx.NewHeader())
	require.NoError(t, err)

	m.OnBytes([]byte("HTTP/1.1 200 OK\r\nContent-Length: 10\r\n\r\nhi"))
	<-m.Ready()
	m.OnEOF()
	_, err = m.Reader().Read(context.Background(), -1, false)
	assert.ErrorIs(t, err, herr.ErrDataMalformed)
}
