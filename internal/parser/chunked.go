package parser

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/nyxio/h1x/internal/herr"
	"github.com/nyxio/h1x/internal/netx"
)

type chunkState int

const (
	stateChunkSize chunkState = iota
	stateChunkData
	stateChunkDataCRLF
	stateChunkTrailer
	stateChunkDone
)

// ChunkedDecoder decodes a chunked-transfer-coded body incrementally over a
// netx.Buffer. It never blocks: Decode returns
// whatever data it could extract from the bytes currently buffered and
// reports done=false when more bytes are required to make further progress.
// Trailer fields are parsed for syntax validity but not retained, matching
// the wire codec's scope (trailers are not part of the stream's public
// surface).
type ChunkedDecoder struct {
	state     chunkState
	remaining int64
}

// NewChunkedDecoder returns a decoder positioned at the start of the first
// chunk.
func NewChunkedDecoder() *ChunkedDecoder {
	return &ChunkedDecoder{state: stateChunkSize}
}

// Decode consumes as much of buf as currently forms complete chunk framing
// and returns the decoded body bytes produced this call. done reports
// whether the terminating zero-length chunk and trailer section have been
// fully consumed.
func (d *ChunkedDecoder) Decode(buf *netx.Buffer, lim Limits) (data []byte, done bool, err error) {
	for {
		switch d.state {
		case stateChunkSize:
			line, ok, lerr := readChunkLine(buf, lim.MaxInitialSize)
			if lerr != nil {
				return data, false, lerr
			}
			if !ok {
				return data, false, nil
			}
			sizeField := line
			if idx := bytes.IndexByte(line, ';'); idx >= 0 {
				sizeField = line[:idx]
			}
			n, perr := strconv.ParseInt(strings.TrimSpace(string(sizeField)), 16, 64)
			if perr != nil || n < 0 {
				return data, false, &MalformedError{Reason: "invalid chunk size: " + strconv.Quote(string(line))}
			}
			if n == 0 {
				d.state = stateChunkTrailer
				continue
			}
			d.remaining = n
			d.state = stateChunkData

		case stateChunkData:
			avail := buf.Bytes()
			take := int64(len(avail))
			if take > d.remaining {
				take = d.remaining
			}
			if take == 0 {
				return data, false, nil
			}
			data = append(data, avail[:take]...)
			buf.Discard(int(take))
			d.remaining -= take
			if d.remaining == 0 {
				d.state = stateChunkDataCRLF
				continue
			}
			return data, false, nil

		case stateChunkDataCRLF:
			line, ok, lerr := readChunkLine(buf, lim.MaxInitialSize)
			if lerr != nil {
				return data, false, lerr
			}
			if !ok {
				return data, false, nil
			}
			if len(line) != 0 {
				return data, false, &MalformedError{Reason: "malformed chunk terminator"}
			}
			d.state = stateChunkSize

		case stateChunkTrailer:
			line, ok, lerr := readChunkLine(buf, lim.MaxInitialSize)
			if lerr != nil {
				return data, false, lerr
			}
			if !ok {
				return data, false, nil
			}
			if len(line) == 0 {
				d.state = stateChunkDone
				return data, true, nil
			}
			if bytes.IndexByte(line, ':') <= 0 {
				return data, false, &MalformedError{Reason: "invalid trailer field: " + strconv.Quote(string(line))}
			}

		case stateChunkDone:
			return data, true, nil
		}
	}
}

// readChunkLine scans for the next LF-terminated line in buf, tolerating a
// bare LF as well as CRLF, and discards it (and its terminator) from buf on
// success. ok is false when no newline is available yet.
func readChunkLine(buf *netx.Buffer, maxLen int64) (line []byte, ok bool, err error) {
	data := buf.Bytes()
	idx := bytes.IndexByte(data, '\n')
	if idx < 0 {
		if maxLen > 0 && int64(len(data)) > maxLen {
			return nil, false, herr.ErrEntityTooLarge
		}
		return nil, false, nil
	}
	if maxLen > 0 && int64(idx+1) > maxLen {
		return nil, false, herr.ErrEntityTooLarge
	}
	raw := bytes.TrimSuffix(data[:idx], []byte("\r"))
	out := append([]byte(nil), raw...)
	buf.Discard(idx + 1)
	return out, true, nil
}
