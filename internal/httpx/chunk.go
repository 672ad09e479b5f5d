package httpx

import "strconv"

// EncodeChunk encodes one chunk of a Transfer-Encoding: chunked body:
//
//   - non-empty data:         "<hex-len>\r\n<data>\r\n", plus "0\r\n\r\n" if finished
//   - empty data, finished:   "0\r\n\r\n"
//   - empty data, !finished:  nothing
func EncodeChunk(data []byte, finished bool) []byte {
	if len(data) == 0 {
		if finished {
			return []byte("0\r\n\r\n")
		}
		return nil
	}

	sizeLine := strconv.FormatInt(int64(len(data)), 16)
	out := make([]byte, 0, len(sizeLine)+2+len(data)+2+5)
	out = append(out, sizeLine...)
	out = append(out, '\r', '\n')
	out = append(out, data...)
	out = append(out, '\r', '\n')
	if finished {
		out = append(out, '0', '\r', '\n', '\r', '\n')
	}
	return out
}
