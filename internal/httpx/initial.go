package httpx

import "fmt"

// RequestInitial is the immutable request line + headers of an HTTP/1.x
// request. It is only ever constructed by the parser
// (on the receiving side) or the composer (on the originating side); once
// built, Header is frozen.
type RequestInitial struct {
	Method    Method
	Version   Version
	URI       string
	Authority string // "" if none
	Scheme    string // "" if none
	Header    *Header
}

// Line renders the request line, e.g. "GET /a/b HTTP/1.1".
func (r *RequestInitial) Line() string {
	return fmt.Sprintf("%s %s %s", r.Method, r.URI, r.Version)
}

// ResponseInitial is the immutable status line + headers of an HTTP/1.x
// response. Status codes outside the enum (unknown codes) are preserved
// verbatim.
type ResponseInitial struct {
	StatusCode int
	Reason     string
	Version    Version
	Header     *Header
}

// Line renders the status line, e.g. "HTTP/1.1 200 OK".
func (r *ResponseInitial) Line() string {
	return fmt.Sprintf("%s %d %s", r.Version, r.StatusCode, r.Reason)
}

// ReasonPhrase returns the canonical reason phrase for code, or "" if code
// is not one of the well-known statuses. Composers fall back to the numeric
// code itself when the canonical table has no entry (unknown codes are
// preserved rather than rejected).
func ReasonPhrase(code int) string {
	return reasonPhrases[code]
}

var reasonPhrases = map[int]string{
	100: "Continue",
	101: "Switching Protocol",
	200: "OK",
	201: "Created",
	202: "Accepted",
	203: "Non-Authoritative Information",
	204: "No Content",
	205: "Reset Content",
	206: "Partial Content",
	300: "Multiple Choices",
	301: "Moved Permanently",
	302: "Found",
	303: "See Other",
	304: "Not Modified",
	305: "Use Proxy",
	307: "Temporary Redirect",
	308: "Permanent Redirect",
	400: "Bad Request",
	401: "Unauthorized",
	402: "Payment Required",
	403: "Forbidden",
	404: "Not Found",
	405: "Method Not Allowed",
	406: "Not Acceptable",
	407: "Proxy Authentication Required",
	408: "Request Timeout",
	409: "Conflict",
	410: "Gone",
	411: "Length Required",
	412: "Precondition Failed",
	413: "Payload Too Large",
	414: "URI Too Long",
	415: "Unsupported Media Type",
	417: "Expectation Failed",
	426: "Upgrade Required",
	429: "Too Many Requests",
	431: "Request Header Fields Too Large",
	500: "Internal Server Error",
	501: "Not Implemented",
	502: "Bad Gateway",
	503: "Service Unavailable",
	504: "Gateway Timeout",
	505: "HTTP Version Not Supported",
}
