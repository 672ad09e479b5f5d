package httpx

// Method is an HTTP/1.x request method, restricted to a closed set of
// recognized tokens. Only these nine values are Valid(); anything else must
// be rejected by the parser as malformed.
type Method string

const (
	MethodGET     Method = "GET"
	MethodPOST    Method = "POST"
	MethodPUT     Method = "PUT"
	MethodDELETE  Method = "DELETE"
	MethodHEAD    Method = "HEAD"
	MethodOPTIONS Method = "OPTIONS"
	MethodCONNECT Method = "CONNECT"
	MethodTRACE   Method = "TRACE"
	MethodPATCH   Method = "PATCH"
)

// Valid reports whether m is one of the nine recognized methods.
func (m Method) Valid() bool {
	switch m {
	case MethodGET, MethodPOST, MethodPUT, MethodDELETE, MethodHEAD,
		MethodOPTIONS, MethodCONNECT, MethodTRACE, MethodPATCH:
		return true
	default:
		return false
	}
}

// ParseMethod looks up s (case-sensitive ASCII upper) in the method enum.
func ParseMethod(s string) (Method, bool) {
	m := Method(s)
	return m, m.Valid()
}
