package httpx

import "testing"

func TestParseVersion(t *testing.T) {
	if v, ok := ParseVersion("HTTP/1.1"); !ok || v != Version11 {
		t.Fatalf("ParseVersion(HTTP/1.1) = %v, %v", v, ok)
	}
	if v, ok := ParseVersion("HTTP/1.0"); !ok || v != Version10 {
		t.Fatalf("ParseVersion(HTTP/1.0) = %v, %v", v, ok)
	}
	for _, s := range []string{"HTTP/2.0", "http/1.1", "HTTP/1.1 ", "HTTP/1"} {
		if _, ok := ParseVersion(s); ok {
			t.Fatalf("%q should not parse", s)
		}
	}
}
