package httpx

import "testing"

func TestEncodeChunkNonEmptyNotFinished(t *testing.T) {
	got := string(EncodeChunk([]byte("Wiki"), false))
	want := "4\r\nWiki\r\n"
	if got != want {
		t.Fatalf("EncodeChunk = %q, want %q", got, want)
	}
}

func TestEncodeChunkNonEmptyFinished(t *testing.T) {
	got := string(EncodeChunk([]byte("pedia"), true))
	want := "5\r\npedia\r\n0\r\n\r\n"
	if got != want {
		t.Fatalf("EncodeChunk = %q, want %q", got, want)
	}
}

func TestEncodeChunkEmptyFinished(t *testing.T) {
	got := string(EncodeChunk(nil, true))
	if got != "0\r\n\r\n" {
		t.Fatalf("EncodeChunk = %q", got)
	}
}

func TestEncodeChunkEmptyNotFinished(t *testing.T) {
	got := EncodeChunk(nil, false)
	if len(got) != 0 {
		t.Fatalf("EncodeChunk = %q, want empty", got)
	}
}

func TestEncodeChunkRoundTrip(t *testing.T) {
	var all []byte
	all = append(all, EncodeChunk([]byte("w1"), false)...)
	all = append(all, EncodeChunk([]byte("w2w2"), false)...)
	all = append(all, EncodeChunk(nil, true)...)

	want := "2\r\nw1\r\n" + "4\r\nw2w2\r\n" + "0\r\n\r\n"
	if string(all) != want {
		t.Fatalf("round trip = %q, want %q", all, want)
	}
}
