package httpx

import "testing"

func TestHeaderCanonicalAndAddSetGet(t *testing.T) {
	h := NewHeader()
	h.Add("content-type", "text/plain")
	h.Add("Content-Type", "charset=utf-8")
	h.Add("HOST", "example.com")
	h.Set("x-powered-by", "go")

	// Keys must be stored/accessible in canonical form.
	if got := h.Get("CONTENT-TYPE"); got != "text/plain" { // FIRST value only
		t.Fatalf("Get(Content-Type) = %q, want %q", got, "text/plain")
	}
	if got := h.Get("host"); got != "example.com" {
		t.Fatalf("Get(Host) = %q", got)
	}
	// Set replaces previous values, in place.
	h.Set("X-Powered-By", "rust? no, go")
	if got := h.Get("x-powered-by"); got != "rust? no, go" {
		t.Fatalf("Get after Set = %q", got)
	}
	if n := len(h.Values("x-powered-by")); n != 1 {
		t.Fatalf("Set left %d values, want 1", n)
	}
}

func TestHeaderValuesAndDel(t *testing.T) {
	h := NewHeader()
	h.Add("Accept", "text/html")
	h.Add("ACCEPT", "application/json")

	vals := h.Values("accept")
	if len(vals) != 2 || vals[0] != "text/html" || vals[1] != "application/json" {
		t.Fatalf("Values = %#v", vals)
	}

	h.Del("ACCEPT")
	if got := len(h.Values("Accept")); got != 0 {
		t.Fatalf("Del failed, still %d values", got)
	}
}

func TestHeaderPreservesInsertionOrderAcrossKeys(t *testing.T) {
	h := NewHeader()
	h.Add("Host", "example.com")
	h.Add("Accept", "*/*")
	h.Add("X-Trace", "1")

	var order []string
	h.Range(func(name, value string) bool {
		order = append(order, name)
		return true
	})
	want := []string{"Host", "Accept", "X-Trace"}
	if len(order) != len(want) {
		t.Fatalf("Range order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("Range order = %v, want %v", order, want)
		}
	}
}

func TestHeaderEqualIgnoresOrder(t *testing.T) {
	a := NewHeader()
	a.Add("Host", "x")
	a.Add("Accept", "*/*")

	b := NewHeader()
	b.Add("Accept", "*/*")
	b.Add("Host", "x")

	if !a.Equal(b) {
		t.Fatalf("expected a.Equal(b) regardless of insertion order")
	}

	b.Add("Accept", "text/html")
	if a.Equal(b) {
		t.Fatalf("expected a.Equal(b) to fail once multiset differs")
	}
}

func TestHeaderFreezeRejectsMutation(t *testing.T) {
	h := NewHeader()
	h.Add("Host", "x")
	frozen := h.Freeze()

	if !frozen.Frozen() {
		t.Fatal("expected Freeze() result to report Frozen()")
	}
	if err := frozen.Add("X", "y"); err != ErrHeaderFrozen {
		t.Fatalf("Add on frozen header = %v, want ErrHeaderFrozen", err)
	}
	if err := frozen.Set("Host", "y"); err != ErrHeaderFrozen {
		t.Fatalf("Set on frozen header = %v, want ErrHeaderFrozen", err)
	}
	if err := frozen.Del("Host"); err != ErrHeaderFrozen {
		t.Fatalf("Del on frozen header = %v, want ErrHeaderFrozen", err)
	}
	// The original, unfrozen header must remain mutable.
	if err := h.Add("X", "y"); err != nil {
		t.Fatalf("Add on original header: %v", err)
	}
}

func TestHeaderValidationLimits(t *testing.T) {
	h := NewHeader()
	for i := 0; i < 5; i++ {
		h.Add("X-K"+string(rune('A'+i)), "v")
	}
	lim := HeaderLimits{
		MaxFields:           4,
		MaxKeyBytes:         32,
		MaxValueBytes:       8,
		MaxTotalValuesBytes: 32,
	}
	if err := ValidateHeader(h, lim); err == nil {
		t.Fatal("expected error for too many fields")
	}

	// Invalid name (space) should fail.
	h = NewHeader()
	h.Add("Bad Name", "v")
	if err := ValidateHeader(h, lim); err == nil {
		t.Fatal("expected invalid field-name error")
	}

	// Invalid value (control characters other than HTAB).
	h = NewHeader()
	h.Add("X-K", "ok\tbut") // \a is control char -> invalid
	if err := ValidateHeader(h, lim); err == nil {
		t.Fatal("expected invalid value error")
	}

	// Value too long.
	h = NewHeader()
	h.Add("X-K", "123456789") // 9 bytes > MaxValueBytes(8)
	if err := ValidateHeader(h, lim); err == nil {
		t.Fatal("expected value too long error")
	}

	// Sum of values too large.
	h = NewHeader()
	h.Add("A", "12345678")
	h.Add("B", "12345678")
	h.Add("C", "1")
	lim.MaxTotalValuesBytes = 16 // total = 8+8+1 = 17 > 16
	if err := ValidateHeader(h, lim); err == nil {
		t.Fatal("expected total values size error")
	}

	// Valid case.
	h = NewHeader()
	h.Add("Content-Type", "text/plain")
	h.Add("Host", "ex.com")
	lim = HeaderLimits{MaxFields: 8, MaxKeyBytes: 64, MaxValueBytes: 64, MaxTotalValuesBytes: 0}
	if err := ValidateHeader(h, lim); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
}

func TestCanonicalHeaderKeyBehavior(t *testing.T) {
	cases := map[string]string{
		"content-type": "Content-Type",
		"HOST":         "Host",
		"etag":         "Etag",
		"x-custom-id":  "X-Custom-Id",
		"r":            "R",
		"":             "",
	}
	for in, want := range cases {
		if got := CanonicalHeaderKey(in); got != want {
			t.Fatalf("CanonicalHeaderKey(%q)=%q, want %q", in, got, want)
		}
	}
}
