package payment

import (
	"strings"
	"testing"
)

func TestFormatReference(t *testing.T) {
	ref := FormatReference(42)
	if !strings.HasPrefix(ref, "ORDER-42-") {
		t.Fatalf("reference = %q", ref)
	}
	id, ok := ParseReference(ref)
	if !ok || id != 42 {
		t.Fatalf("round trip: got %d %v", id, ok)
	}
}

func TestParseReference(t *testing.T) {
	cases := []struct {
		in   string
		want int64
		ok   bool
	}{
		{"42", 42, true},
		{"ORDER-42-1700000000", 42, true},
		{"ORDER-7", 7, true},
		{"", 0, false},
		{"ORDER-", 0, false},
		{"ORDER-abc", 0, false},
		{"0", 0, false},
		{"-5", 0, false},
		{"pedido-42", 0, false},
	}
	for _, c := range cases {
		id, ok := ParseReference(c.in)
		if ok != c.ok || id != c.want {
			t.Errorf("ParseReference(%q) = %d, %v; want %d, %v", c.in, id, ok, c.want, c.ok)
		}
	}
}
