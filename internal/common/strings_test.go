package common

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestTruncateRunes(t *testing.T) {
	cases := []struct {
		in   string
		n    int
		want string
	}{
		{"hello", 10, "hello"},
		{"hello", 5, "hello"},
		{"hello", 3, "hel"},
		{"hello", 0, ""},
		{"hello", -1, ""},
		{"", 3, ""},
		{"héllo", 2, "hé"},
		{"日本語テスト", 3, "日本語"},
		{"a🏋️b", 2, "a🏋"},
	}
	for _, c := range cases {
		got := TruncateRunes(c.in, c.n)
		if got != c.want {
			t.Errorf("TruncateRunes(%q, %d) = %q, want %q", c.in, c.n, got, c.want)
		}
		if !utf8.ValidString(got) {
			t.Errorf("TruncateRunes(%q, %d) produced invalid UTF-8", c.in, c.n)
		}
	}
}

func TestTruncateRunes_LongMultibyte(t *testing.T) {
	in := strings.Repeat("é", 3000)
	got := TruncateRunes(in, 2000)
	if utf8.RuneCountInString(got) != 2000 {
		t.Fatalf("rune count = %d", utf8.RuneCountInString(got))
	}
	if !utf8.ValidString(got) {
		t.Fatal("invalid UTF-8 after truncation")
	}
}
