package utils

import "testing"

func TestExtractFirstJSON(t *testing.T) {
	cases := map[string]string{
		"```json\n{\"a\":1}\n```":             `{"a":1}`,
		`prefix {"a":{"b":"}"}} suffix {"c":2}`: `{"a":{"b":"}"}}`,
		`{"q":"say \"{hi}\""}`:                  `{"q":"say \"{hi}\""}`,
		"no json here":                          "no json here",
	}
	for in, want := range cases {
		if got := ExtractFirstJSON(in); got != want {
			t.Errorf("ExtractFirstJSON(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("эспрессо", 3); got != "эсп" {
		t.Fatalf("got %q", got)
	}
	if got := Truncate("short", 10); got != "short" {
		t.Fatalf("got %q", got)
	}
	if got := Truncate("keep", 0); got != "keep" {
		t.Fatalf("got %q", got)
	}
}

func TestCountWords(t *testing.T) {
	if n := CountWords("  one\ttwo\nthree  "); n != 3 {
		t.Fatalf("got %d", n)
	}
}
