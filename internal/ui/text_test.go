package ui

import "testing"

func TestTruncateWithEllipsis(t *testing.T) {
	tests := []struct {
		input    string
		max      int
		expected string
	}{
		{"", 5, ""},
		{"short", 5, "short"},
		{"longer text", 6, "longer…"},
		{"anything", 0, ""},
		{"anything", -1, ""},
		{"αβγδεζ", 3, "αβγ…"},
		{"日本語", 3, "日本語"},
	}

	for _, test := range tests {
		result := TruncateWithEllipsis(test.input, test.max)
		if result != test.expected {
			t.Errorf("TruncateWithEllipsis(%q, %d) = %q, expected %q", test.input, test.max, result, test.expected)
		}
	}
}

func TestDirLabel(t *testing.T) {
	tests := map[string]string{
		"":          "the current directory",
		".":         "the current directory",
		"/tmp/imgs": "/tmp/imgs",
	}
	for in, want := range tests {
		if got := DirLabel(in); got != want {
			t.Errorf("DirLabel(%q) = %q, expected %q", in, got, want)
		}
	}
}
