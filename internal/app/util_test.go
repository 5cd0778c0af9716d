package app

import "testing"

func TestShortID(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v", "EPjFWd…yTDt1v"},
		{"shortstring", "shortstring"},
		{"exactly14chars", "exactly14chars"},
		{"fifteencharstr!", "fiftee…arstr!"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if result := shortID(tt.input); result != tt.expected {
				t.Errorf("shortID(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}
