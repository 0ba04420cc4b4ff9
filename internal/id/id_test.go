package id

import (
	"strings"
	"testing"
)

func TestTarget(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		got := Target()
		if !strings.HasPrefix(got, TargetPrefix+"_") {
			t.Fatalf("Target() = %q, want prefix %q", got, TargetPrefix+"_")
		}
		if !IsGenerated(got) {
			t.Fatalf("IsGenerated(%q) = false", got)
		}
		if seen[got] {
			t.Fatalf("duplicate id %q", got)
		}
		seen[got] = true
	}
}

func TestIsGenerated(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"tgt_0123abcd", true},
		{"svc1", false},
		{"tgt_0123ABCD", false},
		{"tgt_0123abc", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsGenerated(tt.in); got != tt.want {
			t.Errorf("IsGenerated(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
