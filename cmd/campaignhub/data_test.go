package main

import "testing"

func TestMaskKey(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{"0123456789abcdef-us6", "************cdef-us6"},
		{"abcd-us1", "****-us1"},
		{"ab", "**"},
		{"", ""},
		{"0123456789", "******6789"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			if got := maskKey(tt.key); got != tt.want {
				t.Errorf("maskKey(%q) = %q, want %q", tt.key, got, tt.want)
			}
		})
	}
}
