package api

import "testing"

func TestNewCompletionID(t *testing.T) {
	id := NewCompletionID()
	if !ValidateCompletionID(id) {
		t.Errorf("NewCompletionID() = %q, want valid completion ID", id)
	}
}

func TestNewCompletionIDUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := NewCompletionID()
		if seen[id] {
			t.Fatalf("duplicate completion ID after %d iterations: %s", i, id)
		}
		seen[id] = true
	}
}

func TestValidateCompletionID(t *testing.T) {
	tests := []struct {
		name string
		id   string
		want bool
	}{
		{"valid", "chatcmpl-0123456789ab", true},
		{"uppercase hex", "chatcmpl-0123456789AB", false},
		{"wrong prefix", "resp_0123456789ab", false},
		{"too short", "chatcmpl-0123", false},
		{"too long", "chatcmpl-0123456789abc", false},
		{"chunk id", "chatcmpl-7", false},
		{"empty", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidateCompletionID(tt.id); got != tt.want {
				t.Errorf("ValidateCompletionID(%q) = %v, want %v", tt.id, got, tt.want)
			}
		})
	}
}

func TestChunkID(t *testing.T) {
	tests := []struct {
		n    int
		want string
	}{
		{0, "chatcmpl-0"},
		{1, "chatcmpl-1"},
		{42, "chatcmpl-42"},
	}
	for _, tt := range tests {
		if got := ChunkID(tt.n); got != tt.want {
			t.Errorf("ChunkID(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}
