package fileid

import (
	"testing"

	"github.com/google/uuid"
)

func TestDocID(t *testing.T) {
	id := DocID("/foo/bar.txt")
	if id != DocID("/foo/bar.txt") {
		t.Error("same path should give same ID")
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		t.Fatalf("ID %q is not a UUID: %v", id, err)
	}
	if parsed.Version() != 5 {
		t.Errorf("version = %d, want 5", parsed.Version())
	}
}

func TestDocID_paths(t *testing.T) {
	tests := []struct {
		a, b string
		same bool
	}{
		{"/foo/bar.txt", "/foo/baz.txt", false},
		{"/foo/bar", "/foo/bar/", true},
		{"/foo/bar", "/foo/./bar", true},
		{"/foo/bar", "/foo/qux/../bar", true},
		{"a/b.txt", "a/b.txt", true},
	}
	for _, tt := range tests {
		if got := DocID(tt.a) == DocID(tt.b); got != tt.same {
			t.Errorf("DocID(%q) == DocID(%q) is %v, want %v", tt.a, tt.b, got, tt.same)
		}
	}
}
