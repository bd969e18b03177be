package buildinfo

import (
	"runtime"
	"strings"
	"testing"
)

func TestGet(t *testing.T) {
	info := Get()

	if info.Version == "" || info.Commit == "" || info.BuildTime == "" {
		t.Errorf("Get() = %+v, want every field set", info)
	}
	if info.GoVersion != runtime.Version() {
		t.Errorf("GoVersion = %q, want %q", info.GoVersion, runtime.Version())
	}
}

func TestString(t *testing.T) {
	s := String()
	if !strings.HasPrefix(s, Version+" (") || !strings.Contains(s, "built at") {
		t.Errorf("String() = %q", s)
	}
}

func TestShortCommit(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"abc", "abc"},
		{"0123456789abcdef0123", "0123456789ab"},
	}
	for _, tt := range tests {
		if got := shortCommit(tt.in); got != tt.want {
			t.Errorf("shortCommit(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
