package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestDomainError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *DomainError
		expected string
	}{
		{
			name:     "error without details",
			err:      NewDomainError("KD-TEST-1000", "test message"),
			expected: "[KD-TEST-1000] test message",
		},
		{
			name:     "error with details",
			err:      NewDomainError("KD-TEST-1001", "test message").WithDetails("extra info"),
			expected: "[KD-TEST-1001] test message: extra info",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestDomainError_Is(t *testing.T) {
	err1 := NewDomainError("KD-TEST-1000", "message 1")
	err2 := NewDomainError("KD-TEST-1000", "message 2")
	err3 := NewDomainError("KD-TEST-1001", "message 1")

	if !errors.Is(err1, err2) {
		t.Error("errors.Is should return true for same error code")
	}
	if errors.Is(err1, err3) {
		t.Error("errors.Is should return false for different error code")
	}
	if errors.Is(err1, fmt.Errorf("some error")) {
		t.Error("errors.Is should return false for non-DomainError")
	}
}

func TestDomainError_WrappedSentinel(t *testing.T) {
	cause := fmt.Errorf("dial tcp: connection refused")
	err := fmt.Errorf("issue: %w", ErrStoreUnavailable.WithCause(cause))

	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatal("wrapped sentinel should match with errors.Is")
	}
	if !errors.Is(err, cause) {
		t.Fatal("cause should be reachable through Unwrap")
	}
	if got := GetErrorCode(err); got != "KD-SYS-5030" {
		t.Errorf("GetErrorCode() = %q, want KD-SYS-5030", got)
	}
	if !IsDomainError(err, "") {
		t.Error("IsDomainError(err, \"\") = false, want true")
	}
	if IsDomainError(fmt.Errorf("plain"), "") {
		t.Error("IsDomainError(plain) = true, want false")
	}
}

func TestDomainError_CopiesDoNotMutateSentinel(t *testing.T) {
	_ = ErrKeyNotFound.WithDetails("abc")
	if ErrKeyNotFound.Details != "" {
		t.Fatalf("sentinel details mutated: %q", ErrKeyNotFound.Details)
	}
}
