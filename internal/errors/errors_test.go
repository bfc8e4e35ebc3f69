// Package errors tests for error codes and chain inspection.
package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

// TestErrorCodes_areUnique verifies no two codes share a value.
func TestErrorCodes_areUnique(t *testing.T) {
	codes := []ErrorCode{
		ErrInternal, ErrInvalid, ErrNotFound, ErrConfig,
		ErrLocalStorage, ErrMigration,
		ErrRemoteWrite, ErrRemoteUnreachable,
		ErrSyncFailed,
	}

	seen := make(map[ErrorCode]bool)
	for _, code := range codes {
		if code == "" {
			t.Error("error code should not be empty")
		}
		if seen[code] {
			t.Errorf("duplicate error code %q", code)
		}
		seen[code] = true
	}
}

// TestAppError_Error verifies message formatting with and without a cause.
func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *AppError
		want string
	}{
		{
			name: "without cause",
			err:  New(ErrNotFound, "pending write 7 not found"),
			want: "[NOT_FOUND] pending write 7 not found",
		},
		{
			name: "with cause",
			err:  Wrap(ErrLocalStorage, "enqueue", fmt.Errorf("disk full")),
			want: "[LOCAL_STORAGE_ERROR] enqueue: disk full",
		},
		{
			name: "formatted",
			err:  Newf(ErrInvalid, "collection %q", ""),
			want: `[INVALID_INPUT] collection ""`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

// TestAppError_Unwrap verifies the standard library can see the cause.
func TestAppError_Unwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(ErrRemoteWrite, "insert", cause)

	if !errors.Is(err, cause) {
		t.Error("errors.Is() should find the wrapped cause")
	}
	if err.Unwrap() != cause {
		t.Errorf("Unwrap() = %v, want %v", err.Unwrap(), cause)
	}
}

// TestIs verifies code matching through wrapping layers.
func TestIs(t *testing.T) {
	inner := New(ErrNotFound, "gone")
	outer := Wrap(ErrSyncFailed, "drain", inner)
	viaFmt := fmt.Errorf("context: %w", outer)

	tests := []struct {
		name string
		err  error
		code ErrorCode
		want bool
	}{
		{"direct match", inner, ErrNotFound, true},
		{"outer match", outer, ErrSyncFailed, true},
		{"nested match", outer, ErrNotFound, true},
		{"through fmt wrap", viaFmt, ErrNotFound, true},
		{"no match", outer, ErrLocalStorage, false},
		{"standard error", errors.New("plain"), ErrInternal, false},
		{"nil error", nil, ErrInternal, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Is(tt.err, tt.code); got != tt.want {
				t.Errorf("Is() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestCodeOf verifies the outermost code is reported.
func TestCodeOf(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", Wrap(ErrLocalStorage, "list", New(ErrNotFound, "x")))
	if got := CodeOf(err); got != ErrLocalStorage {
		t.Errorf("CodeOf() = %q, want %q", got, ErrLocalStorage)
	}
	if got := CodeOf(errors.New("plain")); got != ErrInternal {
		t.Errorf("CodeOf(plain) = %q, want %q", got, ErrInternal)
	}
}

// TestErrorCode_format verifies codes are upper snake case.
func TestErrorCode_format(t *testing.T) {
	for _, code := range []ErrorCode{ErrLocalStorage, ErrRemoteWrite, ErrNotFound} {
		if strings.ToUpper(string(code)) != string(code) {
			t.Errorf("code %q should be upper case", code)
		}
		if strings.Contains(string(code), " ") {
			t.Errorf("code %q should not contain spaces", code)
		}
	}
}
