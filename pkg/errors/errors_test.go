package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
)

func TestAppError_Error(t *testing.T) {
	err := NewAppError(ErrCodeInvalidInput, "stream id is required", http.StatusBadRequest)
	expected := "INVALID_INPUT: stream id is required"
	if err.Error() != expected {
		t.Errorf("Error() = %v, want %v", err.Error(), expected)
	}
}

func TestAppError_WithCause(t *testing.T) {
	originalErr := errors.New("registry lock poisoned")
	err := WrapError(originalErr, ErrCodeServiceUnavailable, "registry unavailable", http.StatusServiceUnavailable)

	if err.Cause != originalErr {
		t.Errorf("Cause = %v, want %v", err.Cause, originalErr)
	}
	if !errors.Is(err, originalErr) {
		t.Error("errors.Is should see the cause through Unwrap")
	}
	if !strings.Contains(err.Error(), "registry lock poisoned") {
		t.Errorf("Error() should contain cause, got: %v", err.Error())
	}
}

func TestAppError_WithContext(t *testing.T) {
	err := NewNotFoundError("stream")
	err.WithContext("stream_id", "abc12345").WithContext("viewers", 0)

	if err.Context["stream_id"] != "abc12345" {
		t.Errorf("Context[stream_id] = %v, want 'abc12345'", err.Context["stream_id"])
	}
	if err.Context["viewers"] != 0 {
		t.Errorf("Context[viewers] = %v, want 0", err.Context["viewers"])
	}

	var zero AppError
	zero.WithContext("k", "v")
	if zero.Context["k"] != "v" {
		t.Error("WithContext should allocate the map on a zero AppError")
	}
}

func TestConstructors(t *testing.T) {
	cases := []struct {
		name   string
		err    *AppError
		code   ErrorCode
		status int
	}{
		{"invalid input", NewInvalidInputError("bad"), ErrCodeInvalidInput, http.StatusBadRequest},
		{"not found", NewNotFoundError("stream"), ErrCodeNotFound, http.StatusNotFound},
		{"conflict", NewConflictError("stream id already in use"), ErrCodeConflict, http.StatusConflict},
		{"rate limit", NewRateLimitError(), ErrCodeRateLimit, http.StatusTooManyRequests},
		{"internal", NewInternalError("boom"), ErrCodeInternal, http.StatusInternalServerError},
		{"unavailable", NewServiceUnavailableError("service unavailable"), ErrCodeServiceUnavailable, http.StatusServiceUnavailable},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if tc.err.Code != tc.code {
				t.Errorf("Code = %v, want %v", tc.err.Code, tc.code)
			}
			if tc.err.HTTPStatus != tc.status {
				t.Errorf("HTTPStatus = %v, want %v", tc.err.HTTPStatus, tc.status)
			}
		})
	}

	if msg := NewNotFoundError("stream").Message; msg != "stream not found" {
		t.Errorf("Message = %q, want %q", msg, "stream not found")
	}
}

func TestIsAppError(t *testing.T) {
	appErr := NewNotFoundError("stream")
	regularErr := errors.New("regular error")

	if !IsAppError(appErr) {
		t.Error("IsAppError() should return true for AppError")
	}
	if !IsAppError(fmt.Errorf("lookup: %w", appErr)) {
		t.Error("IsAppError() should see an AppError wrapped with %w")
	}
	if IsAppError(regularErr) {
		t.Error("IsAppError() should return false for regular error")
	}
	if IsAppError(nil) {
		t.Error("IsAppError() should return false for nil")
	}
}

func TestGetAppError(t *testing.T) {
	appErr := NewNotFoundError("stream")

	if result := GetAppError(appErr); result != appErr {
		t.Errorf("GetAppError() = %v, want %v", result, appErr)
	}

	wrapped := fmt.Errorf("handler: %w", appErr)
	if result := GetAppError(wrapped); result != appErr {
		t.Error("GetAppError() should extract AppError from wrapped error")
	}

	if result := GetAppError(errors.New("regular error")); result != nil {
		t.Error("GetAppError() should return nil for regular error")
	}
}
