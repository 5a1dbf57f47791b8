package errors_test

import (
	stderrors "errors"
	"fmt"
	"testing"

	pkgerrors "github.com/pkg/errors"

	"github.com/WhileEndless/go-docwire/pkg/errors"
)

func TestTransportErrorTypes(t *testing.T) {
	baseErr := stderrors.New("test error")

	tests := []struct {
		name     string
		err      *errors.HTTPError
		wantType errors.HTTPErrorType
		sentinel error
		unwraps  bool
	}{
		{
			name:     "DNS Error",
			err:      errors.NewDNSError(baseErr),
			wantType: errors.ErrorTypeDNS,
			sentinel: errors.ErrDNSResolution,
			unwraps:  true,
		},
		{
			name:     "Connection Error",
			err:      errors.NewConnectionError("dial", baseErr),
			wantType: errors.ErrorTypeConnection,
			sentinel: errors.ErrConnection,
			unwraps:  true,
		},
		{
			name:     "Timeout Error",
			err:      errors.NewTimeoutError("receive"),
			wantType: errors.ErrorTypeTimeout,
			sentinel: errors.ErrTimeout,
		},
		{
			name:     "Invalid Argument Error",
			err:      errors.NewInvalidArgumentError("nil handler"),
			wantType: errors.ErrorTypeInvalidArgument,
			sentinel: errors.ErrInvalidArgument,
		},
		{
			name:     "Closed Error",
			err:      errors.NewClosedError("send"),
			wantType: errors.ErrorTypeClosed,
			sentinel: errors.ErrClosed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Type != tt.wantType {
				t.Errorf("Type = %v, want %v", tt.err.Type, tt.wantType)
			}

			if tt.err.Error() == "" {
				t.Error("Error() returned empty string")
			}

			if !stderrors.Is(tt.err, tt.sentinel) {
				t.Errorf("errors.Is(%v, %v) = false", tt.err, tt.sentinel)
			}

			if tt.unwraps {
				if unwrapped := stderrors.Unwrap(tt.err); unwrapped != baseErr {
					t.Errorf("Unwrap() = %v, want %v", unwrapped, baseErr)
				}
			}
		})
	}
}

func TestHandlerError(t *testing.T) {
	err := errors.NewHandlerError("progress", "boom")
	if err.Type != errors.ErrorTypeHandler {
		t.Errorf("Type = %v, want handler", err.Type)
	}
	if err.Error() != "progress handler failed: boom" {
		t.Errorf("Error() = %q", err.Error())
	}

	cause := fmt.Errorf("index out of range")
	if got := errors.NewHandlerError("progress", cause); stderrors.Unwrap(got) != cause {
		t.Errorf("Expected recovered error to be kept as cause")
	}
}

func TestIsTimeout_Wrapped(t *testing.T) {
	err := pkgerrors.Wrap(errors.NewTimeoutError("connect"), "put /docs/a")
	if !errors.IsTimeout(err) {
		t.Error("Expected wrapped timeout to be detected")
	}
	if !errors.IsTransportError(err) {
		t.Error("Expected wrapped transport error to be detected")
	}
	if errors.IsParseError(err) {
		t.Error("Timeout must not be reported as a formatting error")
	}
}

func TestFormatErrorSentinels(t *testing.T) {
	err := errors.NewError(errors.ErrorTypeConflictingFraming, "both headers", "response", nil)

	if !stderrors.Is(err, errors.ErrConflictingFraming) {
		t.Error("Expected match on ConflictingFraming")
	}
	if stderrors.Is(err, errors.ErrMissingContentLength) {
		t.Error("Unexpected match on MissingContentLength")
	}
	if !errors.IsFormatError(pkgerrors.WithStack(err)) {
		t.Error("Expected wrapped error to be a formatting error")
	}
	if errors.IsTransportError(err) {
		t.Error("Formatting error must not be a transport error")
	}
	if got := err.Error(); got != "docwire: both headers (context: response)" {
		t.Errorf("Error() = %q", got)
	}
}

func TestErrorTypeString(t *testing.T) {
	if got := errors.ErrorTypeContentLengthExceeded.String(); got != "content length exceeded" {
		t.Errorf("String() = %q", got)
	}
	if got := errors.ErrorTypeTimeout.String(); got != "timeout" {
		t.Errorf("String() = %q", got)
	}
}
