package errors

import (
	stderrors "errors"
	"fmt"
)

// Transport-level sentinel errors
var (
	ErrDNSResolution   = stderrors.New("DNS resolution failed")
	ErrConnection      = stderrors.New("connection failed")
	ErrTimeout         = stderrors.New("operation timeout")
	ErrClosed          = stderrors.New("connection closed")
	ErrOperationBusy   = stderrors.New("operation already in progress")
	ErrInvalidArgument = stderrors.New("invalid argument")
)

// HTTPErrorType represents transport failure categories
type HTTPErrorType int

const (
	ErrorTypeDNS HTTPErrorType = iota
	ErrorTypeConnection
	ErrorTypeTimeout
	ErrorTypeHandler
	ErrorTypeInvalidArgument
	ErrorTypeClosed
)

func (t HTTPErrorType) String() string {
	switch t {
	case ErrorTypeDNS:
		return "dns"
	case ErrorTypeConnection:
		return "connection"
	case ErrorTypeTimeout:
		return "timeout"
	case ErrorTypeHandler:
		return "handler"
	case ErrorTypeInvalidArgument:
		return "invalid argument"
	case ErrorTypeClosed:
		return "closed"
	default:
		return fmt.Sprintf("HTTPErrorType(%d)", int(t))
	}
}

// HTTPError is a transport fault: socket, DNS, timeout or handler failure.
// It carries the underlying cause.
type HTTPError struct {
	Type    HTTPErrorType
	Message string
	Err     error
}

func (e *HTTPError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *HTTPError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrTimeout) and friends match by category.
func (e *HTTPError) Is(target error) bool {
	switch target {
	case ErrTimeout:
		return e.Type == ErrorTypeTimeout
	case ErrDNSResolution:
		return e.Type == ErrorTypeDNS
	case ErrConnection:
		return e.Type == ErrorTypeConnection
	case ErrClosed:
		return e.Type == ErrorTypeClosed
	case ErrInvalidArgument:
		return e.Type == ErrorTypeInvalidArgument
	}
	return false
}

// NewDNSError creates a DNS resolution error
func NewDNSError(err error) *HTTPError {
	return &HTTPError{
		Type:    ErrorTypeDNS,
		Message: "DNS resolution failed",
		Err:     err,
	}
}

// NewConnectionError creates a socket-level error for the given step
func NewConnectionError(message string, err error) *HTTPError {
	if message == "" {
		message = "connection failed"
	}
	return &HTTPError{
		Type:    ErrorTypeConnection,
		Message: message,
		Err:     err,
	}
}

// NewTimeoutError creates a timeout error for the named operation
func NewTimeoutError(op string) *HTTPError {
	return &HTTPError{
		Type:    ErrorTypeTimeout,
		Message: "operation timeout",
		Err:     fmt.Errorf("%s deadline expired", op),
	}
}

// NewHandlerError wraps a fault raised inside a caller-supplied handler
func NewHandlerError(handler string, recovered interface{}) *HTTPError {
	err, ok := recovered.(error)
	if !ok {
		err = fmt.Errorf("%v", recovered)
	}
	return &HTTPError{
		Type:    ErrorTypeHandler,
		Message: handler + " handler failed",
		Err:     err,
	}
}

// NewInvalidArgumentError creates an invalid argument error
func NewInvalidArgumentError(message string) *HTTPError {
	return &HTTPError{
		Type:    ErrorTypeInvalidArgument,
		Message: message,
	}
}

// NewClosedError reports use of a connection after it was closed or failed
func NewClosedError(op string) *HTTPError {
	return &HTTPError{
		Type:    ErrorTypeClosed,
		Message: op + " on closed connection",
	}
}

// IsTimeout reports whether err is (or wraps) a timeout fault
func IsTimeout(err error) bool {
	return stderrors.Is(err, ErrTimeout)
}

// IsTransportError reports whether err is (or wraps) an *HTTPError
func IsTransportError(err error) bool {
	var e *HTTPError
	return stderrors.As(err, &e)
}
