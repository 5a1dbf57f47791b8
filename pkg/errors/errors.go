package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorType represents different types of message formatting errors
type ErrorType int

const (
	ErrorTypeInvalidFormat ErrorType = iota
	ErrorTypeMalformedHeader
	ErrorTypeInvalidMethod
	ErrorTypeInvalidURL
	ErrorTypeInvalidVersion
	ErrorTypeInvalidStatusCode
	ErrorTypeCompressionError
	ErrorTypeMissingContentLength
	ErrorTypeConflictingFraming
	ErrorTypeUnsupportedTransferEncoding
	ErrorTypeContentLengthExceeded
	ErrorTypeUnexpectedStatus
	ErrorTypeInvalidChunk
)

var errorTypeNames = map[ErrorType]string{
	ErrorTypeInvalidFormat:               "invalid format",
	ErrorTypeMalformedHeader:             "malformed header",
	ErrorTypeInvalidMethod:               "invalid method",
	ErrorTypeInvalidURL:                  "invalid url",
	ErrorTypeInvalidVersion:              "invalid version",
	ErrorTypeInvalidStatusCode:           "invalid status code",
	ErrorTypeCompressionError:            "compression error",
	ErrorTypeMissingContentLength:        "missing content length",
	ErrorTypeConflictingFraming:          "conflicting framing",
	ErrorTypeUnsupportedTransferEncoding: "unsupported transfer encoding",
	ErrorTypeContentLengthExceeded:       "content length exceeded",
	ErrorTypeUnexpectedStatus:            "unexpected status",
	ErrorTypeInvalidChunk:                "invalid chunk",
}

func (t ErrorType) String() string {
	if name, ok := errorTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("ErrorType(%d)", int(t))
}

// Error represents a message formatting fault: the peer (or the caller) produced
// bytes that do not frame a valid HTTP/1.1 message. These are never retried.
type Error struct {
	Type    ErrorType
	Message string
	Context string
	Raw     []byte
}

func (e *Error) Error() string {
	if e.Context == "" {
		return "docwire: " + e.Message
	}
	return fmt.Sprintf("docwire: %s (context: %s)", e.Message, e.Context)
}

// Is matches any *Error of the same Type, so the sentinels below work with
// errors.Is regardless of message or context.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Type == e.Type
}

// NewError creates a new Error
func NewError(errType ErrorType, message, context string, raw []byte) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		Context: context,
		Raw:     raw,
	}
}

// Sentinels for errors.Is checks.
var (
	ErrMissingContentLength        = &Error{Type: ErrorTypeMissingContentLength, Message: "message declares neither Content-Length nor chunked Transfer-Encoding"}
	ErrConflictingFraming          = &Error{Type: ErrorTypeConflictingFraming, Message: "Content-Length and Transfer-Encoding are both present"}
	ErrUnsupportedTransferEncoding = &Error{Type: ErrorTypeUnsupportedTransferEncoding, Message: "unsupported Transfer-Encoding"}
	ErrContentLengthExceeded       = &Error{Type: ErrorTypeContentLengthExceeded, Message: "content exceeds the declared Content-Length"}
	ErrUnexpectedStatus            = &Error{Type: ErrorTypeUnexpectedStatus, Message: "unexpected status code"}
	ErrInvalidChunk                = &Error{Type: ErrorTypeInvalidChunk, Message: "invalid chunk framing"}
	ErrMalformedHeader             = &Error{Type: ErrorTypeMalformedHeader, Message: "malformed header line"}
	ErrInvalidStatusCode           = &Error{Type: ErrorTypeInvalidStatusCode, Message: "invalid status code"}
)

// IsParseError checks if an error is a formatting error
func IsParseError(err error) bool {
	var e *Error
	return stderrors.As(err, &e)
}

// IsFormatError is an alias of IsParseError that reads better at call sites
// dealing with transport and formatting faults side by side.
func IsFormatError(err error) bool {
	return IsParseError(err)
}
