// Package message parses and serializes HTTP/1.1 messages incrementally:
// start-lines, header sets, and the body streams bound to a live connection.
package message

import (
	"strconv"
	"strings"

	"golang.org/x/net/http/httpguts"

	"github.com/WhileEndless/go-docwire/pkg/errors"
)

// DefaultVersion is the protocol version written on outgoing requests.
const DefaultVersion = "HTTP/1.1"

// RequestLine is "METHOD target HTTP/x.y".
type RequestLine struct {
	Method  string
	Target  string
	Version string
}

func (l RequestLine) String() string {
	return l.Method + " " + l.Target + " " + l.Version
}

// StatusLine is "HTTP/x.y code reason".
type StatusLine struct {
	Version    string
	StatusCode int
	Reason     string
}

func (l StatusLine) String() string {
	s := l.Version + " " + strconv.Itoa(l.StatusCode)
	if l.Reason != "" {
		s += " " + l.Reason
	}
	return s
}

// Interim reports whether the status is a 1xx other than 101.
func (l StatusLine) Interim() bool {
	return l.StatusCode >= 100 && l.StatusCode < 200 && l.StatusCode != 101
}

// ParseRequestLine parses a request line.
func ParseRequestLine(line string) (RequestLine, error) {
	parts := strings.Split(line, " ")
	if len(parts) != 3 {
		return RequestLine{}, errors.NewError(errors.ErrorTypeInvalidFormat,
			"malformed request line", "parseRequestLine", []byte(line))
	}

	method, target, version := parts[0], parts[1], parts[2]
	if !ValidMethod(method) {
		return RequestLine{}, errors.NewError(errors.ErrorTypeInvalidMethod,
			"invalid method "+strconv.Quote(method), "parseRequestLine", []byte(line))
	}
	if target == "" {
		return RequestLine{}, errors.NewError(errors.ErrorTypeInvalidURL,
			"empty request target", "parseRequestLine", []byte(line))
	}
	if !validVersion(version) {
		return RequestLine{}, errors.NewError(errors.ErrorTypeInvalidVersion,
			"invalid version "+strconv.Quote(version), "parseRequestLine", []byte(line))
	}
	return RequestLine{Method: method, Target: target, Version: version}, nil
}

// ParseStatusLine parses a status line. The reason phrase may be empty or
// absent.
func ParseStatusLine(line string) (StatusLine, error) {
	version, rest, _ := strings.Cut(line, " ")
	if !validVersion(version) {
		return StatusLine{}, errors.NewError(errors.ErrorTypeInvalidVersion,
			"missing or invalid status line", "parseStatusLine", []byte(line))
	}

	codeText, reason, _ := strings.Cut(rest, " ")
	code, err := strconv.Atoi(codeText)
	if err != nil || len(codeText) != 3 || code < 100 {
		return StatusLine{}, errors.NewError(errors.ErrorTypeInvalidStatusCode,
			"invalid status code "+strconv.Quote(codeText), "parseStatusLine", []byte(line))
	}
	return StatusLine{Version: version, StatusCode: code, Reason: reason}, nil
}

// ValidMethod reports whether m is a syntactically valid method token.
func ValidMethod(m string) bool {
	return m != "" && httpguts.ValidHeaderFieldName(m)
}

// knownMethods are recognized at the start of a request before its line is
// complete.
var knownMethods = []string{
	"GET", "HEAD", "POST", "PUT", "DELETE", "OPTIONS", "PATCH", "TRACE", "CONNECT",
	"COPY", "MOVE",
}

func startsWithKnownMethod(text []byte) bool {
	for _, m := range knownMethods {
		if len(text) > len(m) && string(text[:len(m)]) == m && text[len(m)] == ' ' {
			return true
		}
	}
	return false
}

func validVersion(v string) bool {
	if !strings.HasPrefix(v, "HTTP/") {
		return false
	}
	major, minor, ok := strings.Cut(v[len("HTTP/"):], ".")
	if !ok || len(major) != 1 || len(minor) != 1 {
		return false
	}
	return major[0] >= '0' && major[0] <= '9' && minor[0] >= '0' && minor[0] <= '9'
}
