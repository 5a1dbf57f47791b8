package message

import (
	"io"
	"strconv"
	"strings"

	"github.com/WhileEndless/go-docwire/pkg/cookies"
	"github.com/WhileEndless/go-docwire/pkg/headers"
)

// Response is a received HTTP response. Body is bound to the connection and
// must be read or closed by the receiver.
type Response struct {
	Line    StatusLine
	Headers *headers.OrderedHeaders
	Body    *BodyStream

	// Interim holds the 1xx responses that preceded this one.
	Interim []StatusLine
}

// StatusCode returns the status code.
func (r *Response) StatusCode() int { return r.Line.StatusCode }

// IsSuccessful returns true if the response has a 2xx status code
func (r *Response) IsSuccessful() bool {
	return r.Line.StatusCode >= 200 && r.Line.StatusCode < 300
}

// IsRedirect returns true if the response has a 3xx status code
func (r *Response) IsRedirect() bool {
	return r.Line.StatusCode >= 300 && r.Line.StatusCode < 400
}

// IsClientError returns true if the response has a 4xx status code
func (r *Response) IsClientError() bool {
	return r.Line.StatusCode >= 400 && r.Line.StatusCode < 500
}

// IsServerError returns true if the response has a 5xx status code
func (r *Response) IsServerError() bool {
	return r.Line.StatusCode >= 500 && r.Line.StatusCode < 600
}

// ContentLength returns the declared Content-Length, or -1.
func (r *Response) ContentLength() int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(r.Headers.Get("Content-Length")), 10, 64)
	if err != nil || n < 0 {
		return -1
	}
	return n
}

// ContentType returns the Content-Type header
func (r *Response) ContentType() string {
	return r.Headers.Get("Content-Type")
}

// ContentEncoding returns the Content-Encoding header
func (r *Response) ContentEncoding() string {
	return r.Headers.Get("Content-Encoding")
}

// Location returns the trimmed Location header of a redirect.
func (r *Response) Location() string {
	if r.IsRedirect() {
		return strings.TrimSpace(r.Headers.Get("Location"))
	}
	return ""
}

// SetCookies returns every Set-Cookie header, parsed.
func (r *Response) SetCookies() []cookies.SetCookie {
	values := r.Headers.Values("Set-Cookie")
	out := make([]cookies.SetCookie, 0, len(values))
	for _, v := range values {
		out = append(out, cookies.ParseSetCookie(v))
	}
	return out
}

// DecodedBody returns the body with its Content-Encoding removed. Closing
// the result closes the body.
func (r *Response) DecodedBody() (io.ReadCloser, error) {
	return r.Body.Decoded(r.ContentEncoding())
}

// ReadAll reads the whole body, decoding any Content-Encoding, and closes it.
func (r *Response) ReadAll() ([]byte, error) {
	if r.ContentEncoding() == "" {
		defer r.Body.Close()
		return r.Body.ReadToEnd()
	}
	rc, err := r.DecodedBody()
	if err != nil {
		r.Body.Close()
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
