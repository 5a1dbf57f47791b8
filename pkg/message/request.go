package message

import (
	"bytes"
	"io"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/valyala/bytebufferpool"

	"github.com/WhileEndless/go-docwire/pkg/chunked"
	"github.com/WhileEndless/go-docwire/pkg/errors"
	"github.com/WhileEndless/go-docwire/pkg/headers"
	"github.com/WhileEndless/go-docwire/pkg/version"
)

// Request is an HTTP request, either built for sending or parsed from the
// wire.
type Request struct {
	Line    RequestLine
	URL     *url.URL
	Headers *headers.OrderedHeaders

	// Outgoing payload. ContentLength is -1 when unknown, in which case the
	// payload is sent chunked.
	Content       io.Reader
	ContentLength int64

	// Body of a parsed request.
	Body *BodyStream
}

// NewRequest builds a request for an absolute http URL. When content is a
// *bytes.Reader, *bytes.Buffer or *strings.Reader its length is known;
// otherwise ContentLength is -1.
func NewRequest(method, rawURL string, content io.Reader) (*Request, error) {
	if !ValidMethod(method) {
		return nil, errors.NewError(errors.ErrorTypeInvalidMethod,
			"invalid method "+strconv.Quote(method), "NewRequest", nil)
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, errors.NewError(errors.ErrorTypeInvalidURL, err.Error(), "NewRequest", []byte(rawURL))
	}
	if u.Scheme != "http" || u.Hostname() == "" {
		return nil, errors.NewError(errors.ErrorTypeInvalidURL,
			"target must be an absolute http URL", "NewRequest", []byte(rawURL))
	}

	r := &Request{
		URL:     u,
		Headers: headers.NewOrderedHeaders(),
		Content: content,
	}
	r.Line = RequestLine{Method: method, Target: requestURI(u), Version: DefaultVersion}

	switch c := content.(type) {
	case nil:
		r.ContentLength = 0
	case *bytes.Reader:
		r.ContentLength = int64(c.Len())
	case *bytes.Buffer:
		r.ContentLength = int64(c.Len())
	case *strings.Reader:
		r.ContentLength = int64(c.Len())
	default:
		r.ContentLength = -1
	}
	return r, nil
}

func requestURI(u *url.URL) string {
	uri := u.EscapedPath()
	if uri == "" {
		uri = "/"
	}
	if u.RawQuery != "" {
		uri += "?" + u.RawQuery
	}
	return uri
}

// Method returns the request method.
func (r *Request) Method() string { return r.Line.Method }

// Port returns the target port, 80 when the URL names none.
func (r *Request) Port() int {
	if r.URL == nil {
		return 80
	}
	if p, err := strconv.Atoi(r.URL.Port()); err == nil {
		return p
	}
	return 80
}

// HostHeader returns the Host value derived from the target URL. The port is
// omitted when it is the default.
func (r *Request) HostHeader() string {
	host := r.URL.Hostname()
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	if p := r.URL.Port(); p != "" && p != "80" {
		return net.JoinHostPort(r.URL.Hostname(), p)
	}
	return host
}

// ExpectsContinue reports whether the request carries Expect: 100-continue.
func (r *Request) ExpectsContinue() bool {
	return strings.EqualFold(strings.TrimSpace(r.Headers.Get("Expect")), "100-continue")
}

// Chunked reports whether the payload goes out with chunked framing.
func (r *Request) Chunked() bool {
	return r.Headers.HasToken("Transfer-Encoding", "chunked")
}

// Prepare completes the header set before sending: Host first when absent, a
// default User-Agent, and framing headers derived from the payload.
func (r *Request) Prepare() error {
	if r.URL == nil {
		return errors.NewError(errors.ErrorTypeInvalidURL, "request has no target URL", "Prepare", nil)
	}
	if !r.Headers.Has("Host") {
		r.Headers.SetAt("Host", r.HostHeader(), 0)
	}
	if !r.Headers.Has("User-Agent") {
		r.Headers.Set("User-Agent", version.UserAgent())
	}

	hasCL, hasTE := r.Headers.Has("Content-Length"), r.Headers.Has("Transfer-Encoding")
	if hasCL && hasTE {
		return errors.ErrConflictingFraming
	}
	// A caller-supplied Content-Length bounds a payload of unknown size.
	if hasCL && r.Content != nil && r.ContentLength < 0 {
		n, err := strconv.ParseInt(strings.TrimSpace(r.Headers.Get("Content-Length")), 10, 64)
		if err != nil || n < 0 {
			return errors.NewError(errors.ErrorTypeMalformedHeader, "invalid Content-Length value", "Prepare", []byte(r.Headers.Get("Content-Length")))
		}
		r.ContentLength = n
	}

	switch {
	case r.Content == nil:
		if !hasCL && !hasTE && !bodylessMethod(r.Line.Method) {
			r.Headers.Set("Content-Length", "0")
		}
	case hasTE:
		if !r.Chunked() {
			return errors.ErrUnsupportedTransferEncoding
		}
	case r.ContentLength >= 0:
		r.Headers.Set("Content-Length", strconv.FormatInt(r.ContentLength, 10))
	default:
		r.Headers.Set("Transfer-Encoding", "chunked")
	}
	return r.Headers.Validate()
}

// WriteHeadTo writes the request line and header block, terminator included.
func (r *Request) WriteHeadTo(w io.Writer) (int64, error) {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	buf.WriteString(r.Line.String())
	buf.WriteString("\r\n")
	r.Headers.WriteTo(buf)
	buf.WriteString("\r\n")
	return buf.WriteTo(w)
}

// Head returns the serialized request line and headers.
func (r *Request) Head() []byte {
	var b bytes.Buffer
	r.WriteHeadTo(&b)
	return b.Bytes()
}

// PayloadReader returns what goes on the wire after the head: the content
// itself, or the content in chunked framing with blockSize chunks.
func (r *Request) PayloadReader(blockSize int) io.Reader {
	if r.Content == nil {
		return nil
	}
	if r.Chunked() {
		return chunked.NewEncodingReader(r.Content, blockSize)
	}
	if r.ContentLength >= 0 {
		return io.LimitReader(r.Content, r.ContentLength)
	}
	return r.Content
}

// WireSize is the number of bytes the request occupies on the wire, or -1
// when the payload length is unknown.
func (r *Request) WireSize() int64 {
	head := int64(len(r.Head()))
	switch {
	case r.Content == nil:
		return head
	case r.Chunked() || r.ContentLength < 0:
		return -1
	default:
		return head + r.ContentLength
	}
}

func bodylessMethod(method string) bool {
	switch method {
	case "GET", "HEAD", "DELETE":
		return true
	}
	return false
}
