package message

import (
	"io"
	"strconv"
	"strings"

	"github.com/WhileEndless/go-docwire/pkg/connection"
	"github.com/WhileEndless/go-docwire/pkg/errors"
	"github.com/WhileEndless/go-docwire/pkg/headers"
)

// Kind selects the start-line grammar a Builder applies.
type Kind int

const (
	KindRequest Kind = iota
	KindResponse
)

func (k Kind) String() string {
	if k == KindRequest {
		return "request"
	}
	return "response"
}

// DefaultMaxHeadSize bounds the start-line plus header block.
const DefaultMaxHeadSize = 64 * 1024

const defaultReceiveBlock = 8192

var crlfcrlf = []byte("\r\n\r\n")

// Source is what a Builder pulls bytes from: one receive at a time, then a
// plain reader for the body once the head is parsed. *connection.Connection
// satisfies it.
type Source interface {
	ReceiveAsync(buf []byte, cb connection.Callbacks) error
	io.Reader
}

// sectioned sources keep separate head and content byte counts.
type sectioned interface {
	SetSection(d connection.Direction, s connection.Section)
	Reclassify(d connection.Direction, n int64)
}

// Builder parses one HTTP message from byte chunks of any size and
// alignment. Bytes are handed in with Append and examined with Parse until
// the head is complete; whatever followed the head in the last chunk is kept
// as the body prefix.
//
// A Builder is used for a single message and is not safe for concurrent use.
type Builder struct {
	kind Kind

	// SkipInterim makes a response builder drop 1xx responses (101 excepted)
	// and go on to the final response.
	SkipInterim bool

	// RequestMethod is the method of the request a response answers. HEAD
	// responses carry no body.
	RequestMethod string

	MaxHeadSize int
	BufferSize  int

	text    []byte // head text accumulated so far
	pending []byte // appended bytes not yet classified
	used    int

	done     bool
	err      error
	consumed int64 // head bytes including skipped interim heads
	size     int64

	reqLine  RequestLine
	lineSeen bool
	status   StatusLine
	interim  []StatusLine
	headers  *headers.OrderedHeaders

	mode   BodyMode
	length int64
	prefix []byte
	body   *BodyStream
}

// NewRequestBuilder returns a Builder for an incoming request.
func NewRequestBuilder() *Builder {
	return newBuilder(KindRequest)
}

// NewResponseBuilder returns a Builder for the response to a request sent
// with method. Interim responses are skipped.
func NewResponseBuilder(method string) *Builder {
	b := newBuilder(KindResponse)
	b.RequestMethod = method
	b.SkipInterim = true
	return b
}

func newBuilder(kind Kind) *Builder {
	return &Builder{
		kind:        kind,
		MaxHeadSize: DefaultMaxHeadSize,
		BufferSize:  defaultReceiveBlock,
		size:        -1,
		headers:     headers.NewOrderedHeaders(),
	}
}

// Kind returns the start-line grammar in use.
func (b *Builder) Kind() Kind { return b.kind }

// Append copies p into the pending buffer.
func (b *Builder) Append(p []byte) {
	b.pending = resizeAndCopy(b.pending, b.used, p)
	b.used += len(p)
}

// Seed hands the builder bytes received before it existed, such as the
// remainder of an interim response.
func (b *Builder) Seed(p []byte) {
	if len(p) > 0 {
		b.Append(p)
	}
}

// Parse examines the pending bytes. It reports true once the head is
// complete; the pending bytes are then either head text or body prefix.
func (b *Builder) Parse() (bool, error) {
	if b.err != nil {
		return false, b.err
	}
	if b.done {
		return true, nil
	}

	for {
		pending := b.pending[:b.used]
		t := tail(b.text, len(crlfcrlf)-1)
		window := make([]byte, 0, len(t)+len(pending))
		window = append(append(window, t...), pending...)

		idx := indexOf(window, crlfcrlf)
		if idx < 0 {
			b.text = append(b.text, pending...)
			b.used = 0
			if err := b.checkHeadSize(); err != nil {
				return false, err
			}
			b.peekRequestLine()
			return false, nil
		}

		// The terminator always ends inside pending: text alone never holds one.
		split := idx + len(crlfcrlf) - len(t)
		b.text = append(b.text, pending[:split]...)
		if err := b.checkHeadSize(); err != nil {
			return false, err
		}

		interim, err := b.parseHead()
		if err != nil {
			b.err = err
			return false, err
		}
		b.consumed += int64(len(b.text))

		b.pending = trimStart(pending, split)
		b.used = len(b.pending)
		if interim {
			b.text = b.text[:0]
			continue
		}

		b.prefix = append([]byte(nil), b.pending...)
		b.used = 0
		b.done = true
		switch b.mode {
		case BodyLength:
			b.size = b.consumed + b.length
		case BodyChunked:
			b.size = 0
		default:
			b.size = b.consumed
		}
		return true, nil
	}
}

func (b *Builder) checkHeadSize() error {
	if b.MaxHeadSize > 0 && len(b.text) > b.MaxHeadSize {
		b.err = errors.NewError(errors.ErrorTypeInvalidFormat,
			"message head exceeds "+strconv.Itoa(b.MaxHeadSize)+" bytes", "parse", nil)
		return b.err
	}
	return nil
}

// peekRequestLine parses the request line as soon as it is complete so the
// target is known before the rest of the head arrives.
func (b *Builder) peekRequestLine() {
	if b.kind != KindRequest || b.lineSeen || !startsWithKnownMethod(b.text) {
		return
	}
	end := indexOf(b.text, []byte("\r\n"))
	if end < 0 {
		return
	}
	if line, err := ParseRequestLine(string(b.text[:end])); err == nil {
		b.reqLine = line
		b.lineSeen = true
	}
}

// parseHead parses the complete head held in text. It reports true when the
// head was an interim response that is being skipped.
func (b *Builder) parseHead() (bool, error) {
	head := string(b.text[:len(b.text)-len(crlfcrlf)])
	lines := strings.Split(head, "\r\n")

	if b.kind == KindRequest {
		line, err := ParseRequestLine(lines[0])
		if err != nil {
			return false, err
		}
		b.reqLine = line
		b.lineSeen = true
	} else {
		line, err := ParseStatusLine(lines[0])
		if err != nil {
			return false, err
		}
		if b.SkipInterim && line.Interim() {
			b.interim = append(b.interim, line)
			return true, nil
		}
		b.status = line
	}

	if err := b.headers.ParseLinesInto(lines[1:]); err != nil {
		return false, err
	}

	mode, length, err := b.framing()
	if err != nil {
		return false, err
	}
	b.mode, b.length = mode, length
	return false, nil
}

// framing decides how the body is delimited.
func (b *Builder) framing() (BodyMode, int64, error) {
	if b.kind == KindResponse {
		code := b.status.StatusCode
		if (code >= 100 && code < 200) || code == 204 || code == 304 ||
			strings.EqualFold(b.RequestMethod, "HEAD") {
			return BodyEmpty, 0, nil
		}
	}

	hasCL, hasTE := b.headers.Has("Content-Length"), b.headers.Has("Transfer-Encoding")
	switch {
	case hasCL && hasTE:
		return 0, 0, errors.ErrConflictingFraming
	case hasTE:
		if !lastCodingChunked(b.headers.Values("Transfer-Encoding")) {
			return 0, 0, errors.ErrUnsupportedTransferEncoding
		}
		return BodyChunked, -1, nil
	case hasCL:
		n, err := contentLength(b.headers.Values("Content-Length"))
		if err != nil {
			return 0, 0, err
		}
		return BodyLength, n, nil
	}

	if b.kind == KindRequest && bodylessMethod(b.reqLine.Method) {
		return BodyEmpty, 0, nil
	}
	return 0, 0, errors.ErrMissingContentLength
}

func lastCodingChunked(values []string) bool {
	if len(values) == 0 {
		return false
	}
	codings := strings.Split(values[len(values)-1], ",")
	return strings.EqualFold(strings.TrimSpace(codings[len(codings)-1]), "chunked")
}

// contentLength accepts repeated Content-Length fields only when they agree.
func contentLength(values []string) (int64, error) {
	var n int64 = -1
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			part = strings.TrimSpace(part)
			m, err := strconv.ParseInt(part, 10, 64)
			if err != nil || m < 0 || part[0] == '+' {
				return 0, errors.NewError(errors.ErrorTypeInvalidFormat,
					"invalid Content-Length "+strconv.Quote(v), "framing", nil)
			}
			if n >= 0 && m != n {
				return 0, errors.NewError(errors.ErrorTypeInvalidFormat,
					"conflicting Content-Length values", "framing", nil)
			}
			n = m
		}
	}
	return n, nil
}

// AllHeadersReceived reports whether the head has been parsed.
func (b *Builder) AllHeadersReceived() bool { return b.done }

// MessageSize is the total size of the message on the wire: -1 until the
// head is parsed, 0 for chunked bodies whose size is only known at the end.
func (b *Builder) MessageSize() int64 { return b.size }

// HeadSize is the number of head bytes consumed, skipped interim heads
// included.
func (b *Builder) HeadSize() int64 { return b.consumed }

// Mode returns the body framing. Valid once the head is parsed.
func (b *Builder) Mode() BodyMode { return b.mode }

// RequestLine returns the request line and whether it has been seen yet.
func (b *Builder) RequestLine() (RequestLine, bool) { return b.reqLine, b.lineSeen }

// StatusLine returns the final status line.
func (b *Builder) StatusLine() StatusLine { return b.status }

// Interim returns the skipped 1xx status lines.
func (b *Builder) Interim() []StatusLine { return b.interim }

// Headers returns the parsed header set.
func (b *Builder) Headers() *headers.OrderedHeaders { return b.headers }

// Leftover returns the bytes that followed the head.
func (b *Builder) Leftover() []byte { return b.prefix }

// Body returns the attached body, nil until AttachBody runs.
func (b *Builder) Body() *BodyStream { return b.body }

// AttachBody binds the body stream to src, seeded with the leftover bytes.
func (b *Builder) AttachBody(src io.Reader) *BodyStream {
	switch b.mode {
	case BodyLength:
		b.body = NewBody(BodyLength, b.prefix, src, b.length)
	case BodyChunked:
		b.body = NewBody(BodyChunked, b.prefix, src, -1)
	default:
		b.body = NewBody(BodyEmpty, nil, src, 0)
	}
	return b.body
}

// ParseAndAttachToBody receives from src until the head is complete, then
// attaches the body and calls done. done is called exactly once, on an
// engine goroutine unless the head was already complete.
func (b *Builder) ParseAndAttachToBody(src Source, done func(error)) {
	s, counted := src.(sectioned)
	if counted {
		s.SetSection(connection.Download, connection.SectionHeaders)
	}

	b.ReceiveHead(src, func(err error) {
		if err != nil {
			done(err)
			return
		}
		if counted {
			s.Reclassify(connection.Download, int64(len(b.prefix)))
			s.SetSection(connection.Download, connection.SectionContent)
		}
		b.AttachBody(src)
		done(nil)
	})
}

// ReceiveHead receives from src until the head is complete. No body is
// attached; the bytes after the head stay in Leftover.
func (b *Builder) ReceiveHead(src Source, done func(error)) {
	ok, err := b.Parse()
	switch {
	case err != nil:
		done(err)
		return
	case ok:
		done(nil)
		return
	}

	size := b.BufferSize
	if size <= 0 {
		size = defaultReceiveBlock
	}
	buf := make([]byte, size)

	var receive func()
	receive = func() {
		err := src.ReceiveAsync(buf, connection.Callbacks{
			Done: func(res connection.Result) {
				b.Append(res.Data())
				ok, err := b.Parse()
				switch {
				case err != nil:
					done(err)
				case ok:
					done(nil)
				default:
					receive()
				}
			},
			Timeout: func() {
				done(errors.NewTimeoutError("receive headers"))
			},
			Error: done,
		})
		if err != nil {
			done(err)
		}
	}
	receive()
}

// ParseFrom reads the head from r with blocking reads and attaches the body
// to r.
func (b *Builder) ParseFrom(r io.Reader) error {
	size := b.BufferSize
	if size <= 0 {
		size = defaultReceiveBlock
	}
	buf := make([]byte, size)
	for {
		ok, err := b.Parse()
		if err != nil {
			return err
		}
		if ok {
			b.AttachBody(r)
			return nil
		}

		n, err := r.Read(buf)
		if n > 0 {
			b.Append(buf[:n])
			continue
		}
		if err == io.EOF {
			return errors.NewError(errors.ErrorTypeInvalidFormat,
				"connection closed before the message head was complete", "parse", b.text)
		}
		if err != nil {
			return err
		}
	}
}

// Request returns the parsed request with its body.
func (b *Builder) Request() *Request {
	req := &Request{
		Line:          b.reqLine,
		Headers:       b.headers,
		Body:          b.body,
		ContentLength: -1,
	}
	if b.mode == BodyLength {
		req.ContentLength = b.length
	} else if b.mode == BodyEmpty {
		req.ContentLength = 0
	}
	return req
}

// Response returns the parsed response with its body.
func (b *Builder) Response() *Response {
	return &Response{
		Line:    b.status,
		Headers: b.headers,
		Body:    b.body,
		Interim: b.interim,
	}
}

// ReadResponse parses a response to a request sent with method from r.
func ReadResponse(r io.Reader, method string) (*Response, error) {
	b := NewResponseBuilder(method)
	if err := b.ParseFrom(r); err != nil {
		return nil, err
	}
	return b.Response(), nil
}

// ReadRequest parses a request from r.
func ReadRequest(r io.Reader) (*Request, error) {
	b := NewRequestBuilder()
	if err := b.ParseFrom(r); err != nil {
		return nil, err
	}
	return b.Request(), nil
}
