package message

import (
	"io"
	"strconv"

	"github.com/WhileEndless/go-docwire/pkg/chunked"
	"github.com/WhileEndless/go-docwire/pkg/compression"
	"github.com/WhileEndless/go-docwire/pkg/errors"
	"github.com/WhileEndless/go-docwire/pkg/headers"
)

// BodyMode tells how a body is delimited.
type BodyMode int

const (
	BodyEmpty BodyMode = iota
	BodyLength
	BodyChunked
)

func (m BodyMode) String() string {
	switch m {
	case BodyLength:
		return "length"
	case BodyChunked:
		return "chunked"
	default:
		return "empty"
	}
}

// buffered is implemented by sources that can report bytes already received
// but not yet read, without blocking.
type buffered interface {
	Buffered() int
}

type lener interface {
	Len() int
}

// prefixed reads the body bytes that arrived with the message head before
// reading the socket.
type prefixed struct {
	prefix []byte
	src    io.Reader
}

func (p *prefixed) Read(b []byte) (int, error) {
	if len(p.prefix) > 0 {
		n := copy(b, p.prefix)
		p.prefix = p.prefix[n:]
		return n, nil
	}
	if p.src == nil {
		return 0, io.EOF
	}
	return p.src.Read(b)
}

// Buffered reports pending bytes without touching the socket.
func (p *prefixed) Buffered() int {
	n := len(p.prefix)
	switch s := p.src.(type) {
	case buffered:
		n += s.Buffered()
	case lener:
		n += s.Len()
	}
	return n
}

// BodyStream is the body of a received message. Length-delimited bodies
// never deliver more than the declared length; bytes beyond it surface as
// ErrContentLengthExceeded. Chunked bodies are decoded transparently.
//
// A BodyStream is not safe for concurrent use.
type BodyStream struct {
	mode     BodyMode
	raw      *prefixed
	closer   io.Closer
	declared int64

	remaining int64
	scratch   []byte
	chunks    *chunked.Reader
	delivered int64
	err       error
	onEnd     func()
}

// NewBody returns a stream over prefix followed by src. length is the
// declared Content-Length for BodyLength and ignored otherwise. If src is an
// io.Closer, Close closes it.
func NewBody(mode BodyMode, prefix []byte, src io.Reader, length int64) *BodyStream {
	b := &BodyStream{
		mode:     mode,
		raw:      &prefixed{prefix: prefix, src: src},
		declared: -1,
	}
	if c, ok := src.(io.Closer); ok {
		b.closer = c
	}
	switch mode {
	case BodyLength:
		b.declared = length
		b.remaining = length
	case BodyChunked:
		b.chunks = chunked.NewReader(b.raw)
	case BodyEmpty:
		b.declared = 0
	}
	return b
}

// EmptyBody returns a stream with no content.
func EmptyBody() *BodyStream {
	return NewBody(BodyEmpty, nil, nil, 0)
}

// Mode returns how the body is delimited.
func (b *BodyStream) Mode() BodyMode { return b.mode }

// Length returns the declared length, or -1 for chunked bodies.
func (b *BodyStream) Length() int64 { return b.declared }

// Delivered returns the number of content bytes handed to the reader so far.
func (b *BodyStream) Delivered() int64 { return b.delivered }

// OnEnd registers fn to run once, on the reading goroutine, when the body
// has been read to its end without error.
func (b *BodyStream) OnEnd(fn func()) { b.onEnd = fn }

// Read implements io.Reader.
func (b *BodyStream) Read(p []byte) (int, error) {
	if b.err != nil {
		return 0, b.err
	}
	if len(p) == 0 {
		return 0, nil
	}

	var (
		n   int
		err error
	)
	switch b.mode {
	case BodyLength:
		n, err = b.readLength(p)
	case BodyChunked:
		n, err = b.chunks.Read(p)
	default:
		err = io.EOF
	}
	b.delivered += int64(n)
	if err != nil {
		b.err = err
		if err == io.EOF && b.onEnd != nil {
			fn := b.onEnd
			b.onEnd = nil
			fn()
		}
		if n > 0 {
			// deliver the bytes now, the error on the next call
			return n, nil
		}
	}
	return n, err
}

func (b *BodyStream) readLength(p []byte) (int, error) {
	if b.remaining == 0 {
		if b.raw.Buffered() > 0 {
			return 0, exceeded(b.declared)
		}
		return 0, io.EOF
	}

	if int64(len(p)) < b.remaining {
		n, err := b.raw.Read(p)
		b.remaining -= int64(n)
		return n, unexpectedEOF(err)
	}

	// p can take everything that is left: ask for one byte more so excess
	// arriving in the same receive is caught.
	want := int(b.remaining) + 1
	buf := p
	scratch := len(p) < want
	if scratch {
		if cap(b.scratch) < want {
			b.scratch = make([]byte, want)
		}
		buf = b.scratch[:want]
	}

	n, err := b.raw.Read(buf[:want])
	if int64(n) > b.remaining {
		n = int(b.remaining)
		err = exceeded(b.declared)
	}
	if scratch {
		copy(p, buf[:n])
	}
	b.remaining -= int64(n)
	if b.remaining == 0 && (err == nil || err == io.EOF) {
		return n, nil
	}
	return n, unexpectedEOF(err)
}

func exceeded(declared int64) error {
	return errors.NewError(errors.ErrorTypeContentLengthExceeded,
		"content exceeds the declared Content-Length of "+strconv.FormatInt(declared, 10), "body", nil)
}

func unexpectedEOF(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}

// ReadToEnd drains the body. A length violation is returned as
// ErrContentLengthExceeded together with the declared bytes.
func (b *BodyStream) ReadToEnd() ([]byte, error) {
	var out []byte
	if b.declared > 0 {
		out = make([]byte, 0, b.declared)
	}
	buf := make([]byte, 32*1024)
	for {
		n, err := b.Read(buf)
		out = append(out, buf[:n]...)
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
	}
}

// CopyTo drains the body into w and returns the number of bytes written.
func (b *BodyStream) CopyTo(w io.Writer) (int64, error) {
	buf := make([]byte, 32*1024)
	var written int64
	for {
		n, err := b.Read(buf)
		if n > 0 {
			m, werr := w.Write(buf[:n])
			written += int64(m)
			if werr != nil {
				return written, werr
			}
			if m < n {
				return written, io.ErrShortWrite
			}
		}
		if err == io.EOF {
			return written, nil
		}
		if err != nil {
			return written, err
		}
	}
}

// Trailers returns the trailer fields of a chunked body once it has been
// read to the end. Other bodies have none.
func (b *BodyStream) Trailers() *headers.OrderedHeaders {
	if b.chunks == nil {
		return headers.NewOrderedHeaders()
	}
	return b.chunks.Trailers()
}

// Decoded wraps the body with decoders for the given Content-Encoding.
func (b *BodyStream) Decoded(contentEncoding string) (io.ReadCloser, error) {
	dec, err := compression.NewDecodingReader(b, contentEncoding)
	if err != nil {
		return nil, err
	}
	return &decodedBody{ReadCloser: dec, body: b}, nil
}

type decodedBody struct {
	io.ReadCloser
	body *BodyStream
}

func (d *decodedBody) Close() error {
	err := d.ReadCloser.Close()
	if cerr := d.body.Close(); err == nil {
		err = cerr
	}
	return err
}

// Close releases the underlying connection.
func (b *BodyStream) Close() error {
	if b.err == nil {
		b.err = errors.NewClosedError("read body")
	}
	if b.closer == nil {
		return nil
	}
	c := b.closer
	b.closer = nil
	return c.Close()
}
