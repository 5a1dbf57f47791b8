package chunked

import (
	"bytes"
	"io"
	"strconv"
	"strings"

	"github.com/WhileEndless/go-docwire/pkg/errors"
	"github.com/WhileEndless/go-docwire/pkg/headers"
)

const maxLineLength = 4096

type readState int

const (
	stateSize readState = iota
	stateData
	stateDataEnd
	stateTrailers
	stateDone
)

// Reader decodes a chunked body from src. It delivers only chunk payloads and
// stops at the zero-length chunk; bytes following the body that were pulled
// from src while reading framing lines are kept aside, see Leftover.
type Reader struct {
	src      io.Reader
	buf      []byte
	state    readState
	remain   int64
	trailers *headers.OrderedHeaders
	trailerL []string
	err      error
	decoded  int64
}

// NewReader returns a Reader decoding src.
func NewReader(src io.Reader) *Reader {
	return &Reader{
		src:      src,
		trailers: headers.NewOrderedHeaders(),
	}
}

// Read implements io.Reader.
func (c *Reader) Read(p []byte) (int, error) {
	for {
		if c.err != nil {
			return 0, c.err
		}

		switch c.state {
		case stateSize:
			line, err := c.readLine()
			if err != nil {
				c.err = err
				continue
			}
			size, err := parseChunkSize(line)
			if err != nil {
				c.err = err
				continue
			}
			if size == 0 {
				c.state = stateTrailers
				continue
			}
			c.remain = size
			c.state = stateData

		case stateData:
			if len(p) == 0 {
				return 0, nil
			}
			n, err := c.readData(p)
			c.remain -= int64(n)
			c.decoded += int64(n)
			if c.remain == 0 {
				c.state = stateDataEnd
			}
			if err != nil && c.remain > 0 {
				if err == io.EOF {
					err = io.ErrUnexpectedEOF
				}
				c.err = err
			}
			if n > 0 {
				return n, nil
			}

		case stateDataEnd:
			line, err := c.readLine()
			if err != nil {
				c.err = err
				continue
			}
			if line != "" {
				c.err = errors.NewError(errors.ErrorTypeInvalidChunk,
					"missing CRLF after chunk data", "chunked.Read", []byte(line))
				continue
			}
			c.state = stateSize

		case stateTrailers:
			line, err := c.readLine()
			if err != nil {
				c.err = err
				continue
			}
			if line == "" {
				if len(c.trailerL) > 0 {
					if err := c.trailers.ParseLinesInto(c.trailerL); err != nil {
						c.err = err
						continue
					}
				}
				c.state = stateDone
				continue
			}
			c.trailerL = append(c.trailerL, line)

		case stateDone:
			return 0, io.EOF
		}
	}
}

// Trailers returns the trailer fields after the body is fully read.
func (c *Reader) Trailers() *headers.OrderedHeaders {
	return c.trailers
}

// Done reports whether the terminal chunk and trailers were consumed.
func (c *Reader) Done() bool {
	return c.state == stateDone
}

// Decoded returns the number of payload bytes delivered so far.
func (c *Reader) Decoded() int64 {
	return c.decoded
}

// Leftover returns bytes read from src that belong after the chunked body.
// It is only meaningful once Done reports true.
func (c *Reader) Leftover() []byte {
	return c.buf
}

func (c *Reader) readData(p []byte) (int, error) {
	want := int64(len(p))
	if want > c.remain {
		want = c.remain
	}
	if len(c.buf) > 0 {
		n := copy(p[:want], c.buf)
		c.buf = c.buf[n:]
		return n, nil
	}
	return c.src.Read(p[:want])
}

// readLine returns the next line without its CRLF (or bare LF).
func (c *Reader) readLine() (string, error) {
	for {
		if i := bytes.IndexByte(c.buf, '\n'); i >= 0 {
			line := c.buf[:i]
			c.buf = c.buf[i+1:]
			line = bytes.TrimSuffix(line, []byte("\r"))
			return string(line), nil
		}
		if len(c.buf) > maxLineLength {
			return "", errors.NewError(errors.ErrorTypeInvalidChunk,
				"chunk framing line too long", "chunked.readLine", nil)
		}

		var block [512]byte
		n, err := c.src.Read(block[:])
		c.buf = append(c.buf, block[:n]...)
		if err != nil {
			if err == io.EOF {
				if n > 0 {
					continue
				}
				return "", io.ErrUnexpectedEOF
			}
			return "", err
		}
	}
}

func parseChunkSize(line string) (int64, error) {
	if i := strings.IndexByte(line, ';'); i >= 0 {
		line = line[:i]
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return 0, errors.NewError(errors.ErrorTypeInvalidChunk,
			"empty chunk size line", "chunked.parseChunkSize", nil)
	}
	size, err := strconv.ParseInt(line, 16, 64)
	if err != nil || size < 0 {
		return 0, errors.NewError(errors.ErrorTypeInvalidChunk,
			"invalid chunk size "+line, "chunked.parseChunkSize", []byte(line))
	}
	return size, nil
}
