package chunked

import (
	"bytes"
	"io"

	"github.com/WhileEndless/go-docwire/pkg/headers"
)

// EncodingReader frames the bytes of a payload reader as a chunked body.
// Each non-empty read of the payload becomes one chunk of at most blockSize
// bytes; the terminating zero-length chunk is produced once the payload is
// exhausted.
type EncodingReader struct {
	src      io.Reader
	scratch  []byte
	pending  bytes.Buffer
	trailers *headers.OrderedHeaders
	finished bool
	err      error
	payload  int64
}

// NewEncodingReader returns a reader yielding src as a chunked body.
func NewEncodingReader(src io.Reader, blockSize int) *EncodingReader {
	if blockSize <= 0 {
		blockSize = DefaultChunkSize
	}
	return &EncodingReader{
		src:     src,
		scratch: make([]byte, blockSize),
	}
}

// SetTrailers sets trailer fields written after the terminating chunk.
func (e *EncodingReader) SetTrailers(t *headers.OrderedHeaders) {
	e.trailers = t
}

// PayloadBytes returns how many payload bytes have been framed so far.
func (e *EncodingReader) PayloadBytes() int64 {
	return e.payload
}

// Read implements io.Reader.
func (e *EncodingReader) Read(p []byte) (int, error) {
	for e.pending.Len() == 0 {
		if e.err != nil {
			return 0, e.err
		}
		if e.finished {
			return 0, io.EOF
		}

		n, err := e.src.Read(e.scratch)
		if n > 0 {
			writeFrame(&e.pending, e.scratch[:n])
			e.payload += int64(n)
		}
		if err == io.EOF {
			writeTerminator(&e.pending, e.trailers)
			e.finished = true
		} else if err != nil {
			e.err = err
		}
	}
	return e.pending.Read(p)
}
