package chunked

import (
	"bytes"
	"fmt"
	"io"

	"github.com/WhileEndless/go-docwire/pkg/headers"
)

// DefaultChunkSize is used by EncodingReader when no positive size is given.
const DefaultChunkSize = 8192

// Decode decodes a complete chunked body held in memory.
// Returns the decoded payload and any trailers found after the final chunk.
func Decode(chunkedBody []byte) ([]byte, *headers.OrderedHeaders, error) {
	r := NewReader(bytes.NewReader(chunkedBody))
	body, err := io.ReadAll(r)
	if err != nil {
		return body, r.Trailers(), err
	}
	return body, r.Trailers(), nil
}

// EncodeSizes frames data using the given sequence of chunk sizes, cycling
// through them. Zero sizes are skipped: a zero-length chunk always terminates
// the body, so it is never emitted before the end.
func EncodeSizes(data []byte, sizes []int) []byte {
	positive := sizes[:0:0]
	for _, s := range sizes {
		if s > 0 {
			positive = append(positive, s)
		}
	}
	if len(positive) == 0 {
		positive = []int{len(data)}
	}

	var result bytes.Buffer
	for pos, i := 0, 0; pos < len(data); i++ {
		size := positive[i%len(positive)]
		if size > len(data)-pos {
			size = len(data) - pos
		}
		writeFrame(&result, data[pos:pos+size])
		pos += size
	}

	writeTerminator(&result, nil)
	return result.Bytes()
}

func writeFrame(buf *bytes.Buffer, payload []byte) {
	fmt.Fprintf(buf, "%x\r\n", len(payload))
	buf.Write(payload)
	buf.WriteString("\r\n")
}

func writeTerminator(w io.Writer, trailers *headers.OrderedHeaders) {
	io.WriteString(w, "0\r\n")
	if trailers != nil {
		trailers.WriteTo(w)
	}
	io.WriteString(w, "\r\n")
}
