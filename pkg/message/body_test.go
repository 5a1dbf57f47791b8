package message

import (
	"bytes"
	stderrors "errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WhileEndless/go-docwire/pkg/chunked"
	"github.com/WhileEndless/go-docwire/pkg/compression"
	"github.com/WhileEndless/go-docwire/pkg/errors"
)

func TestBodyExactLength(t *testing.T) {
	tests := []struct {
		name   string
		prefix string
		rest   string
	}{
		{"all prefix", "hello", ""},
		{"all socket", "", "hello"},
		{"split", "he", "llo"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBody(BodyLength, []byte(tt.prefix), strings.NewReader(tt.rest), 5)
			got, err := b.ReadToEnd()
			require.NoError(t, err)
			assert.Equal(t, "hello", string(got))
			assert.Equal(t, int64(5), b.Delivered())
		})
	}
}

func TestBodyExceeded(t *testing.T) {
	tests := []struct {
		name   string
		prefix string
		rest   string
	}{
		{"prefix", "helloXX", ""},
		{"socket", "", "helloXX"},
		{"later receive", "hello", "XX"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBody(BodyLength, []byte(tt.prefix), strings.NewReader(tt.rest), 5)
			got, err := b.ReadToEnd()
			require.Error(t, err)
			assert.True(t, stderrors.Is(err, errors.ErrContentLengthExceeded), "got %v", err)
			assert.Equal(t, "hello", string(got))
		})
	}
}

func TestBodyExceededBeforeExtraByte(t *testing.T) {
	b := NewBody(BodyLength, []byte("helloXX"), nil, 5)

	p := make([]byte, 5)
	n, err := b.Read(p)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(p[:n]))

	n, err = b.Read(p)
	assert.Equal(t, 0, n)
	assert.True(t, stderrors.Is(err, errors.ErrContentLengthExceeded))
	assert.Equal(t, int64(5), b.Delivered())
}

func TestBodyTruncated(t *testing.T) {
	b := NewBody(BodyLength, []byte("hel"), nil, 5)
	got, err := b.ReadToEnd()
	assert.Equal(t, io.ErrUnexpectedEOF, err)
	assert.Equal(t, "hel", string(got))
}

func TestBodyOneByteReads(t *testing.T) {
	src := iotest.OneByteReader(strings.NewReader("0123456789"))
	b := NewBody(BodyLength, nil, src, 10)

	var out bytes.Buffer
	n, err := b.CopyTo(&out)
	require.NoError(t, err)
	assert.Equal(t, int64(10), n)
	assert.Equal(t, "0123456789", out.String())
}

func TestBodyCopyToExceeded(t *testing.T) {
	b := NewBody(BodyLength, nil, strings.NewReader("helloXX"), 5)
	var out bytes.Buffer
	n, err := b.CopyTo(&out)
	assert.True(t, stderrors.Is(err, errors.ErrContentLengthExceeded))
	assert.Equal(t, int64(5), n)
	assert.Equal(t, "hello", out.String())
}

func TestBodyChunked(t *testing.T) {
	wire := "5\r\nhello\r\n6;ext=1\r\n world\r\n0\r\nX-Checksum: abc\r\n\r\n"
	b := NewBody(BodyChunked, []byte(wire[:9]), strings.NewReader(wire[9:]), -1)

	got, err := b.ReadToEnd()
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(got))
	assert.Equal(t, int64(-1), b.Length())
	assert.Equal(t, "abc", b.Trailers().Get("X-Checksum"))
}

func TestBodyChunkedRoundTrip(t *testing.T) {
	data := bytes.Repeat([]byte("document-body;"), 300)
	for _, sizes := range [][]int{{1}, {7, 0, 13}, {4096}, {0, 0, 100, 1}} {
		wire := chunked.EncodeSizes(data, sizes)
		b := NewBody(BodyChunked, nil, iotest.HalfReader(bytes.NewReader(wire)), -1)
		got, err := b.ReadToEnd()
		require.NoError(t, err, "sizes %v", sizes)
		assert.Equal(t, data, got, "sizes %v", sizes)
	}
}

func TestBodyOnEnd(t *testing.T) {
	ends := 0
	b := NewBody(BodyChunked, []byte("3\r\nabc\r\n"), strings.NewReader("2\r\nde\r\n0\r\n\r\n"), 0)
	b.OnEnd(func() { ends++ })

	p := make([]byte, 4)
	n, err := b.Read(p)
	require.NoError(t, err)
	assert.Equal(t, 0, ends, "fired after %d bytes", n)

	data, err := b.ReadToEnd()
	require.NoError(t, err)
	assert.Equal(t, "abcde", string(p[:n])+string(data))
	assert.Equal(t, 1, ends)

	_, err = b.Read(p)
	assert.Equal(t, io.EOF, err)
	assert.Equal(t, 1, ends)

	truncated := NewBody(BodyLength, []byte("ab"), strings.NewReader(""), 5)
	truncated.OnEnd(func() { ends++ })
	_, err = truncated.ReadToEnd()
	assert.Error(t, err)
	assert.Equal(t, 1, ends)
}

func TestBodyEmpty(t *testing.T) {
	b := EmptyBody()
	n, err := b.Read(make([]byte, 4))
	assert.Equal(t, 0, n)
	assert.Equal(t, io.EOF, err)
	assert.Equal(t, BodyEmpty, b.Mode())
}

type closeRecorder struct {
	io.Reader
	closed int
}

func (c *closeRecorder) Close() error {
	c.closed++
	return nil
}

func TestBodyClose(t *testing.T) {
	src := &closeRecorder{Reader: strings.NewReader("hello")}
	b := NewBody(BodyLength, nil, src, 5)
	require.NoError(t, b.Close())
	require.NoError(t, b.Close())
	assert.Equal(t, 1, src.closed)

	_, err := b.Read(make([]byte, 5))
	assert.True(t, stderrors.Is(err, errors.ErrClosed))
}

func TestBodyDecoded(t *testing.T) {
	plain := []byte(strings.Repeat("compressible ", 100))
	packed, err := compression.Compress(plain, compression.Gzip, -1)
	require.NoError(t, err)

	src := &closeRecorder{Reader: bytes.NewReader(packed)}
	b := NewBody(BodyLength, nil, src, int64(len(packed)))
	rc, err := b.Decoded("gzip")
	require.NoError(t, err)

	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, plain, got)
	require.NoError(t, rc.Close())
	assert.Equal(t, 1, src.closed)
}

// Chunk data containing LF or CRLF must not be split as if it were framing.
func TestChunkedDataWithNewlines(t *testing.T) {
	chunk1 := `{"id": 0, "data": "first chunk"}` + "\n"
	chunk2 := `{"id": 1, "data": "second chunk"}` + "\n"
	binary := []byte{0x00, 0x0A, 0x0D, 0x0A, 0xFF}

	raw := "HTTP/1.1 200 OK\r\n" +
		"Transfer-Encoding: chunked\r\n" +
		"Content-Type: application/json\r\n" +
		"\r\n" +
		"21\r\n" + chunk1 + "\r\n" +
		"22\r\n" + chunk2 + "\r\n" +
		"5\r\n" + string(binary) + "\r\n" +
		"0\r\n" +
		"\r\n"

	for _, r := range []io.Reader{strings.NewReader(raw), iotest.OneByteReader(strings.NewReader(raw))} {
		resp, err := ReadResponse(r, "GET")
		require.NoError(t, err)
		require.Equal(t, BodyChunked, resp.Body.Mode())

		body, err := resp.ReadAll()
		require.NoError(t, err)
		assert.Equal(t, chunk1+chunk2+string(binary), string(body))
	}
}
