// Package compression applies and removes HTTP content codings on streams.
package compression

import (
	"bytes"
	"io"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"github.com/WhileEndless/go-docwire/pkg/errors"
)

// Encoding is a single content coding.
type Encoding int

const (
	Identity Encoding = iota
	Gzip
	Deflate
	Brotli
	Zstd
)

func (e Encoding) String() string {
	switch e {
	case Gzip:
		return "gzip"
	case Deflate:
		return "deflate"
	case Brotli:
		return "br"
	case Zstd:
		return "zstd"
	default:
		return "identity"
	}
}

// AcceptEncoding is the Accept-Encoding value advertising every coding this
// package can remove.
const AcceptEncoding = "gzip, deflate, br, zstd"

// Parse maps one Content-Encoding token to an Encoding.
func Parse(token string) (Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(token)) {
	case "", "identity":
		return Identity, nil
	case "gzip", "x-gzip":
		return Gzip, nil
	case "deflate", "x-deflate":
		return Deflate, nil
	case "br", "brotli":
		return Brotli, nil
	case "zstd", "zstandard":
		return Zstd, nil
	}
	return Identity, errors.NewError(errors.ErrorTypeCompressionError,
		"unsupported content coding "+token, "compression.Parse", nil)
}

// ParseList parses a Content-Encoding header value in the order the codings
// were applied.
func ParseList(value string) ([]Encoding, error) {
	var list []Encoding
	for _, token := range strings.Split(value, ",") {
		enc, err := Parse(token)
		if err != nil {
			return nil, err
		}
		if enc != Identity {
			list = append(list, enc)
		}
	}
	return list, nil
}

// Sniff guesses the coding of data from its magic bytes. Brotli has no magic
// number and is never reported.
func Sniff(data []byte) Encoding {
	switch {
	case len(data) >= 2 && data[0] == 0x1f && data[1] == 0x8b:
		return Gzip
	case len(data) >= 4 && data[0] == 0x28 && data[1] == 0xb5 && data[2] == 0x2f && data[3] == 0xfd:
		return Zstd
	case len(data) >= 2 && data[0] == 0x78 && (data[1] == 0x01 || data[1] == 0x5e || data[1] == 0x9c || data[1] == 0xda):
		return Deflate
	}
	return Identity
}

// NewReader returns a reader that removes enc from r.
func NewReader(r io.Reader, enc Encoding) (io.ReadCloser, error) {
	switch enc {
	case Identity:
		return io.NopCloser(r), nil
	case Gzip:
		gr, err := gzip.NewReader(r)
		if err != nil {
			return nil, compressionError("gzip reader", err)
		}
		return gr, nil
	case Deflate:
		return flate.NewReader(r), nil
	case Brotli:
		return io.NopCloser(brotli.NewReader(r)), nil
	case Zstd:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, compressionError("zstd reader", err)
		}
		return zr.IOReadCloser(), nil
	}
	return nil, compressionError("reader", errUnknown(enc))
}

// NewDecodingReader removes every coding named by a Content-Encoding value,
// last applied first. Close releases all decoders.
func NewDecodingReader(r io.Reader, contentEncoding string) (io.ReadCloser, error) {
	list, err := ParseList(contentEncoding)
	if err != nil {
		return nil, err
	}

	stack := &readerStack{Reader: r}
	for i := len(list) - 1; i >= 0; i-- {
		rc, err := NewReader(stack.Reader, list[i])
		if err != nil {
			stack.Close()
			return nil, err
		}
		stack.Reader = rc
		stack.closers = append(stack.closers, rc)
	}
	return stack, nil
}

type readerStack struct {
	io.Reader
	closers []io.Closer
}

func (s *readerStack) Read(p []byte) (int, error) {
	n, err := s.Reader.Read(p)
	if err != nil && err != io.EOF {
		if _, ok := err.(*errors.Error); !ok {
			err = compressionError("decode", err)
		}
	}
	return n, err
}

func (s *readerStack) Close() error {
	var first error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// NewWriter returns a writer applying enc to everything written to w. A level
// of zero selects the coding's default.
func NewWriter(w io.Writer, enc Encoding, level int) (io.WriteCloser, error) {
	switch enc {
	case Identity:
		return nopWriteCloser{w}, nil
	case Gzip:
		if level == 0 {
			level = gzip.DefaultCompression
		}
		gw, err := gzip.NewWriterLevel(w, level)
		if err != nil {
			return nil, compressionError("gzip writer", err)
		}
		return gw, nil
	case Deflate:
		if level == 0 {
			level = flate.DefaultCompression
		}
		fw, err := flate.NewWriter(w, level)
		if err != nil {
			return nil, compressionError("deflate writer", err)
		}
		return fw, nil
	case Brotli:
		if level == 0 {
			level = brotli.DefaultCompression
		}
		return brotli.NewWriterLevel(w, level), nil
	case Zstd:
		zw, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstdLevel(level)))
		if err != nil {
			return nil, compressionError("zstd writer", err)
		}
		return zw, nil
	}
	return nil, compressionError("writer", errUnknown(enc))
}

// NewEncodingReader returns a reader yielding src compressed with enc. The
// compression runs in a goroutine feeding a pipe; closing the returned reader
// stops it.
func NewEncodingReader(src io.Reader, enc Encoding, level int) (io.ReadCloser, error) {
	if enc == Identity {
		return io.NopCloser(src), nil
	}

	pr, pw := io.Pipe()
	cw, err := NewWriter(pw, enc, level)
	if err != nil {
		pw.Close()
		return nil, err
	}

	go func() {
		_, err := io.Copy(cw, src)
		if cerr := cw.Close(); err == nil {
			err = cerr
		}
		pw.CloseWithError(err)
	}()
	return pr, nil
}

// Compress applies enc to data in memory.
func Compress(data []byte, enc Encoding, level int) ([]byte, error) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, enc, level)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, compressionError("compress", err)
	}
	if err := w.Close(); err != nil {
		return nil, compressionError("compress", err)
	}
	return buf.Bytes(), nil
}

// Decompress removes the codings named by contentEncoding from data.
func Decompress(data []byte, contentEncoding string) ([]byte, error) {
	r, err := NewDecodingReader(bytes.NewReader(data), contentEncoding)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

func zstdLevel(level int) zstd.EncoderLevel {
	switch {
	case level <= 0:
		return zstd.SpeedDefault
	case level <= 3:
		return zstd.SpeedFastest
	case level <= 6:
		return zstd.SpeedDefault
	case level <= 12:
		return zstd.SpeedBetterCompression
	default:
		return zstd.SpeedBestCompression
	}
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

type errUnknown Encoding

func (e errUnknown) Error() string {
	return "unknown encoding " + Encoding(e).String()
}

func compressionError(step string, err error) *errors.Error {
	return errors.NewError(errors.ErrorTypeCompressionError, step+": "+err.Error(), "compression", nil)
}
