package headers

import (
	"bytes"
	"io"
	"strings"

	"github.com/WhileEndless/go-docwire/pkg/errors"
	"golang.org/x/net/http/httpguts"
)

// ParseLines parses header lines (start line already removed, no terminator)
// into a fresh header set. Each line is split on its first colon. A line that
// starts with whitespace continues the previous value (obsolete folding).
func ParseLines(lines []string) (*OrderedHeaders, error) {
	h := NewOrderedHeaders()
	if err := h.ParseLinesInto(lines); err != nil {
		return nil, err
	}
	return h, nil
}

// ParseLinesInto clears h and refills it from lines.
func (h *OrderedHeaders) ParseLinesInto(lines []string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.entries = h.entries[:0]
	for _, line := range lines {
		if line == "" {
			continue
		}

		if line[0] == ' ' || line[0] == '\t' {
			if len(h.entries) == 0 {
				return errors.NewError(errors.ErrorTypeMalformedHeader,
					"continuation line before first header", "ParseLines", []byte(line))
			}
			last := &h.entries[len(h.entries)-1]
			last.Value = strings.TrimSpace(last.Value + " " + strings.TrimSpace(line))
			continue
		}

		colonPos := strings.IndexByte(line, ':')
		if colonPos <= 0 {
			return errors.NewError(errors.ErrorTypeMalformedHeader,
				"header line without name: value form", "ParseLines", []byte(line))
		}

		name := line[:colonPos]
		if !httpguts.ValidHeaderFieldName(name) {
			return errors.NewError(errors.ErrorTypeMalformedHeader,
				"invalid header name "+name, "ParseLines", []byte(line))
		}
		value := strings.TrimSpace(line[colonPos+1:])
		h.entries = append(h.entries, Header{Name: name, Value: value})
	}
	return nil
}

// Validate checks that every header is safe to put on the wire.
func (h *OrderedHeaders) Validate() error {
	for _, e := range h.All() {
		if !httpguts.ValidHeaderFieldName(e.Name) {
			return errors.NewError(errors.ErrorTypeMalformedHeader,
				"invalid header name "+e.Name, "Validate", nil)
		}
		if !httpguts.ValidHeaderFieldValue(e.Value) {
			return errors.NewError(errors.ErrorTypeMalformedHeader,
				"invalid value for header "+e.Name, "Validate", nil)
		}
	}
	return nil
}

// Build serializes headers in standard format (Name: Value\r\n)
func (h *OrderedHeaders) Build() []byte {
	var buf bytes.Buffer
	h.WriteTo(&buf)
	return buf.Bytes()
}

// WriteTo writes every header line to w
func (h *OrderedHeaders) WriteTo(w io.Writer) (int64, error) {
	var total int64
	for _, e := range h.All() {
		n, err := io.WriteString(w, e.Name+": "+e.Value+"\r\n")
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
