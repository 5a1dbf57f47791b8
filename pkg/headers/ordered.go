package headers

import (
	"strings"
	"sync"
)

// OrderedHeaders is the header set of one message. Lookups are case-insensitive,
// original name case and insertion order are preserved for serialization, and a
// name may carry several values (Set-Cookie).
type OrderedHeaders struct {
	mu      sync.RWMutex
	entries []Header
}

// Header represents a single HTTP header
type Header struct {
	Name  string
	Value string
}

// NewOrderedHeaders creates a new OrderedHeaders instance
func NewOrderedHeaders() *OrderedHeaders {
	return &OrderedHeaders{
		entries: make([]Header, 0, 8),
	}
}

// Set replaces every value of name with value. The header keeps the position
// of its first occurrence, or is appended when new.
func (h *OrderedHeaders) Set(name, value string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	kept := h.entries[:0]
	replaced := false
	for _, e := range h.entries {
		if strings.EqualFold(e.Name, name) {
			if replaced {
				continue
			}
			e = Header{Name: name, Value: value}
			replaced = true
		}
		kept = append(kept, e)
	}
	h.entries = kept
	if !replaced {
		h.entries = append(h.entries, Header{Name: name, Value: value})
	}
}

// SetAt adds or updates a header at specific index position
func (h *OrderedHeaders) SetAt(name, value string, index int) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for i, e := range h.entries {
		if strings.EqualFold(e.Name, name) {
			h.entries[i].Value = value
			return
		}
	}

	if index < 0 || index > len(h.entries) {
		index = len(h.entries)
	}
	h.entries = append(h.entries, Header{})
	copy(h.entries[index+1:], h.entries[index:])
	h.entries[index] = Header{Name: name, Value: value}
}

// Add appends a value without replacing existing ones
func (h *OrderedHeaders) Add(name, value string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.entries = append(h.entries, Header{Name: name, Value: value})
}

// Get retrieves the first value of a header (case-insensitive)
func (h *OrderedHeaders) Get(name string) string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, e := range h.entries {
		if strings.EqualFold(e.Name, name) {
			return e.Value
		}
	}
	return ""
}

// Values returns every value of a header in arrival order
func (h *OrderedHeaders) Values(name string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var values []string
	for _, e := range h.entries {
		if strings.EqualFold(e.Name, name) {
			values = append(values, e.Value)
		}
	}
	return values
}

// Has checks if a header exists (case-insensitive)
func (h *OrderedHeaders) Has(name string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, e := range h.entries {
		if strings.EqualFold(e.Name, name) {
			return true
		}
	}
	return false
}

// Del removes all occurrences of a header
func (h *OrderedHeaders) Del(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	kept := h.entries[:0]
	for _, e := range h.entries {
		if !strings.EqualFold(e.Name, name) {
			kept = append(kept, e)
		}
	}
	h.entries = kept
}

// Reset removes every header
func (h *OrderedHeaders) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.entries = h.entries[:0]
}

// All returns all headers in their original order
func (h *OrderedHeaders) All() []Header {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]Header, len(h.entries))
	copy(out, h.entries)
	return out
}

// Len returns the number of header lines
func (h *OrderedHeaders) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.entries)
}

// Clone creates a deep copy
func (h *OrderedHeaders) Clone() *OrderedHeaders {
	clone := NewOrderedHeaders()
	clone.entries = append(clone.entries, h.All()...)
	return clone
}

// HasToken reports whether a comma-separated header contains token
// (case-insensitive), e.g. HasToken("Transfer-Encoding", "chunked").
func (h *OrderedHeaders) HasToken(name, token string) bool {
	for _, v := range h.Values(name) {
		for _, part := range strings.Split(v, ",") {
			if strings.EqualFold(strings.TrimSpace(part), token) {
				return true
			}
		}
	}
	return false
}
