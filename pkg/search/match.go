package search

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/WhileEndless/go-docwire/pkg/headers"
)

// MatchLocation specifies where to search
type MatchLocation int

const (
	InHeaders MatchLocation = 1 << iota
	InBody
	InDocuments
	InAll = InHeaders | InBody | InDocuments
)

// MatchOptions configures local pattern matching over fetched content.
type MatchOptions struct {
	// Pattern to search for
	Pattern string

	// UseRegex treats Pattern as a regular expression
	UseRegex bool

	// CaseInsensitive ignores case when matching
	CaseInsensitive bool

	// SearchHeaderNames also search in header names, not just values
	SearchHeaderNames bool

	// MaxResults limits number of results (0 = unlimited)
	MaxResults int
}

// Match is a single pattern match
type Match struct {
	Location MatchLocation

	// HeaderName if found in headers
	HeaderName string

	// DocID and Field if found in a result document
	DocID string
	Field string

	MatchedText string
	StartIndex  int
	EndIndex    int
	LineNumber  int // 1-indexed
	Context     string
}

// Matcher finds a pattern in headers, bodies and result documents.
type Matcher struct {
	opts  MatchOptions
	regex *regexp.Regexp
}

// NewMatcher compiles opts.
func NewMatcher(opts MatchOptions) (*Matcher, error) {
	m := &Matcher{opts: opts}
	if opts.UseRegex {
		flags := ""
		if opts.CaseInsensitive {
			flags = "(?i)"
		}
		re, err := regexp.Compile(flags + opts.Pattern)
		if err != nil {
			return nil, err
		}
		m.regex = re
	}
	return m, nil
}

func (m *Matcher) full(n int) bool {
	return m.opts.MaxResults > 0 && n >= m.opts.MaxResults
}

// Bytes finds matches in data.
func (m *Matcher) Bytes(data []byte) []Match {
	var results []Match
	add := func(start, end int) {
		results = append(results, Match{
			MatchedText: string(data[start:end]),
			StartIndex:  start,
			EndIndex:    end,
			LineNumber:  bytes.Count(data[:start], []byte{'\n'}) + 1,
			Context:     extractContext(data, start, end, 50),
		})
	}

	if m.regex != nil {
		for _, loc := range m.regex.FindAllIndex(data, -1) {
			if m.full(len(results)) {
				break
			}
			add(loc[0], loc[1])
		}
		return results
	}

	if m.opts.Pattern == "" {
		return nil
	}
	haystack, needle := data, []byte(m.opts.Pattern)
	if m.opts.CaseInsensitive {
		haystack = bytes.ToLower(data)
		needle = bytes.ToLower(needle)
	}
	for offset := 0; !m.full(len(results)); {
		idx := bytes.Index(haystack[offset:], needle)
		if idx < 0 {
			break
		}
		start := offset + idx
		add(start, start+len(needle))
		offset = start + 1
	}
	return results
}

// Headers finds matches in header values, and names when enabled.
func (m *Matcher) Headers(h *headers.OrderedHeaders) []Match {
	var results []Match
	for _, field := range h.All() {
		var found []Match
		if m.opts.SearchHeaderNames {
			found = append(found, m.Bytes([]byte(field.Name))...)
		}
		found = append(found, m.Bytes([]byte(field.Value))...)
		for _, r := range found {
			if m.full(len(results)) {
				return results
			}
			r.Location = InHeaders
			r.HeaderName = field.Name
			results = append(results, r)
		}
	}
	return results
}

// Body finds matches in body content.
func (m *Matcher) Body(body []byte) []Match {
	results := m.Bytes(body)
	for i := range results {
		results[i].Location = InBody
	}
	return results
}

// Documents finds matches in the text form of field across docs.
func (m *Matcher) Documents(docs []Document, field string) []Match {
	var results []Match
	for _, d := range docs {
		for _, r := range m.Bytes([]byte(d.String(field))) {
			if m.full(len(results)) {
				return results
			}
			r.Location = InDocuments
			r.DocID = d.ID()
			r.Field = field
			results = append(results, r)
		}
	}
	return results
}

// extractContext extracts surrounding context
func extractContext(data []byte, start, end, contextSize int) string {
	ctxStart := start - contextSize
	if ctxStart < 0 {
		ctxStart = 0
	}

	ctxEnd := end + contextSize
	if ctxEnd > len(data) {
		ctxEnd = len(data)
	}

	return string(data[ctxStart:ctxEnd])
}

// Contains is a convenience function for simple searches
func Contains(data []byte, pattern string, caseInsensitive bool) bool {
	if caseInsensitive {
		return bytes.Contains(bytes.ToLower(data), []byte(strings.ToLower(pattern)))
	}
	return bytes.Contains(data, []byte(pattern))
}
