package message

import (
	"net/http"
	"sort"
	"strings"

	"github.com/WhileEndless/go-docwire/pkg/errors"
)

// FromStandardRequest converts a net/http request into a Request ready to
// send. Header names are taken in sorted order since http.Header has none.
// The body is not read; it becomes the outgoing payload.
func FromStandardRequest(httpReq *http.Request) (*Request, error) {
	if httpReq == nil || httpReq.URL == nil {
		return nil, errors.NewInvalidArgumentError("nil request")
	}
	u := *httpReq.URL
	if u.Host == "" {
		u.Host = httpReq.Host
	}
	if u.Scheme == "" {
		u.Scheme = "http"
	}
	method := httpReq.Method
	if method == "" {
		method = http.MethodGet
	}

	req, err := NewRequest(method, u.String(), nil)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(httpReq.Header))
	for name := range httpReq.Header {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		for _, v := range httpReq.Header[name] {
			req.Headers.Add(name, v)
		}
	}
	if httpReq.Host != "" && httpReq.Host != u.Host {
		req.Headers.SetAt("Host", httpReq.Host, 0)
	}

	if httpReq.Body != nil && httpReq.Body != http.NoBody {
		req.Content = httpReq.Body
		req.ContentLength = httpReq.ContentLength
		if req.ContentLength == 0 {
			req.ContentLength = -1
		}
	}
	return req, nil
}

// ToStandard converts the response into a net/http response. The body is
// shared, not copied: reading either one consumes the same stream.
func (r *Response) ToStandard() *http.Response {
	httpResp := &http.Response{
		Status:        strings.TrimSpace(r.Line.String()[len(r.Line.Version):]),
		StatusCode:    r.Line.StatusCode,
		Proto:         r.Line.Version,
		Header:        make(http.Header, r.Headers.Len()),
		ContentLength: r.ContentLength(),
	}
	if major, minor, ok := http.ParseHTTPVersion(r.Line.Version); ok {
		httpResp.ProtoMajor, httpResp.ProtoMinor = major, minor
	}

	for _, header := range r.Headers.All() {
		httpResp.Header.Add(header.Name, header.Value)
	}
	if r.Body != nil {
		httpResp.Body = r.Body
		if r.Body.Mode() == BodyChunked {
			httpResp.TransferEncoding = []string{"chunked"}
		}
	} else {
		httpResp.Body = http.NoBody
	}
	return httpResp
}
