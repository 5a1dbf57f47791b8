// Package search issues queries against a Solr-style search index. Queries
// go out as GET requests with a URL-encoded query string; JSON results are
// decoded into documents.
package search

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/WhileEndless/go-docwire/pkg/message"
	"github.com/WhileEndless/go-docwire/pkg/rawhttp"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Query is one select request.
type Query struct {
	Q       string   // main query, "*:*" when empty
	Filters []string // fq parameters
	Fields  []string // fl, all stored fields when empty
	Sort    string
	Start   int
	Rows    int // 0 leaves the index default
}

// Values encodes the query parameters.
func (q Query) Values() url.Values {
	v := url.Values{}
	if q.Q == "" {
		v.Set("q", "*:*")
	} else {
		v.Set("q", q.Q)
	}
	for _, f := range q.Filters {
		v.Add("fq", f)
	}
	if len(q.Fields) > 0 {
		v.Set("fl", strings.Join(q.Fields, ","))
	}
	if q.Sort != "" {
		v.Set("sort", q.Sort)
	}
	if q.Start > 0 {
		v.Set("start", strconv.Itoa(q.Start))
	}
	if q.Rows > 0 {
		v.Set("rows", strconv.Itoa(q.Rows))
	}
	v.Set("wt", "json")
	return v
}

// Document is one result document.
type Document map[string]interface{}

// String returns a field as text. Multi-valued fields yield their first value.
func (d Document) String(field string) string {
	switch v := d[field].(type) {
	case string:
		return v
	case []interface{}:
		if len(v) > 0 {
			if s, ok := v[0].(string); ok {
				return s
			}
		}
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	}
	return ""
}

// ID returns the id field.
func (d Document) ID() string {
	return d.String("id")
}

// Result is a decoded select response.
type Result struct {
	Status   int
	QTime    int
	NumFound int64
	Start    int64
	Docs     []Document
}

type selectResponse struct {
	ResponseHeader struct {
		Status int `json:"status"`
		QTime  int `json:"QTime"`
	} `json:"responseHeader"`
	Response struct {
		NumFound int64      `json:"numFound"`
		Start    int64      `json:"start"`
		Docs     []Document `json:"docs"`
	} `json:"response"`
	Error *struct {
		Msg  string `json:"msg"`
		Code int    `json:"code"`
	} `json:"error"`
}

// ServerError is a non-2xx answer from the index.
type ServerError struct {
	StatusCode int
	Message    string
}

func (e *ServerError) Error() string {
	if e.Message == "" {
		return "search: status " + strconv.Itoa(e.StatusCode)
	}
	return "search: status " + strconv.Itoa(e.StatusCode) + ": " + e.Message
}

// Client queries one core of a search index.
type Client struct {
	http *rawhttp.Client
	base *url.URL
	core string
	log  zerolog.Logger
}

// NewClient returns a client for core under baseURL, e.g.
// "http://localhost:8983/solr" and "documents".
func NewClient(http *rawhttp.Client, baseURL, core string, logger zerolog.Logger) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, errors.Wrap(err, "search: base url")
	}
	if core == "" {
		return nil, errors.New("search: no core configured")
	}
	return &Client{http: http, base: u, core: core, log: logger}, nil
}

// SelectURL returns the request URL for q.
func (c *Client) SelectURL(q Query) string {
	u := *c.base
	u.Path = u.Path + "/" + url.PathEscape(c.core) + "/select"
	u.RawQuery = q.Values().Encode()
	return u.String()
}

// Search runs q and decodes the result.
func (c *Client) Search(ctx context.Context, q Query) (*Result, error) {
	req, err := message.NewRequest("GET", c.SelectURL(q), nil)
	if err != nil {
		return nil, err
	}
	req.Headers.Set("Accept", "application/json")

	resp, err := c.http.Send(ctx, req)
	if err != nil {
		return nil, err
	}
	body, err := resp.ReadAll()
	if err != nil {
		return nil, err
	}
	c.log.Debug().Str("q", q.Q).Int("status", resp.StatusCode()).Int("bytes", len(body)).Msg("search")

	var sr selectResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		if !resp.IsSuccessful() {
			return nil, &ServerError{StatusCode: resp.StatusCode()}
		}
		return nil, err
	}
	if !resp.IsSuccessful() {
		se := &ServerError{StatusCode: resp.StatusCode()}
		if sr.Error != nil {
			se.Message = sr.Error.Msg
		}
		return nil, se
	}

	return &Result{
		Status:   sr.ResponseHeader.Status,
		QTime:    sr.ResponseHeader.QTime,
		NumFound: sr.Response.NumFound,
		Start:    sr.Response.Start,
		Docs:     sr.Response.Docs,
	}, nil
}
