// Package docstore is a client for a CouchDB-style document store. Documents
// are JSON objects addressed by id and versioned by a revision token; every
// write must name the revision it replaces.
package docstore

import (
	"bytes"
	"context"
	stderrors "errors"
	"io"
	"net/url"
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/WhileEndless/go-docwire/pkg/cookies"
	"github.com/WhileEndless/go-docwire/pkg/message"
	"github.com/WhileEndless/go-docwire/pkg/rawhttp"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DefaultContinueThreshold is the body size above which writes ask the
// server for 100 Continue before sending the document.
const DefaultContinueThreshold = 64 * 1024

var (
	ErrNotFound = stderrors.New("docstore: document not found")
	ErrConflict = stderrors.New("docstore: revision conflict")
	ErrAuth     = stderrors.New("docstore: not authorized")
)

// Error is a non-2xx answer from the store.
type Error struct {
	StatusCode int
	Name       string // "not_found", "conflict", ...
	Reason     string
}

func (e *Error) Error() string {
	msg := "docstore: status " + strconv.Itoa(e.StatusCode)
	if e.Name != "" {
		msg += " " + e.Name
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *Error) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.StatusCode == 404
	case ErrConflict:
		return e.StatusCode == 409
	case ErrAuth:
		return e.StatusCode == 401 || e.StatusCode == 403
	}
	return false
}

// Document is a stored JSON object including its _id and _rev.
type Document map[string]interface{}

// ID returns the _id field.
func (d Document) ID() string {
	s, _ := d["_id"].(string)
	return s
}

// Rev returns the _rev field.
func (d Document) Rev() string {
	s, _ := d["_rev"].(string)
	return s
}

// Options configures a Store.
type Options struct {
	BaseURL  string // e.g. "http://localhost:5984"
	Database string
	Username string
	Password string

	// ContinueThreshold in bytes; 0 means DefaultContinueThreshold and a
	// negative value never sends Expect: 100-continue.
	ContinueThreshold int64

	Logger *zerolog.Logger
}

// Store reads and writes documents of one database.
type Store struct {
	http      *rawhttp.Client
	base      *url.URL
	db        string
	user      string
	password  string
	threshold int64
	jar       *cookies.Jar
	log       zerolog.Logger
}

// New returns a store over http.
func New(http *rawhttp.Client, opts Options) (*Store, error) {
	if opts.Database == "" {
		return nil, errors.New("docstore: no database configured")
	}
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil {
		return nil, errors.Wrap(err, "docstore: base url")
	}
	s := &Store{
		http:      http,
		base:      base,
		db:        opts.Database,
		user:      opts.Username,
		password:  opts.Password,
		threshold: opts.ContinueThreshold,
		jar:       cookies.NewJar(),
		log:       zerolog.Nop(),
	}
	if s.threshold == 0 {
		s.threshold = DefaultContinueThreshold
	}
	if opts.Logger != nil {
		s.log = *opts.Logger
	}
	return s, nil
}

// Database returns the database name.
func (s *Store) Database() string { return s.db }

// Session returns the current session cookie value, if logged in.
func (s *Store) Session() (string, bool) {
	return s.jar.Get("AuthSession")
}

func (s *Store) url(path string, query url.Values) string {
	u := *s.base
	u.Path += path
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

func (s *Store) docPath(id string) string {
	return "/" + url.PathEscape(s.db) + "/" + url.PathEscape(id)
}

// Login opens a cookie session with the configured credentials. Later
// requests carry the session cookie.
func (s *Store) Login(ctx context.Context) error {
	body, err := json.Marshal(map[string]string{"name": s.user, "password": s.password})
	if err != nil {
		return errors.Wrap(err, "docstore: encode credentials")
	}
	var out struct {
		OK bool `json:"ok"`
	}
	if _, err := s.do(ctx, "POST", "/_session", nil, body, &out); err != nil {
		return err
	}
	if _, ok := s.Session(); !ok {
		return &Error{StatusCode: 200, Name: "no_session", Reason: "login did not set a session cookie"}
	}
	s.log.Debug().Str("user", s.user).Msg("session opened")
	return nil
}

// Logout drops the session locally and on the server.
func (s *Store) Logout(ctx context.Context) error {
	defer s.jar.Clear()
	_, err := s.do(ctx, "DELETE", "/_session", nil, nil, nil)
	return err
}

// Get fetches a document by id.
func (s *Store) Get(ctx context.Context, id string) (Document, error) {
	var doc Document
	if err := s.GetInto(ctx, id, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// GetInto fetches a document by id and decodes it into v.
func (s *Store) GetInto(ctx context.Context, id string, v interface{}) error {
	if id == "" {
		return errors.New("docstore: empty document id")
	}
	_, err := s.do(ctx, "GET", s.docPath(id), nil, nil, v)
	return err
}

type writeResult struct {
	OK  bool   `json:"ok"`
	ID  string `json:"id"`
	Rev string `json:"rev"`
}

// Put stores doc under id and returns the new revision. rev names the
// revision being replaced and is empty for a new document.
func (s *Store) Put(ctx context.Context, id, rev string, doc interface{}) (string, error) {
	if id == "" {
		return "", errors.New("docstore: empty document id")
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return "", errors.Wrapf(err, "docstore: encode %s", id)
	}
	var q url.Values
	if rev != "" {
		q = url.Values{"rev": {rev}}
	}
	var out writeResult
	if _, err := s.do(ctx, "PUT", s.docPath(id), q, body, &out); err != nil {
		return "", err
	}
	s.log.Debug().Str("id", id).Str("rev", out.Rev).Int("bytes", len(body)).Msg("document stored")
	return out.Rev, nil
}

// Delete removes revision rev of id and returns the tombstone revision.
func (s *Store) Delete(ctx context.Context, id, rev string) (string, error) {
	if id == "" || rev == "" {
		return "", errors.New("docstore: delete needs an id and a revision")
	}
	var out writeResult
	if _, err := s.do(ctx, "DELETE", s.docPath(id), url.Values{"rev": {rev}}, nil, &out); err != nil {
		return "", err
	}
	s.log.Debug().Str("id", id).Str("rev", out.Rev).Msg("document deleted")
	return out.Rev, nil
}

func (s *Store) do(ctx context.Context, method, path string, query url.Values, body []byte, out interface{}) (*rawhttp.Response, error) {
	var content io.Reader
	if body != nil {
		content = bytes.NewReader(body)
	}
	req, err := message.NewRequest(method, s.url(path, query), content)
	if err != nil {
		return nil, err
	}
	req.Headers.Set("Accept", "application/json")
	if body != nil {
		req.Headers.Set("Content-Type", "application/json")
		if s.threshold > 0 && int64(len(body)) > s.threshold {
			req.Headers.Set("Expect", "100-continue")
		}
	}
	if c := s.jar.Header(path); c != "" {
		req.Headers.Set("Cookie", c)
	}

	resp, err := s.http.Send(ctx, req)
	if err != nil {
		return nil, errors.Wrapf(err, "docstore: %s %s", method, path)
	}
	s.jar.Update(resp.GetHeaders("Set-Cookie"))

	data, err := resp.ReadAll()
	if err != nil {
		return resp, errors.Wrapf(err, "docstore: read %s %s", method, path)
	}
	if !resp.IsSuccessful() {
		e := &Error{StatusCode: resp.StatusCode()}
		var reply struct {
			Error  string `json:"error"`
			Reason string `json:"reason"`
		}
		if json.Unmarshal(data, &reply) == nil {
			e.Name, e.Reason = reply.Error, reply.Reason
		}
		return resp, e
	}
	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return resp, errors.Wrapf(err, "docstore: decode %s %s", method, path)
		}
	}
	return resp, nil
}
