package docstore_test

import (
	"context"
	stderrors "errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WhileEndless/go-docwire/pkg/docstore"
	dwerrors "github.com/WhileEndless/go-docwire/pkg/errors"
	"github.com/WhileEndless/go-docwire/pkg/rawhttp"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const session = "c2Vzc2lvbg"

// fakeStore is an in-memory document store with cookie sessions.
type fakeStore struct {
	mu     sync.Mutex
	docs   map[string]map[string]interface{}
	revs   map[string]int
	writes int
	srv    *httptest.Server
}

func newFakeStore(t *testing.T) *fakeStore {
	t.Helper()
	f := &fakeStore{docs: map[string]map[string]interface{}{}, revs: map[string]int{}}

	router := httprouter.New()
	router.POST("/_session", f.login)
	router.DELETE("/:db", f.logout)
	router.GET("/:db/:id", f.authed(f.get))
	router.PUT("/:db/:id", f.authed(f.put))
	router.DELETE("/:db/:id", f.authed(f.remove))

	f.srv = httptest.NewServer(router)
	t.Cleanup(f.srv.Close)
	return f
}

func reply(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	data, _ := json.Marshal(v)
	_, _ = w.Write(data)
}

func fail(w http.ResponseWriter, status int, name, reason string) {
	reply(w, status, map[string]string{"error": name, "reason": reason})
}

func (f *fakeStore) login(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var creds struct {
		Name     string `json:"name"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil || creds.Name != "admin" || creds.Password != "secret" {
		fail(w, http.StatusUnauthorized, "unauthorized", "Name or password is incorrect.")
		return
	}
	w.Header().Add("Set-Cookie", "AuthSession="+session+"; Version=1; Path=/; HttpOnly")
	reply(w, http.StatusOK, map[string]interface{}{"ok": true, "name": creds.Name})
}

func (f *fakeStore) logout(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	if ps.ByName("db") != "_session" {
		fail(w, http.StatusNotFound, "not_found", "unsupported")
		return
	}
	w.Header().Add("Set-Cookie", "AuthSession=; Version=1; Path=/; Max-Age=0")
	reply(w, http.StatusOK, map[string]bool{"ok": true})
}

func (f *fakeStore) authed(h httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		if c, err := r.Cookie("AuthSession"); err != nil || c.Value != session {
			fail(w, http.StatusUnauthorized, "unauthorized", "You are not authorized to access this db.")
			return
		}
		h(w, r, ps)
	}
}

func (f *fakeStore) get(w http.ResponseWriter, _ *http.Request, ps httprouter.Params) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[ps.ByName("id")]
	if !ok {
		fail(w, http.StatusNotFound, "not_found", "missing")
		return
	}
	reply(w, http.StatusOK, doc)
}

func (f *fakeStore) put(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		fail(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	var doc map[string]interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		fail(w, http.StatusBadRequest, "bad_request", "invalid UTF-8 JSON")
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	id := ps.ByName("id")
	if cur, ok := f.docs[id]; ok && cur["_rev"] != r.URL.Query().Get("rev") {
		fail(w, http.StatusConflict, "conflict", "Document update conflict.")
		return
	}
	f.revs[id]++
	rev := strconv.Itoa(f.revs[id]) + "-abc"
	doc["_id"], doc["_rev"] = id, rev
	f.docs[id] = doc
	f.writes++
	reply(w, http.StatusCreated, map[string]interface{}{"ok": true, "id": id, "rev": rev})
}

func (f *fakeStore) remove(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := ps.ByName("id")
	cur, ok := f.docs[id]
	if !ok {
		fail(w, http.StatusNotFound, "not_found", "missing")
		return
	}
	if cur["_rev"] != r.URL.Query().Get("rev") {
		fail(w, http.StatusConflict, "conflict", "Document update conflict.")
		return
	}
	delete(f.docs, id)
	f.revs[id]++
	reply(w, http.StatusOK, map[string]interface{}{"ok": true, "id": id, "rev": strconv.Itoa(f.revs[id]) + "-del"})
}

func newStore(t *testing.T, f *fakeStore, opts docstore.Options) *docstore.Store {
	t.Helper()
	opts.BaseURL = f.srv.URL
	if opts.Database == "" {
		opts.Database = "papers"
	}
	if opts.Username == "" {
		opts.Username, opts.Password = "admin", "secret"
	}
	s, err := docstore.New(rawhttp.NewClient(rawhttp.Options{ReadTimeout: 5 * time.Second}), opts)
	require.NoError(t, err)
	return s
}

func TestNewRequiresDatabase(t *testing.T) {
	_, err := docstore.New(rawhttp.NewClient(rawhttp.Options{}), docstore.Options{BaseURL: "http://localhost:5984"})
	assert.Error(t, err)
}

func TestLogin(t *testing.T) {
	f := newFakeStore(t)
	s := newStore(t, f, docstore.Options{})

	require.NoError(t, s.Login(context.Background()))
	v, ok := s.Session()
	require.True(t, ok)
	assert.Equal(t, session, v)

	require.NoError(t, s.Logout(context.Background()))
	_, ok = s.Session()
	assert.False(t, ok)
}

func TestLoginRejected(t *testing.T) {
	f := newFakeStore(t)
	s := newStore(t, f, docstore.Options{Username: "admin", Password: "wrong"})

	err := s.Login(context.Background())
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, docstore.ErrAuth))

	var se *docstore.Error
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "unauthorized", se.Name)
}

func TestDocumentLifecycle(t *testing.T) {
	f := newFakeStore(t)
	s := newStore(t, f, docstore.Options{})
	ctx := context.Background()
	require.NoError(t, s.Login(ctx))

	rev, err := s.Put(ctx, "raft", "", map[string]interface{}{"title": "In Search of an Understandable Consensus Algorithm"})
	require.NoError(t, err)
	assert.Equal(t, "1-abc", rev)

	doc, err := s.Get(ctx, "raft")
	require.NoError(t, err)
	assert.Equal(t, "raft", doc.ID())
	assert.Equal(t, rev, doc.Rev())
	assert.Equal(t, "In Search of an Understandable Consensus Algorithm", doc["title"])

	_, err = s.Put(ctx, "raft", "", map[string]string{"title": "stale"})
	assert.True(t, stderrors.Is(err, docstore.ErrConflict), "got %v", err)

	rev2, err := s.Put(ctx, "raft", rev, map[string]string{"title": "Raft"})
	require.NoError(t, err)
	assert.Equal(t, "2-abc", rev2)

	var typed struct {
		ID    string `json:"_id"`
		Title string `json:"title"`
	}
	require.NoError(t, s.GetInto(ctx, "raft", &typed))
	assert.Equal(t, "Raft", typed.Title)

	_, err = s.Delete(ctx, "raft", rev)
	assert.True(t, stderrors.Is(err, docstore.ErrConflict))

	tomb, err := s.Delete(ctx, "raft", rev2)
	require.NoError(t, err)
	assert.Equal(t, "3-del", tomb)

	_, err = s.Get(ctx, "raft")
	assert.True(t, stderrors.Is(err, docstore.ErrNotFound))
}

func TestRequiresSession(t *testing.T) {
	f := newFakeStore(t)
	s := newStore(t, f, docstore.Options{})

	_, err := s.Get(context.Background(), "raft")
	assert.True(t, stderrors.Is(err, docstore.ErrAuth), "got %v", err)
}

func TestArgumentValidation(t *testing.T) {
	f := newFakeStore(t)
	s := newStore(t, f, docstore.Options{})
	ctx := context.Background()

	_, err := s.Get(ctx, "")
	assert.Error(t, err)
	_, err = s.Put(ctx, "", "", map[string]string{})
	assert.Error(t, err)
	_, err = s.Delete(ctx, "raft", "")
	assert.Error(t, err)
}

func TestLargeDocumentWaitsForContinue(t *testing.T) {
	f := newFakeStore(t)
	s := newStore(t, f, docstore.Options{ContinueThreshold: 16})
	ctx := context.Background()
	require.NoError(t, s.Login(ctx))

	big := map[string]string{"abstract": strings.Repeat("consensus ", 100)}
	rev, err := s.Put(ctx, "big", "", big)
	require.NoError(t, err)
	assert.Equal(t, "1-abc", rev)

	doc, err := s.Get(ctx, "big")
	require.NoError(t, err)
	assert.Equal(t, big["abstract"], doc["abstract"])
}

func TestRejectedContinueSkipsBody(t *testing.T) {
	f := newFakeStore(t)
	ctx := context.Background()
	big := map[string]string{"abstract": strings.Repeat("x", 1024)}

	// Without a session the store answers 401 before reading the body. Above
	// the threshold that answer arrives in place of 100 Continue.
	gated := newStore(t, f, docstore.Options{ContinueThreshold: 16})
	_, err := gated.Put(ctx, "big", "", big)
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, dwerrors.ErrUnexpectedStatus), "got %v", err)

	plain := newStore(t, f, docstore.Options{ContinueThreshold: -1})
	_, err = plain.Put(ctx, "big", "", big)
	assert.True(t, stderrors.Is(err, docstore.ErrAuth), "got %v", err)

	f.mu.Lock()
	defer f.mu.Unlock()
	assert.Zero(t, f.writes)
}
