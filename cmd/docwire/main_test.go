package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBackend(t *testing.T) *httptest.Server {
	t.Helper()
	var mu sync.Mutex
	docs := map[string]string{}

	router := httprouter.New()
	router.GET("/page", func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("X-Trace", "abc123")
		fmt.Fprint(w, "line one\nline two has the needle\n")
	})
	router.POST("/echo", func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		data, _ := io.ReadAll(r.Body)
		fmt.Fprintf(w, "%s got %d bytes", r.Header.Get("X-Mode"), len(data))
	})
	router.GET("/solr/:core/select", func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"responseHeader":{"status":0,"QTime":1},"response":{"numFound":2,"start":0,"docs":[`+
			`{"id":"a","title":"Raft consensus"},{"id":"b","title":"Gossip for %s"}]}}`, ps.ByName("core"))
	})
	router.PUT("/couch/:db/:id", func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		data, _ := io.ReadAll(r.Body)
		mu.Lock()
		docs[ps.ByName("id")] = string(data)
		mu.Unlock()
		w.WriteHeader(http.StatusCreated)
		fmt.Fprintf(w, `{"ok":true,"id":%q,"rev":"1-x"}`, ps.ByName("id"))
	})
	router.GET("/couch/:db/:id", func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		mu.Lock()
		doc, ok := docs[ps.ByName("id")]
		mu.Unlock()
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"error":"not_found","reason":"missing"}`)
			return
		}
		fmt.Fprint(w, doc)
	})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func writeConfig(t *testing.T, base string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "docwire.toml")
	cfg := fmt.Sprintf(`
[client]
receive_timeout_ms = 5000

[store]
base_url = "%s/couch"
database = "papers"

[search]
base_url = "%s/solr"
core = "papers"

[logging]
level = "disabled"
`, base, base)
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o644))
	return path
}

func runCLI(t *testing.T, stdin string, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, strings.NewReader(stdin), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestUsage(t *testing.T) {
	code, _, stderr := runCLI(t, "")
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, "usage: docwire")

	code, _, stderr = runCLI(t, "", "-config", "/nonexistent.toml", "version")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "config")
}

func TestVersion(t *testing.T) {
	code, stdout, _ := runCLI(t, "", "version")
	assert.Equal(t, 0, code)
	assert.True(t, strings.HasPrefix(stdout, "go-docwire/"))
}

func TestFetch(t *testing.T) {
	srv := newBackend(t)
	cfg := writeConfig(t, srv.URL)

	code, stdout, stderr := runCLI(t, "", "-config", cfg, "fetch", "-i", srv.URL+"/page")
	require.Equal(t, 0, code, stderr)
	assert.True(t, strings.HasPrefix(stdout, "HTTP/1.1 200 OK\r\n"))
	assert.Contains(t, stdout, "X-Trace: abc123\r\n")
	assert.True(t, strings.HasSuffix(stdout, "\r\n\r\nline one\nline two has the needle\n"))
}

func TestFetchGrep(t *testing.T) {
	srv := newBackend(t)
	cfg := writeConfig(t, srv.URL)

	code, stdout, _ := runCLI(t, "", "-config", cfg, "fetch", "-grep", "needle|abc", "-E", srv.URL+"/page")
	require.Equal(t, 0, code)
	assert.Contains(t, stdout, "header X-Trace: abc\n")
	assert.Contains(t, stdout, "body:2: ")
}

func TestFetchUpload(t *testing.T) {
	srv := newBackend(t)
	cfg := writeConfig(t, srv.URL)

	data := strings.Repeat("z", 20000)
	code, stdout, stderr := runCLI(t, data, "-config", cfg, "fetch", "-X", "post", "-data", "-",
		"-H", "X-Mode: upload", "-expect", "-progress", srv.URL+"/echo")
	require.Equal(t, 0, code, stderr)
	assert.Equal(t, "upload got 20000 bytes", stdout)
	assert.Contains(t, stderr, "100.0%")
}

func TestFetchExplicitLengthFromStream(t *testing.T) {
	srv := newBackend(t)
	cfg := writeConfig(t, srv.URL)

	var stdout, stderr bytes.Buffer
	stdin := io.MultiReader(strings.NewReader("hello"), strings.NewReader(" world"))
	code := run(context.Background(), []string{"-config", cfg, "fetch", "-X", "post", "-data", "-",
		"-H", "Content-Length: 5", "-H", "X-Mode: sized", srv.URL + "/echo"}, stdin, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())
	assert.Equal(t, "sized got 5 bytes", stdout.String())
}

func TestFetchBadHeader(t *testing.T) {
	code, _, stderr := runCLI(t, "", "fetch", "-H", "nocolon", "http://127.0.0.1:1/")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "not Name: value")
}

func TestSearch(t *testing.T) {
	srv := newBackend(t)
	cfg := writeConfig(t, srv.URL)

	code, stdout, stderr := runCLI(t, "", "-config", cfg, "search", "-fq", "type:paper", "consensus")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "found 2")
	assert.Contains(t, stdout, "a\tRaft consensus\n")
	assert.Contains(t, stdout, "b\tGossip for papers\n")

	code, stdout, _ = runCLI(t, "", "-config", cfg, "search", "-grep", "RAFT", "consensus")
	require.Equal(t, 0, code)
	assert.Contains(t, stdout, "a\ttitle: Raft consensus")
	assert.NotContains(t, stdout, "Gossip")
}

func TestPutGet(t *testing.T) {
	srv := newBackend(t)
	cfg := writeConfig(t, srv.URL)

	code, stdout, stderr := runCLI(t, `{"title":"Raft"}`, "-config", cfg, "put", "raft")
	require.Equal(t, 0, code, stderr)
	assert.Equal(t, "raft 1-x\n", stdout)

	code, stdout, _ = runCLI(t, "", "-config", cfg, "get", "raft")
	require.Equal(t, 0, code)
	assert.Contains(t, stdout, `"title": "Raft"`)

	code, _, stderr = runCLI(t, "", "-config", cfg, "get", "missing")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "not_found")

	code, _, stderr = runCLI(t, "{not json", "-config", cfg, "put", "bad")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "not valid JSON")
}

func TestDeleteNeedsRevision(t *testing.T) {
	srv := newBackend(t)
	cfg := writeConfig(t, srv.URL)

	code, _, stderr := runCLI(t, "", "-config", cfg, "delete", "raft")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "revision")
}
