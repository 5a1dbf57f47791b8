package cookies

import (
	"strings"
	"sync"
	"testing"
	"time"
)

// ============================================================================
// Request Cookie Tests
// ============================================================================

func TestParseCookies_Simple(t *testing.T) {
	cookies := ParseCookies("AuthSession=abc123; lang=en")

	if len(cookies) != 2 {
		t.Fatalf("Expected 2 cookies, got %d", len(cookies))
	}

	if cookies[0].Name != "AuthSession" || cookies[0].Value != "abc123" {
		t.Errorf("Expected AuthSession=abc123, got %s=%s", cookies[0].Name, cookies[0].Value)
	}

	if cookies[1].Name != "lang" || cookies[1].Value != "en" {
		t.Errorf("Expected lang=en, got %s=%s", cookies[1].Name, cookies[1].Value)
	}
}

func TestParseCookies_SpacesQuotesAndMalformed(t *testing.T) {
	cookies := ParseCookies(`  name1  =  "value1"  ; flag ;; `)

	if len(cookies) != 2 {
		t.Fatalf("Expected 2 cookies, got %d: %v", len(cookies), cookies)
	}
	if cookies[0].Name != "name1" || cookies[0].Value != "value1" {
		t.Errorf("Expected name1=value1, got %s=%s", cookies[0].Name, cookies[0].Value)
	}
	if cookies[1].Name != "flag" || cookies[1].Value != "" {
		t.Errorf("Expected flag with empty value, got %s=%s", cookies[1].Name, cookies[1].Value)
	}

	if got := ParseCookies(""); len(got) != 0 {
		t.Errorf("Expected no cookies, got %v", got)
	}
}

func TestBuildCookieHeader(t *testing.T) {
	result := BuildCookieHeader([]Cookie{
		{Name: "a", Value: "1"},
		{Name: "", Value: "skipped"},
		{Name: "b", Value: "2"},
	})
	if result != "a=1; b=2" {
		t.Errorf("Expected %q, got %q", "a=1; b=2", result)
	}
}

// ============================================================================
// Set-Cookie Tests
// ============================================================================

func TestParseSetCookie_WithAttributes(t *testing.T) {
	c := ParseSetCookie("AuthSession=YWRtaW46; Version=1; Path=/; Domain=.docs.local; " +
		"Expires=Wed, 21 Oct 2026 07:28:00 GMT; Max-Age=600; Secure; HttpOnly; SameSite=Strict")

	if c.Name != "AuthSession" || c.Value != "YWRtaW46" {
		t.Errorf("Unexpected name/value %s=%s", c.Name, c.Value)
	}
	if c.Path != "/" || c.Domain != "docs.local" {
		t.Errorf("Unexpected path/domain %q %q", c.Path, c.Domain)
	}
	if c.Expires.IsZero() || c.Expires.Year() != 2026 {
		t.Errorf("Expires not parsed: %v", c.Expires)
	}
	if c.MaxAge != 600 || !c.Secure || !c.HttpOnly || c.SameSite != "Strict" {
		t.Errorf("Unexpected attributes %+v", c)
	}
}

func TestParseSetCookie_Malformed(t *testing.T) {
	malformed := []string{
		"",
		";;;",
		"=novalue",
		"name=value; Max-Age=abc; Expires=yesterday",
	}
	for _, input := range malformed {
		c := ParseSetCookie(input)
		if c.MaxAge != -1 {
			t.Errorf("ParseSetCookie(%q).MaxAge = %d, want -1", input, c.MaxAge)
		}
	}
}

func TestSetCookie_Build(t *testing.T) {
	c := SetCookie{Name: "token", Value: "xyz", MaxAge: -1}
	if got := c.Build(); got != "token=xyz" {
		t.Errorf("Expected %q, got %q", "token=xyz", got)
	}

	c = ParseSetCookie("id=a3fWa; Path=/; Max-Age=0; Secure; HttpOnly; SameSite=Lax")
	rebuilt := ParseSetCookie(c.Build())
	if rebuilt.Name != c.Name || rebuilt.Path != c.Path || rebuilt.MaxAge != 0 ||
		!rebuilt.Secure || !rebuilt.HttpOnly || rebuilt.SameSite != "Lax" {
		t.Errorf("Round trip mismatch: %q", c.Build())
	}
}

// ============================================================================
// Jar Tests
// ============================================================================

func TestJar_UpdateAndHeader(t *testing.T) {
	jar := NewJar()
	jar.Update([]string{
		"AuthSession=abc; Path=/; HttpOnly",
		"lang=en",
	})

	if got := jar.Header("/docs/a"); got != "AuthSession=abc; lang=en" {
		t.Errorf("Header() = %q", got)
	}

	jar.Update([]string{"AuthSession=def; Path=/"})
	if v, ok := jar.Get("AuthSession"); !ok || v != "def" {
		t.Errorf("Expected refreshed session, got %q %v", v, ok)
	}
}

func TestJar_ExpiryAndDeletion(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	jar := NewJar()
	jar.now = func() time.Time { return now }

	jar.Update([]string{"short=1; Max-Age=10", "keep=2"})
	if got := jar.Header(""); got != "keep=2; short=1" {
		t.Errorf("Header() = %q", got)
	}

	now = now.Add(11 * time.Second)
	if got := jar.Header(""); got != "keep=2" {
		t.Errorf("Expected expired cookie dropped, got %q", got)
	}

	jar.Update([]string{"keep=; Max-Age=0"})
	if _, ok := jar.Get("keep"); ok {
		t.Error("Expected Max-Age=0 to delete cookie")
	}
}

func TestJar_PathMatch(t *testing.T) {
	jar := NewJar()
	jar.Update([]string{"scoped=1; Path=/db"})

	tests := map[string]bool{
		"/db":       true,
		"/db/doc":   true,
		"/dbx":      false,
		"/other":    false,
		"/db/a/b/c": true,
	}
	for path, want := range tests {
		if got := strings.Contains(jar.Header(path), "scoped=1"); got != want {
			t.Errorf("Header(%q) includes cookie = %v, want %v", path, got, want)
		}
	}
}

func TestJar_Concurrent(t *testing.T) {
	jar := NewJar()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			jar.Update([]string{"AuthSession=x"})
		}()
		go func() {
			defer wg.Done()
			_ = jar.Header("/")
		}()
	}
	wg.Wait()

	jar.Clear()
	if jar.Header("/") != "" {
		t.Error("Expected empty jar after Clear")
	}
}

func BenchmarkJarHeader(b *testing.B) {
	jar := NewJar()
	jar.Update([]string{"AuthSession=abc; Path=/", "lang=en", "theme=dark"})
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = jar.Header("/docs")
	}
}
