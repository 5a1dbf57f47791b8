// Package cookies keeps the session cookies a document server hands out
// and turns them back into Cookie request headers.
package cookies

import (
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Cookie is a name/value pair as sent in a Cookie request header.
type Cookie struct {
	Name  string
	Value string
}

// ParseCookies parses a Cookie header value. Pairs without '=' become
// cookies with an empty value.
func ParseCookies(cookieHeader string) []Cookie {
	var cookies []Cookie
	for _, part := range strings.Split(cookieHeader, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, value, _ := strings.Cut(part, "=")
		cookies = append(cookies, Cookie{
			Name:  strings.TrimSpace(name),
			Value: unquote(strings.TrimSpace(value)),
		})
	}
	return cookies
}

// BuildCookieHeader joins cookies into a Cookie header value, skipping
// nameless entries.
func BuildCookieHeader(cookies []Cookie) string {
	parts := make([]string, 0, len(cookies))
	for _, c := range cookies {
		if c.Name == "" {
			continue
		}
		parts = append(parts, c.Name+"="+c.Value)
	}
	return strings.Join(parts, "; ")
}

// SetCookie is a parsed Set-Cookie response header.
type SetCookie struct {
	Name     string
	Value    string
	Path     string
	Domain   string
	Expires  time.Time
	MaxAge   int // -1 when absent
	Secure   bool
	HttpOnly bool
	SameSite string
	Raw      string
}

// ParseSetCookie parses a Set-Cookie header value. Unknown attributes and
// unparsable dates are ignored.
func ParseSetCookie(setCookie string) SetCookie {
	c := SetCookie{Raw: setCookie, MaxAge: -1}

	parts := strings.Split(setCookie, ";")
	name, value, _ := strings.Cut(strings.TrimSpace(parts[0]), "=")
	c.Name = strings.TrimSpace(name)
	c.Value = unquote(strings.TrimSpace(value))

	for _, attr := range parts[1:] {
		key, val, hasValue := strings.Cut(strings.TrimSpace(attr), "=")
		key = strings.ToLower(strings.TrimSpace(key))
		val = strings.TrimSpace(val)

		switch {
		case key == "path" && hasValue:
			c.Path = val
		case key == "domain" && hasValue:
			c.Domain = strings.TrimPrefix(val, ".")
		case key == "expires" && hasValue:
			for _, layout := range []string{time.RFC1123, "Mon, 02-Jan-2006 15:04:05 MST", time.RFC850} {
				if t, err := time.Parse(layout, val); err == nil {
					c.Expires = t
					break
				}
			}
		case key == "max-age" && hasValue:
			if n, err := strconv.Atoi(val); err == nil {
				c.MaxAge = n
			}
		case key == "samesite" && hasValue:
			c.SameSite = val
		case key == "secure":
			c.Secure = true
		case key == "httponly":
			c.HttpOnly = true
		}
	}
	return c
}

// Build renders the cookie as a Set-Cookie header value.
func (c *SetCookie) Build() string {
	parts := []string{c.Name + "=" + c.Value}
	if c.Path != "" {
		parts = append(parts, "Path="+c.Path)
	}
	if c.Domain != "" {
		parts = append(parts, "Domain="+c.Domain)
	}
	if !c.Expires.IsZero() {
		parts = append(parts, "Expires="+c.Expires.UTC().Format(time.RFC1123))
	}
	if c.MaxAge >= 0 {
		parts = append(parts, "Max-Age="+strconv.Itoa(c.MaxAge))
	}
	if c.Secure {
		parts = append(parts, "Secure")
	}
	if c.HttpOnly {
		parts = append(parts, "HttpOnly")
	}
	if c.SameSite != "" {
		parts = append(parts, "SameSite="+c.SameSite)
	}
	return strings.Join(parts, "; ")
}

// expiry returns when the cookie stops being valid, zero for session cookies.
// Max-Age wins over Expires.
func (c *SetCookie) expiry(received time.Time) time.Time {
	if c.MaxAge >= 0 {
		return received.Add(time.Duration(c.MaxAge) * time.Second)
	}
	return c.Expires
}

type entry struct {
	value   string
	path    string
	expires time.Time
}

// Jar stores cookies for a single server. It is safe for concurrent use.
type Jar struct {
	mu      sync.Mutex
	entries map[string]entry
	now     func() time.Time
}

// NewJar returns an empty jar.
func NewJar() *Jar {
	return &Jar{entries: make(map[string]entry), now: time.Now}
}

// Update stores the cookies from Set-Cookie header values. A cookie that is
// already expired (including Max-Age=0) deletes any stored cookie of the
// same name.
func (j *Jar) Update(setCookies []string) {
	j.mu.Lock()
	defer j.mu.Unlock()

	now := j.now()
	for _, raw := range setCookies {
		c := ParseSetCookie(raw)
		if c.Name == "" {
			continue
		}
		exp := c.expiry(now)
		if !exp.IsZero() && !exp.After(now) {
			delete(j.entries, c.Name)
			continue
		}
		j.entries[c.Name] = entry{value: c.Value, path: c.Path, expires: exp}
	}
}

// Cookies returns the live cookies applicable to path, sorted by name.
func (j *Jar) Cookies(path string) []Cookie {
	j.mu.Lock()
	defer j.mu.Unlock()

	now := j.now()
	var out []Cookie
	for name, e := range j.entries {
		if !e.expires.IsZero() && !e.expires.After(now) {
			delete(j.entries, name)
			continue
		}
		if e.path != "" && !pathMatch(path, e.path) {
			continue
		}
		out = append(out, Cookie{Name: name, Value: e.value})
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Name < out[b].Name })
	return out
}

// Header returns the Cookie header value for a request to path, or "".
func (j *Jar) Header(path string) string {
	return BuildCookieHeader(j.Cookies(path))
}

// Get returns the value of a live cookie.
func (j *Jar) Get(name string) (string, bool) {
	for _, c := range j.Cookies("") {
		if c.Name == name {
			return c.Value, true
		}
	}
	return "", false
}

// Clear drops every stored cookie.
func (j *Jar) Clear() {
	j.mu.Lock()
	j.entries = make(map[string]entry)
	j.mu.Unlock()
}

func pathMatch(reqPath, cookiePath string) bool {
	if reqPath == "" || reqPath == cookiePath {
		return true
	}
	if !strings.HasPrefix(reqPath, cookiePath) {
		return false
	}
	return strings.HasSuffix(cookiePath, "/") || reqPath[len(cookiePath)] == '/'
}

func unquote(v string) string {
	if len(v) >= 2 && v[0] == '"' && v[len(v)-1] == '"' {
		return v[1 : len(v)-1]
	}
	return v
}
