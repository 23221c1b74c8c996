package storage

import (
	"bufio"
	"bytes"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// DefaultCookieMaxBytes is the largest name=value pair a cookie may carry.
const DefaultCookieMaxBytes = 4093

// cookieExpiry is the expiry given to persistent cookies.
var cookieExpiry = time.Date(2038, time.January, 19, 3, 14, 7, 0, time.UTC)

// CookieAdapter keeps values in a cookie jar file, one Set-Cookie line per
// key. Session cookies are never written to the jar. Every pair is limited
// to a fixed size, so the adapter suits small saves only; it is the last
// durable resort of the default chain.
type CookieAdapter struct {
	dir      string
	maxBytes int
}

// NewCookieAdapter returns an adapter keeping its jar under dir, or under the
// default data directory when dir is empty. maxBytes <= 0 selects
// DefaultCookieMaxBytes.
func NewCookieAdapter(dir string, maxBytes int) *CookieAdapter {
	if maxBytes <= 0 {
		maxBytes = DefaultCookieMaxBytes
	}
	return &CookieAdapter{dir: dir, maxBytes: maxBytes}
}

// Name implements Adapter.
func (a *CookieAdapter) Name() string { return "cookie" }

// Init implements Adapter.
func (a *CookieAdapter) Init(namespace string) bool {
	h, err := a.Create(namespace, false)
	if err != nil {
		return false
	}
	defer h.Close()
	return probe(h) == nil
}

// Create implements Adapter.
func (a *CookieAdapter) Create(namespace string, persistent bool) (Handle, error) {
	if namespace == "" {
		return nil, fmt.Errorf("cookie: namespace cannot be empty")
	}
	m := &cookieMedium{maxBytes: a.maxBytes, cookies: make(map[string]*http.Cookie)}
	if persistent {
		root, err := resolveDir(a.dir)
		if err != nil {
			return nil, fmt.Errorf("cookie: %w", err)
		}
		m.path = filepath.Join(root, "cookies.txt")
		if err := m.load(); err != nil {
			return nil, fmt.Errorf("cookie: %w", err)
		}
	}
	// Base64 keeps values inside the cookie-value alphabet
	return newHandle(a.Name(), namespace, persistent, Base64Codec{}, 0, m), nil
}

type cookieMedium struct {
	mu       sync.Mutex
	path     string // empty for session cookies
	maxBytes int
	cookies  map[string]*http.Cookie // by escaped name
}

func (m *cookieMedium) load() error {
	data, err := os.ReadFile(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 8192), 1<<20)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		c, err := http.ParseSetCookie(line)
		if err != nil {
			slog.Warn("cookie: skipping malformed jar line", "path", m.path, "error", err)
			continue
		}
		m.cookies[c.Name] = c
	}
	return sc.Err()
}

func (m *cookieMedium) flush() error {
	if m.path == "" {
		return nil
	}
	names := make([]string, 0, len(m.cookies))
	for n := range m.cookies {
		names = append(names, n)
	}
	sort.Strings(names)
	var buf bytes.Buffer
	for _, n := range names {
		buf.WriteString(m.cookies[n].String())
		buf.WriteByte('\n')
	}
	return AtomicWriteFile(m.path, buf.Bytes(), 0600)
}

func (m *cookieMedium) read(key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cookies[escapeName(key)]
	if !ok {
		return "", false, nil
	}
	return c.Value, true, nil
}

func (m *cookieMedium) write(key, text string) error {
	name := escapeName(key)
	if size := len(name) + 1 + len(text); size > m.maxBytes {
		return &QuotaExceededError{Backend: "cookie", Size: size, Limit: m.maxBytes}
	}
	c := &http.Cookie{Name: name, Value: text, Path: "/"}
	if m.path != "" {
		c.Expires = cookieExpiry
	}
	if err := c.Valid(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	prev, had := m.cookies[name]
	m.cookies[name] = c
	if err := m.flush(); err != nil {
		if had {
			m.cookies[name] = prev
		} else {
			delete(m.cookies, name)
		}
		return err
	}
	return nil
}

func (m *cookieMedium) remove(key string) error {
	name := escapeName(key)
	m.mu.Lock()
	defer m.mu.Unlock()
	prev, had := m.cookies[name]
	if !had {
		return nil
	}
	delete(m.cookies, name)
	if err := m.flush(); err != nil {
		m.cookies[name] = prev
		return err
	}
	return nil
}

func (m *cookieMedium) list(prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for name := range m.cookies {
		key, err := unescapeName(name)
		if err != nil {
			continue
		}
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

func (m *cookieMedium) close() error { return nil }

var _ Adapter = (*CookieAdapter)(nil)
