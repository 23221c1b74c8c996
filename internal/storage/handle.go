package storage

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
)

// medium is the raw text store beneath a handle. Keys passed to a medium
// already carry the scope prefix.
type medium interface {
	read(key string) (string, bool, error)
	write(key, text string) error
	remove(key string) error
	list(prefix string) ([]string, error)
	close() error
}

// handle implements Handle over a medium.
type handle struct {
	mu         sync.Mutex
	name       string
	prefix     string
	persistent bool
	codec      Codec
	quota      int
	m          medium
	closed     bool
}

func newHandle(name, namespace string, persistent bool, codec Codec, quota int, m medium) *handle {
	return &handle{
		name:       name,
		prefix:     Prefix(namespace, persistent),
		persistent: persistent,
		codec:      codec,
		quota:      quota,
		m:          m,
	}
}

func (h *handle) Name() string     { return h.name }
func (h *handle) Persistent() bool { return h.persistent }

func (h *handle) Has(key string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	_, ok, err := h.m.read(h.prefix + key)
	return err == nil && ok
}

func (h *handle) Get(key string, v any) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	text, ok, err := h.m.read(h.prefix + key)
	if err != nil {
		slog.Warn("storage: read failed", "adapter", h.name, "key", key, "error", err)
		return false
	}
	if !ok {
		return false
	}
	if err := h.codec.Decode(text, v); err != nil {
		slog.Warn("storage: discarding corrupt value", "adapter", h.name, "key", key, "error", err)
		return false
	}
	return true
}

func (h *handle) Set(key string, v any) error {
	text, err := h.codec.Encode(v)
	if err != nil {
		return fmt.Errorf("%s: key %q: %w", h.name, key, err)
	}
	if h.quota > 0 && len(text) > h.quota {
		return &QuotaExceededError{Backend: h.name, Key: key, Size: len(text), Limit: h.quota}
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrClosed
	}
	if err := h.m.write(h.prefix+key, text); err != nil {
		var q *QuotaExceededError
		if errors.As(err, &q) {
			q.Key = key
			return q
		}
		return fmt.Errorf("%s: write %q: %w", h.name, key, err)
	}
	return nil
}

func (h *handle) Delete(key string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrClosed
	}
	if err := h.m.remove(h.prefix + key); err != nil {
		return fmt.Errorf("%s: delete %q: %w", h.name, key, err)
	}
	return nil
}

func (h *handle) Keys() ([]string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.keysLocked()
}

func (h *handle) keysLocked() ([]string, error) {
	if h.closed {
		return nil, ErrClosed
	}
	full, err := h.m.list(h.prefix)
	if err != nil {
		return nil, fmt.Errorf("%s: list: %w", h.name, err)
	}
	keys := make([]string, 0, len(full))
	for _, k := range full {
		if rest, ok := strings.CutPrefix(k, h.prefix); ok {
			keys = append(keys, rest)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (h *handle) Size() (int, error) {
	keys, err := h.Keys()
	return len(keys), err
}

func (h *handle) Clear() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	keys, err := h.keysLocked()
	if err != nil {
		return err
	}
	var errs []error
	for _, k := range keys {
		if err := h.m.remove(h.prefix + k); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%s: clear: %w", h.name, err)
	}
	return nil
}

func (h *handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	return h.m.close()
}

var _ Handle = (*handle)(nil)
