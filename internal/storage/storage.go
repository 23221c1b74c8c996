// Package storage provides namespaced key/value persistence over a chain of
// fallback-capable backends.
//
// An Adapter is a backend kind. It self-tests with Init and produces Handles
// scoped to a namespace and a persistence flag. Persistent and session
// handles of the same namespace never see each other's keys, even when they
// share a medium. Values are JSON encoded and compressed before they reach
// the medium; a missing or corrupt key reads as not found.
package storage

import (
	"errors"
	"fmt"
)

var (
	// ErrQuotaExceeded matches any *QuotaExceededError.
	ErrQuotaExceeded = errors.New("storage quota exceeded")

	// ErrAdapterUnavailable is returned when no adapter in a chain passes its
	// self-test.
	ErrAdapterUnavailable = errors.New("no storage adapter available")

	// ErrClosed is returned by operations on a closed handle.
	ErrClosed = errors.New("storage handle closed")
)

// QuotaExceededError reports a write rejected for size.
type QuotaExceededError struct {
	Backend string
	Key     string
	Size    int
	Limit   int
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("%s: value for key %q is %d bytes, limit is %d", e.Backend, e.Key, e.Size, e.Limit)
}

// Is reports whether target is ErrQuotaExceeded.
func (e *QuotaExceededError) Is(target error) bool { return target == ErrQuotaExceeded }

// Adapter is a storage backend kind.
type Adapter interface {
	// Name returns the registry name of the adapter.
	Name() string

	// Init reports whether the backend is usable, by writing, reading back
	// and removing a probe key under namespace.
	Init(namespace string) bool

	// Create opens a handle on namespace. Persistent handles outlive the
	// process; session handles do not.
	Create(namespace string, persistent bool) (Handle, error)
}

// Handle is a key/value view scoped to one namespace and persistence flag.
type Handle interface {
	// Name returns the name of the adapter that produced the handle.
	Name() string

	// Persistent reports whether the handle outlives the process.
	Persistent() bool

	// Has reports whether key holds a value.
	Has(key string) bool

	// Get decodes the value stored under key into v. It returns false if the
	// key is missing or its value cannot be decoded.
	Get(key string, v any) bool

	// Set stores v under key. A value too large for the medium yields an
	// error matching ErrQuotaExceeded.
	Set(key string, v any) error

	// Delete removes key. Removing a missing key is not an error.
	Delete(key string) error

	// Keys returns the stored keys, sorted, without the scope prefix.
	Keys() ([]string, error)

	// Size returns the number of stored keys.
	Size() (int, error)

	// Clear removes every key in scope.
	Clear() error

	// Close releases the handle's resources.
	Close() error
}

// Prefix returns the private key prefix of a namespace and persistence flag.
func Prefix(namespace string, persistent bool) string {
	if persistent {
		return namespace + "!."
	}
	return namespace + "*."
}

const probeKey = "__probe__"

// probe exercises h with a write/read/remove cycle.
func probe(h Handle) error {
	if err := h.Set(probeKey, probeKey); err != nil {
		return err
	}
	var got string
	if !h.Get(probeKey, &got) || got != probeKey {
		return fmt.Errorf("%s: probe read back %q", h.Name(), got)
	}
	return h.Delete(probeKey)
}
