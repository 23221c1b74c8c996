package storage

import (
	"strings"
	"sync"
	"sync/atomic"
)

// Global in-memory storage shared across all memory adapters (for testing).
var globalInMemoryStore = struct {
	sync.RWMutex
	values map[string]string
}{
	values: make(map[string]string),
}

// ClearAllInMemory clears the in-memory store (for testing).
func ClearAllInMemory() {
	globalInMemoryStore.Lock()
	globalInMemoryStore.values = make(map[string]string)
	globalInMemoryStore.Unlock()
}

// MemoryAdapter keeps values in process memory. Both scopes end with the
// process; it exists for tests and as a last resort.
type MemoryAdapter struct {
	name        string
	unavailable atomic.Bool
}

// NewMemoryAdapter returns a memory adapter registered under name.
func NewMemoryAdapter(name string) *MemoryAdapter {
	if name == "" {
		name = "memory"
	}
	return &MemoryAdapter{name: name}
}

// SetAvailable controls the outcome of Init (for testing).
func (a *MemoryAdapter) SetAvailable(ok bool) { a.unavailable.Store(!ok) }

// Name implements Adapter.
func (a *MemoryAdapter) Name() string { return a.name }

// Init implements Adapter.
func (a *MemoryAdapter) Init(namespace string) bool {
	if a.unavailable.Load() {
		return false
	}
	h, err := a.Create(namespace, false)
	if err != nil {
		return false
	}
	defer h.Close()
	return probe(h) == nil
}

// Create implements Adapter.
func (a *MemoryAdapter) Create(namespace string, persistent bool) (Handle, error) {
	// keys of differently named adapters must not collide in the shared map
	return newHandle(a.name, a.name+":"+namespace, persistent, UTF16Codec{}, 0, memoryMedium{}), nil
}

type memoryMedium struct{}

func (memoryMedium) read(key string) (string, bool, error) {
	globalInMemoryStore.RLock()
	defer globalInMemoryStore.RUnlock()
	v, ok := globalInMemoryStore.values[key]
	return v, ok, nil
}

func (memoryMedium) write(key, text string) error {
	globalInMemoryStore.Lock()
	globalInMemoryStore.values[key] = text
	globalInMemoryStore.Unlock()
	return nil
}

func (memoryMedium) remove(key string) error {
	globalInMemoryStore.Lock()
	delete(globalInMemoryStore.values, key)
	globalInMemoryStore.Unlock()
	return nil
}

func (memoryMedium) list(prefix string) ([]string, error) {
	globalInMemoryStore.RLock()
	defer globalInMemoryStore.RUnlock()
	var keys []string
	for k := range globalInMemoryStore.values {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (memoryMedium) close() error { return nil }

var _ Adapter = (*MemoryAdapter)(nil)
