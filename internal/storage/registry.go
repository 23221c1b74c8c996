package storage

import (
	"fmt"
	"sort"
	"strings"
)

// Options configures adapter construction.
type Options struct {
	// Dir is the data directory; empty selects DataDirectory.
	Dir string
	// QuotaBytes bounds the encoded size of a value; zero means unbounded.
	QuotaBytes int
	// CookieMaxBytes bounds a cookie's name=value pair.
	CookieMaxBytes int
}

// AdapterFactory creates an Adapter from options.
type AdapterFactory func(opts Options) Adapter

// AdapterRegistry maps adapter names to their factory functions.
var AdapterRegistry = make(map[string]AdapterFactory)

// DefaultChain is the adapter priority used when none is configured.
var DefaultChain = []string{"sqlite", "fs", "cookie"}

func init() {
	AdapterRegistry["sqlite"] = func(opts Options) Adapter {
		return NewSQLiteAdapter(opts.Dir, opts.QuotaBytes)
	}
	AdapterRegistry["fs"] = func(opts Options) Adapter {
		return NewFileSystemAdapter(opts.Dir, opts.QuotaBytes)
	}
	AdapterRegistry["cookie"] = func(opts Options) Adapter {
		return NewCookieAdapter(opts.Dir, opts.CookieMaxBytes)
	}
	// in-memory adapter for testing
	AdapterRegistry["memory"] = func(Options) Adapter {
		return NewMemoryAdapter("memory")
	}
}

// GetAdapter creates the adapter registered under name.
func GetAdapter(name string, opts Options) (Adapter, error) {
	factory, ok := AdapterRegistry[name]
	if !ok {
		return nil, fmt.Errorf("unknown storage adapter: %s", name)
	}
	return factory(opts), nil
}

// AdapterNames returns the registered adapter names, sorted.
func AdapterNames() []string {
	names := make([]string, 0, len(AdapterRegistry))
	for n := range AdapterRegistry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ParseChain splits a comma separated adapter list and creates each adapter.
// An empty spec selects DefaultChain.
func ParseChain(spec string, opts Options) ([]Adapter, error) {
	names := DefaultChain
	if strings.TrimSpace(spec) != "" {
		names = nil
		for _, n := range strings.Split(spec, ",") {
			if n = strings.TrimSpace(n); n != "" {
				names = append(names, n)
			}
		}
	}
	adapters := make([]Adapter, 0, len(names))
	for _, n := range names {
		a, err := GetAdapter(n, opts)
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, a)
	}
	return adapters, nil
}
