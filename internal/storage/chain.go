package storage

import (
	"fmt"
	"log/slog"
	"sync"
)

// Chain is an ordered list of adapters of which the first to pass its
// self-test is pinned. The choice is made once, lazily, and never revisited
// for the lifetime of the Chain.
type Chain struct {
	namespace string
	adapters  []Adapter
	logger    *slog.Logger

	once   sync.Once
	pinned Adapter
}

// NewChain returns a chain over adapters in priority order. A nil logger
// selects slog.Default().
func NewChain(namespace string, adapters []Adapter, logger *slog.Logger) *Chain {
	if logger == nil {
		logger = slog.Default()
	}
	return &Chain{namespace: namespace, adapters: append([]Adapter(nil), adapters...), logger: logger}
}

// Adapter returns the pinned adapter, probing the chain on first use.
func (c *Chain) Adapter() (Adapter, error) {
	c.once.Do(func() {
		for _, a := range c.adapters {
			if a.Init(c.namespace) {
				c.logger.Debug("storage: adapter pinned", "adapter", a.Name(), "namespace", c.namespace)
				c.pinned = a
				return
			}
			c.logger.Warn("storage: adapter unavailable", "adapter", a.Name(), "namespace", c.namespace)
		}
	})
	if c.pinned == nil {
		return nil, ErrAdapterUnavailable
	}
	return c.pinned, nil
}

// Open returns a handle on the chain's namespace from the pinned adapter.
func (c *Chain) Open(persistent bool) (Handle, error) {
	a, err := c.Adapter()
	if err != nil {
		return nil, err
	}
	h, err := a.Create(c.namespace, persistent)
	if err != nil {
		return nil, fmt.Errorf("storage: %s: %w", a.Name(), err)
	}
	return h, nil
}

// Namespace returns the namespace the chain opens handles on.
func (c *Chain) Namespace() string { return c.namespace }
