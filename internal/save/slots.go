package save

import (
	"fmt"

	"github.com/joeycumines/turnkeeper/internal/value"
)

// Slots is the view of an Orchestrator's save slots.
type Slots struct{ o *Orchestrator }

// Slots returns the slot operations.
func (o *Orchestrator) Slots() Slots { return Slots{o} }

// OK reports whether slots can be used: storage is available and at least
// one slot is configured.
func (s Slots) OK() bool {
	return s.o.OK() && s.Length() > 0
}

// Length returns the number of slots.
func (s Slots) Length() int {
	c, err := s.o.Container()
	if err != nil {
		return 0
	}
	return len(c.Slots)
}

// Count returns the number of occupied slots.
func (s Slots) Count() int {
	c, err := s.o.Container()
	if err != nil {
		return 0
	}
	return c.Count()
}

// Has reports whether slot i holds a save.
func (s Slots) Has(i int) bool {
	return s.Get(i) != nil
}

// Get returns the save in slot i, or nil if the slot is empty or out of
// range.
func (s Slots) Get(i int) *Record {
	c, err := s.o.Container()
	if err != nil || i < 0 || i >= len(c.Slots) {
		return nil
	}
	return c.Slots[i]
}

// List returns every slot, nil where empty.
func (s Slots) List() []*Record {
	c, err := s.o.Container()
	if err != nil {
		return nil
	}
	return c.Slots
}

// Load restores the save in slot i. It returns false, nil if the slot is
// empty or out of range; a failed restore is a *LoadError.
func (s Slots) Load(i int) (bool, error) {
	return s.o.load(func(c *Container) *Record {
		if i < 0 || i >= len(c.Slots) {
			return nil
		}
		return c.Slots[i]
	})
}

// Save stores the live history in slot i. An empty title selects the
// active moment's title.
func (s Slots) Save(i int, title string, metadata *value.Value) error {
	return s.o.store(title, metadata, func(c *Container, rec *Record) error {
		if i < 0 || i >= len(c.Slots) {
			return fmt.Errorf("%w: %d not in [0, %d)", ErrSlotRange, i, len(c.Slots))
		}
		c.Slots[i] = rec
		return nil
	})
}

// Delete empties slot i. It returns false if the slot was already empty or
// out of range.
func (s Slots) Delete(i int) (bool, error) {
	return s.o.remove(func(c *Container) bool {
		if i < 0 || i >= len(c.Slots) || c.Slots[i] == nil {
			return false
		}
		c.Slots[i] = nil
		return true
	})
}
