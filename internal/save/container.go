package save

// Container holds every save of a story: one autosave and a fixed number of
// slots. Empty positions are nil.
type Container struct {
	Autosave *Record   `json:"autosave"`
	Slots    []*Record `json:"slots"`
}

// NewContainer returns an empty container with n slots.
func NewContainer(n int) *Container {
	return &Container{Slots: make([]*Record, max(n, 0))}
}

// Resize changes the slot count to n. Growing appends empty slots.
// Shrinking removes empty slots, latest first, and never an occupied one,
// so the result may keep more than n slots. It reports whether anything
// changed.
func (c *Container) Resize(n int) bool {
	n = max(n, 0)
	switch {
	case len(c.Slots) < n:
		c.Slots = append(c.Slots, make([]*Record, n-len(c.Slots))...)
		return true
	case len(c.Slots) > n:
		excess := len(c.Slots) - n
		keep := make([]bool, len(c.Slots))
		for i := len(c.Slots) - 1; i >= 0; i-- {
			if c.Slots[i] == nil && excess > 0 {
				excess--
				continue
			}
			keep[i] = true
		}
		slots := make([]*Record, 0, n)
		for i, s := range c.Slots {
			if keep[i] {
				slots = append(slots, s)
			}
		}
		changed := len(slots) != len(c.Slots)
		c.Slots = slots
		return changed
	default:
		return false
	}
}

// Count returns the number of occupied slots.
func (c *Container) Count() int {
	n := 0
	for _, s := range c.Slots {
		if s != nil {
			n++
		}
	}
	return n
}

// IsEmpty reports whether the container holds no save at all.
func (c *Container) IsEmpty() bool {
	return c.Autosave == nil && c.Count() == 0
}
