// Package history records a story's variable state turn by turn.
//
// A Manager holds an ordered list of moments, an active pointer into it, and
// the working copy of the variables that the current turn mutates. Moments
// are never aliased: everything entering or leaving a Manager is deep
// copied.
package history

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"

	"github.com/joeycumines/turnkeeper/internal/prng"
	"github.com/joeycumines/turnkeeper/internal/value"
)

// DefaultMaxStates is the default number of moments retained.
const DefaultMaxStates = 100

var (
	// ErrMalformedHistory is returned when a marshaled history lacks
	// required fields or is internally inconsistent.
	ErrMalformedHistory = errors.New("malformed history")

	// ErrNotObject is returned when variables are replaced by a non-object.
	ErrNotObject = errors.New("variables must be an object")
)

// Options configures a Manager.
type Options struct {
	// MaxStates bounds the number of retained moments. Zero means unbounded;
	// negative selects DefaultMaxStates.
	MaxStates int
	// PRNG enables seeded randomness. Nil leaves Random unseeded.
	PRNG *prng.PRNG
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Snapshot is the full, undelta'd form of a history, as produced by
// MarshalForSave.
type Snapshot struct {
	History []Moment
	Index   int
	PRNG    *prng.State
	Expired []string
}

// Manager is the history of one play session. It is safe for concurrent use.
type Manager struct {
	mu        sync.Mutex
	moments   []Moment
	index     int
	active    value.Value
	expired   []string
	maxStates int
	prng      *prng.PRNG
	logger    *slog.Logger
}

// New returns an empty Manager.
func New(opts Options) *Manager {
	if opts.MaxStates < 0 {
		opts.MaxStates = DefaultMaxStates
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Manager{
		index:     -1,
		active:    value.EmptyObject(),
		maxStates: opts.MaxStates,
		prng:      opts.PRNG,
		logger:    opts.Logger,
	}
}

// Create appends a moment titled title holding a copy of the working
// variables, and makes it active. Moments after the active one are
// discarded first. The oldest moments are pruned once MaxStates is exceeded;
// their titles are kept in Expired.
func (h *Manager) Create(title string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if n := h.index + 1; n < len(h.moments) {
		h.logger.Debug("history: discarding future moments", "count", len(h.moments)-n)
		h.moments = h.moments[:n]
	}

	m := Moment{Title: title, Variables: h.active.Clone()}
	if h.prng != nil {
		m.Pull = h.prng.Pull()
	}
	h.moments = append(h.moments, m)

	if h.maxStates > 0 {
		for len(h.moments) > h.maxStates {
			h.logger.Debug("history: pruning moment", "title", h.moments[0].Title)
			h.expired = append(h.expired, h.moments[0].Title)
			h.moments[0] = Moment{}
			h.moments = h.moments[1:]
		}
	}
	h.index = len(h.moments) - 1
	h.active = h.moments[h.index].Variables.Clone()
}

// GoTo makes the moment at index active. It returns false, changing
// nothing, if index is out of range. The seeded PRNG, if any, is rewound to
// where it stood when the moment was created.
func (h *Manager) GoTo(index int) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.goTo(index)
}

// Go moves the active pointer by offset. A zero offset is a no-op that
// returns false.
func (h *Manager) Go(offset int) bool {
	if offset == 0 {
		return false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.goTo(h.index + offset)
}

func (h *Manager) goTo(index int) bool {
	if index < 0 || index >= len(h.moments) {
		return false
	}
	m := h.moments[index]
	if h.prng != nil {
		p, err := prng.Unmarshal(prng.State{Seed: h.prng.Seed(), Pull: m.Pull})
		if err != nil {
			h.logger.Warn("history: cannot rewind prng", "index", index, "error", err)
		} else {
			h.prng = p
		}
	}
	h.index = index
	h.active = m.Variables.Clone()
	return true
}

// Activate makes the moment at index active without touching the PRNG.
func (h *Manager) Activate(index int) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if index < 0 || index >= len(h.moments) {
		return false
	}
	h.index = index
	h.active = h.moments[index].Variables.Clone()
	return true
}

// Reset returns the Manager to its empty state. A seeded PRNG restarts from
// its seed.
func (h *Manager) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.moments = nil
	h.index = -1
	h.active = value.EmptyObject()
	h.expired = nil
	if h.prng != nil {
		h.prng = prng.New(h.prng.Seed())
	}
}

// IsEmpty reports whether no moment has been created.
func (h *Manager) IsEmpty() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.moments) == 0
}

// Len returns the number of retained moments.
func (h *Manager) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.moments)
}

// Turns returns the number of retained moments.
func (h *Manager) Turns() int { return h.Len() }

// Index returns the active index, or -1 when empty.
func (h *Manager) Index() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.index
}

// Moment returns a copy of the moment at index.
func (h *Manager) Moment(index int) (Moment, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if index < 0 || index >= len(h.moments) {
		return Moment{}, false
	}
	return h.moments[index].Clone(), true
}

// Title returns the title of the active moment.
func (h *Manager) Title() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.index < 0 {
		return ""
	}
	return h.moments[h.index].Title
}

// Passages returns the titles of the retained moments, oldest first.
func (h *Manager) Passages() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	titles := make([]string, len(h.moments))
	for i, m := range h.moments {
		titles[i] = m.Title
	}
	return titles
}

// Expired returns the titles of pruned moments, oldest first.
func (h *Manager) Expired() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.expired...)
}

// HasPlayed reports whether a moment titled title was ever created and not
// discarded as future history.
func (h *Manager) HasPlayed(title string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, t := range h.expired {
		if t == title {
			return true
		}
	}
	for _, m := range h.moments[:h.index+1] {
		if m.Title == title {
			return true
		}
	}
	return false
}

// Variables returns a copy of the working variables.
func (h *Manager) Variables() value.Value {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.active.Clone()
}

// Variable returns a copy of one working variable.
func (h *Manager) Variable(name string) (value.Value, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	v, ok := h.active.Field(name)
	if !ok {
		return value.Null(), false
	}
	return v.Clone(), true
}

// SetVariable sets one working variable.
func (h *Manager) SetVariable(name string, v value.Value) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.active = h.active.With(name, v.Clone())
}

// DeleteVariable removes one working variable.
func (h *Manager) DeleteVariable(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.active = h.active.Without(name)
}

// SetVariables replaces the working variables wholesale.
func (h *Manager) SetVariables(v value.Value) error {
	if v.Kind() != value.KindObject {
		return fmt.Errorf("%w: got %s", ErrNotObject, v.Kind())
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.active = v.Clone()
	return nil
}

// PRNG returns the current seeded generator, or nil if seeding is off.
// Navigation replaces the generator, so callers should not retain it.
func (h *Manager) PRNG() *prng.PRNG {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.prng
}

// Random returns a value in [0, 1) from the seeded generator, or from an
// unseeded source when seeding is off.
func (h *Manager) Random() float64 {
	h.mu.Lock()
	p := h.prng
	h.mu.Unlock()
	if p == nil {
		return rand.Float64()
	}
	return p.Random()
}

// MarshalForSave returns a full copy of the history.
func (h *Manager) MarshalForSave() Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	s := Snapshot{
		History: make([]Moment, len(h.moments)),
		Index:   h.index,
		Expired: append([]string(nil), h.expired...),
	}
	for i, m := range h.moments {
		s.History[i] = m.Clone()
	}
	if h.prng != nil {
		st := h.prng.Marshal()
		s.PRNG = &st
	}
	return s
}

// UnmarshalForSave replaces the history with s. Nothing changes unless s is
// valid in full.
func (h *Manager) UnmarshalForSave(s Snapshot) error {
	if len(s.History) == 0 {
		return fmt.Errorf("%w: no moments", ErrMalformedHistory)
	}
	if s.Index < 0 || s.Index >= len(s.History) {
		return fmt.Errorf("%w: index %d out of range [0, %d)", ErrMalformedHistory, s.Index, len(s.History))
	}
	moments := make([]Moment, len(s.History))
	for i, m := range s.History {
		if m.Pull < 0 || m.Pull > prng.MaxPull {
			return fmt.Errorf("%w: moment %d has invalid pull %d", ErrMalformedHistory, i, m.Pull)
		}
		moments[i] = m.Clone()
	}
	var p *prng.PRNG
	if s.PRNG != nil {
		var err error
		if p, err = prng.Unmarshal(*s.PRNG); err != nil {
			return err
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.moments = moments
	h.index = s.Index
	h.active = moments[s.Index].Variables.Clone()
	h.expired = append([]string(nil), s.Expired...)
	if p != nil {
		h.prng = p
	}
	return nil
}
