// Package prng implements a seedable pseudo-random generator whose position
// can be saved and restored portably.
//
// Position is recorded as the seed plus the number of values drawn so far.
// Restoring re-creates the generator from the seed and discards that many
// draws; raw generator internals are never serialized.
package prng

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
)

// ErrInvalidState is returned when a marshaled generator lacks its seed or
// pull count.
var ErrInvalidState = errors.New("prng: invalid state")

// MaxPull bounds the draws a restore will replay. Positions past it come
// only from damaged or crafted state, and replaying them would stall.
const MaxPull = 1 << 24

// checkPull reports whether n is a position Unmarshal will replay.
func checkPull(n int) error {
	switch {
	case n < 0:
		return fmt.Errorf("%w: negative pull %d", ErrInvalidState, n)
	case n > MaxPull:
		return fmt.Errorf("%w: pull %d exceeds %d", ErrInvalidState, n, MaxPull)
	}
	return nil
}

// State is the portable position of a PRNG.
type State struct {
	Seed string `json:"seed"`
	Pull int    `json:"pull"`
}

// UnmarshalJSON implements json.Unmarshaler. Both fields are required. A
// numeric seed is accepted and keyed the way a number is keyed at creation.
func (s *State) UnmarshalJSON(data []byte) error {
	var raw struct {
		Seed json.RawMessage `json:"seed"`
		Pull *int            `json:"pull"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidState, err)
	}
	if len(raw.Seed) == 0 || bytes.Equal(raw.Seed, []byte("null")) {
		return fmt.Errorf("%w: missing seed", ErrInvalidState)
	}
	if raw.Pull == nil {
		return fmt.Errorf("%w: missing pull", ErrInvalidState)
	}
	if err := checkPull(*raw.Pull); err != nil {
		return err
	}
	var seed string
	if raw.Seed[0] == '"' {
		if err := json.Unmarshal(raw.Seed, &seed); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidState, err)
		}
	} else {
		var n float64
		if err := json.Unmarshal(raw.Seed, &n); err != nil {
			return fmt.Errorf("%w: seed: %w", ErrInvalidState, err)
		}
		seed = NumberSeed(n)
	}
	*s = State{Seed: seed, Pull: *raw.Pull}
	return nil
}

// PRNG is a deterministic generator that counts its draws. It is safe for
// concurrent use.
type PRNG struct {
	mu   sync.Mutex
	gen  *arc4
	seed string
	pull int
}

// New returns a generator keyed by seed.
func New(seed string) *PRNG {
	key, short := mixKey(seed)
	return &PRNG{gen: newARC4(key), seed: short}
}

// NumberSeed returns the string a numeric seed is keyed by.
func NumberSeed(n float64) string {
	return formatNumber(n) + "\x00"
}

// Random returns the next value in [0, 1).
func (p *PRNG) Random() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pull++
	return p.gen.next()
}

// Pull returns the number of values drawn so far.
func (p *PRNG) Pull() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pull
}

// Seed returns the mixed seed. New(p.Seed()) produces the same sequence as p.
func (p *PRNG) Seed() string {
	return p.seed
}

// Marshal returns the generator's portable position.
func (p *PRNG) Marshal() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return State{Seed: p.seed, Pull: p.pull}
}

// Unmarshal rebuilds a generator at the position recorded in s.
func Unmarshal(s State) (*PRNG, error) {
	if err := checkPull(s.Pull); err != nil {
		return nil, err
	}
	p := New(s.Seed)
	for range s.Pull {
		p.gen.next()
	}
	p.pull = s.Pull
	return p, nil
}

// IntN returns a uniform integer in [0, n). It panics if n <= 0.
func (p *PRNG) IntN(n int) int {
	if n <= 0 {
		panic("prng: invalid argument to IntN")
	}
	return int(math.Floor(p.Random() * float64(n)))
}

// formatNumber renders n the way a script engine converts a number to a
// string.
func formatNumber(n float64) string {
	switch {
	case math.IsNaN(n):
		return "NaN"
	case math.IsInf(n, 1):
		return "Infinity"
	case math.IsInf(n, -1):
		return "-Infinity"
	case n == 0:
		return "0"
	}
	if a := math.Abs(n); a >= 1e-6 && a < 1e21 {
		return strconv.FormatFloat(n, 'f', -1, 64)
	}
	s := strconv.FormatFloat(n, 'e', -1, 64)
	mant, exp, _ := strings.Cut(s, "e")
	sign, digits := exp[:1], strings.TrimLeft(exp[1:], "0")
	return mant + "e" + sign + digits
}
