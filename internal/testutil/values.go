// Package testutil provides shared helpers for turnkeeper tests.
package testutil

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/joeycumines/turnkeeper/internal/value"
)

// NewRand returns a deterministic generator for property tests.
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// RandomValue generates an arbitrary Value, nesting containers at most depth
// levels deep.
func RandomValue(r *rand.Rand, depth int) value.Value {
	kinds := 10
	if depth <= 0 {
		kinds = 7
	}
	switch r.IntN(kinds) {
	case 0:
		return value.Null()
	case 1:
		return value.Bool(r.IntN(2) == 0)
	case 2:
		switch r.IntN(8) {
		case 0:
			return value.Number(math.NaN())
		case 1:
			return value.Number(math.Inf(1 - 2*r.IntN(2)))
		case 2:
			return value.Number(r.NormFloat64() * 1e6)
		default:
			return value.Int(int64(r.IntN(20)))
		}
	case 3:
		return value.String(randomKey(r))
	case 4:
		return value.Date(r.Int64N(4_000_000_000_000))
	case 5:
		return value.Regex(randomKey(r), []string{"", "g", "gi", "m"}[r.IntN(4)])
	case 6:
		if r.IntN(3) == 0 {
			return value.Opaque("function () { return " + randomKey(r) + "; }")
		}
		return value.String(fmt.Sprintf("(revive:%s)", randomKey(r)))
	case 7, 8:
		n := r.IntN(6)
		elems := make([]value.Value, n)
		for i := range elems {
			elems[i] = RandomValue(r, depth-1)
		}
		return value.Array(elems...)
	default:
		n := r.IntN(6)
		fields := make(map[string]value.Value, n)
		for i := 0; i < n; i++ {
			fields[randomKey(r)] = RandomValue(r, depth-1)
		}
		return value.Object(fields)
	}
}

// MutateValue derives a value from v by applying a few random structural
// edits, so that pairs (v, MutateValue(v)) exercise small deltas as well as
// large ones.
func MutateValue(r *rand.Rand, v value.Value, depth int) value.Value {
	switch v.Kind() {
	case value.KindObject:
		keys := v.Keys()
		out := v
		for i := 0; i < 1+r.IntN(3); i++ {
			switch op := r.IntN(4); {
			case op == 0 && len(keys) > 0:
				out = out.Without(keys[r.IntN(len(keys))])
			case op == 1 && len(keys) > 0:
				k := keys[r.IntN(len(keys))]
				f, _ := out.Field(k)
				out = out.With(k, MutateValue(r, f, depth-1))
			default:
				out = out.With(randomKey(r), RandomValue(r, depth-1))
			}
		}
		return out
	case value.KindArray:
		elems := v.Elements()
		switch op := r.IntN(4); {
		case op == 0 && len(elems) > 0:
			elems = elems[:r.IntN(len(elems))]
		case op == 1 && len(elems) > 0:
			i := r.IntN(len(elems))
			elems[i] = MutateValue(r, elems[i], depth-1)
		default:
			elems = append(elems, RandomValue(r, depth-1))
		}
		return value.Array(elems...)
	default:
		if r.IntN(2) == 0 {
			return v
		}
		return RandomValue(r, depth)
	}
}

func randomKey(r *rand.Rand) string {
	const alphabet = "abcdefgh~0123"
	n := 1 + r.IntN(3)
	b := make([]byte, n)
	for i := range b {
		b[i] = alphabet[r.IntN(len(alphabet))]
	}
	return string(b)
}
