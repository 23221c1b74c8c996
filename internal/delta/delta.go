// Package delta computes and applies structural edit scripts between two
// values.
//
// A Delta describes how to turn one value into another: keyed edits for the
// fields or indices that changed, and contiguous index ranges to remove from
// arrays that shrank. Patch(v, Diff(v, w)) is structurally equal to w for
// every pair of values, and Diff(v, v) is nil.
package delta

import (
	"sort"
	"strconv"

	"github.com/joeycumines/turnkeeper/internal/value"
)

// EditKind identifies the change made at one key.
type EditKind uint8

const (
	// Delete removes the key from an object.
	Delete EditKind = iota
	// Copy replaces the key with a whole value.
	Copy
	// CopyDate replaces the key with a date built from epoch milliseconds.
	CopyDate
	// Recurse patches the existing value at the key with a nested Delta.
	Recurse
)

func (k EditKind) String() string {
	switch k {
	case Delete:
		return "delete"
	case Copy:
		return "copy"
	case CopyDate:
		return "copyDate"
	case Recurse:
		return "recurse"
	default:
		return "unknown"
	}
}

// Edit is one keyed change.
type Edit struct {
	Kind   EditKind
	Value  value.Value // Copy
	Millis int64       // CopyDate
	Delta  *Delta      // Recurse
}

// Splice removes the array elements at indices Lo through Hi inclusive.
type Splice struct {
	Lo int
	Hi int
}

// Delta is the edit script between two values.
//
// Object and array edits live in Edits (array indices as decimal keys);
// removals of trailing array elements live in Splices. Replace is set only at
// the root when the two values cannot be compared key by key.
type Delta struct {
	Edits   map[string]Edit
	Splices []Splice
	Replace *value.Value
}

// Empty reports whether d makes no change.
func (d *Delta) Empty() bool {
	return d == nil || (len(d.Edits) == 0 && len(d.Splices) == 0 && d.Replace == nil)
}

// Keys returns the edited keys in application order: numeric keys ascending
// by value, then the rest lexically.
func (d *Delta) Keys() []string {
	if d == nil {
		return nil
	}
	keys := make([]string, 0, len(d.Edits))
	for k := range d.Edits {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		ni, ei := strconv.Atoi(keys[i])
		nj, ej := strconv.Atoi(keys[j])
		switch {
		case ei == nil && ej == nil:
			return ni < nj
		case ei == nil:
			return true
		case ej == nil:
			return false
		default:
			return keys[i] < keys[j]
		}
	})
	return keys
}

func deleteEdit() Edit            { return Edit{Kind: Delete} }
func copyEdit(v value.Value) Edit { return Edit{Kind: Copy, Value: v.Clone()} }
func copyDateEdit(ms int64) Edit  { return Edit{Kind: CopyDate, Millis: ms} }
func recurseEdit(d *Delta) Edit   { return Edit{Kind: Recurse, Delta: d} }
