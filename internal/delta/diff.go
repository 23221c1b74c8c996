package delta

import (
	"strconv"

	"github.com/joeycumines/turnkeeper/internal/value"
)

// Diff returns the edit script that turns orig into dest, or nil if they are
// structurally equal.
//
// Containers of the same kind are compared key by key. Anything else that
// differs, including containers whose kinds do not match, is replaced whole.
// Saved histories depend on this coarse fallback, so it must not be refined.
func Diff(orig, dest value.Value) *Delta {
	if value.Equal(orig, dest) {
		return nil
	}
	if value.SameShape(orig, dest) {
		return diffContainers(orig, dest)
	}
	replacement := dest.Clone()
	return &Delta{Replace: &replacement}
}

func diffContainers(orig, dest value.Value) *Delta {
	var d *Delta
	if orig.Kind() == value.KindArray {
		d = diffArrays(orig, dest)
	} else {
		d = diffObjects(orig, dest)
	}
	if d.Empty() {
		return nil
	}
	return d
}

func diffObjects(orig, dest value.Value) *Delta {
	d := &Delta{Edits: make(map[string]Edit)}
	of, df := orig.Fields(), dest.Fields()
	for _, key := range unionKeys(of, df) {
		o, inOrig := of[key]
		n, inDest := df[key]
		switch {
		case inOrig && inDest:
			if e, changed := diffPair(o, n); changed {
				d.Edits[key] = e
			}
		case inOrig:
			d.Edits[key] = deleteEdit()
		default:
			d.Edits[key] = copyEdit(n)
		}
	}
	return d
}

func diffArrays(orig, dest value.Value) *Delta {
	d := &Delta{Edits: make(map[string]Edit)}
	oe, de := orig.Elements(), dest.Elements()
	var removed []int
	for i := 0; i < len(oe) || i < len(de); i++ {
		switch {
		case i < len(oe) && i < len(de):
			if e, changed := diffPair(oe[i], de[i]); changed {
				d.Edits[strconv.Itoa(i)] = e
			}
		case i < len(oe):
			removed = append(removed, i)
		default:
			d.Edits[strconv.Itoa(i)] = copyEdit(de[i])
		}
	}
	d.Splices = coalesce(removed)
	return d
}

// diffPair compares two values present under the same key.
func diffPair(o, n value.Value) (Edit, bool) {
	if value.Equal(o, n) {
		return Edit{}, false
	}
	if o.Kind() != n.Kind() {
		return copyEdit(n), true
	}
	switch o.Kind() {
	case value.KindDate:
		return copyDateEdit(n.Millis()), true
	case value.KindArray, value.KindObject:
		if sub := diffContainers(o, n); sub != nil {
			return recurseEdit(sub), true
		}
		return Edit{}, false
	default:
		return copyEdit(n), true
	}
}

// coalesce folds ascending indices into contiguous runs.
func coalesce(indices []int) []Splice {
	var out []Splice
	for _, i := range indices {
		if n := len(out); n > 0 && out[n-1].Hi+1 == i {
			out[n-1].Hi = i
			continue
		}
		out = append(out, Splice{Lo: i, Hi: i})
	}
	return out
}

func unionKeys(a, b map[string]value.Value) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	for k := range a {
		seen[k] = struct{}{}
	}
	for k := range b {
		seen[k] = struct{}{}
	}
	return value.SortedKeys(seen)
}
