package delta

import (
	"log/slog"
	"sort"
	"strconv"

	"github.com/joeycumines/turnkeeper/internal/value"
)

// Patch applies d to orig and returns the result. orig is never modified.
// A nil or empty delta yields a deep copy of orig.
func Patch(orig value.Value, d *Delta) value.Value {
	if d.Empty() {
		return orig.Clone()
	}
	if d.Replace != nil {
		return d.Replace.Clone()
	}
	orig = orig.Clone()
	switch orig.Kind() {
	case value.KindArray:
		return patchArray(orig, d)
	case value.KindObject:
		return patchObject(orig, d)
	default:
		// keyed edits against a scalar: the delta was produced from some other
		// base, so rebuild from an empty object rather than guess
		slog.Debug("delta: keyed patch applied to non-container", "kind", orig.Kind().String())
		return patchObject(value.EmptyObject(), d)
	}
}

func patchObject(orig value.Value, d *Delta) value.Value {
	fields := orig.Fields()
	for _, key := range d.Keys() {
		e := d.Edits[key]
		switch e.Kind {
		case Delete:
			delete(fields, key)
		case Copy:
			fields[key] = e.Value.Clone()
		case CopyDate:
			fields[key] = value.Date(e.Millis)
		case Recurse:
			fields[key] = Patch(fields[key], e.Delta)
		}
	}
	return value.Object(fields)
}

func patchArray(orig value.Value, d *Delta) value.Value {
	elems := orig.Elements()
	for _, key := range d.Keys() {
		i, err := strconv.Atoi(key)
		if err != nil || i < 0 {
			// arrays only carry index keys
			continue
		}
		e := d.Edits[key]
		for len(elems) <= i {
			elems = append(elems, value.Null())
		}
		switch e.Kind {
		case Delete:
			elems[i] = value.Null()
		case Copy:
			elems[i] = e.Value.Clone()
		case CopyDate:
			elems[i] = value.Date(e.Millis)
		case Recurse:
			elems[i] = Patch(elems[i], e.Delta)
		}
	}

	splices := make([]Splice, len(d.Splices))
	copy(splices, d.Splices)
	sort.Slice(splices, func(i, j int) bool { return splices[i].Lo > splices[j].Lo })
	for _, s := range splices {
		lo, hi := s.Lo, s.Hi
		if lo < 0 {
			lo = 0
		}
		if hi >= len(elems) {
			hi = len(elems) - 1
		}
		if lo > hi {
			continue
		}
		elems = append(elems[:lo], elems[hi+1:]...)
	}
	return value.Array(elems...)
}
