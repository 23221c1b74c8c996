package history

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/joeycumines/turnkeeper/internal/delta"
)

// Encoded is a delta-encoded history: the first moment in full, then for
// every later moment the delta from its predecessor. A nil delta means the
// moment equals its predecessor.
//
// In JSON it is the array [moment0, delta1, ..., deltaN].
type Encoded struct {
	First  *Moment
	Deltas []*delta.Delta
}

// Len returns the number of moments encoded.
func (e Encoded) Len() int {
	if e.First == nil {
		return 0
	}
	return 1 + len(e.Deltas)
}

// DeltaEncode compacts moments. It does not modify its input.
func DeltaEncode(moments []Moment) Encoded {
	if len(moments) == 0 {
		return Encoded{}
	}
	first := moments[0].Clone()
	enc := Encoded{First: &first, Deltas: make([]*delta.Delta, 0, len(moments)-1)}
	prev := moments[0].toValue()
	for _, m := range moments[1:] {
		cur := m.toValue()
		enc.Deltas = append(enc.Deltas, delta.Diff(prev, cur))
		prev = cur
	}
	return enc
}

// DeltaDecode expands e back into full moments, patching forward from the
// first.
func DeltaDecode(e Encoded) ([]Moment, error) {
	if e.First == nil {
		if len(e.Deltas) != 0 {
			return nil, fmt.Errorf("%w: deltas without a first moment", ErrMalformedHistory)
		}
		return nil, nil
	}
	moments := make([]Moment, 0, e.Len())
	moments = append(moments, e.First.Clone())
	cur := e.First.toValue()
	for i, d := range e.Deltas {
		cur = delta.Patch(cur, d)
		m, err := momentFromValue(cur)
		if err != nil {
			return nil, fmt.Errorf("moment %d: %w", i+1, err)
		}
		moments = append(moments, m)
	}
	return moments, nil
}

// MarshalJSON implements json.Marshaler.
func (e Encoded) MarshalJSON() ([]byte, error) {
	if e.First == nil {
		return []byte("[]"), nil
	}
	items := make([]any, 0, e.Len())
	items = append(items, e.First)
	for _, d := range e.Deltas {
		items = append(items, d)
	}
	return json.Marshal(items)
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *Encoded) UnmarshalJSON(data []byte) error {
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedHistory, err)
	}
	if len(items) == 0 {
		*e = Encoded{}
		return nil
	}
	var first Moment
	if err := json.Unmarshal(items[0], &first); err != nil {
		return err
	}
	out := Encoded{First: &first, Deltas: make([]*delta.Delta, 0, len(items)-1)}
	for i, raw := range items[1:] {
		if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
			out.Deltas = append(out.Deltas, nil)
			continue
		}
		d := new(delta.Delta)
		if err := json.Unmarshal(raw, d); err != nil {
			return fmt.Errorf("%w: delta %d: %w", ErrMalformedHistory, i+1, err)
		}
		out.Deltas = append(out.Deltas, d)
	}
	*e = out
	return nil
}
