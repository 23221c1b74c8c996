package delta

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/joeycumines/turnkeeper/internal/value"
)

// Wire opcodes of a keyed edit. Opcode 1 is the legacy splice marker and is
// not produced; splices travel in their own field.
const (
	opDelete   = 0
	opCopy     = 2
	opCopyDate = 3
)

type wireDelta struct {
	Edits   map[string]Edit `json:"edits,omitempty"`
	Splices [][2]int        `json:"splices,omitempty"`
	Replace []value.Value   `json:"replace,omitempty"`
}

// MarshalJSON implements json.Marshaler. An empty delta encodes as null.
func (d *Delta) MarshalJSON() ([]byte, error) {
	if d.Empty() {
		return []byte("null"), nil
	}
	w := wireDelta{Edits: d.Edits}
	if d.Replace != nil {
		// boxed so that a null replacement survives decoding
		w.Replace = []value.Value{*d.Replace}
	}
	for _, s := range d.Splices {
		w.Splices = append(w.Splices, [2]int{s.Lo, s.Hi})
	}
	return json.Marshal(w)
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Delta) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*d = Delta{}
		return nil
	}
	var w wireDelta
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("delta: %w", err)
	}
	out := Delta{Edits: w.Edits}
	switch len(w.Replace) {
	case 0:
	case 1:
		out.Replace = &w.Replace[0]
	default:
		return fmt.Errorf("delta: replace carries %d values", len(w.Replace))
	}
	for _, s := range w.Splices {
		if s[0] < 0 || s[1] < s[0] {
			return fmt.Errorf("delta: invalid splice [%d, %d]", s[0], s[1])
		}
		out.Splices = append(out.Splices, Splice{Lo: s[0], Hi: s[1]})
	}
	*d = out
	return nil
}

// MarshalJSON implements json.Marshaler.
func (e Edit) MarshalJSON() ([]byte, error) {
	switch e.Kind {
	case Delete:
		return json.Marshal([]any{opDelete})
	case Copy:
		return json.Marshal([]any{opCopy, e.Value})
	case CopyDate:
		return json.Marshal([]any{opCopyDate, e.Millis})
	case Recurse:
		if e.Delta.Empty() {
			return nil, fmt.Errorf("delta: empty nested delta")
		}
		return e.Delta.MarshalJSON()
	default:
		return nil, fmt.Errorf("delta: unknown edit kind %d", e.Kind)
	}
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *Edit) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("delta: empty edit")
	}
	if data[0] == '{' {
		var nested Delta
		if err := nested.UnmarshalJSON(data); err != nil {
			return err
		}
		*e = Edit{Kind: Recurse, Delta: &nested}
		return nil
	}

	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return fmt.Errorf("delta: edit: %w", err)
	}
	if len(parts) == 0 {
		return fmt.Errorf("delta: edit without opcode")
	}
	var op int
	if err := json.Unmarshal(parts[0], &op); err != nil {
		return fmt.Errorf("delta: opcode: %w", err)
	}
	switch {
	case op == opDelete && len(parts) == 1:
		*e = Edit{Kind: Delete}
	case op == opCopy && len(parts) == 2:
		var v value.Value
		if err := json.Unmarshal(parts[1], &v); err != nil {
			return fmt.Errorf("delta: copy value: %w", err)
		}
		*e = Edit{Kind: Copy, Value: v}
	case op == opCopyDate && len(parts) == 2:
		var ms int64
		if err := json.Unmarshal(parts[1], &ms); err != nil {
			var f float64
			if ferr := json.Unmarshal(parts[1], &f); ferr != nil {
				return fmt.Errorf("delta: copy date: %w", err)
			}
			ms = int64(f)
		}
		*e = Edit{Kind: CopyDate, Millis: ms}
	default:
		return fmt.Errorf("delta: malformed edit with opcode %d", op)
	}
	return nil
}
