package save

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/joeycumines/turnkeeper/internal/history"
	"github.com/joeycumines/turnkeeper/internal/prng"
)

// LegacyState is a record state in any layout ever written:
//
//   - current: {"delta": [...], "index": n, "prng"?: {...}, "expired"?: [...]}
//   - full history: {"history": [moment, ...], "index"?: n, ...}
//   - bare history: [moment, ...]
type LegacyState struct {
	History []history.Moment
	Delta   *history.Encoded
	Index   *int
	PRNG    *prng.State
	Expired []string
}

type legacyStateObject struct {
	History []history.Moment `json:"history"`
	Delta   *history.Encoded `json:"delta"`
	Index   *int             `json:"index"`
	PRNG    *prng.State      `json:"prng"`
	Expired []string         `json:"expired"`
}

// UnmarshalJSON implements json.Unmarshaler.
func (l *LegacyState) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var moments []history.Moment
		if err := json.Unmarshal(data, &moments); err != nil {
			return fmt.Errorf("%w: history: %w", ErrMalformedSave, err)
		}
		*l = LegacyState{History: moments}
		return nil
	}
	var o legacyStateObject
	if err := json.Unmarshal(data, &o); err != nil {
		return fmt.Errorf("%w: state: %w", ErrMalformedSave, err)
	}
	*l = LegacyState(o)
	return nil
}

// Upgrade converts a state in any layout to the current one. It does not
// modify its input.
func Upgrade(l LegacyState) (State, error) {
	var st State
	switch {
	case l.Delta != nil:
		st.Delta = *l.Delta
	case l.History != nil:
		st.Delta = history.DeltaEncode(l.History)
	default:
		return State{}, fmt.Errorf("%w: state has neither delta nor history", ErrMalformedSave)
	}
	n := st.Delta.Len()
	if n == 0 {
		return State{}, fmt.Errorf("%w: state has no moments", ErrMalformedSave)
	}
	if l.Index != nil {
		st.Index = *l.Index
	} else {
		st.Index = n - 1
	}
	if st.Index < 0 || st.Index >= n {
		return State{}, fmt.Errorf("%w: index %d out of range [0, %d)", ErrMalformedSave, st.Index, n)
	}
	if l.PRNG != nil {
		p := *l.PRNG
		st.PRNG = &p
	}
	st.Expired = append([]string(nil), l.Expired...)
	return st, nil
}
