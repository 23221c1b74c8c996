package history

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/joeycumines/turnkeeper/internal/prng"
	"github.com/joeycumines/turnkeeper/internal/value"
)

// Moment is one turn: the passage title and the variables as they stood
// when the turn began.
type Moment struct {
	Title     string
	Variables value.Value
	// Pull is the PRNG pull count when the moment was created.
	Pull int
}

// Clone returns a deep copy of m.
func (m Moment) Clone() Moment {
	m.Variables = m.Variables.Clone()
	return m
}

// toValue returns m as an object value, the form moments are diffed in.
func (m Moment) toValue() value.Value {
	fields := map[string]value.Value{
		"title":     value.String(m.Title),
		"variables": m.Variables,
	}
	if m.Pull != 0 {
		fields["pull"] = value.Int(int64(m.Pull))
	}
	return value.Object(fields)
}

func momentFromValue(v value.Value) (Moment, error) {
	if v.Kind() != value.KindObject {
		return Moment{}, fmt.Errorf("%w: moment is %s, not object", ErrMalformedHistory, v.Kind())
	}
	title, ok := v.Field("title")
	if !ok || title.Kind() != value.KindString {
		return Moment{}, fmt.Errorf("%w: moment title missing", ErrMalformedHistory)
	}
	vars, ok := v.Field("variables")
	if !ok {
		return Moment{}, fmt.Errorf("%w: moment %q has no variables", ErrMalformedHistory, title.Text())
	}
	m := Moment{Title: title.Text(), Variables: vars}
	if p, ok := v.Field("pull"); ok {
		n := p.Number()
		if p.Kind() != value.KindNumber || n < 0 || n > prng.MaxPull || n != math.Trunc(n) {
			return Moment{}, fmt.Errorf("%w: moment %q has invalid pull", ErrMalformedHistory, m.Title)
		}
		m.Pull = int(n)
	}
	return m, nil
}

// MarshalJSON implements json.Marshaler.
func (m Moment) MarshalJSON() ([]byte, error) {
	return m.toValue().MarshalJSON()
}

// UnmarshalJSON implements json.Unmarshaler.
func (m *Moment) UnmarshalJSON(data []byte) error {
	var v value.Value
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedHistory, err)
	}
	out, err := momentFromValue(v)
	if err != nil {
		return err
	}
	*m = out
	return nil
}
