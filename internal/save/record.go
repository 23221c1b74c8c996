// Package save serializes play sessions into slot and autosave records,
// persists them through a storage handle, and restores them atomically.
package save

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/joeycumines/turnkeeper/internal/history"
	"github.com/joeycumines/turnkeeper/internal/prng"
	"github.com/joeycumines/turnkeeper/internal/value"
)

var (
	// ErrMalformedSave is returned for records missing required fields or
	// carrying an undecodable history.
	ErrMalformedSave = errors.New("malformed save")

	// ErrIdentityMismatch is returned when a record belongs to another story.
	ErrIdentityMismatch = errors.New("save belongs to another story")

	// ErrNotAllowed is returned when saving is disallowed at this point.
	ErrNotAllowed = errors.New("saving is not allowed here")

	// ErrSlotRange is returned for slot indices outside the container.
	ErrSlotRange = errors.New("save slot out of range")

	// ErrEmptyHistory is returned when there is nothing to save.
	ErrEmptyHistory = errors.New("history is empty")

	// ErrUnavailable is returned when no storage is available for saves.
	ErrUnavailable = errors.New("save storage unavailable")
)

// LoadError is returned by every failed load. Message is suitable for
// display; Err carries the cause.
type LoadError struct {
	Message string
	Err     error
}

func (e *LoadError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *LoadError) Unwrap() error { return e.Err }

func loadError(err error) *LoadError {
	msg := "The save could not be loaded"
	switch {
	case errors.Is(err, ErrIdentityMismatch):
		msg = "The save is from a different story"
	case errors.Is(err, prng.ErrInvalidState):
		msg = "The save's random number state is corrupt"
	case errors.Is(err, ErrMalformedSave), errors.Is(err, history.ErrMalformedHistory):
		msg = "The save is missing required data or is corrupt"
	}
	return &LoadError{Message: msg, Err: err}
}

// State is the persisted history of a record.
type State struct {
	Delta   history.Encoded `json:"delta"`
	Index   int             `json:"index"`
	PRNG    *prng.State     `json:"prng,omitempty"`
	Expired []string        `json:"expired,omitempty"`
}

// Record is one saved play session. It is self-contained and outlives the
// history it was taken from.
type Record struct {
	ID       string       `json:"id"`
	Version  *value.Value `json:"version,omitempty"`
	Title    string       `json:"title"`
	Date     int64        `json:"date"`
	State    State        `json:"state"`
	Metadata *value.Value `json:"metadata,omitempty"`
}

type wireRecord struct {
	ID       *string         `json:"id"`
	Version  *value.Value    `json:"version,omitempty"`
	Title    string          `json:"title"`
	Date     float64         `json:"date"`
	State    json.RawMessage `json:"state"`
	Metadata *value.Value    `json:"metadata,omitempty"`
}

// UnmarshalJSON implements json.Unmarshaler. Legacy layouts are upgraded
// on the way in, so a decoded Record is always current.
func (r *Record) UnmarshalJSON(data []byte) error {
	var w wireRecord
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedSave, err)
	}
	if w.ID == nil {
		return fmt.Errorf("%w: missing id", ErrMalformedSave)
	}
	if len(w.State) == 0 || string(w.State) == "null" {
		return fmt.Errorf("%w: missing state", ErrMalformedSave)
	}
	var legacy LegacyState
	if err := json.Unmarshal(w.State, &legacy); err != nil {
		return err
	}
	st, err := Upgrade(legacy)
	if err != nil {
		return err
	}
	*r = Record{
		ID:       *w.ID,
		Version:  w.Version,
		Title:    w.Title,
		Date:     int64(w.Date),
		State:    st,
		Metadata: w.Metadata,
	}
	return nil
}

// Clone returns a deep copy of r, made through its JSON form.
func (r *Record) Clone() (*Record, error) {
	if r == nil {
		return nil, nil
	}
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal record: %w", err)
	}
	var copied Record
	if err := json.Unmarshal(data, &copied); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record copy: %w", err)
	}
	return &copied, nil
}

// Snapshot decodes the record's history.
func (r *Record) Snapshot() (history.Snapshot, error) {
	moments, err := history.DeltaDecode(r.State.Delta)
	if err != nil {
		return history.Snapshot{}, err
	}
	if len(moments) == 0 {
		return history.Snapshot{}, fmt.Errorf("%w: no moments", ErrMalformedSave)
	}
	if r.State.Index < 0 || r.State.Index >= len(moments) {
		return history.Snapshot{}, fmt.Errorf("%w: index %d out of range", ErrMalformedSave, r.State.Index)
	}
	s := history.Snapshot{
		History: moments,
		Index:   r.State.Index,
		Expired: append([]string(nil), r.State.Expired...),
	}
	if r.State.PRNG != nil {
		p := *r.State.PRNG
		s.PRNG = &p
	}
	return s, nil
}
