package save

import (
	"slices"

	"github.com/joeycumines/turnkeeper/internal/value"
)

// AutosavePolicy decides on which turns MaybeAutosave writes. With no
// field set, autosaving is off.
type AutosavePolicy struct {
	// Always autosaves every turn.
	Always bool
	// Tags autosaves turns whose passage carries any of these tags.
	Tags []string
	// When autosaves turns on which the predicate holds.
	When *Predicate
}

// Enabled reports whether the policy ever autosaves.
func (p AutosavePolicy) Enabled() bool {
	return p.Always || len(p.Tags) > 0 || p.When != nil
}

func (p AutosavePolicy) wants(env PredicateEnv) (bool, error) {
	if p.Always {
		return true, nil
	}
	for _, t := range env.Tags {
		if slices.Contains(p.Tags, t) {
			return true, nil
		}
	}
	if p.When != nil {
		return p.When.Eval(env)
	}
	return false, nil
}

// Autosave is the view of an Orchestrator's autosave.
type Autosave struct{ o *Orchestrator }

// Autosave returns the autosave operations.
func (o *Orchestrator) Autosave() Autosave { return Autosave{o} }

// OK reports whether the autosave can be used.
func (a Autosave) OK() bool { return a.o.OK() }

// Has reports whether an autosave exists.
func (a Autosave) Has() bool { return a.Get() != nil }

// Get returns the autosave, or nil.
func (a Autosave) Get() *Record {
	c, err := a.o.Container()
	if err != nil {
		return nil
	}
	return c.Autosave
}

// Load restores the autosave. It returns false, nil if there is none.
func (a Autosave) Load() (bool, error) {
	return a.o.load(func(c *Container) *Record { return c.Autosave })
}

// Save stores the live history as the autosave.
func (a Autosave) Save(title string, metadata *value.Value) error {
	return a.o.store(title, metadata, func(c *Container, rec *Record) error {
		c.Autosave = rec
		return nil
	})
}

// Delete removes the autosave. It returns false if there was none.
func (a Autosave) Delete() (bool, error) {
	return a.o.remove(func(c *Container) bool {
		if c.Autosave == nil {
			return false
		}
		c.Autosave = nil
		return true
	})
}

// MaybeAutosave writes the autosave if the policy wants this turn, tagged
// with tags. A turn whose history is unchanged since the last autosave is
// not written again. It reports whether a write happened.
func (o *Orchestrator) MaybeAutosave(tags []string) (bool, error) {
	policy := o.opts.Autosave
	if !policy.Enabled() || o.history.IsEmpty() {
		return false, nil
	}
	env := envFor(o.history, tags)
	ok, err := policy.wants(env)
	if err != nil || !ok {
		return false, err
	}

	snap := o.history.MarshalForSave()
	digest, err := value.Digest([]any{snap.History, snap.Index})
	if err != nil {
		return false, err
	}
	o.mu.Lock()
	unchanged := digest == o.lastDigest
	o.mu.Unlock()
	if unchanged {
		o.logger.Debug("save: autosave skipped, history unchanged")
		return false, nil
	}

	if err := o.Autosave().Save("", nil); err != nil {
		o.logger.Warn("save: autosave failed", "error", err)
		return false, err
	}
	o.mu.Lock()
	o.lastDigest = digest
	o.mu.Unlock()
	return true, nil
}
