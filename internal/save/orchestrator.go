package save

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/joeycumines/turnkeeper/internal/history"
	"github.com/joeycumines/turnkeeper/internal/storage"
	"github.com/joeycumines/turnkeeper/internal/value"
)

// StorageKey is the key the saves container is stored under.
const StorageKey = "saves"

// DefaultSlots is the default number of save slots.
const DefaultSlots = 8

// Opener provides the storage handle saves are kept in. *storage.Chain
// implements it.
type Opener interface {
	Open(persistent bool) (storage.Handle, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(persistent bool) (storage.Handle, error)

// Open implements Opener.
func (f OpenerFunc) Open(persistent bool) (storage.Handle, error) { return f(persistent) }

// Options configures an Orchestrator.
type Options struct {
	// ID identifies the story. Records with another ID are refused.
	ID string
	// Version is attached to every record.
	Version *value.Value
	// Slots is the number of save slots; negative selects DefaultSlots.
	Slots int
	// Autosave decides when MaybeAutosave writes.
	Autosave AutosavePolicy
	// AllowedWhen gates every save; nil always allows.
	AllowedWhen *Predicate
	// OnSave may amend a record before it is written, e.g. to attach
	// metadata. An error aborts the save.
	OnSave func(*Record) error
	// OnLoad may inspect a record before it is applied. An error aborts the
	// load. Both hooks run with the orchestrator locked and must not call
	// back into it.
	OnLoad func(*Record) error
	// Logger defaults to slog.Default().
	Logger *slog.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

// Orchestrator moves whole play sessions between a history and storage.
// It is safe for concurrent use.
type Orchestrator struct {
	mu      sync.Mutex
	opts    Options
	history *history.Manager
	opener  Opener
	logger  *slog.Logger

	initialized bool
	handle      storage.Handle
	initErr     error
	lastDigest  string
}

// New returns an orchestrator for h. Storage is opened lazily by Init or the
// first slot operation.
func New(h *history.Manager, opener Opener, opts Options) *Orchestrator {
	if opts.Slots < 0 {
		opts.Slots = DefaultSlots
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Orchestrator{opts: opts, history: h, opener: opener, logger: opts.Logger}
}

// Init opens storage and normalizes the stored container to the configured
// slot count. Repeated calls do nothing. A storage failure is logged and
// remembered: the story can continue, but OK reports false.
func (o *Orchestrator) Init() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.initLocked()
}

func (o *Orchestrator) initLocked() error {
	if o.initialized {
		return o.initErr
	}
	o.initialized = true
	if o.opener == nil {
		o.initErr = ErrUnavailable
		return o.initErr
	}
	h, err := o.opener.Open(true)
	if err != nil {
		o.logger.Warn("save: storage unavailable, saving disabled", "error", err)
		o.initErr = fmt.Errorf("%w: %w", ErrUnavailable, err)
		return o.initErr
	}
	o.handle = h

	if c, resized := o.readContainerLocked(); resized {
		if err := o.writeLocked(c); err != nil {
			o.logger.Warn("save: failed to store resized container", "error", err)
		}
	}
	return nil
}

// OK reports whether saves can be stored.
func (o *Orchestrator) OK() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.initLocked() == nil
}

// Close releases the storage handle.
func (o *Orchestrator) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.handle == nil {
		return nil
	}
	err := o.handle.Close()
	o.handle = nil
	o.initialized = false
	return err
}

// Container returns a copy of the stored container.
func (o *Orchestrator) Container() (*Container, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.initLocked(); err != nil {
		return nil, err
	}
	return o.readLocked(), nil
}

// Clear removes every save.
func (o *Orchestrator) Clear() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.initLocked(); err != nil {
		return err
	}
	o.lastDigest = ""
	return o.writeLocked(NewContainer(o.opts.Slots))
}

// readLocked loads the container, or an empty one if none is stored or the
// stored one is unreadable.
func (o *Orchestrator) readLocked() *Container {
	c, _ := o.readContainerLocked()
	return c
}

// readContainerLocked is readLocked, also reporting whether the stored
// container had to be resized to the configured slot count.
func (o *Orchestrator) readContainerLocked() (*Container, bool) {
	var c Container
	if !o.handle.Get(StorageKey, &c) {
		return NewContainer(o.opts.Slots), false
	}
	return &c, c.Resize(o.opts.Slots)
}

func (o *Orchestrator) writeLocked(c *Container) error {
	if c.IsEmpty() {
		return o.handle.Delete(StorageKey)
	}
	return o.handle.Set(StorageKey, c)
}

// Marshal captures the live history as a record.
func (o *Orchestrator) Marshal() (*Record, error) {
	snap := o.history.MarshalForSave()
	if len(snap.History) == 0 {
		return nil, ErrEmptyHistory
	}
	rec := &Record{
		ID:      o.opts.ID,
		Title:   snap.History[snap.Index].Title,
		Date:    o.opts.Now().UnixMilli(),
		Version: cloneValue(o.opts.Version),
		State: State{
			Delta:   history.DeltaEncode(snap.History),
			Index:   snap.Index,
			PRNG:    snap.PRNG,
			Expired: snap.Expired,
		},
	}
	if o.opts.OnSave != nil {
		if err := o.opts.OnSave(rec); err != nil {
			return nil, fmt.Errorf("save hook: %w", err)
		}
	}
	return rec, nil
}

// Unmarshal replaces the live history with rec. Any failure is returned as
// a *LoadError and leaves the live history untouched.
func (o *Orchestrator) Unmarshal(rec *Record) error {
	return o.apply(context.Background(), rec)
}

// apply is Unmarshal under the orchestrator lock. Nothing is applied once
// ctx is done.
func (o *Orchestrator) apply(ctx context.Context, rec *Record) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := o.unmarshal(rec); err != nil {
		le := loadError(err)
		o.logger.Warn("save: load failed", "message", le.Message, "error", err)
		return le
	}
	return nil
}

func (o *Orchestrator) unmarshal(rec *Record) error {
	if rec == nil {
		return fmt.Errorf("%w: no record", ErrMalformedSave)
	}
	if rec.ID == "" {
		return fmt.Errorf("%w: missing id", ErrMalformedSave)
	}
	snap, err := rec.Snapshot()
	if err != nil {
		return err
	}
	if o.opts.OnLoad != nil {
		if err := o.opts.OnLoad(rec); err != nil {
			return fmt.Errorf("load hook: %w", err)
		}
	}
	if rec.ID != o.opts.ID {
		return fmt.Errorf("%w: record is for %q, this story is %q", ErrIdentityMismatch, rec.ID, o.opts.ID)
	}
	return o.history.UnmarshalForSave(snap)
}

// allowed evaluates the AllowedWhen predicate.
func (o *Orchestrator) allowed() error {
	ok, err := o.opts.AllowedWhen.Eval(envFor(o.history, nil))
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotAllowed
	}
	return nil
}

// store marshals the live history and writes it with put.
func (o *Orchestrator) store(title string, metadata *value.Value, put func(c *Container, rec *Record) error) error {
	if err := o.allowed(); err != nil {
		return err
	}
	rec, err := o.Marshal()
	if err != nil {
		return err
	}
	if title != "" {
		rec.Title = title
	}
	if metadata != nil {
		rec.Metadata = cloneValue(metadata)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.initLocked(); err != nil {
		return err
	}
	c := o.readLocked()
	if err := put(c, rec); err != nil {
		return err
	}
	return o.writeLocked(c)
}

// load reads one record from the container with pick and applies it. It
// returns false, nil when pick finds nothing.
func (o *Orchestrator) load(pick func(c *Container) *Record) (bool, error) {
	o.mu.Lock()
	if err := o.initLocked(); err != nil {
		o.mu.Unlock()
		return false, err
	}
	rec := pick(o.readLocked())
	o.mu.Unlock()
	if rec == nil {
		return false, nil
	}
	if err := o.Unmarshal(rec); err != nil {
		return false, err
	}
	return true, nil
}

// remove deletes one record from the container with drop. It returns false
// when drop finds nothing.
func (o *Orchestrator) remove(drop func(c *Container) bool) (bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.initLocked(); err != nil {
		return false, err
	}
	c := o.readLocked()
	if !drop(c) {
		return false, nil
	}
	if err := o.writeLocked(c); err != nil {
		return false, err
	}
	return true, nil
}

func cloneValue(v *value.Value) *value.Value {
	if v == nil {
		return nil
	}
	c := v.Clone()
	return &c
}

// IsLoadError reports whether err is a *LoadError and returns its message.
func IsLoadError(err error) (string, bool) {
	var le *LoadError
	if errors.As(err, &le) {
		return le.Message, true
	}
	return "", false
}
