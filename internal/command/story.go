package command

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/joeycumines/turnkeeper/internal/config"
	"github.com/joeycumines/turnkeeper/internal/history"
	"github.com/joeycumines/turnkeeper/internal/prng"
	"github.com/joeycumines/turnkeeper/internal/save"
	"github.com/joeycumines/turnkeeper/internal/storage"
	"github.com/joeycumines/turnkeeper/internal/value"
)

// SessionKey is the storage key the live play session is kept under
// between invocations.
const SessionKey = "session"

// ErrNoStory is returned by story commands when no story id is configured.
var ErrNoStory = errors.New("story.id is not set; run 'turnkeeper init' first")

// Env is what every command shares: the loaded configuration and the
// process's standard input.
type Env struct {
	Config *config.Config
	// ConfigPath is where config changes are written; empty skips writing.
	ConfigPath string
	Stdin      io.Reader
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

func (e *Env) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

// Settings resolves the typed configuration.
func (e *Env) Settings() (config.Settings, error) {
	cfg := e.Config
	if cfg == nil {
		cfg = config.NewConfig()
	}
	return config.DefaultSchema().Settings(cfg)
}

// Chain builds the storage chain for namespace from the configured adapters.
func (e *Env) Chain(s config.Settings, namespace string) (*storage.Chain, error) {
	adapters, err := storage.ParseChain(s.StorageChain, storage.Options{
		Dir:            s.StorageDir,
		QuotaBytes:     s.QuotaBytes,
		CookieMaxBytes: s.CookieMaxBytes,
	})
	if err != nil {
		return nil, err
	}
	return storage.NewChain(namespace, adapters, e.logger()), nil
}

// Story is one opened play session: the history restored from storage and
// the save orchestrator bound to it.
type Story struct {
	Settings config.Settings
	History  *history.Manager
	Saves    *save.Orchestrator
	Chain    *storage.Chain

	handle storage.Handle
	logger *slog.Logger
}

// liveSession is the stored form of a play session between invocations.
// Record is absent until the first turn; Active holds the working
// variables, which may have changed since the active moment was created.
type liveSession struct {
	Record *save.Record `json:"record,omitempty"`
	Active value.Value  `json:"active"`
}

// OpenStory opens the configured story's storage and restores the live
// session from it. Close releases it.
func (e *Env) OpenStory() (*Story, error) {
	settings, err := e.Settings()
	if err != nil {
		return nil, err
	}
	if settings.StoryID == "" {
		return nil, ErrNoStory
	}
	logger := e.logger()

	chain, err := e.Chain(settings, settings.StoryID)
	if err != nil {
		return nil, err
	}
	handle, err := chain.Open(true)
	if err != nil {
		return nil, fmt.Errorf("failed to open story storage: %w", err)
	}

	var gen *prng.PRNG
	if settings.PRNGEnabled {
		seed := settings.PRNGSeed
		if seed == "" {
			if seed, err = prng.NewSeed(); err != nil {
				_ = handle.Close()
				return nil, err
			}
		}
		gen = prng.New(seed)
	}
	h := history.New(history.Options{MaxStates: settings.MaxStates, PRNG: gen, Logger: logger})

	opts := save.Options{
		ID:       settings.StoryID,
		Slots:    settings.Slots,
		Autosave: save.AutosavePolicy{Always: settings.Autosave, Tags: settings.AutosaveTags},
		Logger:   logger,
	}
	if settings.StoryVersion != "" {
		v := value.Parse(settings.StoryVersion)
		opts.Version = &v
	}
	if opts.Autosave.When, err = save.CompilePredicate(settings.AutosaveWhen); err != nil {
		_ = handle.Close()
		return nil, fmt.Errorf("saves.autosave-when: %w", err)
	}
	if opts.AllowedWhen, err = save.CompilePredicate(settings.AllowedWhen); err != nil {
		_ = handle.Close()
		return nil, fmt.Errorf("saves.allowed-when: %w", err)
	}

	// the fs adapter locks its directory per handle, so saves share ours
	opener := save.OpenerFunc(func(persistent bool) (storage.Handle, error) {
		if !persistent {
			return chain.Open(false)
		}
		return sharedHandle{handle}, nil
	})

	s := &Story{
		Settings: settings,
		History:  h,
		Saves:    save.New(h, opener, opts),
		Chain:    chain,
		handle:   handle,
		logger:   logger,
	}
	s.restore()
	return s, nil
}

// restore loads the stored session. A session that no longer applies is
// discarded with a warning, leaving a fresh history.
func (s *Story) restore() {
	var ls liveSession
	if !s.handle.Get(SessionKey, &ls) {
		return
	}
	if ls.Record != nil {
		if err := s.Saves.Unmarshal(ls.Record); err != nil {
			s.logger.Warn("session: discarding stored session", "error", err)
			return
		}
	}
	if ls.Active.Kind() == value.KindObject {
		if err := s.History.SetVariables(ls.Active); err != nil {
			s.logger.Warn("session: discarding stored variables", "error", err)
		}
	}
}

// Persist stores the live session for the next invocation.
func (s *Story) Persist() error {
	rec, err := s.Saves.Marshal()
	switch {
	case errors.Is(err, save.ErrEmptyHistory):
		rec = nil
	case err != nil:
		return err
	}
	active := s.History.Variables()
	if rec == nil && active.Len() == 0 {
		return s.handle.Delete(SessionKey)
	}
	if err := s.handle.Set(SessionKey, liveSession{Record: rec, Active: active}); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	return nil
}

// Adapter returns the name of the adapter the story is stored with.
func (s *Story) Adapter() string { return s.handle.Name() }

// Close releases the story's storage.
func (s *Story) Close() error {
	return errors.Join(s.Saves.Close(), s.handle.Close())
}

// sharedHandle lends a handle without giving away its Close.
type sharedHandle struct{ storage.Handle }

func (sharedHandle) Close() error { return nil }

// withStory opens the story, runs fn, and persists the session afterwards
// when mutate is set and fn succeeded.
func (e *Env) withStory(mutate bool, fn func(*Story) error) (err error) {
	s, err := e.OpenStory()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	if err := fn(s); err != nil {
		return err
	}
	if mutate {
		return s.Persist()
	}
	return nil
}
