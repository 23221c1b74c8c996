package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Settings is the typed, fully resolved configuration: for every option the
// environment override, else the config file, else the schema default.
type Settings struct {
	StoryID      string
	StoryVersion string

	MaxStates int

	Slots        int
	Autosave     bool
	AutosaveTags []string
	AutosaveWhen string
	AllowedWhen  string

	StorageChain   string
	StorageDir     string
	QuotaBytes     int
	CookieMaxBytes int

	PRNGEnabled bool
	PRNGSeed    string

	ScriptTimeout time.Duration

	LogFile      string
	LogLevel     string
	LogMaxSizeMB int
	LogMaxFiles  int
}

// Settings resolves c against the schema. Values that do not parse as their
// declared type are errors; the config file loader only warns about them.
func (s *ConfigSchema) Settings(c *Config) (Settings, error) {
	r := resolver{schema: s, config: c}
	out := Settings{
		StoryID:        r.str("story.id"),
		StoryVersion:   r.str("story.version"),
		MaxStates:      r.int("history.max-states"),
		Slots:          r.int("saves.slots"),
		Autosave:       r.bool("saves.autosave"),
		AutosaveTags:   r.list("saves.autosave-tags"),
		AutosaveWhen:   r.str("saves.autosave-when"),
		AllowedWhen:    r.str("saves.allowed-when"),
		StorageChain:   r.str("storage.chain"),
		StorageDir:     r.str("storage.dir"),
		QuotaBytes:     r.int("storage.quota-bytes"),
		CookieMaxBytes: r.int("storage.cookie-max-bytes"),
		PRNGEnabled:    r.bool("prng.enabled"),
		PRNGSeed:       r.str("prng.seed"),
		ScriptTimeout:  r.duration("script.timeout"),
		LogFile:        r.str("log.file"),
		LogLevel:       r.str("log.level"),
		LogMaxSizeMB:   r.int("log.max-size-mb"),
		LogMaxFiles:    r.int("log.max-files"),
	}
	if r.err != nil {
		return Settings{}, r.err
	}
	if out.Slots < 0 {
		return Settings{}, fmt.Errorf("saves.slots cannot be negative: %d", out.Slots)
	}
	if out.MaxStates < 0 {
		return Settings{}, fmt.Errorf("history.max-states cannot be negative: %d", out.MaxStates)
	}
	return out, nil
}

// resolver records the first parse failure.
type resolver struct {
	schema *ConfigSchema
	config *Config
	err    error
}

func (r *resolver) str(key string) string {
	return strings.TrimSpace(r.schema.Resolve(r.config, key))
}

func (r *resolver) fail(key, v, want string) {
	if r.err == nil {
		r.err = fmt.Errorf("option %q: expected %s, got %q", key, want, v)
	}
}

func (r *resolver) int(key string) int {
	v := r.str(key)
	if v == "" {
		return 0
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		r.fail(key, v, "int")
	}
	return i
}

func (r *resolver) bool(key string) bool {
	v := r.str(key)
	if v == "" {
		return false
	}
	b, err := parseBool(v)
	if err != nil {
		r.fail(key, v, "bool")
	}
	return b
}

func (r *resolver) duration(key string) time.Duration {
	v := r.str(key)
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.fail(key, v, "duration")
	}
	return d
}

func (r *resolver) list(key string) []string {
	return SplitList(r.str(key))
}

// SplitList splits a comma-separated list, dropping empty items.
func SplitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
