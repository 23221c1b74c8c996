package config

import (
	"os"
	"slices"
	"strings"
	"testing"
	"time"
)

func TestSchemaLookupAndIsKnown(t *testing.T) {
	t.Parallel()
	s := NewSchema()
	s.Register(ConfigOption{Key: "story.id", Type: TypeString})
	s.Register(ConfigOption{Key: "dir", Type: TypeString, Section: "export"})

	if opt := s.Lookup("", "story.id"); opt == nil || opt.Key != "story.id" {
		t.Fatalf("expected story.id, got %+v", opt)
	}
	if s.Lookup("", "dir") != nil {
		t.Error("section option must not be global")
	}
	if !s.IsKnown("export", "dir") || !s.IsKnown("export", "story.id") {
		t.Error("expected section and global keys known in [export]")
	}
	if s.IsKnown("export", "nope") {
		t.Error("expected unknown key")
	}
	if got := s.Sections(); !slices.Equal(got, []string{"export"}) {
		t.Errorf("unexpected sections %v", got)
	}
}

func TestSchemaSplitKey(t *testing.T) {
	t.Parallel()
	s := NewSchema()
	s.Register(ConfigOption{Key: "story.id", Type: TypeString})
	s.Register(ConfigOption{Key: "dir", Type: TypeString, Section: "export"})
	s.Register(ConfigOption{Key: "id", Type: TypeString, Section: "story"})

	for name, want := range map[string][2]string{
		"story.id":   {"", "story.id"},
		"export.dir": {"export", "dir"},
		"export.nop": {"", "export.nop"},
		"plain":      {"", "plain"},
	} {
		if sec, key := s.SplitKey(name); sec != want[0] || key != want[1] {
			t.Errorf("SplitKey(%q) = %q, %q; want %q, %q", name, sec, key, want[0], want[1])
		}
	}
}

func TestValidateType(t *testing.T) {
	t.Parallel()
	for _, tc := range []struct {
		typ   OptionType
		value string
		ok    bool
	}{
		{TypeString, "anything at all", true},
		{TypeList, "a,,b", true},
		{TypeBool, "yes", true},
		{TypeBool, "maybe", false},
		{TypeInt, "42", true},
		{TypeInt, "4.2", false},
		{TypeDuration, "250ms", true},
		{TypeDuration, "soon", false},
		{TypeExpr, "", true},
		{TypeExpr, `vars.gold > 3 && HasTag("x")`, true},
		{TypeExpr, "turns >", false},
		{OptionType("weird"), "x", false},
	} {
		err := validateType(tc.typ, tc.value)
		if (err == nil) != tc.ok {
			t.Errorf("validateType(%s, %q) = %v, want ok=%v", tc.typ, tc.value, err, tc.ok)
		}
	}
}

func TestSchemaResolve(t *testing.T) {
	s := NewSchema()
	s.Register(ConfigOption{Key: "prng.seed", Default: "fixed", EnvVar: "TURNKEEPER_TEST_RESOLVE_SEED"})
	s.Register(ConfigOption{Key: "story.id", Default: "none"})

	c := NewConfig()
	c.SetGlobalOption("prng.seed", "from-file")

	if v := s.Resolve(c, "prng.seed"); v != "from-file" {
		t.Fatalf("expected config value, got %q", v)
	}
	t.Setenv("TURNKEEPER_TEST_RESOLVE_SEED", "from-env")
	if v := s.Resolve(c, "prng.seed"); v != "from-env" {
		t.Fatalf("expected env value, got %q", v)
	}
	os.Unsetenv("TURNKEEPER_TEST_RESOLVE_SEED")
	if v := s.Resolve(NewConfig(), "prng.seed"); v != "fixed" {
		t.Fatalf("expected default, got %q", v)
	}
	if v := s.Resolve(c, "story.id"); v != "none" {
		t.Fatalf("expected default, got %q", v)
	}
	if v := s.Resolve(c, "unknown"); v != "" {
		t.Fatalf("expected empty, got %q", v)
	}
}

func TestDefaultSchema_Settings(t *testing.T) {
	for _, k := range []string{"TURNKEEPER_STORY_ID", "TURNKEEPER_STORAGE", "TURNKEEPER_DATA_DIR", "TURNKEEPER_SEED", "TURNKEEPER_LOG_FILE", "TURNKEEPER_LOG_LEVEL"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
	s := DefaultSchema()

	got, err := s.Settings(NewConfig())
	if err != nil {
		t.Fatalf("Settings returned error: %v", err)
	}
	if got.MaxStates != 100 || got.Slots != 8 || got.CookieMaxBytes != 4093 {
		t.Errorf("unexpected defaults %+v", got)
	}
	if got.StorageChain != "sqlite,fs,cookie" || !got.PRNGEnabled || got.ScriptTimeout != 5*time.Second {
		t.Errorf("unexpected defaults %+v", got)
	}
	if got.LogLevel != "info" || got.LogMaxSizeMB != 10 || got.LogMaxFiles != 5 {
		t.Errorf("unexpected defaults %+v", got)
	}

	c, err := LoadFromReader(strings.NewReader("saves.autosave-tags checkpoint, safe ,\nsaves.autosave on\nhistory.max-states 0\n"))
	if err != nil {
		t.Fatal(err)
	}
	t.Setenv("TURNKEEPER_STORY_ID", "env-story")
	got, err = s.Settings(c)
	if err != nil {
		t.Fatalf("Settings returned error: %v", err)
	}
	if !slices.Equal(got.AutosaveTags, []string{"checkpoint", "safe"}) || !got.Autosave || got.MaxStates != 0 {
		t.Errorf("unexpected settings %+v", got)
	}
	if got.StoryID != "env-story" {
		t.Errorf("expected env story id, got %q", got.StoryID)
	}

	bad := NewConfig()
	bad.SetGlobalOption("saves.slots", "-1")
	if _, err := s.Settings(bad); err == nil {
		t.Error("expected negative slots to fail")
	}
	bad.SetGlobalOption("saves.slots", "lots")
	if _, err := s.Settings(bad); err == nil || !strings.Contains(err.Error(), "saves.slots") {
		t.Errorf("expected parse error naming saves.slots, got %v", err)
	}
}

func TestFormatHelp(t *testing.T) {
	t.Parallel()
	help := DefaultSchema().FormatHelp()
	for _, want := range []string{"Global Options:", "story.id", "env: TURNKEEPER_LOG_LEVEL", "[export] Options:", "default: sqlite,fs,cookie"} {
		if !strings.Contains(help, want) {
			t.Errorf("help missing %q", want)
		}
	}
}
