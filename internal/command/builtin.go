package command

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/joeycumines/turnkeeper/internal/config"
	"github.com/joeycumines/turnkeeper/internal/storage"
	"github.com/joeycumines/turnkeeper/internal/value"
)

// HelpCommand displays help information for commands.
type HelpCommand struct {
	*BaseCommand
	registry *Registry
}

// NewHelpCommand creates a new help command.
func NewHelpCommand(registry *Registry) *HelpCommand {
	return &HelpCommand{
		BaseCommand: NewBaseCommand(
			"help",
			"Display help information for commands",
			"help [command]",
		),
		registry: registry,
	}
}

// Execute displays help information.
func (c *HelpCommand) Execute(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		_, _ = fmt.Fprintln(stdout, "turnkeeper - turn history, saves and seeded randomness for interactive stories")
		_, _ = fmt.Fprintln(stdout, "")
		_, _ = fmt.Fprintln(stdout, "Usage: turnkeeper [-config path] [-log-level level] <command> [options] [args...]")
		_, _ = fmt.Fprintln(stdout, "")
		_, _ = fmt.Fprintln(stdout, "Available commands:")

		w := tabwriter.NewWriter(stdout, 0, 8, 2, ' ', 0)
		for _, name := range c.registry.List() {
			if cmd, err := c.registry.Get(name); err == nil {
				_, _ = fmt.Fprintf(w, "  %s\t%s\n", name, cmd.Description())
			}
		}
		_ = w.Flush()

		_, _ = fmt.Fprintln(stdout, "")
		_, _ = fmt.Fprintln(stdout, "Use 'turnkeeper help <command>' for more information about a specific command (includes flags).")
		return nil
	}

	cmdName := args[0]
	cmd, err := c.registry.Get(cmdName)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Unknown command: %s\n", cmdName)
		return err
	}

	_, _ = fmt.Fprintf(stdout, "Command: %s\n", cmd.Name())
	_, _ = fmt.Fprintf(stdout, "Description: %s\n", cmd.Description())
	_, _ = fmt.Fprintf(stdout, "Usage: %s\n", cmd.Usage())

	// flags are discovered by running SetupFlags on a scratch FlagSet
	fs := flag.NewFlagSet(cmd.Name(), flag.ContinueOnError)
	buf := &bytes.Buffer{}
	fs.SetOutput(buf)
	cmd.SetupFlags(fs)
	fs.PrintDefaults()
	if buf.Len() > 0 {
		_, _ = fmt.Fprintln(stdout, "")
		_, _ = fmt.Fprintln(stdout, "Flags:")
		_, _ = fmt.Fprint(stdout, buf.String())
	}
	return nil
}

// VersionCommand displays version information.
type VersionCommand struct {
	*BaseCommand
	version string
}

// NewVersionCommand creates a new version command.
func NewVersionCommand(version string) *VersionCommand {
	return &VersionCommand{
		BaseCommand: NewBaseCommand(
			"version",
			"Display version information",
			"version",
		),
		version: version,
	}
}

// Execute displays version information.
func (c *VersionCommand) Execute(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if err := c.checkArgs(args, 0, 0, stderr); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(stdout, "turnkeeper version %s\n", c.version)
	return nil
}

// ConfigCommand manages configuration.
type ConfigCommand struct {
	*BaseCommand
	env        *Env
	showGlobal bool
	showAll    bool
}

// NewConfigCommand creates a new config command.
func NewConfigCommand(env *Env) *ConfigCommand {
	return &ConfigCommand{
		BaseCommand: NewBaseCommand(
			"config",
			"Manage configuration settings",
			"config [options] [key] [value]",
		),
		env: env,
	}
}

// SetupFlags configures the flags for the config command.
func (c *ConfigCommand) SetupFlags(fs *flag.FlagSet) {
	fs.BoolVar(&c.showGlobal, "global", false, "Show only global configuration")
	fs.BoolVar(&c.showAll, "all", false, "Show all configuration (global and section options)")
}

// Execute manages configuration.
func (c *ConfigCommand) Execute(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	cfg := c.env.Config
	if cfg == nil {
		cfg = config.NewConfig()
		c.env.Config = cfg
	}

	if len(args) == 0 {
		switch {
		case c.showAll:
			printOptions(stdout, "Global configuration:", "  ", cfg.Global)
			_, _ = fmt.Fprintln(stdout, "\nSection configuration:")
			for _, section := range slices.Sorted(maps.Keys(cfg.Commands)) {
				printOptions(stdout, "  ["+section+"]", "    ", cfg.Commands[section])
			}
		case c.showGlobal:
			printOptions(stdout, "Global configuration:", "  ", cfg.Global)
		default:
			_, _ = fmt.Fprintln(stdout, "Configuration management:")
			_, _ = fmt.Fprintln(stdout, "  config <key>          - Get configuration value")
			_, _ = fmt.Fprintln(stdout, "  config <key> <value>  - Set configuration value")
			_, _ = fmt.Fprintln(stdout, "  config --global       - Show global configuration")
			_, _ = fmt.Fprintln(stdout, "  config --all          - Show all configuration")
			_, _ = fmt.Fprintln(stdout, "  config validate       - Validate configuration")
			_, _ = fmt.Fprintln(stdout, "  config schema         - Show configuration schema")
		}
		return nil
	}

	switch args[0] {
	case "validate":
		return c.executeValidate(cfg, stdout)
	case "schema":
		_, _ = fmt.Fprint(stdout, config.DefaultSchema().FormatHelp())
		return nil
	}

	schema := config.DefaultSchema()
	section, key := schema.SplitKey(args[0])
	switch len(args) {
	case 1:
		name := args[0]
		if section != "" {
			v, ok := cfg.Commands[section][key]
			if !ok {
				v = schema.Lookup(section, key).Default
			}
			_, _ = fmt.Fprintf(stdout, "%s: %s\n", name, v)
			return nil
		}
		// env, then config file, then default
		if v := schema.Resolve(cfg, key); v != "" {
			_, _ = fmt.Fprintf(stdout, "%s: %s\n", name, v)
		} else if _, exists := cfg.GetGlobalOption(key); exists {
			_, _ = fmt.Fprintf(stdout, "%s: \n", name)
		} else {
			_, _ = fmt.Fprintf(stdout, "Configuration key '%s' not found\n", name)
		}
		return nil
	case 2:
		v := args[1]
		if section == "" {
			cfg.SetGlobalOption(key, v)
		} else {
			cfg.SetCommandOption(section, key, v)
		}
		if c.env.ConfigPath != "" {
			if err := config.SetOptionInFile(c.env.ConfigPath, section, key, v); err != nil {
				_, _ = fmt.Fprintf(stderr, "Warning: failed to persist config to disk: %v\n", err)
			}
		}
		_, _ = fmt.Fprintf(stdout, "Set configuration: %s = %s\n", args[0], v)
		return nil
	}

	_, _ = fmt.Fprintln(stderr, "Invalid number of arguments")
	return fmt.Errorf("invalid arguments")
}

func printOptions(w io.Writer, heading, indent string, options map[string]string) {
	_, _ = fmt.Fprintln(w, heading)
	for _, key := range slices.Sorted(maps.Keys(options)) {
		_, _ = fmt.Fprintf(w, "%s%s: %s\n", indent, key, options[key])
	}
}

// executeValidate validates the current config against the schema.
func (c *ConfigCommand) executeValidate(cfg *config.Config, stdout io.Writer) error {
	issues := config.ValidateConfig(cfg, config.DefaultSchema())
	if _, err := config.DefaultSchema().Settings(cfg); err != nil {
		issues = append(issues, err.Error())
	}
	if len(issues) == 0 {
		_, _ = fmt.Fprintln(stdout, "Configuration is valid.")
		return nil
	}
	_, _ = fmt.Fprintf(stdout, "Configuration has %d issue(s):\n", len(issues))
	for _, issue := range issues {
		_, _ = fmt.Fprintf(stdout, "  - %s\n", issue)
	}
	return nil
}

// InitCommand writes a starter config file with a fresh story id.
type InitCommand struct {
	*BaseCommand
	env   *Env
	force bool
	id    string
}

// NewInitCommand creates a new init command.
func NewInitCommand(env *Env) *InitCommand {
	return &InitCommand{
		BaseCommand: NewBaseCommand(
			"init",
			"Create a configuration file for a new story",
			"init [options]",
		),
		env: env,
	}
}

// SetupFlags configures the flags for the init command.
func (c *InitCommand) SetupFlags(fs *flag.FlagSet) {
	fs.BoolVar(&c.force, "force", false, "Force initialization even if config already exists")
	fs.StringVar(&c.id, "id", "", "Story id (default: a random UUID)")
}

const configTemplate = `# turnkeeper configuration file
# Format: optionName remainingLineIsTheValue
# Use [section] blocks for command options; see 'turnkeeper config schema'.

story.id %s

# history.max-states 100
# saves.slots 8
# saves.autosave false
# saves.autosave-tags checkpoint
# saves.autosave-when turns %% 5 == 0
# saves.allowed-when !HasTag("combat")
# storage.chain sqlite,fs,cookie
# prng.seed fixed-seed

[history]
limit 0
`

// Execute writes the config file.
func (c *InitCommand) Execute(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if err := c.checkArgs(args, 0, 0, stderr); err != nil {
		return err
	}
	configPath := c.env.ConfigPath
	if configPath == "" {
		var err error
		if configPath, err = config.GetConfigPath(); err != nil {
			return fmt.Errorf("failed to get config path: %w", err)
		}
	}

	if _, err := os.Stat(configPath); err == nil && !c.force {
		_, _ = fmt.Fprintf(stdout, "Configuration already exists at: %s\n", configPath)
		_, _ = fmt.Fprintln(stdout, "Use --force to overwrite existing configuration")
		return nil
	}

	id := c.id
	if id == "" {
		id = uuid.NewString()
	}
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := storage.AtomicWriteFile(configPath, fmt.Appendf(nil, configTemplate, id), 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	cfg, err := config.LoadFromPath(configPath)
	if err != nil {
		return err
	}
	c.env.Config = cfg
	c.env.ConfigPath = configPath

	_, _ = fmt.Fprintf(stdout, "Configuration initialized at: %s\n", configPath)
	_, _ = fmt.Fprintf(stdout, "Story id: %s\n", id)
	return nil
}

// AdaptersCommand shows the storage adapters and which one is in use.
type AdaptersCommand struct {
	*BaseCommand
	env *Env
}

// NewAdaptersCommand creates a new adapters command.
func NewAdaptersCommand(env *Env) *AdaptersCommand {
	return &AdaptersCommand{
		BaseCommand: NewBaseCommand("adapters", "Show the storage adapters and the one in use", "adapters"),
		env:         env,
	}
}

// Execute probes the configured chain.
func (c *AdaptersCommand) Execute(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if err := c.checkArgs(args, 0, 0, stderr); err != nil {
		return err
	}
	settings, err := c.env.Settings()
	if err != nil {
		return err
	}
	namespace := settings.StoryID
	if namespace == "" {
		namespace = "turnkeeper"
	}
	chain, err := c.env.Chain(settings, namespace)
	if err != nil {
		return err
	}
	pinned := ""
	if a, err := chain.Adapter(); err == nil {
		pinned = a.Name()
	}

	configured := config.SplitList(settings.StorageChain)
	if len(configured) == 0 {
		configured = storage.DefaultChain
	}
	w := tabwriter.NewWriter(stdout, 0, 8, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ADAPTER\tSTATUS")
	for _, name := range storage.AdapterNames() {
		status := "not configured"
		if i := slices.Index(configured, name); i >= 0 {
			status = fmt.Sprintf("priority %d", i+1)
		}
		if name == pinned {
			status += ", in use"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\n", name, status)
	}
	_ = w.Flush()
	if pinned == "" {
		return storage.ErrAdapterUnavailable
	}
	return nil
}

// InfoCommand summarizes the live session.
type InfoCommand struct {
	*BaseCommand
	env *Env
}

// NewInfoCommand creates a new info command.
func NewInfoCommand(env *Env) *InfoCommand {
	return &InfoCommand{
		BaseCommand: NewBaseCommand("info", "Summarize the story and the live session", "info"),
		env:         env,
	}
}

// Execute prints the summary. The variables digest is stable across
// machines, so two sessions can be compared by it.
func (c *InfoCommand) Execute(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if err := c.checkArgs(args, 0, 0, stderr); err != nil {
		return err
	}
	return c.env.withStory(false, func(s *Story) error {
		h := s.History
		digest, err := value.Digest(h.Variables())
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(stdout, 0, 8, 2, ' ', 0)
		_, _ = fmt.Fprintf(w, "Story:\t%s\n", s.Settings.StoryID)
		if s.Settings.StoryVersion != "" {
			_, _ = fmt.Fprintf(w, "Version:\t%s\n", s.Settings.StoryVersion)
		}
		_, _ = fmt.Fprintf(w, "Storage:\t%s\n", s.Adapter())
		_, _ = fmt.Fprintf(w, "Turns:\t%d\n", h.Turns())
		if !h.IsEmpty() {
			_, _ = fmt.Fprintf(w, "Active:\t%d (%s)\n", h.Index(), h.Title())
		}
		_, _ = fmt.Fprintf(w, "Expired:\t%d\n", len(h.Expired()))
		if p := h.PRNG(); p != nil {
			_, _ = fmt.Fprintf(w, "Seed:\t%s (pull %d)\n", p.Seed(), p.Pull())
		}
		_, _ = fmt.Fprintf(w, "Variables:\t%d (sha256 %s)\n", h.Variables().Len(), digest)
		if s.Saves.OK() {
			slots := s.Saves.Slots()
			_, _ = fmt.Fprintf(w, "Saves:\t%d of %d slots\n", slots.Count(), slots.Length())
			_, _ = fmt.Fprintf(w, "Autosave:\t%t\n", s.Saves.Autosave().Has())
		}
		return w.Flush()
	})
}
