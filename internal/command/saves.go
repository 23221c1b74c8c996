package command

import (
	"context"
	"flag"
	"fmt"
	"io"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/joeycumines/turnkeeper/internal/save"
	"github.com/joeycumines/turnkeeper/internal/value"
)

// SaveCommand stores the live session in a slot.
type SaveCommand struct {
	*BaseCommand
	env   *Env
	title string
	meta  string
}

// NewSaveCommand creates a new save command.
func NewSaveCommand(env *Env) *SaveCommand {
	return &SaveCommand{
		BaseCommand: NewBaseCommand("save", "Save the live session to a slot", "save [options] <slot>"),
		env:         env,
	}
}

// SetupFlags configures the flags for the save command.
func (c *SaveCommand) SetupFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.title, "title", "", "Save title (defaults to the active passage)")
	fs.StringVar(&c.meta, "meta", "", "Metadata attached to the save, as JSON")
}

// Execute writes the slot.
func (c *SaveCommand) Execute(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if err := c.checkArgs(args, 1, 1, stderr); err != nil {
		return err
	}
	slot, err := parseIndex("slot", args[0])
	if err != nil {
		return err
	}
	meta := c.metadata()
	return c.env.withStory(false, func(s *Story) error {
		if err := s.Saves.Slots().Save(slot, c.title, meta); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(stdout, "Saved to slot %d.\n", slot)
		return nil
	})
}

func (c *SaveCommand) metadata() *value.Value {
	if c.meta == "" {
		return nil
	}
	v := value.Parse(c.meta)
	return &v
}

// LoadCommand replaces the live session with a slot's save.
type LoadCommand struct {
	*BaseCommand
	env *Env
}

// NewLoadCommand creates a new load command.
func NewLoadCommand(env *Env) *LoadCommand {
	return &LoadCommand{
		BaseCommand: NewBaseCommand("load", "Load a slot into the live session", "load <slot>"),
		env:         env,
	}
}

// Execute loads the slot.
func (c *LoadCommand) Execute(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if err := c.checkArgs(args, 1, 1, stderr); err != nil {
		return err
	}
	slot, err := parseIndex("slot", args[0])
	if err != nil {
		return err
	}
	return c.env.withStory(true, func(s *Story) error {
		ok, err := s.Saves.Slots().Load(slot)
		if err != nil {
			return reportLoad(stderr, err)
		}
		if !ok {
			return fmt.Errorf("slot %d is empty", slot)
		}
		printActive(stdout, s)
		return nil
	})
}

// reportLoad prints a load failure's user-facing message.
func reportLoad(stderr io.Writer, err error) error {
	if msg, ok := save.IsLoadError(err); ok {
		_, _ = fmt.Fprintln(stderr, msg+".")
	}
	return err
}

// DeleteCommand empties a slot.
type DeleteCommand struct {
	*BaseCommand
	env *Env
}

// NewDeleteCommand creates a new delete command.
func NewDeleteCommand(env *Env) *DeleteCommand {
	return &DeleteCommand{
		BaseCommand: NewBaseCommand("delete", "Delete the save in a slot", "delete <slot>"),
		env:         env,
	}
}

// Execute deletes the slot's save.
func (c *DeleteCommand) Execute(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if err := c.checkArgs(args, 1, 1, stderr); err != nil {
		return err
	}
	slot, err := parseIndex("slot", args[0])
	if err != nil {
		return err
	}
	return c.env.withStory(false, func(s *Story) error {
		ok, err := s.Saves.Slots().Delete(slot)
		if err != nil {
			return err
		}
		if !ok {
			_, _ = fmt.Fprintf(stdout, "Slot %d was already empty.\n", slot)
			return nil
		}
		_, _ = fmt.Fprintf(stdout, "Deleted slot %d.\n", slot)
		return nil
	})
}

// SlotsCommand lists the saves.
type SlotsCommand struct {
	*BaseCommand
	env   *Env
	clear bool
}

// NewSlotsCommand creates a new slots command.
func NewSlotsCommand(env *Env) *SlotsCommand {
	return &SlotsCommand{
		BaseCommand: NewBaseCommand("slots", "List the save slots and the autosave", "slots [options]"),
		env:         env,
	}
}

// SetupFlags configures the flags for the slots command.
func (c *SlotsCommand) SetupFlags(fs *flag.FlagSet) {
	fs.BoolVar(&c.clear, "clear", false, "Delete every save, including the autosave")
}

// Execute prints one line per slot.
func (c *SlotsCommand) Execute(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if err := c.checkArgs(args, 0, 0, stderr); err != nil {
		return err
	}
	return c.env.withStory(false, func(s *Story) error {
		if c.clear {
			if err := s.Saves.Clear(); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(stdout, "All saves deleted.")
			return nil
		}
		if !s.Saves.OK() {
			return save.ErrUnavailable
		}
		slots := s.Saves.Slots()
		w := tabwriter.NewWriter(stdout, 0, 8, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "SLOT\tTITLE\tSAVED")
		if rec := s.Saves.Autosave().Get(); rec != nil {
			_, _ = fmt.Fprintf(w, "auto\t%s\t%s\n", rec.Title, formatDate(rec.Date))
		}
		for i, rec := range slots.List() {
			if rec == nil {
				_, _ = fmt.Fprintf(w, "%d\t-\t\n", i)
				continue
			}
			_, _ = fmt.Fprintf(w, "%d\t%s\t%s\n", i, rec.Title, formatDate(rec.Date))
		}
		_ = w.Flush()
		_, _ = fmt.Fprintf(stdout, "%d of %d slots used.\n", slots.Count(), slots.Length())
		return nil
	})
}

func formatDate(ms int64) string {
	return time.UnixMilli(ms).Local().Format(time.DateTime)
}

// AutosaveCommand manages the autosave.
type AutosaveCommand struct {
	*BaseCommand
	env *Env
}

// NewAutosaveCommand creates a new autosave command.
func NewAutosaveCommand(env *Env) *AutosaveCommand {
	return &AutosaveCommand{
		BaseCommand: NewBaseCommand(
			"autosave",
			"Show, write, load or delete the autosave",
			"autosave [show|save|load|delete]",
		),
		env: env,
	}
}

// Execute runs the autosave subcommand, show by default.
func (c *AutosaveCommand) Execute(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if err := c.checkArgs(args, 0, 1, stderr); err != nil {
		return err
	}
	sub := "show"
	if len(args) == 1 {
		sub = args[0]
	}
	switch sub {
	case "show":
		return c.env.withStory(false, func(s *Story) error {
			rec := s.Saves.Autosave().Get()
			if rec == nil {
				_, _ = fmt.Fprintln(stdout, "No autosave.")
				return nil
			}
			_, _ = fmt.Fprintf(stdout, "Autosave: %s (%s)\n", rec.Title, formatDate(rec.Date))
			return nil
		})
	case "save":
		return c.env.withStory(false, func(s *Story) error {
			if err := s.Saves.Autosave().Save("", nil); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(stdout, "Autosaved.")
			return nil
		})
	case "load":
		return c.env.withStory(true, func(s *Story) error {
			ok, err := s.Saves.Autosave().Load()
			if err != nil {
				return reportLoad(stderr, err)
			}
			if !ok {
				return fmt.Errorf("there is no autosave")
			}
			printActive(stdout, s)
			return nil
		})
	case "delete":
		return c.env.withStory(false, func(s *Story) error {
			ok, err := s.Saves.Autosave().Delete()
			if err != nil {
				return err
			}
			if ok {
				_, _ = fmt.Fprintln(stdout, "Autosave deleted.")
			} else {
				_, _ = fmt.Fprintln(stdout, "No autosave.")
			}
			return nil
		})
	default:
		_, _ = fmt.Fprintf(stderr, "Usage: %s\n", c.Usage())
		return fmt.Errorf("autosave: unknown subcommand %q", sub)
	}
}

// ExportCommand writes the live session to a file.
type ExportCommand struct {
	*BaseCommand
	env    *Env
	output string
}

// NewExportCommand creates a new export command.
func NewExportCommand(env *Env) *ExportCommand {
	return &ExportCommand{
		BaseCommand: NewBaseCommand("export", "Export the live session to a file", "export [options]"),
		env:         env,
	}
}

// SetupFlags configures the flags for the export command.
func (c *ExportCommand) SetupFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.output, "o", "", "Output file, or - for stdout (default: a generated name in [export] dir)")
}

// Execute exports the session.
func (c *ExportCommand) Execute(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if err := c.checkArgs(args, 0, 0, stderr); err != nil {
		return err
	}
	return c.env.withStory(false, func(s *Story) error {
		if c.output == "-" {
			text, err := s.Saves.Export()
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(stdout, text)
			return nil
		}
		path := c.output
		if path == "" && c.env.Config != nil {
			if dir, ok := c.env.Config.GetCommandOption("export", "dir"); ok && dir != "" {
				path = filepath.Join(dir, save.ExportFileName(s.Settings.StoryID, time.Now()))
			}
		}
		written, err := s.Saves.ExportFile(path)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(stdout, "Exported to %s\n", written)
		return nil
	})
}

// ImportCommand replaces the live session with an exported one.
type ImportCommand struct {
	*BaseCommand
	env *Env
}

// NewImportCommand creates a new import command.
func NewImportCommand(env *Env) *ImportCommand {
	return &ImportCommand{
		BaseCommand: NewBaseCommand("import", "Import an exported session", "import <file | ->"),
		env:         env,
	}
}

// Execute imports the file, or stdin for "-".
func (c *ImportCommand) Execute(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if err := c.checkArgs(args, 1, 1, stderr); err != nil {
		return err
	}
	return c.env.withStory(true, func(s *Story) error {
		var err error
		if args[0] == "-" {
			err = c.importStdin(s)
		} else {
			err = importFile(ctx, s.Saves, args[0])
		}
		if err != nil {
			return reportLoad(stderr, err)
		}
		printActive(stdout, s)
		return nil
	})
}

func (c *ImportCommand) importStdin(s *Story) error {
	if c.env.Stdin == nil {
		return fmt.Errorf("import: no input")
	}
	data, err := io.ReadAll(c.env.Stdin)
	if err != nil {
		return fmt.Errorf("import: reading stdin: %w", err)
	}
	return s.Saves.Import(string(data))
}

// importFile waits for the background import. A cancelled ctx stops the
// record being applied, and the outcome is still awaited so that an apply
// which already won the race is reported as such.
func importFile(ctx context.Context, o *save.Orchestrator, path string) error {
	done := make(chan error, 1)
	o.ImportFile(ctx, path, func(err error) { done <- err })
	return <-done
}
