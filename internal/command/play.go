package command

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/joeycumines/turnkeeper/internal/config"
	"github.com/joeycumines/turnkeeper/internal/jsbridge"
	"github.com/joeycumines/turnkeeper/internal/value"
	"golang.org/x/term"
)

// ErrNoMoment is returned when navigation points outside the history.
var ErrNoMoment = errors.New("no moment there")

// TurnCommand starts a new turn on a passage.
type TurnCommand struct {
	*BaseCommand
	env  *Env
	tags string
}

// NewTurnCommand creates a new turn command.
func NewTurnCommand(env *Env) *TurnCommand {
	return &TurnCommand{
		BaseCommand: NewBaseCommand(
			"turn",
			"Start a new turn on a passage",
			"turn [options] <passage title>",
		),
		env: env,
	}
}

// SetupFlags configures the flags for the turn command.
func (c *TurnCommand) SetupFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.tags, "tags", "", "Comma-separated passage tags, matched by the autosave policy")
}

// Execute creates the moment and autosaves if the policy wants this turn.
func (c *TurnCommand) Execute(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if err := c.checkArgs(args, 1, -1, stderr); err != nil {
		return err
	}
	title := strings.Join(args, " ")
	return c.env.withStory(true, func(s *Story) error {
		s.History.Create(title)
		_, _ = fmt.Fprintf(stdout, "Turn %d: %s\n", s.History.Index()+1, title)
		saved, err := s.Saves.MaybeAutosave(config.SplitList(c.tags))
		if err != nil {
			// the turn stands even if the autosave could not be written
			_, _ = fmt.Fprintf(stderr, "Warning: autosave failed: %v\n", err)
		} else if saved {
			_, _ = fmt.Fprintln(stdout, "Autosaved.")
		}
		return nil
	})
}

// NavCommand moves the active moment backward or forward.
type NavCommand struct {
	*BaseCommand
	env  *Env
	sign int
}

// NewBackCommand creates the back command.
func NewBackCommand(env *Env) *NavCommand {
	return &NavCommand{
		BaseCommand: NewBaseCommand("back", "Move back through the history", "back [steps]"),
		env:         env,
		sign:        -1,
	}
}

// NewForwardCommand creates the forward command.
func NewForwardCommand(env *Env) *NavCommand {
	return &NavCommand{
		BaseCommand: NewBaseCommand("forward", "Move forward through the history", "forward [steps]"),
		env:         env,
		sign:        1,
	}
}

// Execute moves the active moment by the given number of steps.
func (c *NavCommand) Execute(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if err := c.checkArgs(args, 0, 1, stderr); err != nil {
		return err
	}
	steps := 1
	if len(args) == 1 {
		n, err := parseIndex("steps", args[0])
		if err != nil || n == 0 {
			return fmt.Errorf("invalid steps: %q", args[0])
		}
		steps = n
	}
	return c.env.withStory(true, func(s *Story) error {
		if !s.History.Go(c.sign * steps) {
			return fmt.Errorf("cannot go %s %d: %w", c.Name(), steps, ErrNoMoment)
		}
		printActive(stdout, s)
		return nil
	})
}

// GotoCommand makes a moment active by index.
type GotoCommand struct {
	*BaseCommand
	env *Env
}

// NewGotoCommand creates a new goto command.
func NewGotoCommand(env *Env) *GotoCommand {
	return &GotoCommand{
		BaseCommand: NewBaseCommand("goto", "Make the moment at an index active", "goto <index>"),
		env:         env,
	}
}

// Execute moves to the moment.
func (c *GotoCommand) Execute(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if err := c.checkArgs(args, 1, 1, stderr); err != nil {
		return err
	}
	i, err := parseIndex("index", args[0])
	if err != nil {
		return err
	}
	return c.env.withStory(true, func(s *Story) error {
		if !s.History.GoTo(i) {
			return fmt.Errorf("moment %d: %w", i, ErrNoMoment)
		}
		printActive(stdout, s)
		return nil
	})
}

func printActive(w io.Writer, s *Story) {
	_, _ = fmt.Fprintf(w, "Moment %d of %d: %s\n", s.History.Index(), s.History.Len(), s.History.Title())
}

// HistoryCommand lists the moments of the history.
type HistoryCommand struct {
	*BaseCommand
	env   *Env
	limit int
}

// NewHistoryCommand creates a new history command.
func NewHistoryCommand(env *Env) *HistoryCommand {
	return &HistoryCommand{
		BaseCommand: NewBaseCommand("history", "List the moments of the history", "history [options]"),
		env:         env,
	}
}

// SetupFlags configures the flags for the history command.
func (c *HistoryCommand) SetupFlags(fs *flag.FlagSet) {
	limit := 0
	if c.env.Config != nil {
		if v, ok := c.env.Config.GetCommandOption("history", "limit"); ok {
			limit, _ = strconv.Atoi(v)
		}
	}
	fs.IntVar(&c.limit, "limit", limit, "Most recent moments listed; 0 lists all")
}

// Execute lists the moments, marking the active one.
func (c *HistoryCommand) Execute(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if err := c.checkArgs(args, 0, 0, stderr); err != nil {
		return err
	}
	return c.env.withStory(false, func(s *Story) error {
		h := s.History
		if h.IsEmpty() {
			_, _ = fmt.Fprintln(stdout, "No turns yet.")
			return nil
		}
		if expired := h.Expired(); len(expired) > 0 {
			_, _ = fmt.Fprintf(stdout, "(%d earlier moments expired)\n", len(expired))
		}
		from := 0
		if c.limit > 0 && h.Len() > c.limit {
			from = h.Len() - c.limit
		}
		active := h.Index()
		for i := from; i < h.Len(); i++ {
			m, _ := h.Moment(i)
			marker := " "
			if i == active {
				marker = "*"
			}
			_, _ = fmt.Fprintf(stdout, "%s %3d  %s\n", marker, i, m.Title)
		}
		return nil
	})
}

// VarsCommand reads and writes the working variables.
type VarsCommand struct {
	*BaseCommand
	env    *Env
	delete bool
	asJSON bool
}

// NewVarsCommand creates a new vars command.
func NewVarsCommand(env *Env) *VarsCommand {
	return &VarsCommand{
		BaseCommand: NewBaseCommand(
			"vars",
			"Show or change the working variables",
			"vars [options] [name [value]]",
		),
		env: env,
	}
}

// SetupFlags configures the flags for the vars command.
func (c *VarsCommand) SetupFlags(fs *flag.FlagSet) {
	fs.BoolVar(&c.delete, "delete", false, "Delete the named variable")
	fs.BoolVar(&c.asJSON, "json", false, "Print all variables as JSON")
}

// Execute lists, reads, sets or deletes variables. Values are parsed as
// JSON where possible and kept as strings otherwise.
func (c *VarsCommand) Execute(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if c.delete {
		if err := c.checkArgs(args, 1, 1, stderr); err != nil {
			return err
		}
		return c.env.withStory(true, func(s *Story) error {
			s.History.DeleteVariable(args[0])
			_, _ = fmt.Fprintf(stdout, "Deleted %s\n", args[0])
			return nil
		})
	}

	mutate := len(args) > 1
	return c.env.withStory(mutate, func(s *Story) error {
		switch len(args) {
		case 0:
			vars := s.History.Variables()
			if c.asJSON {
				data, err := json.MarshalIndent(vars, "", "  ")
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintln(stdout, string(data))
				return nil
			}
			for _, k := range vars.Keys() {
				f, _ := vars.Field(k)
				_, _ = fmt.Fprintf(stdout, "%s = %s\n", k, f)
			}
		case 1:
			v, ok := s.History.Variable(args[0])
			if !ok {
				return fmt.Errorf("variable %q is not set", args[0])
			}
			_, _ = fmt.Fprintln(stdout, v)
		default:
			v := value.Parse(strings.Join(args[1:], " "))
			s.History.SetVariable(args[0], v)
			_, _ = fmt.Fprintf(stdout, "%s = %s\n", args[0], v)
		}
		return nil
	})
}

// RollCommand draws dice from the story's random source.
type RollCommand struct {
	*BaseCommand
	env *Env
}

// NewRollCommand creates a new roll command.
func NewRollCommand(env *Env) *RollCommand {
	return &RollCommand{
		BaseCommand: NewBaseCommand(
			"roll",
			"Roll dice with the story's random source",
			"roll [N]d<sides> | roll <sides>",
		),
		env: env,
	}
}

// Execute rolls the dice and prints each roll and the total.
func (c *RollCommand) Execute(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if err := c.checkArgs(args, 1, 1, stderr); err != nil {
		return err
	}
	count, sides, err := parseDice(args[0])
	if err != nil {
		return err
	}
	return c.env.withStory(true, func(s *Story) error {
		total := 0
		rolls := make([]string, count)
		for i := range rolls {
			r := int(s.History.Random()*float64(sides)) + 1
			total += r
			rolls[i] = strconv.Itoa(r)
		}
		_, _ = fmt.Fprintf(stdout, "%s = %d\n", strings.Join(rolls, " + "), total)
		return nil
	})
}

// parseDice parses "NdS", "dS" or "S".
func parseDice(spec string) (count, sides int, err error) {
	n, s, found := strings.Cut(strings.ToLower(spec), "d")
	if !found {
		n, s = "1", n
	} else if n == "" {
		n = "1"
	}
	count, err1 := strconv.Atoi(n)
	sides, err2 := strconv.Atoi(s)
	if err1 != nil || err2 != nil || count < 1 || count > 100 || sides < 1 {
		return 0, 0, fmt.Errorf("invalid dice: %q", spec)
	}
	return count, sides, nil
}

// RunCommand runs a script against the working variables.
type RunCommand struct {
	*BaseCommand
	env  *Env
	eval string
}

// NewRunCommand creates a new run command.
func NewRunCommand(env *Env) *RunCommand {
	return &RunCommand{
		BaseCommand: NewBaseCommand(
			"run",
			"Run a JavaScript snippet against the working variables",
			"run [options] [file | -]",
		),
		env: env,
	}
}

// SetupFlags configures the flags for the run command.
func (c *RunCommand) SetupFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.eval, "e", "", "Script source to run instead of a file")
}

// Execute runs the script and prints its completion value, if any.
func (c *RunCommand) Execute(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if err := c.checkArgs(args, 0, 1, stderr); err != nil {
		return err
	}
	name, code, err := c.source(args)
	if err != nil {
		return err
	}
	return c.env.withStory(true, func(s *Story) error {
		in, err := jsbridge.NewInterpreter(ctx, s.History, c.env.logger())
		if err != nil {
			return err
		}
		defer in.Close()
		if s.Settings.ScriptTimeout > 0 {
			in.Runtime().SetTimeout(s.Settings.ScriptTimeout)
		}
		out, err := in.Run(ctx, name, code)
		if err != nil {
			return err
		}
		if !out.IsNull() {
			_, _ = fmt.Fprintln(stdout, out)
		}
		return nil
	})
}

// source returns the script name and code from -e, a file, or stdin. Stdin
// is only read when it is not a terminal, or when named explicitly.
func (c *RunCommand) source(args []string) (string, string, error) {
	if c.eval != "" {
		if len(args) > 0 {
			return "", "", fmt.Errorf("run: -e and a file are exclusive")
		}
		return "<eval>", c.eval, nil
	}
	if len(args) == 1 && args[0] != "-" {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return "", "", fmt.Errorf("run: %w", err)
		}
		return args[0], string(data), nil
	}
	stdin := c.env.Stdin
	if stdin == nil {
		return "", "", fmt.Errorf("run: no script given")
	}
	if f, ok := stdin.(*os.File); ok && len(args) == 0 && term.IsTerminal(int(f.Fd())) {
		return "", "", fmt.Errorf("run: no script given; pass a file, -e, or pipe one in")
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", "", fmt.Errorf("run: reading stdin: %w", err)
	}
	return "<stdin>", string(data), nil
}

// RestartCommand discards the live session.
type RestartCommand struct {
	*BaseCommand
	env *Env
}

// NewRestartCommand creates a new restart command.
func NewRestartCommand(env *Env) *RestartCommand {
	return &RestartCommand{
		BaseCommand: NewBaseCommand("restart", "Discard the live session and start over; saves are kept", "restart"),
		env:         env,
	}
}

// Execute resets the history.
func (c *RestartCommand) Execute(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if err := c.checkArgs(args, 0, 0, stderr); err != nil {
		return err
	}
	return c.env.withStory(true, func(s *Story) error {
		s.History.Reset()
		_, _ = fmt.Fprintln(stdout, "Session restarted.")
		return nil
	})
}
