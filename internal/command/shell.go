package command

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/joeycumines/turnkeeper/internal/argv"
	"golang.org/x/term"
)

// ShellCommand reads commands line by line and runs them, so a whole play
// session can be driven from a terminal or replayed from a file.
type ShellCommand struct {
	*BaseCommand
	env      *Env
	registry *Registry
	keepOn   bool
}

// NewShellCommand creates a new shell command dispatching to registry.
func NewShellCommand(env *Env, registry *Registry) *ShellCommand {
	return &ShellCommand{
		BaseCommand: NewBaseCommand(
			"shell",
			"Run commands read from a file or stdin, one per line",
			"shell [options] [file]",
		),
		env:      env,
		registry: registry,
	}
}

// SetupFlags configures the flags for the shell command.
func (c *ShellCommand) SetupFlags(fs *flag.FlagSet) {
	fs.BoolVar(&c.keepOn, "keep-going", false, "Continue after a failing command (always on for terminals)")
}

// Execute runs the commands until end of input or "exit".
func (c *ShellCommand) Execute(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if err := c.checkArgs(args, 0, 1, stderr); err != nil {
		return err
	}
	in := c.env.Stdin
	if len(args) == 1 {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("shell: %w", err)
		}
		defer f.Close()
		in = f
	}
	if in == nil {
		return fmt.Errorf("shell: no input")
	}
	// the lines are ours; commands must not read them as their own input
	saved := c.env.Stdin
	c.env.Stdin = nil
	defer func() { c.env.Stdin = saved }()

	interactive := false
	if f, ok := in.(*os.File); ok {
		interactive = term.IsTerminal(int(f.Fd()))
	}
	keepOn := c.keepOn || interactive

	scanner := bufio.NewScanner(in)
	for lineNo := 1; ; lineNo++ {
		if interactive {
			_, _ = fmt.Fprint(stdout, "turnkeeper> ")
		}
		if !scanner.Scan() {
			break
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		err := c.runLine(ctx, scanner.Text(), stdout, stderr)
		if errors.Is(err, errExit) {
			return nil
		}
		if err != nil {
			if !keepOn {
				return fmt.Errorf("line %d: %w", lineNo, err)
			}
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		}
	}
	return scanner.Err()
}

var errExit = errors.New("exit")

func (c *ShellCommand) runLine(ctx context.Context, line string, stdout, stderr io.Writer) error {
	args, err := argv.Split(line)
	if err != nil {
		return err
	}
	if len(args) == 0 {
		return nil
	}
	switch args[0] {
	case "exit", "quit":
		return errExit
	case c.Name():
		return fmt.Errorf("shell cannot be nested")
	}
	cmd, err := c.registry.Get(args[0])
	if err != nil {
		return err
	}
	fs := flag.NewFlagSet(cmd.Name(), flag.ContinueOnError)
	fs.SetOutput(stderr)
	cmd.SetupFlags(fs)
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}
	return cmd.Execute(ctx, fs.Args(), stdout, stderr)
}
