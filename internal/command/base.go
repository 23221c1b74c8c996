package command

import (
	"context"
	"flag"
	"fmt"
	"io"
	"strconv"
)

// Command represents a command that can be executed.
type Command interface {
	// Name returns the command name.
	Name() string

	// Description returns a short description of the command.
	Description() string

	// Usage returns the usage string for the command.
	Usage() string

	// SetupFlags configures the flag.FlagSet for this command.
	// The FlagSet will be used to parse command-specific arguments.
	SetupFlags(fs *flag.FlagSet)

	// Execute runs the command with the arguments left after flag parsing.
	// Cancelling ctx interrupts long-running work such as scripts.
	Execute(ctx context.Context, args []string, stdout, stderr io.Writer) error
}

// BaseCommand provides a basic implementation that other commands can embed.
type BaseCommand struct {
	name        string
	description string
	usage       string
}

// NewBaseCommand creates a new BaseCommand.
func NewBaseCommand(name, description, usage string) *BaseCommand {
	return &BaseCommand{
		name:        name,
		description: description,
		usage:       usage,
	}
}

// Name returns the command name.
func (c *BaseCommand) Name() string {
	return c.name
}

// Description returns the command description.
func (c *BaseCommand) Description() string {
	return c.description
}

// Usage returns the command usage.
func (c *BaseCommand) Usage() string {
	return c.usage
}

// SetupFlags is a default implementation that does nothing.
func (c *BaseCommand) SetupFlags(fs *flag.FlagSet) {}

// checkArgs reports an error unless min <= len(args) <= max. A negative max
// is unbounded.
func (c *BaseCommand) checkArgs(args []string, min, max int, stderr io.Writer) error {
	if len(args) >= min && (max < 0 || len(args) <= max) {
		return nil
	}
	_, _ = fmt.Fprintf(stderr, "Usage: %s\n", c.usage)
	return fmt.Errorf("%s: wrong number of arguments", c.name)
}

// parseIndex parses a non-negative index argument.
func parseIndex(what, s string) (int, error) {
	i, err := strconv.Atoi(s)
	if err != nil || i < 0 {
		return 0, fmt.Errorf("invalid %s: %q", what, s)
	}
	return i, nil
}
