package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"github.com/joeycumines/turnkeeper/internal/command"
	"github.com/joeycumines/turnkeeper/internal/config"
	"github.com/joeycumines/turnkeeper/internal/logging"
)

const version = "0.1.0"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	if err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	global := flag.NewFlagSet("turnkeeper", flag.ContinueOnError)
	global.SetOutput(stderr)
	configPath := global.String("config", "", "Config file path (default: $TURNKEEPER_CONFIG or ~/.turnkeeper/config)")
	logLevel := global.String("log-level", "", "Log level: debug, info, warn, error")
	logFile := global.String("log-file", "", "Write JSON logs to this file instead of stderr")
	if err := global.Parse(args); err != nil {
		return err
	}
	args = global.Args()

	path := *configPath
	if path == "" {
		var err error
		if path, err = config.GetConfigPath(); err != nil {
			return fmt.Errorf("failed to get config path: %w", err)
		}
	}
	cfg, err := config.LoadFromPath(path)
	if err != nil {
		return err
	}

	// a malformed option must not stop 'config' from repairing it, so only
	// story commands report it
	settings, settingsErr := config.DefaultSchema().Settings(cfg)
	logOpts := logging.Options{
		Level:     settings.LogLevel,
		File:      settings.LogFile,
		MaxSizeMB: settings.LogMaxSizeMB,
		MaxFiles:  settings.LogMaxFiles,
		Stderr:    stderr,
	}
	if *logLevel != "" {
		logOpts.Level = *logLevel
	}
	if *logFile != "" {
		logOpts.File = *logFile
	}
	logger, closer, err := logging.New(logOpts)
	if err != nil {
		return err
	}
	defer closer.Close()
	slog.SetDefault(logger)
	if settingsErr != nil {
		logger.Warn("config: invalid option", "error", settingsErr)
	}

	env := &command.Env{Config: cfg, ConfigPath: path, Stdin: stdin, Logger: logger}

	registry := command.NewRegistry()
	helpCmd := command.NewHelpCommand(registry)
	registry.Register(helpCmd)
	registry.Register(command.NewVersionCommand(version))
	registry.Register(command.NewConfigCommand(env))
	registry.Register(command.NewInitCommand(env))
	registry.Register(command.NewTurnCommand(env))
	registry.Register(command.NewBackCommand(env))
	registry.Register(command.NewForwardCommand(env))
	registry.Register(command.NewGotoCommand(env))
	registry.Register(command.NewHistoryCommand(env))
	registry.Register(command.NewVarsCommand(env))
	registry.Register(command.NewRollCommand(env))
	registry.Register(command.NewRunCommand(env))
	registry.Register(command.NewRestartCommand(env))
	registry.Register(command.NewSaveCommand(env))
	registry.Register(command.NewLoadCommand(env))
	registry.Register(command.NewDeleteCommand(env))
	registry.Register(command.NewSlotsCommand(env))
	registry.Register(command.NewAutosaveCommand(env))
	registry.Register(command.NewExportCommand(env))
	registry.Register(command.NewImportCommand(env))
	registry.Register(command.NewAdaptersCommand(env))
	registry.Register(command.NewInfoCommand(env))
	registry.Register(command.NewShellCommand(env, registry))

	if len(args) == 0 {
		return helpCmd.Execute(ctx, nil, stdout, stderr)
	}

	cmdName := args[0]
	if cmdName == "-h" || cmdName == "--help" {
		return helpCmd.Execute(ctx, nil, stdout, stderr)
	}

	cmd, err := registry.Get(cmdName)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Unknown command: %s\n", cmdName)
		_, _ = fmt.Fprintln(stderr, "Use 'turnkeeper help' to see available commands.")
		return err
	}

	fs := flag.NewFlagSet(cmd.Name(), flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		_, _ = fmt.Fprintf(stderr, "Usage: %s\n", cmd.Usage())
		_, _ = fmt.Fprintf(stderr, "\n%s\n\n", cmd.Description())
		_, _ = fmt.Fprintln(stderr, "Options:")
		fs.PrintDefaults()
	}
	cmd.SetupFlags(fs)
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}

	return cmd.Execute(ctx, fs.Args(), stdout, stderr)
}
