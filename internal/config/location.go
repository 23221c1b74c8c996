package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
)

// Environment holds the variables that locate configuration and data.
type Environment struct {
	// ConfigPath overrides the config file path.
	ConfigPath string `env:"TURNKEEPER_CONFIG"`
	// Home overrides the base directory, ~/.turnkeeper by default.
	Home string `env:"TURNKEEPER_HOME"`
}

// ParseEnv reads the Environment from the process environment.
func ParseEnv() (Environment, error) {
	var e Environment
	if err := env.Parse(&e); err != nil {
		return Environment{}, fmt.Errorf("parse env: %w", err)
	}
	return e, nil
}

// HomeDir returns the base directory for configuration.
func (e Environment) HomeDir() (string, error) {
	if e.Home != "" {
		return e.Home, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".turnkeeper"), nil
}

// ConfigFile returns the configuration file path: TURNKEEPER_CONFIG if set,
// else config under HomeDir.
func (e Environment) ConfigFile() (string, error) {
	if e.ConfigPath != "" {
		return e.ConfigPath, nil
	}
	dir, err := e.HomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config"), nil
}

// GetConfigPath returns the configuration file path selected by the process
// environment.
func GetConfigPath() (string, error) {
	e, err := ParseEnv()
	if err != nil {
		return "", err
	}
	return e.ConfigFile()
}
