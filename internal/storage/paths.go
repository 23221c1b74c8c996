package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// dataDirectory is a variable so tests can point it at a temporary directory.
var dataDirectory = DataDirectory

// SetTestPaths overrides the default data directory (for testing).
func SetTestPaths(dir string) {
	dataDirectory = func() (string, error) { return dir, nil }
}

// ResetPaths restores the default data directory (for testing).
func ResetPaths() {
	dataDirectory = DataDirectory
}

// DataDirectory returns the default directory for durable storage,
// {UserConfigDir}/turnkeeper/data.
func DataDirectory() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user config directory: %w", err)
	}
	return filepath.Join(configDir, "turnkeeper", "data"), nil
}

// resolveDir returns dir, or the default data directory when dir is empty.
func resolveDir(dir string) (string, error) {
	if strings.TrimSpace(dir) != "" {
		return filepath.Clean(dir), nil
	}
	return dataDirectory()
}

// scopeDirName converts a scope prefix into a single path element.
func scopeDirName(prefix string) string {
	return escapeName(strings.TrimSuffix(prefix, "."))
}

// escapeName maps an arbitrary key to a portable file name.
func escapeName(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
			b.WriteByte(c)
		default:
			fmt.Fprintf(&b, "%%%02X", c)
		}
	}
	return b.String()
}

// unescapeName reverses escapeName.
func unescapeName(s string) (string, error) {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != '%' {
			b.WriteByte(s[i])
			continue
		}
		if i+2 >= len(s) {
			return "", fmt.Errorf("truncated escape in %q", s)
		}
		c, err := strconv.ParseUint(s[i+1:i+3], 16, 8)
		if err != nil {
			return "", fmt.Errorf("bad escape in %q: %w", s, err)
		}
		b.WriteByte(byte(c))
		i += 2
	}
	return b.String(), nil
}
