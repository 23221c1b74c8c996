package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joeycumines/turnkeeper/internal/storage"
)

// SetOptionInFile writes one option into the config file at path, leaving
// every other line (comments included) as it was. section is "" for a
// global option. An existing line for the key within that section is
// rewritten in place; otherwise the line is added at the end of the
// section's block, and a missing [section] block is appended to the file.
func SetOptionInFile(path, section, key, value string) error {
	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("reading config file: %w", err)
	}
	lines := setOption(splitLines(string(data)), section, key, value)

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	return storage.AtomicWriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0644)
}

func splitLines(s string) []string {
	s = strings.TrimRight(s, "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

func optionLine(key, value string) string {
	if value == "" {
		return key
	}
	return key + " " + value
}

// setOption returns lines with key set inside section.
func setOption(lines []string, section, key, value string) []string {
	line := optionLine(key, value)

	// block spans [start, end) of the section's lines, header excluded
	start, end := -1, len(lines)
	if section == "" {
		start = 0
	}
	current := ""
	for i, l := range lines {
		trimmed := strings.TrimSpace(l)
		if strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]") {
			name := strings.TrimSpace(strings.Trim(trimmed, "[]"))
			if current == section && start >= 0 {
				end = i
				break
			}
			current = name
			if name == section {
				start = i + 1
			}
			continue
		}
		if current != section || trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		if name, _, _ := strings.Cut(trimmed, " "); name == key {
			lines[i] = line
			return lines
		}
	}

	if start < 0 {
		if len(lines) > 0 {
			lines = append(lines, "")
		}
		return append(lines, "["+section+"]", line)
	}

	// after the block's last option, so blank separators stay put
	at := end
	for at > start && strings.TrimSpace(lines[at-1]) == "" {
		at--
	}
	return append(lines[:at], append([]string{line}, lines[at:]...)...)
}
