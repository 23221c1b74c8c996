package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCLI(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), args, strings.NewReader(stdin), &stdout, &stderr)
	if err != nil {
		t.Logf("stderr: %s", stderr.String())
	}
	return stdout.String(), err
}

func TestRun_EndToEnd(t *testing.T) {
	dir := t.TempDir()
	cfg := filepath.Join(dir, "config")
	logFile := filepath.Join(dir, "turnkeeper.log")
	cli := func(args ...string) string {
		t.Helper()
		out, err := runCLI(t, "", append([]string{"-config", cfg, "-log-file", logFile}, args...)...)
		require.NoError(t, err)
		return out
	}

	assert.Contains(t, cli("init", "-id", "e2e"), "Story id: e2e")
	cli("config", "storage.dir", filepath.Join(dir, "data"))
	cli("config", "storage.chain", "sqlite")

	assert.Equal(t, "Turn 1: Start\n", cli("turn", "Start"))
	cli("vars", "gold", "4")
	cli("turn", "Hall")
	cli("save", "1")
	assert.Equal(t, "Moment 0 of 2: Start\n", cli("back"))
	assert.Equal(t, "Moment 1 of 2: Hall\n", cli("load", "1"))
	assert.Equal(t, "4\n", cli("vars", "gold"))
	assert.Contains(t, cli("info"), "sqlite")
}

func TestRun_Help(t *testing.T) {
	cfg := filepath.Join(t.TempDir(), "config")
	out, err := runCLI(t, "", "-config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "Available commands:")
	assert.Contains(t, out, "autosave")

	out, err = runCLI(t, "", "-config", cfg, "help", "roll")
	require.NoError(t, err)
	assert.Contains(t, out, "Usage: roll")
}

func TestRun_Errors(t *testing.T) {
	cfg := filepath.Join(t.TempDir(), "config")

	_, err := runCLI(t, "", "-config", cfg, "nonesuch")
	assert.ErrorContains(t, err, "command not found")

	_, err = runCLI(t, "", "-config", cfg, "turn", "Start")
	assert.ErrorContains(t, err, "story.id is not set")

	_, err = runCLI(t, "", "-config", cfg, "-log-level", "loud", "version")
	assert.ErrorContains(t, err, "invalid log level")
}
