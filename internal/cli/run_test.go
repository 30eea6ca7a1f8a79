// SPDX-FileCopyrightText: 2026 The icewire authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package cli_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/icewire/icewire/internal/cli"
)

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()

	// Keep the environment out of the test's way.
	t.Setenv("ICEWIRE_ARGS", "")

	var stdout, stderr bytes.Buffer

	rc := cli.Run(
		context.Background(),
		append([]string{"icewire"}, args...),
		cli.IO{
			Stdin:  strings.NewReader(""),
			Stdout: &stdout,
			Stderr: &stderr,
		},
	)

	return rc, stdout.String(), stderr.String()
}

func TestRunVersion(t *testing.T) {
	rc, _, stderr := runCLI(t, "-version")
	assert.Equal(t, 0, rc)
	assert.Contains(t, stderr, "icewire")
}

func TestRunHelp(t *testing.T) {
	rc, _, stderr := runCLI(t, "-h")
	assert.Equal(t, 0, rc)
	assert.Contains(t, stderr, "Usage of 'icewire'")
}

func TestRunNoDevice(t *testing.T) {
	rc, _, stderr := runCLI(t)
	assert.Equal(t, -1, rc)
	assert.Contains(t, stderr, "no device given")
}

func TestRunBadFlag(t *testing.T) {
	rc, _, stderr := runCLI(t, "-frobnicate")
	assert.Equal(t, -1, rc)
	assert.Contains(t, stderr, "frobnicate")
}

func TestRunOpenFails(t *testing.T) {
	rc, _, stderr := runCLI(t, "-device", filepath.Join(t.TempDir(), "tty"))
	assert.Equal(t, -1, rc)
	assert.Contains(t, stderr, "open link")
}

func TestRunConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "icewire.toml")
	device := filepath.Join(t.TempDir(), "tty")
	content := "device = \"" + device + "\"\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	// The device comes from the config file, so the run gets past flag
	// validation and fails at the missing device node.
	rc, _, stderr := runCLI(t, "-config", path)
	assert.Equal(t, -1, rc)
	assert.NotContains(t, stderr, "no device given")
	assert.Contains(t, stderr, "open link")
}

func TestRunConfigFileMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "no.toml")

	rc, _, stderr := runCLI(t, "-config", path, "-device", "/dev/null")
	assert.Equal(t, -1, rc)
	assert.Contains(t, stderr, "read config")
}

func TestRunEnvArgs(t *testing.T) {
	t.Setenv("ICEWIRE_ARGS", "-device="+filepath.Join(t.TempDir(), "tty"))

	var stdout, stderr bytes.Buffer

	rc := cli.Run(context.Background(), []string{"icewire"}, cli.IO{
		Stdin:  strings.NewReader(""),
		Stdout: &stdout,
		Stderr: &stderr,
	})

	assert.Equal(t, -1, rc)
	assert.NotContains(t, stderr.String(), "no device given")
	assert.Contains(t, stderr.String(), "open link")
}
