// SPDX-FileCopyrightText: 2026 The icewire authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package cli

import (
	"bytes"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/icewire/icewire/link"
)

func TestParseArgs(t *testing.T) {
	tests := []struct {
		name        string
		args        []string
		expectedErr error
		assertFlags func(t *testing.T, f *flags)
	}{
		{
			name: "defaults",
			args: []string{},
			assertFlags: func(t *testing.T, f *flags) {
				assert.Empty(t, f.device)
				assert.Equal(t, link.DefaultBaudRate, f.baud)
				assert.Equal(t, link.DefaultReadTimeout, f.timeout)
				assert.Equal(t, configDefault, f.config)
				assert.Empty(t, f.script)
				assert.False(t, f.debug)
			},
		},
		{
			name: "all flags",
			args: []string{
				"-device", "/dev/ttyUSB0",
				"-baud", "57600",
				"-timeout", "2s",
				"-script", "filter.lua",
				"-config", "other.toml",
				"-debug",
			},
			assertFlags: func(t *testing.T, f *flags) {
				assert.Equal(t, "/dev/ttyUSB0", f.device)
				assert.Equal(t, 57600, f.baud)
				assert.Equal(t, 2*time.Second, f.timeout)
				assert.Equal(t, "filter.lua", f.script)
				assert.Equal(t, "other.toml", f.config)
				assert.True(t, f.debug)
			},
		},
		{
			name:        "version",
			args:        []string{"-version"},
			expectedErr: ErrHelp,
		},
		{
			name:        "help",
			args:        []string{"-h"},
			expectedErr: ErrHelp,
		},
		{
			name:        "unknown flag",
			args:        []string{"-frobnicate"},
			expectedErr: &ParseArgsError{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var output bytes.Buffer

			flags, err := parseArgs(tt.args, &output)
			if tt.expectedErr != nil {
				require.ErrorIs(t, err, tt.expectedErr)
				return
			}

			require.NoError(t, err)
			tt.assertFlags(t, flags)
		})
	}
}

func TestParseArgsVersion(t *testing.T) {
	var output bytes.Buffer

	_, err := parseArgs([]string{"-version"}, &output)
	require.ErrorIs(t, err, ErrHelp)
	assert.Contains(t, output.String(), "icewire")
}

func TestFlagsValidate(t *testing.T) {
	var output bytes.Buffer

	flags := newFlags(&output)
	require.NoError(t, flags.ParseArgs(nil))

	err := flags.validate()
	require.ErrorIs(t, err, &ParseArgsError{})
	assert.Contains(t, output.String(), "no device given")

	flags.device = "/dev/ttyUSB0"
	require.NoError(t, flags.validate())
}

func TestFlagsLogLevel(t *testing.T) {
	var output bytes.Buffer

	flags := newFlags(&output)
	require.NoError(t, flags.ParseArgs([]string{}))
	assert.Equal(t, slog.LevelWarn, flags.logLevel())

	flags = newFlags(&output)
	require.NoError(t, flags.ParseArgs([]string{"-debug"}))
	assert.Equal(t, slog.LevelDebug, flags.logLevel())
}

func TestFlagsIsSet(t *testing.T) {
	var output bytes.Buffer

	flags := newFlags(&output)
	require.NoError(t, flags.ParseArgs([]string{"-baud", "9600"}))

	assert.True(t, flags.isSet("baud"))
	assert.False(t, flags.isSet("device"))
}
