// SPDX-FileCopyrightText: 2026 The icewire authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds the values a config file may provide. Values given on
// the command line take precedence.
type Config struct {
	Device  string   `toml:"device"`
	Baud    int      `toml:"baud"`
	Timeout duration `toml:"timeout"`
	Script  string   `toml:"script"`
	Debug   bool     `toml:"debug"`
}

// duration parses TOML strings like "10s" into a [time.Duration].
type duration time.Duration

func (d *duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}

	*d = duration(parsed)

	return nil
}

// loadConfig reads the config file. A missing file is an error only
// when its path was given explicitly.
func loadConfig(path string, explicit bool) (Config, error) {
	var config Config

	meta, err := toml.DecodeFile(path, &config)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && !explicit {
			return Config{}, nil
		}

		return Config{}, fmt.Errorf("read config: %w", err)
	}

	for _, key := range meta.Undecoded() {
		slog.Warn("Unknown config file key",
			slog.String("file", path),
			slog.String("key", key.String()))
	}

	return config, nil
}

// applyConfig fills in config file values for flags not given on the
// command line.
func (f *flags) applyConfig(config Config) {
	if !f.isSet("device") && config.Device != "" {
		f.device = config.Device
	}

	if !f.isSet("baud") && config.Baud != 0 {
		f.baud = config.Baud
	}

	if !f.isSet("timeout") && config.Timeout != 0 {
		f.timeout = time.Duration(config.Timeout)
	}

	if !f.isSet("script") && config.Script != "" {
		f.script = config.Script
	}

	if !f.isSet("debug") && config.Debug {
		f.debug = true
	}
}
