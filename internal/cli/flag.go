// SPDX-FileCopyrightText: 2026 The icewire authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package cli

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/icewire/icewire/link"
)

const (
	name = "icewire"

	configDefault = "icewire.toml"

	usageMessage = `Usage of 'icewire':
    icewire [flags...]

Attach to a target's debug shell and start the monitor:
	icewire -device=/dev/ttyUSB0

With a Lua filter script deciding per access where it runs:
	icewire -device=/dev/ttyUSB0 -script=filter.lua

All icewire flags can also be provided via environment variable ICEWIRE_ARGS:
	ICEWIRE_ARGS="-device=/dev/ttyUSB0 -debug" icewire

Defaults can be provided via TOML config file (see -config).
`
)

// Set on build.
var version = "dev"

type flags struct {
	device  string
	baud    int
	timeout time.Duration
	script  string
	config  string

	version bool
	debug   bool
	flagSet *flag.FlagSet
}

func newFlags(output io.Writer) *flags {
	flags := &flags{
		baud:    link.DefaultBaudRate,
		timeout: link.DefaultReadTimeout,
		config:  configDefault,
	}

	flags.initFlagset(output)

	return flags
}

func (f *flags) initFlagset(output io.Writer) {
	flagSet := flag.NewFlagSet(name, flag.ContinueOnError)
	flagSet.SetOutput(output)
	flagSet.Usage = f.usage

	flagSet.StringVar(
		&f.device,
		"device",
		f.device,
		"serial device the target shell is attached to",
	)

	flagSet.IntVar(
		&f.baud,
		"baud",
		f.baud,
		"serial line baud rate",
	)

	flagSet.DurationVar(
		&f.timeout,
		"timeout",
		f.timeout,
		"serial read timeout per attempt",
	)

	flagSet.StringVar(
		&f.script,
		"script",
		f.script,
		"Lua filter script to load",
	)

	flagSet.StringVar(
		&f.config,
		"config",
		f.config,
		"TOML config file providing flag defaults",
	)

	flagSet.BoolVar(
		&f.debug,
		"debug",
		f.debug,
		"enable debug output",
	)

	flagSet.BoolVar(
		&f.version,
		"version",
		f.version,
		"show version and exit",
	)

	f.flagSet = flagSet
}

func (f *flags) usage() {
	fmt.Fprint(f.flagSet.Output(), usageMessage)
	f.flagSet.PrintDefaults()
}

func (f *flags) ParseArgs(args []string) error {
	err := f.flagSet.Parse(args)
	if err != nil {
		return &ParseArgsError{msg: "flag parse", err: err}
	}

	// With version flag, just print the version and exit. Using [ErrHelp]
	// the main binary is supposed to return with a non error exit code.
	if f.version {
		f.printVersionInformation()
		return &ParseArgsError{msg: "version requested", err: ErrHelp}
	}

	return nil
}

// validate runs after config file values were applied, since the file
// may provide the required fields.
func (f *flags) validate() error {
	if f.device == "" {
		return f.fail("no device given (use -device)", nil)
	}

	return nil
}

// fail fails like flag does. It prints the error first and then usage.
func (f *flags) fail(msg string, err error) error {
	err = &ParseArgsError{msg: msg, err: err}
	fmt.Fprintln(f.flagSet.Output(), err.Error())

	f.flagSet.Usage()

	return err
}

func (f *flags) printVersionInformation() {
	fmt.Fprintf(f.flagSet.Output(), "%s %s\n", name, version)
}

// isSet reports whether the flag was given on the command line.
func (f *flags) isSet(name string) bool {
	set := false

	f.flagSet.Visit(func(fl *flag.Flag) {
		if fl.Name == name {
			set = true
		}
	})

	return set
}

func (f *flags) logLevel() slog.Level {
	if f.debug {
		return slog.LevelDebug
	}

	return slog.LevelWarn
}

func parseArgs(args []string, output io.Writer) (*flags, error) {
	flags := newFlags(output)

	err := flags.ParseArgs(args)
	if err != nil {
		return nil, err
	}

	return flags, nil
}
