// SPDX-FileCopyrightText: 2026 The icewire authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"

	"github.com/icewire/icewire/bridge"
	"github.com/icewire/icewire/link"
	"github.com/icewire/icewire/script"
	"github.com/icewire/icewire/target"
)

// IO provides input and output details for the command.
type IO struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

func parseFlags(args []string, cfg IO) (*flags, error) {
	merged := append(EnvArgs(), args[1:]...)

	flags, err := parseArgs(merged, cfg.Stderr)
	if err != nil {
		return nil, fmt.Errorf("parse args: %w", err)
	}

	config, err := loadConfig(flags.config, flags.isSet("config"))
	if err != nil {
		return nil, err
	}

	flags.applyConfig(config)

	err = flags.validate()
	if err != nil {
		return nil, err
	}

	return flags, nil
}

func run(ctx context.Context, flags *flags, cfg IO) error {
	lnk, err := link.Open(link.Config{
		Device:      flags.device,
		BaudRate:    flags.baud,
		ReadTimeout: flags.timeout,
	})
	if err != nil {
		return fmt.Errorf("open link: %w", err)
	}
	defer closeLink(lnk)

	err = lnk.Handshake()
	if err != nil {
		return err
	}

	session := target.New(lnk)

	version, err := session.Version()
	if err != nil {
		return fmt.Errorf("version probe: %w", err)
	}

	mainboard, err := session.Mainboard()
	if err != nil {
		return fmt.Errorf("mainboard probe: %w", err)
	}

	fmt.Fprintf(cfg.Stdout, "version: %s\n", version)
	fmt.Fprintf(cfg.Stdout, "mainboard: %s\n", mainboard)

	var filter bridge.Filter

	if flags.script != "" {
		scriptFilter, err := script.LoadFile(flags.script, script.Options{
			Version:   version,
			Mainboard: mainboard,
		})
		if err != nil {
			return fmt.Errorf("load script: %w", err)
		}
		defer scriptFilter.Close()

		slog.Debug("Filter script loaded",
			slog.String("path", flags.script))

		filter = scriptFilter
	}

	monitor := newMonitor(bridge.New(session, nil, filter), session, cfg.Stdout)

	return monitor.Run(ctx, cfg.Stdin)
}

func closeLink(l *link.Link) {
	err := l.Close()
	if err != nil {
		slog.Error("Failed to close link", slog.Any("error", err))
	}
}

func handleParseArgsError(err error) int {
	// [ErrHelp] is returned when help or version output is requested. So
	// exit without error in this case.
	if errors.Is(err, ErrHelp) {
		return 0
	}

	// Flag parsing already prints errors, so we just exit without an error.
	if !errors.Is(err, &ParseArgsError{}) {
		slog.Error(err.Error())
	}

	return -1
}

func handleRunError(err error) int {
	var desyncErr *target.DesyncError
	if errors.As(err, &desyncErr) {
		slog.Error("Session lost, reset the target shell and reconnect")
	}

	slog.Error(err.Error())

	return -1
}

// Run is the main entry point for the CLI command.
func Run(ctx context.Context, args []string, cfg IO) int {
	log.SetOutput(cfg.Stderr)
	log.SetFlags(log.Lmicroseconds)
	log.SetPrefix("ICEWIRE: ")

	flags, err := parseFlags(args, cfg)
	if err != nil {
		return handleParseArgsError(err)
	}

	slog.SetLogLoggerLevel(flags.logLevel())

	err = run(ctx, flags, cfg)
	if err != nil {
		return handleRunError(err)
	}

	return 0
}
