// SPDX-FileCopyrightText: 2026 The icewire authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package cli provides the CLI command entry point for icewire. It
// handles flag parsing, the config file, error handling, and the
// interactive monitor.
package cli
