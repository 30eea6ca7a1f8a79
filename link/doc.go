// SPDX-FileCopyrightText: 2026 The icewire authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package link drives the serial line between the host and the target's
// debug shell.
//
// The target echoes every byte it receives and prints a "\n> " prompt
// whenever it is ready for a command. [Link.Write] verifies each echoed
// byte, [Link.WaitPrompt] resynchronizes on the prompt, and
// [Link.Handshake] establishes the initial contact after the target
// booted.
//
// A [Link] is not safe for concurrent use. All operations block until the
// target answers; closing the link from another goroutine is the only way
// to abort a pending operation.
package link
