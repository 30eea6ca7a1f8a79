// SPDX-FileCopyrightText: 2026 The icewire authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/icewire/icewire/bridge"
	"github.com/icewire/icewire/target"
)

const helpMessage = `commands:
  ri <port> [b|w|l]            read I/O port
  wi <port> <value> [b|w|l]    write I/O port
  rm <addr> [b|w|l|q]          read memory
  wm <addr> <value> [b|w|l|q]  write memory
  rc <addr> [key]              read model specific register
  wc <addr> <value> [key]      write model specific register
  ci <eax> [ecx]               execute cpuid
  ver                          target shell version
  mb                           target mainboard
  help                         this help
  quit                         leave
numbers are hex, sizes default to b for ports and l for memory
`

// monitor is the interactive shell driving a bridge. Accesses filtered
// to the emulated side hit the bridge's emulator, so with no emulated
// machine attached they answer zeros.
type monitor struct {
	bridge  *bridge.Bridge
	session *target.Session
	out     io.Writer
}

func newMonitor(b *bridge.Bridge, session *target.Session, out io.Writer) *monitor {
	return &monitor{
		bridge:  b,
		session: session,
		out:     out,
	}
}

// Run reads commands until EOF or a quit command. It returns early when
// the session breaks, the target is gone at that point.
func (m *monitor) Run(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		fmt.Fprint(m.out, "icewire> ")

		if !scanner.Scan() {
			break
		}

		parts := strings.Fields(strings.TrimSpace(scanner.Text()))
		if len(parts) == 0 {
			continue
		}

		cmd := strings.ToLower(parts[0])
		if cmd == "q" || cmd == "quit" || cmd == "exit" {
			break
		}

		err := m.dispatch(cmd, parts[1:])
		if err != nil {
			if m.session.Broken() {
				return err
			}

			fmt.Fprintf(m.out, "error: %v\n", err)
		}
	}

	return scanner.Err()
}

func (m *monitor) dispatch(cmd string, args []string) error {
	switch cmd {
	case "help", "?":
		fmt.Fprint(m.out, helpMessage)
		return nil
	case "ver":
		version, err := m.session.Version()
		if err != nil {
			return err
		}

		fmt.Fprintln(m.out, version)

		return nil
	case "mb":
		mainboard, err := m.session.Mainboard()
		if err != nil {
			return err
		}

		fmt.Fprintln(m.out, mainboard)

		return nil
	case "ri":
		return m.ioRead(args)
	case "wi":
		return m.ioWrite(args)
	case "rm":
		return m.load(args)
	case "wm":
		return m.store(args)
	case "rc":
		return m.rdmsr(args)
	case "wc":
		return m.wrmsr(args)
	case "ci":
		return m.cpuid(args)
	default:
		return fmt.Errorf("unknown command %q, try help", cmd)
	}
}

func (m *monitor) ioRead(args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return errors.New("usage: ri <port> [b|w|l]")
	}

	port, err := parseNum(args[0], 16)
	if err != nil {
		return err
	}

	size, err := parseSize(args, 1, target.SizeByte)
	if err != nil {
		return err
	}

	value, err := m.bridge.IORead(uint16(port), size)
	if err != nil {
		return err
	}

	fmt.Fprintf(m.out, "0x%0*x\n", 2*int(size), value)

	return nil
}

func (m *monitor) ioWrite(args []string) error {
	if len(args) < 2 || len(args) > 3 {
		return errors.New("usage: wi <port> <value> [b|w|l]")
	}

	port, err := parseNum(args[0], 16)
	if err != nil {
		return err
	}

	value, err := parseNum(args[1], 64)
	if err != nil {
		return err
	}

	size, err := parseSize(args, 2, target.SizeByte)
	if err != nil {
		return err
	}

	return m.bridge.IOWrite(uint16(port), size, value)
}

func (m *monitor) load(args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return errors.New("usage: rm <addr> [b|w|l|q]")
	}

	addr, err := parseNum(args[0], 32)
	if err != nil {
		return err
	}

	size, err := parseSize(args, 1, target.SizeLong)
	if err != nil {
		return err
	}

	value, handled, err := m.bridge.Load(uint32(addr), size)
	if err != nil {
		return err
	}

	line := fmt.Sprintf("0x%0*x", 2*int(size), value)
	if !handled {
		line += " (emulated)"
	}

	fmt.Fprintln(m.out, line)

	return nil
}

func (m *monitor) store(args []string) error {
	if len(args) < 2 || len(args) > 3 {
		return errors.New("usage: wm <addr> <value> [b|w|l|q]")
	}

	addr, err := parseNum(args[0], 32)
	if err != nil {
		return err
	}

	value, err := parseNum(args[1], 64)
	if err != nil {
		return err
	}

	size, err := parseSize(args, 2, target.SizeLong)
	if err != nil {
		return err
	}

	handled, err := m.bridge.Store(uint32(addr), size, value)
	if err != nil {
		return err
	}

	if !handled {
		fmt.Fprintln(m.out, "(emulated)")
	}

	return nil
}

func (m *monitor) rdmsr(args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return errors.New("usage: rc <addr> [key]")
	}

	addr, err := parseNum(args[0], 32)
	if err != nil {
		return err
	}

	var key uint64

	if len(args) == 2 {
		key, err = parseNum(args[1], 32)
		if err != nil {
			return err
		}
	}

	value, err := m.bridge.RDMSR(uint32(addr), uint32(key))
	if err != nil {
		return err
	}

	fmt.Fprintf(m.out, "0x%08x.%08x\n", uint32(value>>32), uint32(value))

	return nil
}

func (m *monitor) wrmsr(args []string) error {
	if len(args) < 2 || len(args) > 3 {
		return errors.New("usage: wc <addr> <value> [key]")
	}

	addr, err := parseNum(args[0], 32)
	if err != nil {
		return err
	}

	value, err := parseNum(args[1], 64)
	if err != nil {
		return err
	}

	var key uint64

	if len(args) == 3 {
		key, err = parseNum(args[2], 32)
		if err != nil {
			return err
		}
	}

	return m.bridge.WRMSR(uint32(addr), uint32(key), value)
}

func (m *monitor) cpuid(args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return errors.New("usage: ci <eax> [ecx]")
	}

	eax, err := parseNum(args[0], 32)
	if err != nil {
		return err
	}

	var ecx uint64

	if len(args) == 2 {
		ecx, err = parseNum(args[1], 32)
		if err != nil {
			return err
		}
	}

	regs, err := m.bridge.CPUID(uint32(eax), uint32(ecx))
	if err != nil {
		return err
	}

	fmt.Fprintln(m.out, regs)

	return nil
}

// parseNum reads a monitor number. Bare numbers are hex, a 0x prefix is
// accepted.
func parseNum(s string, bits int) (uint64, error) {
	trimmed := strings.TrimPrefix(strings.ToLower(s), "0x")

	value, err := strconv.ParseUint(trimmed, 16, bits)
	if err != nil {
		return 0, fmt.Errorf("bad number %q", s)
	}

	return value, nil
}

// parseSize reads the optional size letter at args[idx].
func parseSize(args []string, idx int, fallback target.Size) (target.Size, error) {
	if len(args) <= idx {
		return fallback, nil
	}

	switch strings.ToLower(args[idx]) {
	case "b":
		return target.SizeByte, nil
	case "w":
		return target.SizeWord, nil
	case "l":
		return target.SizeLong, nil
	case "q":
		return target.SizeQuad, nil
	default:
		return 0, fmt.Errorf("bad size %q, want b, w, l or q", args[idx])
	}
}
