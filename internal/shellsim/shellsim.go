// SPDX-FileCopyrightText: 2026 The icewire authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package shellsim emulates the target-side debug shell on an in-process
// byte stream. It speaks the same wire protocol as the firmware stub:
// every received byte is echoed, commands start with '*', replies carry a
// leading newline and fixed-width lowercase hex, and a "\n> " prompt
// follows every answer.
//
// It backs tests that need a live conversation partner without real
// hardware, over a [net.Pipe] or a pseudo terminal.
package shellsim

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
)

// ErrTruncated is returned by [Sim.Serve] after it cut a reply short on
// purpose, see [Sim.Truncate].
var ErrTruncated = errors.New("reply truncated on purpose")

// CPUIDKey identifies one cpuid leaf.
type CPUIDKey struct {
	EAX uint32
	ECX uint32
}

// CPUIDRegs is the register set a cpuid leaf returns.
type CPUIDRegs struct {
	EAX uint32
	EBX uint32
	ECX uint32
	EDX uint32
}

// MSR is a model specific register value, split like the wire splits it.
type MSR struct {
	Hi uint32
	Lo uint32
}

// Sim holds the simulated hardware state.
type Sim struct {
	// Version is the string reported for the version command.
	Version string

	// Mainboard is the board name reported for the mainboard command.
	// On the wire it occupies a fixed 31 byte field.
	Mainboard string

	mu    sync.Mutex
	io    map[uint16]uint64
	mem   map[uint64]uint64
	msrs  map[uint32]MSR
	cpuid map[CPUIDKey]CPUIDRegs

	truncPrefix string
	truncDrop   int
	truncated   bool
}

// New returns a Sim with empty hardware state.
func New() *Sim {
	return &Sim{
		Version:   "SerialICE v1.6",
		Mainboard: "ICEWIRE/SIM",
		io:        make(map[uint16]uint64),
		mem:       make(map[uint64]uint64),
		msrs:      make(map[uint32]MSR),
		cpuid:     make(map[CPUIDKey]CPUIDRegs),
	}
}

// SetIO presets an I/O port value.
func (s *Sim) SetIO(port uint16, value uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.io[port] = value
}

// IO returns the current value of an I/O port.
func (s *Sim) IO(port uint16) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.io[port]
}

// SetMem presets a memory cell.
func (s *Sim) SetMem(addr uint64, value uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.mem[addr] = value
}

// Mem returns the current value of a memory cell.
func (s *Sim) Mem(addr uint64) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.mem[addr]
}

// SetMSR presets a model specific register.
func (s *Sim) SetMSR(addr uint32, msr MSR) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.msrs[addr] = msr
}

// MSR returns the current value of a model specific register.
func (s *Sim) MSR(addr uint32) MSR {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.msrs[addr]
}

// SetCPUID presets the answer for one cpuid leaf.
func (s *Sim) SetCPUID(key CPUIDKey, regs CPUIDRegs) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cpuid[key] = regs
}

// Truncate arranges for the reply to the next command starting with
// prefix to be cut short by drop bytes. Serve then returns
// [ErrTruncated], simulating a target that died mid reply. The caller is
// expected to close its end of the stream when Serve returns.
func (s *Sim) Truncate(prefix string, drop int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.truncPrefix = prefix
	s.truncDrop = drop
}

// Serve answers commands on rw until the stream ends. A clean end of
// stream returns nil, any other transport failure is returned as is.
func (s *Sim) Serve(rw io.ReadWriter) error {
	for {
		b, err := readByte(rw)
		if errors.Is(err, io.EOF) {
			return nil
		}

		if err != nil {
			return err
		}

		// The shell echoes everything it receives.
		err = writeAll(rw, []byte{b})
		if err != nil {
			return err
		}

		var reply string

		if b == '*' {
			reply, err = s.command(rw)
			if err != nil {
				return err
			}
		}

		done, err := s.respond(rw, reply)
		if done || err != nil {
			return err
		}
	}
}

// respond sends the pending reply, if any, followed by a fresh prompt.
// It reports done when a truncated reply was sent and serving must stop.
func (s *Sim) respond(rw io.ReadWriter, reply string) (bool, error) {
	err := writeAll(rw, []byte(reply))
	if err != nil {
		return false, err
	}

	if s.truncated {
		return true, ErrTruncated
	}

	return false, writeAll(rw, []byte("\n> "))
}

// command reads the rest of a command after the leading '*', executes it
// and returns the reply bytes, without the trailing prompt.
func (s *Sim) command(rw io.ReadWriter) (string, error) {
	buf := []byte{'*'}

	err := s.readInto(rw, &buf, 2)
	if err != nil {
		return "", err
	}

	var reply string

	switch string(buf[1:3]) {
	case "vi":
		reply = "\n" + s.Version + "\n"
	case "mb":
		reply = fmt.Sprintf("\n%-31.31s", s.Mainboard)
	case "ri":
		reply, err = s.ioRead(rw, &buf)
	case "wi":
		err = s.ioWrite(rw, &buf)
	case "rm":
		reply, err = s.memRead(rw, &buf)
	case "wm":
		err = s.memWrite(rw, &buf)
	case "rc":
		reply, err = s.msrRead(rw, &buf)
	case "wc":
		err = s.msrWrite(rw, &buf)
	case "ci":
		reply, err = s.cpuidRead(rw, &buf)
	default:
		err = fmt.Errorf("unknown command %q", buf)
	}

	if err != nil {
		return "", err
	}

	return s.maybeTruncate(string(buf), reply), nil
}

func (s *Sim) ioRead(rw io.ReadWriter, buf *[]byte) (string, error) {
	// *ri<port>.<width>
	err := s.readInto(rw, buf, 6)
	if err != nil {
		return "", err
	}

	port, err := parseHex((*buf)[3:7])
	if err != nil {
		return "", err
	}

	digits := hexDigits((*buf)[8])

	s.mu.Lock()
	value := s.io[uint16(port)]
	s.mu.Unlock()

	return fmt.Sprintf("\n%0*x", digits, value&widthMask(digits)), nil
}

func (s *Sim) ioWrite(rw io.ReadWriter, buf *[]byte) error {
	// *wi<port>.<width>=<value>
	err := s.readInto(rw, buf, 7)
	if err != nil {
		return err
	}

	digits := hexDigits((*buf)[8])

	err = s.readInto(rw, buf, digits)
	if err != nil {
		return err
	}

	port, err := parseHex((*buf)[3:7])
	if err != nil {
		return err
	}

	value, err := parseHex((*buf)[10 : 10+digits])
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.io[uint16(port)] = value & widthMask(digits)
	s.mu.Unlock()

	return nil
}

func (s *Sim) memRead(rw io.ReadWriter, buf *[]byte) (string, error) {
	// *rm<addr>.<width>
	err := s.readInto(rw, buf, 10)
	if err != nil {
		return "", err
	}

	addr, err := parseHex((*buf)[3:11])
	if err != nil {
		return "", err
	}

	digits := hexDigits((*buf)[12])

	s.mu.Lock()
	value := s.mem[addr]
	s.mu.Unlock()

	return fmt.Sprintf("\n%0*x", digits, value&widthMask(digits)), nil
}

func (s *Sim) memWrite(rw io.ReadWriter, buf *[]byte) error {
	// *wm<addr>.<width>=<value>
	err := s.readInto(rw, buf, 11)
	if err != nil {
		return err
	}

	digits := hexDigits((*buf)[12])

	err = s.readInto(rw, buf, digits)
	if err != nil {
		return err
	}

	addr, err := parseHex((*buf)[3:11])
	if err != nil {
		return err
	}

	value, err := parseHex((*buf)[14 : 14+digits])
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.mem[addr] = value & widthMask(digits)
	s.mu.Unlock()

	return nil
}

func (s *Sim) msrRead(rw io.ReadWriter, buf *[]byte) (string, error) {
	// *rc<addr>.<key>
	err := s.readInto(rw, buf, 17)
	if err != nil {
		return "", err
	}

	addr, err := parseHex((*buf)[3:11])
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	msr := s.msrs[uint32(addr)]
	s.mu.Unlock()

	return fmt.Sprintf("\n%08x.%08x", msr.Hi, msr.Lo), nil
}

func (s *Sim) msrWrite(rw io.ReadWriter, buf *[]byte) error {
	// *wc<addr>.<key>=<hi>.<lo>
	err := s.readInto(rw, buf, 35)
	if err != nil {
		return err
	}

	addr, err := parseHex((*buf)[3:11])
	if err != nil {
		return err
	}

	hi, err := parseHex((*buf)[21:29])
	if err != nil {
		return err
	}

	lo, err := parseHex((*buf)[30:38])
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.msrs[uint32(addr)] = MSR{Hi: uint32(hi), Lo: uint32(lo)}
	s.mu.Unlock()

	return nil
}

func (s *Sim) cpuidRead(rw io.ReadWriter, buf *[]byte) (string, error) {
	// *ci<eax>.<ecx>
	err := s.readInto(rw, buf, 17)
	if err != nil {
		return "", err
	}

	eax, err := parseHex((*buf)[3:11])
	if err != nil {
		return "", err
	}

	ecx, err := parseHex((*buf)[12:20])
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	regs := s.cpuid[CPUIDKey{EAX: uint32(eax), ECX: uint32(ecx)}]
	s.mu.Unlock()

	return fmt.Sprintf("\n%08x.%08x.%08x.%08x",
		regs.EAX, regs.EBX, regs.ECX, regs.EDX), nil
}

// readInto reads n bytes one at a time, echoing each, and appends them
// to buf.
func (s *Sim) readInto(rw io.ReadWriter, buf *[]byte, n int) error {
	for i := 0; i < n; i++ {
		b, err := readByte(rw)
		if err != nil {
			return fmt.Errorf("mid command %q: %w", *buf, err)
		}

		err = writeAll(rw, []byte{b})
		if err != nil {
			return err
		}

		*buf = append(*buf, b)
	}

	return nil
}

func (s *Sim) maybeTruncate(cmd, reply string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.truncPrefix == "" || !strings.HasPrefix(cmd, s.truncPrefix) {
		return reply
	}

	s.truncPrefix = ""
	s.truncated = true

	if s.truncDrop >= len(reply) {
		return ""
	}

	return reply[:len(reply)-s.truncDrop]
}

func hexDigits(width byte) int {
	switch width {
	case 'b':
		return 2
	case 'w':
		return 4
	case 'l':
		return 8
	case 'q':
		return 16
	default:
		return 0
	}
}

func widthMask(digits int) uint64 {
	if digits >= 16 {
		return ^uint64(0)
	}

	return 1<<(4*digits) - 1
}

func parseHex(b []byte) (uint64, error) {
	v, err := strconv.ParseUint(string(b), 16, 64)
	if err != nil {
		return 0, fmt.Errorf("bad hex field %q: %w", b, err)
	}

	return v, nil
}

func readByte(r io.Reader) (byte, error) {
	var b [1]byte

	for {
		n, err := r.Read(b[:])
		if n == 1 {
			return b[0], nil
		}

		if err != nil {
			return 0, err
		}
	}
}

func writeAll(w io.Writer, p []byte) error {
	_, err := w.Write(p)
	if err != nil {
		return fmt.Errorf("write reply: %w", err)
	}

	return nil
}
