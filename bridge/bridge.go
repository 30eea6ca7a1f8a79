// SPDX-FileCopyrightText: 2026 The icewire authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package bridge

import (
	"fmt"

	"github.com/icewire/icewire/target"
)

// Target is the real-hardware side of the bridge. [target.Session]
// implements it.
type Target interface {
	IORead(port uint16, size target.Size) (uint64, error)
	IOWrite(port uint16, size target.Size, value uint64) error
	Load(addr uint32, size target.Size) (uint64, error)
	Store(addr uint32, size target.Size, value uint64) error
	RDMSR(addr, key uint32) (uint32, uint32, error)
	WRMSR(addr, key, hi, lo uint32) error
	CPUID(eax, ecx uint32) (target.CPUIDRegs, error)
}

// Emulator is the emulated-machine side of the bridge. Memory accesses
// never reach it: when a load or store is routed to the emulated
// machine the bridge reports the access unhandled and the caller's own
// memory model applies it, see [Bridge.Load] and [Bridge.Store].
type Emulator interface {
	IORead(port uint16, size target.Size) (uint64, error)
	IOWrite(port uint16, size target.Size, value uint64) error
	RDMSR(addr, key uint32) (uint32, uint32, error)
	WRMSR(addr, key, hi, lo uint32) error
	CPUID(eax, ecx uint32) (target.CPUIDRegs, error)
}

// ZeroEmulator is an [Emulator] without state. Reads answer zero,
// writes vanish. It stands in when no emulated machine is attached.
type ZeroEmulator struct{}

// IORead implements [Emulator].
func (ZeroEmulator) IORead(uint16, target.Size) (uint64, error) { return 0, nil }

// IOWrite implements [Emulator].
func (ZeroEmulator) IOWrite(uint16, target.Size, uint64) error { return nil }

// RDMSR implements [Emulator].
func (ZeroEmulator) RDMSR(uint32, uint32) (uint32, uint32, error) { return 0, 0, nil }

// WRMSR implements [Emulator].
func (ZeroEmulator) WRMSR(uint32, uint32, uint32, uint32) error { return nil }

// CPUID implements [Emulator].
func (ZeroEmulator) CPUID(uint32, uint32) (target.CPUIDRegs, error) {
	return target.CPUIDRegs{}, nil
}

// Bridge routes hardware accesses between a target and an emulator
// according to a filter. The zero value is not usable, see [New].
//
// A Bridge is not safe for concurrent use, accesses are strictly
// serialized like the underlying session.
type Bridge struct {
	target   Target
	emulator Emulator
	filter   Filter
}

// New returns a Bridge. The target side is required. A nil emulator is
// replaced by [ZeroEmulator], a nil filter by [Passthrough].
func New(t Target, e Emulator, f Filter) *Bridge {
	if e == nil {
		e = ZeroEmulator{}
	}

	if f == nil {
		f = Passthrough{}
	}

	return &Bridge{
		target:   t,
		emulator: e,
		filter:   f,
	}
}

// IORead reads an I/O port from the routed backends. When both sides
// are selected the emulated value is applied last and wins. The result
// is masked to the access width before and after the post hook.
func (b *Bridge) IORead(port uint16, size target.Size) (uint64, error) {
	route := b.filter.IOReadPre(port, size)

	var data uint64

	if route.Target() {
		v, err := b.target.IORead(port, size)
		if err != nil {
			return 0, fmt.Errorf("target: %w", err)
		}

		data = v
	}

	if route.Emulator() {
		v, err := b.emulator.IORead(port, size)
		if err != nil {
			return 0, fmt.Errorf("emulator: %w", err)
		}

		data = v
	}

	data = b.filter.IOReadPost(data & size.Mask())

	return data & size.Mask(), nil
}

// IOWrite writes an I/O port on every routed backend. The value is
// masked to the access width before and after the pre hook.
func (b *Bridge) IOWrite(port uint16, size target.Size, value uint64) error {
	route, value := b.filter.IOWritePre(port, size, value&size.Mask())
	value &= size.Mask()

	if route.Emulator() {
		err := b.emulator.IOWrite(port, size, value)
		if err != nil {
			return fmt.Errorf("emulator: %w", err)
		}
	}

	if route.Target() {
		err := b.target.IOWrite(port, size, value)
		if err != nil {
			return fmt.Errorf("target: %w", err)
		}
	}

	b.filter.IOWritePost()

	return nil
}

// Load reads memory. It reports handled=false when the access is routed
// to the emulated machine: the bridge's value is then meaningless and
// the caller's memory model serves the read, so the post hook is
// skipped as well.
func (b *Bridge) Load(addr uint32, size target.Size) (uint64, bool, error) {
	route := b.filter.LoadPre(addr, size)

	var data uint64

	if route.Target() {
		v, err := b.target.Load(addr, size)
		if err != nil {
			return 0, false, fmt.Errorf("target: %w", err)
		}

		data = v
	}

	handled := !route.Emulator()
	if handled {
		data = b.filter.LoadPost(data)
	}

	return data, handled, nil
}

// Store writes memory on the target if routed there. It reports
// handled=false when the access is also meant for the emulated machine,
// whose memory model the caller must apply itself. The post hook runs
// either way.
func (b *Bridge) Store(addr uint32, size target.Size, value uint64) (bool, error) {
	route, value := b.filter.StorePre(addr, size, value)

	if route.Target() {
		err := b.target.Store(addr, size, value)
		if err != nil {
			return false, fmt.Errorf("target: %w", err)
		}
	}

	b.filter.StorePost()

	return !route.Emulator(), nil
}

// RDMSR reads a model specific register from the routed backends and
// returns the combined 64 bit value. When both sides are selected the
// emulated value is applied last and wins.
func (b *Bridge) RDMSR(addr, key uint32) (uint64, error) {
	route := b.filter.RDMSRPre(addr)

	var hi, lo uint32

	if route.Target() {
		h, l, err := b.target.RDMSR(addr, key)
		if err != nil {
			return 0, fmt.Errorf("target: %w", err)
		}

		hi, lo = h, l
	}

	if route.Emulator() {
		h, l, err := b.emulator.RDMSR(addr, key)
		if err != nil {
			return 0, fmt.Errorf("emulator: %w", err)
		}

		hi, lo = h, l
	}

	hi, lo = b.filter.RDMSRPost(hi, lo)

	return uint64(hi)<<32 | uint64(lo), nil
}

// WRMSR writes a model specific register on every routed backend.
func (b *Bridge) WRMSR(addr, key uint32, value uint64) error {
	hi := uint32(value >> 32)
	lo := uint32(value)

	route, hi, lo := b.filter.WRMSRPre(addr, hi, lo)

	if route.Target() {
		err := b.target.WRMSR(addr, key, hi, lo)
		if err != nil {
			return fmt.Errorf("target: %w", err)
		}
	}

	if route.Emulator() {
		err := b.emulator.WRMSR(addr, key, hi, lo)
		if err != nil {
			return fmt.Errorf("emulator: %w", err)
		}
	}

	b.filter.WRMSRPost()

	return nil
}

// CPUID executes cpuid on the routed backends. When both sides are
// selected the emulated register set is applied last and wins.
func (b *Bridge) CPUID(eax, ecx uint32) (target.CPUIDRegs, error) {
	route := b.filter.CPUIDPre(eax, ecx)

	var regs target.CPUIDRegs

	if route.Target() {
		r, err := b.target.CPUID(eax, ecx)
		if err != nil {
			return target.CPUIDRegs{}, fmt.Errorf("target: %w", err)
		}

		regs = r
	}

	if route.Emulator() {
		r, err := b.emulator.CPUID(eax, ecx)
		if err != nil {
			return target.CPUIDRegs{}, fmt.Errorf("emulator: %w", err)
		}

		regs = r
	}

	return b.filter.CPUIDPost(regs), nil
}
