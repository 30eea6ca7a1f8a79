// SPDX-FileCopyrightText: 2026 The icewire authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package bridge

import "github.com/icewire/icewire/target"

// Filter decides per access where it is routed and may rewrite values
// on the way in and out. Pre hooks run before any backend is touched,
// post hooks after all routed backends answered.
//
// Embed [Passthrough] to implement only the hooks a policy cares about.
type Filter interface {
	// IOReadPre routes a port read.
	IOReadPre(port uint16, size target.Size) Route
	// IOReadPost may rewrite the value a port read produced.
	IOReadPost(value uint64) uint64

	// IOWritePre routes a port write and may rewrite the value.
	IOWritePre(port uint16, size target.Size, value uint64) (Route, uint64)
	// IOWritePost runs after a port write was dispatched.
	IOWritePost()

	// LoadPre routes a memory read.
	LoadPre(addr uint32, size target.Size) Route
	// LoadPost may rewrite the value a memory read produced. It only
	// runs when the bridge handled the read, see [Bridge.Load].
	LoadPost(value uint64) uint64

	// StorePre routes a memory write and may rewrite the value.
	StorePre(addr uint32, size target.Size, value uint64) (Route, uint64)
	// StorePost runs after a memory write was dispatched, whether the
	// bridge handled it or not.
	StorePost()

	// RDMSRPre routes a model specific register read.
	RDMSRPre(addr uint32) Route
	// RDMSRPost may rewrite the halves of a register read.
	RDMSRPost(hi, lo uint32) (uint32, uint32)

	// WRMSRPre routes a model specific register write and may rewrite
	// the halves.
	WRMSRPre(addr, hi, lo uint32) (Route, uint32, uint32)
	// WRMSRPost runs after a register write was dispatched.
	WRMSRPost()

	// CPUIDPre routes a cpuid execution.
	CPUIDPre(eax, ecx uint32) Route
	// CPUIDPost may rewrite the returned register set.
	CPUIDPost(regs target.CPUIDRegs) target.CPUIDRegs
}

// Passthrough is the neutral [Filter]: every access goes to the real
// hardware with values unchanged.
type Passthrough struct{}

// IOReadPre implements [Filter].
func (Passthrough) IOReadPre(uint16, target.Size) Route { return RouteTarget }

// IOReadPost implements [Filter].
func (Passthrough) IOReadPost(value uint64) uint64 { return value }

// IOWritePre implements [Filter].
func (Passthrough) IOWritePre(_ uint16, _ target.Size, value uint64) (Route, uint64) {
	return RouteTarget, value
}

// IOWritePost implements [Filter].
func (Passthrough) IOWritePost() {}

// LoadPre implements [Filter].
func (Passthrough) LoadPre(uint32, target.Size) Route { return RouteTarget }

// LoadPost implements [Filter].
func (Passthrough) LoadPost(value uint64) uint64 { return value }

// StorePre implements [Filter].
func (Passthrough) StorePre(_ uint32, _ target.Size, value uint64) (Route, uint64) {
	return RouteTarget, value
}

// StorePost implements [Filter].
func (Passthrough) StorePost() {}

// RDMSRPre implements [Filter].
func (Passthrough) RDMSRPre(uint32) Route { return RouteTarget }

// RDMSRPost implements [Filter].
func (Passthrough) RDMSRPost(hi, lo uint32) (uint32, uint32) { return hi, lo }

// WRMSRPre implements [Filter].
func (Passthrough) WRMSRPre(_, hi, lo uint32) (Route, uint32, uint32) {
	return RouteTarget, hi, lo
}

// WRMSRPost implements [Filter].
func (Passthrough) WRMSRPost() {}

// CPUIDPre implements [Filter].
func (Passthrough) CPUIDPre(uint32, uint32) Route { return RouteTarget }

// CPUIDPost implements [Filter].
func (Passthrough) CPUIDPost(regs target.CPUIDRegs) target.CPUIDRegs { return regs }
