// SPDX-FileCopyrightText: 2026 The icewire authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package bridge

import "fmt"

const (
	// RouteNone drops the access entirely.
	RouteNone Route = 0

	// RouteEmulator directs the access at the emulated machine.
	RouteEmulator Route = 1 << 0

	// RouteTarget directs the access at the real hardware.
	RouteTarget Route = 1 << 1

	// RouteBoth fans the access out to both sides.
	RouteBoth = RouteEmulator | RouteTarget
)

// Route is the bitmask a [Filter] produces per access to pick the
// backends serving it. It is never persisted, every access is decided
// anew.
type Route uint8

// Target reports whether the access goes to the real hardware.
func (r Route) Target() bool {
	return r&RouteTarget != 0
}

// Emulator reports whether the access goes to the emulated machine.
func (r Route) Emulator() bool {
	return r&RouteEmulator != 0
}

// String implements [fmt.Stringer].
func (r Route) String() string {
	switch r {
	case RouteNone:
		return "none"
	case RouteEmulator:
		return "emulator"
	case RouteTarget:
		return "target"
	case RouteBoth:
		return "both"
	default:
		return fmt.Sprintf("route(%#x)", uint8(r))
	}
}
