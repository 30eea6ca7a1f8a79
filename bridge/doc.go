// SPDX-FileCopyrightText: 2026 The icewire authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package bridge multiplexes hardware accesses between the real target
// and an emulated machine.
//
// Every access is wrapped in a pair of [Filter] hooks: the pre hook
// decides the [Route] and may rewrite outgoing values, the post hook
// may rewrite results. When a read is routed to both sides, the
// emulated value is applied last and wins. Memory accesses additionally
// report whether the bridge handled them or whether the caller's own
// memory model must, see [Bridge.Load] and [Bridge.Store].
package bridge
