// SPDX-FileCopyrightText: 2026 The icewire authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package script runs Lua scripts as bridge filters.
//
// A script defines any subset of the hook functions io_read_pre,
// io_read_post, io_write_pre, io_write_post, load_pre, load_post,
// store_pre, store_post, rdmsr_pre, rdmsr_post, wrmsr_pre, wrmsr_post,
// cpuid_pre and cpuid_post. Pre hooks receive the access parameters and
// return a route built from the TARGET, EMULATOR, BOTH and NONE
// globals. Post hooks may rewrite result values. Hooks the script does
// not define keep the passthrough behavior.
//
// Lua numbers are float64, so values above 2^53 lose precision on the
// way through a script. Model specific registers are passed as 32 bit
// halves to keep the common cases exact.
package script

import (
	"fmt"
	"log/slog"

	lua "github.com/yuin/gopher-lua"

	"github.com/icewire/icewire/bridge"
	"github.com/icewire/icewire/target"
)

var hookNames = []string{
	"io_read_pre", "io_read_post",
	"io_write_pre", "io_write_post",
	"load_pre", "load_post",
	"store_pre", "store_post",
	"rdmsr_pre", "rdmsr_post",
	"wrmsr_pre", "wrmsr_post",
	"cpuid_pre", "cpuid_post",
}

// Options carries values exposed to the script as globals before it
// runs.
type Options struct {
	// Version is exposed as the VERSION global.
	Version string
	// Mainboard is exposed as the MAINBOARD global.
	Mainboard string
}

// Filter is a [bridge.Filter] backed by a Lua script. It is not safe
// for concurrent use and must be released with [Filter.Close].
type Filter struct {
	state *lua.LState
	hooks map[string]lua.LValue
	err   error
}

// LoadFile runs the script at path and returns a Filter serving its
// hook functions.
func LoadFile(path string, opts Options) (*Filter, error) {
	return load(opts, func(state *lua.LState) error {
		return state.DoFile(path)
	})
}

// LoadString is [LoadFile] for in-memory scripts.
func LoadString(src string, opts Options) (*Filter, error) {
	return load(opts, func(state *lua.LState) error {
		return state.DoString(src)
	})
}

func load(opts Options, run func(*lua.LState) error) (*Filter, error) {
	state := lua.NewState()

	state.SetGlobal("TARGET", lua.LNumber(bridge.RouteTarget))
	state.SetGlobal("EMULATOR", lua.LNumber(bridge.RouteEmulator))
	state.SetGlobal("BOTH", lua.LNumber(bridge.RouteBoth))
	state.SetGlobal("NONE", lua.LNumber(bridge.RouteNone))
	state.SetGlobal("VERSION", lua.LString(opts.Version))
	state.SetGlobal("MAINBOARD", lua.LString(opts.Mainboard))
	state.SetGlobal("log", state.NewFunction(logText))

	err := run(state)
	if err != nil {
		state.Close()
		return nil, fmt.Errorf("run script: %w", err)
	}

	hooks := make(map[string]lua.LValue, len(hookNames))

	for _, name := range hookNames {
		value := state.GetGlobal(name)
		if value.Type() == lua.LTFunction {
			hooks[name] = value
		}
	}

	return &Filter{
		state: state,
		hooks: hooks,
	}, nil
}

// logText serves the log global.
func logText(state *lua.LState) int {
	slog.Info("Script", slog.String("message", state.CheckString(1)))
	return 0
}

// Close releases the Lua state.
func (f *Filter) Close() {
	f.state.Close()
}

// Err returns the first hook failure, or nil. A failed hook falls back
// to the passthrough behavior and the filter keeps serving accesses;
// callers that want to stop on script bugs must check.
func (f *Filter) Err() error {
	return f.err
}

// call runs the named hook and returns its nret results. It returns
// nil when the script does not define the hook or the call failed.
func (f *Filter) call(name string, nret int, args ...lua.LValue) []lua.LValue {
	fn, ok := f.hooks[name]
	if !ok {
		return nil
	}

	err := f.state.CallByParam(lua.P{
		Fn:      fn,
		NRet:    nret,
		Protect: true,
	}, args...)
	if err != nil {
		f.fail(name, err)
		return nil
	}

	results := make([]lua.LValue, nret)

	for idx := nret - 1; idx >= 0; idx-- {
		results[idx] = f.state.Get(-1)
		f.state.Pop(1)
	}

	return results
}

func (f *Filter) fail(hook string, err error) {
	slog.Error("Script hook failed",
		slog.String("hook", hook),
		slog.Any("error", err))

	if f.err == nil {
		f.err = fmt.Errorf("hook %s: %w", hook, err)
	}
}

// routeValue reads a route returned by a pre hook. Anything that is
// not a number keeps the fallback.
func routeValue(value lua.LValue, fallback bridge.Route) bridge.Route {
	num, ok := value.(lua.LNumber)
	if !ok {
		return fallback
	}

	return bridge.Route(uint8(int64(num)))
}

// numValue reads a 64 bit value returned by a hook. Anything that is
// not a number keeps the fallback, so hooks may return nothing to leave
// a value alone.
func numValue(value lua.LValue, fallback uint64) uint64 {
	num, ok := value.(lua.LNumber)
	if !ok {
		return fallback
	}

	return uint64(int64(num))
}

// regValue is [numValue] for 32 bit register halves.
func regValue(value lua.LValue, fallback uint32) uint32 {
	num, ok := value.(lua.LNumber)
	if !ok {
		return fallback
	}

	return uint32(int64(num))
}

// IOReadPre implements [bridge.Filter].
func (f *Filter) IOReadPre(port uint16, size target.Size) bridge.Route {
	res := f.call("io_read_pre", 1, lua.LNumber(port), lua.LNumber(size))
	if res == nil {
		return bridge.RouteTarget
	}

	return routeValue(res[0], bridge.RouteTarget)
}

// IOReadPost implements [bridge.Filter].
func (f *Filter) IOReadPost(value uint64) uint64 {
	res := f.call("io_read_post", 1, lua.LNumber(value))
	if res == nil {
		return value
	}

	return numValue(res[0], value)
}

// IOWritePre implements [bridge.Filter].
func (f *Filter) IOWritePre(port uint16, size target.Size, value uint64) (bridge.Route, uint64) {
	res := f.call("io_write_pre", 2,
		lua.LNumber(port), lua.LNumber(size), lua.LNumber(value))
	if res == nil {
		return bridge.RouteTarget, value
	}

	return routeValue(res[0], bridge.RouteTarget), numValue(res[1], value)
}

// IOWritePost implements [bridge.Filter].
func (f *Filter) IOWritePost() {
	f.call("io_write_post", 0)
}

// LoadPre implements [bridge.Filter].
func (f *Filter) LoadPre(addr uint32, size target.Size) bridge.Route {
	res := f.call("load_pre", 1, lua.LNumber(addr), lua.LNumber(size))
	if res == nil {
		return bridge.RouteTarget
	}

	return routeValue(res[0], bridge.RouteTarget)
}

// LoadPost implements [bridge.Filter].
func (f *Filter) LoadPost(value uint64) uint64 {
	res := f.call("load_post", 1, lua.LNumber(value))
	if res == nil {
		return value
	}

	return numValue(res[0], value)
}

// StorePre implements [bridge.Filter].
func (f *Filter) StorePre(addr uint32, size target.Size, value uint64) (bridge.Route, uint64) {
	res := f.call("store_pre", 2,
		lua.LNumber(addr), lua.LNumber(size), lua.LNumber(value))
	if res == nil {
		return bridge.RouteTarget, value
	}

	return routeValue(res[0], bridge.RouteTarget), numValue(res[1], value)
}

// StorePost implements [bridge.Filter].
func (f *Filter) StorePost() {
	f.call("store_post", 0)
}

// RDMSRPre implements [bridge.Filter].
func (f *Filter) RDMSRPre(addr uint32) bridge.Route {
	res := f.call("rdmsr_pre", 1, lua.LNumber(addr))
	if res == nil {
		return bridge.RouteTarget
	}

	return routeValue(res[0], bridge.RouteTarget)
}

// RDMSRPost implements [bridge.Filter].
func (f *Filter) RDMSRPost(hi, lo uint32) (uint32, uint32) {
	res := f.call("rdmsr_post", 2, lua.LNumber(hi), lua.LNumber(lo))
	if res == nil {
		return hi, lo
	}

	return regValue(res[0], hi), regValue(res[1], lo)
}

// WRMSRPre implements [bridge.Filter].
func (f *Filter) WRMSRPre(addr, hi, lo uint32) (bridge.Route, uint32, uint32) {
	res := f.call("wrmsr_pre", 3,
		lua.LNumber(addr), lua.LNumber(hi), lua.LNumber(lo))
	if res == nil {
		return bridge.RouteTarget, hi, lo
	}

	return routeValue(res[0], bridge.RouteTarget),
		regValue(res[1], hi),
		regValue(res[2], lo)
}

// WRMSRPost implements [bridge.Filter].
func (f *Filter) WRMSRPost() {
	f.call("wrmsr_post", 0)
}

// CPUIDPre implements [bridge.Filter].
func (f *Filter) CPUIDPre(eax, ecx uint32) bridge.Route {
	res := f.call("cpuid_pre", 1, lua.LNumber(eax), lua.LNumber(ecx))
	if res == nil {
		return bridge.RouteTarget
	}

	return routeValue(res[0], bridge.RouteTarget)
}

// CPUIDPost implements [bridge.Filter].
func (f *Filter) CPUIDPost(regs target.CPUIDRegs) target.CPUIDRegs {
	res := f.call("cpuid_post", 4,
		lua.LNumber(regs.EAX), lua.LNumber(regs.EBX),
		lua.LNumber(regs.ECX), lua.LNumber(regs.EDX))
	if res == nil {
		return regs
	}

	return target.CPUIDRegs{
		EAX: regValue(res[0], regs.EAX),
		EBX: regValue(res[1], regs.EBX),
		ECX: regValue(res[2], regs.ECX),
		EDX: regValue(res[3], regs.EDX),
	}
}
