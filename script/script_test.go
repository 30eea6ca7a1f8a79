// SPDX-FileCopyrightText: 2026 The icewire authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package script_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/icewire/icewire/bridge"
	"github.com/icewire/icewire/script"
	"github.com/icewire/icewire/target"
)

var _ bridge.Filter = (*script.Filter)(nil)

func loadString(t *testing.T, src string, opts script.Options) *script.Filter {
	t.Helper()

	f, err := script.LoadString(src, opts)
	require.NoError(t, err)
	t.Cleanup(f.Close)

	return f
}

func TestFilterEmptyScript(t *testing.T) {
	f := loadString(t, "", script.Options{})

	// Without hook functions everything keeps the passthrough
	// behavior.
	assert.Equal(t, bridge.RouteTarget, f.IOReadPre(0x80, target.SizeByte))
	assert.Equal(t, uint64(0x12), f.IOReadPost(0x12))

	route, value := f.IOWritePre(0x80, target.SizeByte, 0x34)
	assert.Equal(t, bridge.RouteTarget, route)
	assert.Equal(t, uint64(0x34), value)

	assert.Equal(t, bridge.RouteTarget, f.LoadPre(0x100000, target.SizeQuad))
	assert.Equal(t, uint64(0x56), f.LoadPost(0x56))

	route, value = f.StorePre(0x100000, target.SizeLong, 0x78)
	assert.Equal(t, bridge.RouteTarget, route)
	assert.Equal(t, uint64(0x78), value)

	assert.Equal(t, bridge.RouteTarget, f.RDMSRPre(0x8b))

	hi, lo := f.RDMSRPost(0x1, 0x2)
	assert.Equal(t, uint32(0x1), hi)
	assert.Equal(t, uint32(0x2), lo)

	route, hi, lo = f.WRMSRPre(0x8b, 0x3, 0x4)
	assert.Equal(t, bridge.RouteTarget, route)
	assert.Equal(t, uint32(0x3), hi)
	assert.Equal(t, uint32(0x4), lo)

	assert.Equal(t, bridge.RouteTarget, f.CPUIDPre(1, 0))

	regs := target.CPUIDRegs{EAX: 1, EBX: 2, ECX: 3, EDX: 4}
	assert.Equal(t, regs, f.CPUIDPost(regs))

	f.IOWritePost()
	f.StorePost()
	f.WRMSRPost()
	assert.NoError(t, f.Err())
}

func TestFilterRoutes(t *testing.T) {
	f := loadString(t, `
		function io_read_pre(port, size)
			if port == 0x80 then return NONE end
			if port == 0x3f8 then return EMULATOR end
			if port == 0xcf8 then return BOTH end
			return TARGET
		end
	`, script.Options{})

	assert.Equal(t, bridge.RouteNone, f.IOReadPre(0x80, target.SizeByte))
	assert.Equal(t, bridge.RouteEmulator, f.IOReadPre(0x3f8, target.SizeByte))
	assert.Equal(t, bridge.RouteBoth, f.IOReadPre(0xcf8, target.SizeLong))
	assert.Equal(t, bridge.RouteTarget, f.IOReadPre(0x60, target.SizeByte))
	assert.NoError(t, f.Err())
}

func TestFilterSizeArgument(t *testing.T) {
	f := loadString(t, `
		function load_pre(addr, size)
			if size == 8 then return EMULATOR end
			return TARGET
		end
	`, script.Options{})

	assert.Equal(t, bridge.RouteEmulator, f.LoadPre(0, target.SizeQuad))
	assert.Equal(t, bridge.RouteTarget, f.LoadPre(0, target.SizeWord))
}

func TestFilterRewrites(t *testing.T) {
	f := loadString(t, `
		function io_read_post(value)
			return value + 1
		end

		function io_write_pre(port, size, value)
			return BOTH, 0x12
		end

		function store_pre(addr, size, value)
			return NONE, value
		end

		function load_post(value)
			return 0xfee1dead
		end

		function rdmsr_post(hi, lo)
			return lo, hi
		end

		function wrmsr_pre(addr, hi, lo)
			return TARGET, hi + 1, lo + 1
		end

		function cpuid_post(eax, ebx, ecx, edx)
			return eax, ebx, ecx, 0x80000000
		end
	`, script.Options{})

	assert.Equal(t, uint64(0x43), f.IOReadPost(0x42))

	route, value := f.IOWritePre(0x80, target.SizeByte, 0xff)
	assert.Equal(t, bridge.RouteBoth, route)
	assert.Equal(t, uint64(0x12), value)

	route, value = f.StorePre(0x100000, target.SizeByte, 0x55)
	assert.Equal(t, bridge.RouteNone, route)
	assert.Equal(t, uint64(0x55), value)

	assert.Equal(t, uint64(0xfee1dead), f.LoadPost(0))

	hi, lo := f.RDMSRPost(0x1, 0x2)
	assert.Equal(t, uint32(0x2), hi)
	assert.Equal(t, uint32(0x1), lo)

	route, hi, lo = f.WRMSRPre(0x8b, 0x10, 0x20)
	assert.Equal(t, bridge.RouteTarget, route)
	assert.Equal(t, uint32(0x11), hi)
	assert.Equal(t, uint32(0x21), lo)

	regs := f.CPUIDPost(target.CPUIDRegs{EAX: 1, EBX: 2, ECX: 3, EDX: 4})
	assert.Equal(t, target.CPUIDRegs{EAX: 1, EBX: 2, ECX: 3, EDX: 0x80000000}, regs)
	assert.NoError(t, f.Err())
}

func TestFilterKeepsState(t *testing.T) {
	f := loadString(t, `
		count = 0

		function io_write_post()
			count = count + 1
		end

		function io_read_post(value)
			return count
		end
	`, script.Options{})

	f.IOWritePost()
	f.IOWritePost()
	f.IOWritePost()

	assert.Equal(t, uint64(3), f.IOReadPost(0))
}

func TestFilterOptions(t *testing.T) {
	f := loadString(t, `
		function io_read_pre(port, size)
			if MAINBOARD == "ICEWIRE/SIM" then return EMULATOR end
			return TARGET
		end
	`, script.Options{Version: "SerialICE v1.6", Mainboard: "ICEWIRE/SIM"})

	assert.Equal(t, bridge.RouteEmulator, f.IOReadPre(0x80, target.SizeByte))
}

func TestFilterHookError(t *testing.T) {
	f := loadString(t, `
		function io_read_pre(port, size)
			error("boom")
		end

		function io_read_post(value)
			return value + 1
		end
	`, script.Options{})

	// The failing hook falls back to passthrough behavior and the
	// error sticks, but other hooks keep working.
	assert.Equal(t, bridge.RouteTarget, f.IOReadPre(0x80, target.SizeByte))
	require.Error(t, f.Err())
	assert.ErrorContains(t, f.Err(), "boom")
	assert.Equal(t, uint64(0x11), f.IOReadPost(0x10))
}

func TestFilterBadReturns(t *testing.T) {
	f := loadString(t, `
		function io_read_pre(port, size)
			return "banana"
		end

		function io_read_post(value)
		end

		function rdmsr_post(hi, lo)
			return hi
		end
	`, script.Options{})

	assert.Equal(t, bridge.RouteTarget, f.IOReadPre(0x80, target.SizeByte))
	assert.Equal(t, uint64(0x10), f.IOReadPost(0x10))

	// A short return keeps the remaining inputs.
	hi, lo := f.RDMSRPost(0x1, 0x2)
	assert.Equal(t, uint32(0x1), hi)
	assert.Equal(t, uint32(0x2), lo)
	assert.NoError(t, f.Err())
}

func TestLoadStringError(t *testing.T) {
	_, err := script.LoadString("function (", script.Options{})
	require.Error(t, err)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "filter.lua")
	src := []byte(`
		log("filter loaded")

		function io_read_pre(port, size)
			return EMULATOR
		end
	`)
	require.NoError(t, os.WriteFile(path, src, 0o600))

	f, err := script.LoadFile(path, script.Options{})
	require.NoError(t, err)
	t.Cleanup(f.Close)

	assert.Equal(t, bridge.RouteEmulator, f.IOReadPre(0x80, target.SizeByte))
}

func TestLoadFileMissing(t *testing.T) {
	_, err := script.LoadFile(filepath.Join(t.TempDir(), "no.lua"), script.Options{})
	require.Error(t, err)
}
