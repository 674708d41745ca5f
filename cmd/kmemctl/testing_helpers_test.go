package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"kcore/kernel/hal/multiboot"
	"kcore/kernel/mem"
)

// qemuMemoryMap is the memory map reported by qemu for a machine with 128M
// of RAM.
var qemuMemoryMap = []multiboot.MemoryMapEntry{
	{PhysAddress: 0, Length: 0x9fc00, Type: multiboot.MemAvailable},
	{PhysAddress: 0x9fc00, Length: 0x400, Type: multiboot.MemReserved},
	{PhysAddress: 0xf0000, Length: 0x10000, Type: multiboot.MemReserved},
	{PhysAddress: 0x100000, Length: 0x7ee0000, Type: multiboot.MemAvailable},
	{PhysAddress: 0x7fe0000, Length: 0x20000, Type: multiboot.MemReserved},
	{PhysAddress: 0xfffc0000, Length: 0x40000, Type: multiboot.MemReserved},
}

// writeDump encodes entries into a memory map dump inside a temp dir and
// returns its path.
func writeDump(t *testing.T, entries []multiboot.MemoryMapEntry) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.mmap")
	require.NoError(t, os.WriteFile(path, multiboot.EncodeMemoryMap(entries), 0o600))
	return path
}

// resetFlags restores every flag to its default value.
func resetFlags() {
	verbose, quiet, jsonOut = false, false, false
	bootMaxHeap = uint64(16 * mem.Mb)
	bootTrace = ""
	bootInfoAddr = 0x9000
	bootScreen = false
}

// captureOutput captures stdout while running a function
func captureOutput(t *testing.T, fn func() error) (string, error) {
	t.Helper()

	origStdout := os.Stdout

	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout = w

	fnErr := fn()

	w.Close()
	os.Stdout = origStdout

	var buf bytes.Buffer
	_, err = buf.ReadFrom(r)
	require.NoError(t, err)

	return buf.String(), fnErr
}
