package mem

import (
	"testing"

	"github.com/stretchr/testify/require"

	"kcore/kernel/kfmt"
)

func mockPanic(t *testing.T) {
	t.Helper()
	panicFn = func(e interface{}) { panic(e) }
	t.Cleanup(func() { panicFn = kfmt.Panic })
}

func TestArenaContains(t *testing.T) {
	arena := NewArena(0x1000, 4*Kb)
	require.Equal(t, uintptr(0x1000), arena.Base())
	require.Equal(t, 4*Kb, arena.Size())

	specs := []struct {
		addr   uintptr
		length Size
		exp    bool
	}{
		{0x1000, 4 * Kb, true},
		{0x1000, 0, true},
		{0x1ffc, 4, true},
		{0x2000, 0, true},
		{0x1ffd, 4, false},
		{0x0fff, 1, false},
		{0x2000, 1, false},
		{0x1000, 4*Kb + 1, false},
	}

	for specIndex, spec := range specs {
		require.Equal(t, spec.exp, arena.Contains(spec.addr, spec.length), "spec %d", specIndex)
	}
}

func TestArenaUint32(t *testing.T) {
	arena := NewArena(0x100000, 64)

	arena.PutUint32(0x100004, 0xdeadbeef)
	require.Equal(t, uint32(0xdeadbeef), arena.Uint32(0x100004))
	require.Equal(t, []byte{0xef, 0xbe, 0xad, 0xde}, arena.Bytes(0x100004, 4), "expected little-endian layout")

	// unaligned accesses are allowed
	arena.PutUint32(0x100011, 0x01020304)
	require.Equal(t, uint32(0x01020304), arena.Uint32(0x100011))
}

func TestArenaOutOfRange(t *testing.T) {
	mockPanic(t)

	arena := NewArena(0x1000, 16)

	require.PanicsWithValue(t, errOutOfRange, func() { arena.Uint32(0x100e) })
	require.PanicsWithValue(t, errOutOfRange, func() { arena.PutUint32(0x0ffc, 1) })
	require.PanicsWithValue(t, errOutOfRange, func() { arena.Bytes(0x1000, 17) })
	require.PanicsWithValue(t, errOutOfRange, func() { arena.Memset(0x1008, 0xff, 9) })
}

func TestArenaMemset(t *testing.T) {
	arena := NewArena(0, 4*Kb)

	for _, size := range []Size{1, 3, 64, 1000, 4 * Kb} {
		arena.Memset(0, 0, 4*Kb)
		arena.Memset(0, 0xfe, size)

		for i, b := range arena.Bytes(0, 4*Kb) {
			if Size(i) < size {
				require.Equal(t, byte(0xfe), b, "size %d: byte %d", size, i)
			} else {
				require.Zero(t, b, "size %d: byte %d must not be touched", size, i)
			}
		}
	}

	// a zero-length Memset is a no-op even at the end of the arena
	arena.Memset(4096, 1, 0)
}

func TestArenaMemcopy(t *testing.T) {
	arena := NewArena(0x8000, 32)
	copy(arena.Bytes(0x8000, 8), "kcore!!!")

	arena.Memcopy(0x8000, 0x8010, 8)
	require.Equal(t, []byte("kcore!!!"), arena.Bytes(0x8010, 8))

	// overlapping copy
	arena.Memcopy(0x8000, 0x8002, 8)
	require.Equal(t, []byte("kckcore!!!"), arena.Bytes(0x8000, 10))

	arena.Memcopy(0x8000, 0x8010, 0)
}
