package hal

import (
	"testing"

	"github.com/stretchr/testify/require"

	"kcore/kernel/driver/video/console"
	"kcore/kernel/mem"
)

func TestInitTerminal(t *testing.T) {
	require.False(t, InitTerminal(mem.NewArena(0, 4*mem.Kb)))

	physMem := mem.Banks{
		mem.NewArena(0, 4*mem.Kb),
		mem.NewArena(console.EgaPhysAddr, console.EgaBufferSize),
	}
	physMem.Bytes(console.EgaPhysAddr, 2)[0] = 'x'

	require.True(t, InitTerminal(physMem))
	require.Empty(t, Screen(), "expected terminal to be cleared")

	_, err := ActiveTerminal.Write([]byte("[kmain] hello\n\n[heap] world"))
	require.NoError(t, err)
	require.Equal(t, []string{"[kmain] hello", "", "[heap] world"}, Screen())
}
