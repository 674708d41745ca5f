package tty

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"kcore/kernel/cpu"
	"kcore/kernel/driver/video/console"
	"kcore/kernel/mem"
)

func newTestVt(t *testing.T) (*Vt, *console.Ega) {
	t.Helper()

	var cons console.Ega
	require.Nil(t, cons.Init(console.EgaWidth, console.EgaHeight, console.EgaPhysAddr, mem.NewArena(console.EgaPhysAddr, console.EgaBufferSize)))

	var vt Vt
	vt.AttachTo(&cons)
	return &vt, &cons
}

func TestVtPosition(t *testing.T) {
	specs := []struct {
		inX, inY   uint16
		expX, expY uint16
	}{
		{20, 20, 20, 20},
		{100, 20, 79, 20},
		{10, 200, 10, 24},
		{10, 200, 10, 24},
		{100, 100, 79, 24},
	}

	vt, _ := newTestVt(t)

	w, h := vt.Dimensions()
	require.Equal(t, uint16(80), w)
	require.Equal(t, uint16(25), h)

	for specIndex, spec := range specs {
		vt.SetPosition(spec.inX, spec.inY)
		x, y := vt.Position()
		require.Equal(t, spec.expX, x, "spec %d", specIndex)
		require.Equal(t, spec.expY, y, "spec %d", specIndex)
	}
}

func TestVtWrite(t *testing.T) {
	vt, cons := newTestVt(t)

	vt.Clear()
	vt.SetPosition(0, 1)
	n, err := vt.Write([]byte("12\n\t3\n4\r567\b8"))
	require.NoError(t, err)
	require.Equal(t, 13, n)

	// Tab spanning rows
	vt.SetPosition(78, 4)
	require.NoError(t, vt.WriteByte('\t'))
	require.NoError(t, vt.WriteByte('9'))

	specs := []struct {
		x, y    uint16
		expChar byte
	}{
		{0, 1, '1'},
		{1, 1, '2'},
		// tabs
		{0, 2, ' '},
		{1, 2, ' '},
		{2, 2, ' '},
		{3, 2, ' '},
		{4, 2, '3'},
		// tab spanning 2 rows
		{78, 4, ' '},
		{79, 4, ' '},
		{0, 5, ' '},
		{1, 5, ' '},
		{2, 5, '9'},
		//
		{0, 3, '5'},
		{1, 3, '6'},
		{2, 3, '8'}, // overwritten by BS
	}

	for specIndex, spec := range specs {
		ch, attr := cons.Read(spec.x, spec.y)
		require.Equal(t, spec.expChar, ch, "spec %d: (%d, %d)", specIndex, spec.x, spec.y)
		require.Equal(t, makeAttr(defaultFg, defaultBg), attr, "spec %d", specIndex)
	}
}

func TestVtScroll(t *testing.T) {
	vt, cons := newTestVt(t)
	vt.Clear()

	vt.SetPosition(0, 23)
	_, _ = vt.Write([]byte("first\nsecond\nthird"))

	require.Equal(t, "second", cons.Row(23))
	require.Equal(t, "third", cons.Row(24))
	x, y := vt.Position()
	require.Equal(t, uint16(5), x)
	require.Equal(t, uint16(24), y)

	// Wrapping at the right edge of the last line scrolls too.
	vt.SetPosition(79, 24)
	_, _ = vt.Write([]byte("!?"))
	require.Equal(t, "third"+strings.Repeat(" ", 74)+"!", cons.Row(23))
	require.Equal(t, "?", cons.Row(24))
}

func TestVtDetached(t *testing.T) {
	var vt Vt

	n, err := vt.Write([]byte("lost"))
	require.NoError(t, err)
	require.Equal(t, 4, n)
	vt.Clear()
}

func TestVtRestoresInterrupts(t *testing.T) {
	defer cpu.DisableInterrupts()
	cpu.EnableInterrupts()

	vt, _ := newTestVt(t)
	_, _ = vt.Write([]byte("irq"))
	require.True(t, cpu.InterruptsEnabled())
}
