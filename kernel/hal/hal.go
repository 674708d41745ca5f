// Package hal wires the kernel to the devices it finds at boot.
package hal

import (
	"kcore/kernel/driver/tty"
	"kcore/kernel/driver/video/console"
	"kcore/kernel/mem"
)

var (
	egaConsole = &console.Ega{}

	// ActiveTerminal points to the currently active terminal.
	ActiveTerminal = &tty.Vt{}
)

// InitTerminal provides a basic terminal to allow the kernel to emit some
// output till everything is properly setup. It returns false if physMem does
// not back the EGA text buffer.
func InitTerminal(physMem mem.Memory) bool {
	if err := egaConsole.Init(console.EgaWidth, console.EgaHeight, console.EgaPhysAddr, physMem); err != nil {
		return false
	}

	ActiveTerminal.AttachTo(egaConsole)
	ActiveTerminal.Clear()
	return true
}

// Screen returns the text displayed by the EGA console, one string per row.
// Trailing blank rows are omitted.
func Screen() []string {
	_, height := egaConsole.Dimensions()

	rows := make([]string, 0, height)
	for y := uint16(0); y < height; y++ {
		rows = append(rows, egaConsole.Row(y))
	}

	for len(rows) > 0 && rows[len(rows)-1] == "" {
		rows = rows[:len(rows)-1]
	}
	return rows
}
