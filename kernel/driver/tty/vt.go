// Package tty implements terminals on top of console devices.
package tty

import (
	"kcore/kernel/cpu"
	"kcore/kernel/driver/video/console"
	"kcore/kernel/sync"
)

const (
	defaultFg = console.White
	defaultBg = console.Black
	tabWidth  = 4
)

// Vt implements a simple terminal that can process LF, CR, TAB and BS
// characters. The terminal uses a console device for its output.
//
// Vt is safe to use from interrupt handlers: interrupts are disabled while
// the terminal lock is held.
type Vt struct {
	lock sync.Spinlock

	cons console.Console

	width  uint16
	height uint16

	curX    uint16
	curY    uint16
	curAttr console.Attr
}

// AttachTo links the terminal with the specified console device and moves
// the cursor to the top-left corner.
func (t *Vt) AttachTo(cons console.Console) {
	restore := t.acquire()
	defer t.release(restore)

	t.cons = cons
	t.width, t.height = cons.Dimensions()
	t.curX = 0
	t.curY = 0

	// Default to white on black text.
	t.curAttr = makeAttr(defaultFg, defaultBg)
}

// Dimensions returns the width and height of the terminal in characters.
func (t *Vt) Dimensions() (uint16, uint16) {
	return t.width, t.height
}

// Clear clears the terminal.
func (t *Vt) Clear() {
	restore := t.acquire()
	defer t.release(restore)

	t.clear()
}

// Position returns the current cursor position (x, y).
func (t *Vt) Position() (uint16, uint16) {
	restore := t.acquire()
	defer t.release(restore)

	return t.curX, t.curY
}

// SetPosition sets the current cursor position to (x,y).
func (t *Vt) SetPosition(x, y uint16) {
	restore := t.acquire()
	defer t.release(restore)

	if x >= t.width {
		x = t.width - 1
	}

	if y >= t.height {
		y = t.height - 1
	}

	t.curX, t.curY = x, y
}

// Write implements io.Writer.
func (t *Vt) Write(data []byte) (int, error) {
	restore := t.acquire()
	defer t.release(restore)

	for _, b := range data {
		t.writeByte(b)
	}

	return len(data), nil
}

// WriteByte implements io.ByteWriter.
func (t *Vt) WriteByte(b byte) error {
	restore := t.acquire()
	defer t.release(restore)

	t.writeByte(b)
	return nil
}

func (t *Vt) writeByte(b byte) {
	if t.cons == nil {
		return
	}

	switch b {
	case '\r':
		t.cr()
	case '\n':
		t.cr()
		t.lf()
	case '\b':
		if t.curX > 0 {
			t.curX--
		}
	case '\t':
		for i := 0; i < tabWidth; i++ {
			t.put(' ')
		}
	default:
		t.put(b)
	}
}

// put writes b at the cursor position and advances the cursor, wrapping to
// the next line at the right edge.
func (t *Vt) put(b byte) {
	t.cons.Write(b, t.curAttr, t.curX, t.curY)
	t.curX++
	if t.curX == t.width {
		t.cr()
		t.lf()
	}
}

func (t *Vt) acquire() bool {
	restore := cpu.SaveAndDisableInterrupts()
	t.lock.Acquire()
	return restore
}

func (t *Vt) release(restore bool) {
	t.lock.Release()
	cpu.RestoreInterrupts(restore)
}

// clear clears the terminal.
func (t *Vt) clear() {
	if t.cons != nil {
		t.cons.Clear(0, 0, t.width, t.height)
	}
}

// cr resets the x coordinate of the terminal cursor to 0.
func (t *Vt) cr() {
	t.curX = 0
}

// lf advances the y coordinate of the terminal cursor by one line scrolling
// the terminal contents if the end of the last terminal line is reached.
func (t *Vt) lf() {
	if t.curY+1 < t.height {
		t.curY++
		return
	}

	t.cons.Scroll(console.Up, 1)
	t.cons.Clear(0, t.height-1, t.width, 1)
}

func makeAttr(fg, bg console.Attr) console.Attr {
	return (bg << 4) | (fg & 0xF)
}
