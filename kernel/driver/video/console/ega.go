package console

import (
	"strings"

	"kcore/kernel"
	"kcore/kernel/mem"
)

const (
	// EgaPhysAddr is the physical address of the EGA text buffer.
	EgaPhysAddr = 0xb8000

	// EgaWidth and EgaHeight are the dimensions of the standard 80x25 text
	// mode.
	EgaWidth  = 80
	EgaHeight = 25

	// EgaBufferSize is the size of the EGA text buffer in bytes. Each cell
	// holds a character byte followed by an attribute byte.
	EgaBufferSize = EgaWidth * EgaHeight * 2

	clearColor = Black
	clearChar  = byte(' ')
)

var errFramebufferNotBacked = &kernel.Error{Module: "console", Message: "framebuffer is not backed by physical memory"}

// Ega implements an EGA-compatible text console whose framebuffer lives in
// physical memory.
type Ega struct {
	width  uint16
	height uint16

	fb []byte
}

// Init sets up the console to use the width x height text buffer at
// fbPhysAddr.
func (cons *Ega) Init(width, height uint16, fbPhysAddr uintptr, physMem mem.Memory) *kernel.Error {
	size := mem.Size(width) * mem.Size(height) * 2
	if !physMem.Contains(fbPhysAddr, size) {
		return errFramebufferNotBacked
	}

	cons.width = width
	cons.height = height
	cons.fb = physMem.Bytes(fbPhysAddr, size)
	return nil
}

// Clear clears the specified rectangular region
func (cons *Ega) Clear(x, y, width, height uint16) {
	// clip rectangle
	if x >= cons.width {
		x = cons.width
	}
	if y >= cons.height {
		y = cons.height
	}

	if x+width > cons.width {
		width = cons.width - x
	}
	if y+height > cons.height {
		height = cons.height - y
	}

	attr := byte((clearColor << 4) | clearColor)
	rowOffset := int(y)*int(cons.width) + int(x)
	for ; height > 0; height, rowOffset = height-1, rowOffset+int(cons.width) {
		for cell := rowOffset; cell < rowOffset+int(width); cell++ {
			cons.fb[cell*2] = clearChar
			cons.fb[cell*2+1] = attr
		}
	}
}

// Dimensions returns the console width and height in characters.
func (cons *Ega) Dimensions() (uint16, uint16) {
	return cons.width, cons.height
}

// Scroll a particular number of lines to the specified direction. The lines
// that scroll into view keep their previous contents.
func (cons *Ega) Scroll(dir ScrollDir, lines uint16) {
	if lines == 0 || lines > cons.height {
		return
	}

	offset := int(lines) * int(cons.width) * 2

	switch dir {
	case Up:
		copy(cons.fb, cons.fb[offset:])
	case Down:
		copy(cons.fb[offset:], cons.fb[:len(cons.fb)-offset])
	}
}

// Write a char to the specified location.
func (cons *Ega) Write(ch byte, attr Attr, x, y uint16) {
	if x >= cons.width || y >= cons.height {
		return
	}

	cell := int(y)*int(cons.width) + int(x)
	cons.fb[cell*2] = ch
	cons.fb[cell*2+1] = byte(attr)
}

// Read returns the char and attribute stored at the specified location.
func (cons *Ega) Read(x, y uint16) (byte, Attr) {
	if x >= cons.width || y >= cons.height {
		return 0, 0
	}

	cell := int(y)*int(cons.width) + int(x)
	return cons.fb[cell*2], Attr(cons.fb[cell*2+1])
}

// Row returns the text displayed in row y without trailing blanks.
func (cons *Ega) Row(y uint16) string {
	if y >= cons.height {
		return ""
	}

	row := make([]byte, cons.width)
	for x := range row {
		row[x], _ = cons.Read(uint16(x), y)
	}
	return strings.TrimRight(string(row), " \x00")
}
