package mem

import (
	"encoding/binary"

	"kcore/kernel"
	"kcore/kernel/kfmt"
)

var (
	// panicFn is mocked by tests.
	panicFn = kfmt.Panic

	errOutOfRange = &kernel.Error{Module: "mem", Message: "physical address out of range"}
)

// Memory is a byte-addressable view of physical memory. All multi-byte values
// are stored little-endian, as on x86.
type Memory interface {
	// Contains returns true if [addr, addr+length) is backed by this
	// memory.
	Contains(addr uintptr, length Size) bool

	// Uint32 reads the 32-bit value stored at addr.
	Uint32(addr uintptr) uint32

	// PutUint32 stores v at addr.
	PutUint32(addr uintptr, v uint32)

	// Bytes returns the length bytes starting at addr. Writes to the
	// returned slice modify the memory.
	Bytes(addr uintptr, length Size) []byte
}

// Arena backs the physical address range [base, base+size) with a byte
// slice. It stands in for the machine's RAM when the kernel core runs as a
// regular process.
//
// Accessing an address outside the arena is a fatal error.
type Arena struct {
	base uintptr
	data []byte
}

// NewArena returns a zero-filled Arena backing size bytes starting at the
// physical address base.
func NewArena(base uintptr, size Size) *Arena {
	return &Arena{base: base, data: make([]byte, size)}
}

// Base returns the first physical address backed by the arena.
func (a *Arena) Base() uintptr { return a.base }

// Size returns the number of bytes backed by the arena.
func (a *Arena) Size() Size { return Size(len(a.data)) }

// Contains implements Memory.
func (a *Arena) Contains(addr uintptr, length Size) bool {
	if addr < a.base {
		return false
	}
	offset := Size(addr - a.base)
	return offset <= Size(len(a.data)) && length <= Size(len(a.data))-offset
}

// Bytes implements Memory.
func (a *Arena) Bytes(addr uintptr, length Size) []byte {
	if !a.Contains(addr, length) {
		panicFn(errOutOfRange)
		return nil
	}

	offset := addr - a.base
	return a.data[offset : offset+uintptr(length) : offset+uintptr(length)]
}

// Uint32 implements Memory.
func (a *Arena) Uint32(addr uintptr) uint32 {
	b := a.Bytes(addr, 4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

// PutUint32 implements Memory.
func (a *Arena) PutUint32(addr uintptr, v uint32) {
	if b := a.Bytes(addr, 4); b != nil {
		binary.LittleEndian.PutUint32(b, v)
	}
}

// Memset sets size bytes starting at addr to value. Instead of looping over
// each byte it seeds the first one and then doubles the initialized prefix
// with log2(size) copy calls.
func (a *Arena) Memset(addr uintptr, value byte, size Size) {
	if size == 0 {
		return
	}

	target := a.Bytes(addr, size)
	if target == nil {
		return
	}

	target[0] = value
	for index := Size(1); index < size; index *= 2 {
		copy(target[index:], target[:index])
	}
}

// Memcopy copies size bytes from src to dst. Overlapping ranges are handled
// like the built-in copy.
func (a *Arena) Memcopy(src, dst uintptr, size Size) {
	if size == 0 {
		return
	}

	srcSlice, dstSlice := a.Bytes(src, size), a.Bytes(dst, size)
	if srcSlice == nil || dstSlice == nil {
		return
	}
	copy(dstSlice, srcSlice)
}
