package heap

import (
	"math"

	"kcore/kernel/mem"
)

const (
	// HeaderSize is the size of the block header stored at the start of
	// every block: a 32-bit packed length followed by the 32-bit address of
	// the next header.
	HeaderSize = 8

	// BlockGranularity is the alignment of every block length.
	BlockGranularity = 4

	// MaxBlockLength is the largest block length that fits in the packed
	// length field.
	MaxBlockLength = (math.MaxUint32 >> 1) &^ (BlockGranularity - 1)

	// occupiedFlag is stored in bit 0 of the packed length field.
	occupiedFlag = 1

	// nullHeader marks the absence of an explicit next header. Headers are
	// chained in increasing address order so no successor can live at 0.
	nullHeader = 0

	offLength = 0
	offNext   = 4
)

// header is the decoded form of a block header.
type header struct {
	addr uintptr

	// length of the block including the header itself.
	length   uint32
	occupied bool

	// next is the address of the next header or nullHeader.
	next uint32
}

// packLength encodes a block length and its occupied flag into the stored
// length field. Kernel code outside the allocator relies on this layout.
func packLength(length uint32, occupied bool) uint32 {
	stored := length << 1
	if occupied {
		stored |= occupiedFlag
	}
	return stored
}

// unpackLength is the inverse of packLength.
func unpackLength(stored uint32) (length uint32, occupied bool) {
	return stored >> 1, stored&occupiedFlag != 0
}

func readHeader(m mem.Memory, addr uintptr) header {
	length, occupied := unpackLength(m.Uint32(addr + offLength))
	return header{
		addr:     addr,
		length:   length,
		occupied: occupied,
		next:     m.Uint32(addr + offNext),
	}
}

func writeHeader(m mem.Memory, h header) {
	m.PutUint32(h.addr+offLength, packLength(h.length, h.occupied))
	m.PutUint32(h.addr+offNext, h.next)
}

// end returns the address right after the last byte of the block.
func (h header) end() uint64 {
	return uint64(h.addr) + uint64(h.length)
}

// Block describes a block in the allocator's header chain.
type Block struct {
	// Addr is the address of the block header.
	Addr uintptr

	// Length is the size of the block including its header.
	Length uint32

	// Occupied is true if the block has been handed out by Allocate.
	Occupied bool

	// Next is the address of the next header, if the block stores one.
	Next uintptr
}

func (h header) block() Block {
	return Block{
		Addr:     h.addr,
		Length:   h.length,
		Occupied: h.occupied,
		Next:     uintptr(h.next),
	}
}
