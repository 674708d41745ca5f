// Package heap implements the kernel's dynamic memory allocator: a first-fit
// free-list allocator that threads its bookkeeping through the memory it
// manages.
//
// Every block starts with an 8-byte header. The first word holds the block
// length (header included) shifted left by one with bit 0 set while the
// block is occupied. The second word holds the address of the next header or
// 0 if the block does not store one. Headers are chained in increasing
// address order starting at the heap root.
package heap

import (
	"io"
	"sync/atomic"

	"kcore/kernel"
	"kcore/kernel/hal/multiboot"
	"kcore/kernel/kfmt"
	"kcore/kernel/mem"
)

// addressSpaceLimit is the first address the allocator cannot reach with
// 32-bit header pointers.
const addressSpaceLimit = uint64(1) << 32

var (
	// panicFn is mocked by tests.
	panicFn = kfmt.Panic

	errNoAvailableRegion  = &kernel.Error{Module: "heap", Message: "no available memory region below 4GB"}
	errRegionNotBacked    = &kernel.Error{Module: "heap", Message: "selected memory region is not backed by physical memory"}
	errAlreadyInitialized = &kernel.Error{Module: "heap", Message: "allocator already initialized"}
	errNotInitialized     = &kernel.Error{Module: "heap", Message: "allocator not initialized"}
	errInvalidAlignment   = &kernel.Error{Module: "heap", Message: "invalid alignment"}
	errOutOfMemory        = &kernel.Error{Module: "heap", Message: "out of memory"}
	errUnknownPointer     = &kernel.Error{Module: "heap", Message: "deallocated pointer does not belong to any block"}
)

// Allocator is implemented by the kernel memory allocators.
type Allocator interface {
	// Allocate returns the address of at least size bytes aligned to
	// align.
	Allocate(size, align uint32) uintptr

	// Deallocate returns the block containing ptr to the allocator.
	Deallocate(ptr uintptr, size, align uint32)
}

// FreeListAllocator is a first-fit allocator over a single physical memory
// region. Freed blocks stay in the header chain and are reused by later
// allocations that fit; adjacent vacant blocks are never merged.
//
// The allocator does not serialize concurrent callers. Use a
// LockedAllocator when it is shared.
type FreeListAllocator struct {
	// root holds the address of the first header. It is only meaningful
	// once initialized is set.
	root        atomic.Uint32
	initialized atomic.Bool

	// limit is the end of the managed region.
	limit  uint64
	memory mem.Memory
}

// Init selects the largest available memory region below 4GB from the
// supplied memory map and turns it into a single vacant block. Calling Init
// more than once is a fatal error.
func (a *FreeListAllocator) Init(regions []multiboot.MemoryMapEntry, memory mem.Memory) {
	var sel regionSelector
	for i := range regions {
		sel.consider(&regions[i])
	}
	a.init(&sel, memory)
}

// InitFromMultiboot works like Init but scans the memory map installed via
// multiboot.SetMemoryMap.
func (a *FreeListAllocator) InitFromMultiboot(memory mem.Memory) {
	var sel regionSelector
	multiboot.VisitMemRegions(func(entry *multiboot.MemoryMapEntry) bool {
		sel.consider(entry)
		return true
	})
	a.init(&sel, memory)
}

func (a *FreeListAllocator) init(sel *regionSelector, memory mem.Memory) {
	if a.initialized.Load() {
		panicFn(errAlreadyInitialized)
		return
	}

	if !sel.found {
		panicFn(errNoAvailableRegion)
		return
	}

	if !memory.Contains(sel.base, mem.Size(sel.length)) {
		panicFn(errRegionNotBacked)
		return
	}

	a.memory = memory
	a.limit = uint64(sel.base) + uint64(sel.length)
	writeHeader(memory, header{addr: sel.base, length: sel.length})

	a.root.Store(uint32(sel.base))
	a.initialized.Store(true)

	kfmt.Printf("[heap] managing %d bytes at 0x%x\n", sel.length, sel.base)
}

// Allocate returns the address of a region of at least size bytes whose
// address is a multiple of align. An align of 0 is treated as 1. The first
// vacant block that can hold the request is used; if it is the last block
// and enough space remains it is split in two.
//
// Running out of memory, a non power-of-two alignment or calling Allocate
// before Init are fatal errors.
func (a *FreeListAllocator) Allocate(size, align uint32) uintptr {
	if !a.initialized.Load() {
		panicFn(errNotInitialized)
		return 0
	}

	if align == 0 {
		align = 1
	}
	if !mem.IsPowerOfTwo(uint64(align)) {
		panicFn(errInvalidAlignment)
		return 0
	}

	// A zero-sized request still gets an address inside its own block.
	if size == 0 {
		size = 1
	}

	for h, ok := readHeader(a.memory, uintptr(a.root.Load())), true; ok; h, ok = a.successor(h) {
		if h.occupied {
			continue
		}

		padding := mem.Padding(uint64(h.addr)+HeaderSize, uint64(align))
		target := mem.AlignUp(uint64(size)+padding+HeaderSize, BlockGranularity)
		if target > uint64(h.length) {
			continue
		}

		a.claim(h, uint32(target))
		return h.addr + HeaderSize + uintptr(padding)
	}

	panicFn(errOutOfMemory)
	return 0
}

// claim marks h as occupied. A block that does not store a next pointer is
// the undivided tail of the region; if it has room for another header past
// target bytes it is split and the remainder becomes a new vacant block.
func (a *FreeListAllocator) claim(h header, target uint32) {
	h.occupied = true

	if h.next == nullHeader && h.length-target >= HeaderSize {
		rest := header{
			addr:   h.addr + uintptr(target),
			length: h.length - target,
		}
		writeHeader(a.memory, rest)

		h.length = target
		h.next = uint32(rest.addr)
	}

	writeHeader(a.memory, h)
}

// Deallocate marks the block containing ptr as vacant. A block covers the
// addresses from its header up to the next header or, if it does not store
// a next pointer, up to the end of its length. The size and align arguments
// are accepted for symmetry with Allocate.
//
// Passing a pointer that no block covers is a fatal error.
func (a *FreeListAllocator) Deallocate(ptr uintptr, size, align uint32) {
	if !a.initialized.Load() {
		panicFn(errNotInitialized)
		return
	}

	for h, ok := readHeader(a.memory, uintptr(a.root.Load())), true; ok; h, ok = a.successor(h) {
		end := h.end()
		if h.next != nullHeader {
			end = uint64(h.next)
		}

		if uint64(ptr) >= uint64(h.addr) && uint64(ptr) < end {
			h.occupied = false
			writeHeader(a.memory, h)
			return
		}
	}

	panicFn(errUnknownPointer)
}

// successor returns the header that follows h in the chain. A block that
// stores a next pointer is followed by that header. An occupied block
// without one is followed by the header right after its last byte, provided
// that a header fits before the end of the region. A vacant block without a
// next pointer ends the chain.
func (a *FreeListAllocator) successor(h header) (header, bool) {
	switch {
	case h.next != nullHeader:
		return readHeader(a.memory, uintptr(h.next)), true
	case h.occupied && h.end()+HeaderSize <= a.limit:
		return readHeader(a.memory, uintptr(h.end())), true
	default:
		return header{}, false
	}
}

// Walk invokes visitor for each block in the header chain, in address
// order, until the visitor returns false. Walk does nothing if the
// allocator has not been initialized.
func (a *FreeListAllocator) Walk(visitor func(Block) bool) {
	if !a.initialized.Load() {
		return
	}

	for h, ok := readHeader(a.memory, uintptr(a.root.Load())), true; ok; h, ok = a.successor(h) {
		if !visitor(h.block()) {
			return
		}
	}
}

// Stats summarizes the state of the header chain.
type Stats struct {
	Blocks         int
	OccupiedBlocks int
	VacantBlocks   int

	// OccupiedBytes and VacantBytes include the block headers.
	OccupiedBytes uint64
	VacantBytes   uint64
}

// Stats walks the header chain and returns a summary of its blocks.
func (a *FreeListAllocator) Stats() Stats {
	var st Stats
	a.Walk(func(b Block) bool {
		st.Blocks++
		if b.Occupied {
			st.OccupiedBlocks++
			st.OccupiedBytes += uint64(b.Length)
		} else {
			st.VacantBlocks++
			st.VacantBytes += uint64(b.Length)
		}
		return true
	})
	return st
}

// PrintBlocks writes one line per block in the header chain to w.
func (a *FreeListAllocator) PrintBlocks(w io.Writer) {
	pw := &kfmt.PrefixWriter{Sink: w, Prefix: []byte("[heap] ")}
	a.Walk(func(b Block) bool {
		state := "vacant"
		if b.Occupied {
			state = "occupied"
		}
		kfmt.Fprintf(pw, "block 0x%8x - 0x%8x length %10d %s\n", b.Addr, uint64(b.Addr)+uint64(b.Length), b.Length, state)
		return true
	})
}

// regionSelector tracks the largest usable available region seen so far.
// Regions that tie with the current pick do not replace it.
type regionSelector struct {
	found  bool
	base   uintptr
	length uint32
}

func (s *regionSelector) consider(entry *multiboot.MemoryMapEntry) {
	if entry.Type != multiboot.MemAvailable {
		return
	}

	base, length, ok := usableExtent(entry.PhysAddress, entry.Length)
	if !ok || (s.found && length <= s.length) {
		return
	}

	s.found, s.base, s.length = true, base, length
}

// usableExtent clips the region [addr, addr+length) to the part the
// allocator can manage: below 4GB, with a granular start and length, and no
// longer than MaxBlockLength.
func usableExtent(addr, length uint64) (uintptr, uint32, bool) {
	if addr >= addressSpaceLimit {
		return 0, 0, false
	}

	end := addr + length
	if end < addr || end > addressSpaceLimit {
		end = addressSpaceLimit
	}

	start := mem.AlignUp(addr, BlockGranularity)
	end = mem.AlignDown(end, BlockGranularity)
	if end <= start || end-start < HeaderSize {
		return 0, 0, false
	}

	usable := end - start
	if usable > MaxBlockLength {
		usable = MaxBlockLength
	}

	return uintptr(start), uint32(usable), true
}
