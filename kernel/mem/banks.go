package mem

// Banks is a Memory made of several arenas that back disjoint physical
// address ranges, like the separate RAM banks reported by the bootloader.
// Every access must fall entirely within a single arena.
type Banks []*Arena

func (b Banks) bank(addr uintptr, length Size) *Arena {
	for _, arena := range b {
		if arena.Contains(addr, length) {
			return arena
		}
	}
	return nil
}

// Contains implements Memory.
func (b Banks) Contains(addr uintptr, length Size) bool {
	return b.bank(addr, length) != nil
}

// Overlaps returns true if any byte of [addr, addr+length) is backed by one
// of the banks.
func (b Banks) Overlaps(addr uintptr, length Size) bool {
	end := uint64(addr) + uint64(length)
	for _, arena := range b {
		if uint64(addr) < uint64(arena.base)+uint64(len(arena.data)) && uint64(arena.base) < end {
			return true
		}
	}
	return false
}

// Bytes implements Memory.
func (b Banks) Bytes(addr uintptr, length Size) []byte {
	arena := b.bank(addr, length)
	if arena == nil {
		panicFn(errOutOfRange)
		return nil
	}
	return arena.Bytes(addr, length)
}

// Uint32 implements Memory.
func (b Banks) Uint32(addr uintptr) uint32 {
	arena := b.bank(addr, 4)
	if arena == nil {
		panicFn(errOutOfRange)
		return 0
	}
	return arena.Uint32(addr)
}

// PutUint32 implements Memory.
func (b Banks) PutUint32(addr uintptr, v uint32) {
	arena := b.bank(addr, 4)
	if arena == nil {
		panicFn(errOutOfRange)
		return
	}
	arena.PutUint32(addr, v)
}

var (
	_ Memory = (*Arena)(nil)
	_ Memory = Banks(nil)
)
