// Package multiboot decodes the boot information a multiboot (v1) compliant
// bootloader hands to the kernel, most importantly the physical memory map.
package multiboot

import (
	"encoding/binary"

	"kcore/kernel"
)

const (
	// BootloaderMagic is the value a multiboot compliant bootloader leaves
	// in EAX before jumping to the kernel entrypoint.
	BootloaderMagic = 0x2BADB002

	// InfoSize is the number of bytes of the multiboot info structure that
	// this package decodes.
	InfoSize = 52

	// MemoryMapEntrySize is the size of each packed memory map record
	// {size u32, base u64, length u64, type u32}.
	MemoryMapEntrySize = 24

	// flagMemoryMap is set in Info.Flags when the mmap fields are valid.
	flagMemoryMap = 1 << 6

	// The record size field does not include itself.
	recordSizeFieldValue = MemoryMapEntrySize - 4
)

// Offsets of the fields decoded from the multiboot info structure.
const (
	offFlags      = 0
	offMemLower   = 4
	offMemUpper   = 8
	offMmapLength = 44
	offMmapAddr   = 48
)

var (
	errBadMagic     = &kernel.Error{Module: "multiboot", Message: "invalid bootloader magic"}
	errInfoTooShort = &kernel.Error{Module: "multiboot", Message: "truncated multiboot info"}
)

// MemoryEntryType defines the type of a MemoryMapEntry.
type MemoryEntryType uint32

const (
	// MemUnknown is reported for type values outside the ones defined by
	// the multiboot specification.
	MemUnknown MemoryEntryType = iota

	// MemAvailable indicates that the memory region is available for use.
	MemAvailable

	// MemReserved indicates that the memory region is not available for use.
	MemReserved

	// MemAcpiReclaimable indicates a memory region that holds ACPI info that
	// can be reused by the OS.
	MemAcpiReclaimable

	// MemNvs indicates memory that must be preserved when hibernating.
	MemNvs

	// MemBadRAM indicates a region occupied by defective RAM modules.
	MemBadRAM

	memTypeCount
)

// String implements fmt.Stringer for MemoryEntryType.
func (t MemoryEntryType) String() string {
	switch t {
	case MemAvailable:
		return "available"
	case MemReserved:
		return "reserved"
	case MemAcpiReclaimable:
		return "ACPI (reclaimable)"
	case MemNvs:
		return "NVS"
	case MemBadRAM:
		return "bad RAM"
	default:
		return "unknown"
	}
}

// MemoryMapEntry describes a memory region entry, namely its physical address,
// its length and its type.
type MemoryMapEntry struct {
	// The physical address for this memory region.
	PhysAddress uint64

	// The length of the memory region.
	Length uint64

	// The type of this entry.
	Type MemoryEntryType
}

// Info holds the fields of the multiboot info structure used by the kernel.
type Info struct {
	Flags uint32

	// Amount of lower (starting at 0) and upper (starting at 1M) memory
	// in KiB.
	MemLower, MemUpper uint32

	// Byte length and physical address of the memory map records.
	MmapLength, MmapAddr uint32
}

// HasMemoryMap returns true if the bootloader supplied a memory map.
func (i *Info) HasMemoryMap() bool {
	return i.Flags&flagMemoryMap != 0
}

// AttachMemoryMap records the location of the memory map records and marks
// the mmap fields as valid.
func (i *Info) AttachMemoryMap(addr, length uint32) {
	i.Flags |= flagMemoryMap
	i.MmapAddr, i.MmapLength = addr, length
}

// VerifyMagic checks the value passed by the bootloader in EAX.
func VerifyMagic(magic uint32) *kernel.Error {
	if magic != BootloaderMagic {
		return errBadMagic
	}
	return nil
}

// DecodeInfo decodes the multiboot info structure stored in b.
func DecodeInfo(b []byte) (Info, *kernel.Error) {
	if len(b) < InfoSize {
		return Info{}, errInfoTooShort
	}

	return Info{
		Flags:      binary.LittleEndian.Uint32(b[offFlags:]),
		MemLower:   binary.LittleEndian.Uint32(b[offMemLower:]),
		MemUpper:   binary.LittleEndian.Uint32(b[offMemUpper:]),
		MmapLength: binary.LittleEndian.Uint32(b[offMmapLength:]),
		MmapAddr:   binary.LittleEndian.Uint32(b[offMmapAddr:]),
	}, nil
}

// EncodeInfo is the inverse of DecodeInfo. It returns an InfoSize byte block
// where all fields not represented by Info are zero.
func EncodeInfo(info Info) []byte {
	b := make([]byte, InfoSize)
	binary.LittleEndian.PutUint32(b[offFlags:], info.Flags)
	binary.LittleEndian.PutUint32(b[offMemLower:], info.MemLower)
	binary.LittleEndian.PutUint32(b[offMemUpper:], info.MemUpper)
	binary.LittleEndian.PutUint32(b[offMmapLength:], info.MmapLength)
	binary.LittleEndian.PutUint32(b[offMmapAddr:], info.MmapAddr)
	return b
}

// decodeEntry decodes the memory map record at the start of b. Unknown region
// types are reported as MemUnknown.
func decodeEntry(b []byte) MemoryMapEntry {
	entry := MemoryMapEntry{
		PhysAddress: binary.LittleEndian.Uint64(b[4:]),
		Length:      binary.LittleEndian.Uint64(b[12:]),
		Type:        MemoryEntryType(binary.LittleEndian.Uint32(b[20:])),
	}

	if entry.Type >= memTypeCount {
		entry.Type = MemUnknown
	}

	return entry
}

// DecodeMemoryMap decodes len(b)/MemoryMapEntrySize memory map records from
// b. A trailing partial record is ignored.
func DecodeMemoryMap(b []byte) []MemoryMapEntry {
	entries := make([]MemoryMapEntry, 0, len(b)/MemoryMapEntrySize)
	for off := 0; off+MemoryMapEntrySize <= len(b); off += MemoryMapEntrySize {
		entries = append(entries, decodeEntry(b[off:]))
	}
	return entries
}

// EncodeMemoryMap is the inverse of DecodeMemoryMap.
func EncodeMemoryMap(entries []MemoryMapEntry) []byte {
	b := make([]byte, len(entries)*MemoryMapEntrySize)
	for i, entry := range entries {
		rec := b[i*MemoryMapEntrySize:]
		binary.LittleEndian.PutUint32(rec[0:], recordSizeFieldValue)
		binary.LittleEndian.PutUint64(rec[4:], entry.PhysAddress)
		binary.LittleEndian.PutUint64(rec[12:], entry.Length)
		binary.LittleEndian.PutUint32(rec[20:], uint32(entry.Type))
	}
	return b
}

var (
	// memoryMap holds the raw memory map records installed by SetMemoryMap.
	memoryMap []byte
)

// MemRegionVisitor defines a visitor function that gets invoked by
// VisitMemRegions for each memory region provided by the boot loader. The
// visitor must return true to continue or false to abort the scan.
type MemRegionVisitor func(entry *MemoryMapEntry) bool

// SetMemoryMap installs the raw memory map records supplied by the
// bootloader. It must be invoked before VisitMemRegions.
func SetMemoryMap(b []byte) {
	memoryMap = b
}

// VisitMemRegions invokes the supplied visitor for each memory region, in
// the order reported by the bootloader.
func VisitMemRegions(visitor MemRegionVisitor) {
	for off := 0; off+MemoryMapEntrySize <= len(memoryMap); off += MemoryMapEntrySize {
		entry := decodeEntry(memoryMap[off:])
		if !visitor(&entry) {
			return
		}
	}
}
