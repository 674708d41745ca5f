// Package mem contains the memory size units, alignment helpers and the
// byte-addressable view of physical memory used by the kernel core.
package mem

// Size represents a memory block size in bytes.
type Size uint64

// Common memory block sizes.
const (
	Byte Size = 1
	Kb        = 1024 * Byte
	Mb        = 1024 * Kb
	Gb        = 1024 * Mb
)

// IsPowerOfTwo returns true if v is a non-zero power of two.
func IsPowerOfTwo(v uint64) bool {
	return v != 0 && v&(v-1) == 0
}

// AlignUp rounds v up to the next multiple of align which must be a power of
// two.
func AlignUp(v, align uint64) uint64 {
	return (v + align - 1) &^ (align - 1)
}

// AlignDown rounds v down to the previous multiple of align which must be a
// power of two.
func AlignDown(v, align uint64) uint64 {
	return v &^ (align - 1)
}

// Padding returns the number of bytes that must be added to v so that it
// becomes a multiple of align which must be a power of two.
func Padding(v, align uint64) uint64 {
	return AlignUp(v, align) - v
}
