package heap

import (
	"kcore/kernel/hal/multiboot"
	"kcore/kernel/mem"
)

// kernelHeap is the allocator instance shared by the whole kernel.
var kernelHeap FreeListAllocator

// Kernel returns the kernel-wide allocator instance.
func Kernel() *FreeListAllocator {
	return &kernelHeap
}

// Init initializes the kernel-wide allocator from the supplied memory map.
func Init(regions []multiboot.MemoryMapEntry, memory mem.Memory) {
	kernelHeap.Init(regions, memory)
}

// InitFromMultiboot initializes the kernel-wide allocator from the memory
// map installed via multiboot.SetMemoryMap.
func InitFromMultiboot(memory mem.Memory) {
	kernelHeap.InitFromMultiboot(memory)
}

// Alloc allocates size bytes aligned to align from the kernel-wide
// allocator.
func Alloc(size, align uint32) uintptr {
	return kernelHeap.Allocate(size, align)
}

// Free returns a block obtained via Alloc to the kernel-wide allocator.
func Free(ptr uintptr, size, align uint32) {
	kernelHeap.Deallocate(ptr, size, align)
}
