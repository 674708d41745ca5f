// Package kmain contains the kernel core's boot sequence.
package kmain

import (
	"kcore/kernel"
	"kcore/kernel/cpu"
	"kcore/kernel/hal"
	"kcore/kernel/hal/multiboot"
	"kcore/kernel/kfmt"
	"kcore/kernel/mem"
	"kcore/kernel/mem/heap"
)

var (
	// panicFn and heapInitFn are mocked by tests.
	panicFn    = kfmt.Panic
	heapInitFn = heap.InitFromMultiboot

	errInfoNotBacked      = &kernel.Error{Module: "kmain", Message: "multiboot info is not backed by physical memory"}
	errNoMemoryMap        = &kernel.Error{Module: "kmain", Message: "bootloader did not provide a memory map"}
	errMemoryMapNotBacked = &kernel.Error{Module: "kmain", Message: "memory map is not backed by physical memory"}
)

// Kmain is the entrypoint of the kernel core. It receives the value the
// bootloader left in EAX, the physical address of the multiboot info
// structure and the machine's physical memory.
//
// Kmain attaches a terminal to the EGA text buffer if physMem backs it and
// no other output sink has been installed. It then validates the boot
// information, installs the memory map supplied by the bootloader, sets up
// the kernel heap on the largest available region and finally enables
// interrupts. Any failure along the way is fatal.
func Kmain(magic uint32, infoAddr uintptr, physMem mem.Memory) {
	if kfmt.GetOutputSink() == nil && hal.InitTerminal(physMem) {
		kfmt.SetOutputSink(hal.ActiveTerminal)
	}

	if err := multiboot.VerifyMagic(magic); err != nil {
		panicFn(err)
		return
	}

	if !physMem.Contains(infoAddr, multiboot.InfoSize) {
		panicFn(errInfoNotBacked)
		return
	}

	info, err := multiboot.DecodeInfo(physMem.Bytes(infoAddr, multiboot.InfoSize))
	if err != nil {
		panicFn(err)
		return
	}

	if !info.HasMemoryMap() {
		panicFn(errNoMemoryMap)
		return
	}

	mmapAddr, mmapLen := uintptr(info.MmapAddr), mem.Size(info.MmapLength)
	if !physMem.Contains(mmapAddr, mmapLen) {
		panicFn(errMemoryMapNotBacked)
		return
	}

	multiboot.SetMemoryMap(physMem.Bytes(mmapAddr, mmapLen))
	printMemoryMap()

	heapInitFn(physMem)

	cpu.EnableInterrupts()
	kfmt.Printf("[kmain] boot complete\n")
}

// printMemoryMap scans the memory region information provided by the
// bootloader and prints out the system's memory map.
func printMemoryMap() {
	kfmt.Printf("[kmain] system memory map:\n")
	var totalFree mem.Size
	multiboot.VisitMemRegions(func(region *multiboot.MemoryMapEntry) bool {
		kfmt.Printf("\t[0x%10x - 0x%10x], size: %10d, type: %s\n", region.PhysAddress, region.PhysAddress+region.Length, region.Length, region.Type.String())

		if region.Type == multiboot.MemAvailable {
			totalFree += mem.Size(region.Length)
		}
		return true
	})
	kfmt.Printf("[kmain] available memory: %dKb\n", uint64(totalFree/mem.Kb))
}
