package kmain

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"kcore/kernel/cpu"
	"kcore/kernel/driver/video/console"
	"kcore/kernel/hal"
	"kcore/kernel/hal/multiboot"
	"kcore/kernel/kfmt"
	"kcore/kernel/mem"
	"kcore/kernel/mem/heap"
)

const (
	testInfoAddr = 0x9000
	testMmapAddr = 0x9100
)

var testMemoryMap = []multiboot.MemoryMapEntry{
	{PhysAddress: 0, Length: 0x9fc00, Type: multiboot.MemAvailable},
	{PhysAddress: 0x9fc00, Length: 0x400, Type: multiboot.MemReserved},
	{PhysAddress: 0xf0000, Length: 0x10000, Type: multiboot.MemReserved},
	{PhysAddress: 0x100000, Length: 0x100000, Type: multiboot.MemAvailable},
}

// bootImage returns the physical memory of a machine that booted with the
// supplied info block at testInfoAddr and memory map at testMmapAddr.
func bootImage(info multiboot.Info, entries []multiboot.MemoryMapEntry) mem.Banks {
	low, high := mem.NewArena(0, 0x9fc00), mem.NewArena(0x100000, 0x100000)

	copy(low.Bytes(testInfoAddr, multiboot.InfoSize), multiboot.EncodeInfo(info))
	mmap := multiboot.EncodeMemoryMap(entries)
	copy(low.Bytes(testMmapAddr, mem.Size(len(mmap))), mmap)

	return mem.Banks{low, high}
}

func mockOutput(t *testing.T) *bytes.Buffer {
	t.Helper()

	prevSink := kfmt.GetOutputSink()
	var buf bytes.Buffer
	kfmt.SetOutputSink(&buf)
	buf.Reset()

	t.Cleanup(func() {
		kfmt.SetOutputSink(prevSink)
		multiboot.SetMemoryMap(nil)
		cpu.DisableInterrupts()
	})
	return &buf
}

func TestKmain(t *testing.T) {
	buf := mockOutput(t)

	var alloc heap.FreeListAllocator
	defer func(origHeapInit func(mem.Memory)) { heapInitFn = origHeapInit }(heapInitFn)
	heapInitFn = alloc.InitFromMultiboot

	var info multiboot.Info
	info.AttachMemoryMap(testMmapAddr, uint32(len(testMemoryMap)*multiboot.MemoryMapEntrySize))

	Kmain(multiboot.BootloaderMagic, testInfoAddr, bootImage(info, testMemoryMap))

	require.True(t, cpu.InterruptsEnabled())
	require.Equal(t, heap.Stats{Blocks: 1, VacantBlocks: 1, VacantBytes: 0x100000}, alloc.Stats())

	var regions int
	multiboot.VisitMemRegions(func(_ *multiboot.MemoryMapEntry) bool {
		regions++
		return true
	})
	require.Equal(t, len(testMemoryMap), regions)

	exp := []string{
		"[kmain] system memory map:",
		"\t[0x0000000000 - 0x000009fc00], size:     654336, type: available",
		"\t[0x000009fc00 - 0x00000a0000], size:       1024, type: reserved",
		"\t[0x00000f0000 - 0x0000100000], size:      65536, type: reserved",
		"\t[0x0000100000 - 0x0000200000], size:    1048576, type: available",
		"[kmain] available memory: 1663Kb",
		"[heap] managing 1048576 bytes at 0x100000",
		"[kmain] boot complete",
	}
	require.Equal(t, strings.Join(exp, "\n")+"\n", buf.String())
}

func TestKmainTerminal(t *testing.T) {
	defer func() {
		kfmt.SetOutputSink(nil)
		multiboot.SetMemoryMap(nil)
		cpu.DisableInterrupts()
	}()
	kfmt.SetOutputSink(nil)

	var alloc heap.FreeListAllocator
	defer func(origHeapInit func(mem.Memory)) { heapInitFn = origHeapInit }(heapInitFn)
	heapInitFn = alloc.InitFromMultiboot

	var info multiboot.Info
	info.AttachMemoryMap(testMmapAddr, uint32(len(testMemoryMap)*multiboot.MemoryMapEntrySize))

	physMem := append(bootImage(info, testMemoryMap), mem.NewArena(console.EgaPhysAddr, console.EgaBufferSize))
	Kmain(multiboot.BootloaderMagic, testInfoAddr, physMem)

	require.Equal(t, hal.ActiveTerminal, kfmt.GetOutputSink())

	screen := hal.Screen()
	require.Len(t, screen, 8)
	require.Equal(t, "[kmain] system memory map:", screen[0])
	require.Equal(t, "    [0x0000100000 - 0x0000200000], size:    1048576, type: available", screen[4])
	require.Equal(t, "[kmain] boot complete", screen[7])
}

func TestKmainErrors(t *testing.T) {
	mockOutput(t)

	defer func() { panicFn = kfmt.Panic }()
	panicFn = func(e interface{}) { panic(e) }

	heapInitFn = func(_ mem.Memory) { t.Fatal("unexpected call to heap init") }
	defer func() { heapInitFn = heap.InitFromMultiboot }()

	var withMap multiboot.Info
	withMap.AttachMemoryMap(testMmapAddr, uint32(len(testMemoryMap)*multiboot.MemoryMapEntrySize))

	var badMapAddr multiboot.Info
	badMapAddr.AttachMemoryMap(0x9fb00, 0x1000)

	specs := []struct {
		descr    string
		magic    uint32
		infoAddr uintptr
		info     multiboot.Info
		expErr   interface{}
	}{
		{"bad magic", 0xdeadbeef, testInfoAddr, withMap, multiboot.VerifyMagic(0xdeadbeef)},
		{"info outside physical memory", multiboot.BootloaderMagic, 0x9fbf0, withMap, errInfoNotBacked},
		{"no memory map", multiboot.BootloaderMagic, testInfoAddr, multiboot.Info{Flags: 1}, errNoMemoryMap},
		{"memory map outside physical memory", multiboot.BootloaderMagic, testInfoAddr, badMapAddr, errMemoryMapNotBacked},
	}

	for _, spec := range specs {
		t.Run(spec.descr, func(t *testing.T) {
			physMem := bootImage(spec.info, testMemoryMap)
			require.PanicsWithValue(t, spec.expErr, func() {
				Kmain(spec.magic, spec.infoAddr, physMem)
			})
			require.False(t, cpu.InterruptsEnabled())
		})
	}
}
