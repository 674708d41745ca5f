package main

import (
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"kcore/kernel/driver/video/console"
	"kcore/kernel/hal"
	"kcore/kernel/hal/multiboot"
	"kcore/kernel/kfmt"
	"kcore/kernel/kmain"
	"kcore/kernel/mem"
	"kcore/kernel/mem/heap"
)

// addressSpaceLimit is the end of the 32-bit physical address space.
const addressSpaceLimit = uint64(1) << 32

var (
	bootMaxHeap  uint64
	bootTrace    string
	bootInfoAddr uint32
	bootScreen   bool
)

func init() {
	cmd := newBootCmd()
	cmd.Flags().Uint64Var(&bootMaxHeap, "max-heap", uint64(16*mem.Mb), "Clamp every available region to this many bytes")
	cmd.Flags().StringVar(&bootTrace, "trace", "", "Allocation trace to replay, e.g. a64/8,a32/4,f0")
	cmd.Flags().Uint32Var(&bootInfoAddr, "info-addr", 0x9000, "Physical address of the synthesized multiboot info block")
	cmd.Flags().BoolVar(&bootScreen, "screen", false, "Attach an EGA text console and print its contents")
	rootCmd.AddCommand(cmd)
}

func newBootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "boot <dump>",
		Short: "Boot the kernel core against a memory map dump",
		Long: `The boot command backs the available regions of a memory map dump with
simulated physical memory, places a multiboot info block and the memory map
in it and runs the kernel boot sequence. The kernel heap is then exercised
by replaying an allocation trace and its block chain is printed.

A trace is a comma separated list of operations:
  aSIZE[/ALIGN]  allocate SIZE bytes aligned to ALIGN (default 1)
  fINDEX         free the INDEX-th allocation of the trace (0-based)

Kernel log output is written to stderr unless --screen is set, in which
case the kernel logs to a simulated EGA text console that is printed once
the trace completes. A fatal kernel error halts the simulated machine and
exits with status 17.

Example:
  kmemctl boot qemu.mmap
  kmemctl boot qemu.mmap --trace a64/8,a32/4,f0,a16 --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBoot(args)
		},
	}
	return cmd
}

// traceOp is a single step of an allocation trace.
type traceOp struct {
	free bool

	// size and align describe allocations.
	size, align uint32

	// index selects the allocation released by a free.
	index int
}

// parseTrace parses an allocation trace. Frees must refer to an earlier
// allocation that has not been freed yet.
func parseTrace(s string) ([]traceOp, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}

	var (
		ops    []traceOp
		allocs int
		freed  = make(map[int]bool)
	)

	for i, field := range strings.Split(s, ",") {
		field = strings.TrimSpace(field)
		switch {
		case strings.HasPrefix(field, "a"):
			sizeStr, alignStr, hasAlign := strings.Cut(field[1:], "/")
			size, err := strconv.ParseUint(sizeStr, 0, 32)
			if err != nil {
				return nil, errors.Wrapf(err, "trace op %d (%q): invalid size", i, field)
			}

			align := uint64(1)
			if hasAlign {
				if align, err = strconv.ParseUint(alignStr, 0, 32); err != nil {
					return nil, errors.Wrapf(err, "trace op %d (%q): invalid alignment", i, field)
				}
			}
			if align != 0 && !mem.IsPowerOfTwo(align) {
				return nil, errors.Errorf("trace op %d (%q): alignment must be a power of two", i, field)
			}

			ops = append(ops, traceOp{size: uint32(size), align: uint32(align)})
			allocs++
		case strings.HasPrefix(field, "f"):
			index, err := strconv.Atoi(field[1:])
			if err != nil {
				return nil, errors.Wrapf(err, "trace op %d (%q): invalid allocation index", i, field)
			}
			if index < 0 || index >= allocs {
				return nil, errors.Errorf("trace op %d (%q): no allocation #%d before this point", i, field, index)
			}
			if freed[index] {
				return nil, errors.Errorf("trace op %d (%q): allocation #%d already freed", i, field, index)
			}

			freed[index] = true
			ops = append(ops, traceOp{free: true, index: index})
		default:
			return nil, errors.Errorf("trace op %d (%q): expected aSIZE[/ALIGN] or fINDEX", i, field)
		}
	}

	return ops, nil
}

// clampRegions returns a copy of entries where every available region is at
// most maxLen bytes long.
func clampRegions(entries []multiboot.MemoryMapEntry, maxLen uint64) []multiboot.MemoryMapEntry {
	out := make([]multiboot.MemoryMapEntry, len(entries))
	copy(out, entries)
	for i := range out {
		if out[i].Type == multiboot.MemAvailable && out[i].Length > maxLen {
			out[i].Length = maxLen
		}
	}
	return out
}

// buildPhysicalMemory backs the part of every available region that lies
// below 4GB with an arena.
func buildPhysicalMemory(entries []multiboot.MemoryMapEntry) (mem.Banks, error) {
	var banks mem.Banks
	for _, entry := range entries {
		if entry.Type != multiboot.MemAvailable || entry.Length == 0 || entry.PhysAddress >= addressSpaceLimit {
			continue
		}

		length := entry.Length
		if entry.PhysAddress+length > addressSpaceLimit {
			length = addressSpaceLimit - entry.PhysAddress
		}

		if banks.Overlaps(uintptr(entry.PhysAddress), mem.Size(length)) {
			return nil, errors.Errorf("available region at 0x%x overlaps another available region", entry.PhysAddress)
		}

		printVerbose("Backing [0x%x - 0x%x) with %s\n", entry.PhysAddress, entry.PhysAddress+length, formatBytes(length))
		banks = append(banks, mem.NewArena(uintptr(entry.PhysAddress), mem.Size(length)))
	}
	return banks, nil
}

// placeBootInfo writes a multiboot info block at infoAddr followed by the
// encoded memory map. If no bank backs that range a dedicated one is added.
func placeBootInfo(banks mem.Banks, infoAddr uint32, entries []multiboot.MemoryMapEntry) (mem.Banks, error) {
	mmap := multiboot.EncodeMemoryMap(entries)
	mmapAddr := mem.AlignUp(uint64(infoAddr)+multiboot.InfoSize, 8)
	end := mmapAddr + uint64(len(mmap))
	if end > addressSpaceLimit {
		return nil, errors.Errorf("boot info at 0x%x does not fit below 4GB", infoAddr)
	}

	span := mem.Size(end - uint64(infoAddr))
	if !banks.Contains(uintptr(infoAddr), span) {
		if banks.Overlaps(uintptr(infoAddr), span) {
			return nil, errors.Errorf("boot info at 0x%x straddles the boundary of a memory region", infoAddr)
		}
		banks = append(banks, mem.NewArena(uintptr(infoAddr), span))
	}

	var info multiboot.Info
	info.AttachMemoryMap(uint32(mmapAddr), uint32(len(mmap)))

	copy(banks.Bytes(uintptr(infoAddr), multiboot.InfoSize), multiboot.EncodeInfo(info))
	copy(banks.Bytes(uintptr(mmapAddr), mem.Size(len(mmap))), mmap)

	printVerbose("Boot info at 0x%x, memory map at 0x%x (%d bytes)\n", infoAddr, mmapAddr, len(mmap))
	return banks, nil
}

type allocationJSON struct {
	Size  uint32 `json:"size"`
	Align uint32 `json:"align"`
	Addr  uint64 `json:"addr"`
	Freed bool   `json:"freed"`
}

// replayTrace runs ops against alloc and returns one record per allocation.
func replayTrace(alloc heap.Allocator, ops []traceOp) []allocationJSON {
	records := make([]allocationJSON, 0, len(ops))
	for _, op := range ops {
		if op.free {
			rec := &records[op.index]
			alloc.Deallocate(uintptr(rec.Addr), rec.Size, rec.Align)
			rec.Freed = true
			printVerbose("free  #%d 0x%x\n", op.index, rec.Addr)
			continue
		}

		addr := alloc.Allocate(op.size, op.align)
		records = append(records, allocationJSON{Size: op.size, Align: op.align, Addr: uint64(addr)})
		printVerbose("alloc #%d size %d align %d -> 0x%x\n", len(records)-1, op.size, op.align, addr)
	}
	return records
}

type blockJSON struct {
	Addr     uint64 `json:"addr"`
	Length   uint32 `json:"length"`
	Occupied bool   `json:"occupied"`
	Next     uint64 `json:"next,omitempty"`
}

type statsJSON struct {
	Blocks         int    `json:"blocks"`
	OccupiedBlocks int    `json:"occupied_blocks"`
	VacantBlocks   int    `json:"vacant_blocks"`
	OccupiedBytes  uint64 `json:"occupied_bytes"`
	VacantBytes    uint64 `json:"vacant_bytes"`
}

type bootReportJSON struct {
	Allocations []allocationJSON `json:"allocations"`
	Blocks      []blockJSON      `json:"blocks"`
	Stats       statsJSON        `json:"stats"`
	Screen      []string         `json:"screen,omitempty"`
}

func runBoot(args []string) error {
	if bootMaxHeap < heap.HeaderSize {
		return errors.Errorf("--max-heap must be at least %d bytes", heap.HeaderSize)
	}

	ops, err := parseTrace(bootTrace)
	if err != nil {
		return errors.Wrap(err, "failed to parse trace")
	}

	entries, err := loadMemoryMap(args[0])
	if err != nil {
		return err
	}
	entries = clampRegions(entries, bootMaxHeap)

	banks, err := buildPhysicalMemory(entries)
	if err != nil {
		return errors.Wrap(err, "failed to build physical memory")
	}

	if banks, err = placeBootInfo(banks, bootInfoAddr, entries); err != nil {
		return errors.Wrap(err, "failed to place boot info")
	}

	if bootScreen {
		if banks.Overlaps(console.EgaPhysAddr, console.EgaBufferSize) {
			return errors.Errorf("EGA text buffer at 0x%x overlaps an available region", console.EgaPhysAddr)
		}
		banks = append(banks, mem.NewArena(console.EgaPhysAddr, console.EgaBufferSize))
	} else if !quiet {
		kfmt.SetOutputSink(os.Stderr)
	}

	kmain.Kmain(multiboot.BootloaderMagic, uintptr(bootInfoAddr), banks)

	kernelHeap := heap.Kernel()
	report := bootReportJSON{
		Allocations: replayTrace(heap.NewLockedAllocator(kernelHeap), ops),
	}

	kernelHeap.Walk(func(b heap.Block) bool {
		report.Blocks = append(report.Blocks, blockJSON{
			Addr:     uint64(b.Addr),
			Length:   b.Length,
			Occupied: b.Occupied,
			Next:     uint64(b.Next),
		})
		return true
	})

	st := kernelHeap.Stats()
	report.Stats = statsJSON{
		Blocks:         st.Blocks,
		OccupiedBlocks: st.OccupiedBlocks,
		VacantBlocks:   st.VacantBlocks,
		OccupiedBytes:  st.OccupiedBytes,
		VacantBytes:    st.VacantBytes,
	}

	if bootScreen {
		report.Screen = hal.Screen()
	}

	if jsonOut {
		return printJSON(report)
	}

	printInfo("Heap blocks:\n")
	if !quiet {
		kernelHeap.PrintBlocks(os.Stdout)
	}
	printInfo("Blocks: %d (%d occupied, %d vacant)\n", st.Blocks, st.OccupiedBlocks, st.VacantBlocks)
	printInfo("Occupied: %s\n", formatBytes(st.OccupiedBytes))
	printInfo("Vacant: %s\n", formatBytes(st.VacantBytes))

	if bootScreen {
		printInfo("Screen:\n")
		for _, row := range report.Screen {
			printInfo("  | %s\n", row)
		}
	}

	return nil
}
