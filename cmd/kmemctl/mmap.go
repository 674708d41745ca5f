package main

import (
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"kcore/kernel/hal/multiboot"
)

func init() {
	rootCmd.AddCommand(newMmapCmd())
}

func newMmapCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mmap <dump>",
		Short: "Decode and print a memory map dump",
		Long: `The mmap command decodes a file containing the raw multiboot memory map
records (24 bytes each) and prints one line per region.

Example:
  kmemctl mmap qemu.mmap
  kmemctl mmap qemu.mmap --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMmap(args)
		},
	}
	return cmd
}

type regionJSON struct {
	Base   uint64 `json:"base"`
	End    uint64 `json:"end"`
	Length uint64 `json:"length"`
	Type   string `json:"type"`
}

type memoryMapJSON struct {
	Regions   []regionJSON `json:"regions"`
	Available uint64       `json:"available"`
}

// loadMemoryMap reads and decodes a memory map dump.
func loadMemoryMap(path string) ([]multiboot.MemoryMapEntry, error) {
	printVerbose("Reading memory map: %s\n", path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read memory map dump")
	}

	if rem := len(data) % multiboot.MemoryMapEntrySize; rem != 0 {
		printVerbose("Ignoring %d trailing bytes\n", rem)
	}

	entries := multiboot.DecodeMemoryMap(data)
	if len(entries) == 0 {
		return nil, errors.Errorf("%s: no memory map records found", path)
	}

	return entries, nil
}

func runMmap(args []string) error {
	entries, err := loadMemoryMap(args[0])
	if err != nil {
		return err
	}

	out := memoryMapJSON{Regions: make([]regionJSON, 0, len(entries))}
	for _, entry := range entries {
		out.Regions = append(out.Regions, regionJSON{
			Base:   entry.PhysAddress,
			End:    entry.PhysAddress + entry.Length,
			Length: entry.Length,
			Type:   entry.Type.String(),
		})
		if entry.Type == multiboot.MemAvailable {
			out.Available += entry.Length
		}
	}

	if jsonOut {
		return printJSON(out)
	}

	printInfo("Memory map (%d regions):\n", len(out.Regions))
	for _, region := range out.Regions {
		printInfo("  [0x%010x - 0x%010x] %-20s %s\n", region.Base, region.End, region.Type, formatBytes(region.Length))
	}
	printInfo("Available: %s\n", formatBytes(out.Available))

	return nil
}
