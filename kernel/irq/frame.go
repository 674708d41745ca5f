package irq

import (
	"io"

	"kcore/kernel/kfmt"
)

// Regs contains a snapshot of the general purpose register values when an
// interrupt occurred.
type Regs struct {
	EAX uint32
	EBX uint32
	ECX uint32
	EDX uint32
	ESI uint32
	EDI uint32
	EBP uint32

	// Info contains the error code for exceptions that push one or the
	// IRQ line for hardware interrupts.
	Info uint32
}

// DumpTo outputs the register contents to w.
func (r *Regs) DumpTo(w io.Writer) {
	kfmt.Fprintf(w, "EAX = %8x EBX = %8x\n", r.EAX, r.EBX)
	kfmt.Fprintf(w, "ECX = %8x EDX = %8x\n", r.ECX, r.EDX)
	kfmt.Fprintf(w, "ESI = %8x EDI = %8x\n", r.ESI, r.EDI)
	kfmt.Fprintf(w, "EBP = %8x INF = %8x\n", r.EBP, r.Info)
}

// Frame describes the interrupt frame that is automatically pushed by the
// CPU to the stack when an interrupt occurs.
type Frame struct {
	EIP    uint32
	CS     uint32
	EFlags uint32
	ESP    uint32
	SS     uint32
}

// DumpTo outputs the interrupt frame contents to w.
func (f *Frame) DumpTo(w io.Writer) {
	kfmt.Fprintf(w, "EIP = %8x CS  = %8x\n", f.EIP, f.CS)
	kfmt.Fprintf(w, "ESP = %8x SS  = %8x\n", f.ESP, f.SS)
	kfmt.Fprintf(w, "EFL = %8x\n", f.EFlags)
}
