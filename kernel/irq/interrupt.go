// Package irq routes interrupts to the handlers registered for them.
//
// In the hosted kernel core an interrupt is delivered by calling Dispatch,
// which behaves like an interrupt gate: interrupts stay disabled while the
// handler runs and their previous state is restored when it returns.
package irq

import (
	"sync/atomic"

	"kcore/kernel/cpu"
	"kcore/kernel/kfmt"
	"kcore/kernel/sync"
)

// InterruptNumber describes an x86 interrupt/exception/trap slot.
type InterruptNumber uint8

const (
	// DoubleFault occurs when an unhandled exception occurs or when an
	// exception occurs within a running exception handler.
	DoubleFault = InterruptNumber(8)

	// GPFException occurs when a general protection fault occurs.
	GPFException = InterruptNumber(13)

	// PageFaultException occurs when a page directory table (PDT) or one
	// of its entries is not present or when a privilege and/or RW
	// protection check fails.
	PageFaultException = InterruptNumber(14)

	// PICBase is the vector the master PIC is remapped to.
	PICBase = InterruptNumber(0x20)

	// Timer is raised by the programmable interval timer (IRQ 0).
	Timer = PICBase

	// Keyboard is raised by the PS/2 keyboard controller (IRQ 1).
	Keyboard = PICBase + 1

	// RTC is raised by the real time clock (IRQ 8).
	RTC = PICBase + 8
)

// Handler is a function that services an interrupt. Any modifications to
// the supplied Frame and Regs are visible to the interrupted code.
type Handler func(*Frame, *Regs)

type handlerTable [256]Handler

var (
	handlers = sync.NewSpinLock(handlerTable{})

	// unhandled counts the interrupts that arrived at a vector without a
	// registered handler.
	unhandled atomic.Uint64
)

// HandleInterrupt ensures that the provided handler will be invoked when a
// particular interrupt number occurs. Passing a nil handler removes the
// registration.
func HandleInterrupt(intNumber InterruptNumber, handler Handler) {
	guard := handlers.LockIRQ()
	guard.Value()[intNumber] = handler
	guard.Unlock()
}

// Dispatch delivers an interrupt to the handler registered for intNumber
// and reports whether one was found. The handler table lock is released
// before the handler runs so handlers may register other handlers.
func Dispatch(intNumber InterruptNumber, frame *Frame, regs *Regs) bool {
	wasEnabled := cpu.SaveAndDisableInterrupts()
	defer cpu.RestoreInterrupts(wasEnabled)

	guard := handlers.Lock()
	handler := guard.Value()[intNumber]
	guard.Unlock()

	if handler == nil {
		unhandled.Add(1)
		kfmt.Printf("[irq] unhandled interrupt %d\n", uint8(intNumber))
		return false
	}

	handler(frame, regs)
	return true
}

// Unhandled returns the number of interrupts that were dispatched to a
// vector without a handler.
func Unhandled() uint64 {
	return unhandled.Load()
}
