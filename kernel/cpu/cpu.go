// Package cpu emulates the processor facilities the kernel core depends on:
// the interrupt-enable flag and the halt instruction.
package cpu

import (
	"os"
	"sync/atomic"
)

// Exit codes reported when the hosted kernel stops. They match the values
// written to the QEMU isa-debug-exit port.
const (
	ExitSuccess = 0x10
	ExitFailed  = 0x11
)

var (
	// interruptsEnabled mirrors the IF flag. It starts cleared, as it is when
	// the bootloader hands control to the kernel.
	interruptsEnabled atomic.Bool

	// exitFn is mocked by tests.
	exitFn = os.Exit
)

// EnableInterrupts enables interrupt handling.
func EnableInterrupts() {
	interruptsEnabled.Store(true)
}

// DisableInterrupts disables interrupt handling.
func DisableInterrupts() {
	interruptsEnabled.Store(false)
}

// InterruptsEnabled returns true if interrupt handling is enabled.
func InterruptsEnabled() bool {
	return interruptsEnabled.Load()
}

// SaveAndDisableInterrupts disables interrupt handling and returns whether
// interrupts were enabled before the call. The returned value must be passed
// to RestoreInterrupts once the critical section ends.
func SaveAndDisableInterrupts() bool {
	return interruptsEnabled.Swap(false)
}

// RestoreInterrupts re-enables interrupt handling if wasEnabled is true.
func RestoreInterrupts(wasEnabled bool) {
	if wasEnabled {
		interruptsEnabled.Store(true)
	}
}

// WithInterruptsDisabled runs fn with interrupt handling disabled and restores
// the previous interrupt state when fn returns.
func WithInterruptsDisabled(fn func()) {
	wasEnabled := SaveAndDisableInterrupts()
	defer RestoreInterrupts(wasEnabled)
	fn()
}

// Halt stops instruction execution. The hosted kernel has no processor to
// stop so the process exits with ExitFailed instead.
func Halt() {
	interruptsEnabled.Store(false)
	exitFn(ExitFailed)
}

// Exit stops the kernel reporting the supplied exit code.
func Exit(code int) {
	interruptsEnabled.Store(false)
	exitFn(code)
}
