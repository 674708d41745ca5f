// Package kernel contains the types shared by every subsystem of the kernel
// core.
package kernel

// Error describes a kernel error. Kernel errors are defined as package-level
// pointers to Error so that reporting them never requires a memory
// allocation; the allocator itself reports its failures this way.
type Error struct {
	// The module where the error occurred.
	Module string

	// The error message
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}

// String returns the error prefixed by the module that raised it.
func (e *Error) String() string {
	return "[" + e.Module + "] " + e.Message
}
