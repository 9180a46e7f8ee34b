// Package mmio provides 32-bit access to memory-mapped device registers.
//
// Every access goes straight to the register: nothing is cached, merged or
// reordered, so register side effects stay in program order.
package mmio

// Bus reads and writes 32-bit device registers by absolute address.
type Bus interface {
	Load32(addr uintptr) uint32
	Store32(addr uintptr, v uint32)
}
