//go:build tinygo

package mmio

import (
	"runtime/volatile"
	"unsafe"
)

// Volatile accesses physical addresses directly. Only meaningful on bare
// metal where the register block is identity mapped.
type Volatile struct{}

func (Volatile) Load32(addr uintptr) uint32 {
	return volatile.LoadUint32((*uint32)(unsafe.Pointer(addr)))
}

func (Volatile) Store32(addr uintptr, v uint32) {
	volatile.StoreUint32((*uint32)(unsafe.Pointer(addr)), v)
}
