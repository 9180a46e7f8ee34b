//go:build !linux && !tinygo

package mmio

import "errors"

// DevMem is only available on Linux hosts.
type DevMem struct{}

func OpenDevMem(base uintptr, size int) (*DevMem, error) {
	return nil, errors.New("mmio: /dev/mem is not supported on this platform")
}

func (*DevMem) Load32(addr uintptr) uint32     { return 0xFFFFFFFF }
func (*DevMem) Store32(addr uintptr, v uint32) {}
func (*DevMem) Close() error                   { return nil }
