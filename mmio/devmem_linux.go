//go:build linux && !tinygo

package mmio

import (
	"errors"
	"os"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

// DevMem maps a physical register window through /dev/mem.
// Accesses use sync/atomic so the compiler can neither elide nor merge them.
type DevMem struct {
	base uintptr // physical address of the first mapped register
	off  uintptr // offset of base inside mem (page alignment)
	size uintptr
	mem  []byte
}

// OpenDevMem maps size bytes of physical address space starting at base.
func OpenDevMem(base uintptr, size int) (*DevMem, error) {
	if size <= 0 {
		return nil, errors.New("mmio: invalid window size")
	}
	f, err := os.OpenFile("/dev/mem", os.O_RDWR|os.O_SYNC, 0)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	pageSize := uintptr(os.Getpagesize())
	page := base &^ (pageSize - 1)
	off := base - page

	mem, err := unix.Mmap(int(f.Fd()), int64(page), int(off)+size,
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, err
	}
	return &DevMem{base: base, off: off, size: uintptr(size), mem: mem}, nil
}

// word returns the register at addr, or nil when addr is outside the window
// or not 32-bit aligned.
func (m *DevMem) word(addr uintptr) *uint32 {
	if addr < m.base || addr-m.base+4 > m.size || addr&3 != 0 {
		return nil
	}
	return (*uint32)(unsafe.Pointer(&m.mem[m.off+addr-m.base]))
}

// Load32 reads the register at addr. Addresses outside the window read as
// all ones, like an unclaimed bus.
func (m *DevMem) Load32(addr uintptr) uint32 {
	w := m.word(addr)
	if w == nil {
		return 0xFFFFFFFF
	}
	return atomic.LoadUint32(w)
}

// Store32 writes the register at addr. Writes outside the window are dropped.
func (m *DevMem) Store32(addr uintptr, v uint32) {
	if w := m.word(addr); w != nil {
		atomic.StoreUint32(w, v)
	}
}

// Close unmaps the window.
func (m *DevMem) Close() error {
	if m.mem == nil {
		return nil
	}
	err := unix.Munmap(m.mem)
	m.mem = nil
	return err
}
