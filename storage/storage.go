// Package storage is the block layer above the SD card driver. A Manager
// owns at most one device, serializes every caller and retries failed
// transfers a bounded number of times before reporting the storage as
// unavailable.
package storage

import (
	"sync"

	"sdstack/core"
	"sdstack/errcode"
)

// SectorSize is the only block size the stack handles.
const SectorSize = 512

// BlockDevice is what the Manager drives. *sdcard.Device implements it.
type BlockDevice interface {
	ReadBlocks(start uint32, buf []byte) error
	WriteBlocks(start uint32, buf []byte) error
	Capacity() uint32
}

// DefaultRetries is the number of attempts per request.
const DefaultRetries = 3

// Manager serializes access to one BlockDevice.
type Manager struct {
	mu      sync.Mutex
	dev     BlockDevice
	retries int
}

// NewManager returns a Manager with no device attached. retries below 1
// select DefaultRetries.
func NewManager(retries int) *Manager {
	if retries < 1 {
		retries = DefaultRetries
	}
	return &Manager{retries: retries}
}

// Attach installs dev, replacing any previous device.
func (m *Manager) Attach(dev BlockDevice) {
	m.mu.Lock()
	m.dev = dev
	m.mu.Unlock()
}

// Detach removes the device.
func (m *Manager) Detach() {
	m.mu.Lock()
	m.dev = nil
	m.mu.Unlock()
}

// Attached reports whether a device is installed.
func (m *Manager) Attached() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dev != nil
}

// Capacity returns the device size in sectors, 0 when nothing is attached.
func (m *Manager) Capacity() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dev == nil {
		return 0
	}
	return m.dev.Capacity()
}

// ReadBlocks reads whole sectors starting at start.
func (m *Manager) ReadBlocks(start uint32, buf []byte) error {
	return m.do("storage.read", start, buf, BlockDevice.ReadBlocks)
}

// WriteBlocks writes whole sectors starting at start.
func (m *Manager) WriteBlocks(start uint32, buf []byte) error {
	return m.do("storage.write", start, buf, BlockDevice.WriteBlocks)
}

func (m *Manager) do(op string, start uint32, buf []byte, fn func(BlockDevice, uint32, []byte) error) error {
	if len(buf)%SectorSize != 0 {
		return errcode.InvalidSector
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempt(op, start, buf, fn)
}

// modify rewrites the sectors from first that buf covers. When edges is
// set the first and last sector are read before patch runs, so a patch
// that touches part of a sector keeps the rest. The read and the write
// happen under one lock: patches to disjoint bytes of a sector compose.
func (m *Manager) modify(first uint32, buf []byte, edges bool, patch func([]byte)) error {
	if len(buf) == 0 || len(buf)%SectorSize != 0 {
		return errcode.InvalidSector
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if edges {
		if err := m.attempt("storage.read", first, buf[:SectorSize], BlockDevice.ReadBlocks); err != nil {
			return err
		}
		if n := uint32(len(buf) / SectorSize); n > 1 {
			if err := m.attempt("storage.read", first+n-1, buf[len(buf)-SectorSize:], BlockDevice.ReadBlocks); err != nil {
				return err
			}
		}
	}
	patch(buf)
	return m.attempt("storage.write", first, buf, BlockDevice.WriteBlocks)
}

// attempt runs fn with retries. The caller holds m.mu.
func (m *Manager) attempt(op string, start uint32, buf []byte, fn func(BlockDevice, uint32, []byte) error) error {
	if m.dev == nil {
		return errcode.NotInitialized
	}

	var err error
	for attempt := 1; attempt <= m.retries; attempt++ {
		err = fn(m.dev, start, buf)
		if err == nil || !retryable(err) {
			return err
		}
		core.Info(op + " sector " + core.Utoa(start) + " attempt " + core.Itoa(attempt) + ": " + err.Error())
	}
	core.Fail(op + " giving up after " + core.Itoa(m.retries) + " attempts")
	return errcode.Wrap(errcode.Unavailable, op, err)
}

// retryable excludes errors that another attempt cannot fix.
func retryable(err error) bool {
	switch errcode.Of(err) {
	case errcode.InvalidSector, errcode.WriteProtected, errcode.NotInitialized, errcode.CardNotPresent:
		return false
	}
	return true
}
