package storage

import (
	"io"

	"sdstack/errcode"
)

// Volume presents a Manager as a flat byte space for filesystem code.
// Unaligned requests are widened to whole sectors; partial writes read
// the surrounding sector first. WriteAt may be called concurrently on
// disjoint ranges, including ranges that share a sector.
type Volume struct {
	m *Manager
}

// NewVolume wraps m.
func NewVolume(m *Manager) *Volume { return &Volume{m: m} }

// Size returns the volume size in bytes.
func (v *Volume) Size() int64 { return int64(v.m.Capacity()) * SectorSize }

// ReadAt implements io.ReaderAt.
func (v *Volume) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, errcode.InvalidSector
	}
	size := v.Size()
	if off >= size {
		return 0, io.EOF
	}
	want := len(p)
	if int64(want) > size-off {
		p = p[:size-off]
	}

	first := off / SectorSize
	last := (off + int64(len(p)) + SectorSize - 1) / SectorSize
	buf := make([]byte, (last-first)*SectorSize)
	if err := v.m.ReadBlocks(uint32(first), buf); err != nil {
		return 0, err
	}
	n := copy(p, buf[off-first*SectorSize:])
	if n < want {
		return n, io.EOF
	}
	return n, nil
}

// WriteAt implements io.WriterAt.
func (v *Volume) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 || off+int64(len(p)) > v.Size() {
		return 0, errcode.InvalidSector
	}
	if len(p) == 0 {
		return 0, nil
	}

	first := off / SectorSize
	last := (off + int64(len(p)) + SectorSize - 1) / SectorSize
	buf := make([]byte, (last-first)*SectorSize)
	head := off - first*SectorSize
	edges := head != 0 || len(p)%SectorSize != 0

	err := v.m.modify(uint32(first), buf, edges, func(buf []byte) {
		copy(buf[head:], p)
	})
	if err != nil {
		return 0, err
	}
	return len(p), nil
}
