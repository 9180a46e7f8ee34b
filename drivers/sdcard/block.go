package sdcard

import (
	"sdstack/core"
	"sdstack/errcode"
	"sdstack/protocol"
)

// ReadBlock reads sector lba into buf.
func (d *Device) ReadBlock(lba uint32, buf *[protocol.BlockSize]byte) error {
	arg, err := d.begin(lba)
	if err != nil {
		return err
	}
	defer d.end()

	return d.selected("sdcard.read_block", func() error {
		r, err := d.command(protocol.CMD17, arg, 0)
		if err != nil {
			return err
		}
		if r.HasError() {
			return errcode.New(errcode.ReadError, "sdcard.read_block", r1String(r))
		}
		return d.readData(protocol.CMD17, arg, buf[:])
	})
}

// WriteBlock writes buf to sector lba.
func (d *Device) WriteBlock(lba uint32, buf *[protocol.BlockSize]byte) error {
	arg, err := d.begin(lba)
	if err != nil {
		return err
	}
	defer d.end()
	if d.opts.WriteProtect != nil && d.opts.WriteProtect() {
		return errcode.WriteProtected
	}

	return d.selected("sdcard.write_block", func() error {
		r, err := d.command(protocol.CMD24, arg, 0)
		if err != nil {
			return err
		}
		if r.HasError() {
			return errcode.New(errcode.WriteError, "sdcard.write_block", r1String(r))
		}
		return d.writeData(arg, buf[:])
	})
}

func (d *Device) writeData(arg uint32, buf []byte) error {
	crc := protocol.CRC16(buf)
	head := [1]byte{protocol.TokenStartBlock}
	tail := [2]byte{byte(crc >> 8), byte(crc)}
	for _, chunk := range [][]byte{head[:], buf, tail[:]} {
		if err := d.bus.Transfer(chunk, d.scratch[:len(chunk)]); err != nil {
			return errcode.Wrap(errcode.SPIError, "sdcard.write", err)
		}
	}

	resp, ok, err := d.poll(DataRespPolls, func(b byte) bool { return b != protocol.Idle })
	if err != nil {
		return err
	}
	core.RecordEvent(core.EvtDataResponse, protocol.CMD24, arg, resp)
	if !ok {
		return errcode.New(errcode.WriteError, "sdcard.write", "no data response")
	}
	switch protocol.DataResponse(resp) {
	case protocol.Accepted:
	case protocol.CRCRejected:
		return errcode.New(errcode.CRCError, "sdcard.write", "block rejected")
	default:
		return errcode.New(errcode.WriteError, "sdcard.write", "data response "+core.Hex8(resp))
	}

	// The card holds MISO low while programming.
	b, ok, err := d.poll(BusyPolls, func(b byte) bool { return b != 0 })
	if err != nil {
		return err
	}
	if !ok {
		core.RecordEvent(core.EvtBusy, protocol.CMD24, arg, b)
		return errcode.New(errcode.WriteError, "sdcard.write", "busy timeout")
	}
	return nil
}

// ReadBlocks reads len(buf)/512 consecutive sectors starting at start.
func (d *Device) ReadBlocks(start uint32, buf []byte) error {
	if err := d.span(start, len(buf)); err != nil {
		return err
	}
	for off := 0; off < len(buf); off += protocol.BlockSize {
		blk := (*[protocol.BlockSize]byte)(buf[off : off+protocol.BlockSize])
		if err := d.ReadBlock(start+uint32(off/protocol.BlockSize), blk); err != nil {
			return err
		}
	}
	return nil
}

// WriteBlocks writes len(buf)/512 consecutive sectors starting at start.
func (d *Device) WriteBlocks(start uint32, buf []byte) error {
	if err := d.span(start, len(buf)); err != nil {
		return err
	}
	for off := 0; off < len(buf); off += protocol.BlockSize {
		blk := (*[protocol.BlockSize]byte)(buf[off : off+protocol.BlockSize])
		if err := d.WriteBlock(start+uint32(off/protocol.BlockSize), blk); err != nil {
			return err
		}
	}
	return nil
}

// span rejects a multi-sector range that is misaligned, runs past the card
// or, when the size is unknown, past the last addressable sector.
func (d *Device) span(start uint32, n int) error {
	if n%protocol.BlockSize != 0 {
		return errcode.InvalidSector
	}
	end := uint64(start) + uint64(n/protocol.BlockSize)
	limit := d.addressable()
	if d.info.CapacitySectors != 0 {
		limit = uint64(d.info.CapacitySectors)
	}
	if end > limit {
		return errcode.New(errcode.InvalidSector, "sdcard", "sectors "+core.Utoa(start)+"+"+core.Itoa(n/protocol.BlockSize)+" out of range")
	}
	return nil
}

// addressable is the sector count a 32-bit command argument can reach.
func (d *Device) addressable() uint64 {
	if d.info.Type.BlockAddressed() {
		return 1 << 32
	}
	return 1 << 23
}

// begin checks state and translates lba into a command argument.
func (d *Device) begin(lba uint32) (uint32, error) {
	if !d.initialized {
		return 0, errcode.NotInitialized
	}
	if d.state != Ready {
		return 0, errcode.InitializationFailed
	}
	if (d.info.CapacitySectors != 0 && lba >= d.info.CapacitySectors) || uint64(lba) >= d.addressable() {
		return 0, errcode.New(errcode.InvalidSector, "sdcard", "sector "+core.Utoa(lba)+" out of range")
	}
	d.state = Active
	if d.info.Type.BlockAddressed() {
		return lba, nil
	}
	return lba << 9, nil
}

func (d *Device) end() { d.state = Ready }
