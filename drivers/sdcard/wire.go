package sdcard

import (
	"sdstack/core"
	"sdstack/errcode"
	"sdstack/protocol"
)

// selected runs fn with the card selected and always deselects afterwards.
func (d *Device) selected(op string, fn func() error) error {
	if err := d.bus.CSActive(); err != nil {
		return errcode.Wrap(errcode.SPIError, op, err)
	}
	err := fn()
	if derr := d.release(); derr != nil && err == nil {
		err = errcode.Wrap(errcode.SPIError, op, derr)
	}
	return err
}

// release deselects the card and clocks one byte so it lets go of MISO.
func (d *Device) release() error {
	if err := d.bus.CSInactive(); err != nil {
		return err
	}
	_, err := d.wire.Transfer(protocol.Idle)
	return err
}

// clock sends n idle bytes.
func (d *Device) clock(n int) error {
	if err := d.wire.Tx(d.ones[:n], d.scratch[:n]); err != nil {
		return errcode.Wrap(errcode.SPIError, "sdcard.clock", err)
	}
	return nil
}

// poll clocks idle bytes until done accepts one or limit bytes pass.
func (d *Device) poll(limit int, done func(b byte) bool) (byte, bool, error) {
	b := byte(protocol.Idle)
	for i := 0; i < limit; i++ {
		var err error
		b, err = d.wire.Transfer(protocol.Idle)
		if err != nil {
			return b, false, errcode.Wrap(errcode.SPIError, "sdcard.poll", err)
		}
		if done(b) {
			return b, true, nil
		}
	}
	return b, false, nil
}

// command sends one frame, waits for R1 and reads extra trailing bytes.
// The caller holds chip select.
func (d *Device) command(index uint8, arg uint32, extra int) (protocol.Response, error) {
	frame := protocol.NewCommand(index, arg).Bytes()
	var rx [protocol.CommandLen]byte
	core.RecordEvent(core.EvtCommand, index, arg, frame[5])
	if err := d.bus.Transfer(frame[:], rx[:]); err != nil {
		return protocol.Response{}, errcode.Wrap(errcode.SPIError, "sdcard.cmd", err)
	}

	// R1 has bit 7 clear; anything else is the bus idling.
	r1, ok, err := d.poll(ResponsePolls, func(b byte) bool { return b&protocol.R1Invalid == 0 })
	if err != nil {
		return protocol.Response{}, err
	}
	if !ok {
		core.RecordEvent(core.EvtTimeout, index, arg, r1)
		return protocol.Response{}, errcode.New(errcode.CommandTimeout, "sdcard.cmd", "CMD"+core.Itoa(int(index)))
	}
	core.RecordEvent(core.EvtResponse, index, arg, r1)
	if extra == 0 {
		return protocol.NewResponse(r1), nil
	}

	var data [4]byte
	if err := d.wire.Tx(d.ones[:4], data[:]); err != nil {
		return protocol.Response{}, errcode.Wrap(errcode.SPIError, "sdcard.cmd", err)
	}
	return protocol.ResponseWithData(r1, data), nil
}

// waitToken waits for the start of a data block. An error token fails
// with code.
func (d *Device) waitToken(cmd uint8, arg uint32, code errcode.Code) error {
	tok, ok, err := d.poll(TokenPolls, func(b byte) bool {
		return b == protocol.TokenStartBlock || protocol.IsDataErrorToken(b)
	})
	if err != nil {
		return err
	}
	core.RecordEvent(core.EvtDataToken, cmd, arg, tok)
	if !ok {
		return errcode.New(code, "sdcard.token", "no data token")
	}
	if tok != protocol.TokenStartBlock {
		return errcode.New(code, "sdcard.token", "error token "+core.Hex8(tok))
	}
	return nil
}

// readData receives one data block into buf and checks its CRC when
// asked to.
func (d *Device) readData(cmd uint8, arg uint32, buf []byte) error {
	if err := d.waitToken(cmd, arg, errcode.ReadError); err != nil {
		return err
	}
	if err := d.bus.Transfer(d.ones[:len(buf)], buf); err != nil {
		return errcode.Wrap(errcode.SPIError, "sdcard.read", err)
	}
	var crc [2]byte
	if err := d.wire.Tx(d.ones[:2], crc[:]); err != nil {
		return errcode.Wrap(errcode.SPIError, "sdcard.read", err)
	}
	if d.opts.VerifyCRC {
		got := uint16(crc[0])<<8 | uint16(crc[1])
		if want := protocol.CRC16(buf); got != want {
			return errcode.New(errcode.CRCError, "sdcard.read",
				"crc "+core.Hex32(uint32(got))+" want "+core.Hex32(uint32(want)))
		}
	}
	return nil
}

// readRegister fetches a 16-byte register (CSD or CID).
func (d *Device) readRegister(cmd uint8) ([16]byte, error) {
	var reg [16]byte
	r, err := d.command(cmd, 0, 0)
	if err != nil {
		return reg, err
	}
	if r.HasError() {
		return reg, errcode.New(errcode.CommandError, "sdcard.register", r1String(r))
	}
	if err := d.readData(cmd, 0, reg[:]); err != nil {
		if errcode.Of(err) == errcode.ReadError {
			return reg, errcode.Wrap(errcode.CommandTimeout, "sdcard.register", err)
		}
		return reg, err
	}
	return reg, nil
}
