package cardsim

import "sdstack/protocol"

// Response timing, in bytes.
const (
	ncr      = 1 // filler before R1
	nac      = 2 // filler between R1 and a data token
	busyLen  = 4 // busy bytes after an accepted block
	ocrVolts = 0x00FF8000
)

// Data-response bytes, upper bits as real cards send them.
const (
	respAccepted   = 0xE0 | protocol.DataAccepted
	respCRCError   = 0xE0 | protocol.DataCRCError
	respWriteError = 0xE0 | protocol.DataWriteError
)

// receive handles one byte clocked in while selected.
func (c *Card) receive(b byte) {
	if c.rx.active {
		c.receiveData(b)
		return
	}
	if c.frameLen == 0 {
		if b&0xC0 != 0x40 {
			return // idle filler or garbage between frames
		}
	}
	c.frame[c.frameLen] = b
	c.frameLen++
	if c.frameLen < protocol.CommandLen {
		return
	}
	c.frameLen = 0
	c.command(protocol.ParseCommand(c.frame))
}

func (c *Card) r1(flags byte) byte {
	if c.idle {
		flags |= protocol.R1Idle
	}
	return flags
}

func (c *Card) reply(b ...byte) {
	for i := 0; i < ncr; i++ {
		c.send(protocol.Idle)
	}
	c.send(b...)
}

func (c *Card) command(f protocol.Frame) {
	c.log = append(c.log, f.Index)
	app := c.appCmd
	c.appCmd = false

	if !c.spiMode && f.Index != protocol.CMD0 {
		return // still in SD bus mode
	}
	if !f.StopOK {
		return
	}
	crcChecked := c.crcOn || f.Index == protocol.CMD0 || f.Index == protocol.CMD8
	if crcChecked && !f.CRCOK() {
		c.reply(c.r1(protocol.R1CRCError))
		return
	}

	if app {
		c.appCommand(f)
		return
	}

	switch f.Index {
	case protocol.CMD0:
		c.spiMode = true
		c.idle = true
		c.busyLeft = c.Faults.ACMD41Busy
		c.reply(c.r1(0))
	case protocol.CMD8:
		if c.kind == SDSCv1 {
			c.reply(c.r1(protocol.R1IllegalCmd))
			return
		}
		c.reply(c.r1(0), 0x00, 0x00, byte(f.Arg>>8)&0x0F, byte(f.Arg))
	case protocol.CMD55:
		c.appCmd = true
		c.reply(c.r1(0))
	case protocol.CMD58:
		ocr := uint32(ocrVolts)
		if !c.idle {
			ocr |= protocol.OCRPowerUp
			if c.kind == SDHC {
				ocr |= protocol.OCRCCS
			}
		}
		c.reply(c.r1(0), byte(ocr>>24), byte(ocr>>16), byte(ocr>>8), byte(ocr))
	case protocol.CMD59:
		c.crcOn = f.Arg&1 != 0
		c.reply(c.r1(0))
	default:
		if c.idle {
			c.reply(c.r1(protocol.R1IllegalCmd))
			return
		}
		c.transferCommand(f)
	}
}

func (c *Card) appCommand(f protocol.Frame) {
	switch f.Index {
	case protocol.ACMD41:
		hcs := f.Arg&protocol.ArgHCS != 0
		if c.kind == SDHC && !hcs {
			c.reply(c.r1(0)) // a high capacity card never leaves idle without HCS
			return
		}
		if c.busyLeft > 0 {
			c.busyLeft--
		} else {
			c.idle = false
		}
		c.reply(c.r1(0))
	default:
		c.reply(c.r1(protocol.R1IllegalCmd))
	}
}

// transferCommand handles commands only valid after initialization.
func (c *Card) transferCommand(f protocol.Frame) {
	switch f.Index {
	case protocol.CMD9:
		c.reply(0)
		c.sendBlock(c.csd[:], false)
	case protocol.CMD10:
		c.reply(0)
		c.sendBlock(c.cid[:], false)
	case protocol.CMD12:
		c.reply(0)
	case protocol.CMD13:
		c.reply(0, 0)
	case protocol.CMD16:
		if f.Arg != protocol.BlockSize {
			c.reply(protocol.R1ParamError)
			return
		}
		c.reply(0)
	case protocol.CMD17:
		lba, ok := c.lba(f.Arg)
		if !ok {
			c.reply(protocol.R1AddressError)
			return
		}
		c.reply(0)
		if lba >= c.sectors {
			c.pad(nac)
			c.send(protocol.ErrTokenOutOfRange)
			return
		}
		var blk [protocol.BlockSize]byte
		if s, ok := c.data[lba]; ok {
			blk = *s
		}
		c.sendBlock(blk[:], c.Faults.BadReadCRC)
	case protocol.CMD24:
		lba, ok := c.lba(f.Arg)
		if !ok || lba >= c.sectors {
			c.reply(protocol.R1AddressError)
			return
		}
		c.reply(0)
		c.rx = receiver{active: true, lba: lba}
	default:
		c.reply(protocol.R1IllegalCmd)
	}
}

// lba converts a command argument to a sector number. Standard capacity
// cards take byte addresses.
func (c *Card) lba(arg uint32) (uint32, bool) {
	if c.kind == SDHC {
		return arg, true
	}
	if arg%protocol.BlockSize != 0 {
		return 0, false
	}
	return arg / protocol.BlockSize, true
}

func (c *Card) pad(n int) {
	for i := 0; i < n; i++ {
		c.send(protocol.Idle)
	}
}

func (c *Card) sendBlock(b []byte, corrupt bool) {
	c.pad(nac)
	c.send(protocol.TokenStartBlock)
	c.send(b...)
	crc := protocol.CRC16(b)
	if corrupt {
		crc ^= 0xFFFF
	}
	c.send(byte(crc>>8), byte(crc))
}

func (c *Card) receiveData(b byte) {
	rx := &c.rx
	if !rx.started {
		switch b {
		case protocol.TokenStartBlock:
			rx.started = true
		case protocol.Idle:
		default:
			rx.active = false // unexpected token aborts the write
		}
		return
	}
	rx.buf[rx.n] = b
	rx.n++
	if rx.n < len(rx.buf) {
		return
	}
	rx.active = false

	data := rx.buf[:protocol.BlockSize]
	got := uint16(rx.buf[protocol.BlockSize])<<8 | uint16(rx.buf[protocol.BlockSize+1])
	switch {
	case c.crcOn && got != protocol.CRC16(data):
		c.send(respCRCError)
	case c.Faults.RejectWrites:
		c.send(respWriteError)
	default:
		s := new([protocol.BlockSize]byte)
		copy(s[:], data)
		c.data[rx.lba] = s
		c.send(respAccepted)
		for i := 0; i < busyLen; i++ {
			c.send(0x00)
		}
	}
}
