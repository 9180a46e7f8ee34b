package protocol

// Frame layout constants.
const (
	CommandLen   = 6
	startPattern = 0x40 // start bit 0, transmission bit 1
	stopBit      = 0x01
	indexMask    = 0x3F
)

// Command is one SD command frame. The CRC is computed when the command is
// built and never changes.
type Command struct {
	Index uint8  // 0-63
	Arg   uint32 // big-endian on the wire
	CRC   uint8  // 7-bit CRC over the first five frame bytes
}

// NewCommand builds command index with argument arg. Index bits above the
// sixth are dropped.
func NewCommand(index uint8, arg uint32) Command {
	c := Command{Index: index & indexMask, Arg: arg}
	h := c.header()
	c.CRC = CRC7(h[:])
	return c
}

func (c Command) header() [5]byte {
	return [5]byte{
		startPattern | c.Index,
		byte(c.Arg >> 24),
		byte(c.Arg >> 16),
		byte(c.Arg >> 8),
		byte(c.Arg),
	}
}

// Bytes returns the 6-byte wire frame.
func (c Command) Bytes() [CommandLen]byte {
	h := c.header()
	return [CommandLen]byte{h[0], h[1], h[2], h[3], h[4], c.CRC<<1 | stopBit}
}

// Frame is a decoded command frame, as seen by a card.
type Frame struct {
	Command
	StartOK bool // start bit 0 and transmission bit 1
	StopOK  bool // end bit 1
}

// ParseCommand decodes a 6-byte frame. It does not reject malformed
// frames; the flags and CRCOK report what was wrong.
func ParseCommand(b [CommandLen]byte) Frame {
	return Frame{
		Command: Command{
			Index: b[0] & indexMask,
			Arg:   uint32(b[1])<<24 | uint32(b[2])<<16 | uint32(b[3])<<8 | uint32(b[4]),
			CRC:   b[5] >> 1,
		},
		StartOK: b[0]&0xC0 == startPattern,
		StopOK:  b[5]&stopBit != 0,
	}
}

// CRCOK reports whether the received CRC matches the header.
func (f Frame) CRCOK() bool {
	h := f.header()
	return CRC7(h[:]) == f.CRC
}

// Valid reports whether the frame is well formed with a matching CRC.
func (f Frame) Valid() bool {
	return f.StartOK && f.StopOK && f.CRCOK()
}
