// Package cardsim emulates an SD card in SPI mode at the pin level.
//
// A Card attaches to the GPIO register file of an mmio.Sim. It watches the
// SCLK, MOSI and CS bits of the output registers, shifts bits in on the
// rising clock edge and drives MISO in the input register on the falling
// edge, as a mode 0 slave does. Chip select is active low.
package cardsim

import (
	"sync"

	"sdstack/drivers/gpio"
	"sdstack/mmio"
	"sdstack/protocol"
)

// Kind selects the card personality.
type Kind uint8

const (
	SDHC   Kind = iota // block addressed, CSD v2
	SDSCv2             // byte addressed, answers CMD8
	SDSCv1             // byte addressed, rejects CMD8
)

func (k Kind) String() string {
	switch k {
	case SDHC:
		return "SDHC"
	case SDSCv2:
		return "SDSCv2"
	case SDSCv1:
		return "SDSCv1"
	default:
		return "unknown"
	}
}

// Faults injects misbehaviour.
type Faults struct {
	ACMD41Busy   int  // ACMD41 calls answered "still idle" before ready
	NoResponse   bool // never answer; MISO stays high
	RejectWrites bool // answer every data block with a write error
	BadReadCRC   bool // corrupt the CRC trailing read blocks
}

// Card is one simulated card. Create it with New and connect it with
// Attach.
type Card struct {
	mu sync.Mutex

	kind    Kind
	sectors uint32
	data    map[uint32]*[protocol.BlockSize]byte
	cid     [16]byte
	csd     [16]byte
	Faults  Faults

	// line state
	sim      *mmio.Sim
	pins     gpio.SPIPins
	addrOf   func(p gpio.Pin, off uintptr) uintptr
	layout   gpio.Layout
	selected bool
	sclk     bool
	shiftIn  byte
	bits     int
	cur      byte
	out      []byte

	// protocol state
	spiMode  bool
	idle     bool
	appCmd   bool
	crcOn    bool
	busyLeft int
	frame    [protocol.CommandLen]byte
	frameLen int
	rx       receiver
	log      []uint8
}

type receiver struct {
	active  bool
	started bool
	lba     uint32
	buf     [protocol.BlockSize + 2]byte
	n       int
}

// New returns a card of the given kind. The size is rounded down to the
// granularity the CSD can express: 1024 sectors for SDHC, 512 otherwise.
func New(kind Kind, sectors uint32) *Card {
	unit := uint32(512)
	if kind == SDHC {
		unit = 1024
	}
	sectors -= sectors % unit
	if sectors == 0 {
		sectors = unit
	}
	c := &Card{
		kind:    kind,
		sectors: sectors,
		data:    make(map[uint32]*[protocol.BlockSize]byte),
		cur:     protocol.Idle,
	}
	c.csd = buildCSD(kind, sectors)
	c.cid = buildCID()
	return c
}

// Kind returns the card personality.
func (c *Card) Kind() Kind { return c.kind }

// Sectors returns the card size in 512-byte sectors.
func (c *Card) Sectors() uint32 { return c.sectors }

// CSD returns the card specific data register.
func (c *Card) CSD() [16]byte { return c.csd }

// CID returns the card identification register.
func (c *Card) CID() [16]byte { return c.cid }

// Sector returns a copy of sector lba.
func (c *Card) Sector(lba uint32) []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]byte, protocol.BlockSize)
	if s, ok := c.data[lba]; ok {
		copy(out, s[:])
	}
	return out
}

// SetSector fills sector lba from b.
func (c *Card) SetSector(lba uint32, b []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := new([protocol.BlockSize]byte)
	copy(s[:], b)
	c.data[lba] = s
}

// Commands returns the indices of every command received so far. ACMD
// indices are reported as received, after their CMD55.
func (c *Card) Commands() []uint8 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]uint8(nil), c.log...)
}

// CRCEnabled reports whether the host switched CRC checking on.
func (c *Card) CRCEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.crcOn
}

// Attach connects the card to the GPIO block at base. The hooks replace
// any other store hooks on the affected output registers.
func (c *Card) Attach(sim *mmio.Sim, base uintptr, layout gpio.Layout, pins gpio.SPIPins) {
	c.mu.Lock()
	c.sim = sim
	c.pins = pins
	c.layout = layout
	c.addrOf = func(p gpio.Pin, off uintptr) uintptr {
		return base + uintptr(p.Port)*layout.PortSize + off
	}
	c.mu.Unlock()

	seen := make(map[uintptr]bool)
	for _, p := range [3]gpio.Pin{pins.SCLK, pins.MOSI, pins.CS} {
		addr := c.addrOf(p, layout.Out)
		if seen[addr] {
			continue
		}
		seen[addr] = true
		sim.OnStore(addr, c.onStore)
	}
	c.driveMISO(true)
}

func (c *Card) level(p gpio.Pin) bool {
	return c.sim.Peek(c.addrOf(p, c.layout.Out))&(1<<p.Pin) != 0
}

func (c *Card) driveMISO(high bool) {
	addr := c.addrOf(c.pins.MISO, c.layout.In)
	v := c.sim.Peek(addr)
	if high {
		v |= 1 << c.pins.MISO.Pin
	} else {
		v &^= 1 << c.pins.MISO.Pin
	}
	c.sim.Poke(addr, v)
}

func (c *Card) onStore(uintptr, uint32, uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	selected := !c.level(c.pins.CS)
	sclk := c.level(c.pins.SCLK)

	if selected != c.selected {
		c.selected = selected
		c.bits = 0
		c.shiftIn = 0
		if selected {
			c.cur = c.pop()
			c.driveMISO(c.cur&0x80 != 0)
		} else {
			c.out = c.out[:0]
			c.cur = protocol.Idle
			c.driveMISO(true)
		}
	}

	if sclk == c.sclk {
		return
	}
	c.sclk = sclk
	if !c.selected {
		return
	}
	if sclk {
		c.shiftIn <<= 1
		if c.level(c.pins.MOSI) {
			c.shiftIn |= 1
		}
		c.bits++
		return
	}
	if c.bits == 8 {
		in := c.shiftIn
		c.bits = 0
		c.shiftIn = 0
		c.receive(in)
		c.cur = c.pop()
	}
	c.driveMISO(c.cur&(0x80>>uint(c.bits)) != 0)
}

func (c *Card) pop() byte {
	if c.Faults.NoResponse {
		c.out = c.out[:0]
	}
	if len(c.out) == 0 {
		return protocol.Idle
	}
	b := c.out[0]
	c.out = c.out[1:]
	return b
}

func (c *Card) send(b ...byte) {
	c.out = append(c.out, b...)
}
