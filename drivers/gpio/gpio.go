// Package gpio drives individual pins of a memory-mapped GPIO block.
//
// The controller has no protocol knowledge: it only flips direction and
// output bits and samples input bits. Every register update is a
// read-modify-write of one 32-bit port word, so the other pins of the same
// port keep their state.
package gpio

import (
	"sdstack/core"
	"sdstack/errcode"
	"sdstack/mmio"
)

// PinsPerPort is the width of one port register.
const PinsPerPort = 32

// Pin identifies one GPIO line.
type Pin struct {
	Port uint8
	Pin  uint8
}

// NewPin returns the pin at port/pin.
func NewPin(port, pin uint8) Pin {
	return Pin{Port: port, Pin: pin}
}

// Direction is the data direction of a pin.
type Direction uint8

const (
	Input Direction = iota
	Output
)

// State is the logic level of a pin.
type State uint8

const (
	Low State = iota
	High
)

func (s State) String() string {
	if s == High {
		return "high"
	}
	return "low"
}

// StateOf maps a boolean level to a State.
func StateOf(high bool) State {
	if high {
		return High
	}
	return Low
}

// Layout describes where the per-port registers live. It is board specific
// and has to come from the platform integration layer.
type Layout struct {
	Dir      uintptr // direction register, bit set = output
	Out      uintptr // output level register
	In       uintptr // input level register
	PortSize uintptr // stride between ports
}

// DefaultLayout is the generic 0x10-byte port block: DIR, OUT and IN at
// offsets 0x04, 0x08 and 0x0C.
var DefaultLayout = Layout{Dir: 0x04, Out: 0x08, In: 0x0C, PortSize: 0x10}

// Validate rejects layouts whose registers alias each other or that have no
// port stride.
func (l Layout) Validate() error {
	if l.PortSize == 0 {
		return errcode.New(errcode.InvalidPin, "gpio.layout", "zero port size")
	}
	if l.Dir == l.Out || l.Dir == l.In || l.Out == l.In {
		return errcode.New(errcode.InvalidPin, "gpio.layout", "registers overlap")
	}
	if l.Dir&3 != 0 || l.Out&3 != 0 || l.In&3 != 0 || l.PortSize&3 != 0 {
		return errcode.New(errcode.InvalidPin, "gpio.layout", "unaligned register")
	}
	return nil
}

// Controller owns one GPIO block. It is not safe for concurrent use; the
// block has exactly one owner.
type Controller struct {
	regs        mmio.Bus
	base        uintptr
	layout      Layout
	initialized bool

	// Detect reports whether the block is present. nil means present:
	// there is no generic way to probe a GPIO block.
	Detect func() bool
}

// NewController binds a controller to the block at base. It touches no
// registers.
func NewController(regs mmio.Bus, base uintptr, layout Layout) *Controller {
	return &Controller{regs: regs, base: base, layout: layout}
}

// Init probes for the block and enables pin operations.
func (c *Controller) Init() error {
	if err := c.layout.Validate(); err != nil {
		return err
	}
	if c.Detect != nil && !c.Detect() {
		core.Fail("GPIO controller not found at " + core.HexAddr(c.base))
		return errcode.DeviceNotFound
	}
	if !c.initialized {
		core.OK("GPIO controller initialized at " + core.HexAddr(c.base))
	}
	c.initialized = true
	return nil
}

// Initialized reports whether Init succeeded.
func (c *Controller) Initialized() bool { return c.initialized }

// Base returns the block's base address.
func (c *Controller) Base() uintptr { return c.base }

// Layout returns the register layout.
func (c *Controller) Layout() Layout { return c.layout }

// SetDirection configures pin p as input or output.
func (c *Controller) SetDirection(p Pin, d Direction) error {
	addr, err := c.reg(p, c.layout.Dir)
	if err != nil {
		return err
	}
	c.update(addr, p.Pin, d == Output)
	return nil
}

// SetPin drives output pin p to s.
func (c *Controller) SetPin(p Pin, s State) error {
	addr, err := c.reg(p, c.layout.Out)
	if err != nil {
		return err
	}
	c.update(addr, p.Pin, s == High)
	return nil
}

// ReadPin samples input pin p.
func (c *Controller) ReadPin(p Pin) (State, error) {
	addr, err := c.reg(p, c.layout.In)
	if err != nil {
		return Low, err
	}
	return StateOf(c.regs.Load32(addr)&(1<<p.Pin) != 0), nil
}

// RegisterAddr returns the absolute address of the register at offset
// within p's port.
func (c *Controller) RegisterAddr(p Pin, offset uintptr) uintptr {
	return c.base + uintptr(p.Port)*c.layout.PortSize + offset
}

func (c *Controller) reg(p Pin, offset uintptr) (uintptr, error) {
	if !c.initialized {
		return 0, errcode.NotInitialized
	}
	if p.Pin >= PinsPerPort {
		return 0, errcode.InvalidPin
	}
	return c.RegisterAddr(p, offset), nil
}

// update sets or clears one bit, preserving the rest of the port word.
func (c *Controller) update(addr uintptr, bit uint8, set bool) {
	v := c.regs.Load32(addr)
	if set {
		v |= 1 << bit
	} else {
		v &^= 1 << bit
	}
	c.regs.Store32(addr, v)
}

// SPIPins maps the four lines of one bit-banged SPI bus.
type SPIPins struct {
	SCLK Pin // clock
	MOSI Pin // controller out, card in
	MISO Pin // card out, controller in
	CS   Pin // chip select
}

// NewSPIPins returns the pin mapping.
func NewSPIPins(sclk, mosi, miso, cs Pin) SPIPins {
	return SPIPins{SCLK: sclk, MOSI: mosi, MISO: miso, CS: cs}
}

// Validate rejects mappings that reuse a pin or address a bit outside the
// port word.
func (p SPIPins) Validate() error {
	all := [4]Pin{p.SCLK, p.MOSI, p.MISO, p.CS}
	for i, a := range all {
		if a.Pin >= PinsPerPort {
			return errcode.InvalidPin
		}
		for _, b := range all[i+1:] {
			if a == b {
				return errcode.New(errcode.InvalidPin, "gpio.spipins", "pin used twice")
			}
		}
	}
	return nil
}
