package spi

import (
	"sdstack/core"
	"sdstack/errcode"
	"sdstack/mmio"
)

// Peripheral register offsets.
const (
	RegCtrl   = 0x00
	RegStatus = 0x04
	RegData   = 0x08
	RegClock  = 0x0C
)

// CTRL and STATUS bits.
const (
	CtrlEnable    = 1 << 0
	CtrlModeShift = 1      // two bits, mode number
	CtrlCS        = 1 << 3 // chip select line level
	CtrlLSBFirst  = 1 << 4

	StatusDone = 1 << 0
)

// PollLimit bounds the wait for a byte to complete.
const PollLimit = 10000

// DefaultRefClock is the peripheral input clock assumed when none is set.
const DefaultRefClock = 100_000_000

// Controller is the hardware SPI backend. No SoC currently provides the
// peripheral, so with a nil Detect the probe reports it absent and Open
// falls through to the bit-bang backend.
type Controller struct {
	regs        mmio.Bus
	base        uintptr
	cfg         Config
	initialized bool

	// Detect reports whether the peripheral exists. nil means absent.
	Detect func() bool
	// RefClock is the peripheral input clock in Hz.
	RefClock uint32
}

// NewController binds a controller to the peripheral at base. It touches
// no registers.
func NewController(regs mmio.Bus, base uintptr) *Controller {
	return &Controller{regs: regs, base: base, RefClock: DefaultRefClock}
}

// Init implements Bus.
func (c *Controller) Init(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	c.cfg = cfg
	c.initialized = false
	if c.Detect == nil || !c.Detect() {
		return errcode.DeviceNotFound
	}

	c.store(RegClock, c.divider())
	ctrl := uint32(CtrlEnable) | uint32(cfg.Mode)<<CtrlModeShift
	if cfg.BitOrder == LSBFirst {
		ctrl |= CtrlLSBFirst
	}
	if csLevel(false, cfg.CSActiveHigh) {
		ctrl |= CtrlCS
	}
	c.store(RegCtrl, ctrl)
	c.initialized = true
	core.OK("hardware SPI at " + core.HexAddr(c.base))
	return nil
}

// Config returns the active configuration.
func (c *Controller) Config() Config { return c.cfg }

// Initialized reports whether Init succeeded.
func (c *Controller) Initialized() bool { return c.initialized }

func (c *Controller) divider() uint32 {
	ref := c.RefClock
	if ref == 0 {
		ref = DefaultRefClock
	}
	if c.cfg.ClockRate == 0 {
		return 0xFFFF
	}
	div := ref / (2 * c.cfg.ClockRate)
	if div == 0 {
		div = 1
	}
	return div
}

// Transfer implements Bus.
func (c *Controller) Transfer(tx, rx []byte) error {
	if len(tx) != len(rx) {
		return errcode.BufferTooSmall
	}
	if !c.initialized {
		return errcode.NotInitialized
	}
	for i, b := range tx {
		v, err := c.transferByte(b)
		if err != nil {
			return err
		}
		rx[i] = v
	}
	return nil
}

func (c *Controller) transferByte(b byte) (byte, error) {
	c.store(RegData, uint32(b))
	for i := 0; i < PollLimit; i++ {
		if c.load(RegStatus)&StatusDone != 0 {
			return byte(c.load(RegData)), nil
		}
	}
	return 0, errcode.TransferTimeout
}

// CSActive implements Bus.
func (c *Controller) CSActive() error { return c.setCS(true) }

// CSInactive implements Bus.
func (c *Controller) CSInactive() error { return c.setCS(false) }

func (c *Controller) setCS(active bool) error {
	if !c.initialized {
		return errcode.NotInitialized
	}
	v := c.load(RegCtrl)
	if csLevel(active, c.cfg.CSActiveHigh) {
		v |= CtrlCS
	} else {
		v &^= CtrlCS
	}
	c.store(RegCtrl, v)
	return nil
}

func (c *Controller) load(off uintptr) uint32     { return c.regs.Load32(c.base + off) }
func (c *Controller) store(off uintptr, v uint32) { c.regs.Store32(c.base+off, v) }
