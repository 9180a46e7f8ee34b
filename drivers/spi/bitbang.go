package spi

import (
	"sdstack/core"
	"sdstack/drivers/gpio"
	"sdstack/errcode"
)

// GPIO is the bit-bang backend. It owns the four pins in its mapping; no
// other code may drive them while it is initialized.
//
// Each bit is set up on MOSI, then the clock is driven through the sampling
// edge, MISO is read, and the clock is driven through the second edge. Edge
// one raises SCLK in modes 0 and 2 and lowers it in modes 1 and 3. There is
// no timeout: the engine runs at its configured rate whether or not the
// device keeps up.
type GPIO struct {
	ctrl        *gpio.Controller
	pins        gpio.SPIPins
	cfg         Config
	loops       uint32
	delay       func(loops uint32)
	initialized bool
}

// NewGPIO returns a bit-bang bus on ctrl using pins. It touches no
// registers.
func NewGPIO(ctrl *gpio.Controller, pins gpio.SPIPins) *GPIO {
	return &GPIO{ctrl: ctrl, pins: pins, delay: spin}
}

// SetDelay replaces the half-clock busy wait. nil restores the default.
func (g *GPIO) SetDelay(fn func(loops uint32)) {
	if fn == nil {
		fn = spin
	}
	g.delay = fn
}

// Config returns the active configuration.
func (g *GPIO) Config() Config { return g.cfg }

// Pins returns the pin mapping.
func (g *GPIO) Pins() gpio.SPIPins { return g.pins }

// Initialized reports whether Init succeeded.
func (g *GPIO) Initialized() bool { return g.initialized }

// Init implements Bus. Calling it again reconfigures the bus, which is how
// the clock is raised after card power-up.
func (g *GPIO) Init(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := g.pins.Validate(); err != nil {
		return err
	}
	g.cfg = cfg
	g.loops = HalfClockLoops(cfg.ClockRate)
	g.initialized = false

	if err := g.ctrl.Init(); err != nil {
		return err
	}
	for _, p := range [3]gpio.Pin{g.pins.SCLK, g.pins.MOSI, g.pins.CS} {
		if err := g.ctrl.SetDirection(p, gpio.Output); err != nil {
			return err
		}
	}
	if err := g.ctrl.SetDirection(g.pins.MISO, gpio.Input); err != nil {
		return err
	}
	if err := g.setClockIdle(); err != nil {
		return err
	}
	if err := g.ctrl.SetPin(g.pins.MOSI, gpio.Low); err != nil {
		return err
	}
	// The bus is not marked ready yet, so deselect without the state check.
	if err := g.driveCS(false); err != nil {
		return err
	}
	g.initialized = true
	core.Debug("bit-bang SPI ready, half clock " + core.Utoa(g.loops) + " loops")
	return nil
}

// Close returns the pins to inputs and releases the bus.
func (g *GPIO) Close() error {
	if !g.initialized {
		return errcode.NotInitialized
	}
	g.initialized = false
	for _, p := range [4]gpio.Pin{g.pins.SCLK, g.pins.MOSI, g.pins.MISO, g.pins.CS} {
		if err := g.ctrl.SetDirection(p, gpio.Input); err != nil {
			return err
		}
	}
	return nil
}

// Transfer implements Bus.
func (g *GPIO) Transfer(tx, rx []byte) error {
	if len(tx) != len(rx) {
		return errcode.BufferTooSmall
	}
	if !g.initialized {
		return errcode.NotInitialized
	}
	for i, b := range tx {
		v, err := g.transferByte(b)
		if err != nil {
			return err
		}
		rx[i] = v
	}
	return nil
}

// CSActive implements Bus.
func (g *GPIO) CSActive() error {
	if !g.initialized {
		return errcode.NotInitialized
	}
	return g.driveCS(true)
}

// CSInactive implements Bus.
func (g *GPIO) CSInactive() error {
	if !g.initialized {
		return errcode.NotInitialized
	}
	return g.driveCS(false)
}

func (g *GPIO) driveCS(active bool) error {
	return g.ctrl.SetPin(g.pins.CS, gpio.StateOf(csLevel(active, g.cfg.CSActiveHigh)))
}

func (g *GPIO) setClockIdle() error {
	return g.ctrl.SetPin(g.pins.SCLK, gpio.StateOf(g.cfg.Mode.CPOL()))
}

// edgeLevel is the SCLK level driven by the sampling edge.
func (g *GPIO) edgeLevel() gpio.State {
	if g.cfg.Mode == Mode0 || g.cfg.Mode == Mode2 {
		return gpio.High
	}
	return gpio.Low
}

func (g *GPIO) transferByte(tx byte) (byte, error) {
	var rx byte
	first := g.edgeLevel()
	second := gpio.High
	if first == gpio.High {
		second = gpio.Low
	}
	for i := 0; i < 8; i++ {
		bit := uint(7 - i)
		if g.cfg.BitOrder == LSBFirst {
			bit = uint(i)
		}
		if err := g.ctrl.SetPin(g.pins.MOSI, gpio.StateOf(tx&(1<<bit) != 0)); err != nil {
			return 0, err
		}

		if err := g.ctrl.SetPin(g.pins.SCLK, first); err != nil {
			return 0, err
		}
		g.delay(g.loops)

		s, err := g.ctrl.ReadPin(g.pins.MISO)
		if err != nil {
			return 0, err
		}
		if s == gpio.High {
			rx |= 1 << bit
		}

		if err := g.ctrl.SetPin(g.pins.SCLK, second); err != nil {
			return 0, err
		}
		g.delay(g.loops)
	}
	return rx, nil
}
