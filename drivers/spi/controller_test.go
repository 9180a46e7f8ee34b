package spi

import (
	"errors"
	"testing"

	"sdstack/drivers/gpio"
	"sdstack/errcode"
	"sdstack/mmio"
)

func newHardware(t *testing.T, sim *mmio.Sim, cfg Config) *Controller {
	t.Helper()
	c := NewController(sim, spiBase)
	c.Detect = func() bool { return true }
	if err := c.Init(cfg); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return c
}

func TestControllerAbsentByDefault(t *testing.T) {
	sim := mmio.NewSim()
	c := NewController(sim, spiBase)
	if err := c.Init(DefaultConfig()); !errors.Is(err, errcode.DeviceNotFound) {
		t.Fatalf("Init = %v, want DeviceNotFound", err)
	}
	if sim.Writes != 0 {
		t.Errorf("%d register writes for an absent peripheral", sim.Writes)
	}
	if err := c.Transfer([]byte{0}, make([]byte, 1)); !errors.Is(err, errcode.NotInitialized) {
		t.Errorf("Transfer = %v, want NotInitialized", err)
	}
	if err := c.CSActive(); !errors.Is(err, errcode.NotInitialized) {
		t.Errorf("CSActive = %v, want NotInitialized", err)
	}
}

func TestControllerRegisters(t *testing.T) {
	sim := mmio.NewSim()
	cfg := Config{ClockRate: 1_000_000, Mode: Mode3, BitOrder: LSBFirst}
	newHardware(t, sim, cfg)

	if got := sim.Peek(spiBase + RegClock); got != 50 {
		t.Errorf("CLOCK = %d, want 50", got)
	}
	want := uint32(CtrlEnable | 3<<CtrlModeShift | CtrlLSBFirst | CtrlCS)
	if got := sim.Peek(spiBase + RegCtrl); got != want {
		t.Errorf("CTRL = %#x, want %#x", got, want)
	}
}

func TestControllerTransfer(t *testing.T) {
	sim := mmio.NewSim()
	c := newHardware(t, sim, DefaultConfig())

	// Peripheral answers each byte with its complement.
	sim.OnStore(spiBase+RegData, func(addr uintptr, _, v uint32) {
		sim.Poke(addr, ^v&0xFF)
		sim.Poke(spiBase+RegStatus, StatusDone)
	})

	tx := []byte{0x00, 0x5A, 0xFF}
	rx := make([]byte, len(tx))
	if err := c.Transfer(tx, rx); err != nil {
		t.Fatal(err)
	}
	for i := range tx {
		if rx[i] != ^tx[i] {
			t.Errorf("rx[%d] = %#x, want %#x", i, rx[i], ^tx[i])
		}
	}
}

func TestControllerTimeout(t *testing.T) {
	sim := mmio.NewSim()
	c := newHardware(t, sim, DefaultConfig())
	before := sim.Loads
	if err := c.Transfer([]byte{0xFF}, make([]byte, 1)); !errors.Is(err, errcode.TransferTimeout) {
		t.Fatalf("Transfer = %v, want TransferTimeout", err)
	}
	if polls := sim.Loads - before; polls != PollLimit {
		t.Errorf("polled %d times, want %d", polls, PollLimit)
	}
}

func TestControllerChipSelect(t *testing.T) {
	for _, activeHigh := range []bool{false, true} {
		sim := mmio.NewSim()
		cfg := DefaultConfig()
		cfg.CSActiveHigh = activeHigh
		c := newHardware(t, sim, cfg)
		if err := c.CSActive(); err != nil {
			t.Fatal(err)
		}
		if got := sim.Peek(spiBase+RegCtrl)&CtrlCS != 0; got != activeHigh {
			t.Errorf("activeHigh=%v: selected CS bit=%v", activeHigh, got)
		}
		if err := c.CSInactive(); err != nil {
			t.Fatal(err)
		}
		if got := sim.Peek(spiBase+RegCtrl)&CtrlCS != 0; got != !activeHigh {
			t.Errorf("activeHigh=%v: deselected CS bit=%v", activeHigh, got)
		}
	}
}

func TestOpenFallsBackToBitBang(t *testing.T) {
	hw := NewController(mmio.NewSim(), spiBase)
	bb := newBitBang(mmio.NewSim())

	b, err := Open(DefaultConfig(), hw, bb)
	if err != nil {
		t.Fatal(err)
	}
	if b != Bus(bb) {
		t.Errorf("Open picked %T, want the bit-bang backend", b)
	}

	hw.Detect = func() bool { return true }
	if b, err = Open(DefaultConfig(), hw, bb); err != nil || b != Bus(hw) {
		t.Errorf("Open = %T, %v; want the hardware backend", b, err)
	}
}

func TestOpenNoBackend(t *testing.T) {
	ctrl := gpio.NewController(mmio.NewSim(), gpioBase, gpio.DefaultLayout)
	ctrl.Detect = func() bool { return false }
	_, err := Open(DefaultConfig(), NewController(mmio.NewSim(), spiBase), NewGPIO(ctrl, testPins))
	if !errors.Is(err, errcode.DeviceNotFound) {
		t.Fatalf("Open = %v, want DeviceNotFound", err)
	}
}

func TestDriverAdapter(t *testing.T) {
	sim := mmio.NewSim()
	loopback(sim)
	g := newBitBang(sim)
	if err := g.Init(DefaultConfig()); err != nil {
		t.Fatal(err)
	}
	d := Driver(g)

	got, err := d.Transfer(0xC3)
	if err != nil || got != 0xC3 {
		t.Errorf("Transfer(0xC3) = %#x, %v", got, err)
	}
	r := make([]byte, 3)
	if err := d.Tx(nil, r); err != nil {
		t.Fatal(err)
	}
	for i, b := range r {
		if b != 0xFF {
			t.Errorf("r[%d] = %#x, want 0xff fill", i, b)
		}
	}
	if err := d.Tx([]byte{1, 2}, nil); err != nil {
		t.Errorf("Tx with nil r: %v", err)
	}
}
