package main

import (
	"fmt"
	"strings"

	"sdstack/config"
	"sdstack/drivers/gpio"
	"sdstack/drivers/sdcard"
	"sdstack/drivers/spi"
	"sdstack/internal/cardsim"
	"sdstack/mmio"
	"sdstack/storage"
)

// windowSize is the register span mapped for each block.
const windowSize = 0x1000

type stackOptions struct {
	devmem  bool
	kind    string
	sectors uint32
}

// stack is everything between the shell and the pins.
type stack struct {
	board    *config.Board
	opts     sdcard.Options
	backends []spi.Bus
	manager  *storage.Manager
	volume   *storage.Volume
	device   *sdcard.Device
	card     *cardsim.Card // nil on real hardware
	closers  []func() error
}

func parseKind(s string) (cardsim.Kind, error) {
	switch strings.ToLower(s) {
	case "sdhc":
		return cardsim.SDHC, nil
	case "sdsc", "sdsc2":
		return cardsim.SDSCv2, nil
	case "sdsc1":
		return cardsim.SDSCv1, nil
	default:
		return 0, fmt.Errorf("unknown card kind %q", s)
	}
}

func newStack(board *config.Board, o stackOptions) (*stack, error) {
	opts, err := board.CardOptions()
	if err != nil {
		return nil, err
	}
	pins, err := board.SPIPins()
	if err != nil {
		return nil, err
	}
	st := &stack{board: board, opts: opts, manager: storage.NewManager(board.Retries)}
	st.volume = storage.NewVolume(st.manager)

	var gpioRegs, spiRegs mmio.Bus
	if o.devmem {
		gm, err := mmio.OpenDevMem(uintptr(board.GPIOBase), windowSize)
		if err != nil {
			return nil, fmt.Errorf("mapping GPIO block at %#x: %w", uintptr(board.GPIOBase), err)
		}
		st.closers = append(st.closers, gm.Close)
		gpioRegs = gm
		if board.SPIBase != 0 {
			sm, err := mmio.OpenDevMem(uintptr(board.SPIBase), windowSize)
			if err != nil {
				st.Close()
				return nil, fmt.Errorf("mapping SPI block at %#x: %w", uintptr(board.SPIBase), err)
			}
			st.closers = append(st.closers, sm.Close)
			spiRegs = sm
		}
	} else {
		kind, err := parseKind(o.kind)
		if err != nil {
			return nil, err
		}
		sim := mmio.NewSim()
		st.card = cardsim.New(kind, o.sectors)
		st.card.Attach(sim, uintptr(board.GPIOBase), board.GPIOLayout(), pins)
		gpioRegs = sim
		if board.SPIBase != 0 {
			spiRegs = sim
		}
	}

	if spiRegs != nil {
		st.backends = append(st.backends, spi.NewController(spiRegs, uintptr(board.SPIBase)))
	}
	ctrl := gpio.NewController(gpioRegs, uintptr(board.GPIOBase), board.GPIOLayout())
	bb := spi.NewGPIO(ctrl, pins)
	if st.card != nil {
		// The simulator has no timing to honour.
		bb.SetDelay(func(uint32) {})
	}
	st.backends = append(st.backends, bb)
	return st, nil
}

// Probe (re)initializes the card and attaches it.
func (st *stack) Probe() error {
	dev, err := storage.Probe(st.manager, st.opts, st.backends...)
	st.device = dev
	return err
}

// Describe names the register backend.
func (st *stack) Describe() string {
	if st.card != nil {
		return fmt.Sprintf("simulated %v card, %d sectors", st.card.Kind(), st.card.Sectors())
	}
	return fmt.Sprintf("GPIO at %#x via /dev/mem", uintptr(st.board.GPIOBase))
}

func (st *stack) Close() error {
	var first error
	for _, c := range st.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	st.closers = nil
	return first
}
