// Package config loads board descriptions for the storage stack.
package config

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"sdstack/drivers/gpio"
	"sdstack/drivers/sdcard"
	"sdstack/drivers/spi"
	"sdstack/errcode"
)

// Addr is a register address or offset. In JSON it is either a number or
// a string in any base strconv understands, such as "0x10060000".
type Addr uintptr

// UnmarshalJSON accepts numbers and numeric strings.
func (a *Addr) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		s = str
	}
	v, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return errors.New("bad address " + s)
	}
	*a = Addr(v)
	return nil
}

// MarshalJSON writes hex strings.
func (a Addr) MarshalJSON() ([]byte, error) {
	return json.Marshal("0x" + strconv.FormatUint(uint64(a), 16))
}

// LoadConfig parses a JSON board description and applies defaults.
func LoadConfig(jsonData []byte) (*Board, error) {
	var board Board

	err := json.Unmarshal(jsonData, &board)
	if err != nil {
		return nil, err
	}

	applyDefaults(&board)

	if err := board.Validate(); err != nil {
		return nil, err
	}
	return &board, nil
}

// applyDefaults fills in missing configuration values with sensible defaults
func applyDefaults(board *Board) {
	def := DefaultBoard()

	if board.Name == "" {
		board.Name = def.Name
	}
	if board.Layout == (LayoutConfig{}) {
		board.Layout = def.Layout
	}
	if board.Pins == (PinSet{}) {
		board.Pins = def.Pins
	}

	if board.SPI.ClockRate == 0 {
		board.SPI.ClockRate = def.SPI.ClockRate
	}
	if board.SPI.FastClockRate == 0 {
		board.SPI.FastClockRate = def.SPI.FastClockRate
	}
	if board.SPI.BitOrder == "" {
		board.SPI.BitOrder = def.SPI.BitOrder
	}

	if board.Retries == 0 {
		board.Retries = def.Retries
	}
	if board.InitAttempts == 0 {
		board.InitAttempts = def.InitAttempts
	}
}

// DefaultBoard describes the generic GPIO block used by the simulator.
func DefaultBoard() *Board {
	return &Board{
		Name:     "generic",
		GPIOBase: 0x10060000,
		Layout: LayoutConfig{
			Dir:      0x04,
			Out:      0x08,
			In:       0x0C,
			PortSize: 0x10,
		},
		Pins: PinSet{
			SCLK: "gpio2",
			MOSI: "gpio3",
			MISO: "gpio4",
			CS:   "gpio5",
		},
		SPI: BusConfig{
			ClockRate:     spi.DefaultClockRate,
			FastClockRate: 25_000_000,
			Mode:          0,
			BitOrder:      "msb",
		},
		Retries:      3,
		InitAttempts: 1000,
	}
}

// Validate checks everything the drivers would otherwise reject later.
func (b *Board) Validate() error {
	if err := b.GPIOLayout().Validate(); err != nil {
		return err
	}
	pins, err := b.SPIPins()
	if err != nil {
		return err
	}
	if err := pins.Validate(); err != nil {
		return err
	}
	cfg, err := b.SPIConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if b.SPI.FastClockRate > spi.MaxClockRate {
		return errcode.InvalidClockRate
	}
	return nil
}

// GPIOLayout converts the layout section.
func (b *Board) GPIOLayout() gpio.Layout {
	return gpio.Layout{
		Dir:      uintptr(b.Layout.Dir),
		Out:      uintptr(b.Layout.Out),
		In:       uintptr(b.Layout.In),
		PortSize: uintptr(b.Layout.PortSize),
	}
}

// SPIPins converts the pin names.
func (b *Board) SPIPins() (gpio.SPIPins, error) {
	var out [4]gpio.Pin
	for i, name := range [4]string{b.Pins.SCLK, b.Pins.MOSI, b.Pins.MISO, b.Pins.CS} {
		p, err := ParsePin(name)
		if err != nil {
			return gpio.SPIPins{}, err
		}
		out[i] = p
	}
	return gpio.NewSPIPins(out[0], out[1], out[2], out[3]), nil
}

// SPIConfig converts the bus section at the power-up rate.
func (b *Board) SPIConfig() (spi.Config, error) {
	cfg := spi.Config{
		ClockRate:    b.SPI.ClockRate,
		Mode:         spi.Mode(b.SPI.Mode),
		CSActiveHigh: b.SPI.CSActiveHigh,
	}
	switch strings.ToLower(b.SPI.BitOrder) {
	case "", "msb":
		cfg.BitOrder = spi.MSBFirst
	case "lsb":
		cfg.BitOrder = spi.LSBFirst
	default:
		return cfg, errcode.New(errcode.BusError, "config", "bit order "+b.SPI.BitOrder)
	}
	return cfg, nil
}

// CardOptions converts the board into SD driver options.
func (b *Board) CardOptions() (sdcard.Options, error) {
	cfg, err := b.SPIConfig()
	if err != nil {
		return sdcard.Options{}, err
	}
	opts := sdcard.DefaultOptions()
	opts.InitConfig = cfg
	opts.FastClockRate = b.SPI.FastClockRate
	opts.VerifyCRC = b.VerifyCRC
	if b.InitAttempts > 0 {
		opts.InitAttempts = b.InitAttempts
	}
	return opts, nil
}

// ParsePin reads "gpioN" (port 0) or "pP.N".
func ParsePin(name string) (gpio.Pin, error) {
	s := strings.ToLower(strings.TrimSpace(name))
	bad := errcode.New(errcode.InvalidPin, "config", "pin "+strconv.Quote(name))

	var port, pin uint64
	var err error
	switch {
	case strings.HasPrefix(s, "gpio"):
		pin, err = strconv.ParseUint(s[4:], 10, 8)
	case strings.HasPrefix(s, "p"):
		ps, ns, ok := strings.Cut(s[1:], ".")
		if !ok {
			return gpio.Pin{}, bad
		}
		if port, err = strconv.ParseUint(ps, 10, 8); err == nil {
			pin, err = strconv.ParseUint(ns, 10, 8)
		}
	default:
		return gpio.Pin{}, bad
	}
	if err != nil || pin >= gpio.PinsPerPort {
		return gpio.Pin{}, bad
	}
	return gpio.NewPin(uint8(port), uint8(pin)), nil
}
