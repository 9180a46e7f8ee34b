// Package spi provides the SPI byte-transfer contract and its two backends:
// a memory-mapped SPI peripheral and a GPIO bit-bang engine.
//
// Both backends implement Bus. Callers pick one at runtime with Open, which
// keeps the first backend whose hardware probe succeeds.
package spi

import (
	"sdstack/core"
	"sdstack/errcode"
)

// Mode represents SPI clock polarity and phase (0-3)
// Mode 0: CPOL=0, CPHA=0 (clock idle low, sample on rising edge)
// Mode 1: CPOL=0, CPHA=1 (clock idle low, sample on falling edge)
// Mode 2: CPOL=1, CPHA=0 (clock idle high, sample on falling edge)
// Mode 3: CPOL=1, CPHA=1 (clock idle high, sample on rising edge)
type Mode uint8

const (
	Mode0 Mode = iota
	Mode1
	Mode2
	Mode3
)

// CPOL reports whether the clock idles high.
func (m Mode) CPOL() bool { return m&2 != 0 }

// CPHA reports whether data is sampled on the second clock transition.
func (m Mode) CPHA() bool { return m&1 != 0 }

// BitOrder selects which end of a byte goes on the wire first.
type BitOrder uint8

const (
	MSBFirst BitOrder = iota
	LSBFirst
)

const (
	DefaultClockRate = 400_000    // SD power-up rate
	MaxClockRate     = 50_000_000 // above this no backend keeps up
)

// Config is the per-session bus configuration.
type Config struct {
	ClockRate    uint32 // Hz, 0 selects the default half-clock delay
	Mode         Mode
	BitOrder     BitOrder
	CSActiveHigh bool // chip select polarity; false is active low
}

// DefaultConfig is the safe SD-card power-up configuration: 400 kHz,
// Mode 0, MSB first, active-low chip select.
func DefaultConfig() Config {
	return Config{
		ClockRate: DefaultClockRate,
		Mode:      Mode0,
		BitOrder:  MSBFirst,
	}
}

// WithClockRate returns a copy of c running at hz.
func (c Config) WithClockRate(hz uint32) Config {
	c.ClockRate = hz
	return c
}

// Validate checks mode, bit order and clock rate.
func (c Config) Validate() error {
	if c.Mode > Mode3 {
		return errcode.New(errcode.BusError, "spi.config", "mode out of range")
	}
	if c.BitOrder > LSBFirst {
		return errcode.New(errcode.BusError, "spi.config", "bad bit order")
	}
	if c.ClockRate > MaxClockRate {
		return errcode.InvalidClockRate
	}
	return nil
}

// Bus is the capability every SPI backend offers. A Bus is owned by one
// caller at a time; it performs no locking of its own.
type Bus interface {
	// Init stores cfg, probes the hardware and prepares the lines.
	Init(cfg Config) error
	// Transfer clocks len(tx) bytes out while filling rx.
	// len(tx) must equal len(rx).
	Transfer(tx, rx []byte) error
	// CSActive selects the device.
	CSActive() error
	// CSInactive deselects the device.
	CSInactive() error
}

// DefaultHalfClockLoops is the delay used when no clock rate is set.
const DefaultHalfClockLoops = 1000

// HalfClockLoops converts a clock rate into busy-wait iterations per half
// period, assuming roughly one iteration per nanosecond. The figure is not
// calibrated against the real CPU clock.
func HalfClockLoops(rate uint32) uint32 {
	if rate == 0 {
		return DefaultHalfClockLoops
	}
	return uint32(1_000_000_000 / (2 * uint64(rate)))
}

// csLevel maps the logical select intent onto a line level.
func csLevel(active, activeHigh bool) bool {
	return active == activeHigh
}

// Open initializes the candidates in order and returns the first one that
// comes up. Failures are logged and the next candidate is tried.
func Open(cfg Config, candidates ...Bus) (Bus, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	for i, b := range candidates {
		if b == nil {
			continue
		}
		err := b.Init(cfg)
		if err == nil {
			core.OK("SPI backend " + core.Itoa(i) + " selected")
			return b, nil
		}
		core.Info("SPI backend " + core.Itoa(i) + " unavailable: " + err.Error())
	}
	core.Fail("no SPI backend available")
	return nil, errcode.DeviceNotFound
}
