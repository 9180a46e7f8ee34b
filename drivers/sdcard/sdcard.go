// Package sdcard drives an SD card in SPI mode over any spi.Bus.
//
// Init runs the SPI-mode power-up (CMD0, CMD8, ACMD41, CMD58), reads the
// CSD and CID registers and switches the bus to the fast clock. Blocks are
// then read and written one at a time with CMD17 and CMD24.
package sdcard

import (
	"time"

	"sdstack/drivers/spi"
)

// CardType classifies the card found during Init.
type CardType uint8

const (
	Unknown CardType = iota
	SDSCv1           // standard capacity, version 1.x
	SDSCv2           // standard capacity, version 2.0+
	SDHC             // high capacity
	SDXC             // extended capacity
)

func (t CardType) String() string {
	switch t {
	case SDSCv1:
		return "SDSCv1"
	case SDSCv2:
		return "SDSCv2"
	case SDHC:
		return "SDHC"
	case SDXC:
		return "SDXC"
	default:
		return "unknown"
	}
}

// BlockAddressed reports whether commands take sector numbers rather than
// byte offsets.
func (t CardType) BlockAddressed() bool { return t == SDHC || t == SDXC }

// State is the driver's view of the card.
type State uint8

const (
	Uninitialized State = iota
	Initializing
	Idle
	Ready
	Active
	Failed
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Initializing:
		return "initializing"
	case Idle:
		return "idle"
	case Ready:
		return "ready"
	case Active:
		return "active"
	default:
		return "error"
	}
}

// Info describes an initialized card.
type Info struct {
	Type            CardType
	CapacitySectors uint32
	BlockSize       uint16
	CID             [16]byte // card identification
	CSD             [16]byte // card specific data
	OCR             uint32   // operating conditions
}

// Polling bounds, in bytes clocked.
const (
	ResponsePolls = 100   // R1 after a command
	TokenPolls    = 1000  // data start token
	BusyPolls     = 10000 // end of write busy
	DataRespPolls = 8     // data-response byte after a written block
	IdlePolls     = 10    // CMD0 attempts
	PowerUpClocks = 10    // bytes of 0xFF with CS high, 80 clocks
)

// Options tune the driver.
type Options struct {
	// InitConfig is the bus configuration during power-up.
	InitConfig spi.Config
	// FastClockRate is applied once the card is ready. 0 keeps the
	// power-up rate.
	FastClockRate uint32
	// VerifyCRC turns on card-side CRC checking (CMD59) and checks the
	// CRC of every block read.
	VerifyCRC bool
	// InitAttempts bounds the ACMD41 loop.
	InitAttempts int
	// Sleep waits between ACMD41 attempts.
	Sleep func(time.Duration)
	// CardDetect reports whether a card is inserted. nil means always.
	CardDetect func() bool
	// WriteProtect reports the write-protect switch. nil means writable.
	WriteProtect func() bool
}

// DefaultOptions are 400 kHz power-up, 25 MHz operation, 1000 ACMD41
// attempts 1 ms apart.
func DefaultOptions() Options {
	return Options{
		InitConfig:    spi.DefaultConfig(),
		FastClockRate: 25_000_000,
		InitAttempts:  1000,
		Sleep:         time.Sleep,
	}
}

func (o *Options) applyDefaults() {
	def := DefaultOptions()
	if o.InitConfig.ClockRate == 0 {
		o.InitConfig.ClockRate = def.InitConfig.ClockRate
	}
	if o.InitAttempts <= 0 {
		o.InitAttempts = def.InitAttempts
	}
	if o.Sleep == nil {
		o.Sleep = def.Sleep
	}
}
