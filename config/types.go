package config

// PinSet names the four bus lines. Pins are written "gpioN" for port 0 or
// "pP.N" for pin N of port P.
type PinSet struct {
	SCLK string // clock
	MOSI string // data to the card
	MISO string // data from the card
	CS   string // chip select
}

// LayoutConfig overrides the GPIO register offsets.
type LayoutConfig struct {
	Dir      Addr // direction register offset
	Out      Addr // output register offset
	In       Addr // input register offset
	PortSize Addr // stride between ports
}

// BusConfig holds the SPI settings.
type BusConfig struct {
	ClockRate     uint32 // power-up rate (Hz)
	FastClockRate uint32 // rate after init (Hz)
	Mode          uint8  // SPI mode 0-3
	BitOrder      string // "msb" or "lsb"
	CSActiveHigh  bool   // chip select polarity
}

// Board is the complete storage configuration of one board.
type Board struct {
	Name     string
	GPIOBase Addr         // GPIO block base address
	SPIBase  Addr         // SPI peripheral base address, 0 when absent
	Layout   LayoutConfig // GPIO register layout
	Pins     PinSet       // bit-bang bus pins
	SPI      BusConfig

	Retries      int  // storage attempts per request
	VerifyCRC    bool // enable CRC on commands and data
	InitAttempts int  // ACMD41 attempts
}
