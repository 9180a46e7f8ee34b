package spi

import (
	"tinygo.org/x/drivers"
)

// Driver adapts a Bus to the tinygo drivers.SPI interface so device
// drivers written against tinygo.org/x/drivers can run on either backend.
// Chip select stays with the caller.
func Driver(b Bus) drivers.SPI {
	return &driverBus{bus: b}
}

type driverBus struct {
	bus Bus
	one [2]byte
}

// Tx transfers w while reading into r. A nil w clocks out 0xFF, the SD
// idle pattern; a nil r discards the input.
func (d *driverBus) Tx(w, r []byte) error {
	switch {
	case w == nil && r == nil:
		return nil
	case w == nil:
		w = make([]byte, len(r))
		for i := range w {
			w[i] = 0xFF
		}
	case r == nil:
		r = make([]byte, len(w))
	}
	return d.bus.Transfer(w, r)
}

// Transfer clocks one byte.
func (d *driverBus) Transfer(b byte) (byte, error) {
	d.one[0] = b
	if err := d.bus.Transfer(d.one[:1], d.one[1:2]); err != nil {
		return 0, err
	}
	return d.one[1], nil
}
