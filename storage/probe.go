package storage

import (
	"sdstack/core"
	"sdstack/drivers/sdcard"
	"sdstack/drivers/spi"
)

// Probe brings up the card behind the first working SPI backend and
// attaches it to m. On any failure the card is treated as absent: m is
// left detached and the error is returned for logging.
func Probe(m *Manager, opts sdcard.Options, backends ...spi.Bus) (*sdcard.Device, error) {
	bus, err := spi.Open(opts.InitConfig, backends...)
	if err != nil {
		core.Fail("storage: no SPI bus: " + err.Error())
		m.Detach()
		return nil, err
	}
	dev := sdcard.New(bus, opts)
	if err := dev.Init(); err != nil {
		core.Fail("storage: SD card absent: " + err.Error())
		m.Detach()
		return nil, err
	}
	m.Attach(dev)
	core.OK("storage: " + core.Utoa(dev.Capacity()) + " sectors attached")
	return dev, nil
}
