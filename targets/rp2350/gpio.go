//go:build rp2350

package main

import (
	"machine"

	"sdstack/drivers/gpio"
	"sdstack/mmio"
)

// SIO block. GPIO0-31 are port 0, GPIO32-47 port 1 (the HI registers).
const (
	sioBase  = 0xd0000000
	sioCPUID = sioBase + 0x000
)

// sioLayout maps the generic controller onto the SIO registers:
// GPIO_IN 0x04, GPIO_OUT 0x10, GPIO_OE 0x30, each HI copy one word on.
var sioLayout = gpio.Layout{
	Dir:      0x30,
	Out:      0x10,
	In:       0x04,
	PortSize: 0x04,
}

// Card wiring on the breakout: SPI0 pads driven as plain GPIO.
var (
	pinSCLK = machine.GPIO18
	pinMOSI = machine.GPIO19
	pinMISO = machine.GPIO16
	pinCS   = machine.GPIO17
	pinCD   = machine.GPIO22 // card detect, low when inserted
)

func sdPin(p machine.Pin) gpio.Pin {
	return gpio.NewPin(uint8(p)/gpio.PinsPerPort, uint8(p)%gpio.PinsPerPort)
}

// sdPins returns the bus pins in controller terms.
func sdPins() gpio.SPIPins {
	return gpio.NewSPIPins(sdPin(pinSCLK), sdPin(pinMOSI), sdPin(pinMISO), sdPin(pinCS))
}

// configurePads hands the pads to SIO. Direction is left to the controller;
// MISO gets a pull-up so an empty socket reads 0xFF.
func configurePads() {
	pinSCLK.Configure(machine.PinConfig{Mode: machine.PinOutput})
	pinMOSI.Configure(machine.PinConfig{Mode: machine.PinOutput})
	pinCS.Configure(machine.PinConfig{Mode: machine.PinOutput})
	pinCS.High()
	pinMISO.Configure(machine.PinConfig{Mode: machine.PinInputPullup})
	pinCD.Configure(machine.PinConfig{Mode: machine.PinInputPullup})
}

// newGPIOController returns a controller over the SIO block.
func newGPIOController() *gpio.Controller {
	regs := mmio.Volatile{}
	ctrl := gpio.NewController(regs, sioBase, sioLayout)
	ctrl.Detect = func() bool {
		// CPUID reads 0 on core 0 and 1 on core 1.
		return regs.Load32(sioCPUID) <= 1
	}
	return ctrl
}

func cardPresent() bool {
	return !pinCD.Get()
}
