//go:build rp2350

package main

import (
	"machine"
	"time"

	"sdstack/core"
	"sdstack/drivers/sdcard"
	"sdstack/drivers/spi"
	"sdstack/storage"
)

var (
	manager *storage.Manager
	bus     *spi.GPIO
	opts    sdcard.Options
)

// ledBlink blinks the LED a specific number of times for diagnostics
func ledBlink(count int) {
	led := machine.LED
	led.Configure(machine.PinConfig{Mode: machine.PinOutput})
	for i := 0; i < count; i++ {
		led.High()
		time.Sleep(150 * time.Millisecond)
		led.Low()
		time.Sleep(150 * time.Millisecond)
	}
	time.Sleep(500 * time.Millisecond)
}

func main() {
	InitUSB()
	InitClock()
	core.SetClock(GetHardwareTime)
	InitDebugUART()

	configurePads()
	bus = spi.NewGPIO(newGPIOController(), sdPins())

	opts = sdcard.DefaultOptions()
	opts.Sleep = timerSleep
	opts.CardDetect = cardPresent
	manager = storage.NewManager(storage.DefaultRetries)

	// DIAGNOSTIC: 1 blink = bus wired, probing card
	ledBlink(1)
	probe()

	usbConsole(manager, probe)
}

// probe (re)initializes the card and blinks 2 for a card, 3 for none.
func probe() {
	if _, err := storage.Probe(manager, opts, bus); err != nil {
		ledBlink(3)
		return
	}
	ledBlink(2)
}
