//go:build rp2350

package main

import (
	"machine"
	"time"

	"sdstack/core"
	"sdstack/storage"
)

// InitUSB configures the USB CDC console.
func InitUSB() {
	machine.Serial.Configure(machine.UARTConfig{})
}

func usbPrintln(s string) {
	machine.Serial.Write([]byte(s))
	machine.Serial.Write([]byte("\r\n"))
}

// usbConsole serves single-key commands over USB:
//
//	p  re-probe the card
//	i  capacity
//	d  dump sector 0
//	t  dump the bus trace to the debug UART
func usbConsole(m *storage.Manager, probe func()) {
	var sector [storage.SectorSize]byte
	for {
		if machine.Serial.Buffered() == 0 {
			time.Sleep(time.Millisecond)
			continue
		}
		c, err := machine.Serial.ReadByte()
		if err != nil {
			continue
		}
		switch c {
		case 'p':
			probe()
		case 'i':
			if !m.Attached() {
				usbPrintln("no card")
				continue
			}
			usbPrintln(core.Utoa(m.Capacity()) + " sectors")
		case 'd':
			if err := m.ReadBlocks(0, sector[:]); err != nil {
				usbPrintln("read failed: " + err.Error())
				continue
			}
			dumpSector(sector[:])
		case 't':
			core.DumpTrace()
		}
	}
}

func dumpSector(b []byte) {
	line := make([]byte, 0, 3*16)
	for off := 0; off < len(b); off += 16 {
		line = line[:0]
		for _, v := range b[off : off+16] {
			line = append(line, core.Hex8(v)...)
			line = append(line, ' ')
		}
		usbPrintln(core.Hex32(uint32(off)) + ": " + string(line))
	}
}
