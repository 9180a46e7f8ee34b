//go:build rp2350

package main

import (
	"machine"

	"sdstack/core"
)

var (
	debugUART    *machine.UART
	debugEnabled bool
)

// InitDebugUART initializes UART1 on GPIO36 (TX) and GPIO37 (RX) and routes
// the core debug writer to it. Baud rate: 115200
func InitDebugUART() {
	debugUART = machine.UART1

	err := debugUART.Configure(machine.UARTConfig{
		BaudRate: 115200,
		TX:       machine.GPIO36, // UART1 TX
		RX:       machine.GPIO37, // UART1 RX
	})
	if err != nil {
		debugEnabled = false
		return
	}
	debugEnabled = true

	core.SetDebugWriter(DebugPrintln)
	core.SetDebugEnabled(true)

	DebugPrintln("=== RP2350 SD stack ===")
	DebugPrintln("Debug UART: 115200, TX=GPIO36, RX=GPIO37")
}

// DebugPrint writes a string to the debug UART (no newline)
func DebugPrint(s string) {
	if !debugEnabled || debugUART == nil {
		return
	}
	debugUART.Write([]byte(s))
}

// DebugPrintln writes a string to the debug UART with newline.
// Lines are prefixed with the uptime in milliseconds.
func DebugPrintln(s string) {
	if !debugEnabled || debugUART == nil {
		return
	}
	debugUART.Write([]byte("[" + core.Utoa(uint32(GetHardwareUptime()/1000)) + "] "))
	debugUART.Write([]byte(s))
	debugUART.Write([]byte("\r\n"))
}
