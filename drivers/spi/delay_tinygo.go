//go:build tinygo

package spi

import "device"

func spin(loops uint32) {
	for i := uint32(0); i < loops; i++ {
		device.Asm("nop")
	}
}
