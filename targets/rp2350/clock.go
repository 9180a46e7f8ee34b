//go:build rp2350

package main

import (
	"runtime/volatile"
	"time"
	"unsafe"
)

// RP2350 TIMER0. The raw registers read without latching.
const (
	timerBase     = 0x400B0000
	timerTimeRawH = timerBase + 0x24
	timerTimeRawL = timerBase + 0x28
)

var (
	timerRawH = (*volatile.Register32)(unsafe.Pointer(uintptr(timerTimeRawH)))
	timerRawL = (*volatile.Register32)(unsafe.Pointer(uintptr(timerTimeRawL)))
)

// InitClock waits for the 1MHz timer to tick after TinyGo's clock setup.
func InitClock() {
	_ = timerRawL.Get()
	_ = timerRawL.Get()
	_ = timerRawL.Get()
}

// GetHardwareTime returns the low 32 bits of the microsecond counter.
func GetHardwareTime() uint32 {
	return timerRawL.Get()
}

// GetHardwareUptime reads the full 64-bit microsecond counter.
func GetHardwareUptime() uint64 {
	// High, low, high again: retry if the low word wrapped in between.
	for {
		high1 := timerRawH.Get()
		low := timerRawL.Get()
		high2 := timerRawH.Get()
		if high1 == high2 {
			return (uint64(high1) << 32) | uint64(low)
		}
	}
}

// timerSleep busy-waits on the hardware timer.
func timerSleep(d time.Duration) {
	us := uint32(d / time.Microsecond)
	start := GetHardwareTime()
	for GetHardwareTime()-start < us {
	}
}
