//go:build tinygo

package core

import "sync/atomic"

// The manual counter may be advanced from an interrupt handler.
var systemTicks uint32

func getSystemTicks() uint32 {
	return atomic.LoadUint32(&systemTicks)
}

func setSystemTicks(us uint32) {
	atomic.StoreUint32(&systemTicks, us)
}
