//go:build !tinygo

package core

import "sync"

// State stands in for the interrupt mask on the host.
type State uintptr

// On the host several goroutines stand in for interrupt context, so the
// critical section is a mutex. It does not nest.
var critical sync.Mutex

func disableInterrupts() State {
	critical.Lock()
	return 0
}

func restoreInterrupts(State) {
	critical.Unlock()
}
