package core

// ClockSource returns a free-running microsecond counter. Wrap-around is
// expected; only differences are meaningful.
type ClockSource func() uint32

var clock ClockSource = getSystemTicks

// SetClock installs the platform counter used to stamp bus events.
// nil restores the manual counter.
func SetClock(src ClockSource) {
	if src == nil {
		src = getSystemTicks
	}
	clock = src
}

// GetTime returns the current time in microseconds.
func GetTime() uint32 {
	return clock()
}

// SetTime sets the manual counter (tests and targets without a timer).
func SetTime(us uint32) {
	setSystemTicks(us)
}

// Elapsed returns the microseconds from start to now, across wrap-around.
func Elapsed(start uint32) uint32 {
	return GetTime() - start
}
