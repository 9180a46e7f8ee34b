// Package core carries the ambient pieces shared by every driver layer:
// the pluggable debug sink and the bus event ring.
package core

// DebugWriter is a function type for writing debug messages
type DebugWriter func(string)

// Message markers, kept short for UART consoles.
const (
	markOK   = "[o] "
	markInfo = "[i] "
	markFail = "[x] "
)

var (
	// debugPrintln is the global debug print function (can be set by platform code)
	debugPrintln DebugWriter = func(s string) {} // No-op by default

	// debugEnabled gates Debug output. Info/OK/Fail always reach the writer.
	debugEnabled bool = false
)

// SetDebugWriter sets the platform-specific debug output function
// This allows platforms to redirect debug output to UART, klog, etc.
func SetDebugWriter(writer DebugWriter) {
	if writer == nil {
		writer = func(string) {}
	}
	debugPrintln = writer
}

// SetDebugEnabled enables or disables verbose debug output.
// Bit-level tracing slows the bit-bang bus considerably.
func SetDebugEnabled(enabled bool) {
	debugEnabled = enabled
}

// IsDebugEnabled returns whether debug output is enabled
func IsDebugEnabled() bool {
	return debugEnabled
}

// OK reports a successful step, e.g. a driver coming up.
func OK(msg string) { debugPrintln(markOK + msg) }

// Info reports progress.
func Info(msg string) { debugPrintln(markInfo + msg) }

// Fail reports a recoverable failure. Callers decide what happens next.
func Fail(msg string) { debugPrintln(markFail + msg) }

// Debug writes msg only when debug output is enabled.
func Debug(msg string) {
	if debugEnabled {
		debugPrintln(msg)
	}
}
