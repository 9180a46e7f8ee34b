// Package serial mirrors the storage stack's log output onto a serial
// console, so a board's UART and the host tool show the same lines.
package serial

import (
	"io"
	"sync"

	"sdstack/core"
)

// Port represents a serial port interface
// This abstraction allows for different implementations:
// - Native serial (using github.com/tarm/serial)
// - Mock serial (for testing)
type Port interface {
	io.ReadWriteCloser

	// Flush flushes any buffered data
	Flush() error
}

// Config holds serial port configuration
type Config struct {
	// Device path (e.g., "/dev/ttyUSB0", "COM3")
	Device string

	// Baud rate of the console UART
	Baud int

	// Read timeout in milliseconds (0 = blocking)
	ReadTimeout int
}

// DefaultConfig returns the console settings used by the firmware UART.
func DefaultConfig(device string) *Config {
	return &Config{
		Device:      device,
		Baud:        115200,
		ReadTimeout: 100,
	}
}

// Mirror turns a port into a log sink. Each message becomes one CRLF
// terminated line. Write errors are dropped: logging must not fail the
// caller.
type Mirror struct {
	mu   sync.Mutex
	port Port
	next core.DebugWriter
}

// NewMirror writes every message to port and then hands it to next, which
// may be nil.
func NewMirror(port Port, next core.DebugWriter) *Mirror {
	return &Mirror{port: port, next: next}
}

// Writer returns the sink to install with core.SetDebugWriter.
func (m *Mirror) Writer() core.DebugWriter {
	return m.write
}

func (m *Mirror) write(s string) {
	m.mu.Lock()
	if m.port != nil {
		m.port.Write([]byte(s + "\r\n"))
	}
	m.mu.Unlock()
	if m.next != nil {
		m.next(s)
	}
}

// Close flushes and closes the port. Later messages only reach next.
func (m *Mirror) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.port == nil {
		return nil
	}
	m.port.Flush()
	err := m.port.Close()
	m.port = nil
	return err
}
