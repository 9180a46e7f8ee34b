// Package errcode holds the error taxonomy shared by the storage stack.
package errcode

// Code is a stable error identifier.
// It is a string newtype, comparable, allocation-free, and implements error.
type Code string

func (c Code) Error() string { return string(c) }

const OK Code = "ok"

// SPI and GPIO layer.
const (
	NotInitialized   Code = "not_initialized"
	TransferTimeout  Code = "transfer_timeout"
	BusError         Code = "bus_error"
	InvalidPin       Code = "invalid_pin"
	InvalidClockRate Code = "invalid_clock_rate"
	DeviceNotFound   Code = "device_not_found"
	TransferFailed   Code = "transfer_failed"
	BufferTooSmall   Code = "buffer_too_small"
)

// SD card layer.
const (
	InitializationFailed Code = "initialization_failed"
	CommandTimeout       Code = "command_timeout"
	CommandError         Code = "command_error"
	InvalidResponse      Code = "invalid_response"
	CRCError             Code = "crc_error"
	ReadError            Code = "read_error"
	WriteError           Code = "write_error"
	CardNotSupported     Code = "card_not_supported"
	SPIError             Code = "spi_error"
	InvalidSector        Code = "invalid_sector"
	WriteProtected       Code = "write_protected"
	CardNotPresent       Code = "card_not_present"
)

// Storage layer.
const Unavailable Code = "storage_unavailable"

const Error Code = "error" // generic fallback

// E keeps an operation name and a cause next to a Code.
type E struct {
	C   Code
	Op  string
	Msg string
	Err error
}

func (e *E) Error() string {
	s := string(e.C)
	if e.Op != "" {
		s = e.Op + ": " + s
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *E) Unwrap() error { return e.Err }
func (e *E) Code() Code    { return e.C }

// Is matches a bare Code against the wrapper's own code, so
// errors.Is(err, ReadError) holds for &E{C: ReadError}.
func (e *E) Is(target error) bool {
	c, ok := target.(Code)
	return ok && c == e.C
}

// Wrap attaches op and cause to c. A nil cause still yields an error.
func Wrap(c Code, op string, err error) error {
	return &E{C: c, Op: op, Err: err}
}

// New returns c with an operation name and message.
func New(c Code, op, msg string) error {
	return &E{C: c, Op: op, Msg: msg}
}

// Of extracts a Code from an error, defaulting to Error.
func Of(err error) Code {
	if err == nil {
		return OK
	}
	if c, ok := err.(Code); ok {
		return c
	}
	type coder interface{ Code() Code }
	if x, ok := err.(coder); ok {
		return x.Code()
	}
	return Error
}
