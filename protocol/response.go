package protocol

// R1 status bits. Bit 7 is always zero in a valid response.
const (
	R1Idle          = 1 << 0
	R1EraseReset    = 1 << 1
	R1IllegalCmd    = 1 << 2
	R1CRCError      = 1 << 3
	R1EraseSeqError = 1 << 4
	R1AddressError  = 1 << 5
	R1ParamError    = 1 << 6
	R1Invalid       = 1 << 7

	R1ErrorMask = 0x7E
)

var r1Flags = [...]struct {
	bit  uint8
	name string
}{
	{R1EraseReset, "erase reset"},
	{R1IllegalCmd, "illegal command"},
	{R1CRCError, "crc error"},
	{R1EraseSeqError, "erase sequence error"},
	{R1AddressError, "address error"},
	{R1ParamError, "parameter error"},
}

// Response is an R1 status byte, optionally followed by four data bytes
// (R3 and R7 responses to CMD58 and CMD8).
type Response struct {
	R1     uint8
	Data   [4]byte
	Length int // 1 or 5
}

// NewResponse wraps a bare R1.
func NewResponse(r1 uint8) Response {
	return Response{R1: r1, Length: 1}
}

// ResponseWithData wraps an R1 and its trailing payload.
func ResponseWithData(r1 uint8, data [4]byte) Response {
	return Response{R1: r1, Data: data, Length: 5}
}

// Valid reports whether bit 7 is clear.
func (r Response) Valid() bool { return r.R1&R1Invalid == 0 }

// Idle reports whether the card is in the idle state.
func (r Response) Idle() bool { return r.R1&R1Idle != 0 }

// HasError reports whether any of bits 1-6 is set.
func (r Response) HasError() bool { return r.R1&R1ErrorMask != 0 }

// Errors names every error flag set in R1, lowest bit first.
func (r Response) Errors() []string {
	if !r.HasError() {
		return nil
	}
	var out []string
	for _, f := range r1Flags {
		if r.R1&f.bit != 0 {
			out = append(out, f.name)
		}
	}
	return out
}

// Payload returns the trailing data as a big-endian word, 0 for a bare R1.
func (r Response) Payload() uint32 {
	if r.Length < 5 {
		return 0
	}
	return uint32(r.Data[0])<<24 | uint32(r.Data[1])<<16 | uint32(r.Data[2])<<8 | uint32(r.Data[3])
}
