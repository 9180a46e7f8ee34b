package core

// itoa converts an integer to a string without using fmt package
// This is a lightweight alternative for embedded systems
func itoa(n int) string {
	if n == 0 {
		return "0"
	}

	negative := n < 0
	if negative {
		n = -n
	}

	var buf [20]byte
	pos := len(buf)
	for n > 0 {
		pos--
		buf[pos] = byte('0' + n%10)
		n /= 10
	}
	if negative {
		pos--
		buf[pos] = '-'
	}
	return string(buf[pos:])
}

// Itoa is the exported form of itoa for driver log lines.
func Itoa(n int) string { return itoa(n) }

// Utoa converts an unsigned integer to a string
func Utoa(n uint32) string {
	if n == 0 {
		return "0"
	}

	var buf [10]byte
	pos := len(buf)
	for n > 0 {
		pos--
		buf[pos] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[pos:])
}

const hexDigits = "0123456789abcdef"

// hex formats the low digits nibbles of v with a 0x prefix.
func hex(v uint64, digits int) string {
	buf := make([]byte, 2+digits)
	buf[0], buf[1] = '0', 'x'
	for i := digits - 1; i >= 0; i-- {
		buf[2+i] = hexDigits[v&0xF]
		v >>= 4
	}
	return string(buf)
}

// Hex8 formats a byte as 0xNN.
func Hex8(v uint8) string { return hex(uint64(v), 2) }

// Hex32 formats a word as 0xNNNNNNNN.
func Hex32(v uint32) string { return hex(uint64(v), 8) }

// HexAddr formats a register address.
func HexAddr(v uintptr) string { return hex(uint64(v), 2*int(ptrSize)) }

const ptrSize = 4 << (^uintptr(0) >> 63)
