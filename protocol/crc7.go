package protocol

// CRC7Poly is x^7 + x^3 + 1 without the leading term.
const CRC7Poly = 0x09

// CRC7 computes the 7-bit command CRC bit by bit, MSB first. The result is
// in the low seven bits.
func CRC7(data []byte) uint8 {
	var crc uint8
	for _, b := range data {
		for i := 7; i >= 0; i-- {
			in := (b >> uint(i)) & 1
			top := (crc >> 6) & 1
			crc <<= 1
			if in^top != 0 {
				crc ^= CRC7Poly
			}
		}
		crc &= 0x7F
	}
	return crc
}
