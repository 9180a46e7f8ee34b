package protocol

// CRC16 calculates the CRC-16/CCITT (XModem) checksum that trails every
// SD data block: polynomial 0x1021, zero initial value, MSB first.
func CRC16(data []byte) uint16 {
	return UpdateCRC16(0, data)
}

// UpdateCRC16 continues a running CRC16 over data.
func UpdateCRC16(crc uint16, data []byte) uint16 {
	for _, b := range data {
		crc = crc>>8 | crc<<8
		crc ^= uint16(b)
		crc ^= (crc & 0xFF) >> 4
		crc ^= crc << 12
		crc ^= (crc & 0xFF) << 5
	}
	return crc
}
