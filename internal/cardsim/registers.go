package cardsim

import "sdstack/protocol"

// buildCSD encodes a CSD whose capacity fields describe sectors.
func buildCSD(kind Kind, sectors uint32) [16]byte {
	var csd [16]byte
	csd[1] = 0x0E // TAAC
	csd[3] = 0x32 // TRAN_SPEED, 25 MHz
	csd[4] = 0x5B // CCC high bits
	if kind == SDHC {
		csd[0] = 0x40 // CSD_STRUCTURE 1
		csd[5] = 0x59 // CCC low nibble, READ_BL_LEN 9
		size := sectors/1024 - 1
		csd[7] = byte(size>>16) & 0x3F
		csd[8] = byte(size >> 8)
		csd[9] = byte(size)
	} else {
		// C_SIZE_MULT 7 with 512-byte blocks gives 512 sectors per
		// C_SIZE step.
		const mult = 7
		size := sectors/512 - 1
		csd[5] = 0x59
		csd[6] = 0x80 | byte(size>>10)&0x03
		csd[7] = byte(size >> 2)
		csd[8] = byte(size&0x03) << 6
		csd[9] = mult >> 1
		csd[10] = (mult & 1) << 7
	}
	csd[15] = protocol.CRC7(csd[:15])<<1 | 1
	return csd
}

// buildCID returns a fixed identity: manufacturer 0x03, OEM "SD",
// product "SIM01", revision 1.0.
func buildCID() [16]byte {
	cid := [16]byte{0x03, 'S', 'D', 'S', 'I', 'M', '0', '1', 0x10, 0x12, 0x34, 0x56, 0x78, 0x01, 0x6A}
	cid[15] = protocol.CRC7(cid[:15])<<1 | 1
	return cid
}
