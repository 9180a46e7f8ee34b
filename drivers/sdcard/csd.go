package sdcard

// CapacityFromCSD decodes the card size in 512-byte sectors. CSD version 1
// describes size as C_SIZE, C_SIZE_MULT and READ_BL_LEN; version 2 counts
// 512 KiB units. Other versions yield 0.
func CapacityFromCSD(csd [16]byte) uint32 {
	switch csd[0] >> 6 {
	case 0:
		size := uint64(csd[6]&0x03)<<10 | uint64(csd[7])<<2 | uint64(csd[8]&0xC0)>>6
		mult := uint64(csd[9]&0x03)<<1 | uint64(csd[10]&0x80)>>7
		blockLen := uint64(1) << (csd[5] & 0x0F)
		return clampSectors((size + 1) << (mult + 2) * blockLen / 512)
	case 1:
		size := uint64(csd[7]&0x3F)<<16 | uint64(csd[8])<<8 | uint64(csd[9])
		return clampSectors((size + 1) * 1024)
	default:
		return 0
	}
}

func clampSectors(n uint64) uint32 {
	if n > 0xFFFF_FFFF {
		return 0xFFFF_FFFF
	}
	return uint32(n)
}

// CID fields.
type CID struct {
	ManufacturerID uint8
	OEMID          string
	Product        string
	Revision       uint8 // BCD major.minor
	Serial         uint32
	Year           uint16
	Month          uint8
}

// ParseCID decodes the card identification register.
func ParseCID(cid [16]byte) CID {
	return CID{
		ManufacturerID: cid[0],
		OEMID:          string(cid[1:3]),
		Product:        string(cid[3:8]),
		Revision:       cid[8],
		Serial:         uint32(cid[9])<<24 | uint32(cid[10])<<16 | uint32(cid[11])<<8 | uint32(cid[12]),
		Year:           2000 + (uint16(cid[13]&0x0F)<<4 | uint16(cid[14]>>4)),
		Month:          cid[14] & 0x0F,
	}
}
