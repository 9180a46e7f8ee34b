package protocol

// BlockSize is the data block length used for every read and write.
const BlockSize = 512

// Command indices (SPI mode subset).
const (
	CMD0  = 0  // GO_IDLE_STATE
	CMD1  = 1  // SEND_OP_COND (MMC)
	CMD8  = 8  // SEND_IF_COND
	CMD9  = 9  // SEND_CSD
	CMD10 = 10 // SEND_CID
	CMD12 = 12 // STOP_TRANSMISSION
	CMD13 = 13 // SEND_STATUS
	CMD16 = 16 // SET_BLOCKLEN
	CMD17 = 17 // READ_SINGLE_BLOCK
	CMD18 = 18 // READ_MULTIPLE_BLOCK
	CMD24 = 24 // WRITE_BLOCK
	CMD25 = 25 // WRITE_MULTIPLE_BLOCK
	CMD55 = 55 // APP_CMD
	CMD58 = 58 // READ_OCR
	CMD59 = 59 // CRC_ON_OFF
)

// Application commands, sent after CMD55.
const (
	ACMD13 = 13 // SD_STATUS
	ACMD23 = 23 // SET_WR_BLK_ERASE_COUNT
	ACMD41 = 41 // SD_SEND_OP_COND
	ACMD51 = 51 // SEND_SCR
)

// Command arguments.
const (
	IfCondPattern = 0x000001AA // CMD8: 2.7-3.6 V, check pattern 0xAA
	ArgHCS        = 1 << 30    // ACMD41: host supports high capacity
	OCRCCS        = 1 << 30    // CMD58: card capacity status
	OCRPowerUp    = 1 << 31    // CMD58: power-up complete
)

// Data tokens.
const (
	TokenStartBlock      = 0xFE // single-block read/write, multi-block read
	TokenStartMultiWrite = 0xFC // each block of a multi-block write
	TokenStopTran        = 0xFD // ends a multi-block write
)

// Idle is the bus level between frames. Sending it clocks the card without
// issuing a command.
const Idle = 0xFF

// Data-response codes, the low five bits of the byte that answers a
// written block.
const (
	DataAccepted   = 0x05
	DataCRCError   = 0x0B
	DataWriteError = 0x0D

	dataResponseMask = 0x1F
)

// DataStatus is a decoded data-response byte.
type DataStatus uint8

const (
	DataUnknown DataStatus = iota
	Accepted
	CRCRejected
	WriteRejected
)

func (s DataStatus) String() string {
	switch s {
	case Accepted:
		return "accepted"
	case CRCRejected:
		return "crc error"
	case WriteRejected:
		return "write error"
	default:
		return "unknown"
	}
}

// DataResponse decodes the byte a card returns after a data block.
func DataResponse(b byte) DataStatus {
	switch b & dataResponseMask {
	case DataAccepted:
		return Accepted
	case DataCRCError:
		return CRCRejected
	case DataWriteError:
		return WriteRejected
	default:
		return DataUnknown
	}
}

// IsDataErrorToken reports whether b is a data error token, sent instead of
// the start token when a read fails. Its top three bits are clear and at
// least one error bit is set.
func IsDataErrorToken(b byte) bool {
	return b&0xE0 == 0 && b&0x1F != 0
}

// Data error token bits.
const (
	ErrTokenError      = 1 << 0
	ErrTokenCC         = 1 << 1
	ErrTokenECCFailed  = 1 << 2
	ErrTokenOutOfRange = 1 << 3
	ErrTokenCardLocked = 1 << 4
)
