package transport

import "encoding/binary"

// TransportStatusMagic marks a V1 status reply. A legacy device never
// writes this value into the first four bytes of its status reply, so its
// presence is how the driver tells the two wire formats apart without a
// separate negotiation step.
const TransportStatusMagic uint32 = 0x3154534e // "NST1", little-endian on the wire

// TransportStatusVersion is the only V1 status version this driver speaks.
const TransportStatusVersion uint8 = 1

const (
	// StatusSizeLegacy is sizeof{status u32, reply_len u16}.
	StatusSizeLegacy = 6
	// StatusSizeV1 is sizeof{magic u32, version u8, status u32,
	// reply_len u16, reply_crc u16, crc u16}, the larger of the two
	// variants and what ReadStatus always asks for.
	StatusSizeV1 = 15
)

// Byte offsets within the V1 status struct.
const (
	v1OffMagic    = 0
	v1OffVersion  = 4
	v1OffStatus   = 5
	v1OffReplyLen = 9
	v1OffReplyCRC = 11
	v1OffCRC      = 13
)

// Status is the decoded form of a device status reply, with the wire
// framing (magic, version, CRC) already stripped off.
type Status struct {
	// Code is the raw device status register: AppStatusCode() and
	// AppStatusDoneBit still apply to it.
	Code uint32
	// ReplyLen is how many reply bytes the device has ready to send.
	ReplyLen uint16
	// ReplyCRC is the CRC-16 of those bytes, valid only under V1; the
	// receive-reply phase checks received bytes against it.
	ReplyCRC uint16
	// Legacy is true when this status arrived in the pre-V1 6-byte
	// format (no magic, no version, no CRCs).
	Legacy bool
}

// decodeStatus parses a status reply already read off the wire. buf must
// be at least StatusSizeLegacy bytes; a V1 reply additionally needs the
// full StatusSizeV1.
//
// It returns ErrCRCMismatch (not ErrProtocol) when the V1 CRC fails to
// verify, so callers can distinguish a retryable mismatch from an
// unrecognized version.
func decodeStatus(buf []byte) (Status, error) {
	if len(buf) < StatusSizeLegacy {
		return Status{}, ErrProtocol
	}
	magic := binary.LittleEndian.Uint32(buf[0:4])
	if magic != TransportStatusMagic {
		return Status{
			Code:     binary.LittleEndian.Uint32(buf[0:4]),
			ReplyLen: binary.LittleEndian.Uint16(buf[4:6]),
			Legacy:   true,
		}, nil
	}
	if len(buf) < StatusSizeV1 {
		return Status{}, ErrProtocol
	}
	if buf[v1OffVersion] != TransportStatusVersion {
		return Status{}, ErrProtocol
	}
	sentCRC := binary.LittleEndian.Uint16(buf[v1OffCRC : v1OffCRC+2])

	verify := make([]byte, StatusSizeV1)
	copy(verify, buf[:StatusSizeV1])
	binary.LittleEndian.PutUint16(verify[v1OffCRC:v1OffCRC+2], 0)
	if CRC16(verify) != sentCRC {
		return Status{}, ErrCRCMismatch
	}

	return Status{
		Code:     binary.LittleEndian.Uint32(buf[v1OffStatus : v1OffStatus+4]),
		ReplyLen: binary.LittleEndian.Uint16(buf[v1OffReplyLen : v1OffReplyLen+2]),
		ReplyCRC: binary.LittleEndian.Uint16(buf[v1OffReplyCRC : v1OffReplyCRC+2]),
		Legacy:   false,
	}, nil
}

// ReadStatus reads and decodes one status reply, re-reading up to CRCRetry
// times if a V1 reply's CRC fails to verify. A legacy reply, having no
// CRC, always succeeds on the first read that clears the EAGAIN retry
// budget.
func ReadStatus(d Datagram, cmd Command) (Status, error) {
	buf := make([]byte, StatusSizeV1)
	for attempt := 0; attempt < CRCRetry; attempt++ {
		n, err := retryRead(d, cmd, buf)
		if err != nil {
			return Status{}, err
		}
		status, err := decodeStatus(buf[:n])
		if err == nil {
			return status, nil
		}
		if err != ErrCRCMismatch {
			return Status{}, err
		}
	}
	return Status{}, ErrProtocol
}
