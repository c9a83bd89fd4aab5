package update

import (
	"crypto/sha1"
	"encoding/binary"

	"github.com/pkg/errors"
)

// BankSize is the payload size of a single flash block write, matching
// the device's internal erase/program granularity.
const BankSize = 2048

// flashBlockWireSize is BlockDigest(4) + Offset(4) + Payload(BankSize).
const flashBlockWireSize = 4 + 4 + BankSize

// FlashBlock is one bank's worth of firmware data addressed to an
// absolute flash offset, digested so the device can detect a corrupted
// transfer before it programs the bank. The digest is deliberately the
// legacy weak form the device firmware checks: the first four bytes of
// SHA-1(offset || payload), not a cryptographic integrity guarantee.
type FlashBlock struct {
	BlockDigest uint32
	Offset      uint32
	Payload     [BankSize]byte
}

// NewFlashBlock builds a FlashBlock for offset, zero-padding payload out
// to BankSize if it is shorter (the final, partial bank of a region).
func NewFlashBlock(offset uint32, payload []byte) (FlashBlock, error) {
	if len(payload) > BankSize {
		return FlashBlock{}, errors.Errorf("payload is %d bytes, exceeds bank size %d", len(payload), BankSize)
	}
	fb := FlashBlock{Offset: offset}
	copy(fb.Payload[:], payload)
	fb.BlockDigest = computeDigest(offset, fb.Payload[:])
	return fb, nil
}

// computeDigest reproduces the device's block digest: the first four
// bytes, little-endian, of SHA-1(offset || payload).
func computeDigest(offset uint32, payload []byte) uint32 {
	h := sha1.New()
	var offBuf [4]byte
	binary.LittleEndian.PutUint32(offBuf[:], offset)
	h.Write(offBuf[:])
	h.Write(payload)
	sum := h.Sum(nil)
	return binary.LittleEndian.Uint32(sum[:4])
}

// Marshal serializes the block to the wire format the device expects:
// digest, offset, payload, all little-endian.
func (fb FlashBlock) Marshal() []byte {
	buf := make([]byte, flashBlockWireSize)
	binary.LittleEndian.PutUint32(buf[0:4], fb.BlockDigest)
	binary.LittleEndian.PutUint32(buf[4:8], fb.Offset)
	copy(buf[8:], fb.Payload[:])
	return buf
}

// Verify reports whether BlockDigest matches the payload this block
// actually carries, the same check the device performs before programming.
func (fb FlashBlock) Verify() bool {
	return fb.BlockDigest == computeDigest(fb.Offset, fb.Payload[:])
}
