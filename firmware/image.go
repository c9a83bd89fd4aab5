package firmware

import (
	"encoding/binary"
	"os"

	"github.com/pkg/errors"
)

// Chip flash geometry. The file this package loads is a byte-exact image
// of the whole flash part: two equal-sized slots (A and B), each holding
// a small read-only region followed by a larger read-write region that
// starts on a FlashRWAlignment boundary.
const (
	ChipFlashSize    = 512 * 1024
	HalfSize         = ChipFlashSize / 2
	FlashRWAlignment = 0x4000

	ROAOffset = 0
	RWAOffset = FlashRWAlignment
	ROBOffset = HalfSize
	RWBOffset = HalfSize + FlashRWAlignment
)

// SignedHeaderMagic marks the start of a SignedHeader. Images without it
// at the expected slot offset are rejected rather than silently treated
// as unsigned.
const SignedHeaderMagic uint32 = 0x53494748 // "SIGH"

// signedHeaderSize is the on-disk size of SignedHeader: Magic + ImageSize.
const signedHeaderSize = 8

// SignedHeader is the fixed-size header every flashable region begins
// with. ImageSize is the number of bytes of the region, counted from its
// start with this header included, that actually need writing rather
// than flashing the full padded slot.
type SignedHeader struct {
	Magic     uint32
	ImageSize uint32
}

// ParseHeader reads a SignedHeader from the start of data.
func ParseHeader(data []byte) (SignedHeader, error) {
	if len(data) < signedHeaderSize {
		return SignedHeader{}, errors.Errorf("header needs %d bytes, got %d", signedHeaderSize, len(data))
	}
	h := SignedHeader{
		Magic:     binary.LittleEndian.Uint32(data[0:4]),
		ImageSize: binary.LittleEndian.Uint32(data[4:8]),
	}
	if h.Magic != SignedHeaderMagic {
		return SignedHeader{}, errors.Errorf("bad signed header magic 0x%08x", h.Magic)
	}
	return h, nil
}

// Image is a byte-exact firmware image covering the whole chip flash
// layout: RO_A, RW_A, RO_B, RW_B back to back.
type Image struct {
	data []byte
}

// LoadImage reads path and validates it is exactly ChipFlashSize bytes.
func LoadImage(path string) (*Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read firmware image")
	}
	return NewImage(data)
}

// NewImage wraps data as an Image, rejecting anything not exactly
// ChipFlashSize bytes long: a short or padded file cannot be mapped onto
// fixed slot offsets.
func NewImage(data []byte) (*Image, error) {
	if len(data) != ChipFlashSize {
		return nil, errors.Errorf("firmware image is %d bytes, want exactly %d", len(data), ChipFlashSize)
	}
	return &Image{data: data}, nil
}

// Bytes returns the whole image.
func (img *Image) Bytes() []byte { return img.data }

// ROA returns the slot A read-only region.
func (img *Image) ROA() []byte { return img.data[ROAOffset:RWAOffset] }

// RWA returns the slot A read-write region.
func (img *Image) RWA() []byte { return img.data[RWAOffset:ROBOffset] }

// ROB returns the slot B read-only region.
func (img *Image) ROB() []byte { return img.data[ROBOffset:RWBOffset] }

// RWB returns the slot B read-write region, running to the end of the image.
func (img *Image) RWB() []byte { return img.data[RWBOffset:] }

// Region returns the byte range for one of the four named regions,
// keyed the way the orchestrator names its actions.
func (img *Image) Region(name string) ([]byte, error) {
	switch name {
	case "ro_a":
		return img.ROA(), nil
	case "rw_a":
		return img.RWA(), nil
	case "ro_b":
		return img.ROB(), nil
	case "rw_b":
		return img.RWB(), nil
	default:
		return nil, errors.Errorf("unknown firmware region %q", name)
	}
}

// Header parses the SignedHeader at the front of a region.
func (img *Image) Header(name string) (SignedHeader, error) {
	region, err := img.Region(name)
	if err != nil {
		return SignedHeader{}, err
	}
	return ParseHeader(region)
}

// Slot returns the bytes actually worth sending to the device for one
// region: ImageSize bytes measured from the start of the region,
// signed header included. The rest of the region is unused padding out
// to the next slot boundary and is never transferred.
func (img *Image) Slot(name string) ([]byte, error) {
	region, err := img.Region(name)
	if err != nil {
		return nil, err
	}
	h, err := ParseHeader(region)
	if err != nil {
		return nil, err
	}
	size := int(h.ImageSize)
	if size > len(region) {
		return nil, errors.Errorf("region %q claims %d bytes, only %d available", name, size, len(region))
	}
	return region[:size], nil
}
