package update

import (
	"crypto/sha1"
	"encoding/binary"
)

// PWLen is the fixed size of the password field the device stores,
// 0xFF-padded the way an unset field reads back as all-ones rather than
// all-zeros.
const PWLen = 32

// PasswordDigest is what ChangePassword actually sends: the padded
// password field plus a digest of it, so the device can confirm the
// field arrived intact without echoing the password itself back.
type PasswordDigest struct {
	Password [PWLen]byte
	Digest   uint32
}

// NewPasswordDigest pads pw out to PWLen with 0xFF and digests the whole
// padded field as the first word (little-endian) of its SHA-1 sum.
func NewPasswordDigest(pw string) PasswordDigest {
	pd := PasswordDigest{}
	for i := range pd.Password {
		pd.Password[i] = 0xFF
	}
	copy(pd.Password[:], pw)

	sum := sha1.Sum(pd.Password[:])
	pd.Digest = binary.LittleEndian.Uint32(sum[:4])
	return pd
}

// Marshal serializes the digest to the wire format: the padded password
// field followed by the 4-byte digest, little-endian.
func (pd PasswordDigest) Marshal() []byte {
	buf := make([]byte, PWLen+4)
	copy(buf, pd.Password[:])
	binary.LittleEndian.PutUint32(buf[PWLen:], pd.Digest)
	return buf
}
