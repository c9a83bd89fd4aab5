package transport

// CRC-16 parameters shared with the device firmware: polynomial 0x1021,
// initial value 0x0000, most-significant-bit first, no final XOR. This
// must stay byte-for-byte compatible with the device's own crc16(); it is
// not a general-purpose checksum choice.
const crc16Poly = 0x1021

// CRC16 computes the CRC-16 of data from a zero initial value.
func CRC16(data []byte) uint16 {
	return CRC16Update(data, 0)
}

// CRC16Update continues a CRC-16 computation over another byte range.
// Callers use this to CRC several non-contiguous fields without copying
// them into one buffer first, e.g. the TransportCommandInfo CRC in
// transport.c's send_command().
func CRC16Update(data []byte, crc uint16) uint16 {
	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = (crc << 1) ^ crc16Poly
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
