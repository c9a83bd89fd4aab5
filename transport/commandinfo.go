package transport

import "encoding/binary"

// commandInfoVersion is the only TransportCommandInfo version this
// driver sends.
const commandInfoVersion uint8 = 1

// commandInfoSize is sizeof{version u8, reply_len_hint u16, crc u16}.
const commandInfoSize = 5

// commandInfo is the payload of the "go" datagram. Its CRC covers, in
// order, the request that preceded it: the 16-bit arg length, the args
// themselves, the 16-bit reply length hint, and the go command word —
// not commandInfo's own bytes. This lets the device confirm it saw
// exactly the args and "go" the host meant to send before it starts
// running the app.
type commandInfo struct {
	replyLenHint uint16
	crc          uint16
}

// commandInfoCRC computes the CRC commandInfo carries, over
// (arg_len, args, reply_len_hint, goCmd) in that order.
func commandInfoCRC(args []byte, replyLenHint uint16, goCmd Command) uint16 {
	var lenBuf [2]byte
	binary.LittleEndian.PutUint16(lenBuf[:], uint16(len(args)))
	crc := CRC16Update(lenBuf[:], 0)
	crc = CRC16Update(args, crc)

	var hintBuf [2]byte
	binary.LittleEndian.PutUint16(hintBuf[:], replyLenHint)
	crc = CRC16Update(hintBuf[:], crc)

	var cmdBuf [4]byte
	binary.LittleEndian.PutUint32(cmdBuf[:], uint32(goCmd))
	crc = CRC16Update(cmdBuf[:], crc)
	return crc
}

// marshal serializes commandInfo to the wire format the "go" datagram
// carries as its body.
func (ci commandInfo) marshal() []byte {
	buf := make([]byte, commandInfoSize)
	buf[0] = commandInfoVersion
	binary.LittleEndian.PutUint16(buf[1:3], ci.replyLenHint)
	binary.LittleEndian.PutUint16(buf[3:5], ci.crc)
	return buf
}
