package device

import (
	"encoding/binary"
	"testing"

	"github.com/google/citadel-updater/transport"
)

// fakeBus is a minimal transport.Datagram double. The first read reports
// idle (for make-ready); every read after that reports done with a
// success status, which is enough to drive Session.Call through a full
// transaction without any reply payload.
type fakeBus struct {
	reads  int
	writes int
}

func (f *fakeBus) Read(cmd transport.Command, buf []byte) (int, error) {
	f.reads++
	code := uint32(0)
	if f.reads > 1 {
		code = transport.AppStatusDoneBit | transport.AppSuccess
	}
	status := make([]byte, 15)
	binary.LittleEndian.PutUint32(status[0:4], transport.TransportStatusMagic)
	status[4] = transport.TransportStatusVersion
	binary.LittleEndian.PutUint32(status[5:9], code)
	binary.LittleEndian.PutUint16(status[9:11], 0)
	binary.LittleEndian.PutUint16(status[11:13], 0)
	binary.LittleEndian.PutUint16(status[13:15], 0)
	crc := transport.CRC16(status)
	binary.LittleEndian.PutUint16(status[13:15], crc)
	return copy(buf, status), nil
}

func (f *fakeBus) Write(cmd transport.Command, buf []byte) (int, error) {
	f.writes++
	return len(buf), nil
}

func TestSessionCallSuccess(t *testing.T) {
	bus := &fakeBus{}
	s := Open(bus)
	defer s.Close()

	reply, code, err := s.Call(0x01, 0x0000, nil)
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if code != transport.AppSuccess {
		t.Errorf("code = %#x, want AppSuccess", code)
	}
	if len(reply) != 0 {
		t.Errorf("reply = %v, want empty", reply)
	}
}

func TestSessionCallOnClosed(t *testing.T) {
	bus := &fakeBus{}
	s := Open(bus)
	s.Close()

	if s.IsOpen() {
		t.Error("IsOpen() = true after Close()")
	}
	if _, _, err := s.Call(0x01, 0, nil); err != ErrNotOpen {
		t.Errorf("Call() error = %v, want ErrNotOpen", err)
	}
}

func TestFactoryFuncOpensSession(t *testing.T) {
	factory := FactoryFunc(func(path string) (transport.Datagram, error) {
		if path != "/dev/citadel0" {
			t.Errorf("path = %q, want /dev/citadel0", path)
		}
		return &fakeBus{}, nil
	})

	s, err := OpenSession(factory, "/dev/citadel0")
	if err != nil {
		t.Fatalf("OpenSession() error = %v", err)
	}
	if !s.IsOpen() {
		t.Error("OpenSession() returned a closed session")
	}
}
