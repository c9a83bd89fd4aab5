package device

import (
	"math"
	"sync"

	"github.com/pkg/errors"

	"github.com/google/citadel-updater/transport"
)

// ErrNotOpen is returned by Call when no transaction may proceed because
// the session has not been opened (or has been closed).
var ErrNotOpen = errors.New("device session is not open")

// ErrRequestTooLarge is returned by Call before any bytes reach the wire,
// for a request so large the 32-bit length fields in the wire protocol
// could not possibly describe it.
var ErrRequestTooLarge = errors.New("request exceeds the protocol's addressable size")

// MaxReplySize bounds how large a reply Call will accept from the device
// in a single transaction, independent of the transport's own chunking.
const MaxReplySize = 64 * 1024

// Session owns one open transaction channel to the device and serializes
// calls to it; the state machine in package transport assumes a single
// caller at a time.
type Session struct {
	mu     sync.Mutex
	driver *transport.Driver
	open   bool
}

// Open wraps bus in a transport.Driver and marks the session ready for
// calls. opts are forwarded to transport.NewDriver.
func Open(bus transport.Datagram, opts ...transport.Option) *Session {
	return &Session{
		driver: transport.NewDriver(bus, opts...),
		open:   true,
	}
}

// Close marks the session unusable. It does not close the underlying
// Datagram; ownership of that handle stays with the caller that built it.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open = false
}

// IsOpen reports whether Call may currently be used.
func (s *Session) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

// Call runs one request/reply transaction against appID, returning the
// device's status code alongside any reply payload. A non-nil error means
// the transaction itself failed (bus, protocol, or argument validation);
// a device-reported application error comes back as a non-zero status
// code with a nil error.
func (s *Session) Call(appID byte, params uint16, request []byte) ([]byte, uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.open {
		return nil, 0, ErrNotOpen
	}
	if uint64(len(request)) > math.MaxUint32 {
		return nil, transport.AppErrorTooMuch, ErrRequestTooLarge
	}

	code, reply, err := s.driver.CallApplication(appID, params, request, MaxReplySize)
	if err != nil {
		return nil, 0, errors.Wrapf(err, "call app 0x%02x", appID)
	}
	return reply, code, nil
}
