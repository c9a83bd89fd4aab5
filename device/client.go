package device

import "github.com/google/citadel-updater/transport"

// Factory opens a Datagram to a device, without the caller needing to
// know whether that means a direct device handle or one proxied over
// IPC to a daemon that owns the real handle. Both shapes satisfy
// transport.Datagram identically once opened; this is the single
// capability seam everything above package transport is built against.
type Factory interface {
	OpenDatagram(path string) (transport.Datagram, error)
}

// FactoryFunc adapts a plain function to a Factory.
type FactoryFunc func(path string) (transport.Datagram, error)

// OpenDatagram implements Factory.
func (f FactoryFunc) OpenDatagram(path string) (transport.Datagram, error) {
	return f(path)
}

// OpenSession opens a device via factory and wraps it in a Session.
func OpenSession(factory Factory, path string, opts ...transport.Option) (*Session, error) {
	bus, err := factory.OpenDatagram(path)
	if err != nil {
		return nil, err
	}
	return Open(bus, opts...), nil
}
