package transport

import (
	"time"

	"github.com/pkg/errors"
)

// RetryCount bounds the number of EAGAIN retries on a single datagram.
// RetryWait is the sleep between them. 25 * 5ms = 125ms, comfortably
// above the ~100ms wake budget the device needs after being asleep.
const (
	RetryCount = 25
	RetryWait  = 5 * time.Millisecond
)

// ErrAgain is returned by a Datagram implementation to indicate the
// device was asleep and the operation should be retried after RetryWait.
// Implementations typically return this by wrapping the platform's EAGAIN.
var ErrAgain = errors.New("device busy (EAGAIN)")

// ErrTimeout is returned when RetryCount consecutive ErrAgain results were
// seen without the device waking up.
var ErrTimeout = errors.New("device did not wake up within the retry budget")

// Datagram issues single read/write datagrams to the device handle. No
// framing or CRC lives here — this is the raw bus primitive that
// everything else in this package is built on.
//
// Implementations select between a direct device handle and one proxied
// over IPC; the transport driver never knows which it has (the single
// capability seam Design Notes §9 calls for).
type Datagram interface {
	Read(cmd Command, buf []byte) (int, error)
	Write(cmd Command, buf []byte) (int, error)
}

// retryRead wraps d.Read, retrying on ErrAgain up to RetryCount times.
func retryRead(d Datagram, cmd Command, buf []byte) (int, error) {
	return retryIO(func() (int, error) { return d.Read(cmd, buf) })
}

// retryWrite wraps d.Write, retrying on ErrAgain up to RetryCount times.
func retryWrite(d Datagram, cmd Command, buf []byte) (int, error) {
	return retryIO(func() (int, error) { return d.Write(cmd, buf) })
}

func retryIO(op func() (int, error)) (int, error) {
	for attempt := 0; attempt < RetryCount; attempt++ {
		n, err := op()
		if err == nil {
			return n, nil
		}
		if !errors.Is(err, ErrAgain) {
			return n, err
		}
		time.Sleep(RetryWait)
	}
	return 0, ErrTimeout
}
