package transport

import (
	"time"

	"github.com/pkg/errors"
)

// Driver runs the call_application state machine over a Datagram. It is
// the only thing in this package that knows the full sequence; Command,
// CRC16, and Status are the primitives it is built from.
type Driver struct {
	bus Datagram
	log Logger

	// pollDoneLimit bounds the poll-done loop for tests. Zero (the
	// default) means no limit: the device's own watchdog is authoritative,
	// per Design Notes, and production code must never time this out.
	pollDoneLimit int
}

// NewDriver wraps a Datagram with the transport state machine.
func NewDriver(bus Datagram, opts ...Option) *Driver {
	d := &Driver{bus: bus, log: nopLogger{}}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// WithPollDoneLimit bounds how many status reads poll-done will issue
// before giving up. Intended for tests only; production callers should
// leave this at the zero-value default of "poll until done".
func WithPollDoneLimit(limit int) Option {
	return func(d *Driver) {
		d.pollDoneLimit = limit
	}
}

// CallApplication runs one full transaction: make-ready, send-args,
// send-go, poll-done, receive-reply, clear. It returns the device's
// app-visible status code (already stripped of AppStatusDoneBit) and the
// reply payload, sized to whatever the device actually sent. A
// host-induced failure (bus, protocol, or exhausted checksum retries)
// comes back as AppErrorIO alongside a non-nil error.
func (dr *Driver) CallApplication(appID byte, params uint16, args []byte, replyCap int) (uint32, []byte, error) {
	cmd := NewCommand(appID, params)
	dr.log.Debug("call application", "appID", appID, "params", params, "argLen", len(args))

	var final Status
	var code uint32
	succeeded := false

	for attempt := 0; attempt < CRCRetry; attempt++ {
		if err := dr.makeReady(appID); err != nil {
			return AppErrorIO, nil, errors.Wrap(err, "make ready")
		}
		if err := dr.sendArgs(cmd, args); err != nil {
			return AppErrorIO, nil, errors.Wrap(err, "send args")
		}
		if err := dr.sendGo(cmd, args, replyCap); err != nil {
			return AppErrorIO, nil, errors.Wrap(err, "send go")
		}
		st, err := dr.pollDone(cmd)
		if err != nil {
			return AppErrorIO, nil, errors.Wrap(err, "poll done")
		}
		final = st
		code = AppStatusCode(st.Code)
		if code != AppErrorChecksum {
			succeeded = true
			break
		}
		dr.log.Debug("request checksum mismatch, restarting transaction", "attempt", attempt+1)
	}
	if !succeeded {
		_ = dr.clear(cmd)
		return AppErrorIO, nil, errors.New("request checksum mismatch survived all retries")
	}

	var reply []byte
	if replyCap > 0 && final.ReplyLen > 0 {
		var err error
		reply, err = dr.receiveReply(cmd, final, replyCap)
		if err != nil {
			return AppErrorIO, nil, errors.Wrap(err, "receive reply")
		}
	}

	if err := dr.clear(cmd); err != nil {
		dr.log.Error("clear status failed", "error", err)
	}
	if code != AppSuccess {
		dr.log.Error("application returned error", "status", ClassifyStatus(code))
	}
	return code, reply, nil
}

// makeReady reads status once; if the app is already idle it proceeds.
// Otherwise it writes a clear and re-reads once more. Still not idle
// after that is a hard failure: the caller cannot make progress.
func (dr *Driver) makeReady(appID byte) error {
	statusCmd := NewCommand(appID, 0).WithRead().WithTransport()

	st, err := ReadStatus(dr.bus, statusCmd)
	if err != nil {
		return err
	}
	if isIdle(st) {
		return nil
	}
	if err := dr.clear(NewCommand(appID, 0)); err != nil {
		return err
	}
	st, err = ReadStatus(dr.bus, statusCmd)
	if err != nil {
		return err
	}
	if !isIdle(st) {
		return errors.New("app did not return to idle after clear")
	}
	return nil
}

func isIdle(st Status) bool {
	return st.Code&AppStatusDoneBit == 0 && AppStatusCode(st.Code) == AppStatusIdle
}

// pollDone reads status repeatedly until the app reports done. There is
// intentionally no host-side timeout in production use: the device's own
// watchdog bounds it. pollDoneLimit, when nonzero, exists only so tests
// can exercise a stuck app without hanging.
func (dr *Driver) pollDone(cmd Command) (Status, error) {
	statusCmd := cmd.WithRead().WithTransport()
	for i := 0; dr.pollDoneLimit == 0 || i < dr.pollDoneLimit; i++ {
		st, err := ReadStatus(dr.bus, statusCmd)
		if err != nil {
			return Status{}, err
		}
		if st.Code&AppStatusDoneBit != 0 {
			return st, nil
		}
		time.Sleep(RetryWait)
	}
	return Status{}, ErrTimeout
}

// sendArgs writes args to the device in MaxDeviceTransfer-sized chunks,
// each tagged is-data and transport. Per the wire protocol the first
// datagram carries MORE_TO_COME = 0 and every one after it carries
// MORE_TO_COME = 1; at least one datagram is always sent, even for an
// empty request, so the device sees the transaction start.
func (dr *Driver) sendArgs(cmd Command, args []byte) error {
	dataCmd := cmd.WithTransport().WithData()
	if len(args) == 0 {
		_, err := retryWrite(dr.bus, dataCmd.WithParams(0), nil)
		return err
	}
	first := true
	for offset := 0; offset < len(args); offset += MaxDeviceTransfer {
		end := offset + MaxDeviceTransfer
		if end > len(args) {
			end = len(args)
		}
		chunk := dataCmd.WithParams(uint16(end - offset))
		if !first {
			chunk = chunk.WithMore()
		}
		first = false
		if _, err := retryWrite(dr.bus, chunk, args[offset:end]); err != nil {
			return err
		}
	}
	return nil
}

// sendGo writes the command word that starts the app running, with a
// TransportCommandInfo body whose CRC covers the arg length, the args
// just sent, the reply-length hint, and the go command word itself — so
// the device can confirm it saw exactly what the host meant to send.
func (dr *Driver) sendGo(cmd Command, args []byte, replyCap int) error {
	goCmd := NewCommand(cmd.AppID(), cmd.Params())
	hint := replyLenHint(replyCap)
	info := commandInfo{
		replyLenHint: hint,
		crc:          commandInfoCRC(args, hint, goCmd),
	}
	_, err := retryWrite(dr.bus, goCmd, info.marshal())
	return err
}

func replyLenHint(cap int) uint16 {
	if cap > 0xFFFF {
		return 0xFFFF
	}
	return uint16(cap)
}

// receiveReply reads min(replyCap, final.ReplyLen) bytes of reply payload
// in MaxDeviceTransfer chunks, accumulating a running CRC-16 as it goes.
// Under V1 a CRC mismatch against final.ReplyCRC restarts the whole
// receive, up to CRCRetry times; legacy replies carry no CRC to check.
func (dr *Driver) receiveReply(cmd Command, final Status, replyCap int) ([]byte, error) {
	size := int(final.ReplyLen)
	if size > replyCap {
		size = replyCap
	}
	readCmd := cmd.WithRead().WithTransport().WithData()

	for attempt := 0; attempt < CRCRetry; attempt++ {
		out := make([]byte, 0, size)
		var crc uint16
		first := true
		for len(out) < size {
			want := size - len(out)
			if want > MaxDeviceTransfer {
				want = MaxDeviceTransfer
			}
			chunkCmd := readCmd.WithParams(uint16(want))
			if !first {
				chunkCmd = chunkCmd.WithMore()
			}
			first = false

			buf := make([]byte, want)
			n, err := retryRead(dr.bus, chunkCmd, buf)
			if err != nil {
				return nil, err
			}
			if n < want {
				return nil, errors.Errorf("short reply read: got %d bytes, want %d", n, want)
			}
			crc = CRC16Update(buf, crc)
			out = append(out, buf...)
		}
		if final.Legacy || crc == final.ReplyCRC {
			return out, nil
		}
		dr.log.Debug("reply CRC mismatch, re-receiving", "attempt", attempt+1)
	}
	return nil, ErrProtocol
}

// clear tells the device the transaction is over and it may return to
// idle for the next call.
func (dr *Driver) clear(cmd Command) error {
	clearCmd := NewCommand(cmd.AppID(), 0).WithTransport()
	_, err := retryWrite(dr.bus, clearCmd, nil)
	return err
}
