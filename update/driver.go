package update

import (
	"encoding/binary"
	"strings"

	"github.com/pkg/errors"

	"github.com/google/citadel-updater/transport"
)

// NuggetAppID addresses the device's firmware-update application. Every
// operation in this package is a Call to this one app id, distinguished
// by params.
const NuggetAppID byte = 0x01

// MaxLockedRetry bounds how many times TryUpdate retries a single bank on
// NuggetErrorRetry before giving up on it. LOCKED is terminal for the
// slot being written and is never retried in place.
const MaxLockedRetry = 3

// Caller is the one device capability this package needs: a single
// request/reply transaction. *device.Session satisfies it; tests supply
// their own.
type Caller interface {
	Call(appID byte, params uint16, request []byte) ([]byte, uint32, error)
}

// Driver runs firmware-update operations over a Caller.
type Driver struct {
	dev Caller
}

// NewDriver wraps a Caller with the firmware-update app's operations.
func NewDriver(dev Caller) *Driver {
	return &Driver{dev: dev}
}

// Version asks the device for its version string, exactly as printed by
// the device's own ASCII reply.
func (d *Driver) Version() (string, error) {
	reply, code, err := d.dev.Call(NuggetAppID, transport.NuggetParamVersion, nil)
	if err != nil {
		return "", errors.Wrap(err, "version")
	}
	if code != transport.AppSuccess {
		return "", errors.Errorf("version: %s", transport.ClassifyStatus(code))
	}
	return strings.TrimRight(string(reply), "\x00"), nil
}

// Reboot asks the device to reboot softly: a single 0 byte tells it to
// come back up rather than stay down for a hard power cycle. A
// successful call does not imply the device is reachable again
// afterward.
func (d *Driver) Reboot() error {
	_, code, err := d.dev.Call(NuggetAppID, transport.NuggetParamReboot, []byte{0})
	if err != nil {
		return errors.Wrap(err, "reboot")
	}
	if code != transport.AppSuccess {
		return errors.Errorf("reboot: %s", transport.ClassifyStatus(code))
	}
	return nil
}

// Erase asks the device to wipe flash ahead of a full reflash. code is an
// app-defined confirmation value guarding against an accidental call.
func (d *Driver) Erase(code uint32) error {
	req := make([]byte, 4)
	binary.LittleEndian.PutUint32(req, code)
	_, status, err := d.dev.Call(NuggetAppID, transport.NuggetParamNukeFromOrbit, req)
	if err != nil {
		return errors.Wrap(err, "erase")
	}
	if status != transport.AppSuccess {
		return errors.Errorf("erase: %s", transport.ClassifyStatus(status))
	}
	return nil
}

// ChangePassword replaces the update password on the device. The device
// checks old against what it already has before accepting new; both are
// sent as full PasswordDigest fields so neither the current nor the
// replacement password ever crosses the wire in the clear.
func (d *Driver) ChangePassword(oldPW, newPW PasswordDigest) error {
	req := append(oldPW.Marshal(), newPW.Marshal()...)
	_, code, err := d.dev.Call(NuggetAppID, transport.NuggetParamChangeUpdatePassword, req)
	if err != nil {
		return errors.Wrap(err, "change password")
	}
	if code != transport.AppSuccess {
		return errors.Errorf("change password: %s", transport.ClassifyStatus(code))
	}
	return nil
}

// Enable asks the device to mark the regions named by which as bootable,
// authenticated with the current update password.
func (d *Driver) Enable(which transport.HeaderMask, pw string) error {
	pd := NewPasswordDigest(pw)
	req := append([]byte{byte(which)}, pd.Marshal()...)
	_, code, err := d.dev.Call(NuggetAppID, transport.NuggetParamEnableUpdate, req)
	if err != nil {
		return errors.Wrap(err, "enable")
	}
	if code != transport.AppSuccess {
		return errors.Errorf("enable: %s", transport.ClassifyStatus(code))
	}
	return nil
}

// ProgressFunc is called after each bank write; written and total are
// byte counts within the region currently being flashed.
type ProgressFunc func(written, total int)

// TryUpdate writes region to the device starting at offset, one bank at
// a time. A bank that comes back NuggetErrorRetry is retried in place up
// to MaxLockedRetry times; NuggetErrorLocked or any other non-success
// status stops the whole region immediately and is returned to the
// caller, which decides whether a second slot is worth trying.
func (d *Driver) TryUpdate(offset uint32, region []byte, progress ProgressFunc) (uint32, error) {
	for written := 0; written < len(region); written += BankSize {
		end := written + BankSize
		if end > len(region) {
			end = len(region)
		}
		bankOffset := offset + uint32(written)
		fb, err := NewFlashBlock(bankOffset, region[written:end])
		if err != nil {
			return 0, errors.Wrap(err, "build flash block")
		}

		code, err := d.writeBank(fb)
		if err != nil {
			return 0, err
		}
		if code != transport.AppSuccess {
			return code, nil
		}
		if progress != nil {
			progress(end, len(region))
		}
	}
	return transport.AppSuccess, nil
}

func (d *Driver) writeBank(fb FlashBlock) (uint32, error) {
	var code uint32
	var err error
	for attempt := 0; attempt <= MaxLockedRetry; attempt++ {
		_, code, err = d.dev.Call(NuggetAppID, transport.NuggetParamFlashBlock, fb.Marshal())
		if err != nil {
			return 0, errors.Wrap(err, "write flash block")
		}
		if code != transport.NuggetErrorRetry {
			return code, nil
		}
	}
	return code, nil
}

// DoUpdate writes regionA at offsetA, falling back to regionB at offsetB
// whenever A does not come back success, regardless of which error it
// was.
func (d *Driver) DoUpdate(offsetA uint32, regionA []byte, offsetB uint32, regionB []byte, progress ProgressFunc) (uint32, error) {
	code, err := d.TryUpdate(offsetA, regionA, progress)
	if err != nil {
		return 0, err
	}
	if code == transport.AppSuccess {
		return code, nil
	}
	return d.TryUpdate(offsetB, regionB, progress)
}
