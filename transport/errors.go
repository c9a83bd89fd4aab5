package transport

import (
	"fmt"

	"github.com/pkg/errors"
)

// Generic status codes returned by call_application. These are the low
// bits of the device status register once AppStatusCode has stripped the
// transport flag bits.
const (
	AppSuccess       uint32 = 0
	AppErrorBogusArgs uint32 = 1
	AppErrorInternal  uint32 = 2
	AppErrorTooMuch   uint32 = 3
	AppErrorChecksum  uint32 = 4
	// AppErrorIO never comes from the device; the transport driver uses it
	// to report host-induced I/O failures in the same status code space.
	AppErrorIO uint32 = 5

	// AppSpecificError is the base of the per-app error range.
	AppSpecificError uint32 = 0x1000
	// AppLineNumberBase is the base of the firmware-line-number range; a
	// status at or above this value names a source line in the device app.
	AppLineNumberBase uint32 = 0x8000
)

// Device status register flag bits and the idle/done protocol.
const (
	// AppStatusIdle is the exact status value observed when the app is
	// ready to accept a new transaction (no flags, no pending code).
	AppStatusIdle uint32 = 0
	// AppStatusDoneBit is set once the app has finished handling the
	// current request; AppStatusCode strips it back off.
	AppStatusDoneBit uint32 = 1 << 31
)

// AppStatusCode strips the protocol flag bits, leaving the app-visible
// result code.
func AppStatusCode(status uint32) uint32 {
	return status &^ AppStatusDoneBit
}

// Nugget (firmware update) app-specific errors, relative to AppSpecificError.
const (
	NuggetErrorLocked uint32 = AppSpecificError + 0
	NuggetErrorRetry  uint32 = AppSpecificError + 1
)

// Nugget app parameter identifiers (the `params` field of a call).
const (
	NuggetParamVersion              uint16 = 0x0000
	NuggetParamFlashBlock           uint16 = 0x0001
	NuggetParamReboot               uint16 = 0x0002
	NuggetParamChangeUpdatePassword uint16 = 0x0003
	NuggetParamEnableUpdate         uint16 = 0x0004
	NuggetParamNukeFromOrbit        uint16 = 0x0005
)

// HeaderMask selects which signed header(s) an enable-update request
// applies to.
type HeaderMask uint8

const (
	HeaderRO HeaderMask = 1 << 0
	HeaderRW HeaderMask = 1 << 1
)

// Sentinel errors surfaced by the status codec (C3).
var (
	// ErrCRCMismatch is returned internally while CRCRetry re-reads are
	// still available; once exhausted it is converted to ErrProtocol.
	ErrCRCMismatch = errors.New("status CRC mismatch")
	// ErrProtocol covers an unrecognized status version or a CRC mismatch
	// that survived CRCRetry re-reads.
	ErrProtocol = errors.New("transport protocol error")
)

// CRCRetry bounds status re-reads on CRC mismatch and whole-transaction or
// whole-receive retries on request/reply CRC mismatch. Kept distinct from
// RetryCount (bus EAGAIN) per Design Notes §9: the three retry scopes are
// never collapsed into one loop.
const CRCRetry = 3

// ClassifyStatus renders a device status code the way the original
// updater's is_app_success() did: generic errors by name, app-specific
// errors as an offset from AppSpecificError, and values in the firmware
// line-number range as a source line.
func ClassifyStatus(code uint32) string {
	switch code {
	case AppSuccess:
		return "success"
	case AppErrorBogusArgs:
		return "bogus args"
	case AppErrorInternal:
		return "app is being stupid"
	case AppErrorTooMuch:
		return "caller sent too much data"
	case AppErrorChecksum:
		return "checksum error"
	case AppErrorIO:
		return "I/O error"
	}
	switch {
	case code >= AppLineNumberBase:
		return fmt.Sprintf("error at line %d", code-AppLineNumberBase)
	case code >= AppSpecificError:
		return fmt.Sprintf("app-specific error #%d", code-AppSpecificError)
	default:
		return fmt.Sprintf("unknown status 0x%x", code)
	}
}
