package orchestrator

import (
	"encoding/binary"
	"testing"

	"github.com/google/citadel-updater/firmware"
	"github.com/google/citadel-updater/transport"
	"github.com/google/citadel-updater/update"
)

// scriptedCaller answers every update.Driver call with AppSuccess unless
// failAt names the call index (0-based, in call order) that should fail.
type scriptedCaller struct {
	calls   int
	failAt  int
	failure uint32
	reply   []byte
}

func (s *scriptedCaller) Call(appID byte, params uint16, request []byte) ([]byte, uint32, error) {
	i := s.calls
	s.calls++
	if s.failAt >= 0 && i == s.failAt {
		return nil, s.failure, nil
	}
	return s.reply, transport.AppSuccess, nil
}

const (
	testROSize = 4096
	testRWSize = 8192
)

func putHeader(data []byte, offset uint32, imageSize uint32) {
	binary.LittleEndian.PutUint32(data[offset:], firmware.SignedHeaderMagic)
	binary.LittleEndian.PutUint32(data[offset+4:], imageSize)
}

// newImage builds a ChipFlashSize image with a valid SignedHeader at each
// of the four slot offsets, so flashSlots can call img.Slot without
// tripping header validation.
func newImage(t *testing.T) *firmware.Image {
	t.Helper()
	data := make([]byte, firmware.ChipFlashSize)
	putHeader(data, firmware.ROAOffset, testROSize)
	putHeader(data, firmware.RWAOffset, testRWSize)
	putHeader(data, firmware.ROBOffset, testROSize)
	putHeader(data, firmware.RWBOffset, testRWSize)

	img, err := firmware.NewImage(data)
	if err != nil {
		t.Fatalf("firmware.NewImage() error = %v", err)
	}
	return img
}

func slotBankCalls(imageSize int) int {
	n := imageSize / update.BankSize
	if imageSize%update.BankSize != 0 {
		n++
	}
	return n
}

func TestRunAllActionsSucceed(t *testing.T) {
	caller := &scriptedCaller{failAt: -1, reply: []byte("v1.0.0\x00")}
	o := New(update.NewDriver(caller), newImage(t),
		WithEraseCode(1),
		WithChangePassword("old", "newpw"),
		WithEnablePassword("newpw"))

	// Erase preempts everything else, so it is left out here to let every
	// other action run.
	if err := o.Run(ActionAll &^ ActionErase); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if o.ErrorCount() != 0 {
		t.Errorf("ErrorCount() = %d, want 0", o.ErrorCount())
	}
}

func TestRunErasePreemptsAllOtherActions(t *testing.T) {
	caller := &scriptedCaller{failAt: -1, reply: []byte("v1.0.0\x00")}
	o := New(update.NewDriver(caller), newImage(t), WithEraseCode(0xDEADBEEF))

	if err := o.Run(ActionVersion | ActionReboot | ActionErase); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if caller.calls != 1 {
		t.Errorf("calls = %d, want 1 (erase only, version and reboot must not run)", caller.calls)
	}
}

func TestRunStopsAtFirstFailure(t *testing.T) {
	caller := &scriptedCaller{failAt: 0, failure: transport.AppErrorInternal}
	o := New(update.NewDriver(caller), newImage(t))

	err := o.Run(ActionVersion | ActionReboot)
	if err == nil {
		t.Fatal("Run() error = nil, want failure from the version action")
	}
	oe, ok := err.(*Error)
	if !ok {
		t.Fatalf("Run() error type = %T, want *Error", err)
	}
	if oe.Action != "version" || oe.ExitCode != ExitVersion {
		t.Errorf("Error = %+v, want action=version exitCode=%d", oe, ExitVersion)
	}
	if o.ErrorCount() != 1 {
		t.Errorf("ErrorCount() = %d, want 1", o.ErrorCount())
	}
}

func TestRunSkipsActionsNotRequested(t *testing.T) {
	caller := &scriptedCaller{failAt: -1, reply: []byte("v1\x00")}
	o := New(update.NewDriver(caller), newImage(t))

	if err := o.Run(ActionVersion | ActionReboot); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	// version (1 call) + reboot (1 call) = 2, none of rw/ro/enable/changepw.
	if caller.calls != 2 {
		t.Errorf("calls = %d, want 2 (version + reboot only)", caller.calls)
	}
}

func TestRunChangePasswordWithEmptyNewPasswordStillCallsDevice(t *testing.T) {
	// An empty new password is a valid "clear the password" instruction,
	// not a signal to skip the action.
	caller := &scriptedCaller{failAt: -1}
	o := New(update.NewDriver(caller), newImage(t))

	if err := o.Run(ActionChangePW); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if caller.calls != 1 {
		t.Errorf("calls = %d, want 1 (change_pw with an empty new password still clears it on the device)", caller.calls)
	}
}

func TestRunChangePasswordSendsBothDigests(t *testing.T) {
	caller := &scriptedCaller{failAt: -1}
	o := New(update.NewDriver(caller), newImage(t), WithChangePassword("old", "new"))

	if err := o.Run(ActionChangePW); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if caller.calls != 1 {
		t.Errorf("calls = %d, want 1", caller.calls)
	}
}

func TestRunEnableRequiresEnableBit(t *testing.T) {
	caller := &scriptedCaller{failAt: -1}
	o := New(update.NewDriver(caller), newImage(t), WithEnablePassword("pw"))

	if err := o.Run(ActionEnableRO); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if caller.calls != 1 {
		t.Errorf("calls = %d, want 1 (enable_ro alone still calls Enable once)", caller.calls)
	}
}

func TestRunRWWritesSlotAWhenNotLocked(t *testing.T) {
	caller := &scriptedCaller{failAt: -1}
	o := New(update.NewDriver(caller), newImage(t))

	if err := o.Run(ActionRW); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	wantCalls := slotBankCalls(testRWSize)
	if caller.calls != wantCalls {
		t.Errorf("calls = %d, want %d flash-block writes covering only slot A (B is untouched unless A fails)", caller.calls, wantCalls)
	}
}

func TestRunRWFallsBackToSlotBWhenALocked(t *testing.T) {
	// The very first bank write (slot A's) comes back locked; DoUpdate
	// should then fall back to slot B and write it in full.
	caller := &scriptedCaller{failAt: 0, failure: transport.NuggetErrorLocked}
	o := New(update.NewDriver(caller), newImage(t))

	if err := o.Run(ActionRW); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	wantB := slotBankCalls(testRWSize)
	if caller.calls != 1+wantB {
		t.Errorf("calls = %d, want %d (one locked attempt on A, then all of B)", caller.calls, 1+wantB)
	}
}

func TestRunRWFallsBackToSlotBOnAnyNonSuccess(t *testing.T) {
	// A's first bank write fails with something other than LOCKED; DoUpdate
	// still falls back to B, per updater.cpp's unconditional fallback.
	caller := &scriptedCaller{failAt: 0, failure: transport.AppErrorChecksum}
	o := New(update.NewDriver(caller), newImage(t))

	if err := o.Run(ActionRW); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	wantB := slotBankCalls(testRWSize)
	if caller.calls != 1+wantB {
		t.Errorf("calls = %d, want %d (one failed attempt on A, then all of B)", caller.calls, 1+wantB)
	}
}
