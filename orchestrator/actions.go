package orchestrator

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/google/citadel-updater/firmware"
	"github.com/google/citadel-updater/transport"
	"github.com/google/citadel-updater/update"
)

// ActionSet selects which of the fixed-order actions Run executes. The
// order itself — erase, version, rw, ro, change_pw, enable, reboot — is
// never reordered by which bits are set; a caller who only wants rw and
// reboot still gets them in that relative order. Erase is special: when
// requested it preempts every other action and is the only one Run
// performs, regardless of what else is set.
type ActionSet uint16

const (
	ActionErase ActionSet = 1 << iota
	ActionVersion
	ActionRW
	ActionRO
	ActionChangePW
	ActionEnableRO
	ActionEnableRW
	ActionReboot

	ActionAll = ActionErase | ActionVersion | ActionRW | ActionRO | ActionChangePW | ActionEnableRO | ActionEnableRW | ActionReboot
)

// Exit codes mirror the action that failed, so a caller can script
// retries around a specific stage of the update without string-matching
// an error message.
const (
	ExitErase = iota + 1
	ExitVersion
	ExitRW
	ExitRO
	ExitChangePW
	ExitEnable
	ExitReboot
)

// Error reports which action failed and the exit code a CLI should use.
type Error struct {
	Action   string
	ExitCode int
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Action, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Config holds everything Run needs beyond the fixed action sequence
// itself.
type Config struct {
	EraseCode      uint32
	OldPassword    string
	NewPassword    string
	EnablePassword string
	Progress       update.ProgressFunc
	Logger         transport.Logger
}

func defaultConfig() Config {
	return Config{Logger: nopLogger{}}
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}

// Option configures an Orchestrator.
type Option func(*Config)

// WithEraseCode sets the confirmation value the device demands for Erase.
func WithEraseCode(code uint32) Option {
	return func(c *Config) { c.EraseCode = code }
}

// WithChangePassword sets the password material ActionChangePW sends:
// old must match what the device already has, new replaces it (an empty
// new clears the password).
func WithChangePassword(oldPW, newPW string) Option {
	return func(c *Config) { c.OldPassword = oldPW; c.NewPassword = newPW }
}

// WithEnablePassword sets the update password used to authenticate the
// enable_ro/enable_rw actions.
func WithEnablePassword(pw string) Option {
	return func(c *Config) { c.EnablePassword = pw }
}

// WithProgress sets a callback invoked as each bank of RW/RO data is
// written.
func WithProgress(p update.ProgressFunc) Option {
	return func(c *Config) { c.Progress = p }
}

// WithLogger sets the logger Run reports each action's outcome to.
func WithLogger(l transport.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// Orchestrator runs firmware-update actions against one device and one
// firmware image.
type Orchestrator struct {
	dev     *update.Driver
	img     *firmware.Image
	cfg     Config
	errors  int
	version string
}

// New builds an Orchestrator over dev, applying img's regions to it.
func New(dev *update.Driver, img *firmware.Image, opts ...Option) *Orchestrator {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Orchestrator{dev: dev, img: img, cfg: cfg}
}

// ErrorCount returns how many actions Run has recorded a failure for.
// Since Run is fail-fast this is 0 or 1, but the count is owned by this
// Orchestrator rather than any shared/global state, so concurrent
// Orchestrators never interfere with each other's accounting.
func (o *Orchestrator) ErrorCount() int { return o.errors }

// Version returns the ASCII version string last retrieved by a
// successful ActionVersion run, or "" if version has not been run yet.
// Run only logs it (for operators); a caller that needs the raw string
// itself, e.g. to print it to stdout, reads it here.
func (o *Orchestrator) Version() string { return o.version }

// Run executes the requested subset of actions in fixed order, stopping
// at the first failure. A device-reported non-success status and a Go
// error are both treated as failures.
//
// Erase is an exception to "requested subset": if ActionErase is set,
// erase is the only action Run performs. Every other requested bit is
// silently ignored, because an erased device has nothing left for
// version/rw/ro/reboot to act on.
func (o *Orchestrator) Run(actions ActionSet) error {
	if actions&ActionErase != 0 {
		return o.runStep("erase", ExitErase, o.runErase)
	}

	type step struct {
		bit  ActionSet
		name string
		code int
		run  func() error
	}
	var which transport.HeaderMask
	if actions&ActionEnableRO != 0 {
		which |= transport.HeaderRO
	}
	if actions&ActionEnableRW != 0 {
		which |= transport.HeaderRW
	}
	steps := []step{
		{ActionVersion, "version", ExitVersion, o.runVersion},
		{ActionRW, "rw", ExitRW, o.runRW},
		{ActionRO, "ro", ExitRO, o.runRO},
		{ActionChangePW, "change_pw", ExitChangePW, o.runChangePW},
		{ActionEnableRO | ActionEnableRW, "enable", ExitEnable, func() error { return o.runEnable(which) }},
		{ActionReboot, "reboot", ExitReboot, o.runReboot},
	}

	for _, s := range steps {
		if actions&s.bit == 0 {
			continue
		}
		if err := o.runStep(s.name, s.code, s.run); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) runStep(name string, code int, run func() error) error {
	o.cfg.Logger.Debug("running action", "action", name)
	if err := run(); err != nil {
		o.errors++
		o.cfg.Logger.Error("action failed", "action", name, "error", err)
		return &Error{Action: name, ExitCode: code, Err: err}
	}
	o.cfg.Logger.Info("action complete", "action", name)
	return nil
}

func (o *Orchestrator) runErase() error {
	return o.dev.Erase(o.cfg.EraseCode)
}

func (o *Orchestrator) runVersion() error {
	v, err := o.dev.Version()
	if err != nil {
		return err
	}
	o.version = v
	o.cfg.Logger.Info("device reports version", "version", v)
	return nil
}

func (o *Orchestrator) runRW() error {
	return o.flashSlots("rw_a", firmware.RWAOffset, "rw_b", firmware.RWBOffset)
}

func (o *Orchestrator) runRO() error {
	return o.flashSlots("ro_a", firmware.ROAOffset, "ro_b", firmware.ROBOffset)
}

// flashSlots transfers only the first ImageSize bytes of each slot (signed
// header included), never the full padded region.
func (o *Orchestrator) flashSlots(nameA string, offsetA uint32, nameB string, offsetB uint32) error {
	slotA, err := o.img.Slot(nameA)
	if err != nil {
		return err
	}
	slotB, err := o.img.Slot(nameB)
	if err != nil {
		return err
	}
	code, err := o.dev.DoUpdate(offsetA, slotA, offsetB, slotB, o.cfg.Progress)
	if err != nil {
		return err
	}
	if code != transport.AppSuccess {
		return errors.Errorf("device rejected update: %s", transport.ClassifyStatus(code))
	}
	return nil
}

func (o *Orchestrator) runChangePW() error {
	return o.dev.ChangePassword(update.NewPasswordDigest(o.cfg.OldPassword), update.NewPasswordDigest(o.cfg.NewPassword))
}

func (o *Orchestrator) runEnable(which transport.HeaderMask) error {
	return o.dev.Enable(which, o.cfg.EnablePassword)
}

func (o *Orchestrator) runReboot() error {
	return o.dev.Reboot()
}
