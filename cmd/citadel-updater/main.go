// Command citadel-updater drives a firmware update against a secure
// coprocessor reached over a device-specific datagram channel.
//
// The argument parser here is the thinnest possible shim over
// orchestrator.Orchestrator: flag handling, help text, and the actual
// platform device-open path are all named out of scope by the core
// packages this binary wires together.
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/schollz/progressbar/v3"
	"k8s.io/klog/v2"

	"github.com/google/citadel-updater/device"
	"github.com/google/citadel-updater/firmware"
	"github.com/google/citadel-updater/orchestrator"
	"github.com/google/citadel-updater/transport"
	"github.com/google/citadel-updater/update"
)

func main() {
	klog.InitFlags(nil)

	var (
		showVersion bool
		showHelp    bool
		doRO        bool
		doRW        bool
		doReboot    bool
		doEnableRO  bool
		doEnableRW  bool
		doChangePW  bool
		eraseCode   string
		devicePath  string
	)
	flag.BoolVar(&showVersion, "version", false, "print the device's firmware version")
	flag.BoolVar(&showVersion, "v", false, "print the device's firmware version")
	flag.BoolVar(&showHelp, "help", false, "print usage and exit")
	flag.BoolVar(&showHelp, "h", false, "print usage and exit")
	flag.BoolVar(&doRO, "ro", false, "flash the read-only region from image.bin")
	flag.BoolVar(&doRW, "rw", false, "flash the read-write region from image.bin")
	flag.BoolVar(&doReboot, "reboot", false, "reboot the device")
	flag.BoolVar(&doEnableRO, "enable_ro", false, "mark the RO region bootable")
	flag.BoolVar(&doEnableRW, "enable_rw", false, "mark the RW region bootable")
	flag.BoolVar(&doChangePW, "change_pw", false, "change the update password")
	flag.StringVar(&eraseCode, "erase", "", "erase flash; CODE is the device's confirmation value")
	flag.StringVar(&devicePath, "device", "", "path identifying the device to open")
	flag.Parse()

	if showHelp {
		flag.Usage()
		os.Exit(0)
	}

	actions, exitCode := buildActions(showVersion, doRO, doRW, doReboot, doEnableRO, doEnableRW, doChangePW, eraseCode != "")
	if exitCode != 0 {
		os.Exit(exitCode)
	}

	opts, exitCode := buildOptions(actions, eraseCode, flag.Args())
	if exitCode != 0 {
		os.Exit(exitCode)
	}

	img, exitCode := loadImage(actions, flag.Args())
	if exitCode != 0 {
		os.Exit(exitCode)
	}

	bus, err := openDevice(devicePath)
	if err != nil {
		klog.Errorf("open device %q: %v", devicePath, err)
		os.Exit(1)
	}
	sess := device.Open(bus)
	defer sess.Close()

	o := orchestrator.New(update.NewDriver(sess), img, opts...)
	if err := o.Run(actions); err != nil {
		oe, ok := err.(*orchestrator.Error)
		if !ok {
			klog.Errorf("update failed: %v", err)
			os.Exit(1)
		}
		klog.Errorf("%s failed: %v", oe.Action, oe.Err)
		os.Exit(oe.ExitCode)
	}
	if actions&orchestrator.ActionVersion != 0 {
		fmt.Println(o.Version())
	}
	os.Exit(0)
}

// buildActions translates the parsed flags into an orchestrator.ActionSet,
// reporting an InputError-equivalent exit code (1) if no action was
// requested.
func buildActions(version, ro, rw, reboot, enableRO, enableRW, changePW, erase bool) (orchestrator.ActionSet, int) {
	var actions orchestrator.ActionSet
	if version {
		actions |= orchestrator.ActionVersion
	}
	if ro {
		actions |= orchestrator.ActionRO
	}
	if rw {
		actions |= orchestrator.ActionRW
	}
	if reboot {
		actions |= orchestrator.ActionReboot
	}
	if enableRO {
		actions |= orchestrator.ActionEnableRO
	}
	if enableRW {
		actions |= orchestrator.ActionEnableRW
	}
	if changePW {
		actions |= orchestrator.ActionChangePW
	}
	if erase {
		actions |= orchestrator.ActionErase
	}
	if actions == 0 {
		fmt.Fprintln(os.Stderr, "citadel-updater: no action requested")
		return 0, 1
	}
	return actions, 0
}

// buildOptions consumes the positional arguments the requested actions
// need (old/new password for change_pw, password for enable) and turns
// the erase code string into a uint32.
func buildOptions(actions orchestrator.ActionSet, eraseCode string, positional []string) ([]orchestrator.Option, int) {
	var opts []orchestrator.Option

	if actions&orchestrator.ActionErase != 0 {
		code, err := strconv.ParseUint(eraseCode, 0, 32)
		if err != nil {
			fmt.Fprintf(os.Stderr, "citadel-updater: bad --erase code %q: %v\n", eraseCode, err)
			return nil, 1
		}
		opts = append(opts, orchestrator.WithEraseCode(uint32(code)))
	}

	// image.bin, if present, is consumed first by loadImage; whatever is
	// left is password material. image.bin is only present at all when
	// ro/rw was requested, so only skip positional[0] in that case.
	pw := positional
	if actions&(orchestrator.ActionRO|orchestrator.ActionRW) != 0 && len(pw) > 0 {
		pw = pw[1:]
	}

	if actions&orchestrator.ActionChangePW != 0 {
		switch len(pw) {
		case 1:
			opts = append(opts, orchestrator.WithChangePassword("", pw[0]))
		case 2:
			opts = append(opts, orchestrator.WithChangePassword(pw[0], pw[1]))
		default:
			fmt.Fprintln(os.Stderr, "citadel-updater: --change_pw needs [old_pw] new_pw")
			return nil, 1
		}
	}
	if actions&(orchestrator.ActionEnableRO|orchestrator.ActionEnableRW) != 0 {
		if len(pw) == 0 {
			fmt.Fprintln(os.Stderr, "citadel-updater: enable_ro/enable_rw need pw")
			return nil, 1
		}
		opts = append(opts, orchestrator.WithEnablePassword(pw[len(pw)-1]))
	}

	opts = append(opts, orchestrator.WithLogger(klogLogger{}), orchestrator.WithProgress(progressCallback()))
	return opts, 0
}

// loadImage parses image.bin when an action needs flash contents.
func loadImage(actions orchestrator.ActionSet, positional []string) (*firmware.Image, int) {
	if actions&(orchestrator.ActionRO|orchestrator.ActionRW) == 0 {
		return &firmware.Image{}, 0
	}
	if len(positional) == 0 {
		fmt.Fprintln(os.Stderr, "citadel-updater: --ro/--rw need image.bin")
		return nil, 1
	}
	img, err := firmware.LoadImage(positional[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "citadel-updater: %v\n", err)
		return nil, 1
	}
	return img, 0
}

// progressCallback renders flash-block write progress to stderr.
func progressCallback() update.ProgressFunc {
	var bar *progressbar.ProgressBar
	return func(written, total int) {
		if bar == nil {
			bar = progressbar.DefaultBytes(int64(total), "flashing")
		}
		bar.Set(written)
	}
}

// openDevice is the one seam spec.md §1 explicitly leaves unimplemented:
// the platform-specific native-open vs. proxied-over-IPC decision. A real
// deployment replaces this with a device.Factory for its platform.
func openDevice(path string) (transport.Datagram, error) {
	if path == "" {
		return nil, fmt.Errorf("no --device given")
	}
	return nil, fmt.Errorf("native device open for %q is not implemented by this module; inject a device.Factory for your platform", path)
}

