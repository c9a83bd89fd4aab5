package main

import (
	"testing"

	"github.com/google/citadel-updater/orchestrator"
)

func applyOptions(opts []orchestrator.Option) orchestrator.Config {
	var cfg orchestrator.Config
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

func TestBuildActionsNoneRequestedIsAnError(t *testing.T) {
	actions, exitCode := buildActions(false, false, false, false, false, false, false, false)
	if exitCode == 0 {
		t.Fatalf("exitCode = 0, want nonzero when nothing is requested")
	}
	if actions != 0 {
		t.Errorf("actions = %v, want 0", actions)
	}
}

func TestBuildActionsCombinesFlags(t *testing.T) {
	actions, exitCode := buildActions(true, false, true, true, false, false, false, false)
	if exitCode != 0 {
		t.Fatalf("exitCode = %d, want 0", exitCode)
	}
	want := orchestrator.ActionVersion | orchestrator.ActionRW | orchestrator.ActionReboot
	if actions != want {
		t.Errorf("actions = %v, want %v", actions, want)
	}
}

func TestBuildOptionsChangePasswordWithoutImageUsesBothPositionals(t *testing.T) {
	// --change_pw old_pw new_pw, no --ro/--rw: both positionals are
	// password material, neither is an image path.
	actions := orchestrator.ActionChangePW
	opts, exitCode := buildOptions(actions, "", []string{"old_pw", "new_pw"})
	if exitCode != 0 {
		t.Fatalf("exitCode = %d, want 0", exitCode)
	}
	cfg := applyOptions(opts)
	if cfg.OldPassword != "old_pw" || cfg.NewPassword != "new_pw" {
		t.Errorf("OldPassword/NewPassword = %q/%q, want old_pw/new_pw", cfg.OldPassword, cfg.NewPassword)
	}
}

func TestBuildOptionsChangePasswordWithImageSkipsFirstPositional(t *testing.T) {
	// --rw --change_pw image.bin old_pw new_pw: positional[0] is the image,
	// consumed separately by loadImage.
	actions := orchestrator.ActionRW | orchestrator.ActionChangePW
	opts, exitCode := buildOptions(actions, "", []string{"image.bin", "old_pw", "new_pw"})
	if exitCode != 0 {
		t.Fatalf("exitCode = %d, want 0", exitCode)
	}
	cfg := applyOptions(opts)
	if cfg.OldPassword != "old_pw" || cfg.NewPassword != "new_pw" {
		t.Errorf("OldPassword/NewPassword = %q/%q, want old_pw/new_pw", cfg.OldPassword, cfg.NewPassword)
	}
}

func TestBuildOptionsChangePasswordSinglePositionalIsNewOnly(t *testing.T) {
	actions := orchestrator.ActionChangePW
	opts, exitCode := buildOptions(actions, "", []string{"new_pw"})
	if exitCode != 0 {
		t.Fatalf("exitCode = %d, want 0", exitCode)
	}
	cfg := applyOptions(opts)
	if cfg.OldPassword != "" || cfg.NewPassword != "new_pw" {
		t.Errorf("OldPassword/NewPassword = %q/%q, want \"\"/new_pw", cfg.OldPassword, cfg.NewPassword)
	}
}

func TestBuildOptionsEnablePasswordWithoutImage(t *testing.T) {
	actions := orchestrator.ActionEnableRW
	opts, exitCode := buildOptions(actions, "", []string{"pw"})
	if exitCode != 0 {
		t.Fatalf("exitCode = %d, want 0", exitCode)
	}
	cfg := applyOptions(opts)
	if cfg.EnablePassword != "pw" {
		t.Errorf("EnablePassword = %q, want pw", cfg.EnablePassword)
	}
}

func TestBuildOptionsEnableMissingPasswordFails(t *testing.T) {
	actions := orchestrator.ActionEnableRO
	_, exitCode := buildOptions(actions, "", nil)
	if exitCode == 0 {
		t.Fatal("exitCode = 0, want nonzero when enable has no password")
	}
}

func TestBuildOptionsEraseCodeParsed(t *testing.T) {
	actions := orchestrator.ActionErase
	opts, exitCode := buildOptions(actions, "0xDEADBEEF", nil)
	if exitCode != 0 {
		t.Fatalf("exitCode = %d, want 0", exitCode)
	}
	cfg := applyOptions(opts)
	if cfg.EraseCode != 0xDEADBEEF {
		t.Errorf("EraseCode = %#x, want 0xDEADBEEF", cfg.EraseCode)
	}
}

func TestBuildOptionsEraseCodeBadFails(t *testing.T) {
	actions := orchestrator.ActionErase
	_, exitCode := buildOptions(actions, "not-a-number", nil)
	if exitCode == 0 {
		t.Fatal("exitCode = 0, want nonzero for an unparseable erase code")
	}
}

func TestLoadImageSkippedWhenNeitherRoNorRwRequested(t *testing.T) {
	img, exitCode := loadImage(orchestrator.ActionVersion, nil)
	if exitCode != 0 {
		t.Fatalf("exitCode = %d, want 0", exitCode)
	}
	if img == nil {
		t.Error("loadImage() image = nil, want a usable placeholder")
	}
}

func TestLoadImageRequiresPathWhenRwRequested(t *testing.T) {
	_, exitCode := loadImage(orchestrator.ActionRW, nil)
	if exitCode == 0 {
		t.Fatal("exitCode = 0, want nonzero when --rw has no image.bin")
	}
}
