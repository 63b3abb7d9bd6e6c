package config

import (
	"strings"
	"testing"
)

func TestValidateDefaultsAreClean(t *testing.T) {
	cfg := Default()
	if errs := cfg.Validate(); len(errs) != 0 {
		t.Fatalf("default config should validate cleanly, got %v", errs)
	}
}

func TestValidateRejectsBadGatewayScheme(t *testing.T) {
	cfg := Default()
	cfg.GatewayURL = "http://127.0.0.1:47615/ipc"
	errs := cfg.Validate()
	found := false
	for _, err := range errs {
		if strings.Contains(err.Error(), "scheme must be ws or wss") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected scheme error, got %v", errs)
	}
}

func TestValidateRejectsControlCharsInToken(t *testing.T) {
	cfg := Default()
	cfg.GatewayToken = "tok\x00en"
	errs := cfg.Validate()
	if len(errs) == 0 {
		t.Fatal("control characters in token should be rejected")
	}
}

func TestValidateClampsGraceDelay(t *testing.T) {
	cfg := Default()
	cfg.RelaunchGraceMs = -10
	cfg.Validate()
	if cfg.RelaunchGraceMs != 0 {
		t.Fatalf("negative grace delay should clamp to 0, got %d", cfg.RelaunchGraceMs)
	}

	cfg.RelaunchGraceMs = 60000
	cfg.Validate()
	if cfg.RelaunchGraceMs != 30000 {
		t.Fatalf("oversized grace delay should clamp to 30000, got %d", cfg.RelaunchGraceMs)
	}
}

func TestValidateResetsMalformedBackupExtension(t *testing.T) {
	cfg := Default()
	cfg.BackupExtension = ".aerobak"
	cfg.Validate()
	if cfg.BackupExtension != Default().BackupExtension {
		t.Fatalf("dotted extension should reset to default, got %q", cfg.BackupExtension)
	}
}

func TestValidateClampsLivenessInterval(t *testing.T) {
	cfg := Default()
	cfg.LivenessPollSeconds = 0
	cfg.Validate()
	if cfg.LivenessPollSeconds != 1 {
		t.Fatalf("zero poll interval should clamp to 1, got %d", cfg.LivenessPollSeconds)
	}
}
