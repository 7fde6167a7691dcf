package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempConfig(t *testing.T, yaml string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "dc600.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeTempConfig(t, "dc600:\n  attachment:\n    ip: 10.0.0.5\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.DC600Port != 5999 {
		t.Errorf("expected default dc600 port 5999, got %d", cfg.DC600Port)
	}
	if cfg.JT1078Port != 60001 {
		t.Errorf("expected default jt1078 port 60001, got %d", cfg.JT1078Port)
	}
	if cfg.AttachmentPort != cfg.JT1078Port {
		t.Errorf("expected attachment port to default to jt1078 port")
	}
	if cfg.Timezone.String() != "UTC" {
		t.Errorf("expected default timezone UTC, got %s", cfg.Timezone)
	}
}

func TestLoadRejectsMismatchedAttachmentPort(t *testing.T) {
	path := writeTempConfig(t, "jt1078:\n  port: 60001\ndc600:\n  attachment:\n    ip: 10.0.0.5\n    port: 9999\n")
	_, err := Load(path)
	if err == nil {
		t.Fatalf("expected an error when attachment.port != jt1078.port")
	}
}

func TestLoadCustomTimezone(t *testing.T) {
	path := writeTempConfig(t, "dc600:\n  timezone: Asia/Shanghai\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Timezone.String() != "Asia/Shanghai" {
		t.Errorf("expected Asia/Shanghai, got %s", cfg.Timezone)
	}
}

func TestLoadResourceCapDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Caps.MaxSubPackageAssembliesPerSession != 8 {
		t.Errorf("expected default cap of 8, got %d", cfg.Caps.MaxSubPackageAssembliesPerSession)
	}
	if cfg.Caps.MaxCorrelationEntriesPerSession != 256 {
		t.Errorf("expected default cap of 256, got %d", cfg.Caps.MaxCorrelationEntriesPerSession)
	}
}
