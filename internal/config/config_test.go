package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestExpandPath(t *testing.T) {
	t.Parallel()
	got := ExpandPath("~/engrams.db")
	if got == "~/engrams.db" {
		t.Fatalf("expected home-expanded path, got %q", got)
	}
	if !strings.Contains(got, "engrams.db") {
		t.Fatalf("expected expanded path to contain file name, got %q", got)
	}
}

func TestDefault_IsValid(t *testing.T) {
	t.Parallel()
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default().Validate() error = %v", err)
	}
}

func TestValidate_ThresholdOrdering(t *testing.T) {
	t.Parallel()
	cfg := Default()
	cfg.HighStrengthThreshold = 0.4
	cfg.MediumStrengthThreshold = 0.8
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for inverted strength thresholds, got nil")
	}

	cfg = Default()
	cfg.MediumStrengthThreshold = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for zero medium threshold, got nil")
	}
}

func TestValidate_BreathInterval(t *testing.T) {
	t.Parallel()
	cfg := Default()
	cfg.BreathIntervalSeconds = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for sub-second breath interval, got nil")
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	t.Parallel()
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BreathIntervalSeconds != 30 {
		t.Fatalf("expected default breath interval 30, got %d", cfg.BreathIntervalSeconds)
	}
}

func TestLoad_OverridesDefaults(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "engram-mcp.yaml")
	body := "breath_interval_seconds: 2\nhigh_strength_threshold: 0.9\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BreathIntervalSeconds != 2 {
		t.Fatalf("expected breath interval 2, got %d", cfg.BreathIntervalSeconds)
	}
	if cfg.HighStrengthThreshold != 0.9 {
		t.Fatalf("expected high threshold 0.9, got %v", cfg.HighStrengthThreshold)
	}
}
