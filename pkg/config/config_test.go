package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaults(t *testing.T) {
	cfg, err := Default()
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Risk.HighFanInThreshold != 5 {
		t.Errorf("HighFanInThreshold = %d, want 5", cfg.Risk.HighFanInThreshold)
	}
	if cfg.Risk.MediumFanInThreshold != 2 {
		t.Errorf("MediumFanInThreshold = %d, want 2", cfg.Risk.MediumFanInThreshold)
	}
	if cfg.Risk.CrossNamespaceCount != 3 {
		t.Errorf("CrossNamespaceCount = %d, want 3", cfg.Risk.CrossNamespaceCount)
	}
	if cfg.Recovery.CapSeconds != 3600 {
		t.Errorf("CapSeconds = %d, want 3600", cfg.Recovery.CapSeconds)
	}
	if cfg.Recovery.BaseFor("StatefulSet") != 300 {
		t.Errorf("BaseFor(StatefulSet) = %d, want 300", cfg.Recovery.BaseFor("StatefulSet"))
	}
	if cfg.Recovery.BaseFor("SomethingUnknown") != cfg.Recovery.DefaultBaseSeconds {
		t.Error("unknown kinds should fall back to the default base")
	}
	if cfg.Plan.CyclePolicy != "warn" {
		t.Errorf("CyclePolicy = %q, want warn", cfg.Plan.CyclePolicy)
	}
}

func TestLoadOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sounder.cue")
	override := `
risk: highFanInThreshold: 10
plan: cyclePolicy: "block"
`
	if err := os.WriteFile(path, []byte(override), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Risk.HighFanInThreshold != 10 {
		t.Errorf("HighFanInThreshold = %d, want the override 10", cfg.Risk.HighFanInThreshold)
	}
	if cfg.Plan.CyclePolicy != "block" {
		t.Errorf("CyclePolicy = %q, want block", cfg.Plan.CyclePolicy)
	}
	// Untouched settings keep their defaults.
	if cfg.Risk.MediumFanInThreshold != 2 {
		t.Errorf("MediumFanInThreshold = %d, want the default 2", cfg.Risk.MediumFanInThreshold)
	}
}

func TestLoadKindTierOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sounder.cue")
	override := `order: kindTiers: ExternalSecret: "config"`
	if err := os.WriteFile(path, []byte(override), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Order.KindTiers["ExternalSecret"] != "config" {
		t.Errorf("KindTiers = %v, want ExternalSecret mapped to config", cfg.Order.KindTiers)
	}

	if err := os.WriteFile(path, []byte(`order: kindTiers: Widget: "galaxy"`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("a tier name outside the schema disjunction must fail validation")
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sounder.cue")
	if err := os.WriteFile(path, []byte(`plan: cyclePolicy: "explode"`), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path); err == nil {
		t.Fatal("a cycle policy outside the schema disjunction must fail validation")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/sounder.cue"); err == nil {
		t.Fatal("a missing config file must be an error, not a silent default")
	}
}
