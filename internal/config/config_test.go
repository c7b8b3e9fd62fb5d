package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Dedup.SummaryThreshold != 0.78 || cfg.Dedup.WindowDays != 21 {
		t.Errorf("dedup defaults wrong: %+v", cfg.Dedup)
	}
	if cfg.Limits.MaxRunArchives != 1000 || cfg.Limits.MaxPageSize != 100 {
		t.Errorf("limit defaults wrong: %+v", cfg.Limits)
	}
}

func TestLoadFileOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "db_path: /tmp/x.db\ndedup:\n  summary_threshold: 0.9\n  combined_summary_threshold: 0.7\n  combined_title_threshold: 0.6\n  window_days: 14\nlimits:\n  max_run_archives: 500\n  max_page_size: 50\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DBPath != "/tmp/x.db" {
		t.Errorf("DBPath = %q", cfg.DBPath)
	}
	if cfg.Dedup.SummaryThreshold != 0.9 || cfg.Dedup.WindowDays != 14 {
		t.Errorf("dedup overrides not applied: %+v", cfg.Dedup)
	}
	if cfg.Limits.MaxRunArchives != 500 {
		t.Errorf("limits override not applied: %+v", cfg.Limits)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("db_path: /tmp/file.db\n"), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	t.Setenv(EnvDBPath, "/tmp/env.db")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DBPath != "/tmp/env.db" {
		t.Errorf("DBPath = %q, want env override", cfg.DBPath)
	}
}

func TestLoadRejectsBadThresholds(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("dedup:\n  summary_threshold: 1.5\n"), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected validation error for threshold > 1")
	}
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(":\nnot yaml: ["), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected parse error")
	}
}
