package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	home := t.TempDir()

	cfg, err := Load(home)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.StateDir != filepath.Join(home, "state") {
		t.Errorf("expected state dir under home, got %s", cfg.StateDir)
	}
	if cfg.Backend != BackendFile {
		t.Errorf("expected file backend, got %s", cfg.Backend)
	}
	if cfg.Gate.EngagementThreshold != 0.60 || cfg.Gate.ActionThreshold != 0.70 || cfg.Gate.MaxRounds != 3 {
		t.Errorf("unexpected gate defaults: %+v", cfg.Gate)
	}
	if cfg.Staleness.PointerMaxAge != 4*time.Hour || !cfg.Staleness.CheckLiveness {
		t.Errorf("unexpected staleness defaults: %+v", cfg.Staleness)
	}
	if cfg.Log.Level != "warn" || cfg.Log.JSON {
		t.Errorf("unexpected log defaults: %+v", cfg.Log)
	}
	if !cfg.AcceptGitRoot {
		t.Error("expected .git roots to be accepted by default")
	}
}

func TestLoad_FileAndEnv(t *testing.T) {
	home := t.TempDir()
	content := `backend: sqlite
gate:
  action_threshold: 0.8
  max_rounds: 5
staleness:
  pointer_max_age: 30m
  check_liveness: false
`
	if err := os.WriteFile(filepath.Join(home, "config.yaml"), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("EPISTEME_GATE_MAX_ROUNDS", "2")
	t.Setenv("EPISTEME_LOG_LEVEL", "debug")

	cfg, err := Load(home)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Backend != BackendSQLite {
		t.Errorf("expected sqlite backend, got %s", cfg.Backend)
	}
	if cfg.Gate.ActionThreshold != 0.8 {
		t.Errorf("expected action threshold from file, got %v", cfg.Gate.ActionThreshold)
	}
	if cfg.Gate.MaxRounds != 2 {
		t.Errorf("expected env to override file, got %d", cfg.Gate.MaxRounds)
	}
	if cfg.Gate.EngagementThreshold != 0.60 {
		t.Errorf("expected default engagement threshold, got %v", cfg.Gate.EngagementThreshold)
	}
	if cfg.Staleness.PointerMaxAge != 30*time.Minute || cfg.Staleness.CheckLiveness {
		t.Errorf("unexpected staleness: %+v", cfg.Staleness)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("expected debug log level, got %s", cfg.Log.Level)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "unknown backend", content: "backend: postgres\n"},
		{name: "zero rounds", content: "gate:\n  max_rounds: 0\n"},
		{name: "malformed yaml", content: "gate: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			home := t.TempDir()
			if err := os.WriteFile(filepath.Join(home, "config.yaml"), []byte(tt.content), 0644); err != nil {
				t.Fatal(err)
			}
			if _, err := Load(home); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestDefaultHome(t *testing.T) {
	t.Setenv(EnvHome, "/tmp/episteme-home")
	home, err := DefaultHome()
	if err != nil {
		t.Fatalf("DefaultHome failed: %v", err)
	}
	if home != "/tmp/episteme-home" {
		t.Errorf("expected override, got %s", home)
	}
}

func TestExpandHome(t *testing.T) {
	userHome, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	if got := expandHome("~/state"); got != filepath.Join(userHome, "state") {
		t.Errorf("expandHome(~/state) = %s", got)
	}
	if got := expandHome("/abs/state"); got != "/abs/state" {
		t.Errorf("expandHome(/abs/state) = %s", got)
	}
}
