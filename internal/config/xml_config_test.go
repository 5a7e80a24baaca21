package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadConfigFirstRunMatchesReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, DefaultConfigFile)

	first, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("First load failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("Expected config file to be created: %v", err)
	}

	// Relative storage paths must anchor to the config directory on
	// the very first run, not the process working directory.
	if !filepath.IsAbs(first.Storage.DataDirectory) {
		t.Errorf("Expected absolute data directory, got %q", first.Storage.DataDirectory)
	}
	if !strings.HasPrefix(first.Storage.DatabaseFile, dir) {
		t.Errorf("Expected database under %q, got %q", dir, first.Storage.DatabaseFile)
	}

	second, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	if first.Storage.DataDirectory != second.Storage.DataDirectory {
		t.Errorf("First run resolved %q, reload resolved %q",
			first.Storage.DataDirectory, second.Storage.DataDirectory)
	}
	if first.Server.Port != second.Server.Port {
		t.Errorf("Port drifted between runs: %d vs %d", first.Server.Port, second.Server.Port)
	}
}

func TestLoadConfigEnvOverridesOnFirstRun(t *testing.T) {
	t.Setenv("PORT", "9100")
	t.Setenv("PLC_SIMULATION", "true")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), DefaultConfigFile))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Port != 9100 {
		t.Errorf("Expected PORT override, got %d", cfg.Server.Port)
	}
	if !cfg.PLC.SimulationMode {
		t.Error("Expected PLC_SIMULATION override")
	}
}
