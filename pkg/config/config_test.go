package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Segmentation.Threshold != -320 {
		t.Errorf("Expected threshold -320, got %f", cfg.Segmentation.Threshold)
	}
	if cfg.Segmentation.MinObjectSize != 500 {
		t.Errorf("Expected minObjectSize 500, got %d", cfg.Segmentation.MinObjectSize)
	}
	if cfg.Reconstruction.Level != 0.5 {
		t.Errorf("Expected level 0.5, got %f", cfg.Reconstruction.Level)
	}
	if cfg.Mesh.SmoothingIterations != 20 {
		t.Errorf("Expected 20 smoothing iterations, got %d", cfg.Mesh.SmoothingIterations)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Output.Dir != "results" {
		t.Errorf("Expected default output dir, got %q", cfg.Output.Dir)
	}
}

func TestSaveAndLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := DefaultConfig()
	cfg.Input.Dir = "/data/patient11"
	cfg.Segmentation.Threshold = -500
	cfg.Reconstruction.Closing = false

	if err := SaveConfig(cfg, path); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}

	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if loaded.Input.Dir != "/data/patient11" {
		t.Errorf("Expected input dir to round-trip, got %q", loaded.Input.Dir)
	}
	if loaded.Segmentation.Threshold != -500 {
		t.Errorf("Expected threshold -500, got %f", loaded.Segmentation.Threshold)
	}
	if loaded.Reconstruction.Closing {
		t.Error("Expected closing to be disabled")
	}
}

func TestLoadConfigPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("segmentation:\n  threshold: -400\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Segmentation.Threshold != -400 {
		t.Errorf("Expected threshold -400, got %f", cfg.Segmentation.Threshold)
	}
	if cfg.Segmentation.MinObjectSize != 500 {
		t.Errorf("Expected default minObjectSize to survive, got %d", cfg.Segmentation.MinObjectSize)
	}
}

func TestApplyEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	if err := os.WriteFile(envFile, []byte("CTSLICES_LOG_FILE=/tmp/out/run.log\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CTSLICES_WORKERS", "3")
	t.Setenv("CTSLICES_THRESHOLD", "-250.5")
	t.Cleanup(func() { os.Unsetenv("CTSLICES_LOG_FILE") })

	cfg := DefaultConfig()
	if err := cfg.ApplyEnv(envFile); err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}
	if cfg.Assembly.Workers != 3 {
		t.Errorf("Expected 3 workers, got %d", cfg.Assembly.Workers)
	}
	if cfg.Segmentation.Threshold != -250.5 {
		t.Errorf("Expected threshold -250.5, got %f", cfg.Segmentation.Threshold)
	}
	if cfg.Logging.File != "/tmp/out/run.log" {
		t.Errorf("Expected log file from .env, got %q", cfg.Logging.File)
	}
}

func TestApplyEnvInvalidNumber(t *testing.T) {
	t.Setenv("CTSLICES_WORKERS", "many")
	if err := DefaultConfig().ApplyEnv(); err == nil {
		t.Error("Expected error for non-numeric worker count")
	}
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name   string
		modify func(*Config)
	}{
		{"zero workers", func(c *Config) { c.Assembly.Workers = 0 }},
		{"negative min size", func(c *Config) { c.Segmentation.MinObjectSize = -1 }},
		{"smoothing factor above one", func(c *Config) { c.Mesh.SmoothingFactor = 1.5 }},
		{"missing output", func(c *Config) { c.Mesh.Output = "" }},
	}

	for _, tc := range testCases {
		cfg := DefaultConfig()
		tc.modify(cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected validation error", tc.name)
		}
	}
}
