package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		cfg, err := Load(writeConfig(t, "server:\n  api_key: secret\n"))
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if cfg.Server.Port != 8080 {
			t.Errorf("Expected port 8080, got %d", cfg.Server.Port)
		}
		if cfg.Analysis.BaseURL != "http://localhost:5000" {
			t.Errorf("Expected default analysis url, got '%s'", cfg.Analysis.BaseURL)
		}
		if cfg.Analysis.Timeout != 0 {
			t.Errorf("Expected no analysis timeout by default, got %v", cfg.Analysis.Timeout)
		}
		if cfg.Camera.Facing != "environment" {
			t.Errorf("Expected facing 'environment', got '%s'", cfg.Camera.Facing)
		}
		if cfg.Camera.Width != 640 || cfg.Camera.Height != 480 {
			t.Errorf("Expected 640x480, got %dx%d", cfg.Camera.Width, cfg.Camera.Height)
		}
		if cfg.Camera.StartupTimeout != 5*time.Second {
			t.Errorf("Expected 5s startup timeout, got %v", cfg.Camera.StartupTimeout)
		}
		if len(cfg.Decoder.Formats) != len(DefaultFormats) || cfg.Decoder.Formats[0] != "ean_13" {
			t.Errorf("Expected default formats, got %v", cfg.Decoder.Formats)
		}
		if cfg.Storage.Driver != "sqlite" {
			t.Errorf("Expected sqlite driver, got '%s'", cfg.Storage.Driver)
		}
		if cfg.MinIO.Enabled() {
			t.Error("Expected minio to be disabled without an endpoint")
		}
	})

	t.Run("FileValues", func(t *testing.T) {
		path := writeConfig(t, `
analysis:
  base_url: http://analysis.test/
  timeout: 15s
camera:
  device: /dev/video2
  devices:
    user: /dev/video0
  facing: user
  fps: 15
decoder:
  formats: [ean_13, code_128]
storage:
  driver: postgres
`)
		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if cfg.Analysis.BaseURL != "http://analysis.test" {
			t.Errorf("Expected trailing slash trimmed, got '%s'", cfg.Analysis.BaseURL)
		}
		if cfg.Analysis.Timeout != 15*time.Second {
			t.Errorf("Expected 15s timeout, got %v", cfg.Analysis.Timeout)
		}
		if cfg.Camera.Devices["user"] != "/dev/video0" {
			t.Errorf("Expected user device '/dev/video0', got '%s'", cfg.Camera.Devices["user"])
		}
		if cfg.Camera.FPS != 15 {
			t.Errorf("Expected fps 15, got %d", cfg.Camera.FPS)
		}
		if len(cfg.Decoder.Formats) != 2 {
			t.Errorf("Expected 2 formats, got %v", cfg.Decoder.Formats)
		}
	})

	t.Run("EnvOverrides", func(t *testing.T) {
		t.Setenv("DS_ANALYSIS_URL", "http://env.test")
		t.Setenv("DS_SERVER_PORT", "9090")
		t.Setenv("DS_USER_ID", "alice")
		t.Setenv("DS_ANALYSIS_TIMEOUT", "3s")

		cfg, err := Load(writeConfig(t, "analysis:\n  base_url: http://file.test\n"))
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if cfg.Analysis.BaseURL != "http://env.test" {
			t.Errorf("Expected env url, got '%s'", cfg.Analysis.BaseURL)
		}
		if cfg.Server.Port != 9090 {
			t.Errorf("Expected port 9090, got %d", cfg.Server.Port)
		}
		if cfg.Identity.UserID != "alice" {
			t.Errorf("Expected user 'alice', got '%s'", cfg.Identity.UserID)
		}
		if cfg.Analysis.Timeout != 3*time.Second {
			t.Errorf("Expected 3s timeout, got %v", cfg.Analysis.Timeout)
		}
	})

	t.Run("UnknownDriver", func(t *testing.T) {
		_, err := Load(writeConfig(t, "storage:\n  driver: mongo\n"))
		if err == nil {
			t.Fatal("Expected an error for unknown storage driver, got nil")
		}
	})

	t.Run("MissingFile", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		if err == nil {
			t.Fatal("Expected an error for missing file, got nil")
		}
	})
}
