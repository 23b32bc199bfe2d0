package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
	if cfg.Recognition.SimilarityThreshold != 0.5 || cfg.Recognition.ConfirmFrames != 3 ||
		cfg.Recognition.MinFaceSize != 60 || cfg.Recognition.AlertCooldown != 10*time.Second {
		t.Errorf("unexpected recognition defaults: %+v", cfg.Recognition)
	}
	if cfg.Stream.FPS != 30 {
		t.Errorf("expected 30 fps stream default, got %d", cfg.Stream.FPS)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lookout.yaml")
	content := `
listen: 127.0.0.1:9000
camera:
  driver: still
  device: /tmp/face.jpg
recognition:
  confirm_frames: 5
  alert_cooldown: 30s
alerts:
  mqtt:
    broker: tcp://localhost:1883
    qos: 1
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Listen != "127.0.0.1:9000" || cfg.Camera.Driver != "still" {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if cfg.Recognition.ConfirmFrames != 5 || cfg.Recognition.AlertCooldown != 30*time.Second {
		t.Errorf("recognition overrides not applied: %+v", cfg.Recognition)
	}
	// Untouched keys keep their defaults.
	if cfg.Recognition.SimilarityThreshold != 0.5 || cfg.Alerts.MQTT.Topic != "lookout/alerts" {
		t.Errorf("defaults lost: %+v", cfg.Recognition)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"Valid defaults", func(*Config) {}, false},
		{"Unknown driver", func(c *Config) { c.Camera.Driver = "vhs" }, true},
		{"Zero engines", func(c *Config) { c.Detector.Engines = 0 }, true},
		{"Threshold too high", func(c *Config) { c.Recognition.SimilarityThreshold = 1.5 }, true},
		{"Zero confirm frames", func(c *Config) { c.Recognition.ConfirmFrames = 0 }, true},
		{"Negative cooldown", func(c *Config) { c.Recognition.AlertCooldown = -time.Second }, true},
		{"Stream fps out of range", func(c *Config) { c.Stream.FPS = 0 }, true},
		{"Bad jpeg quality", func(c *Config) { c.Stream.JPEGQuality = 101 }, true},
		{"MQTT without topic", func(c *Config) { c.Alerts.MQTT.Broker = "tcp://b:1883"; c.Alerts.MQTT.Topic = "" }, true},
		{"Bad log format", func(c *Config) { c.Log.Format = "xml" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			if err := Validate(&cfg); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
