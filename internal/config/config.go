package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete service configuration.
type Config struct {
	Listen      string            `yaml:"listen"`
	SuspectsDir string            `yaml:"suspects_dir"`
	Camera      CameraConfig      `yaml:"camera"`
	Detector    DetectorConfig    `yaml:"detector"`
	Recognition RecognitionConfig `yaml:"recognition"`
	Stream      StreamConfig      `yaml:"stream"`
	Alerts      AlertsConfig      `yaml:"alerts"`
	Log         LogConfig         `yaml:"log"`
}

// CameraConfig selects and tunes the capture source.
type CameraConfig struct {
	Driver      string        `yaml:"driver"` // ffmpeg, opencv, still
	Device      string        `yaml:"device"` // /dev/video0, rtsp://..., device index, or image path
	Format      string        `yaml:"format"` // ffmpeg input format, e.g. v4l2 (optional)
	FPS         int           `yaml:"fps"`
	ReadTimeout time.Duration `yaml:"read_timeout"`
	RetryDelay  time.Duration `yaml:"retry_delay"`
}

// DetectorConfig describes the external detection engines.
type DetectorConfig struct {
	Python       string        `yaml:"python"`
	Script       string        `yaml:"script"`
	Engines      int           `yaml:"engines"`
	Timeout      time.Duration `yaml:"timeout"`       // per-request engine read timeout
	AcquireWait  time.Duration `yaml:"acquire_wait"`  // how long a caller waits for a free engine
	DetThreshold float64       `yaml:"det_threshold"` // passed through to the engine
	HealthCheck  time.Duration `yaml:"health_check"`  // pool replenish period
}

// RecognitionConfig holds the matching, hysteresis and cooldown policy.
type RecognitionConfig struct {
	SimilarityThreshold float64       `yaml:"similarity_threshold"`
	ConfirmFrames       int           `yaml:"confirm_frames"`
	MinFaceSize         int           `yaml:"min_face_size"`
	AlertCooldown       time.Duration `yaml:"alert_cooldown"`
	Yield               time.Duration `yaml:"yield"`
}

// StreamConfig controls the composited video feed.
type StreamConfig struct {
	FPS         int `yaml:"fps"`
	JPEGQuality int `yaml:"jpeg_quality"`
}

// AlertsConfig lists the optional alert sinks.
type AlertsConfig struct {
	Database string     `yaml:"database"` // PostgreSQL URL; empty keeps history in memory
	History  int        `yaml:"history"`  // in-memory history size
	MQTT     MQTTConfig `yaml:"mqtt"`
}

// MQTTConfig contains MQTT broker settings. An empty broker disables the sink.
type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	Topic    string `yaml:"topic"`
	ClientID string `yaml:"client_id"`
	QoS      byte   `yaml:"qos"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // console, json
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Listen:      "0.0.0.0:8000",
		SuspectsDir: "suspects",
		Camera: CameraConfig{
			Driver:      "ffmpeg",
			Device:      "/dev/video0",
			FPS:         30,
			ReadTimeout: 2 * time.Second,
			RetryDelay:  100 * time.Millisecond,
		},
		Detector: DetectorConfig{
			Python:       "python3",
			Script:       "python/detect_worker.py",
			Engines:      2,
			Timeout:      30 * time.Second,
			AcquireWait:  5 * time.Second,
			DetThreshold: 0.5,
			HealthCheck:  30 * time.Second,
		},
		Recognition: RecognitionConfig{
			SimilarityThreshold: 0.5,
			ConfirmFrames:       3,
			MinFaceSize:         60,
			AlertCooldown:       10 * time.Second,
			Yield:               10 * time.Millisecond,
		},
		Stream: StreamConfig{
			FPS:         30,
			JPEGQuality: 80,
		},
		Alerts: AlertsConfig{
			History: 100,
			MQTT: MQTTConfig{
				Topic:    "lookout/alerts",
				ClientID: "lookout",
			},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads a YAML file over the defaults. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}
