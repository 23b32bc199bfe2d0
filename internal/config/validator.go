package config

import (
	"fmt"
	"strings"
)

var (
	validDrivers    = map[string]bool{"ffmpeg": true, "opencv": true, "still": true}
	validLogFormats = map[string]bool{"console": true, "json": true}
)

// Validate checks ranges and enumerations. It does not touch the filesystem.
func Validate(cfg *Config) error {
	if cfg.Listen == "" {
		return fmt.Errorf("listen address is required")
	}
	if strings.TrimSpace(cfg.SuspectsDir) == "" {
		return fmt.Errorf("suspects_dir is required")
	}

	if !validDrivers[cfg.Camera.Driver] {
		return fmt.Errorf("camera.driver must be one of ffmpeg, opencv, still (got %q)", cfg.Camera.Driver)
	}
	if cfg.Camera.Device == "" {
		return fmt.Errorf("camera.device is required")
	}
	if cfg.Camera.FPS <= 0 {
		return fmt.Errorf("camera.fps must be > 0, got %d", cfg.Camera.FPS)
	}
	if cfg.Camera.ReadTimeout <= 0 || cfg.Camera.RetryDelay <= 0 {
		return fmt.Errorf("camera.read_timeout and camera.retry_delay must be positive")
	}

	if cfg.Detector.Engines < 1 {
		return fmt.Errorf("detector.engines must be >= 1, got %d", cfg.Detector.Engines)
	}
	if cfg.Detector.Timeout <= 0 || cfg.Detector.AcquireWait <= 0 {
		return fmt.Errorf("detector.timeout and detector.acquire_wait must be positive")
	}

	r := cfg.Recognition
	if r.SimilarityThreshold < -1 || r.SimilarityThreshold >= 1 {
		return fmt.Errorf("recognition.similarity_threshold must be in [-1, 1), got %f", r.SimilarityThreshold)
	}
	if r.ConfirmFrames < 1 {
		return fmt.Errorf("recognition.confirm_frames must be >= 1, got %d", r.ConfirmFrames)
	}
	if r.MinFaceSize < 0 {
		return fmt.Errorf("recognition.min_face_size must be >= 0, got %d", r.MinFaceSize)
	}
	if r.AlertCooldown < 0 || r.Yield < 0 {
		return fmt.Errorf("recognition.alert_cooldown and recognition.yield must not be negative")
	}

	if cfg.Stream.FPS <= 0 || cfg.Stream.FPS > 120 {
		return fmt.Errorf("stream.fps must be in 1..120, got %d", cfg.Stream.FPS)
	}
	if cfg.Stream.JPEGQuality < 1 || cfg.Stream.JPEGQuality > 100 {
		return fmt.Errorf("stream.jpeg_quality must be in 1..100, got %d", cfg.Stream.JPEGQuality)
	}

	if cfg.Alerts.MQTT.Broker != "" {
		if cfg.Alerts.MQTT.Topic == "" {
			return fmt.Errorf("alerts.mqtt.topic is required when a broker is set")
		}
		if cfg.Alerts.MQTT.QoS > 2 {
			return fmt.Errorf("alerts.mqtt.qos must be 0, 1 or 2, got %d", cfg.Alerts.MQTT.QoS)
		}
	}

	if !validLogFormats[cfg.Log.Format] {
		return fmt.Errorf("log.format must be console or json (got %q)", cfg.Log.Format)
	}
	return nil
}
