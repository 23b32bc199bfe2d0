// Package camera provides the frame sources the capture loop reads from.
package camera

import (
	"context"
	"fmt"
	"image"

	"github.com/andresmejia3/lookout/internal/config"
)

// Source is a live image feed. Read blocks until a frame arrives, the
// source's read timeout passes, or ctx is cancelled. Implementations are
// used from a single goroutine.
type Source interface {
	Name() string
	Open(ctx context.Context) error
	Read(ctx context.Context) (image.Image, error)
	Close() error
}

// New builds the source selected by cfg.Driver.
func New(cfg config.CameraConfig) (Source, error) {
	switch cfg.Driver {
	case "ffmpeg":
		return NewFFmpegSource(cfg), nil
	case "opencv":
		return NewOpenCVSource(cfg), nil
	case "still":
		return NewStillSource(cfg.Device, cfg.FPS), nil
	default:
		return nil, fmt.Errorf("unknown camera driver %q", cfg.Driver)
	}
}
