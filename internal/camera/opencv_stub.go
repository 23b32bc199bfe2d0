//go:build !opencv

package camera

import (
	"context"
	"fmt"
	"image"

	"github.com/andresmejia3/lookout/internal/config"
	"github.com/andresmejia3/lookout/internal/types"
)

// OpenCVSource is unavailable in builds without the opencv tag.
type OpenCVSource struct {
	cfg config.CameraConfig
}

func NewOpenCVSource(cfg config.CameraConfig) *OpenCVSource {
	return &OpenCVSource{cfg: cfg}
}

func (s *OpenCVSource) Name() string { return "opencv:" + s.cfg.Device }

func (s *OpenCVSource) Open(ctx context.Context) error {
	return fmt.Errorf("%w: built without opencv support (rebuild with -tags opencv)", types.ErrCameraUnavailable)
}

func (s *OpenCVSource) Read(ctx context.Context) (image.Image, error) {
	return nil, fmt.Errorf("%w: source not open", types.ErrCaptureRead)
}

func (s *OpenCVSource) Close() error { return nil }
