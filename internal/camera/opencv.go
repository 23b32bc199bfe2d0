//go:build opencv

package camera

import (
	"context"
	"fmt"
	"image"
	"strconv"

	"gocv.io/x/gocv"

	"github.com/andresmejia3/lookout/internal/config"
	"github.com/andresmejia3/lookout/internal/types"
)

// OpenCVSource reads frames through gocv's VideoCapture.
type OpenCVSource struct {
	cfg     config.CameraConfig
	capture *gocv.VideoCapture
	mat     gocv.Mat
}

func NewOpenCVSource(cfg config.CameraConfig) *OpenCVSource {
	return &OpenCVSource{cfg: cfg}
}

func (s *OpenCVSource) Name() string { return "opencv:" + s.cfg.Device }

func (s *OpenCVSource) Open(ctx context.Context) error {
	// A numeric device selects a local camera index, anything else is a URL or file.
	var device interface{} = s.cfg.Device
	if idx, err := strconv.Atoi(s.cfg.Device); err == nil {
		device = idx
	}

	capture, err := gocv.OpenVideoCapture(device)
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrCameraUnavailable, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return fmt.Errorf("%w: video capture is not opened", types.ErrCameraUnavailable)
	}

	// Keep only the newest frame in the driver queue
	capture.Set(gocv.VideoCaptureBufferSize, 1)
	if s.cfg.FPS > 0 {
		capture.Set(gocv.VideoCaptureFPS, float64(s.cfg.FPS))
	}

	s.capture = capture
	s.mat = gocv.NewMat()
	return nil
}

// Read blocks inside OpenCV; the driver's own timeout bounds it.
func (s *OpenCVSource) Read(ctx context.Context) (image.Image, error) {
	if s.capture == nil {
		return nil, fmt.Errorf("%w: source not open", types.ErrCaptureRead)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !s.capture.Read(&s.mat) || s.mat.Empty() {
		return nil, fmt.Errorf("%w: empty frame", types.ErrCaptureRead)
	}
	img, err := s.mat.ToImage()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrCaptureRead, err)
	}
	return img, nil
}

func (s *OpenCVSource) Close() error {
	if s.capture == nil {
		return nil
	}
	s.mat.Close()
	err := s.capture.Close()
	s.capture = nil
	return err
}
