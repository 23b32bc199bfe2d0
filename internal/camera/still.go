package camera

import (
	"context"
	"fmt"
	"image"
	"time"

	"github.com/disintegration/imaging"

	"github.com/andresmejia3/lookout/internal/types"
)

// StillSource replays a single image file at a fixed rate. It is useful for
// demos and for running the pipeline without a camera attached.
type StillSource struct {
	path     string
	interval time.Duration
	img      image.Image
	last     time.Time
}

func NewStillSource(path string, fps int) *StillSource {
	if fps <= 0 {
		fps = 30
	}
	return &StillSource{path: path, interval: time.Second / time.Duration(fps)}
}

func (s *StillSource) Name() string { return "still:" + s.path }

func (s *StillSource) Open(ctx context.Context) error {
	img, err := imaging.Open(s.path, imaging.AutoOrientation(true))
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrCameraUnavailable, err)
	}
	s.img = img
	return nil
}

func (s *StillSource) Read(ctx context.Context) (image.Image, error) {
	if s.img == nil {
		return nil, fmt.Errorf("%w: source not open", types.ErrCaptureRead)
	}
	if wait := s.interval - time.Since(s.last); wait > 0 && !s.last.IsZero() {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	s.last = time.Now()
	return s.img, nil
}

func (s *StillSource) Close() error {
	s.img = nil
	return nil
}
