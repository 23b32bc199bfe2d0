// Package pipeline runs the capture, inference and compositing loops around
// the shared frame and detection state.
package pipeline

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog/log"

	"github.com/andresmejia3/lookout/internal/camera"
	"github.com/andresmejia3/lookout/internal/state"
	"github.com/andresmejia3/lookout/internal/types"
)

const DefaultRetryDelay = 100 * time.Millisecond

// CaptureLoop copies frames from a camera source into the shared frame state
// as fast as the source delivers them. Nothing is queued.
type CaptureLoop struct {
	src        camera.Source
	frames     *state.FrameState
	retryDelay time.Duration

	seq      atomic.Uint64
	failures atomic.Uint64
}

func NewCaptureLoop(src camera.Source, frames *state.FrameState, retryDelay time.Duration) *CaptureLoop {
	if retryDelay <= 0 {
		retryDelay = DefaultRetryDelay
	}
	return &CaptureLoop{src: src, frames: frames, retryDelay: retryDelay}
}

// Run captures until ctx is cancelled. It returns ErrCameraUnavailable if the
// source cannot be opened; read failures are retried forever.
func (c *CaptureLoop) Run(ctx context.Context) error {
	logger := log.With().Str("camera", c.src.Name()).Logger()

	if err := c.src.Open(ctx); err != nil {
		logger.Error().Err(err).Msg("CameraUnavailable: could not open capture source")
		if errors.Is(err, types.ErrCameraUnavailable) {
			return err
		}
		return errors.Join(types.ErrCameraUnavailable, err)
	}
	defer c.src.Close()
	logger.Info().Msg("capture started")

	failing := false
	for {
		if ctx.Err() != nil {
			logger.Info().Uint64("frames", c.seq.Load()).Msg("capture stopped")
			return nil
		}

		img, err := c.src.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			c.failures.Add(1)
			if !failing {
				logger.Warn().Err(err).Msg("frame read failed, retrying")
				failing = true
			} else {
				logger.Debug().Err(err).Msg("frame read failed")
			}
			sleep(ctx, c.retryDelay)
			continue
		}
		if failing {
			logger.Info().Msg("capture recovered")
			failing = false
		}

		// The source may reuse its buffer; the shared frame must be independent.
		cp := imaging.Clone(img)
		b := cp.Bounds()
		c.frames.Store(&types.Frame{
			Image:      cp,
			Width:      b.Dx(),
			Height:     b.Dy(),
			CapturedAt: time.Now(),
			Seq:        c.seq.Add(1),
		})
	}
}

// Captured returns the number of frames stored so far.
func (c *CaptureLoop) Captured() uint64 { return c.seq.Load() }

// Failures returns the number of failed reads.
func (c *CaptureLoop) Failures() uint64 { return c.failures.Load() }

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
