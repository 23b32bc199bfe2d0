package pipeline

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/disintegration/imaging"

	"github.com/andresmejia3/lookout/internal/render"
	"github.com/andresmejia3/lookout/internal/state"
)

// Compositor produces annotated JPEG frames for viewers. Each viewer runs its
// own Run call; viewers share nothing but the two state holders.
type Compositor struct {
	frames  *state.FrameState
	dets    *state.DetectionState
	fps     int
	quality int
	idle    time.Duration

	viewers atomic.Int64
}

func NewCompositor(frames *state.FrameState, dets *state.DetectionState, fps, quality int) *Compositor {
	if fps <= 0 {
		fps = 30
	}
	if quality <= 0 || quality > 100 {
		quality = 80
	}
	return &Compositor{frames: frames, dets: dets, fps: fps, quality: quality, idle: 10 * time.Millisecond}
}

// Viewers returns the number of active Run calls.
func (c *Compositor) Viewers() int64 { return c.viewers.Load() }

// Run emits frames until ctx is cancelled or emit fails. It returns emit's error, or nil on cancellation.
func (c *Compositor) Run(ctx context.Context, emit func([]byte) error) error {
	c.viewers.Add(1)
	defer c.viewers.Add(-1)

	interval := time.Second / time.Duration(c.fps)
	var (
		fps         int
		windowCount int
		windowStart = time.Now()
	)

	for ctx.Err() == nil {
		frame := c.frames.Snapshot()
		if frame == nil {
			sleep(ctx, c.idle)
			continue
		}
		snap := c.dets.Snapshot()

		started := time.Now()
		canvas := imaging.Clone(frame.Image)
		render.Annotate(canvas, snap.Detections, fps)

		data, err := render.EncodeJPEG(canvas, c.quality)
		if err != nil {
			return err
		}
		if err := emit(data); err != nil {
			return err
		}

		windowCount++
		if now := time.Now(); now.Sub(windowStart) >= time.Second {
			fps = windowCount
			windowCount = 0
			windowStart = now
		}

		sleep(ctx, interval-time.Since(started))
	}
	return nil
}
