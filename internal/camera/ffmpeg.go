package camera

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os/exec"
	"time"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog/log"

	"github.com/andresmejia3/lookout/internal/config"
	"github.com/andresmejia3/lookout/internal/types"
	"github.com/andresmejia3/lookout/internal/utils"
)

// maxFrameBytes bounds one MJPEG frame on the ffmpeg pipe.
const maxFrameBytes = 16 << 20

// FFmpegSource decodes a V4L2 device, RTSP URL or file through an ffmpeg
// child process emitting MJPEG on stdout.
type FFmpegSource struct {
	cfg config.CameraConfig
	box *mailbox

	ctx  context.Context
	cmd  *utils.SafeCommand
	done chan struct{} // closed when the current ffmpeg generation exits
	err  error         // exit status of the last generation, valid after done
}

func NewFFmpegSource(cfg config.CameraConfig) *FFmpegSource {
	return &FFmpegSource{cfg: cfg, box: newMailbox()}
}

func (s *FFmpegSource) Name() string { return "ffmpeg:" + s.cfg.Device }

// Open starts ffmpeg and waits up to the read timeout for the first frame.
// A process that exits before producing anything means the device is unusable.
func (s *FFmpegSource) Open(ctx context.Context) error {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return fmt.Errorf("%w: ffmpeg not found in PATH", types.ErrCameraUnavailable)
	}
	s.ctx = ctx
	if err := s.start(); err != nil {
		return fmt.Errorf("%w: %v", types.ErrCameraUnavailable, err)
	}

	timer := time.NewTimer(s.cfg.ReadTimeout)
	defer timer.Stop()
	select {
	case <-s.box.ready:
		// put the signal back for the first Read
		select {
		case s.box.ready <- struct{}{}:
		default:
		}
		return nil
	case <-s.done:
		if s.box.take() != nil {
			return nil
		}
		return fmt.Errorf("%w: ffmpeg exited: %v: %s", types.ErrCameraUnavailable, s.err, s.cmd.Logs())
	case <-timer.C:
		log.Warn().Str("camera", s.Name()).Msg("no frame yet, continuing anyway")
		return nil
	case <-ctx.Done():
		s.Close()
		return ctx.Err()
	}
}

func (s *FFmpegSource) start() error {
	cmd := utils.NewFFmpegCmd(s.ctx, utils.CaptureArgs{
		Device: s.cfg.Device,
		Format: s.cfg.Format,
		FPS:    s.cfg.FPS,
	})
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	done := make(chan struct{})
	s.cmd, s.done = cmd, done
	go func() {
		pump(stdout, s.box)
		err := cmd.Wait()
		s.err = err
		close(done)
	}()
	return nil
}

// pump splits the MJPEG stream and posts every decodable frame to the mailbox.
func pump(r io.Reader, box *mailbox) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1<<20), maxFrameBytes)
	scanner.Split(utils.SplitJpeg)

	for scanner.Scan() {
		img, err := imaging.Decode(bytes.NewReader(scanner.Bytes()))
		if err != nil {
			log.Debug().Err(err).Msg("skipping corrupt mjpeg frame")
			continue
		}
		box.Put(img)
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, io.ErrClosedPipe) {
		log.Debug().Err(err).Msg("mjpeg stream ended")
	}
}

// Read returns the newest frame. If ffmpeg has exited it is restarted and the
// call reports ErrCaptureRead so the caller backs off.
func (s *FFmpegSource) Read(ctx context.Context) (image.Image, error) {
	if s.done == nil {
		return nil, fmt.Errorf("%w: source not open", types.ErrCaptureRead)
	}

	select {
	case <-s.done:
		if img := s.box.take(); img != nil {
			return img, nil
		}
		log.Warn().Err(s.err).Str("camera", s.Name()).Str("ffmpeg_logs", s.cmd.Logs()).Msg("ffmpeg exited, restarting")
		if err := s.start(); err != nil {
			return nil, fmt.Errorf("%w: restart: %v", types.ErrCaptureRead, err)
		}
		return nil, fmt.Errorf("%w: ffmpeg restarted", types.ErrCaptureRead)
	default:
	}

	rctx, cancel := context.WithTimeout(ctx, s.cfg.ReadTimeout)
	defer cancel()
	if img := s.box.Get(rctx, s.done); img != nil {
		return img, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return nil, fmt.Errorf("%w: no frame within %s", types.ErrCaptureRead, s.cfg.ReadTimeout)
}

func (s *FFmpegSource) Close() error {
	if s.cmd == nil || s.cmd.Process == nil {
		return nil
	}
	select {
	case <-s.done:
		return nil
	default:
	}
	s.cmd.Process.Kill()
	<-s.done
	if dropped := s.box.Dropped(); dropped > 0 {
		log.Debug().Uint64("dropped", dropped).Str("camera", s.Name()).Msg("frames superseded before read")
	}
	return nil
}
