package pipeline

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/andresmejia3/lookout/internal/alert"
	"github.com/andresmejia3/lookout/internal/face"
	"github.com/andresmejia3/lookout/internal/state"
	"github.com/andresmejia3/lookout/internal/types"
)

// RecordSource supplies the suspects to match against.
type RecordSource interface {
	Snapshot() []types.SuspectRecord
}

// Publisher accepts fired alerts without blocking.
type Publisher interface {
	Publish(ev types.AlertEvent) bool
}

// InferenceConfig is the recognition policy.
type InferenceConfig struct {
	SimilarityThreshold float64
	MinFaceSize         int
	Yield               time.Duration // pause after each cycle
	Idle                time.Duration // pause while no frame is available
}

// InferenceLoop runs detection on the newest frame, classifies the faces and
// replaces the shared detection state once per cycle.
type InferenceLoop struct {
	cfg       InferenceConfig
	frames    *state.FrameState
	dets      *state.DetectionState
	detector  face.Detector
	suspects  RecordSource
	tracker   *alert.Tracker
	publisher Publisher

	now func() time.Time

	cycles   atomic.Uint64
	failures atomic.Uint64
	alerts   atomic.Uint64
}

func NewInferenceLoop(
	cfg InferenceConfig,
	frames *state.FrameState,
	dets *state.DetectionState,
	detector face.Detector,
	suspects RecordSource,
	tracker *alert.Tracker,
	publisher Publisher,
) *InferenceLoop {
	if cfg.Idle <= 0 {
		cfg.Idle = 10 * time.Millisecond
	}
	return &InferenceLoop{
		cfg:       cfg,
		frames:    frames,
		dets:      dets,
		detector:  detector,
		suspects:  suspects,
		tracker:   tracker,
		publisher: publisher,
		now:       time.Now,
	}
}

// Label texts shown on the stream and returned by the status query.
func SuspectLabel(name string, sim float64) string {
	return fmt.Sprintf("SUSPECT: %s (%.2f)", name, sim)
}

const VisitorLabel = "Visitor"

// Run loops until ctx is cancelled. A failing cycle never stops the loop.
func (l *InferenceLoop) Run(ctx context.Context) {
	log.Info().Msg("inference started")
	for ctx.Err() == nil {
		processed, _ := l.RunOnce(ctx)
		if processed {
			sleep(ctx, l.cfg.Yield)
		} else {
			sleep(ctx, l.cfg.Idle)
		}
	}
	log.Info().Uint64("cycles", l.cycles.Load()).Msg("inference stopped")
}

// RunOnce performs one cycle. It returns false when there was no frame to process.
func (l *InferenceLoop) RunOnce(ctx context.Context) (bool, error) {
	frame := l.frames.Snapshot()
	if frame == nil {
		return false, nil
	}

	dets, err := l.cycle(ctx, frame)
	n := l.cycles.Add(1)
	if err != nil {
		l.failures.Add(1)
		log.Error().Err(err).Uint64("cycle", n).Msg("inference cycle failed")
		l.dets.Replace(nil, l.now())
		return true, err
	}

	l.dets.Replace(dets, l.now())
	if len(dets) > 0 {
		log.Debug().Int("faces", len(dets)).Uint64("cycle", n).Msg("faces tracked")
	}
	return true, nil
}

func (l *InferenceLoop) cycle(ctx context.Context, frame *types.Frame) (dets []types.Detection, err error) {
	defer func() {
		if r := recover(); r != nil {
			dets, err = nil, fmt.Errorf("panic in inference cycle: %v", r)
		}
	}()

	faces, err := l.detector.Detect(ctx, frame.Image)
	if err != nil {
		return nil, err
	}
	faces = face.FilterMinWidth(faces, l.cfg.MinFaceSize)

	records := l.suspects.Snapshot()
	matches := make([]face.Match, len(faces))
	var hits []string
	for i, f := range faces {
		matches[i] = face.BestMatch(f.Embedding, records)
		if matches[i].Qualifies(l.cfg.SimilarityThreshold) {
			hits = append(hits, matches[i].Record.DisplayName)
		}
	}

	now := l.now()
	verdicts := l.tracker.Observe(hits, now)

	fired := make(map[string]bool)
	dets = make([]types.Detection, 0, len(faces))
	for i, f := range faces {
		m := matches[i]
		d := types.Detection{Box: f.Box, Similarity: m.Similarity, Class: types.ClassVisitor, Label: VisitorLabel}

		if m.Qualifies(l.cfg.SimilarityThreshold) {
			name := m.Record.DisplayName
			d.Identity = name
			v := verdicts[name]
			if v.Confirmed {
				d.Class = types.ClassSuspect
				d.Label = SuspectLabel(name, m.Similarity)
			}
			if v.Fire && !fired[name] {
				fired[name] = true
				l.alerts.Add(1)
				l.publisher.Publish(alert.NewEvent(name, d.Label, m.Similarity, f.Box, now))
			}
		}
		dets = append(dets, d)
	}
	return dets, nil
}

// InferenceStats is a snapshot of the loop counters.
type InferenceStats struct {
	Cycles   uint64 `json:"cycles"`
	Failures uint64 `json:"failures"`
	Alerts   uint64 `json:"alerts"`
}

func (l *InferenceLoop) Stats() InferenceStats {
	return InferenceStats{
		Cycles:   l.cycles.Load(),
		Failures: l.failures.Load(),
		Alerts:   l.alerts.Load(),
	}
}
