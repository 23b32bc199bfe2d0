// Package query answers read-only status questions over the pipeline state.
package query

import (
	"bytes"
	"context"
	"fmt"

	"github.com/disintegration/imaging"

	"github.com/andresmejia3/lookout/internal/face"
	"github.com/andresmejia3/lookout/internal/state"
	"github.com/andresmejia3/lookout/internal/types"
)

const (
	AlertWaiting = "WAITING"
	AlertRed     = "RED ALERT"
	AlertSafe    = "SAFE"
	AlertNoFace  = "NO_FACE"

	msgNoFaces  = "No faces detected"
	msgVisitor  = "Authorised visitor detected"
	msgNoFaceIn = "No face detected in the image."
)

// Status is the answer to "is a suspect visible right now?".
type Status struct {
	Alert   string `json:"alert"`
	Message string `json:"message"`
}

// CheckResult is the answer for a single uploaded image.
type CheckResult struct {
	Alert      string  `json:"alert"`
	Message    string  `json:"message"`
	Confidence float64 `json:"confidence,omitempty"`
}

// Suspects is the subset of the registry the query path needs.
type Suspects interface {
	Snapshot() []types.SuspectRecord
	List() ([]string, error)
}

type Service struct {
	dets      *state.DetectionState
	detector  face.Detector
	suspects  Suspects
	threshold float64
}

func NewService(dets *state.DetectionState, detector face.Detector, suspects Suspects, threshold float64) *Service {
	return &Service{dets: dets, detector: detector, suspects: suspects, threshold: threshold}
}

// CurrentStatus reflects the most recently completed inference cycle. It never waits for a new one.
func (s *Service) CurrentStatus() Status {
	snap := s.dets.Snapshot()
	if len(snap.Detections) == 0 {
		return Status{Alert: AlertWaiting, Message: msgNoFaces}
	}
	for _, d := range snap.Detections {
		if d.Class == types.ClassSuspect {
			return Status{Alert: AlertRed, Message: d.Label}
		}
	}
	return Status{Alert: AlertSafe, Message: msgVisitor}
}

// OneShotCheck matches the largest face in data against the registry, without
// hysteresis or cooldown. An image without faces returns ErrNoFaceDetected.
func (s *Service) OneShotCheck(ctx context.Context, data []byte) (CheckResult, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return CheckResult{}, fmt.Errorf("%w: %v", types.ErrImageDecode, err)
	}

	faces, err := s.detector.Detect(ctx, img)
	if err != nil {
		return CheckResult{}, err
	}
	largest, ok := face.Largest(faces)
	if !ok {
		return CheckResult{}, types.ErrNoFaceDetected
	}

	m := face.BestMatch(largest.Embedding, s.suspects.Snapshot())
	if m.Qualifies(s.threshold) {
		return CheckResult{
			Alert:      AlertRed,
			Message:    "SUSPECT: " + m.Record.DisplayName,
			Confidence: m.Similarity,
		}, nil
	}
	return CheckResult{Alert: AlertSafe, Message: msgVisitor}, nil
}

// NoFaceResult is the reply for images without a face.
func NoFaceResult() CheckResult {
	return CheckResult{Alert: AlertNoFace, Message: msgNoFaceIn}
}

// Suspects lists the registered photo stems.
func (s *Service) Suspects() ([]string, error) {
	return s.suspects.List()
}
