// Package state holds the "latest known" values shared between the capture,
// inference and streaming goroutines. Each holder has its own lock and only
// copies values in and out under it.
package state

import (
	"sync"
	"time"

	"github.com/andresmejia3/lookout/internal/types"
)

// FrameState holds the most recently captured frame (last-write-wins).
type FrameState struct {
	mu     sync.Mutex
	frame  *types.Frame
	stored uint64
}

func NewFrameState() *FrameState { return &FrameState{} }

// Store replaces the current frame. The frame must not be modified afterwards.
func (s *FrameState) Store(f *types.Frame) {
	s.mu.Lock()
	s.frame = f
	s.stored++
	s.mu.Unlock()
}

// Snapshot returns the current frame, or nil before the first capture.
// The returned frame is shared and read-only.
func (s *FrameState) Snapshot() *types.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frame
}

// Stored returns how many frames have been stored so far.
func (s *FrameState) Stored() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stored
}

// DetectionSnapshot is a copy of the detection state at one point in time.
type DetectionSnapshot struct {
	Detections []types.Detection
	Cycle      uint64 // 0 until the first inference cycle completes
	UpdatedAt  time.Time
}

// DetectionState holds the detection list of the latest inference cycle.
type DetectionState struct {
	mu        sync.Mutex
	dets      []types.Detection
	cycle     uint64
	updatedAt time.Time
}

func NewDetectionState() *DetectionState { return &DetectionState{} }

// Replace swaps in the list for a finished cycle. The previous list is
// discarded, never merged.
func (s *DetectionState) Replace(dets []types.Detection, at time.Time) {
	cp := make([]types.Detection, len(dets))
	copy(cp, dets)

	s.mu.Lock()
	s.dets = cp
	s.cycle++
	s.updatedAt = at
	s.mu.Unlock()
}

// Snapshot returns an independent copy of the current detections.
func (s *DetectionState) Snapshot() DetectionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]types.Detection, len(s.dets))
	copy(cp, s.dets)
	return DetectionSnapshot{Detections: cp, Cycle: s.cycle, UpdatedAt: s.updatedAt}
}
