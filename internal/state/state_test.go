package state

import (
	"sync"
	"testing"
	"time"

	"github.com/andresmejia3/lookout/internal/types"
)

func TestFrameStateLastWriteWins(t *testing.T) {
	s := NewFrameState()
	if s.Snapshot() != nil {
		t.Fatal("expected nil snapshot before first store")
	}

	for i := uint64(1); i <= 50; i++ {
		s.Store(&types.Frame{Seq: i})
	}

	if got := s.Snapshot().Seq; got != 50 {
		t.Errorf("expected latest frame 50, got %d", got)
	}
	if s.Stored() != 50 {
		t.Errorf("expected 50 stores, got %d", s.Stored())
	}
}

func TestFrameStateConcurrentWriters(t *testing.T) {
	s := NewFrameState()
	var wg sync.WaitGroup

	// A single producer writes increasing sequence numbers while readers poll.
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := uint64(1); i <= 1000; i++ {
			s.Store(&types.Frame{Seq: i})
		}
	}()

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var last uint64
			for i := 0; i < 1000; i++ {
				if f := s.Snapshot(); f != nil {
					if f.Seq < last {
						t.Errorf("reader observed an older frame: %d after %d", f.Seq, last)
						return
					}
					last = f.Seq
				}
			}
		}()
	}
	wg.Wait()

	if got := s.Snapshot().Seq; got != 1000 {
		t.Errorf("expected settled frame 1000, got %d", got)
	}
}

func TestDetectionStateReplace(t *testing.T) {
	s := NewDetectionState()
	snap := s.Snapshot()
	if snap.Cycle != 0 || len(snap.Detections) != 0 {
		t.Fatalf("expected empty initial state, got %+v", snap)
	}

	first := []types.Detection{{Label: "a"}, {Label: "b"}}
	s.Replace(first, time.Now())
	first[0].Label = "mutated"

	snap = s.Snapshot()
	if snap.Cycle != 1 || len(snap.Detections) != 2 {
		t.Fatalf("unexpected snapshot after first cycle: %+v", snap)
	}
	if snap.Detections[0].Label != "a" {
		t.Error("state aliased the caller's slice")
	}

	s.Replace([]types.Detection{{Label: "c"}}, time.Now())
	snap = s.Snapshot()
	if len(snap.Detections) != 1 || snap.Detections[0].Label != "c" {
		t.Errorf("expected full replace, got %+v", snap.Detections)
	}

	// Snapshots are independent copies.
	snap.Detections[0].Label = "changed"
	if s.Snapshot().Detections[0].Label != "c" {
		t.Error("snapshot mutation leaked into shared state")
	}
}
