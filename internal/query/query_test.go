package query

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/disintegration/imaging"

	"github.com/andresmejia3/lookout/internal/state"
	"github.com/andresmejia3/lookout/internal/types"
)

type fixedDetector struct {
	faces []types.Face
	err   error
}

func (d fixedDetector) Detect(context.Context, image.Image) ([]types.Face, error) {
	return d.faces, d.err
}

type fakeSuspects struct {
	records []types.SuspectRecord
	names   []string
}

func (f fakeSuspects) Snapshot() []types.SuspectRecord { return f.records }
func (f fakeSuspects) List() ([]string, error)         { return f.names, nil }

var suspects = fakeSuspects{
	records: []types.SuspectRecord{{Key: "alice_front", DisplayName: "alice", Embedding: types.Embedding{1, 0}}},
	names:   []string{"alice_front"},
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, imaging.New(20, 20, color.White), imaging.PNG); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestCurrentStatus(t *testing.T) {
	suspect := types.Detection{Class: types.ClassSuspect, Label: "SUSPECT: alice (0.93)"}
	visitor := types.Detection{Class: types.ClassVisitor, Label: "Visitor"}

	tests := []struct {
		name    string
		dets    []types.Detection
		replace bool
		want    Status
	}{
		{"No cycle yet", nil, false, Status{AlertWaiting, "No faces detected"}},
		{"Cycle without faces", nil, true, Status{AlertWaiting, "No faces detected"}},
		{"Only visitors", []types.Detection{visitor, visitor}, true, Status{AlertSafe, "Authorised visitor detected"}},
		{"Suspect among visitors", []types.Detection{visitor, suspect}, true, Status{AlertRed, "SUSPECT: alice (0.93)"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ds := state.NewDetectionState()
			if tt.replace {
				ds.Replace(tt.dets, time.Now())
			}
			svc := NewService(ds, fixedDetector{}, suspects, 0.5)
			if got := svc.CurrentStatus(); got != tt.want {
				t.Errorf("CurrentStatus() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestOneShotCheck(t *testing.T) {
	small := types.Face{Box: types.BoundingBox{X1: 0, Y1: 0, X2: 10, Y2: 10}, Embedding: types.Embedding{1, 0}}
	big := types.Face{Box: types.BoundingBox{X1: 0, Y1: 0, X2: 50, Y2: 50}, Embedding: types.Embedding{0, 1}}

	tests := []struct {
		name    string
		faces   []types.Face
		want    CheckResult
		wantErr error
	}{
		{"Suspect", []types.Face{small}, CheckResult{AlertRed, "SUSPECT: alice", 1}, nil},
		{"Largest face decides", []types.Face{small, big}, CheckResult{Alert: AlertSafe, Message: "Authorised visitor detected"}, nil},
		{"No face", nil, CheckResult{}, types.ErrNoFaceDetected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(state.NewDetectionState(), fixedDetector{faces: tt.faces}, suspects, 0.5)
			got, err := svc.OneShotCheck(context.Background(), pngBytes(t))
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("error = %v, want %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("OneShotCheck() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestOneShotCheckErrors(t *testing.T) {
	svc := NewService(state.NewDetectionState(), fixedDetector{}, suspects, 0.5)
	if _, err := svc.OneShotCheck(context.Background(), []byte("nope")); !errors.Is(err, types.ErrImageDecode) {
		t.Errorf("expected ErrImageDecode, got %v", err)
	}

	failing := NewService(state.NewDetectionState(), fixedDetector{err: types.ErrDetection}, suspects, 0.5)
	if _, err := failing.OneShotCheck(context.Background(), pngBytes(t)); !errors.Is(err, types.ErrDetection) {
		t.Errorf("expected ErrDetection, got %v", err)
	}
}

func TestSuspects(t *testing.T) {
	svc := NewService(state.NewDetectionState(), fixedDetector{}, suspects, 0.5)
	names, err := svc.Suspects()
	if err != nil || len(names) != 1 || names[0] != "alice_front" {
		t.Errorf("Suspects() = %v, %v", names, err)
	}
}
