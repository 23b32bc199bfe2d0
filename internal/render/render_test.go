package render

import (
	"bytes"
	"image"
	"image/color"
	"testing"

	"github.com/disintegration/imaging"

	"github.com/andresmejia3/lookout/internal/types"
)

func TestBoxOutline(t *testing.T) {
	img := imaging.New(50, 50, color.Black)
	Box(img, image.Rect(10, 10, 30, 30), ColorSuspect, 2)

	tests := []struct {
		name string
		x, y int
		want color.NRGBA
	}{
		{"Top edge", 15, 10, ColorSuspect},
		{"Top edge inner row", 15, 11, ColorSuspect},
		{"Left edge", 10, 20, ColorSuspect},
		{"Right edge", 29, 20, ColorSuspect},
		{"Bottom edge", 20, 29, ColorSuspect},
		{"Interior untouched", 20, 20, color.NRGBA{A: 255}},
		{"Outside untouched", 5, 5, color.NRGBA{A: 255}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := img.NRGBAAt(tt.x, tt.y); got != tt.want {
				t.Errorf("pixel (%d,%d) = %v, want %v", tt.x, tt.y, got, tt.want)
			}
		})
	}
}

func TestBoxClipsToFrame(t *testing.T) {
	img := imaging.New(20, 20, color.Black)
	// Must not panic for boxes leaving the frame
	Box(img, image.Rect(-5, -5, 40, 40), ColorVisitor, 2)
	Box(img, image.Rect(30, 30, 10, 10), ColorVisitor, 2) // reversed corners
	if got := img.NRGBAAt(10, 10); got != ColorVisitor {
		t.Errorf("expected reversed box to be drawn, got %v", got)
	}
}

func TestAnnotateColors(t *testing.T) {
	img := imaging.New(200, 120, color.Black)
	dets := []types.Detection{
		{Box: types.BoundingBox{X1: 20, Y1: 40, X2: 80, Y2: 100}, Class: types.ClassSuspect, Label: "SUSPECT: alice (0.91)"},
		{Box: types.BoundingBox{X1: 110, Y1: 40, X2: 170, Y2: 100}, Class: types.ClassVisitor, Label: "Visitor"},
	}
	Annotate(img, dets, 29)

	if got := img.NRGBAAt(50, 40); got != ColorSuspect {
		t.Errorf("suspect box should be red, got %v", got)
	}
	if got := img.NRGBAAt(140, 40); got != ColorVisitor {
		t.Errorf("visitor box should be green, got %v", got)
	}

	// Some yellow must appear in the FPS overlay region
	found := false
	for y := 15; y < 35 && !found; y++ {
		for x := 10; x < 80; x++ {
			if img.NRGBAAt(x, y) == ColorFPS {
				found = true
				break
			}
		}
	}
	if !found {
		t.Error("expected FPS overlay text in the top-left corner")
	}
}

func TestEncodeJPEG(t *testing.T) {
	data, err := EncodeJPEG(imaging.New(32, 24, color.White), 80)
	if err != nil {
		t.Fatalf("EncodeJPEG failed: %v", err)
	}
	if !bytes.HasPrefix(data, []byte{0xFF, 0xD8}) {
		t.Error("output is not a JPEG")
	}
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("round trip decode failed: %v", err)
	}
	if img.Bounds().Dx() != 32 || img.Bounds().Dy() != 24 {
		t.Errorf("unexpected size %v", img.Bounds())
	}
}
