// Package render draws detection overlays onto frames and encodes them for the viewer stream.
package render

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/andresmejia3/lookout/internal/types"
)

const (
	BoxThickness = 2
	labelOffset  = 10
)

var (
	ColorSuspect = color.NRGBA{R: 255, A: 255}
	ColorVisitor = color.NRGBA{G: 255, A: 255}
	ColorFPS     = color.NRGBA{R: 255, G: 255, A: 255}

	labelFace = basicfont.Face7x13
)

// ColorFor returns the overlay color for a classification.
func ColorFor(c types.Classification) color.NRGBA {
	if c == types.ClassSuspect {
		return ColorSuspect
	}
	return ColorVisitor
}

// Annotate draws every detection and the FPS counter on dst in place.
// Callers pass a private clone, never a shared frame.
func Annotate(dst *image.NRGBA, dets []types.Detection, fps int) {
	for _, d := range dets {
		c := ColorFor(d.Class)
		Box(dst, d.Box.Rect(), c, BoxThickness)
		Text(dst, d.Label, d.Box.X1, d.Box.Y1-labelOffset, c)
	}
	Text(dst, fmt.Sprintf("FPS: %d", fps), 10, 30, ColorFPS)
}

// Box draws a rectangle outline of the given thickness, clipped to dst.
func Box(dst *image.NRGBA, r image.Rectangle, c color.Color, thickness int) {
	r = r.Canon()
	if r.Empty() {
		return
	}
	src := image.NewUniform(c)
	t := thickness
	edges := []image.Rectangle{
		image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+t), // top
		image.Rect(r.Min.X, r.Max.Y-t, r.Max.X, r.Max.Y), // bottom
		image.Rect(r.Min.X, r.Min.Y, r.Min.X+t, r.Max.Y), // left
		image.Rect(r.Max.X-t, r.Min.Y, r.Max.X, r.Max.Y), // right
	}
	for _, e := range edges {
		draw.Draw(dst, e.Intersect(dst.Bounds()), src, image.Point{}, draw.Src)
	}
}

// Text draws s with its baseline at (x, y). Labels above the top edge are
// pushed down so they stay visible.
func Text(dst *image.NRGBA, s string, x, y int, c color.Color) {
	if s == "" {
		return
	}
	ascent := labelFace.Metrics().Ascent.Ceil()
	if y < ascent {
		y = ascent
	}
	if x < 0 {
		x = 0
	}
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: labelFace,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}

// EncodeJPEG encodes img at the given quality (1..100).
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, fmt.Errorf("jpeg encode: %w", err)
	}
	return buf.Bytes(), nil
}
