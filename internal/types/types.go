package types

import (
	"image"
	"time"

	"github.com/google/uuid"
)

// Frame is a captured camera image. It must not be modified once it has been
// stored in shared state; anything that draws on it works on a clone.
type Frame struct {
	Image      *image.NRGBA
	Width      int
	Height     int
	CapturedAt time.Time
	Seq        uint64
}

// BoundingBox is a face rectangle in frame pixel coordinates.
type BoundingBox struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

// Valid reports whether the box has a positive width and height.
func (b BoundingBox) Valid() bool { return b.X1 < b.X2 && b.Y1 < b.Y2 }

func (b BoundingBox) Width() int  { return b.X2 - b.X1 }
func (b BoundingBox) Height() int { return b.Y2 - b.Y1 }

// Area returns the box area, or 0 for a degenerate box.
func (b BoundingBox) Area() int {
	if !b.Valid() {
		return 0
	}
	return b.Width() * b.Height()
}

// Rect converts the box to an image.Rectangle.
func (b BoundingBox) Rect() image.Rectangle { return image.Rect(b.X1, b.Y1, b.X2, b.Y2) }

// Embedding is the identity signature produced by the detection engine (512-d by default).
type Embedding []float32

// Face is one raw result of the detection capability.
type Face struct {
	Box       BoundingBox
	Embedding Embedding
}

// SuspectRecord maps a registry key to its reference embedding.
// Records are replaced whole and never mutated after insertion.
type SuspectRecord struct {
	Key         string    // file stem, unique within the registry
	DisplayName string    // identity part of the key, used for labels and alert tracking
	SourcePath  string    // image file backing the record
	Embedding   Embedding `json:"-"`
}

// Classification of a detection in the live stream.
type Classification string

const (
	ClassSuspect Classification = "suspect"
	ClassVisitor Classification = "visitor"
)

// Detection is one annotated face produced by an inference cycle.
type Detection struct {
	Box        BoundingBox    `json:"box"`
	Identity   string         `json:"identity,omitempty"`
	Similarity float64        `json:"similarity"`
	Class      Classification `json:"class"`
	Label      string         `json:"label"`
}

// AlertEvent is emitted when a confirmed suspect passes its cooldown.
type AlertEvent struct {
	ID         uuid.UUID   `json:"id"`
	Identity   string      `json:"identity"`
	Label      string      `json:"label"`
	Similarity float64     `json:"similarity"`
	Box        BoundingBox `json:"box"`
	FiredAt    time.Time   `json:"fired_at"`
}
