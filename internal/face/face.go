// Package face holds the detection capability contract and the embedding math
// shared by the live pipeline, the registry and one-shot checks.
package face

import (
	"context"
	"image"
	"math"

	"github.com/andresmejia3/lookout/internal/types"
)

// Detector is the external face detection/embedding capability.
// Implementations may be slow; callers must not hold locks across Detect.
type Detector interface {
	Detect(ctx context.Context, img image.Image) ([]types.Face, error)
}

// CosineSimilarity returns the cosine of the angle between a and b, in [-1, 1].
// Mismatched lengths and zero vectors yield 0.
func CosineSimilarity(a, b types.Embedding) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, sumA, sumB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		sumA += x * x
		sumB += y * y
	}
	if sumA == 0 || sumB == 0 {
		return 0
	}
	sim := dot / (math.Sqrt(sumA) * math.Sqrt(sumB))
	// Rounding can push parallel vectors a hair past 1.
	return math.Max(-1, math.Min(1, sim))
}

// Match is the best registry candidate for a face.
type Match struct {
	Record     types.SuspectRecord
	Similarity float64
	Found      bool
}

// BestMatch scans every record and returns the most similar one.
// Found is false only when records is empty.
func BestMatch(emb types.Embedding, records []types.SuspectRecord) Match {
	best := Match{Similarity: -1}
	for _, r := range records {
		sim := CosineSimilarity(emb, r.Embedding)
		if !best.Found || sim > best.Similarity {
			best = Match{Record: r, Similarity: sim, Found: true}
		}
	}
	if !best.Found {
		best.Similarity = 0
	}
	return best
}

// Qualifies reports whether m is a hit under the strict "exceeds threshold" rule.
func (m Match) Qualifies(threshold float64) bool {
	return m.Found && m.Similarity > threshold
}

// Largest returns the face with the biggest bounding box area.
func Largest(faces []types.Face) (types.Face, bool) {
	if len(faces) == 0 {
		return types.Face{}, false
	}
	best := faces[0]
	for _, f := range faces[1:] {
		if f.Box.Area() > best.Box.Area() {
			best = f
		}
	}
	return best, true
}

// FilterMinWidth drops faces narrower than minWidth pixels (distant or partial faces).
func FilterMinWidth(faces []types.Face, minWidth int) []types.Face {
	kept := make([]types.Face, 0, len(faces))
	for _, f := range faces {
		if f.Box.Width() < minWidth {
			continue
		}
		kept = append(kept, f)
	}
	return kept
}
