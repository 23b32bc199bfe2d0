package face

import (
	"math"
	"testing"

	"github.com/andresmejia3/lookout/internal/types"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a    types.Embedding
		b    types.Embedding
		want float64
	}{
		{
			name: "Identical vectors",
			a:    types.Embedding{1, 0},
			b:    types.Embedding{1, 0},
			want: 1.0,
		},
		{
			name: "Orthogonal vectors",
			a:    types.Embedding{1, 0},
			b:    types.Embedding{0, 1},
			want: 0.0,
		},
		{
			name: "Opposite vectors",
			a:    types.Embedding{1, 0},
			b:    types.Embedding{-1, 0},
			want: -1.0,
		},
		{
			name: "B is unnormalized (scaled)",
			a:    types.Embedding{1, 0},
			b:    types.Embedding{5, 0},
			want: 1.0,
		},
		{
			name: "Zero vector",
			a:    types.Embedding{0, 0},
			b:    types.Embedding{1, 0},
			want: 0.0,
		},
		{
			name: "Length mismatch",
			a:    types.Embedding{1, 0, 0},
			b:    types.Embedding{1, 0},
			want: 0.0,
		},
		{
			name: "Empty vectors",
			a:    types.Embedding{},
			b:    types.Embedding{},
			want: 0.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CosineSimilarity(tt.a, tt.b)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("CosineSimilarity() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSelfSimilarity(t *testing.T) {
	emb := make(types.Embedding, 512)
	for i := range emb {
		emb[i] = float32(math.Sin(float64(i)*0.37)) * 3.1
	}
	if got := CosineSimilarity(emb, emb); math.Abs(got-1.0) > 1e-6 {
		t.Errorf("self similarity = %v, want 1.0", got)
	}
}

func TestBestMatch(t *testing.T) {
	records := []types.SuspectRecord{
		{Key: "alice_a", DisplayName: "alice", Embedding: types.Embedding{1, 0, 0}},
		{Key: "bob_b", DisplayName: "bob", Embedding: types.Embedding{0, 1, 0}},
	}

	m := BestMatch(types.Embedding{0.2, 0.9, 0}, records)
	if !m.Found || m.Record.Key != "bob_b" {
		t.Fatalf("expected bob_b, got %+v", m)
	}
	if !m.Qualifies(0.5) {
		t.Errorf("expected similarity %.3f to qualify at 0.5", m.Similarity)
	}

	// Exactly at the threshold does not qualify.
	exact := Match{Found: true, Similarity: 0.5}
	if exact.Qualifies(0.5) {
		t.Error("similarity equal to threshold must not qualify")
	}

	if empty := BestMatch(types.Embedding{1, 0, 0}, nil); empty.Found || empty.Qualifies(0) {
		t.Errorf("empty registry must not match, got %+v", empty)
	}
}

func TestLargest(t *testing.T) {
	faces := []types.Face{
		{Box: types.BoundingBox{X1: 0, Y1: 0, X2: 10, Y2: 10}},
		{Box: types.BoundingBox{X1: 5, Y1: 5, X2: 105, Y2: 85}},
		{Box: types.BoundingBox{X1: 0, Y1: 0, X2: 50, Y2: 50}},
	}
	got, ok := Largest(faces)
	if !ok || got.Box.X2 != 105 {
		t.Errorf("Largest() = %+v, want the 100x80 box", got.Box)
	}
	if _, ok := Largest(nil); ok {
		t.Error("Largest(nil) should report false")
	}
}

func TestFilterMinWidth(t *testing.T) {
	faces := []types.Face{
		{Box: types.BoundingBox{X1: 0, Y1: 0, X2: 59, Y2: 80}},
		{Box: types.BoundingBox{X1: 0, Y1: 0, X2: 60, Y2: 80}},
		{Box: types.BoundingBox{X1: 100, Y1: 0, X2: 300, Y2: 80}},
	}
	kept := FilterMinWidth(faces, 60)
	if len(kept) != 2 {
		t.Fatalf("expected 2 faces kept, got %d", len(kept))
	}
	if kept[0].Box.Width() != 60 {
		t.Errorf("expected the 60px face to survive, got width %d", kept[0].Box.Width())
	}
}
