package vector

import (
	"math"
	"testing"
)

func TestCosineSimilarity(t *testing.T) {
	cases := []struct {
		a, b []float32
		want float64
	}{
		{[]float32{1, 0}, []float32{1, 0}, 1},
		{[]float32{1, 0}, []float32{0, 1}, 0},
		{[]float32{1, 0}, []float32{-1, 0}, -1},
		{[]float32{1, 2, 3}, []float32{2, 4, 6}, 1},
	}
	for _, tc := range cases {
		got := float64(CosineSimilarity(tc.a, tc.b))
		if math.Abs(got-tc.want) > 1e-6 {
			t.Errorf("CosineSimilarity(%v, %v) = %f, want %f", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestCosineSimilarityDegenerate(t *testing.T) {
	if got := CosineSimilarity([]float32{0, 0}, []float32{1, 1}); got != 0 {
		t.Fatalf("zero vector should score 0, got %f", got)
	}
	if got := CosineSimilarity([]float32{1}, []float32{1, 2}); got != 0 {
		t.Fatalf("mismatched dimensions should score 0, got %f", got)
	}
}

func TestNormalize(t *testing.T) {
	normalized := Normalize([]float32{3, 4})
	length := math.Sqrt(float64(normalized[0]*normalized[0] + normalized[1]*normalized[1]))
	if math.Abs(length-1) > 1e-6 {
		t.Fatalf("normalized length %f", length)
	}

	zero := Normalize([]float32{0, 0})
	if zero[0] != 0 || zero[1] != 0 {
		t.Fatalf("zero vector should stay zero, got %v", zero)
	}
}
