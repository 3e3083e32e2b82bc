package vector

import (
	"math"
	"testing"
)

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestCosine(t *testing.T) {
	if got := Cosine([]float32{1, 0}, []float32{2, 0}); !approx(got, 1) {
		t.Fatalf("parallel: got %v", got)
	}
	if got := Cosine([]float32{1, 0}, []float32{0, 3}); !approx(got, 0) {
		t.Fatalf("orthogonal: got %v", got)
	}
	if got := Cosine([]float32{1, 0}, []float32{-1, 0}); !approx(got, -1) {
		t.Fatalf("opposite: got %v", got)
	}
	if got := Cosine([]float32{1, 0}, []float32{1, 0, 0}); got != 0 {
		t.Fatalf("mismatched lengths should be 0, got %v", got)
	}
	if got := Cosine([]float32{0, 0}, []float32{1, 0}); got != 0 {
		t.Fatalf("zero vector should be 0, got %v", got)
	}
}

func TestScore(t *testing.T) {
	if got := Score([]float32{1, 0}, []float32{1, 0}); !approx(got, 1) {
		t.Fatalf("identical: got %v", got)
	}
	if got := Score([]float32{1, 0}, []float32{-1, 0}); !approx(got, 0) {
		t.Fatalf("opposite: got %v", got)
	}
	if got := ScoreFromDistance(1); !approx(got, 0.5) {
		t.Fatalf("orthogonal distance: got %v", got)
	}
}
