// Package vector provides similarity helpers used by the in-process catalog stores.
package vector

import "math"

// InnerProduct returns the inner product of two vectors, or 0 when their lengths differ.
func InnerProduct(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

// L2Norm returns the L2 norm of a vector.
func L2Norm(x []float32) float64 {
	var sum float64
	for _, v := range x {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum)
}

// Cosine returns the cosine similarity in [-1, 1]. Mismatched lengths and
// zero vectors compare as 0.
func Cosine(a, b []float32) float64 {
	na, nb := L2Norm(a), L2Norm(b)
	if na == 0 || nb == 0 {
		return 0
	}
	c := InnerProduct(a, b) / (na * nb)
	return math.Max(-1, math.Min(1, c))
}

// Score maps cosine similarity onto [0, 1] the way Atlas vector search
// reports cosine scores: (1 + cos) / 2.
func Score(a, b []float32) float64 {
	return (1 + Cosine(a, b)) / 2
}

// ScoreFromDistance converts a cosine distance (1 - cos) into the same [0, 1] score.
func ScoreFromDistance(d float64) float64 {
	return (2 - d) / 2
}
