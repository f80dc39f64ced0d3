// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package similarity

import "math"

// Cosine returns the cosine similarity of a and b. Vectors of different
// length, empty vectors, and zero vectors yield 0.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// clamp01 bounds v to [0, 1].
func clamp01(v float64) float64 {
	switch {
	case v < 0 || math.IsNaN(v):
		return 0
	case v > 1:
		return 1
	}
	return v
}

// round4 rounds to four decimals.
func round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}

// edgeSigma is the width of the gaussian kernel used for edge weights.
const edgeSigma = 0.3

// GaussianWeight maps a similarity to an edge weight that decays with the
// distance 1-sim.
func GaussianWeight(sim float64) float64 {
	d := 1 - sim
	return math.Exp(-(d * d) / (2 * edgeSigma * edgeSigma))
}
