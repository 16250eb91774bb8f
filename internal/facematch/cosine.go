package facematch

import "math"

// CosineSimilarity computes dot(a, b) / (|a| * |b|).
// ok is false when the vectors differ in length, are empty or either norm is zero;
// such pairs are not comparable and must not be scored.
func CosineSimilarity(a, b []float64) (sim float64, ok bool) {
	if len(a) != len(b) || len(a) == 0 {
		return 0, false
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0, false
	}

	sim = dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
	// Clamp to [-1, 1] to handle floating point errors. NaN passes through.
	if sim > 1 {
		sim = 1
	}
	if sim < -1 {
		sim = -1
	}
	return sim, true
}

// CosineDistance returns 1 - similarity, or 2 (maximum distance) for non-comparable input.
func CosineDistance(a, b []float64) float64 {
	sim, ok := CosineSimilarity(a, b)
	if !ok {
		return 2.0
	}
	return 1 - sim
}
