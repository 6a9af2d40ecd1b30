package utils

import (
	"fmt"
	"math"
)

// CosineSimilarity computes the cosine similarity between two vectors.
// Mismatched lengths and zero vectors yield 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0.0
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}

	if normA == 0.0 || normB == 0.0 {
		return 0.0
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Round rounds v to the given number of decimal places.
func Round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// ToFloat64s widens a float32 vector for drivers that only accept float64 lists.
func ToFloat64s(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}

// ValidateEmbeddingDimensions validates that embeddings have consistent dimensions
func ValidateEmbeddingDimensions(embeddings [][]float32, expectedDim int) error {
	for i, embedding := range embeddings {
		if len(embedding) != expectedDim {
			return fmt.Errorf("embedding %d has dimension %d, expected %d", i, len(embedding), expectedDim)
		}
	}
	return nil
}
