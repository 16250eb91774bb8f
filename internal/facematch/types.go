// Package facematch holds the face-matching decision procedure: the enrolled identity
// registry, cosine similarity scoring and the accept/reject decision.
package facematch

import (
	"errors"
	"fmt"
)

// UnknownKey is the identity key reported when no enrolled identity could be compared.
const UnknownKey = "unknown"

// NoComparisonScore is the score reported when no comparison was possible.
// It is distinct from a genuine low similarity.
const NoComparisonScore = -1.0

// Embedding is a fixed-length face identity vector produced by the embedding service.
type Embedding []float64

// EnrolledIdentity is one known person in the registry.
type EnrolledIdentity struct {
	Key         string
	DisplayName string
	Embedding   Embedding
}

// EnrollmentRecord is a persisted enrollment as read from storage.
type EnrollmentRecord struct {
	Key         string
	DisplayName string
	Embedding   Embedding
}

// Observation is one detected face in one processed frame.
type Observation struct {
	BBox      []float64 // [x1, y1, x2, y2] in pixels
	Embedding Embedding
	DetScore  float64
}

// MatchResult is the outcome of classifying one query embedding.
type MatchResult struct {
	Key         string  `json:"identity_key"`
	DisplayName string  `json:"display_name"`
	Score       float64 `json:"score"`
	Accepted    bool    `json:"accepted"`
	Nearest     string  `json:"nearest,omitempty"` // best comparable key, even when rejected
}

// Compared reports whether at least one registry entry was comparable.
func (r MatchResult) Compared() bool {
	return r.Nearest != ""
}

var (
	// ErrNoEnrollments is returned when a registry would be empty.
	ErrNoEnrollments = errors.New("no enrolled identities")

	// ErrInvalidEmbedding is matched by every *InvalidEmbeddingError.
	ErrInvalidEmbedding = errors.New("invalid embedding")

	// ErrNoFaceDetected is returned when an enrollment photo has no face.
	ErrNoFaceDetected = errors.New("no face detected")

	// ErrThresholdOutOfRange is returned for a similarity threshold outside [0.50, 1.00].
	ErrThresholdOutOfRange = errors.New("similarity threshold out of range")

	// ErrAmbiguousName is returned when a legacy display name matches several identities.
	ErrAmbiguousName = errors.New("ambiguous name")
)

// InvalidEmbeddingError describes why an embedding was rejected.
type InvalidEmbeddingError struct {
	Key    string // empty for query embeddings
	Got    int
	Want   int
	Reason string
}

func (e *InvalidEmbeddingError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("invalid embedding for %q: %s (got %d values, want %d)", e.Key, e.Reason, e.Got, e.Want)
	}
	return fmt.Sprintf("invalid embedding: %s (got %d values, want %d)", e.Reason, e.Got, e.Want)
}

// Is makes errors.Is(err, ErrInvalidEmbedding) hold.
func (e *InvalidEmbeddingError) Is(target error) bool {
	return target == ErrInvalidEmbedding
}
