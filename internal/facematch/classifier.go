package facematch

import (
	"fmt"
	"math"
	"sort"

	"github.com/kozaktomas/face-attendance/internal/constants"
)

// ValidateThreshold rejects similarity thresholds outside [0.50, 1.00]. NaN is rejected too.
func ValidateThreshold(threshold float64) error {
	if threshold >= constants.MinSimilarityThreshold && threshold <= constants.MaxSimilarityThreshold {
		return nil
	}
	return fmt.Errorf("%w: %v not in [%.2f, %.2f]", ErrThresholdOutOfRange, threshold,
		constants.MinSimilarityThreshold, constants.MaxSimilarityThreshold)
}

// Classifier scores query embeddings against a Registry.
// It is safe for concurrent use since the registry is never mutated.
type Classifier struct {
	registry  *Registry
	threshold float64
}

// NewClassifier returns a classifier for the registry. A nil registry classifies
// everything as unknown.
func NewClassifier(registry *Registry, threshold float64) (*Classifier, error) {
	if err := ValidateThreshold(threshold); err != nil {
		return nil, err
	}
	return &Classifier{registry: registry, threshold: threshold}, nil
}

// Threshold returns the acceptance threshold.
func (c *Classifier) Threshold() float64 {
	return c.threshold
}

// Classify returns the best matching identity for the query.
//
// Entries with a zero norm, or a NaN similarity, are skipped. Ties keep the earliest entry in registry order.
// With nothing comparable the result is UnknownKey with NoComparisonScore.
// A wrong-dimension or empty query fails with an *InvalidEmbeddingError before scoring.
func (c *Classifier) Classify(query Embedding) (MatchResult, error) {
	if err := c.validate(query); err != nil {
		return MatchResult{}, err
	}

	result := MatchResult{Key: UnknownKey, Score: NoComparisonScore}
	found := false
	for _, entry := range c.entries() {
		sim, ok := comparable(query, entry.Embedding)
		if !ok {
			continue
		}
		if !found || sim > result.Score {
			result.Key = entry.Key
			result.DisplayName = entry.DisplayName
			result.Score = sim
			found = true
		}
	}

	if !found {
		return MatchResult{Key: UnknownKey, Score: NoComparisonScore}, nil
	}
	result.Nearest = result.Key
	result.Accepted = result.Score >= c.threshold
	if !result.Accepted {
		result.Key = UnknownKey
		result.DisplayName = ""
	}
	return result, nil
}

// Candidate is one scored registry entry.
type Candidate struct {
	Key         string  `json:"identity_key"`
	DisplayName string  `json:"display_name"`
	Score       float64 `json:"score"`
	Accepted    bool    `json:"accepted"`
}

// TopK returns up to k comparable entries ordered by descending score.
// Equal scores keep registry order.
func (c *Classifier) TopK(query Embedding, k int) ([]Candidate, error) {
	if err := c.validate(query); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, nil
	}

	var candidates []Candidate
	for _, entry := range c.entries() {
		sim, ok := comparable(query, entry.Embedding)
		if !ok {
			continue
		}
		candidates = append(candidates, Candidate{
			Key:         entry.Key,
			DisplayName: entry.DisplayName,
			Score:       sim,
			Accepted:    sim >= c.threshold,
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})
	if len(candidates) > k {
		candidates = candidates[:k]
	}
	return candidates, nil
}

func (c *Classifier) validate(query Embedding) error {
	if c.registry == nil {
		return ValidateDimension("", query, 0)
	}
	return c.registry.ValidateQuery(query)
}

func (c *Classifier) entries() []EnrolledIdentity {
	if c.registry == nil {
		return nil
	}
	return c.registry.entries
}

func comparable(q, e Embedding) (float64, bool) {
	sim, ok := CosineSimilarity(q, e)
	if !ok || math.IsNaN(sim) {
		return 0, false
	}
	return sim, true
}
