package facematch

import (
	"fmt"
	"log/slog"
	"math"
)

// Registry is the immutable set of enrolled identities a session compares against.
// Iteration order is load order and decides ties.
type Registry struct {
	dim     int
	entries []EnrolledIdentity
	index   map[string]int
}

// SkippedRecord is an enrollment record rejected while loading.
type SkippedRecord struct {
	Key    string
	Reason string
}

// LoadReport summarizes a registry load.
type LoadReport struct {
	Loaded   int
	Skipped  []SkippedRecord
	Replaced int // duplicate keys where a later record won
}

// LoadRegistry validates enrollment records and builds a Registry.
//
// Records with a missing, non-finite or wrong-length embedding are skipped and reported,
// never fatal. When dim is 0 the first non-empty embedding fixes the dimension.
// A duplicate key replaces the earlier embedding but keeps its position.
// An empty result returns ErrNoEnrollments together with the report.
func LoadRegistry(records []EnrollmentRecord, dim int, logger *slog.Logger) (*Registry, LoadReport, error) {
	if logger == nil {
		logger = slog.Default()
	}

	reg := &Registry{
		dim:   dim,
		index: make(map[string]int, len(records)),
	}
	var report LoadReport

	for _, rec := range records {
		if rec.Key == "" {
			report.Skipped = append(report.Skipped, SkippedRecord{Reason: "missing identity key"})
			logger.Warn("skipping enrollment without identity key", "display_name", rec.DisplayName)
			continue
		}
		if reg.dim == 0 && len(rec.Embedding) > 0 {
			reg.dim = len(rec.Embedding)
		}
		if err := validateEnrollment(rec.Key, rec.Embedding, reg.dim); err != nil {
			report.Skipped = append(report.Skipped, SkippedRecord{Key: rec.Key, Reason: err.Error()})
			logger.Warn("skipping enrollment", "identity_key", rec.Key, "error", err)
			continue
		}

		entry := EnrolledIdentity{
			Key:         rec.Key,
			DisplayName: rec.DisplayName,
			Embedding:   append(Embedding(nil), rec.Embedding...),
		}
		if pos, exists := reg.index[rec.Key]; exists {
			reg.entries[pos] = entry
			report.Replaced++
			logger.Warn("duplicate enrollment, keeping the later one", "identity_key", rec.Key)
			continue
		}
		reg.index[rec.Key] = len(reg.entries)
		reg.entries = append(reg.entries, entry)
	}

	report.Loaded = len(reg.entries)
	if report.Loaded == 0 {
		return nil, report, fmt.Errorf("loading registry from %d records: %w", len(records), ErrNoEnrollments)
	}
	return reg, report, nil
}

// ValidateQuery checks a query embedding against the registry dimension.
func (r *Registry) ValidateQuery(q Embedding) error {
	return ValidateDimension("", q, r.dim)
}

// ValidateDimension checks that an embedding is non-empty and has the expected length.
// A want of 0 accepts any non-empty length.
func ValidateDimension(key string, e Embedding, want int) error {
	if len(e) == 0 {
		return &InvalidEmbeddingError{Key: key, Got: 0, Want: want, Reason: "empty embedding"}
	}
	if want > 0 && len(e) != want {
		return &InvalidEmbeddingError{Key: key, Got: len(e), Want: want, Reason: "wrong dimension"}
	}
	return nil
}

func validateEnrollment(key string, e Embedding, want int) error {
	if err := ValidateDimension(key, e, want); err != nil {
		return err
	}
	for _, v := range e {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return &InvalidEmbeddingError{Key: key, Got: len(e), Want: want, Reason: "non-finite value"}
		}
	}
	return nil
}

// Dim returns the embedding dimension shared by every entry.
func (r *Registry) Dim() int {
	return r.dim
}

// Len returns the number of enrolled identities.
func (r *Registry) Len() int {
	return len(r.entries)
}

// Get returns the identity for a key.
func (r *Registry) Get(key string) (EnrolledIdentity, bool) {
	pos, ok := r.index[key]
	if !ok {
		return EnrolledIdentity{}, false
	}
	return r.entries[pos], true
}

// Entries returns a copy of the entries in iteration order.
func (r *Registry) Entries() []EnrolledIdentity {
	out := make([]EnrolledIdentity, len(r.entries))
	copy(out, r.entries)
	return out
}
