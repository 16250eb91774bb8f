// Package recognition runs recognition sessions: frames in, attendance records out.
package recognition

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/facematch"
)

// ErrSessionClosed is returned by Observe after Close.
var ErrSessionClosed = errors.New("recognition session closed")

// Outcome is what one observation led to.
type Outcome struct {
	Match  facematch.MatchResult
	Marked bool // a new attendance record was written
}

// Session holds everything one recognition run needs. The registry is fixed for the
// lifetime of the session; pick up new enrollments by starting a new one.
type Session struct {
	ID        string
	StartedAt time.Time

	registry   *facematch.Registry
	classifier *facematch.Classifier
	dedup      *attendance.Deduplicator
	logger     *slog.Logger

	mu     sync.RWMutex
	closed bool
}

// NewSession validates cfg and creates a session over registry.
func NewSession(registry *facematch.Registry, cfg config.RecognitionConfig, dedup *attendance.Deduplicator, logger *slog.Logger) (*Session, error) {
	if registry == nil || registry.Len() == 0 {
		return nil, facematch.ErrNoEnrollments
	}
	if dedup == nil {
		return nil, errors.New("deduplicator is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid recognition config: %w", err)
	}
	classifier, err := facematch.NewClassifier(registry, cfg.Threshold)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	id := uuid.NewString()
	return &Session{
		ID:         id,
		StartedAt:  time.Now(),
		registry:   registry,
		classifier: classifier,
		dedup:      dedup,
		logger:     logger.With("session", id),
	}, nil
}

// Registry returns the session's registry.
func (s *Session) Registry() *facematch.Registry {
	return s.registry
}

// Classifier returns the session's classifier.
func (s *Session) Classifier() *facematch.Classifier {
	return s.classifier
}

// Observe classifies one observation and marks attendance when it is accepted.
// An embedding of the wrong length fails with facematch.ErrInvalidEmbedding.
func (s *Session) Observe(ctx context.Context, obs facematch.Observation, at time.Time) (Outcome, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return Outcome{}, ErrSessionClosed
	}

	match, err := s.classifier.Classify(obs.Embedding)
	if err != nil {
		return Outcome{}, err
	}
	out := Outcome{Match: match}
	if !match.Accepted {
		return out, nil
	}

	out.Marked, err = s.dedup.TryMarkMatch(ctx, attendance.Mark{
		Key:         match.Key,
		DisplayName: match.DisplayName,
		Score:       match.Score,
	}, at)
	if err != nil {
		return out, err
	}
	if out.Marked {
		s.logger.Info("recognized", "identity_key", match.Key, "name", match.DisplayName, "score", match.Score)
	}
	return out, nil
}

// Marked lists identities credited during the session.
func (s *Session) Marked() []string {
	return s.dedup.Marked()
}

// Close ends the session. It is safe to call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}
