package recognition

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/database/mock"
	"github.com/kozaktomas/face-attendance/internal/facematch"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var recognitionConfig = config.RecognitionConfig{Threshold: 0.85, ProcessEveryN: 1}

var morning = time.Date(2025, 1, 1, 8, 30, 0, 0, time.Local)

func testRegistry(t *testing.T) *facematch.Registry {
	t.Helper()
	reg, _, err := facematch.LoadRegistry([]facematch.EnrollmentRecord{
		{Key: "S001", DisplayName: "Alice", Embedding: facematch.Embedding{1, 0, 0, 0}},
		{Key: "S002", DisplayName: "Bob", Embedding: facematch.Embedding{0, 1, 0, 0}},
	}, 4, quietLogger())
	if err != nil {
		t.Fatalf("LoadRegistry() error = %v", err)
	}
	return reg
}

func newTestSession(t *testing.T, sink *mock.MockAttendanceStore) *Session {
	t.Helper()
	s, err := NewSession(testRegistry(t), recognitionConfig, attendance.NewDeduplicator(sink, nil, quietLogger()), quietLogger())
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}
	return s
}

func TestNewSession_Validation(t *testing.T) {
	dedup := attendance.NewDeduplicator(mock.NewMockAttendanceStore(), nil, quietLogger())

	if _, err := NewSession(nil, recognitionConfig, dedup, nil); !errors.Is(err, facematch.ErrNoEnrollments) {
		t.Errorf("nil registry: error = %v, want ErrNoEnrollments", err)
	}

	bad := config.RecognitionConfig{Threshold: 0.3, ProcessEveryN: 1}
	if _, err := NewSession(testRegistry(t), bad, dedup, nil); !errors.Is(err, facematch.ErrThresholdOutOfRange) {
		t.Errorf("low threshold: error = %v, want ErrThresholdOutOfRange", err)
	}

	if _, err := NewSession(testRegistry(t), recognitionConfig, nil, nil); err == nil {
		t.Error("expected error without a deduplicator")
	}
}

func TestSession_Observe(t *testing.T) {
	sink := mock.NewMockAttendanceStore()
	s := newTestSession(t, sink)
	ctx := context.Background()

	out, err := s.Observe(ctx, facematch.Observation{Embedding: facematch.Embedding{0.99, 0.05, 0, 0}}, morning)
	if err != nil {
		t.Fatalf("Observe() error = %v", err)
	}
	if !out.Match.Accepted || out.Match.Key != "S001" || !out.Marked {
		t.Errorf("Observe() = %+v, want S001 accepted and marked", out)
	}

	out, err = s.Observe(ctx, facematch.Observation{Embedding: facematch.Embedding{1, 0, 0, 0}}, morning.Add(time.Second))
	if err != nil {
		t.Fatalf("Observe() error = %v", err)
	}
	if !out.Match.Accepted || out.Marked {
		t.Errorf("second Observe() = %+v, want accepted but not marked", out)
	}

	out, err = s.Observe(ctx, facematch.Observation{Embedding: facematch.Embedding{0, 0, 1, 0}}, morning)
	if err != nil {
		t.Fatalf("Observe() error = %v", err)
	}
	if out.Match.Accepted || out.Marked || out.Match.Key != facematch.UnknownKey {
		t.Errorf("stranger Observe() = %+v, want unknown", out)
	}

	if got := len(sink.Records()); got != 1 {
		t.Errorf("len(records) = %d, want 1", got)
	}
	if marked := s.Marked(); len(marked) != 1 || marked[0] != "S001" {
		t.Errorf("Marked() = %v, want [S001]", marked)
	}
}

func TestSession_ObserveInvalidEmbedding(t *testing.T) {
	sink := mock.NewMockAttendanceStore()
	s := newTestSession(t, sink)

	_, err := s.Observe(context.Background(), facematch.Observation{Embedding: facematch.Embedding{1, 0}}, morning)
	if !errors.Is(err, facematch.ErrInvalidEmbedding) {
		t.Errorf("Observe() error = %v, want ErrInvalidEmbedding", err)
	}
	if sink.AppendCalls() != 0 {
		t.Error("no attendance write expected for an invalid embedding")
	}
}

func TestSession_Close(t *testing.T) {
	s := newTestSession(t, mock.NewMockAttendanceStore())
	s.Close()
	s.Close()

	_, err := s.Observe(context.Background(), facematch.Observation{Embedding: facematch.Embedding{1, 0, 0, 0}}, morning)
	if !errors.Is(err, ErrSessionClosed) {
		t.Errorf("Observe() after Close error = %v, want ErrSessionClosed", err)
	}
}

func TestSession_NewSessionMarksAgainOnlyOnNewDay(t *testing.T) {
	sink := mock.NewMockAttendanceStore()
	ctx := context.Background()
	obs := facematch.Observation{Embedding: facematch.Embedding{0, 1, 0, 0}}

	first := newTestSession(t, sink)
	if out, _ := first.Observe(ctx, obs, morning); !out.Marked {
		t.Fatal("first session should mark S002")
	}
	first.Close()

	second := newTestSession(t, sink)
	if out, _ := second.Observe(ctx, obs, morning.Add(4*time.Hour)); out.Marked {
		t.Error("a new session on the same day must not mark again")
	}
	if out, _ := second.Observe(ctx, obs, morning.AddDate(0, 0, 1)); !out.Marked {
		t.Error("a new day should mark again")
	}
	if first.ID == second.ID {
		t.Error("sessions should have distinct IDs")
	}
}
