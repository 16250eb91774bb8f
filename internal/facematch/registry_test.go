package facematch

import (
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// unit returns a dim-length vector with 1 at position i.
func unit(dim, i int) Embedding {
	e := make(Embedding, dim)
	e[i] = 1
	return e
}

func TestLoadRegistry_SkipsWrongDimension(t *testing.T) {
	records := []EnrollmentRecord{
		{Key: "S001", DisplayName: "Alice", Embedding: unit(128, 0)},
		{Key: "S002", DisplayName: "Bob", Embedding: unit(64, 1)},
		{Key: "S003", DisplayName: "Carol", Embedding: unit(128, 2)},
	}

	reg, report, err := LoadRegistry(records, 128, quietLogger())
	if err != nil {
		t.Fatalf("LoadRegistry() error = %v", err)
	}
	if reg.Len() != 2 {
		t.Errorf("Len() = %d, want 2", reg.Len())
	}
	if report.Loaded != 2 {
		t.Errorf("report.Loaded = %d, want 2", report.Loaded)
	}
	if len(report.Skipped) != 1 {
		t.Fatalf("len(report.Skipped) = %d, want 1", len(report.Skipped))
	}
	if report.Skipped[0].Key != "S002" {
		t.Errorf("skipped key = %q, want S002", report.Skipped[0].Key)
	}
	if _, ok := reg.Get("S002"); ok {
		t.Error("S002 should not be in the registry")
	}
}

func TestLoadRegistry_Empty(t *testing.T) {
	tests := []struct {
		name    string
		records []EnrollmentRecord
	}{
		{name: "no records", records: nil},
		{name: "all invalid", records: []EnrollmentRecord{
			{Key: "S001", Embedding: nil},
			{Key: "S002", Embedding: unit(3, 0)},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg, _, err := LoadRegistry(tt.records, 8, quietLogger())
			if !errors.Is(err, ErrNoEnrollments) {
				t.Errorf("error = %v, want ErrNoEnrollments", err)
			}
			if reg != nil {
				t.Error("registry should be nil")
			}
		})
	}
}

func TestLoadRegistry_RejectsNonFinite(t *testing.T) {
	bad := unit(4, 0)
	bad[2] = math.NaN()
	inf := unit(4, 1)
	inf[3] = math.Inf(1)

	reg, report, err := LoadRegistry([]EnrollmentRecord{
		{Key: "nan", Embedding: bad},
		{Key: "inf", Embedding: inf},
		{Key: "ok", Embedding: unit(4, 2)},
	}, 4, quietLogger())
	if err != nil {
		t.Fatalf("LoadRegistry() error = %v", err)
	}
	if reg.Len() != 1 {
		t.Errorf("Len() = %d, want 1", reg.Len())
	}
	if len(report.Skipped) != 2 {
		t.Errorf("len(report.Skipped) = %d, want 2", len(report.Skipped))
	}
}

func TestLoadRegistry_InfersDimension(t *testing.T) {
	reg, report, err := LoadRegistry([]EnrollmentRecord{
		{Key: "empty", Embedding: Embedding{}},
		{Key: "a", Embedding: unit(16, 0)},
		{Key: "b", Embedding: unit(8, 0)},
	}, 0, quietLogger())
	if err != nil {
		t.Fatalf("LoadRegistry() error = %v", err)
	}
	if reg.Dim() != 16 {
		t.Errorf("Dim() = %d, want 16", reg.Dim())
	}
	if reg.Len() != 1 || len(report.Skipped) != 2 {
		t.Errorf("Len() = %d, skipped = %d, want 1 and 2", reg.Len(), len(report.Skipped))
	}
}

func TestLoadRegistry_DuplicateKeepsPosition(t *testing.T) {
	reg, report, err := LoadRegistry([]EnrollmentRecord{
		{Key: "a", DisplayName: "Old", Embedding: unit(3, 0)},
		{Key: "b", DisplayName: "Bob", Embedding: unit(3, 1)},
		{Key: "a", DisplayName: "New", Embedding: unit(3, 2)},
	}, 3, quietLogger())
	if err != nil {
		t.Fatalf("LoadRegistry() error = %v", err)
	}
	if report.Replaced != 1 {
		t.Errorf("Replaced = %d, want 1", report.Replaced)
	}

	entries := reg.Entries()
	if len(entries) != 2 {
		t.Fatalf("len(entries) = %d, want 2", len(entries))
	}
	if entries[0].Key != "a" || entries[0].DisplayName != "New" {
		t.Errorf("entries[0] = %+v, want key a with name New", entries[0])
	}
	if entries[0].Embedding[2] != 1 {
		t.Error("entries[0] should carry the later embedding")
	}
}

func TestLoadRegistry_DoesNotAliasInput(t *testing.T) {
	emb := unit(3, 0)
	reg, _, err := LoadRegistry([]EnrollmentRecord{{Key: "a", Embedding: emb}}, 3, quietLogger())
	if err != nil {
		t.Fatalf("LoadRegistry() error = %v", err)
	}
	emb[0] = 0

	got, _ := reg.Get("a")
	if got.Embedding[0] != 1 {
		t.Error("registry entry changed after mutating the input record")
	}
}

func TestValidateDimension(t *testing.T) {
	tests := []struct {
		name    string
		e       Embedding
		want    int
		wantErr bool
	}{
		{name: "match", e: unit(4, 0), want: 4},
		{name: "any length", e: unit(7, 0), want: 0},
		{name: "too short", e: unit(3, 0), want: 4, wantErr: true},
		{name: "too long", e: unit(5, 0), want: 4, wantErr: true},
		{name: "empty", e: Embedding{}, want: 4, wantErr: true},
		{name: "nil", e: nil, want: 0, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDimension("k", tt.e, tt.want)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidEmbedding) {
					t.Errorf("error = %v, want ErrInvalidEmbedding", err)
				}
				var ie *InvalidEmbeddingError
				if !errors.As(err, &ie) {
					t.Errorf("error %T is not *InvalidEmbeddingError", err)
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}
