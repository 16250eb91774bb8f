package csvstore

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/kozaktomas/face-attendance/internal/database"
)

func (s *Store) enrollmentsPath() string {
	return filepath.Join(s.dir, enrollmentsFile)
}

func formatEmbedding(e []float64) string {
	parts := make([]string, len(e))
	for i, v := range e {
		parts[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return strings.Join(parts, " ")
}

func parseEmbedding(v string) ([]float64, error) {
	fields := strings.Fields(v)
	e := make([]float64, len(fields))
	for i, f := range fields {
		x, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, fmt.Errorf("value %d: %w", i, err)
		}
		e[i] = x
	}
	return e, nil
}

func enrollmentRow(e database.StoredEnrollment) []string {
	return []string{e.StudentID, e.DisplayName, e.Model, formatTime(e.CreatedAt), formatEmbedding(e.Embedding)}
}

func (s *Store) loadEnrollmentRows() ([][]string, error) {
	return readRows(s.enrollmentsPath(), enrollmentsHeader, 1)
}

// loadEnrollments parses every row. A malformed embedding is logged and returned
// empty, so the registry loader reports the identity as skipped.
func (s *Store) loadEnrollments() ([]database.StoredEnrollment, error) {
	rows, err := s.loadEnrollmentRows()
	if err != nil {
		return nil, err
	}
	out := make([]database.StoredEnrollment, 0, len(rows))
	for i, row := range rows {
		embedding, err := parseEmbedding(row[4])
		if err != nil {
			slog.Warn("malformed enrollment embedding", "file", enrollmentsFile, "line", i+2, "student", row[0], "error", err)
		}
		out = append(out, database.StoredEnrollment{
			StudentID:   row[0],
			DisplayName: row[1],
			Model:       row[2],
			CreatedAt:   parseTime(row[3]),
			Embedding:   embedding,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StudentID < out[j].StudentID })
	return out, nil
}

// storeEnrollmentRows rewrites the file from raw rows, so rows of other students
// are kept exactly as read.
func (s *Store) storeEnrollmentRows(rows [][]string) error {
	if err := writeRows(s.enrollmentsPath(), enrollmentsHeader, rows); err != nil {
		return fmt.Errorf("writing enrollments: %w", err)
	}
	return nil
}

func (s *Store) GetEnrollment(ctx context.Context, studentID string) (*database.StoredEnrollment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	enrollments, err := s.loadEnrollments()
	if err != nil {
		return nil, err
	}
	for i := range enrollments {
		if enrollments[i].StudentID == studentID {
			return &enrollments[i], nil
		}
	}
	return nil, nil
}

func (s *Store) ListEnrollments(ctx context.Context) ([]database.StoredEnrollment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadEnrollments()
}

func (s *Store) SaveEnrollment(ctx context.Context, e *database.StoredEnrollment) error {
	if e.StudentID == "" {
		return fmt.Errorf("student ID is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.loadEnrollmentRows()
	if err != nil {
		return err
	}
	row := enrollmentRow(*e)

	replaced := false
	for i := range rows {
		if rows[i][0] == e.StudentID {
			rows[i] = row
			replaced = true
			break
		}
	}
	if !replaced {
		rows = append(rows, row)
	}
	return s.storeEnrollmentRows(rows)
}

func (s *Store) DeleteEnrollment(ctx context.Context, studentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteEnrollment(studentID)
}

func (s *Store) deleteEnrollment(studentID string) error {
	rows, err := s.loadEnrollmentRows()
	if err != nil {
		return err
	}
	kept := rows[:0]
	for _, row := range rows {
		if row[0] != studentID {
			kept = append(kept, row)
		}
	}
	if len(kept) == len(rows) {
		return nil
	}
	return s.storeEnrollmentRows(kept)
}
