package csvstore

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/kozaktomas/face-attendance/internal/database"
)

func (s *Store) studentsPath() string {
	return filepath.Join(s.dir, studentsFile)
}

func parseTime(v string) time.Time {
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}
	}
	return t
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}

func (s *Store) loadStudents() ([]database.Student, error) {
	rows, err := readRows(s.studentsPath(), studentsHeader, 2)
	if err != nil {
		return nil, err
	}
	students := make([]database.Student, 0, len(rows))
	for _, row := range rows {
		students = append(students, database.Student{
			ID:         row[0],
			Name:       row[1],
			Department: row[2],
			Year:       row[3],
			Email:      row[4],
			Phone:      row[5],
			PhotoPath:  row[6],
			CreatedAt:  parseTime(row[7]),
			UpdatedAt:  parseTime(row[8]),
		})
	}
	sort.SliceStable(students, func(i, j int) bool { return students[i].ID < students[j].ID })
	return students, nil
}

func (s *Store) storeStudents(students []database.Student) error {
	rows := make([][]string, len(students))
	for i, st := range students {
		rows[i] = []string{
			st.ID, st.Name, st.Department, st.Year, st.Email, st.Phone, st.PhotoPath,
			formatTime(st.CreatedAt), formatTime(st.UpdatedAt),
		}
	}
	if err := writeRows(s.studentsPath(), studentsHeader, rows); err != nil {
		return fmt.Errorf("writing students: %w", err)
	}
	return nil
}

func (s *Store) GetStudent(ctx context.Context, id string) (*database.Student, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	students, err := s.loadStudents()
	if err != nil {
		return nil, err
	}
	for i := range students {
		if students[i].ID == id {
			return &students[i], nil
		}
	}
	return nil, nil
}

func (s *Store) ListStudents(ctx context.Context) ([]database.Student, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadStudents()
}

func (s *Store) SaveStudent(ctx context.Context, st *database.Student) error {
	if st.ID == "" {
		return fmt.Errorf("student ID is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	students, err := s.loadStudents()
	if err != nil {
		return err
	}
	replaced := false
	for i := range students {
		if students[i].ID == st.ID {
			students[i] = *st
			replaced = true
			break
		}
	}
	if !replaced {
		students = append(students, *st)
	}
	return s.storeStudents(students)
}

// DeleteStudent removes the student and its enrollment. Attendance files are left untouched.
func (s *Store) DeleteStudent(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	students, err := s.loadStudents()
	if err != nil {
		return err
	}
	kept := students[:0]
	for _, st := range students {
		if st.ID != id {
			kept = append(kept, st)
		}
	}
	if len(kept) == len(students) {
		return fmt.Errorf("%s: %w", id, database.ErrStudentNotFound)
	}
	if err := s.storeStudents(kept); err != nil {
		return err
	}
	return s.deleteEnrollment(id)
}
