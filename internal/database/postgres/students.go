package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kozaktomas/face-attendance/internal/database"
)

// StudentRepository provides PostgreSQL-backed student storage
type StudentRepository struct {
	pool *Pool
}

// NewStudentRepository creates a new PostgreSQL student repository
func NewStudentRepository(pool *Pool) *StudentRepository {
	return &StudentRepository{pool: pool}
}

const studentColumns = `id, name, department, year, email, phone, photo_path, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStudent(row rowScanner) (*database.Student, error) {
	var s database.Student
	err := row.Scan(&s.ID, &s.Name, &s.Department, &s.Year, &s.Email, &s.Phone, &s.PhotoPath, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// GetStudent retrieves a student by ID, returns nil if not found
func (r *StudentRepository) GetStudent(ctx context.Context, id string) (*database.Student, error) {
	s, err := scanStudent(r.pool.QueryRow(ctx, `SELECT `+studentColumns+` FROM students WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query student: %w", err)
	}
	return s, nil
}

// ListStudents returns all students ordered by ID
func (r *StudentRepository) ListStudents(ctx context.Context) ([]database.Student, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+studentColumns+` FROM students ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	defer rows.Close()

	var students []database.Student
	for rows.Next() {
		s, err := scanStudent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan student: %w", err)
		}
		students = append(students, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate students: %w", err)
	}
	return students, nil
}

// SaveStudent inserts or updates a student; created_at of an existing row is kept
func (r *StudentRepository) SaveStudent(ctx context.Context, s *database.Student) error {
	if s.ID == "" {
		return errors.New("student ID is required")
	}
	query := `
		INSERT INTO students (id, name, department, year, email, phone, photo_path, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, COALESCE($8, NOW()), COALESCE($9, NOW()))
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			department = EXCLUDED.department,
			year = EXCLUDED.year,
			email = EXCLUDED.email,
			phone = EXCLUDED.phone,
			photo_path = EXCLUDED.photo_path,
			updated_at = EXCLUDED.updated_at
	`
	_, err := r.pool.Exec(ctx, query, s.ID, s.Name, s.Department, s.Year, s.Email, s.Phone, s.PhotoPath,
		nullTime(s.CreatedAt), nullTime(s.UpdatedAt))
	if err != nil {
		return fmt.Errorf("save student: %w", err)
	}
	return nil
}

// DeleteStudent removes a student; the enrollment goes with it, attendance stays
func (r *StudentRepository) DeleteStudent(ctx context.Context, id string) error {
	result, err := r.pool.Exec(ctx, "DELETE FROM students WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete student: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", id, database.ErrStudentNotFound)
	}
	return nil
}
