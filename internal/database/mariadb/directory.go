package mariadb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kozaktomas/face-attendance/internal/database"
)

// Directory implements database.StudentReader on a `students` table with
// id, name, department, year, email and phone columns.
type Directory struct {
	pool *Pool
}

// NewDirectory creates a student directory on the pool
func NewDirectory(pool *Pool) *Directory {
	return &Directory{pool: pool}
}

const directoryQuery = `
	SELECT id, name, COALESCE(department, ''), COALESCE(CAST(year AS CHAR), ''),
		COALESCE(email, ''), COALESCE(phone, '')
	FROM students`

func scanStudent(scan func(dest ...any) error) (database.Student, error) {
	var s database.Student
	err := scan(&s.ID, &s.Name, &s.Department, &s.Year, &s.Email, &s.Phone)
	return s, err
}

// GetStudent retrieves a student by ID, returns nil if not found
func (d *Directory) GetStudent(ctx context.Context, id string) (*database.Student, error) {
	s, err := scanStudent(d.pool.db.QueryRowContext(ctx, directoryQuery+" WHERE id = ?", id).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query directory student: %w", err)
	}
	return &s, nil
}

// ListStudents returns all students ordered by ID
func (d *Directory) ListStudents(ctx context.Context) ([]database.Student, error) {
	rows, err := d.pool.db.QueryContext(ctx, directoryQuery+" ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("list directory students: %w", err)
	}
	defer rows.Close()

	var students []database.Student
	for rows.Next() {
		s, err := scanStudent(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan directory student: %w", err)
		}
		students = append(students, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate directory students: %w", err)
	}
	return students, nil
}
