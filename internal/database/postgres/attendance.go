package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/kozaktomas/face-attendance/internal/database"
)

// AttendanceRepository provides PostgreSQL-backed attendance storage.
// UNIQUE(student_id, date) makes AppendAttendance safe across processes.
type AttendanceRepository struct {
	pool *Pool
}

// NewAttendanceRepository creates a new PostgreSQL attendance repository
func NewAttendanceRepository(pool *Pool) *AttendanceRepository {
	return &AttendanceRepository{pool: pool}
}

// HasAttendance checks if a record exists for the student on the date
func (r *AttendanceRepository) HasAttendance(ctx context.Context, studentID, date string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM attendance WHERE student_id = $1 AND date = $2::date)",
		studentID, date).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check attendance exists: %w", err)
	}
	return exists, nil
}

// ListAttendance returns the records of one date ordered by time
func (r *AttendanceRepository) ListAttendance(ctx context.Context, date string) ([]database.AttendanceRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT student_id, name, department, to_char(date, 'YYYY-MM-DD'), to_char(time, 'HH24:MI:SS'), status, confidence
		FROM attendance
		WHERE date = $1::date
		ORDER BY time, id
	`, date)
	if err != nil {
		return nil, fmt.Errorf("list attendance: %w", err)
	}
	defer rows.Close()

	var records []database.AttendanceRecord
	for rows.Next() {
		var a database.AttendanceRecord
		if err := rows.Scan(&a.StudentID, &a.Name, &a.Department, &a.Date, &a.Time, &a.Status, &a.Confidence); err != nil {
			return nil, fmt.Errorf("scan attendance: %w", err)
		}
		records = append(records, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attendance: %w", err)
	}
	return records, nil
}

// AttendanceStats aggregates records between from and to (inclusive). Every student
// is listed, as is every attendee no longer in the students table.
func (r *AttendanceRepository) AttendanceStats(ctx context.Context, from, to string) ([]database.AttendanceStat, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT s.id, s.name, s.department,
			COUNT(a.id),
			COALESCE(AVG(a.confidence), 0),
			COALESCE(to_char(MAX(a.date), 'YYYY-MM-DD'), '')
		FROM students s
		LEFT JOIN attendance a ON a.student_id = s.id AND a.date BETWEEN $1::date AND $2::date
		GROUP BY s.id, s.name, s.department
		UNION ALL
		SELECT a.student_id, MAX(a.name), MAX(a.department),
			COUNT(*),
			AVG(a.confidence),
			to_char(MAX(a.date), 'YYYY-MM-DD')
		FROM attendance a
		WHERE a.date BETWEEN $1::date AND $2::date
			AND NOT EXISTS (SELECT 1 FROM students s WHERE s.id = a.student_id)
		GROUP BY a.student_id
		ORDER BY 1
	`, from, to)
	if err != nil {
		return nil, fmt.Errorf("attendance stats: %w", err)
	}
	defer rows.Close()

	var stats []database.AttendanceStat
	for rows.Next() {
		var st database.AttendanceStat
		if err := rows.Scan(&st.StudentID, &st.Name, &st.Department, &st.DaysPresent, &st.AvgConfidence, &st.LastSeen); err != nil {
			return nil, fmt.Errorf("scan attendance stat: %w", err)
		}
		stats = append(stats, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attendance stats: %w", err)
	}
	return stats, nil
}

// AppendAttendance inserts the record unless (student_id, date) already exists
func (r *AttendanceRepository) AppendAttendance(ctx context.Context, rec *database.AttendanceRecord) (bool, error) {
	if rec.StudentID == "" {
		return false, errors.New("student ID is required")
	}
	result, err := r.pool.Exec(ctx, `
		INSERT INTO attendance (student_id, name, department, date, time, status, confidence)
		VALUES ($1, $2, $3, $4::date, $5::time, $6, $7)
		ON CONFLICT (student_id, date) DO NOTHING
	`, rec.StudentID, rec.Name, rec.Department, rec.Date, rec.Time, rec.Status, rec.Confidence)
	if err != nil {
		return false, fmt.Errorf("append attendance: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("getting rows affected: %w", err)
	}
	return n == 1, nil
}
