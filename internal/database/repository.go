package database

import (
	"context"
	"errors"
)

// ErrStudentNotFound is returned by operations that require an existing student
var ErrStudentNotFound = errors.New("student not found")

// StudentReader provides read-only access to the student directory
type StudentReader interface {
	// GetStudent retrieves a student by ID, returns nil if not found
	GetStudent(ctx context.Context, id string) (*Student, error)
	// ListStudents returns all students ordered by ID
	ListStudents(ctx context.Context) ([]Student, error)
}

// StudentWriter provides write access to the student directory
type StudentWriter interface {
	StudentReader

	// SaveStudent inserts or updates a student
	SaveStudent(ctx context.Context, s *Student) error
	// DeleteStudent removes a student; attendance history is kept
	DeleteStudent(ctx context.Context, id string) error
}

// EnrollmentReader provides read-only access to enrolled face embeddings
type EnrollmentReader interface {
	// GetEnrollment retrieves the enrollment of a student, returns nil if not found
	GetEnrollment(ctx context.Context, studentID string) (*StoredEnrollment, error)
	// ListEnrollments returns all enrollments in a stable order (by student ID)
	ListEnrollments(ctx context.Context) ([]StoredEnrollment, error)
}

// EnrollmentWriter provides write access to enrolled face embeddings
type EnrollmentWriter interface {
	EnrollmentReader

	// SaveEnrollment stores the enrollment, replacing any previous one for the student
	SaveEnrollment(ctx context.Context, e *StoredEnrollment) error
	// DeleteEnrollment removes the enrollment of a student
	DeleteEnrollment(ctx context.Context, studentID string) error
}

// AttendanceReader provides read-only access to attendance records
type AttendanceReader interface {
	// HasAttendance checks if a record exists for the student on the date (YYYY-MM-DD)
	HasAttendance(ctx context.Context, studentID, date string) (bool, error)
	// ListAttendance returns the records of one date ordered by time
	ListAttendance(ctx context.Context, date string) ([]AttendanceRecord, error)
	// AttendanceStats aggregates records between from and to (inclusive) for every student
	AttendanceStats(ctx context.Context, from, to string) ([]AttendanceStat, error)
}

// AttendanceWriter provides append-only write access to attendance records
type AttendanceWriter interface {
	AttendanceReader

	// AppendAttendance writes the record unless one already exists for (StudentID, Date).
	// Returns true only when a new record was written.
	AppendAttendance(ctx context.Context, rec *AttendanceRecord) (bool, error)
}
