package database

import (
	"context"
	"errors"
	"fmt"
)

// Backend bundles the repositories of one storage backend
type Backend struct {
	Name        string
	Students    StudentWriter
	Enrollments EnrollmentWriter
	Attendance  AttendanceWriter

	closers []func() error
}

// NewBackend creates a backend from its repositories
func NewBackend(name string, students StudentWriter, enrollments EnrollmentWriter, attendance AttendanceWriter) *Backend {
	return &Backend{
		Name:        name,
		Students:    students,
		Enrollments: enrollments,
		Attendance:  attendance,
	}
}

// OnClose registers a function to run when the backend is closed
func (b *Backend) OnClose(fn func() error) {
	b.closers = append(b.closers, fn)
}

// Close releases the backend's resources in reverse registration order
func (b *Backend) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	b.closers = nil
	return errors.Join(errs...)
}

// Directory returns the student reader used for attendance lookups.
// When an external directory is set it is consulted for students the backend lacks
// and for missing departments.
func (b *Backend) Directory(external StudentReader) StudentReader {
	if external == nil {
		return b.Students
	}
	return &LayeredDirectory{Primary: b.Students, External: external}
}

// LayeredDirectory reads students from a primary store, falling back to an external one
type LayeredDirectory struct {
	Primary  StudentReader
	External StudentReader
}

// GetStudent returns the primary entry completed with the external department if needed
func (d *LayeredDirectory) GetStudent(ctx context.Context, id string) (*Student, error) {
	s, err := d.Primary.GetStudent(ctx, id)
	if err != nil {
		return nil, err
	}
	if s != nil && s.Department != "" {
		return s, nil
	}

	ext, err := d.External.GetStudent(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("external directory: %w", err)
	}
	switch {
	case s == nil:
		return ext, nil
	case ext != nil:
		merged := *s
		merged.Department = ext.Department
		return &merged, nil
	default:
		return s, nil
	}
}

// ListStudents lists the primary store only
func (d *LayeredDirectory) ListStudents(ctx context.Context) ([]Student, error) {
	return d.Primary.ListStudents(ctx)
}
