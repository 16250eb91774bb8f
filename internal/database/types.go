package database

import (
	"time"

	"github.com/kozaktomas/face-attendance/internal/facematch"
)

// Student is an entry of the student directory
type Student struct {
	ID         string
	Name       string
	Department string
	Year       string
	Email      string
	Phone      string
	PhotoPath  string // reference photo captured at enrollment
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// StoredEnrollment represents the face embedding enrolled for a student.
// There is at most one per student; a new enrollment replaces it.
type StoredEnrollment struct {
	StudentID   string
	DisplayName string
	Embedding   []float64
	Model       string
	CreatedAt   time.Time
}

// Dim returns the embedding length
func (e *StoredEnrollment) Dim() int {
	return len(e.Embedding)
}

// AttendanceRecord is one persisted attendance row. Date and Time keep the
// on-disk layouts (YYYY-MM-DD and HH:MM:SS) so every backend agrees on them.
type AttendanceRecord struct {
	StudentID  string
	Name       string
	Department string
	Date       string
	Time       string
	Status     string
	Confidence float64 // similarity score of the match that produced the record
}

// AttendanceStat aggregates attendance per student over a date range
type AttendanceStat struct {
	StudentID     string  `json:"student_id"`
	Name          string  `json:"name"`
	Department    string  `json:"department"`
	DaysPresent   int     `json:"days_present"`
	AvgConfidence float64 `json:"avg_confidence"`
	LastSeen      string  `json:"last_seen,omitempty"`
}

// ToEnrollmentRecords converts stored enrollments into registry input, preserving order
func ToEnrollmentRecords(enrollments []StoredEnrollment) []facematch.EnrollmentRecord {
	records := make([]facematch.EnrollmentRecord, len(enrollments))
	for i, e := range enrollments {
		records[i] = facematch.EnrollmentRecord{
			Key:         e.StudentID,
			DisplayName: e.DisplayName,
			Embedding:   e.Embedding,
		}
	}
	return records
}

// ToNamedIdentities lists students for legacy name resolution
func ToNamedIdentities(students []Student) []facematch.NamedIdentity {
	ids := make([]facematch.NamedIdentity, len(students))
	for i, s := range students {
		ids[i] = facematch.NamedIdentity{Key: s.ID, Name: s.Name}
	}
	return ids
}
