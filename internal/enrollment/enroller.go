// Package enrollment turns a reference photo into a stored face embedding.
package enrollment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/faceapi"
	"github.com/kozaktomas/face-attendance/internal/facematch"
	"github.com/kozaktomas/face-attendance/internal/snapshot"
)

// Enroller registers students with their face embedding.
type Enroller struct {
	extractor   faceapi.Extractor
	students    database.StudentWriter
	enrollments database.EnrollmentWriter
	dim         int
	photoDir    string // empty skips storing the reference photo
	logger      *slog.Logger
	now         func() time.Time
}

// NewEnroller creates an enroller. dim is the expected embedding length, 0 accepts any.
func NewEnroller(extractor faceapi.Extractor, students database.StudentWriter, enrollments database.EnrollmentWriter,
	dim int, photoDir string, logger *slog.Logger) *Enroller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Enroller{
		extractor:   extractor,
		students:    students,
		enrollments: enrollments,
		dim:         dim,
		photoDir:    photoDir,
		logger:      logger,
		now:         time.Now,
	}
}

// Enroll calls the extractor once on image and stores the embedding of the largest face
// for student, replacing any earlier enrollment. No face fails with
// facematch.ErrNoFaceDetected and nothing is written.
func (e *Enroller) Enroll(ctx context.Context, student database.Student, image []byte) (*database.StoredEnrollment, error) {
	if student.ID == "" {
		return nil, errors.New("student ID is required")
	}
	if student.Name == "" {
		return nil, errors.New("student name is required")
	}

	resp, err := e.extractor.DetectFaces(ctx, image)
	if err != nil {
		return nil, fmt.Errorf("detecting faces: %w", err)
	}
	faces := resp.Observations()
	if len(faces) == 0 {
		return nil, fmt.Errorf("enrolling %s: %w", student.ID, facematch.ErrNoFaceDetected)
	}
	best := facematch.LargestFace(faces)
	if len(faces) > 1 {
		e.logger.Warn("several faces in reference photo, using the largest", "student_id", student.ID, "faces", len(faces))
	}
	embedding := faces[best].Embedding
	if err := facematch.ValidateDimension(student.ID, embedding, e.dim); err != nil {
		return nil, err
	}

	existing, err := e.students.GetStudent(ctx, student.ID)
	if err != nil {
		return nil, fmt.Errorf("looking up student: %w", err)
	}

	// The enrollment goes first; a failed save leaves no photo or student row behind.
	now := e.now()
	enrollment := &database.StoredEnrollment{
		StudentID:   student.ID,
		DisplayName: student.Name,
		Embedding:   embedding,
		Model:       resp.Model,
		CreatedAt:   now,
	}
	if err := e.enrollments.SaveEnrollment(ctx, enrollment); err != nil {
		return nil, fmt.Errorf("saving enrollment: %w", err)
	}

	if e.photoDir != "" {
		path, err := snapshot.SaveReferencePhoto(e.photoDir, student.ID, image, constants.MaxImageSize)
		if err != nil {
			return nil, fmt.Errorf("storing reference photo: %w", err)
		}
		student.PhotoPath = path
	}

	if existing != nil {
		student.CreatedAt = existing.CreatedAt
		if student.PhotoPath == "" {
			student.PhotoPath = existing.PhotoPath
		}
	} else {
		student.CreatedAt = now
	}
	student.UpdatedAt = now
	if err := e.students.SaveStudent(ctx, &student); err != nil {
		return nil, fmt.Errorf("saving student: %w", err)
	}

	e.logger.Info("student enrolled", "student_id", student.ID, "name", student.Name, "dim", len(embedding))
	return enrollment, nil
}
