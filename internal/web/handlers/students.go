package handlers

import (
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/face-attendance/internal/database"
)

// StudentsHandler lists students with their enrollment state
type StudentsHandler struct {
	students    database.StudentReader
	enrollments database.EnrollmentReader
}

// NewStudentsHandler creates a new students handler
func NewStudentsHandler(students database.StudentReader, enrollments database.EnrollmentReader) *StudentsHandler {
	return &StudentsHandler{students: students, enrollments: enrollments}
}

// StudentResponse is the JSON view of a student
type StudentResponse struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Department string `json:"department,omitempty"`
	Year       string `json:"year,omitempty"`
	Email      string `json:"email,omitempty"`
	Phone      string `json:"phone,omitempty"`
	Enrolled   bool   `json:"enrolled"`
	Model      string `json:"model,omitempty"`
	EnrolledAt string `json:"enrolled_at,omitempty"`
}

func toStudentResponse(s database.Student, e *database.StoredEnrollment) StudentResponse {
	resp := StudentResponse{
		ID:         s.ID,
		Name:       s.Name,
		Department: s.Department,
		Year:       s.Year,
		Email:      s.Email,
		Phone:      s.Phone,
	}
	if e != nil {
		resp.Enrolled = true
		resp.Model = e.Model
		if !e.CreatedAt.IsZero() {
			resp.EnrolledAt = e.CreatedAt.UTC().Format("2006-01-02T15:04:05Z")
		}
	}
	return resp
}

// List returns every student ordered by ID
func (h *StudentsHandler) List(w http.ResponseWriter, r *http.Request) {
	students, err := h.students.ListStudents(r.Context())
	if err != nil {
		log.Printf("Failed to list students: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to list students")
		return
	}
	enrollments, err := h.enrollments.ListEnrollments(r.Context())
	if err != nil {
		log.Printf("Failed to list enrollments: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to list enrollments")
		return
	}
	byID := make(map[string]*database.StoredEnrollment, len(enrollments))
	for i := range enrollments {
		byID[enrollments[i].StudentID] = &enrollments[i]
	}

	resp := make([]StudentResponse, 0, len(students))
	for _, s := range students {
		resp = append(resp, toStudentResponse(s, byID[s.ID]))
	}
	respondJSON(w, http.StatusOK, resp)
}

// Get returns one student
func (h *StudentsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	student, err := h.students.GetStudent(r.Context(), id)
	if err != nil {
		log.Printf("Failed to get student %s: %v", sanitizeForLog(id), err)
		respondError(w, http.StatusInternalServerError, "failed to get student")
		return
	}
	if student == nil {
		respondError(w, http.StatusNotFound, database.ErrStudentNotFound.Error())
		return
	}
	enrollment, err := h.enrollments.GetEnrollment(r.Context(), id)
	if err != nil {
		log.Printf("Failed to get enrollment %s: %v", sanitizeForLog(id), err)
		respondError(w, http.StatusInternalServerError, "failed to get enrollment")
		return
	}
	respondJSON(w, http.StatusOK, toStudentResponse(*student, enrollment))
}
