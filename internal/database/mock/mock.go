// Package mock provides mock implementations of database interfaces for testing.
package mock

import (
	"context"
	"sort"
	"sync"

	"github.com/kozaktomas/face-attendance/internal/database"
)

// MockStudentStore is a mock implementation of database.StudentWriter
type MockStudentStore struct {
	mu       sync.RWMutex
	students map[string]*database.Student

	// Error injection
	GetError    error
	ListError   error
	SaveError   error
	DeleteError error
}

// NewMockStudentStore creates a new mock student store
func NewMockStudentStore() *MockStudentStore {
	return &MockStudentStore{
		students: make(map[string]*database.Student),
	}
}

// AddStudent adds a student to the mock store
func (m *MockStudentStore) AddStudent(s database.Student) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.students[s.ID] = &s
}

func (m *MockStudentStore) GetStudent(ctx context.Context, id string) (*database.Student, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.students[id]
	if !ok {
		return nil, nil
	}
	out := *s
	return &out, nil
}

func (m *MockStudentStore) ListStudents(ctx context.Context) ([]database.Student, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]database.Student, 0, len(m.students))
	for _, s := range m.students {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MockStudentStore) SaveStudent(ctx context.Context, s *database.Student) error {
	if m.SaveError != nil {
		return m.SaveError
	}
	m.AddStudent(*s)
	return nil
}

func (m *MockStudentStore) DeleteStudent(ctx context.Context, id string) error {
	if m.DeleteError != nil {
		return m.DeleteError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.students, id)
	return nil
}

// MockEnrollmentStore is a mock implementation of database.EnrollmentWriter
type MockEnrollmentStore struct {
	mu          sync.RWMutex
	enrollments map[string]*database.StoredEnrollment
	saves       int

	// Error injection
	GetError    error
	ListError   error
	SaveError   error
	DeleteError error
}

// NewMockEnrollmentStore creates a new mock enrollment store
func NewMockEnrollmentStore() *MockEnrollmentStore {
	return &MockEnrollmentStore{
		enrollments: make(map[string]*database.StoredEnrollment),
	}
}

// AddEnrollment adds an enrollment to the mock store
func (m *MockEnrollmentStore) AddEnrollment(e database.StoredEnrollment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enrollments[e.StudentID] = &e
}

// SaveCount returns how many times SaveEnrollment succeeded
func (m *MockEnrollmentStore) SaveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.saves
}

func (m *MockEnrollmentStore) GetEnrollment(ctx context.Context, studentID string) (*database.StoredEnrollment, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.enrollments[studentID]
	if !ok {
		return nil, nil
	}
	out := *e
	return &out, nil
}

func (m *MockEnrollmentStore) ListEnrollments(ctx context.Context) ([]database.StoredEnrollment, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]database.StoredEnrollment, 0, len(m.enrollments))
	for _, e := range m.enrollments {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StudentID < out[j].StudentID })
	return out, nil
}

func (m *MockEnrollmentStore) SaveEnrollment(ctx context.Context, e *database.StoredEnrollment) error {
	if m.SaveError != nil {
		return m.SaveError
	}
	m.AddEnrollment(*e)
	m.mu.Lock()
	m.saves++
	m.mu.Unlock()
	return nil
}

func (m *MockEnrollmentStore) DeleteEnrollment(ctx context.Context, studentID string) error {
	if m.DeleteError != nil {
		return m.DeleteError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.enrollments, studentID)
	return nil
}

// MockAttendanceStore is a mock implementation of database.AttendanceWriter.
// Like the real sinks it never stores two records for the same (student, date).
type MockAttendanceStore struct {
	mu      sync.RWMutex
	records []database.AttendanceRecord
	appends int // calls to AppendAttendance, including rejected duplicates

	// Error injection
	HasError    error
	ListError   error
	StatsError  error
	AppendError error
}

// NewMockAttendanceStore creates a new mock attendance store
func NewMockAttendanceStore() *MockAttendanceStore {
	return &MockAttendanceStore{}
}

// Records returns a copy of every stored record
func (m *MockAttendanceStore) Records() []database.AttendanceRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]database.AttendanceRecord, len(m.records))
	copy(out, m.records)
	return out
}

// AppendCalls returns the number of AppendAttendance calls
func (m *MockAttendanceStore) AppendCalls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.appends
}

func (m *MockAttendanceStore) has(studentID, date string) bool {
	for _, r := range m.records {
		if r.StudentID == studentID && r.Date == date {
			return true
		}
	}
	return false
}

func (m *MockAttendanceStore) HasAttendance(ctx context.Context, studentID, date string) (bool, error) {
	if m.HasError != nil {
		return false, m.HasError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.has(studentID, date), nil
}

func (m *MockAttendanceStore) ListAttendance(ctx context.Context, date string) ([]database.AttendanceRecord, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []database.AttendanceRecord
	for _, r := range m.records {
		if r.Date == date {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time < out[j].Time })
	return out, nil
}

func (m *MockAttendanceStore) AttendanceStats(ctx context.Context, from, to string) ([]database.AttendanceStat, error) {
	if m.StatsError != nil {
		return nil, m.StatsError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	byID := make(map[string]*database.AttendanceStat)
	var order []string
	for _, r := range m.records {
		if r.Date < from || r.Date > to {
			continue
		}
		st, ok := byID[r.StudentID]
		if !ok {
			st = &database.AttendanceStat{StudentID: r.StudentID, Name: r.Name, Department: r.Department}
			byID[r.StudentID] = st
			order = append(order, r.StudentID)
		}
		st.AvgConfidence = (st.AvgConfidence*float64(st.DaysPresent) + r.Confidence) / float64(st.DaysPresent+1)
		st.DaysPresent++
		if r.Date > st.LastSeen {
			st.LastSeen = r.Date
		}
	}
	sort.Strings(order)
	out := make([]database.AttendanceStat, 0, len(order))
	for _, id := range order {
		out = append(out, *byID[id])
	}
	return out, nil
}

func (m *MockAttendanceStore) AppendAttendance(ctx context.Context, rec *database.AttendanceRecord) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appends++
	if m.AppendError != nil {
		return false, m.AppendError
	}
	if m.has(rec.StudentID, rec.Date) {
		return false, nil
	}
	m.records = append(m.records, *rec)
	return true, nil
}
