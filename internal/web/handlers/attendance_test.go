package handlers

import (
	"context"
	"encoding/csv"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/database/mock"
)

func attendanceFixture(t *testing.T) *mock.MockAttendanceStore {
	t.Helper()
	store := mock.NewMockAttendanceStore()
	ctx := context.Background()
	for _, rec := range []database.AttendanceRecord{
		{StudentID: "S002", Name: "Bob", Department: "Math", Date: "2026-03-02", Time: "09:10:00", Status: "Present", Confidence: 0.91},
		{StudentID: "S001", Name: "Alice", Department: "Physics", Date: "2026-03-02", Time: "08:55:00", Status: "Present", Confidence: 0.97},
		{StudentID: "S001", Name: "Alice", Department: "Physics", Date: "2026-02-27", Time: "09:00:00", Status: "Present", Confidence: 0.89},
	} {
		if _, err := store.AppendAttendance(ctx, &rec); err != nil {
			t.Fatal(err)
		}
	}
	return store
}

func newAttendanceHandler(store database.AttendanceReader) *AttendanceHandler {
	h := NewAttendanceHandler(store)
	h.now = func() time.Time { return time.Date(2026, 3, 2, 12, 0, 0, 0, time.Local) }
	return h
}

func TestAttendanceHandler_List(t *testing.T) {
	handler := newAttendanceHandler(attendanceFixture(t))

	tests := []struct {
		name  string
		query string
		date  string
		count int
	}{
		{"default today", "", "2026-03-02", 2},
		{"explicit date", "?date=2026-02-27", "2026-02-27", 1},
		{"empty day", "?date=2026-01-01", "2026-01-01", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recorder := httptest.NewRecorder()
			handler.List(recorder, httptest.NewRequest("GET", "/api/v1/attendance"+tt.query, nil))

			assertStatusCode(t, recorder, http.StatusOK)
			var resp AttendanceListResponse
			parseJSONResponse(t, recorder, &resp)
			if resp.Date != tt.date || resp.Count != tt.count || len(resp.Records) != tt.count {
				t.Errorf("resp = %+v, want %d records on %s", resp, tt.count, tt.date)
			}
		})
	}
}

func TestAttendanceHandler_List_Ordered(t *testing.T) {
	handler := newAttendanceHandler(attendanceFixture(t))

	recorder := httptest.NewRecorder()
	handler.List(recorder, httptest.NewRequest("GET", "/api/v1/attendance?date=2026-03-02", nil))

	var resp AttendanceListResponse
	parseJSONResponse(t, recorder, &resp)
	if resp.Records[0].StudentID != "S001" || resp.Records[0].Confidence != 0.97 {
		t.Errorf("first record = %+v, want the earliest", resp.Records[0])
	}
}

func TestAttendanceHandler_BadRequests(t *testing.T) {
	handler := newAttendanceHandler(attendanceFixture(t))

	tests := []struct {
		name    string
		serve   http.HandlerFunc
		path    string
		message string
	}{
		{"list bad date", handler.List, "/api/v1/attendance?date=yesterday", "date must be YYYY-MM-DD"},
		{"stats bad from", handler.Stats, "/api/v1/attendance/stats?from=2026-3-1", "from must be YYYY-MM-DD"},
		{"stats reversed", handler.Stats, "/api/v1/attendance/stats?from=2026-03-05&to=2026-03-01", "from must not be after to"},
		{"export bad date", handler.Export, "/api/v1/attendance/export?date=x", "date must be YYYY-MM-DD"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recorder := httptest.NewRecorder()
			tt.serve(recorder, httptest.NewRequest("GET", tt.path, nil))

			assertStatusCode(t, recorder, http.StatusBadRequest)
			assertJSONError(t, recorder, tt.message)
		})
	}
}

func TestAttendanceHandler_Stats(t *testing.T) {
	handler := newAttendanceHandler(attendanceFixture(t))

	recorder := httptest.NewRecorder()
	handler.Stats(recorder, httptest.NewRequest("GET", "/api/v1/attendance/stats", nil))

	assertStatusCode(t, recorder, http.StatusOK)
	var resp AttendanceStatsResponse
	parseJSONResponse(t, recorder, &resp)
	if resp.From != "2026-02-01" || resp.To != "2026-03-02" {
		t.Errorf("range = %s..%s, want the last 30 days", resp.From, resp.To)
	}
	if len(resp.Students) != 2 || resp.Students[0].StudentID != "S001" || resp.Students[0].DaysPresent != 2 {
		t.Errorf("students = %+v", resp.Students)
	}
}

func TestAttendanceHandler_StatsError(t *testing.T) {
	store := attendanceFixture(t)
	store.StatsError = errors.New("connection reset")
	handler := newAttendanceHandler(store)

	recorder := httptest.NewRecorder()
	handler.Stats(recorder, httptest.NewRequest("GET", "/api/v1/attendance/stats", nil))

	assertStatusCode(t, recorder, http.StatusInternalServerError)
}

func TestAttendanceHandler_Export(t *testing.T) {
	handler := newAttendanceHandler(attendanceFixture(t))

	recorder := httptest.NewRecorder()
	handler.Export(recorder, httptest.NewRequest("GET", "/api/v1/attendance/export?date=2026-03-02", nil))

	assertStatusCode(t, recorder, http.StatusOK)
	assertContentType(t, recorder, "text/csv; charset=utf-8")
	if cd := recorder.Header().Get("Content-Disposition"); !strings.Contains(cd, "attendance_2026-03-02.csv") {
		t.Errorf("Content-Disposition = %q", cd)
	}

	rows, err := csv.NewReader(recorder.Body).ReadAll()
	if err != nil {
		t.Fatalf("export is not valid CSV: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want header and 2 records", len(rows))
	}
	if strings.Join(rows[0], ",") != "ID,Name,Department,Date,Time,Status,Confidence" {
		t.Errorf("header = %v", rows[0])
	}
	if rows[1][0] != "S001" || rows[1][6] != "0.9700" {
		t.Errorf("first row = %v", rows[1])
	}
}
