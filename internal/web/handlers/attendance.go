package handlers

import (
	"encoding/csv"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/database"
)

// AttendanceHandler serves attendance records and statistics
type AttendanceHandler struct {
	attendance database.AttendanceReader
	now        func() time.Time
}

// NewAttendanceHandler creates a new attendance handler
func NewAttendanceHandler(attendance database.AttendanceReader) *AttendanceHandler {
	return &AttendanceHandler{attendance: attendance, now: time.Now}
}

// AttendanceRecordResponse is the JSON view of an attendance record
type AttendanceRecordResponse struct {
	StudentID  string  `json:"student_id"`
	Name       string  `json:"name"`
	Department string  `json:"department"`
	Date       string  `json:"date"`
	Time       string  `json:"time"`
	Status     string  `json:"status"`
	Confidence float64 `json:"confidence"`
}

// AttendanceListResponse lists the records of one day
type AttendanceListResponse struct {
	Date    string                     `json:"date"`
	Count   int                        `json:"count"`
	Records []AttendanceRecordResponse `json:"records"`
}

// AttendanceStatsResponse aggregates records over a date range
type AttendanceStatsResponse struct {
	From     string                    `json:"from"`
	To       string                    `json:"to"`
	Students []database.AttendanceStat `json:"students"`
}

// List returns the records of ?date= (default today)
func (h *AttendanceHandler) List(w http.ResponseWriter, r *http.Request) {
	date, ok := dateParam(r, "date", h.now())
	if !ok {
		respondError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}

	records, err := h.attendance.ListAttendance(r.Context(), date)
	if err != nil {
		log.Printf("Failed to list attendance for %s: %v", date, err)
		respondError(w, http.StatusInternalServerError, "failed to list attendance")
		return
	}

	resp := AttendanceListResponse{Date: date, Count: len(records), Records: make([]AttendanceRecordResponse, 0, len(records))}
	for _, rec := range records {
		resp.Records = append(resp.Records, AttendanceRecordResponse(rec))
	}
	respondJSON(w, http.StatusOK, resp)
}

// Stats aggregates ?from= to ?to= (default the last 30 days up to today)
func (h *AttendanceHandler) Stats(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	to, ok := dateParam(r, "to", now)
	if !ok {
		respondError(w, http.StatusBadRequest, "to must be YYYY-MM-DD")
		return
	}
	toDate, _ := time.Parse(constants.DateLayout, to)
	from, ok := dateParam(r, "from", toDate.AddDate(0, 0, -(constants.DefaultStatsDays-1)))
	if !ok {
		respondError(w, http.StatusBadRequest, "from must be YYYY-MM-DD")
		return
	}
	if from > to {
		respondError(w, http.StatusBadRequest, "from must not be after to")
		return
	}

	stats, err := h.attendance.AttendanceStats(r.Context(), from, to)
	if err != nil {
		log.Printf("Failed to compute attendance stats: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to compute attendance stats")
		return
	}
	if stats == nil {
		stats = []database.AttendanceStat{}
	}
	respondJSON(w, http.StatusOK, AttendanceStatsResponse{From: from, To: to, Students: stats})
}

// Export downloads the records of ?date= in the attendance CSV layout
func (h *AttendanceHandler) Export(w http.ResponseWriter, r *http.Request) {
	date, ok := dateParam(r, "date", h.now())
	if !ok {
		respondError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}

	records, err := h.attendance.ListAttendance(r.Context(), date)
	if err != nil {
		log.Printf("Failed to export attendance for %s: %v", date, err)
		respondError(w, http.StatusInternalServerError, "failed to export attendance")
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="attendance_%s.csv"`, date))
	w.WriteHeader(http.StatusOK)

	cw := csv.NewWriter(w)
	cw.Write([]string{"ID", "Name", "Department", "Date", "Time", "Status", "Confidence"})
	for _, rec := range records {
		cw.Write([]string{
			rec.StudentID, rec.Name, rec.Department, rec.Date, rec.Time, rec.Status,
			strconv.FormatFloat(rec.Confidence, 'f', 4, 64),
		})
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		log.Printf("Failed to write attendance export: %v", err)
	}
}
