package csvstore

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/database"
)

const attendancePrefix = "attendance_"

func (s *Store) attendancePath(date string) string {
	return filepath.Join(s.dir, attendanceDir, attendancePrefix+date+".csv")
}

func validDate(date string) error {
	if _, err := time.Parse(constants.DateLayout, date); err != nil {
		return fmt.Errorf("invalid date %q: expected YYYY-MM-DD", date)
	}
	return nil
}

// parseConfidence reads the optional Confidence column. Empty means 0.
func parseConfidence(v string) (float64, error) {
	if v == "" {
		return 0, nil
	}
	c, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, err
	}
	return c, nil
}

func (s *Store) loadAttendance(date string) ([]database.AttendanceRecord, error) {
	rows, err := readRows(s.attendancePath(date), attendanceHeader, legacyAttendanceFields)
	if err != nil {
		return nil, err
	}
	records := make([]database.AttendanceRecord, 0, len(rows))
	for i, row := range rows {
		confidence, err := parseConfidence(row[6])
		if err != nil {
			slog.Warn("invalid attendance confidence", "date", date, "line", i+2, "value", row[6])
		}
		records = append(records, database.AttendanceRecord{
			StudentID:  row[0],
			Name:       row[1],
			Department: row[2],
			Date:       row[3],
			Time:       row[4],
			Status:     row[5],
			Confidence: confidence,
		})
	}
	return records, nil
}

func (s *Store) HasAttendance(ctx context.Context, studentID, date string) (bool, error) {
	if err := validDate(date); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasAttendance(studentID, date)
}

func (s *Store) hasAttendance(studentID, date string) (bool, error) {
	records, err := s.loadAttendance(date)
	if err != nil {
		return false, err
	}
	for _, r := range records {
		if r.StudentID == studentID {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) ListAttendance(ctx context.Context, date string) ([]database.AttendanceRecord, error) {
	if err := validDate(date); err != nil {
		return nil, err
	}

	s.mu.Lock()
	records, err := s.loadAttendance(date)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	sort.SliceStable(records, func(i, j int) bool { return records[i].Time < records[j].Time })
	return records, nil
}

// AppendAttendance appends one row to the day file, writing the header first when
// the file is new. The file is re-read under the lock, so a row written by an
// earlier run for the same student and date is never duplicated.
func (s *Store) AppendAttendance(ctx context.Context, rec *database.AttendanceRecord) (bool, error) {
	if rec.StudentID == "" {
		return false, fmt.Errorf("student ID is required")
	}
	if err := validDate(rec.Date); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	exists, err := s.hasAttendance(rec.StudentID, rec.Date)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	path := s.attendancePath(rec.Date)
	_, statErr := os.Stat(path)
	newFile := os.IsNotExist(statErr)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return false, fmt.Errorf("opening attendance file: %w", err)
	}

	w := csv.NewWriter(f)
	if newFile {
		if err := w.Write(attendanceHeader); err != nil {
			f.Close()
			return false, fmt.Errorf("writing attendance header: %w", err)
		}
	}
	row := []string{
		rec.StudentID, rec.Name, rec.Department, rec.Date, rec.Time, rec.Status,
		strconv.FormatFloat(rec.Confidence, 'f', 4, 64),
	}
	if err := w.Write(row); err != nil {
		f.Close()
		return false, fmt.Errorf("writing attendance row: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return false, fmt.Errorf("writing attendance row: %w", err)
	}
	if err := f.Close(); err != nil {
		return false, fmt.Errorf("closing attendance file: %w", err)
	}
	return true, nil
}

// attendanceDates lists the dates with a day file between from and to, inclusive.
func (s *Store) attendanceDates(from, to string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.dir, attendanceDir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var dates []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, attendancePrefix) || !strings.HasSuffix(name, ".csv") {
			continue
		}
		date := strings.TrimSuffix(strings.TrimPrefix(name, attendancePrefix), ".csv")
		if validDate(date) != nil || date < from || date > to {
			continue
		}
		dates = append(dates, date)
	}
	sort.Strings(dates)
	return dates, nil
}

// AttendanceStats lists every known student, including those never present, and every
// attendee missing from the student list, ordered by student ID.
func (s *Store) AttendanceStats(ctx context.Context, from, to string) ([]database.AttendanceStat, error) {
	if err := validDate(from); err != nil {
		return nil, err
	}
	if err := validDate(to); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	students, err := s.loadStudents()
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*database.AttendanceStat, len(students))
	order := make([]string, 0, len(students))
	for _, st := range students {
		byID[st.ID] = &database.AttendanceStat{StudentID: st.ID, Name: st.Name, Department: st.Department}
		order = append(order, st.ID)
	}

	dates, err := s.attendanceDates(from, to)
	if err != nil {
		return nil, err
	}
	sums := make(map[string]float64)
	for _, date := range dates {
		records, err := s.loadAttendance(date)
		if err != nil {
			return nil, err
		}
		for _, r := range records {
			st, ok := byID[r.StudentID]
			if !ok {
				st = &database.AttendanceStat{StudentID: r.StudentID, Name: r.Name, Department: r.Department}
				byID[r.StudentID] = st
				order = append(order, r.StudentID)
			}
			st.DaysPresent++
			sums[r.StudentID] += r.Confidence
			if r.Date > st.LastSeen {
				st.LastSeen = r.Date
			}
		}
	}
	sort.Strings(order)

	out := make([]database.AttendanceStat, 0, len(order))
	for _, id := range order {
		st := byID[id]
		if st.DaysPresent > 0 {
			st.AvgConfidence = sums[id] / float64(st.DaysPresent)
		}
		out = append(out, *st)
	}
	return out, nil
}
