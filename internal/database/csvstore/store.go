// Package csvstore implements the storage interfaces on flat CSV files under one
// data directory. It is the default backend and needs no server.
package csvstore

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/database"
)

const (
	studentsFile    = "students.csv"
	enrollmentsFile = "enrollments.csv"
	attendanceDir   = "attendance_records"
)

var (
	studentsHeader    = []string{"ID", "Name", "Department", "Year", "Email", "Phone", "PhotoPath", "CreatedAt", "UpdatedAt"}
	enrollmentsHeader = []string{"ID", "Name", "Model", "CreatedAt", "Embedding"}
	attendanceHeader  = []string{"ID", "Name", "Department", "Date", "Time", "Status", "Confidence"}
)

// Older day files carry no Confidence column.
const legacyAttendanceFields = 6

// Store keeps students, enrollments and daily attendance files in one directory.
// A single mutex serializes every read-modify-write within the process.
type Store struct {
	dir string
	mu  sync.Mutex
}

// Open creates the directory layout when missing.
func Open(dir string) (*Store, error) {
	if dir == "" {
		dir = constants.DefaultDataDir
	}
	if err := os.MkdirAll(filepath.Join(dir, attendanceDir), 0750); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the data directory.
func (s *Store) Dir() string {
	return s.dir
}

// Backend bundles the store as every repository of a database.Backend.
func (s *Store) Backend() *database.Backend {
	return database.NewBackend(constants.BackendCSV, s, s, s)
}

// readRows reads a CSV file and drops its header. A missing file has no rows.
// Rows with fewer than minFields fields are logged and dropped; shorter rows that
// qualify are padded with empty fields to the header length.
func readRows(path string, header []string, minFields int) ([][]string, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", filepath.Base(path), err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	if rows[0][0] == header[0] {
		rows = rows[1:]
	}

	kept := rows[:0]
	for i, row := range rows {
		if len(row) < minFields {
			slog.Warn("dropping short csv row", "file", filepath.Base(path), "line", i+2, "fields", len(row), "want", minFields)
			continue
		}
		for len(row) < len(header) {
			row = append(row, "")
		}
		kept = append(kept, row)
	}
	return kept, nil
}

// writeRows replaces path with header and rows through a temporary file and a rename.
func writeRows(path string, header []string, rows [][]string) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		f.Close()
		return err
	}
	if err := w.WriteAll(rows); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
