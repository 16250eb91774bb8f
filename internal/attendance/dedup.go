// Package attendance credits recognized identities with attendance at most once per
// session and at most once per calendar day.
package attendance

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/database"
)

// Mark carries what is known about a recognized identity at marking time.
type Mark struct {
	Key         string
	DisplayName string  // used when the directory has no entry
	Score       float64 // stored as the record's confidence
}

// Deduplicator decides whether a recognized identity gets a new attendance record.
// One Deduplicator lives for one recognition session; its marked set is discarded with it.
type Deduplicator struct {
	sink      database.AttendanceWriter
	directory database.StudentReader
	logger    *slog.Logger

	mu     sync.Mutex
	locks  map[string]*sync.Mutex
	marked map[string]string // key -> date it was marked on
}

// NewDeduplicator creates a deduplicator writing to sink. directory may be nil.
func NewDeduplicator(sink database.AttendanceWriter, directory database.StudentReader, logger *slog.Logger) *Deduplicator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Deduplicator{
		sink:      sink,
		directory: directory,
		logger:    logger,
		locks:     make(map[string]*sync.Mutex),
		marked:    make(map[string]string),
	}
}

func (d *Deduplicator) keyLock(key string) *sync.Mutex {
	d.mu.Lock()
	defer d.mu.Unlock()
	l, ok := d.locks[key]
	if !ok {
		l = &sync.Mutex{}
		d.locks[key] = l
	}
	return l
}

func (d *Deduplicator) markedOn(key string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	date, ok := d.marked[key]
	return date, ok
}

func (d *Deduplicator) setMarked(key, date string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.marked[key] = date
}

// TryMark writes an attendance record for key unless it was already marked in this
// session or a record for the date of at already exists. It returns true only when a
// new record was written. The check and the write happen under a per-key lock.
func (d *Deduplicator) TryMark(ctx context.Context, key string, at time.Time) (bool, error) {
	return d.TryMarkMatch(ctx, Mark{Key: key}, at)
}

// TryMarkMatch is TryMark with the display name and score of the match.
func (d *Deduplicator) TryMarkMatch(ctx context.Context, m Mark, at time.Time) (bool, error) {
	date := at.Format(constants.DateLayout)

	l := d.keyLock(m.Key)
	l.Lock()
	defer l.Unlock()

	if markedDate, ok := d.markedOn(m.Key); ok && markedDate == date {
		return false, nil
	}

	exists, err := d.sink.HasAttendance(ctx, m.Key, date)
	if err != nil {
		return false, fmt.Errorf("checking attendance for %s on %s: %w", m.Key, date, err)
	}
	if exists {
		d.setMarked(m.Key, date)
		return false, nil
	}

	rec := d.record(ctx, m, at)
	written, err := d.sink.AppendAttendance(ctx, rec)
	if err != nil {
		return false, fmt.Errorf("writing attendance for %s: %w", m.Key, err)
	}
	d.setMarked(m.Key, date)
	if written {
		d.logger.Info("attendance marked", "identity_key", m.Key, "name", rec.Name, "date", date, "time", rec.Time)
	}
	return written, nil
}

func (d *Deduplicator) record(ctx context.Context, m Mark, at time.Time) *database.AttendanceRecord {
	rec := &database.AttendanceRecord{
		StudentID:  m.Key,
		Name:       m.DisplayName,
		Date:       at.Format(constants.DateLayout),
		Time:       at.Format(constants.TimeLayout),
		Status:     constants.StatusPresent,
		Confidence: m.Score,
	}
	if d.directory == nil {
		return rec
	}

	s, err := d.directory.GetStudent(ctx, m.Key)
	if err != nil {
		// Lookup failures leave the department empty.
		d.logger.Warn("student directory lookup failed", "identity_key", m.Key, "error", err)
		return rec
	}
	if s != nil {
		if s.Name != "" {
			rec.Name = s.Name
		}
		rec.Department = s.Department
	}
	return rec
}

// Marked returns the keys credited in this session.
func (d *Deduplicator) Marked() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	keys := make([]string, 0, len(d.marked))
	for k := range d.marked {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
