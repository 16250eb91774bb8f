package snapshot

import (
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kozaktomas/face-attendance/internal/facematch"
)

const maxSnapshotSize = 400

// UnknownSaver stores crops of unrecognized faces, at most one per throttle interval.
type UnknownSaver struct {
	dir      string
	throttle time.Duration
	padding  int
	logger   *slog.Logger

	mu   sync.Mutex
	last time.Time
}

// NewUnknownSaver creates a saver writing into dir. The directory is created on first save.
func NewUnknownSaver(dir string, throttle time.Duration, padding int, logger *slog.Logger) *UnknownSaver {
	if logger == nil {
		logger = slog.Default()
	}
	return &UnknownSaver{dir: dir, throttle: throttle, padding: padding, logger: logger}
}

// Save crops the face out of frame and writes it, unless a snapshot was saved less than
// the throttle interval before at. It returns the written path, or "" when throttled.
func (s *UnknownSaver) Save(frame image.Image, obs facematch.Observation, at time.Time) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.last.IsZero() && at.Sub(s.last) < s.throttle {
		return "", nil
	}

	rect := facematch.PaddedRect(obs.BBox, s.padding, frame.Bounds())
	if rect.Empty() {
		return "", fmt.Errorf("face box %v outside frame %v", obs.BBox, frame.Bounds())
	}
	data, err := EncodeRegion(frame, rect, maxSnapshotSize)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(s.dir, 0750); err != nil {
		return "", fmt.Errorf("creating snapshot directory: %w", err)
	}
	name := fmt.Sprintf("unknown_%s_%s.jpg", at.Format("20060102_150405"), uuid.NewString()[:8])
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, data, 0600); err != nil {
		return "", fmt.Errorf("writing snapshot: %w", err)
	}

	s.last = at
	s.logger.Info("unknown face saved", "path", path, "det_score", obs.DetScore)
	return path, nil
}

// SaveReferencePhoto stores an enrollment photo as dir/<studentID>.jpg, scaled to fit
// maxSize, replacing any previous one.
func SaveReferencePhoto(dir, studentID string, data []byte, maxSize int) (string, error) {
	resized, err := ResizeImage(data, maxSize)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return "", fmt.Errorf("creating photo directory: %w", err)
	}

	path := filepath.Join(dir, filepath.Base(studentID)+".jpg")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, resized, 0600); err != nil {
		return "", fmt.Errorf("writing photo: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", fmt.Errorf("replacing photo: %w", err)
	}
	return path, nil
}
