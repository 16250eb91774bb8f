package video

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
}

// IsImageFile reports whether the file name has a supported image extension.
func IsImageFile(name string) bool {
	return imageExtensions[strings.ToLower(filepath.Ext(name))]
}

// DirSource yields the image files of a directory in lexical order.
type DirSource struct {
	paths []string
	pos   int
	now   func() time.Time
}

// NewDirSource lists the images in dir. Subdirectories are not descended into.
func NewDirSource(dir string) (*DirSource, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading frame directory: %w", err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() || !IsImageFile(e.Name()) {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Strings(paths)
	return &DirSource{paths: paths, now: time.Now}, nil
}

// NewFileSource yields a single image file.
func NewFileSource(path string) *DirSource {
	return &DirSource{paths: []string{path}, now: time.Now}
}

// Len returns the number of frames the source will yield.
func (s *DirSource) Len() int {
	return len(s.paths)
}

func (s *DirSource) Next(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}
	if s.pos >= len(s.paths) {
		return Frame{}, io.EOF
	}

	path := s.paths[s.pos]
	data, err := os.ReadFile(path) //nolint:gosec // path comes from the listed directory
	if err != nil {
		return Frame{}, fmt.Errorf("reading frame %s: %w", path, err)
	}
	f := Frame{Index: s.pos, Data: data, Name: filepath.Base(path), At: s.now()}
	s.pos++
	return f, nil
}

func (s *DirSource) Close() error {
	return nil
}
