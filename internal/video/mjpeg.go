package video

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"
)

var (
	jpegSOI = []byte{0xFF, 0xD8} // Start of Image
	jpegEOI = []byte{0xFF, 0xD9} // End of Image
)

const (
	initialFrameBuffer = 1024 * 1024
	maxFrameSize       = 64 * 1024 * 1024
)

// SplitJPEG is a bufio.SplitFunc that yields complete JPEG images delimited by
// their SOI and EOI markers. Bytes outside a frame are discarded.
func SplitJPEG(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	start := bytes.Index(data, jpegSOI)
	if start == -1 {
		if atEOF {
			return len(data), nil, nil
		}
		// Keep the last byte, it may be the first half of a marker.
		return max(len(data)-1, 0), nil, nil
	}
	end := bytes.Index(data[start+len(jpegSOI):], jpegEOI)
	if end == -1 {
		if atEOF {
			return len(data), nil, nil // truncated trailing frame
		}
		return start, nil, nil
	}
	stop := start + len(jpegSOI) + end + len(jpegEOI)
	return stop, data[start:stop], nil
}

// MJPEGSource yields JPEG frames from a concatenated MJPEG byte stream.
type MJPEGSource struct {
	scanner *bufio.Scanner
	closer  io.Closer
	index   int
	now     func() time.Time
}

// NewMJPEGSource reads frames from r. If r is an io.Closer it is closed by Close.
func NewMJPEGSource(r io.Reader) *MJPEGSource {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, initialFrameBuffer), maxFrameSize)
	scanner.Split(SplitJPEG)

	s := &MJPEGSource{scanner: scanner, now: time.Now}
	if c, ok := r.(io.Closer); ok {
		s.closer = c
	}
	return s
}

func (s *MJPEGSource) Next(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}
	if !s.scanner.Scan() {
		if err := s.scanner.Err(); err != nil {
			return Frame{}, fmt.Errorf("reading MJPEG stream: %w", err)
		}
		return Frame{}, io.EOF
	}

	// The scanner reuses its buffer; the frame must own its bytes.
	data := append([]byte(nil), s.scanner.Bytes()...)
	f := Frame{Index: s.index, Data: data, At: s.now()}
	s.index++
	return f, nil
}

func (s *MJPEGSource) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

// FFmpegSource decodes a video file, stream URL or capture device with ffmpeg and
// yields its frames as JPEG images.
type FFmpegSource struct {
	*MJPEGSource
	cmd    *exec.Cmd
	stderr *bytes.Buffer
}

// FFmpegArgs builds the ffmpeg arguments for an input. inputFormat selects a device
// demuxer such as v4l2 and may be empty. fps limits the output frame rate when > 0.
func FFmpegArgs(input, inputFormat string, fps int) []string {
	args := []string{"-hide_banner", "-loglevel", "error"}
	if inputFormat != "" {
		args = append(args, "-f", inputFormat)
	}
	args = append(args, "-i", input)
	if fps > 0 {
		args = append(args, "-vf", fmt.Sprintf("fps=%d", fps))
	}
	return append(args, "-f", "image2pipe", "-vcodec", "mjpeg", "-")
}

// NewFFmpegSource starts ffmpeg. The process is stopped when ctx is cancelled or
// the source is closed.
func NewFFmpegSource(ctx context.Context, input, inputFormat string, fps int) (*FFmpegSource, error) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return nil, errors.New("ffmpeg not found in PATH")
	}

	cmd := exec.CommandContext(ctx, "ffmpeg", FFmpegArgs(input, inputFormat, fps)...) //nolint:gosec // input is an operator-supplied path
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("creating ffmpeg pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting ffmpeg: %w", err)
	}

	return &FFmpegSource{
		MJPEGSource: NewMJPEGSource(stdout),
		cmd:         cmd,
		stderr:      stderr,
	}, nil
}

// Close stops ffmpeg and reports its stderr if it failed for another reason.
func (s *FFmpegSource) Close() error {
	_ = s.MJPEGSource.Close()
	if s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	err := s.cmd.Wait()
	if err == nil || s.stderr.Len() == 0 {
		return nil
	}
	return fmt.Errorf("ffmpeg: %s", strings.TrimSpace(s.stderr.String()))
}
