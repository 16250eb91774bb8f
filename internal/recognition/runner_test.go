package recognition

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kozaktomas/face-attendance/internal/database/mock"
	"github.com/kozaktomas/face-attendance/internal/faceapi"
	"github.com/kozaktomas/face-attendance/internal/fingerprint"
	"github.com/kozaktomas/face-attendance/internal/snapshot"
	"github.com/kozaktomas/face-attendance/internal/video"
)

// fakeExtractor answers DetectFaces from a script keyed by the frame payload.
type fakeExtractor struct {
	responses map[string]*faceapi.FaceResponse
	calls     []string
}

func (f *fakeExtractor) DetectFaces(ctx context.Context, imageData []byte) (*faceapi.FaceResponse, error) {
	key := string(imageData)
	f.calls = append(f.calls, key)
	resp, ok := f.responses[key]
	if !ok {
		return nil, errors.New("detector crashed")
	}
	return resp, nil
}

// sliceSource yields the given frames.
type sliceSource struct {
	frames []video.Frame
	pos    int
	err    error // returned after the frames instead of io.EOF
}

func (s *sliceSource) Next(ctx context.Context) (video.Frame, error) {
	if err := ctx.Err(); err != nil {
		return video.Frame{}, err
	}
	if s.pos >= len(s.frames) {
		if s.err != nil {
			return video.Frame{}, s.err
		}
		return video.Frame{}, io.EOF
	}
	f := s.frames[s.pos]
	s.pos++
	return f, nil
}

func (s *sliceSource) Close() error { return nil }

func frames(payloads ...string) []video.Frame {
	out := make([]video.Frame, len(payloads))
	for i, p := range payloads {
		out[i] = video.Frame{Index: i, Data: []byte(p), At: morning.Add(time.Duration(i) * time.Second)}
	}
	return out
}

func face(embedding ...float64) faceapi.FaceDetection {
	return faceapi.FaceDetection{Embedding: embedding, BBox: []float64{10, 10, 40, 40}, DetScore: 0.9}
}

func response(faces ...faceapi.FaceDetection) *faceapi.FaceResponse {
	return &faceapi.FaceResponse{FacesCount: len(faces), Faces: faces}
}

func TestRunner_Run(t *testing.T) {
	sink := mock.NewMockAttendanceStore()
	extractor := &fakeExtractor{responses: map[string]*faceapi.FaceResponse{
		"alice":       response(face(1, 0, 0, 0)),
		"alice-again": response(face(0.98, 0.02, 0, 0)),
		"both":        response(face(1, 0, 0, 0), face(0, 1, 0, 0)),
		"stranger":    response(face(0, 0, 0, 1)),
		"bad-embed":   response(face(1, 0)),
		"empty":       response(),
	}}

	var events []Event
	r := &Runner{
		Session:   newTestSession(t, sink),
		Extractor: extractor,
		OnEvent:   func(e Event) { events = append(events, e) },
		Logger:    quietLogger(),
	}

	sum, err := r.Run(context.Background(), &sliceSource{frames: frames(
		"alice", "alice-again", "both", "stranger", "bad-embed", "crash", "empty",
	)})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	want := Summary{
		Frames:     7,
		Processed:  7,
		Failed:     1,
		Faces:      6,
		Invalid:    1,
		Recognized: 4,
		Marked:     2,
		Unknown:    1,
	}
	if sum != want {
		t.Errorf("Summary = %+v, want %+v", sum, want)
	}
	if len(events) != 5 {
		t.Errorf("len(events) = %d, want 5", len(events))
	}
	if got := len(sink.Records()); got != 2 {
		t.Errorf("len(records) = %d, want 2", got)
	}
}

func TestRunner_EveryN(t *testing.T) {
	extractor := &fakeExtractor{responses: map[string]*faceapi.FaceResponse{
		"f0": response(), "f1": response(), "f2": response(), "f3": response(), "f4": response(), "f5": response(),
	}}
	r := &Runner{
		Session:   newTestSession(t, mock.NewMockAttendanceStore()),
		Extractor: extractor,
		EveryN:    3,
		Logger:    quietLogger(),
	}

	sum, err := r.Run(context.Background(), &sliceSource{frames: frames("f0", "f1", "f2", "f3", "f4", "f5")})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if sum.Frames != 6 || sum.Processed != 2 {
		t.Errorf("Frames = %d, Processed = %d, want 6 and 2", sum.Frames, sum.Processed)
	}
	if len(extractor.calls) != 2 || extractor.calls[0] != "f0" || extractor.calls[1] != "f3" {
		t.Errorf("extractor calls = %v, want [f0 f3]", extractor.calls)
	}
}

func TestRunner_SourceError(t *testing.T) {
	r := &Runner{
		Session:   newTestSession(t, mock.NewMockAttendanceStore()),
		Extractor: &fakeExtractor{responses: map[string]*faceapi.FaceResponse{"a": response()}},
		Logger:    quietLogger(),
	}

	sum, err := r.Run(context.Background(), &sliceSource{frames: frames("a"), err: errors.New("camera unplugged")})
	if err == nil {
		t.Fatal("expected the source error")
	}
	if sum.Frames != 1 {
		t.Errorf("Frames = %d, want 1", sum.Frames)
	}
}

func TestRunner_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	extractor := &fakeExtractor{responses: map[string]*faceapi.FaceResponse{"a": response(), "b": response()}}
	r := &Runner{
		Session:   newTestSession(t, mock.NewMockAttendanceStore()),
		Extractor: extractor,
		Logger:    quietLogger(),
	}
	cancel()

	sum, err := r.Run(ctx, &sliceSource{frames: frames("a", "b")})
	if err != nil {
		t.Fatalf("Run() error = %v, cancellation is not an error", err)
	}
	if sum.Frames != 0 || len(extractor.calls) != 0 {
		t.Errorf("Summary = %+v, calls = %v, want nothing processed", sum, extractor.calls)
	}
}

func TestRunner_AttendanceErrorContinues(t *testing.T) {
	sink := mock.NewMockAttendanceStore()
	sink.AppendError = errors.New("disk full")
	r := &Runner{
		Session: newTestSession(t, sink),
		Extractor: &fakeExtractor{responses: map[string]*faceapi.FaceResponse{
			"alice": response(face(1, 0, 0, 0)),
			"bob":   response(face(0, 1, 0, 0)),
		}},
		Logger: quietLogger(),
	}

	sum, err := r.Run(context.Background(), &sliceSource{frames: frames("alice", "bob")})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if sum.Errors != 2 || sum.Marked != 0 || sum.Recognized != 2 {
		t.Errorf("Summary = %+v, want 2 errors and nothing marked", sum)
	}
}

func jpegFrame(t *testing.T) []byte {
	t.Helper()
	return jpegOf(t, func(x, y int) uint8 { return uint8(x + y) })
}

func jpegOf(t *testing.T, shade func(x, y int) uint8) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 120, 90))
	for y := 0; y < 90; y++ {
		for x := 0; x < 120; x++ {
			img.Set(x, y, color.Gray{Y: shade(x, y)})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestRunner_UnknownSnapshots(t *testing.T) {
	dir := t.TempDir()
	data := jpegFrame(t)
	extractor := &fakeExtractor{responses: map[string]*faceapi.FaceResponse{
		string(data): response(face(0, 0, 1, 0), face(0, 0, 0, 1)),
	}}
	r := &Runner{
		Session:   newTestSession(t, mock.NewMockAttendanceStore()),
		Extractor: extractor,
		Unknown:   snapshot.NewUnknownSaver(dir, 2*time.Second, 20, quietLogger()),
		Logger:    quietLogger(),
	}

	src := &sliceSource{frames: []video.Frame{
		{Index: 0, Data: data, At: morning},
		{Index: 1, Data: data, At: morning.Add(3 * time.Second)},
	}}
	sum, err := r.Run(context.Background(), src)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	// Two unknown faces per frame, but one snapshot per 2s window.
	if sum.Unknown != 4 || sum.Snapshots != 2 {
		t.Errorf("Unknown = %d, Snapshots = %d, want 4 and 2", sum.Unknown, sum.Snapshots)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 2 {
		t.Errorf("files in %s = %d, want 2", filepath.Base(dir), len(entries))
	}
}

func TestRunner_StillFrames(t *testing.T) {
	scene := jpegFrame(t)
	moved := jpegOf(t, func(x, y int) uint8 { return uint8(255 - x - y) })
	extractor := &fakeExtractor{responses: map[string]*faceapi.FaceResponse{
		string(scene): response(face(1, 0, 0, 0)),
		string(moved): response(face(0, 1, 0, 0)),
		"garbage":     response(),
	}}
	r := &Runner{
		Session:   newTestSession(t, mock.NewMockAttendanceStore()),
		Extractor: extractor,
		Still:     fingerprint.NewChangeDetector(2),
		Logger:    quietLogger(),
	}

	src := &sliceSource{frames: []video.Frame{
		{Index: 0, Data: scene, At: morning},
		{Index: 1, Data: scene, At: morning.Add(time.Second)},
		{Index: 2, Data: moved, At: morning.Add(2 * time.Second)},
		{Index: 3, Data: []byte("garbage"), At: morning.Add(3 * time.Second)},
	}}
	sum, err := r.Run(context.Background(), src)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if sum.Frames != 4 || sum.Still != 1 || sum.Processed != 3 {
		t.Errorf("Summary = %+v, want 4 frames, 1 still, 3 processed", sum)
	}
	if len(extractor.calls) != 3 {
		t.Errorf("extractor calls = %d, want 3 (undecodable frames bypass the filter)", len(extractor.calls))
	}
}
