package recognition

import (
	"context"
	"errors"
	"image"
	"io"
	"log/slog"

	"github.com/kozaktomas/face-attendance/internal/faceapi"
	"github.com/kozaktomas/face-attendance/internal/facematch"
	"github.com/kozaktomas/face-attendance/internal/fingerprint"
	"github.com/kozaktomas/face-attendance/internal/snapshot"
	"github.com/kozaktomas/face-attendance/internal/video"
)

// Event reports one processed observation.
type Event struct {
	Frame   video.Frame
	BBox    []float64
	Outcome Outcome
}

// Summary counts what a run did.
type Summary struct {
	Frames     int // frames pulled from the source
	Processed  int // frames sent to the face API
	Still      int // frames skipped because the scene had not changed
	Failed     int // frames the face API could not process
	Faces      int
	Invalid    int // observations dropped for a malformed embedding
	Recognized int // accepted observations
	Marked     int // new attendance records
	Unknown    int // observations not accepted
	Errors     int // attendance writes that failed
	Snapshots  int
}

// Runner drives a Session from a frame source, one frame at a time.
type Runner struct {
	Session   *Session
	Extractor faceapi.Extractor
	EveryN    int                         // process frames whose index is a multiple of EveryN; <= 1 processes all
	Unknown   *snapshot.UnknownSaver      // optional
	Still     *fingerprint.ChangeDetector // optional, skips frames that look like the last analyzed one
	OnEvent   func(Event)                 // optional, called for every observation
	Logger    *slog.Logger
}

// Run pulls frames until the source is exhausted or ctx is cancelled. Per-frame
// failures are logged and skipped. Cancellation is not an error.
func (r *Runner) Run(ctx context.Context, src video.Source) (Summary, error) {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}
	everyN := max(r.EveryN, 1)

	var sum Summary
	for {
		frame, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			return sum, nil
		}
		if ctx.Err() != nil {
			return sum, nil
		}
		if err != nil {
			return sum, err
		}
		sum.Frames++

		if frame.Index%everyN != 0 {
			continue
		}
		decoded, changed := r.changed(frame, logger)
		if !changed {
			sum.Still++
			continue
		}
		sum.Processed++
		r.processFrame(ctx, frame, decoded, &sum, logger)
	}
}

// changed applies the still-scene filter. It returns the decoded frame when it had to decode it.
func (r *Runner) changed(frame video.Frame, logger *slog.Logger) (image.Image, bool) {
	if r.Still == nil {
		return nil, true
	}
	img, err := snapshot.Decode(frame.Data)
	if err != nil {
		logger.Debug("cannot decode frame for change detection", "frame", frame.Index, "error", err)
		return nil, true
	}
	return img, r.Still.Changed(img)
}

func (r *Runner) processFrame(ctx context.Context, frame video.Frame, decoded image.Image, sum *Summary, logger *slog.Logger) {
	resp, err := r.Extractor.DetectFaces(ctx, frame.Data)
	if err != nil {
		sum.Failed++
		logger.Warn("face detection failed, skipping frame", "frame", frame.Index, "name", frame.Name, "error", err)
		return
	}

	for _, obs := range resp.Observations() {
		sum.Faces++
		out, err := r.Session.Observe(ctx, obs, frame.At)
		switch {
		case errors.Is(err, facematch.ErrInvalidEmbedding):
			sum.Invalid++
			logger.Warn("dropping observation", "frame", frame.Index, "error", err)
			continue
		case err != nil:
			sum.Errors++
			logger.Error("marking attendance failed", "frame", frame.Index, "identity_key", out.Match.Key, "error", err)
		}

		if out.Match.Accepted {
			sum.Recognized++
		} else {
			sum.Unknown++
			decoded = r.saveUnknown(frame, decoded, obs, sum, logger)
		}
		if out.Marked {
			sum.Marked++
		}
		if r.OnEvent != nil {
			r.OnEvent(Event{Frame: frame, BBox: obs.BBox, Outcome: out})
		}
	}
}

// saveUnknown decodes the frame at most once and stores the unknown face.
func (r *Runner) saveUnknown(frame video.Frame, decoded image.Image, obs facematch.Observation, sum *Summary, logger *slog.Logger) image.Image {
	if r.Unknown == nil {
		return decoded
	}
	if decoded == nil {
		img, err := snapshot.Decode(frame.Data)
		if err != nil {
			logger.Warn("cannot decode frame for snapshot", "frame", frame.Index, "error", err)
			return nil
		}
		decoded = img
	}
	path, err := r.Unknown.Save(decoded, obs, frame.At)
	if err != nil {
		logger.Warn("saving unknown face failed", "frame", frame.Index, "error", err)
		return decoded
	}
	if path != "" {
		sum.Snapshots++
	}
	return decoded
}
