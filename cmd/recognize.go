package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/faceapi"
	"github.com/kozaktomas/face-attendance/internal/fingerprint"
	"github.com/kozaktomas/face-attendance/internal/recognition"
	"github.com/kozaktomas/face-attendance/internal/snapshot"
	"github.com/kozaktomas/face-attendance/internal/video"
)

var recognizeCmd = &cobra.Command{
	Use:   "recognize <input>",
	Short: "Recognize enrolled students and mark their attendance",
	Long: `Run the recognition loop over a frame source. Every accepted face marks the
student present for today, at most once per day.

Sources:
  dir     every image in a directory, in name order (default)
  file    a single image
  ffmpeg  a video file, stream URL or capture device decoded by ffmpeg
  stdin   an MJPEG stream on standard input

Examples:
  # Process a folder of snapshots
  face-attendance recognize ./frames

  # Webcam on Linux, one frame in 15 analyzed
  face-attendance recognize --source ffmpeg --input-format v4l2 /dev/video0

  # Stricter matching on a recorded lecture
  face-attendance recognize --source ffmpeg --threshold 0.9 lecture.mp4`,
	Args: cobra.ExactArgs(1),
	RunE: runRecognize,
}

func init() {
	rootCmd.AddCommand(recognizeCmd)

	recognizeCmd.Flags().String("source", "dir", "Frame source: dir, file, ffmpeg or stdin")
	recognizeCmd.Flags().Int("every-n", 0, "Analyze one frame in N (default 1 for dir/file, PROCESS_EVERY_N_FRAMES otherwise)")
	recognizeCmd.Flags().Int("fps", 0, "Frame rate ffmpeg decodes at (0 = source rate)")
	recognizeCmd.Flags().String("input-format", "", "ffmpeg input format, e.g. v4l2, avfoundation or dshow")
	recognizeCmd.Flags().Float64("threshold", constants.DefaultSimilarityThreshold, "Minimum cosine similarity to accept a match (0.50-1.00)")
	recognizeCmd.Flags().Bool("no-snapshots", false, "Do not save crops of unknown faces")
	recognizeCmd.Flags().Int("skip-still", -1, "Skip frames whose dHash is within N bits of the last analyzed frame (-1 disables)")
}

// openSource creates the frame source and reports how many frames it will yield (-1 if unknown).
func openSource(cmd *cobra.Command, kind, input string) (video.Source, int, error) {
	switch kind {
	case "dir":
		src, err := video.NewDirSource(input)
		if err != nil {
			return nil, 0, err
		}
		return src, src.Len(), nil
	case "file":
		return video.NewFileSource(input), 1, nil
	case "ffmpeg":
		src, err := video.NewFFmpegSource(cmd.Context(), input, mustGetString(cmd, "input-format"), mustGetInt(cmd, "fps"))
		if err != nil {
			return nil, 0, err
		}
		return src, -1, nil
	case "stdin":
		return video.NewMJPEGSource(os.Stdin), -1, nil
	default:
		return nil, 0, fmt.Errorf("unknown source %q (want dir, file, ffmpeg or stdin)", kind)
	}
}

func runRecognize(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	kind := mustGetString(cmd, "source")
	everyN := mustGetInt(cmd, "every-n")
	if everyN <= 0 {
		everyN = 1
		if kind == "ffmpeg" || kind == "stdin" {
			everyN = cfg.Recognition.ProcessEveryN
		}
	}
	cfg.Recognition.ProcessEveryN = everyN

	s, err := openStorage(ctx, cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	registry, _, err := loadRegistry(ctx, s, cfg.Embedding.Dim)
	if err != nil {
		return err
	}
	fmt.Printf("Loaded %d enrolled students (%d dimensions)\n", registry.Len(), registry.Dim())

	dedup := attendance.NewDeduplicator(s.backend.Attendance, s.directory, nil)
	session, err := recognition.NewSession(registry, cfg.Recognition, dedup, nil)
	if err != nil {
		return err
	}
	defer session.Close()

	src, total, err := openSource(cmd, kind, args[0])
	if err != nil {
		return err
	}
	defer src.Close()

	runner := &recognition.Runner{
		Session:   session,
		Extractor: faceapi.NewClient(cfg.Embedding.URL),
		EveryN:    everyN,
	}
	if !mustGetBool(cmd, "no-snapshots") && cfg.Recognition.UnknownFacesDir != "" {
		runner.Unknown = snapshot.NewUnknownSaver(cfg.Recognition.UnknownFacesDir,
			constants.UnknownFaceThrottle, constants.UnknownFacePadding, nil)
	}

	if n := mustGetInt(cmd, "skip-still"); n >= 0 {
		runner.Still = fingerprint.NewChangeDetector(n)
	}

	var bar *progressbar.ProgressBar
	if total > 0 {
		bar = progressbar.NewOptions(total,
			progressbar.OptionSetDescription("Recognizing"),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("frames"),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionSetPredictTime(true),
			progressbar.OptionFullWidth(),
		)
	} else {
		fmt.Printf("Session %s started (threshold %.2f, every %d frames). Press Ctrl+C to stop\n",
			session.ID, cfg.Recognition.Threshold, everyN)
	}

	runner.OnEvent = func(ev recognition.Event) {
		if !ev.Outcome.Marked {
			return
		}
		if bar != nil {
			bar.Clear()
		}
		m := ev.Outcome.Match
		fmt.Printf("Marked %s (%s) present, similarity %.3f\n", m.Key, m.DisplayName, m.Score)
	}
	if bar != nil {
		src = &progressSource{Source: src, bar: bar}
	}

	summary, err := runner.Run(ctx, src)
	if bar != nil {
		bar.Finish()
	}
	printSummary(summary)
	return err
}

// progressSource advances a progress bar for every frame pulled.
type progressSource struct {
	video.Source
	bar *progressbar.ProgressBar
}

func (p *progressSource) Next(ctx context.Context) (video.Frame, error) {
	frame, err := p.Source.Next(ctx)
	if err == nil {
		p.bar.Add(1)
	}
	return frame, err
}

func printSummary(sum recognition.Summary) {
	fmt.Printf("\nFrames:     %d (%d analyzed, %d unchanged, %d failed)\n", sum.Frames, sum.Processed, sum.Still, sum.Failed)
	fmt.Printf("Faces:      %d (%d recognized, %d unknown, %d invalid)\n", sum.Faces, sum.Recognized, sum.Unknown, sum.Invalid)
	fmt.Printf("Marked:     %d new attendance records\n", sum.Marked)
	if sum.Snapshots > 0 {
		fmt.Printf("Snapshots:  %d unknown faces saved\n", sum.Snapshots)
	}
	if sum.Errors > 0 {
		fmt.Printf("Errors:     %d attendance writes failed\n", sum.Errors)
	}
}
