package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/enrollment"
	"github.com/kozaktomas/face-attendance/internal/faceapi"
	"github.com/kozaktomas/face-attendance/internal/facematch"
	"github.com/kozaktomas/face-attendance/internal/video"
)

var enrollCmd = &cobra.Command{
	Use:   "enroll [photo]",
	Short: "Enroll a student's face from a reference photo",
	Long: `Detect the face in a reference photo, compute its embedding and store it for the
student, replacing any earlier enrollment. When the photo contains several faces
the largest one is used.

With --dir every image in a folder is enrolled. File names must start with the
student ID followed by the name, e.g. S001_Jana_Novakova.jpg or the older
S001_Jana_Novakova_encoding.jpg.

Examples:
  # Enroll one student
  face-attendance enroll --id S001 --name "Jana Novakova" --department Physics jana.jpg

  # Enroll a folder of named photos
  face-attendance enroll --dir ./student_images`,
	Args: cobra.MaximumNArgs(1),
	RunE: runEnroll,
}

func init() {
	rootCmd.AddCommand(enrollCmd)

	addStudentFlags(enrollCmd)
	enrollCmd.Flags().String("dir", "", "Enroll every image in this directory (names <ID>_<Name>[_encoding].<ext>)")
	enrollCmd.Flags().Bool("no-photo", false, "Do not keep a copy of the reference photo")
}

func runEnroll(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	dir := mustGetString(cmd, "dir")
	if (dir == "") == (len(args) == 0) {
		return errors.New("give either a photo or --dir")
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	s, err := openStorage(ctx, cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	photoDir := cfg.Storage.PhotoDir()
	if mustGetBool(cmd, "no-photo") {
		photoDir = ""
	}
	enroller := enrollment.NewEnroller(faceapi.NewClient(cfg.Embedding.URL),
		s.backend.Students, s.backend.Enrollments, cfg.Embedding.Dim, photoDir, nil)

	if dir != "" {
		return enrollDir(cmd, s, enroller, dir)
	}

	student := studentFromFlags(cmd)
	if student.ID == "" || student.Name == "" {
		return errors.New("--id and --name are required")
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading photo: %w", err)
	}

	fmt.Printf("Enrolling %s (%s)...\n", student.ID, student.Name)
	enrolled, err := enroller.Enroll(ctx, student, data)
	if err != nil {
		return err
	}
	fmt.Printf("Enrolled %s with a %d-dimensional embedding (%s)\n", enrolled.StudentID, enrolled.Dim(), enrolled.Model)
	return nil
}

// enrollDir enrolls each image of dir, continuing past photos that fail.
func enrollDir(cmd *cobra.Command, s *storage, enroller *enrollment.Enroller, dir string) error {
	ctx := cmd.Context()
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("reading %s: %w", dir, err)
	}

	type photo struct {
		path    string
		student database.Student
	}
	var photos []photo
	for _, e := range entries {
		if e.IsDir() || !video.IsImageFile(e.Name()) {
			continue
		}
		stem := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
		id, name, ok := facematch.ParseLegacyEncodingName(stem)
		if !ok {
			fmt.Printf("Skipping %s: name is not <ID>_<Name>\n", e.Name())
			continue
		}
		student := database.Student{ID: id, Name: name}
		if known, err := s.directory.GetStudent(ctx, id); err == nil && known != nil {
			student = *known
		}
		photos = append(photos, photo{path: filepath.Join(dir, e.Name()), student: student})
	}
	if len(photos) == 0 {
		return fmt.Errorf("no enrollable photos in %s", dir)
	}

	bar := progressbar.NewOptions(len(photos),
		progressbar.OptionSetDescription("Enrolling"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("photos"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionFullWidth(),
	)

	var enrolled int
	var failures []string
	for _, p := range photos {
		if ctx.Err() != nil {
			break
		}
		data, err := os.ReadFile(p.path)
		if err == nil {
			_, err = enroller.Enroll(ctx, p.student, data)
		}
		if err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", filepath.Base(p.path), err))
		} else {
			enrolled++
		}
		bar.Add(1)
	}
	bar.Finish()

	fmt.Printf("\nEnrolled %d of %d photos\n", enrolled, len(photos))
	for _, f := range failures {
		fmt.Printf("  failed %s\n", f)
	}
	if enrolled == 0 {
		return errors.New("no photo could be enrolled")
	}
	return nil
}
