package cmd

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/facematch"
)

var attendanceCmd = &cobra.Command{
	Use:   "attendance",
	Short: "Show, export and correct attendance records",
}

var attendanceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the attendance of one day",
	Args:  cobra.NoArgs,
	RunE:  runAttendanceList,
}

var attendanceStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Days present and average match confidence per student",
	Args:  cobra.NoArgs,
	RunE:  runAttendanceStats,
}

var attendanceExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the attendance of one day as CSV",
	Args:  cobra.NoArgs,
	RunE:  runAttendanceExport,
}

var attendanceMarkCmd = &cobra.Command{
	Use:   "mark",
	Short: "Mark a student present today by ID or name",
	Long: `Mark a student present today, the same way recognition does: a student
already marked today is left alone.

The student may be given by ID or by name. Names are matched ignoring case,
diacritics and dashes; a name shared by several students is rejected.

Examples:
  face-attendance attendance mark --student S001
  face-attendance attendance mark --student "jana novakova"`,
	Args: cobra.NoArgs,
	RunE: runAttendanceMark,
}

func init() {
	rootCmd.AddCommand(attendanceCmd)
	attendanceCmd.AddCommand(attendanceListCmd, attendanceStatsCmd, attendanceExportCmd, attendanceMarkCmd)

	attendanceListCmd.Flags().String("date", "", "Day to list, YYYY-MM-DD (default today)")

	attendanceStatsCmd.Flags().String("from", "", "First day, YYYY-MM-DD (default 30 days before --to)")
	attendanceStatsCmd.Flags().String("to", "", "Last day, YYYY-MM-DD (default today)")

	attendanceExportCmd.Flags().String("date", "", "Day to export, YYYY-MM-DD (default today)")
	attendanceExportCmd.Flags().StringP("output", "o", "", "Output file (default stdout)")

	attendanceMarkCmd.Flags().String("student", "", "Student ID or name (required)")
}

// dateFlag returns the flag as a YYYY-MM-DD date, def when unset.
func dateFlag(cmd *cobra.Command, name string, def time.Time) (string, error) {
	v := mustGetString(cmd, name)
	if v == "" {
		return def.Format(constants.DateLayout), nil
	}
	if _, err := time.Parse(constants.DateLayout, v); err != nil {
		return "", fmt.Errorf("--%s must be YYYY-MM-DD, got %q", name, v)
	}
	return v, nil
}

func runAttendanceList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	date, err := dateFlag(cmd, "date", time.Now())
	if err != nil {
		return err
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

	records, err := s.backend.Attendance.ListAttendance(ctx, date)
	if err != nil {
		return fmt.Errorf("listing attendance: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tID\tNAME\tDEPARTMENT\tCONFIDENCE")
	fmt.Fprintln(w, "----\t--\t----\t----------\t----------")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.4f\n", r.Time, r.StudentID, r.Name, r.Department, r.Confidence)
	}
	w.Flush()
	fmt.Printf("\n%d present on %s\n", len(records), date)
	return nil
}

func runAttendanceStats(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	to, err := dateFlag(cmd, "to", time.Now())
	if err != nil {
		return err
	}
	toDate, _ := time.Parse(constants.DateLayout, to)
	from, err := dateFlag(cmd, "from", toDate.AddDate(0, 0, -(constants.DefaultStatsDays-1)))
	if err != nil {
		return err
	}
	if from > to {
		return errors.New("--from must not be after --to")
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

	stats, err := s.backend.Attendance.AttendanceStats(ctx, from, to)
	if err != nil {
		return fmt.Errorf("computing attendance stats: %w", err)
	}

	fmt.Printf("Attendance from %s to %s\n\n", from, to)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tDEPARTMENT\tDAYS\tAVG CONFIDENCE\tLAST SEEN")
	fmt.Fprintln(w, "--\t----\t----------\t----\t--------------\t---------")
	for _, st := range stats {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%.4f\t%s\n",
			st.StudentID, st.Name, st.Department, st.DaysPresent, st.AvgConfidence, st.LastSeen)
	}
	w.Flush()
	return nil
}

// writeAttendanceCSV writes records in the layout of the daily attendance files.
func writeAttendanceCSV(out io.Writer, records []database.AttendanceRecord) error {
	w := csv.NewWriter(out)
	if err := w.Write([]string{"ID", "Name", "Department", "Date", "Time", "Status", "Confidence"}); err != nil {
		return err
	}
	for _, r := range records {
		row := []string{r.StudentID, r.Name, r.Department, r.Date, r.Time, r.Status,
			strconv.FormatFloat(r.Confidence, 'f', 4, 64)}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func runAttendanceExport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	date, err := dateFlag(cmd, "date", time.Now())
	if err != nil {
		return err
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

	records, err := s.backend.Attendance.ListAttendance(ctx, date)
	if err != nil {
		return fmt.Errorf("listing attendance: %w", err)
	}

	output := mustGetString(cmd, "output")
	if output == "" {
		return writeAttendanceCSV(os.Stdout, records)
	}
	f, err := os.Create(output) //nolint:gosec // output path is chosen by the operator
	if err != nil {
		return fmt.Errorf("creating %s: %w", output, err)
	}
	if err := writeAttendanceCSV(f, records); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", output, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("writing %s: %w", output, err)
	}
	fmt.Printf("Exported %d records to %s\n", len(records), output)
	return nil
}

// resolveStudent accepts a student ID or a display name.
func resolveStudent(cmd *cobra.Command, s *storage, ref string) (*database.Student, error) {
	ctx := cmd.Context()
	st, err := s.directory.GetStudent(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("reading student %s: %w", ref, err)
	}
	if st != nil {
		return st, nil
	}

	students, err := s.directory.ListStudents(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing students: %w", err)
	}
	key, ok, err := facematch.NewNameResolver(database.ToNamedIdentities(students)).Resolve(ref)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %q", database.ErrStudentNotFound, ref)
	}
	for i := range students {
		if students[i].ID == key {
			return &students[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %q", database.ErrStudentNotFound, ref)
}

func runAttendanceMark(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	ref := mustGetString(cmd, "student")
	if ref == "" {
		return errors.New("--student is required")
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

	student, err := resolveStudent(cmd, s, ref)
	if err != nil {
		return err
	}

	dedup := attendance.NewDeduplicator(s.backend.Attendance, s.directory, nil)
	marked, err := dedup.TryMarkMatch(ctx, attendance.Mark{Key: student.ID, DisplayName: student.Name}, time.Now())
	if err != nil {
		return err
	}
	if marked {
		fmt.Printf("Marked %s (%s) present\n", student.ID, student.Name)
	} else {
		fmt.Printf("%s (%s) is already marked present today\n", student.ID, student.Name)
	}
	return nil
}
