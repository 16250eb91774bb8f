package cmd

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-attendance/internal/database"
)

var studentsCmd = &cobra.Command{
	Use:   "students",
	Short: "Manage the student directory",
}

var studentsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List students and whether they are enrolled",
	Args:  cobra.NoArgs,
	RunE:  runStudentsList,
}

var studentsAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add or update a student without enrolling a face",
	Long: `Add or update a student in the directory. Use "enroll" to attach a face.

Examples:
  face-attendance students add --id S001 --name "Jana Novakova" --department Physics`,
	Args: cobra.NoArgs,
	RunE: runStudentsAdd,
}

var studentsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a student and their enrollment (attendance history is kept)",
	Args:  cobra.ExactArgs(1),
	RunE:  runStudentsDelete,
}

func init() {
	rootCmd.AddCommand(studentsCmd)
	studentsCmd.AddCommand(studentsListCmd, studentsAddCmd, studentsDeleteCmd)

	addStudentFlags(studentsAddCmd)
}

// addStudentFlags registers the directory fields shared by "students add" and "enroll".
func addStudentFlags(cmd *cobra.Command) {
	cmd.Flags().String("id", "", "Student ID (required)")
	cmd.Flags().String("name", "", "Display name (required)")
	cmd.Flags().String("department", "", "Department")
	cmd.Flags().String("year", "", "Year of study")
	cmd.Flags().String("email", "", "Email address")
	cmd.Flags().String("phone", "", "Phone number")
}

func studentFromFlags(cmd *cobra.Command) database.Student {
	return database.Student{
		ID:         mustGetString(cmd, "id"),
		Name:       mustGetString(cmd, "name"),
		Department: mustGetString(cmd, "department"),
		Year:       mustGetString(cmd, "year"),
		Email:      mustGetString(cmd, "email"),
		Phone:      mustGetString(cmd, "phone"),
	}
}

func runStudentsList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	s, err := openStorage(ctx, cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	students, err := s.directory.ListStudents(ctx)
	if err != nil {
		return fmt.Errorf("listing students: %w", err)
	}
	enrollments, err := s.backend.Enrollments.ListEnrollments(ctx)
	if err != nil {
		return fmt.Errorf("listing enrollments: %w", err)
	}
	enrolled := make(map[string]database.StoredEnrollment, len(enrollments))
	for _, e := range enrollments {
		enrolled[e.StudentID] = e
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tDEPARTMENT\tYEAR\tENROLLED")
	fmt.Fprintln(w, "--\t----\t----------\t----\t--------")
	for _, st := range students {
		state := "no"
		if e, ok := enrolled[st.ID]; ok {
			state = e.CreatedAt.Format("2006-01-02")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", st.ID, st.Name, st.Department, st.Year, state)
	}
	w.Flush()
	fmt.Printf("\nTotal: %d students, %d enrolled\n", len(students), len(enrollments))
	return nil
}

func runStudentsAdd(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	student := studentFromFlags(cmd)
	if student.ID == "" || student.Name == "" {
		return errors.New("--id and --name are required")
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

	existing, err := s.backend.Students.GetStudent(ctx, student.ID)
	if err != nil {
		return fmt.Errorf("reading student %s: %w", student.ID, err)
	}
	if existing != nil {
		student.CreatedAt = existing.CreatedAt
		student.PhotoPath = existing.PhotoPath
	}
	if err := s.backend.Students.SaveStudent(ctx, &student); err != nil {
		return fmt.Errorf("saving student %s: %w", student.ID, err)
	}

	if existing != nil {
		fmt.Printf("Updated student %s (%s)\n", student.ID, student.Name)
	} else {
		fmt.Printf("Added student %s (%s)\n", student.ID, student.Name)
	}
	return nil
}

func runStudentsDelete(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	s, err := openStorage(ctx, cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.backend.Students.DeleteStudent(ctx, args[0]); err != nil {
		return fmt.Errorf("deleting student %s: %w", args[0], err)
	}
	fmt.Printf("Deleted student %s\n", args[0])
	return nil
}
