package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-attendance/internal/database"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Manage the HNSW candidate index used by the web identify endpoint",
}

var indexBuildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build the index from the current enrollments and save it to HNSW_INDEX_PATH",
	Args:  cobra.NoArgs,
	RunE:  runIndexBuild,
}

var indexStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report whether the saved index matches the current enrollments",
	Args:  cobra.NoArgs,
	RunE:  runIndexStatus,
}

func init() {
	rootCmd.AddCommand(indexCmd)
	indexCmd.AddCommand(indexBuildCmd, indexStatusCmd)

	indexBuildCmd.Flags().Bool("force", false, "Rebuild even when the saved index is current")
}

func runIndexBuild(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	path := cfg.Database.HNSWIndexPath
	if path == "" {
		return errors.New("HNSW_INDEX_PATH is not set")
	}
	s, err := openStorage(ctx, cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	enrollments, err := s.backend.Enrollments.ListEnrollments(ctx)
	if err != nil {
		return fmt.Errorf("listing enrollments: %w", err)
	}

	idx := database.NewHNSWIndex()
	start := time.Now()
	if mustGetBool(cmd, "force") {
		idx.BuildFromEnrollments(enrollments)
		if err := idx.SaveWithMetadata(path); err != nil {
			return err
		}
		fmt.Printf("Rebuilt index with %d students in %v (saved to %s)\n", idx.Count(), time.Since(start).Round(time.Millisecond), path)
		return nil
	}

	rebuilt, err := idx.LoadOrBuild(path, enrollments)
	if err != nil {
		return err
	}
	if rebuilt {
		fmt.Printf("Built index with %d students in %v (saved to %s)\n", idx.Count(), time.Since(start).Round(time.Millisecond), path)
	} else {
		fmt.Printf("Index at %s is current (%d students)\n", path, idx.Count())
	}
	return nil
}

func runIndexStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	path := cfg.Database.HNSWIndexPath
	if path == "" {
		fmt.Println("HNSW_INDEX_PATH is not set; the index is built in memory when the server starts")
		return nil
	}

	meta, err := database.LoadHNSWMetadata(path)
	if err != nil {
		fmt.Printf("No saved index at %s\n", path)
		return nil
	}
	fmt.Printf("Saved index: %d students, built %s\n", len(meta.StudentIDs), meta.BuildTime.Format(time.RFC3339))

	s, err := openStorage(ctx, cfg)
	if err != nil {
		return err
	}
	defer s.Close()
	enrollments, err := s.backend.Enrollments.ListEnrollments(ctx)
	if err != nil {
		return fmt.Errorf("listing enrollments: %w", err)
	}

	idx := database.NewHNSWIndex()
	switch err := idx.LoadWithEnrollments(path, enrollments); {
	case err == nil:
		fmt.Println("Status: current")
	case errors.Is(err, database.ErrStaleIndex):
		fmt.Printf("Status: stale (%v); run \"face-attendance index build\"\n", err)
	default:
		return err
	}
	return nil
}
