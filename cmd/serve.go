package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/database/postgres"
	"github.com/kozaktomas/face-attendance/internal/faceapi"
	"github.com/kozaktomas/face-attendance/internal/web"
	"github.com/kozaktomas/face-attendance/internal/web/middleware"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web dashboard",
	Long: `Start the Face Attendance web server.
The dashboard shows the students, the attendance of each day and per-student
statistics, exports attendance as CSV and identifies the faces of an uploaded photo.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "Port to listen on (default WEB_PORT or 8085)")
	serveCmd.Flags().String("host", "", "Host to bind to (default WEB_HOST or 0.0.0.0)")
	serveCmd.Flags().String("session-secret", "", "Secret for signing session cookies (default WEB_SESSION_SECRET)")
}

// applyServeFlags lets flags override the web settings from the environment.
func applyServeFlags(cmd *cobra.Command, cfg *config.WebConfig) {
	if port := mustGetInt(cmd, "port"); port > 0 {
		cfg.Port = port
	}
	if host := mustGetString(cmd, "host"); host != "" {
		cfg.Host = host
	}
	if secret := mustGetString(cmd, "session-secret"); secret != "" {
		cfg.SessionSecret = secret
	}
}

// initEnrollmentHNSW builds or loads the candidate index. Failures leave identify on exhaustive ranking.
func initEnrollmentHNSW(ctx context.Context, enrollments database.EnrollmentReader, indexPath string) *database.HNSWIndex {
	stored, err := enrollments.ListEnrollments(ctx)
	if err != nil {
		fmt.Printf("Warning: Failed to list enrollments for the HNSW index: %v\n", err)
		return nil
	}

	idx := database.NewHNSWIndex()
	rebuilt, err := idx.LoadOrBuild(indexPath, stored)
	switch {
	case err != nil:
		fmt.Printf("Warning: Failed to save HNSW index: %v\n", err)
	case indexPath == "":
		fmt.Printf("HNSW index built with %d students (in-memory only)\n", idx.Count())
	case rebuilt:
		fmt.Printf("HNSW index rebuilt with %d students (persisted to %s)\n", idx.Count(), indexPath)
	default:
		fmt.Printf("HNSW index loaded with %d students from %s\n", idx.Count(), indexPath)
	}
	return idx
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	applyServeFlags(cmd, &cfg.Web)

	s, err := openStorage(ctx, cfg)
	if err != nil {
		return err
	}
	defer s.Close()
	fmt.Printf("Using %s backend\n", s.backend.Name)

	var sessionRepo middleware.SessionRepository
	if s.pool != nil {
		sessionRepo = postgres.NewSessionRepository(s.pool)
		fmt.Printf("Session persistence enabled (PostgreSQL)\n")
	}

	server, err := web.NewServer(cfg, web.Services{
		Backend:   s.backend,
		Directory: s.directory,
		Extractor: faceapi.NewClient(cfg.Embedding.URL),
		Index:     initEnrollmentHNSW(ctx, s.backend.Enrollments, cfg.Database.HNSWIndexPath),
	}, sessionRepo)
	if err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		fmt.Println("\nShutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
	}()

	fmt.Printf("Starting Face Attendance dashboard on http://%s:%d\n", cfg.Web.Host, cfg.Web.Port)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
