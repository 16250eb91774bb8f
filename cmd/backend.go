package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/database/csvstore"
	"github.com/kozaktomas/face-attendance/internal/database/mariadb"
	"github.com/kozaktomas/face-attendance/internal/database/postgres"
	"github.com/kozaktomas/face-attendance/internal/facematch"
)

// loadConfig reads the environment and applies the persistent flag overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if cmd.Flags().Changed("backend") {
		cfg.Storage.Backend = strings.ToLower(mustGetString(cmd, "backend"))
	}
	if cmd.Flags().Changed("data-dir") {
		cfg.Storage.DataDir = mustGetString(cmd, "data-dir")
	}
	if cmd.Flags().Lookup("threshold") != nil && cmd.Flags().Changed("threshold") {
		cfg.Recognition.Threshold = mustGetFloat64(cmd, "threshold")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// storage is an open backend plus the student directory attendance lookups use.
type storage struct {
	backend   *database.Backend
	directory database.StudentReader
	pool      *postgres.Pool // nil unless the backend is postgres
}

func (s *storage) Close() error {
	return s.backend.Close()
}

// openStorage opens the configured backend and, when DIRECTORY_DATABASE_URL is
// set, layers the external MariaDB directory over its students.
func openStorage(ctx context.Context, cfg *config.Config) (*storage, error) {
	s := &storage{}
	switch cfg.Storage.Backend {
	case constants.BackendPostgres:
		pool, err := postgres.Initialize(ctx, &cfg.Database, slog.Default())
		if err != nil {
			return nil, fmt.Errorf("failed to initialize PostgreSQL: %w", err)
		}
		s.pool = pool
		s.backend = pool.Backend()
	default:
		store, err := csvstore.Open(cfg.Storage.DataDir)
		if err != nil {
			return nil, fmt.Errorf("opening csv store: %w", err)
		}
		s.backend = store.Backend()
	}

	s.directory = s.backend.Students
	if cfg.Directory.URL != "" {
		pool, err := mariadb.NewPool(ctx, cfg.Directory.URL)
		if err != nil {
			s.backend.Close()
			return nil, fmt.Errorf("connecting to student directory: %w", err)
		}
		s.backend.OnClose(pool.Close)
		s.directory = s.backend.Directory(mariadb.NewDirectory(pool))
	}
	return s, nil
}

// loadRegistry builds the registry from every stored enrollment and reports skipped records.
func loadRegistry(ctx context.Context, s *storage, dim int) (*facematch.Registry, []database.StoredEnrollment, error) {
	enrollments, err := s.backend.Enrollments.ListEnrollments(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("listing enrollments: %w", err)
	}
	registry, report, err := facematch.LoadRegistry(database.ToEnrollmentRecords(enrollments), dim, slog.Default())
	if err != nil {
		return nil, nil, err
	}
	for _, skipped := range report.Skipped {
		fmt.Printf("Warning: skipped enrollment %s: %s\n", skipped.Key, skipped.Reason)
	}
	return registry, enrollments, nil
}
