package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/facematch"
)

//go:embed users.yaml
var defaultUsersYAML []byte

type Config struct {
	Recognition RecognitionConfig
	Embedding   EmbeddingConfig
	Storage     StorageConfig
	Database    DatabaseConfig
	Directory   DirectoryConfig
	Web         WebConfig
}

type RecognitionConfig struct {
	Threshold       float64 // minimum cosine similarity, must lie in [0.50, 1.00]
	ProcessEveryN   int     // process one frame out of N for live sources
	UnknownFacesDir string  // where unknown-face snapshots go, empty disables them
}

// Validate rejects a threshold outside [0.50, 1.00] instead of clamping it.
func (c *RecognitionConfig) Validate() error {
	if err := facematch.ValidateThreshold(c.Threshold); err != nil {
		return err
	}
	if c.ProcessEveryN < 1 {
		return fmt.Errorf("process every N frames must be at least 1, got %d", c.ProcessEveryN)
	}
	return nil
}

type EmbeddingConfig struct {
	URL string // face embedding service, defaults to http://localhost:8000
	Dim int    // expected embedding length, 0 infers it from the first enrollment
}

type StorageConfig struct {
	Backend string // csv or postgres
	DataDir string // CSV files, reference photos
}

// PhotoDir returns the directory holding reference photos.
func (c *StorageConfig) PhotoDir() string {
	return filepath.Join(c.DataDir, "photos")
}

type DatabaseConfig struct {
	URL           string // PostgreSQL connection URL
	MaxOpenConns  int    // Maximum open connections (default 25)
	MaxIdleConns  int    // Maximum idle connections (default 5)
	HNSWIndexPath string // Path to persist the enrollment HNSW index (optional, rebuilt when empty)
}

type DirectoryConfig struct {
	URL string // MariaDB DSN of an external student directory (e.g., sis:sis@tcp(mariadb:3306)/school)
}

type WebConfig struct {
	Host           string
	Port           int
	SessionSecret  string
	AllowedOrigins []string // CORS origins besides localhost
	UsersFile      string
	Users          []User
}

// User is a dashboard account. Password is plain text only until the web layer hashes it.
type User struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	Role     string `yaml:"role"`
}

type usersFile struct {
	Users []User `yaml:"users"`
}

// envInt reads an environment variable and parses it as an integer >= minVal.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal, minVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n >= minVal {
		return n
	}
	return defaultVal
}

// envFloat reads an environment variable as a float. A malformed value is an error
// so that a typo in the threshold never silently falls back to the default.
func envFloat(key string, defaultVal float64) (float64, error) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", key, err)
	}
	return f, nil
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

// envList splits a comma-separated environment variable, dropping empty items.
func envList(key string) []string {
	var out []string
	for item := range strings.SplitSeq(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	threshold, err := envFloat("SIMILARITY_THRESHOLD", constants.DefaultSimilarityThreshold)
	if err != nil {
		return nil, err
	}

	dataDir := envString("DATA_DIR", constants.DefaultDataDir)
	usersPath := os.Getenv("WEB_USERS_FILE")
	users, err := loadUsers(usersPath)
	if err != nil {
		return nil, err
	}

	return &Config{
		Recognition: RecognitionConfig{
			Threshold:       threshold,
			ProcessEveryN:   envInt("PROCESS_EVERY_N_FRAMES", constants.DefaultProcessEveryN, 1),
			UnknownFacesDir: envString("UNKNOWN_FACES_DIR", filepath.Join(dataDir, "unknown_faces")),
		},
		Embedding: EmbeddingConfig{
			URL: envString("FACE_API_URL", "http://localhost:8000"),
			Dim: envInt("EMBEDDING_DIM", constants.DefaultEmbeddingDim, 0),
		},
		Storage: StorageConfig{
			Backend: strings.ToLower(envString("STORAGE_BACKEND", constants.BackendCSV)),
			DataDir: dataDir,
		},
		Database: DatabaseConfig{
			URL:           os.Getenv("DATABASE_URL"),
			MaxOpenConns:  envInt("DATABASE_MAX_OPEN_CONNS", 25, 1),
			MaxIdleConns:  envInt("DATABASE_MAX_IDLE_CONNS", 5, 1),
			HNSWIndexPath: os.Getenv("HNSW_INDEX_PATH"),
		},
		Directory: DirectoryConfig{
			URL: os.Getenv("DIRECTORY_DATABASE_URL"),
		},
		Web: WebConfig{
			Host:           envString("WEB_HOST", "0.0.0.0"),
			Port:           envInt("WEB_PORT", 8085, 1),
			SessionSecret:  os.Getenv("WEB_SESSION_SECRET"),
			AllowedOrigins: envList("WEB_ALLOWED_ORIGINS"),
			UsersFile:      usersPath,
			Users:          users,
		},
	}, nil
}

// Validate checks the settings every command depends on.
func (c *Config) Validate() error {
	if err := c.Recognition.Validate(); err != nil {
		return err
	}
	switch c.Storage.Backend {
	case constants.BackendCSV:
		if c.Storage.DataDir == "" {
			return errors.New("DATA_DIR is required for the csv backend")
		}
	case constants.BackendPostgres:
		if c.Database.URL == "" {
			return errors.New("DATABASE_URL is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown storage backend %q (want %s or %s)", c.Storage.Backend,
			constants.BackendCSV, constants.BackendPostgres)
	}
	return nil
}

// loadUsers reads dashboard users from path, or the embedded demo users when path is empty.
func loadUsers(path string) ([]User, error) {
	data := defaultUsersYAML
	if path != "" {
		var err error
		data, err = os.ReadFile(path) //nolint:gosec // path is from trusted config
		if err != nil {
			return nil, fmt.Errorf("reading users file: %w", err)
		}
	}

	var f usersFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing users file: %w", err)
	}
	for i, u := range f.Users {
		if u.Username == "" || u.Password == "" {
			return nil, fmt.Errorf("user #%d: username and password are required", i+1)
		}
	}
	return f.Users, nil
}
