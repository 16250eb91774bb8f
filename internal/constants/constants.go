// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

import "time"

// Face matching constants
const (
	// DefaultSimilarityThreshold is the default minimum cosine similarity for a positive identification
	DefaultSimilarityThreshold = 0.85

	// MinSimilarityThreshold is the lowest threshold accepted by configuration
	MinSimilarityThreshold = 0.50

	// MaxSimilarityThreshold is the highest threshold accepted by configuration
	MaxSimilarityThreshold = 1.00

	// DefaultEmbeddingDim is the embedding length produced by the face embedding service (buffalo_l)
	DefaultEmbeddingDim = 512

	// DefaultTopK is the default number of candidates listed by identify
	DefaultTopK = 3
)

// Recognition loop constants
const (
	// DefaultProcessEveryN processes one frame out of N for live sources
	DefaultProcessEveryN = 15

	// UnknownFaceThrottle is the minimum interval between two unknown-face snapshots
	UnknownFaceThrottle = 2 * time.Second

	// UnknownFacePadding is the padding in pixels added around an unknown face crop
	UnknownFacePadding = 20

	// MaxImageSize is the maximum dimension (width or height) for stored reference photos
	MaxImageSize = 800
)

// Attendance constants
const (
	// StatusPresent is the only status written by the recognition loop
	StatusPresent = "Present"

	// DateLayout is the layout of attendance dates (ISO-8601 calendar date)
	DateLayout = "2006-01-02"

	// TimeLayout is the layout of attendance times (ISO-8601 local time)
	TimeLayout = "15:04:05"
)

// Storage constants
const (
	// BackendCSV stores everything as flat files under the data directory
	BackendCSV = "csv"

	// BackendPostgres stores everything in PostgreSQL with pgvector
	BackendPostgres = "postgres"

	// DefaultDataDir is the default directory for the CSV backend and photos
	DefaultDataDir = "data"
)
