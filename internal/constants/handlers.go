package constants

// Web handler constants
const (
	// MaxUploadSize is the maximum identify upload size in bytes (20MB)
	MaxUploadSize = 20 << 20

	// DefaultStatsDays is the length of the stats window when no start date is given
	DefaultStatsDays = 30

	// MaxTopK caps the number of candidates a single identify request may list
	MaxTopK = 20
)
