package handlers

import (
	"net/http"

	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/database"
)

// ConfigHandler handles configuration endpoints
type ConfigHandler struct {
	config *config.Config
	index  *database.HNSWIndex
}

// NewConfigHandler creates a new config handler
func NewConfigHandler(cfg *config.Config, index *database.HNSWIndex) *ConfigHandler {
	return &ConfigHandler{
		config: cfg,
		index:  index,
	}
}

// ConfigResponse represents the configuration response
type ConfigResponse struct {
	Threshold        float64 `json:"similarity_threshold"`
	EmbeddingDim     int     `json:"embedding_dim"`
	ProcessEveryN    int     `json:"process_every_n_frames"`
	StorageBackend   string  `json:"storage_backend"`
	DirectoryEnabled bool    `json:"directory_enabled"`
	IndexedStudents  int     `json:"indexed_students"`
}

// Get returns the recognition settings the dashboard displays
func (h *ConfigHandler) Get(w http.ResponseWriter, r *http.Request) {
	resp := ConfigResponse{
		Threshold:        h.config.Recognition.Threshold,
		EmbeddingDim:     h.config.Embedding.Dim,
		ProcessEveryN:    h.config.Recognition.ProcessEveryN,
		StorageBackend:   h.config.Storage.Backend,
		DirectoryEnabled: h.config.Directory.URL != "",
	}
	if h.index != nil {
		resp.IndexedStudents = h.index.Count()
	}
	respondJSON(w, http.StatusOK, resp)
}
