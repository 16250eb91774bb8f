package handlers

import (
	"errors"
	"io"
	"log"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/faceapi"
	"github.com/kozaktomas/face-attendance/internal/facematch"
)

// IdentifyHandler matches the faces of an uploaded photo against the enrollments.
// It never records attendance.
type IdentifyHandler struct {
	extractor   faceapi.Extractor
	enrollments database.EnrollmentReader
	index       *database.HNSWIndex // optional candidate index
	threshold   float64
	dim         int
	logger      *slog.Logger
}

// NewIdentifyHandler creates a new identify handler. index may be nil.
func NewIdentifyHandler(cfg *config.Config, extractor faceapi.Extractor, enrollments database.EnrollmentReader, index *database.HNSWIndex) *IdentifyHandler {
	return &IdentifyHandler{
		extractor:   extractor,
		enrollments: enrollments,
		index:       index,
		threshold:   cfg.Recognition.Threshold,
		dim:         cfg.Embedding.Dim,
		logger:      slog.Default(),
	}
}

// CandidateResponse is one ranked enrollment for a face
type CandidateResponse struct {
	StudentID  string  `json:"student_id"`
	Name       string  `json:"name"`
	Similarity float64 `json:"similarity"`
	Accepted   bool    `json:"accepted"`
}

// IdentifiedFace is the result for one detected face
type IdentifiedFace struct {
	BBox       []float64              `json:"bbox"`
	DetScore   float64                `json:"det_score"`
	Match      *facematch.MatchResult `json:"match,omitempty"`
	Candidates []CandidateResponse    `json:"candidates,omitempty"`
	Error      string                 `json:"error,omitempty"`
}

// IdentifyResponse is the response of POST /identify
type IdentifyResponse struct {
	FacesCount int              `json:"faces_count"`
	Threshold  float64          `json:"threshold"`
	Model      string           `json:"model,omitempty"`
	Faces      []IdentifiedFace `json:"faces"`
}

func (h *IdentifyHandler) candidates(classifier *facematch.Classifier, query facematch.Embedding, k int) []CandidateResponse {
	var out []CandidateResponse
	if h.index != nil && !h.index.IsEmpty() {
		hits, err := h.index.Search(query, k)
		if err == nil {
			for _, hit := range hits {
				out = append(out, CandidateResponse{
					StudentID:  hit.StudentID,
					Name:       hit.DisplayName,
					Similarity: hit.Similarity,
					Accepted:   hit.Similarity >= h.threshold,
				})
			}
			return out
		}
		h.logger.Warn("candidate index search failed, ranking exhaustively", "error", err)
	}

	ranked, err := classifier.TopK(query, k)
	if err != nil {
		return nil
	}
	for _, c := range ranked {
		out = append(out, CandidateResponse{StudentID: c.Key, Name: c.DisplayName, Similarity: c.Score, Accepted: c.Accepted})
	}
	return out
}

// Identify handles a multipart upload with the photo in the "file" field.
// ?top= sets the number of candidates listed per face.
func (h *IdentifyHandler) Identify(w http.ResponseWriter, r *http.Request) {
	top := constants.DefaultTopK
	if v := r.URL.Query().Get("top"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			respondError(w, http.StatusBadRequest, "top must be a non-negative integer")
			return
		}
		top = min(n, constants.MaxTopK)
	}

	r.Body = http.MaxBytesReader(w, r.Body, constants.MaxUploadSize)
	if err := r.ParseMultipartForm(constants.MaxUploadSize); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse multipart form")
		return
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()
	imageData, err := io.ReadAll(file)
	if err != nil || len(imageData) == 0 {
		respondError(w, http.StatusBadRequest, "failed to read file")
		return
	}

	enrollments, err := h.enrollments.ListEnrollments(r.Context())
	if err != nil {
		log.Printf("Failed to list enrollments: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to load enrollments")
		return
	}
	registry, _, err := facematch.LoadRegistry(database.ToEnrollmentRecords(enrollments), h.dim, h.logger)
	if errors.Is(err, facematch.ErrNoEnrollments) {
		respondError(w, http.StatusConflict, "no students are enrolled")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load enrollments")
		return
	}
	classifier, err := facematch.NewClassifier(registry, h.threshold)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp, err := h.extractor.DetectFaces(r.Context(), imageData)
	if err != nil {
		log.Printf("Face detection failed: %v", err)
		respondError(w, http.StatusBadGateway, "face detection failed")
		return
	}

	out := IdentifyResponse{
		FacesCount: resp.FacesCount,
		Threshold:  h.threshold,
		Model:      resp.Model,
		Faces:      make([]IdentifiedFace, 0, len(resp.Faces)),
	}
	for _, obs := range resp.Observations() {
		face := IdentifiedFace{BBox: obs.BBox, DetScore: obs.DetScore}
		match, err := classifier.Classify(obs.Embedding)
		if err != nil {
			face.Error = err.Error()
			out.Faces = append(out.Faces, face)
			continue
		}
		face.Match = &match
		face.Candidates = h.candidates(classifier, obs.Embedding, top)
		out.Faces = append(out.Faces, face)
	}
	respondJSON(w, http.StatusOK, out)
}
