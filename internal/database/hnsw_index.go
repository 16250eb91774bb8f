package database

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/coder/hnsw"

	"github.com/kozaktomas/face-attendance/internal/facematch"
)

// HNSWIndexMetadata stores metadata for validating cached HNSW indexes.
type HNSWIndexMetadata struct {
	StudentIDs []string  `json:"student_ids"` // node key i belongs to StudentIDs[i]
	BuildTime  time.Time `json:"build_time"`
	Version    int       `json:"version"`
}

const hnswMetadataVersion = 1

// ErrStaleIndex is returned when a persisted index no longer matches the enrollments.
var ErrStaleIndex = errors.New("HNSW index is stale")

// IndexHit is one candidate returned by the index
type IndexHit struct {
	StudentID   string  `json:"student_id"`
	DisplayName string  `json:"display_name"`
	Similarity  float64 `json:"similarity"`
}

// HNSWIndex is an approximate nearest-neighbour index over enrollments. It only lists
// candidates; accepting a match is the classifier's job.
type HNSWIndex struct {
	graph     *hnsw.Graph[int64]
	idToEnrol map[int64]*StoredEnrollment
	ids       []string
	dim       int
	builtAt   time.Time
	mu        sync.RWMutex
}

// NewHNSWIndex creates a new empty HNSW index.
func NewHNSWIndex() *HNSWIndex {
	return &HNSWIndex{
		idToEnrol: make(map[int64]*StoredEnrollment),
	}
}

func newGraph() *hnsw.Graph[int64] {
	g := hnsw.NewGraph[int64]()
	g.M = HNSWMaxNeighbors
	g.Ml = 1.0 / float64(HNSWMaxNeighbors) // Standard HNSW formula
	g.Distance = hnsw.CosineDistance
	return g
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}

func isZero(v []float64) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

// BuildFromEnrollments builds the index. Empty and zero-norm embeddings, and embeddings
// whose length differs from the first indexed one, are left out.
func (h *HNSWIndex) BuildFromEnrollments(enrollments []StoredEnrollment) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.graph = nil
	h.idToEnrol = make(map[int64]*StoredEnrollment, len(enrollments))
	h.ids = make([]string, len(enrollments))
	h.builtAt = time.Now()

	g := newGraph()
	dim := 0
	for i := range enrollments {
		e := &enrollments[i]
		h.ids[i] = e.StudentID
		if len(e.Embedding) == 0 || isZero(e.Embedding) {
			continue
		}
		if dim == 0 {
			dim = len(e.Embedding)
		}
		if len(e.Embedding) != dim {
			continue
		}
		g.Add(hnsw.MakeNode(int64(i), toFloat32(e.Embedding)))
		h.idToEnrol[int64(i)] = e
	}
	if len(h.idToEnrol) > 0 {
		h.graph = g
		h.dim = dim
	}
}

// Search returns up to k candidates ordered by descending exact cosine similarity.
func (h *HNSWIndex) Search(query []float64, k int) ([]IndexHit, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.graph == nil {
		return nil, errors.New("index not initialized")
	}
	if err := facematch.ValidateDimension("", query, h.dim); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, nil
	}

	neighbors := h.graph.Search(toFloat32(query), k*HNSWSearchMultiplier)
	hits := make([]IndexHit, 0, len(neighbors))
	for _, n := range neighbors {
		e, ok := h.idToEnrol[n.Key]
		if !ok {
			continue
		}
		// Rescore on the float64 embedding; the graph holds float32 copies.
		sim, ok := facematch.CosineSimilarity(query, e.Embedding)
		if !ok || math.IsNaN(sim) {
			continue
		}
		hits = append(hits, IndexHit{StudentID: e.StudentID, DisplayName: e.DisplayName, Similarity: sim})
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Similarity > hits[j].Similarity })
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// Count returns the number of indexed enrollments.
func (h *HNSWIndex) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.idToEnrol)
}

// IsEmpty returns true if the index has no graph data loaded.
func (h *HNSWIndex) IsEmpty() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.graph == nil
}

// SaveWithMetadata persists the graph to path and its metadata to path.meta.
func (h *HNSWIndex) SaveWithMetadata(path string) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.graph == nil {
		// Remove existing files if index is empty (best-effort cleanup).
		_ = os.Remove(path)
		_ = os.Remove(path + ".meta")
		return nil
	}

	f, err := os.Create(path) //nolint:gosec // path is from trusted config
	if err != nil {
		return fmt.Errorf("failed to create HNSW index file: %w", err)
	}
	defer f.Close()

	if err := h.graph.Export(f); err != nil {
		return fmt.Errorf("failed to export HNSW graph: %w", err)
	}

	metadata := HNSWIndexMetadata{
		StudentIDs: h.ids,
		BuildTime:  h.builtAt,
		Version:    hnswMetadataVersion,
	}
	metaData, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := os.WriteFile(path+".meta", metaData, 0600); err != nil {
		return fmt.Errorf("failed to write metadata file: %w", err)
	}
	return nil
}

// LoadHNSWMetadata loads metadata from a separate .meta file.
func LoadHNSWMetadata(path string) (HNSWIndexMetadata, error) {
	var metadata HNSWIndexMetadata

	data, err := os.ReadFile(path + ".meta") //nolint:gosec // path is from trusted config
	if err != nil {
		return metadata, fmt.Errorf("failed to read metadata file: %w", err)
	}
	if err := json.Unmarshal(data, &metadata); err != nil {
		return metadata, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	return metadata, nil
}

// LoadWithEnrollments loads a persisted graph and attaches the current enrollments.
// Enrollments must be in the order the index was built from; if they differ in
// membership or any was updated after the build, ErrStaleIndex is returned.
func (h *HNSWIndex) LoadWithEnrollments(path string, enrollments []StoredEnrollment) error {
	metadata, err := LoadHNSWMetadata(path)
	if err != nil {
		return err
	}
	if metadata.Version != hnswMetadataVersion {
		return fmt.Errorf("%w: version %d", ErrStaleIndex, metadata.Version)
	}

	ids := make([]string, len(enrollments))
	for i, e := range enrollments {
		ids[i] = e.StudentID
		if e.CreatedAt.After(metadata.BuildTime) {
			return fmt.Errorf("%w: %s enrolled after build", ErrStaleIndex, e.StudentID)
		}
	}
	if !slices.Equal(ids, metadata.StudentIDs) {
		return fmt.Errorf("%w: enrollment set changed", ErrStaleIndex)
	}

	saved, err := hnsw.LoadSavedGraph[int64](path)
	if err != nil {
		return fmt.Errorf("failed to load HNSW index: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.graph = saved.Graph
	h.ids = ids
	h.dim = 0
	h.builtAt = metadata.BuildTime
	h.idToEnrol = make(map[int64]*StoredEnrollment, len(enrollments))
	for i := range enrollments {
		if _, ok := saved.Lookup(int64(i)); ok {
			h.idToEnrol[int64(i)] = &enrollments[i]
			if h.dim == 0 {
				h.dim = len(enrollments[i].Embedding)
			}
		}
	}
	return nil
}

// LoadOrBuild loads the index at path when it is current, otherwise builds it from
// the enrollments and saves it. An empty path only builds.
func (h *HNSWIndex) LoadOrBuild(path string, enrollments []StoredEnrollment) (rebuilt bool, err error) {
	if path != "" {
		if err := h.LoadWithEnrollments(path, enrollments); err == nil {
			return false, nil
		}
	}
	h.BuildFromEnrollments(enrollments)
	if path == "" {
		return true, nil
	}
	return true, h.SaveWithMetadata(path)
}
