package database

import (
	"cmp"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/coder/hnsw"
	"github.com/kozaktomas/face-attendance/internal/constants"
)

// HNSWIndexMetadata stores metadata for validating cached HNSW indexes.
type HNSWIndexMetadata struct {
	EncodingCount int       `json:"encoding_count"`
	MaxID         int64     `json:"max_id"`
	BuildTime     time.Time `json:"build_time"`
	Version       int       `json:"version"`
	Digest        string    `json:"digest"` // sha256 over every (id, vector) pair
}

const hnswMetadataVersion = 2

// encodingsDigest hashes the IDs and vectors of encs in ID order.
func encodingsDigest(encs []StoredEncoding) string {
	sorted := slices.SortedFunc(slices.Values(encs), func(a, b StoredEncoding) int {
		return cmp.Compare(a.ID, b.ID)
	})

	h := sha256.New()
	var buf [8]byte
	for _, e := range sorted {
		binary.LittleEndian.PutUint64(buf[:], uint64(e.ID))
		h.Write(buf[:])
		binary.LittleEndian.PutUint64(buf[:], uint64(len(e.Encoding)))
		h.Write(buf[:])
		for _, v := range e.Encoding {
			binary.LittleEndian.PutUint32(buf[:4], math.Float32bits(v))
			h.Write(buf[:4])
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

// HNSWIndex wraps an HNSW graph for nearest-encoding search with Euclidean distance.
type HNSWIndex struct {
	graph  *hnsw.Graph[int64]
	byID   map[int64]*StoredEncoding
	dim    int
	mu     sync.RWMutex
	path   string
	loaded bool // graph came from disk
}

// NewHNSWIndex creates a new empty HNSW index.
func NewHNSWIndex() *HNSWIndex {
	return &HNSWIndex{
		byID: make(map[int64]*StoredEncoding),
	}
}

func newGraph() *hnsw.Graph[int64] {
	g := hnsw.NewGraph[int64]()
	g.M = constants.HNSWMaxNeighbors
	g.Ml = 1.0 / float64(constants.HNSWMaxNeighbors) // Standard HNSW formula
	g.Distance = hnsw.EuclideanDistance
	return g
}

// Build replaces the index contents with encs. All encodings must share one dimension.
func (h *HNSWIndex) Build(encs []StoredEncoding) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.graph = nil
	h.loaded = false
	h.dim = 0
	h.byID = make(map[int64]*StoredEncoding, len(encs))

	if len(encs) == 0 {
		return nil
	}

	g := newGraph()
	for i := range encs {
		enc := encs[i]
		if len(enc.Encoding) == 0 {
			continue
		}
		if h.dim == 0 {
			h.dim = len(enc.Encoding)
		} else if len(enc.Encoding) != h.dim {
			return fmt.Errorf("%w: employee %s has %d dims, index has %d",
				ErrDimensionMismatch, enc.EmployeeID, len(enc.Encoding), h.dim)
		}
		g.Add(hnsw.MakeNode(enc.ID, slices.Clone(enc.Encoding)))
		h.byID[enc.ID] = &enc
	}

	h.graph = g
	return nil
}

// Search finds the k nearest neighbours of query.
// Results are ordered by ascending distance, ties by ascending ID.
func (h *HNSWIndex) Search(query []float32, k int) ([]StoredEncoding, []float64, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.graph == nil || len(h.byID) == 0 {
		return nil, nil, nil
	}
	if len(query) != h.dim {
		return nil, nil, fmt.Errorf("%w: query has %d dims, index has %d", ErrDimensionMismatch, len(query), h.dim)
	}

	// Over-fetch so that entries dropped from byID do not shrink the result.
	neighbors := h.graph.Search(query, k*constants.HNSWSearchMultiplier)

	type hit struct {
		enc  StoredEncoding
		dist float64
	}
	hits := make([]hit, 0, len(neighbors))
	for _, n := range neighbors {
		enc, ok := h.byID[n.Key]
		if !ok {
			continue
		}
		hits = append(hits, hit{enc: *enc, dist: EuclideanDistance(query, n.Value)})
	}

	slices.SortStableFunc(hits, func(a, b hit) int {
		switch {
		case a.dist < b.dist:
			return -1
		case a.dist > b.dist:
			return 1
		case a.enc.ID < b.enc.ID:
			return -1
		case a.enc.ID > b.enc.ID:
			return 1
		}
		return 0
	})
	if len(hits) > k {
		hits = hits[:k]
	}

	encs := make([]StoredEncoding, len(hits))
	dists := make([]float64, len(hits))
	for i, ht := range hits {
		encs[i] = ht.enc
		dists[i] = ht.dist
	}
	return encs, dists, nil
}

// Count returns the number of indexed encodings.
func (h *HNSWIndex) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byID)
}

// Dim returns the dimension of the indexed encodings, 0 when empty.
func (h *HNSWIndex) Dim() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.dim
}

// SetPath sets the path used by Save.
func (h *HNSWIndex) SetPath(path string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.path = path
}

// Loaded reports whether the current graph was read from disk.
func (h *HNSWIndex) Loaded() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.loaded
}

// Save persists the graph and its metadata to the configured path.
func (h *HNSWIndex) Save() error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.path == "" {
		return nil // No path set
	}

	if h.graph == nil {
		// Remove existing files if index is empty (best-effort cleanup).
		_ = os.Remove(h.path)
		_ = os.Remove(h.path + ".meta")
		return nil
	}

	f, err := os.Create(h.path) //nolint:gosec // path is from trusted config
	if err != nil {
		return fmt.Errorf("failed to create HNSW index file: %w", err)
	}
	if err := h.graph.Export(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("exporting HNSW graph: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing HNSW index file: %w", err)
	}

	var maxID int64
	indexed := make([]StoredEncoding, 0, len(h.byID))
	for id, enc := range h.byID {
		maxID = max(maxID, id)
		indexed = append(indexed, *enc)
	}
	meta, err := json.Marshal(HNSWIndexMetadata{
		EncodingCount: len(h.byID),
		MaxID:         maxID,
		BuildTime:     time.Now(),
		Version:       hnswMetadataVersion,
		Digest:        encodingsDigest(indexed),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := os.WriteFile(h.path+".meta", meta, 0600); err != nil {
		return fmt.Errorf("failed to write metadata file: %w", err)
	}
	return nil
}

// LoadHNSWMetadata loads metadata from the .meta file next to path.
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

// LoadOrBuild uses the graph stored at path when its metadata matches encs,
// otherwise it builds a fresh graph. The path is remembered for Save.
func (h *HNSWIndex) LoadOrBuild(path string, encs []StoredEncoding) error {
	if path == "" {
		return h.Build(encs)
	}
	h.SetPath(path)

	if err := h.load(path, encs); err == nil {
		return nil
	}
	return h.Build(encs)
}

var errStaleIndex = errors.New("stale HNSW index")

func (h *HNSWIndex) load(path string, encs []StoredEncoding) error {
	meta, err := LoadHNSWMetadata(path)
	if err != nil {
		return err
	}

	var maxID int64
	for _, e := range encs {
		maxID = max(maxID, e.ID)
	}
	if meta.Version != hnswMetadataVersion || meta.EncodingCount != len(encs) || meta.MaxID != maxID ||
		meta.Digest != encodingsDigest(encs) {
		return errStaleIndex
	}

	saved, err := hnsw.LoadSavedGraph[int64](path)
	if err != nil {
		return fmt.Errorf("failed to load HNSW index: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.graph = saved.Graph
	h.loaded = true
	h.dim = 0
	h.byID = make(map[int64]*StoredEncoding, len(encs))
	for i := range encs {
		h.byID[encs[i].ID] = &encs[i]
		h.dim = len(encs[i].Encoding)
	}
	return nil
}
