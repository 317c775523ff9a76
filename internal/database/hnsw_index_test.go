package database

import (
	"errors"
	"path/filepath"
	"testing"
)

func seededEncodings() []StoredEncoding {
	return []StoredEncoding{
		{ID: 1, EmployeeID: "EMP001", Name: "John Smith", Encoding: []float32{0.1, 0.2, 0.3, 0.4}},
		{ID: 2, EmployeeID: "EMP002", Name: "Sarah Johnson", Encoding: []float32{0.5, 0.6, 0.7, 0.8}},
		{ID: 3, EmployeeID: "EMP003", Name: "Mike Davis", Encoding: []float32{0.2, 0.4, 0.6, 0.8}},
	}
}

func TestHNSWIndex_Search(t *testing.T) {
	idx := NewHNSWIndex()
	if err := idx.Build(seededEncodings()); err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	if idx.Count() != 3 {
		t.Errorf("expected 3 indexed encodings, got %d", idx.Count())
	}
	if idx.Dim() != 4 {
		t.Errorf("expected dim 4, got %d", idx.Dim())
	}

	encs, dists, err := idx.Search([]float32{0.1, 0.2, 0.3, 0.4}, 2)
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if len(encs) != 2 {
		t.Fatalf("expected 2 results, got %d", len(encs))
	}
	if encs[0].EmployeeID != "EMP001" {
		t.Errorf("expected EMP001 first, got %s", encs[0].EmployeeID)
	}
	if dists[0] != 0 {
		t.Errorf("expected zero distance for exact match, got %v", dists[0])
	}
	if dists[1] < dists[0] {
		t.Errorf("expected ascending distances, got %v", dists)
	}
}

func TestHNSWIndex_EmptyAndMismatch(t *testing.T) {
	idx := NewHNSWIndex()

	encs, _, err := idx.Search([]float32{1, 2}, 3)
	if err != nil || len(encs) != 0 {
		t.Errorf("expected empty result on empty index, got %v, %v", encs, err)
	}

	if err := idx.Build(seededEncodings()); err != nil {
		t.Fatal(err)
	}
	if _, _, err := idx.Search([]float32{1, 2}, 3); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}

	bad := append(seededEncodings(), StoredEncoding{ID: 9, EmployeeID: "EMP009", Encoding: []float32{1}})
	if err := idx.Build(bad); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch from Build, got %v", err)
	}
}

func TestHNSWIndex_SaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "encodings.hnsw")
	encs := seededEncodings()

	idx := NewHNSWIndex()
	if err := idx.LoadOrBuild(path, encs); err != nil {
		t.Fatalf("LoadOrBuild() error: %v", err)
	}
	if idx.Loaded() {
		t.Error("expected fresh build when no file exists")
	}
	if err := idx.Save(); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	meta, err := LoadHNSWMetadata(path)
	if err != nil {
		t.Fatalf("LoadHNSWMetadata() error: %v", err)
	}
	if meta.EncodingCount != 3 || meta.MaxID != 3 {
		t.Errorf("unexpected metadata %+v", meta)
	}

	reloaded := NewHNSWIndex()
	if err := reloaded.LoadOrBuild(path, seededEncodings()); err != nil {
		t.Fatalf("LoadOrBuild() error: %v", err)
	}
	if !reloaded.Loaded() {
		t.Error("expected graph to be loaded from disk")
	}
	got, _, err := reloaded.Search([]float32{0.5, 0.6, 0.7, 0.8}, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].EmployeeID != "EMP002" {
		t.Errorf("expected EMP002 from loaded index, got %+v", got)
	}

	// A changed encoding set invalidates the cached graph.
	stale := NewHNSWIndex()
	if err := stale.LoadOrBuild(path, seededEncodings()[:2]); err != nil {
		t.Fatal(err)
	}
	if stale.Loaded() {
		t.Error("expected stale index to be rebuilt")
	}
}

func TestHNSWIndex_ChangedVectorInvalidatesSavedGraph(t *testing.T) {
	path := filepath.Join(t.TempDir(), "encodings.hnsw")

	retrained := seededEncodings()
	retrained[0].Encoding = []float32{0.9, 0.9, 0.9, 0.9}
	idx := NewHNSWIndex()
	if err := idx.LoadOrBuild(path, retrained); err != nil {
		t.Fatal(err)
	}
	if err := idx.Save(); err != nil {
		t.Fatal(err)
	}

	// Same IDs and count, different vector for EMP001.
	reloaded := NewHNSWIndex()
	if err := reloaded.LoadOrBuild(path, seededEncodings()); err != nil {
		t.Fatal(err)
	}
	if reloaded.Loaded() {
		t.Error("expected graph with outdated vectors to be rebuilt")
	}

	encs, dists, err := reloaded.Search([]float32{0.1, 0.2, 0.3, 0.4}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(encs) == 0 || encs[0].EmployeeID != "EMP001" || dists[0] != 0 {
		t.Errorf("expected EMP001 at distance 0, got %+v %v", encs, dists)
	}
}

func TestEncodingsDigest(t *testing.T) {
	encs := seededEncodings()
	reversed := []StoredEncoding{encs[2], encs[1], encs[0]}
	if encodingsDigest(encs) != encodingsDigest(reversed) {
		t.Error("digest should not depend on input order")
	}

	changed := seededEncodings()
	changed[1].Encoding[3] = 0.81
	if encodingsDigest(encs) == encodingsDigest(changed) {
		t.Error("digest should change with any vector component")
	}
}
