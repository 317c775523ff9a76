// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

// Attendance actions
const (
	// ActionCheckIn is recorded whenever a camera recognizes an enrolled employee
	ActionCheckIn = "check_in"

	// ActionCheckOut is recorded by the explicit check-out flow
	ActionCheckOut = "check_out"
)

// Recognition constants
const (
	// MinConfidenceThreshold and MaxConfidenceThreshold bound runtime threshold updates
	MinConfidenceThreshold = 0.1
	MaxConfidenceThreshold = 1.0

	// NearestCandidates is the number of index candidates fetched per detected face
	NearestCandidates = 5
)

// HNSW index parameters for face encodings
const (
	// HNSWMaxNeighbors (M) is the maximum number of neighbors per node.
	HNSWMaxNeighbors = 16

	// HNSWSearchMultiplier is the factor to request more candidates from HNSW
	// to ensure we have enough after distance filtering.
	HNSWSearchMultiplier = 3
)
