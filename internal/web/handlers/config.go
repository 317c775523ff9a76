package handlers

import (
	"log"
	"net/http"
	"time"

	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/recognition"
)

// ConfigHandler handles recognition configuration endpoints
type ConfigHandler struct {
	config     *config.Config
	recognizer *recognition.Recognizer
	encodings  database.EncodingReader
	backend    string
}

// NewConfigHandler creates a new config handler
func NewConfigHandler(cfg *config.Config, recognizer *recognition.Recognizer, encodings database.EncodingReader, backend string) *ConfigHandler {
	return &ConfigHandler{
		config:     cfg,
		recognizer: recognizer,
		encodings:  encodings,
		backend:    backend,
	}
}

// ConfigResponse represents the configuration response
type ConfigResponse struct {
	Face    config.FaceConfig `json:"face"`
	Backend string            `json:"backend"`
	Cameras int               `json:"cameras"`
}

// Get returns the active recognition configuration
func (h *ConfigHandler) Get(w http.ResponseWriter, r *http.Request) {
	face := h.config.Face
	face.ConfidenceThreshold = h.recognizer.ConfidenceThreshold()
	face.MatchStrategy = h.recognizer.Matcher().Strategy()

	respondJSON(w, http.StatusOK, ConfigResponse{
		Face:    face,
		Backend: h.backend,
		Cameras: len(h.config.Cameras),
	})
}

// ThresholdRequest represents a confidence threshold update
type ThresholdRequest struct {
	ConfidenceThreshold *float64 `json:"confidence_threshold"`
}

// UpdateThreshold changes the minimum detection confidence at runtime
func (h *ConfigHandler) UpdateThreshold(w http.ResponseWriter, r *http.Request) {
	var req ThresholdRequest
	if err := decodeJSON(w, r, constants.MaxRequestBodySize, &req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if req.ConfidenceThreshold == nil {
		respondError(w, http.StatusBadRequest, "confidence_threshold is required")
		return
	}

	applied := h.recognizer.SetConfidenceThreshold(*req.ConfidenceThreshold)
	log.Printf("Confidence threshold set to %.2f", applied)

	respondJSON(w, http.StatusOK, map[string]float64{"confidence_threshold": applied})
}

// StatsResponse combines the recognizer counters with the enrolled encodings
type StatsResponse struct {
	recognition.Stats
	KnownFaces          int     `json:"known_faces"`
	LastUpdated         string  `json:"last_updated,omitempty"` // newest encoding date
	ConfidenceThreshold float64 `json:"confidence_threshold"`
}

// Stats returns the recognizer counters and enrollment totals
func (h *ConfigHandler) Stats(w http.ResponseWriter, r *http.Request) {
	encs, err := h.encodings.List(r.Context())
	if err != nil {
		log.Printf("Listing encodings failed: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to load stats")
		return
	}

	resp := StatsResponse{
		Stats:               h.recognizer.Stats(),
		KnownFaces:          len(encs),
		ConfidenceThreshold: h.recognizer.ConfidenceThreshold(),
	}
	var newest time.Time
	for _, e := range encs {
		if e.LastUpdated.After(newest) {
			newest = e.LastUpdated
		}
	}
	if !newest.IsZero() {
		resp.LastUpdated = newest.Format(config.DateLayout)
	}
	respondJSON(w, http.StatusOK, resp)
}
