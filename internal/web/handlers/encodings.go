package handlers

import (
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/database"
)

// EncodingsHandler handles enrolled face encoding endpoints
type EncodingsHandler struct {
	store database.EncodingWriter
	model string
}

// NewEncodingsHandler creates a new encodings handler
func NewEncodingsHandler(store database.EncodingWriter, model string) *EncodingsHandler {
	return &EncodingsHandler{store: store, model: model}
}

// encodingSummary describes an enrollment without its vector
type encodingSummary struct {
	EmployeeID     string `json:"employee_id"`
	Name           string `json:"name"`
	Dim            int    `json:"dim"`
	Model          string `json:"model,omitempty"`
	LastUpdated    string `json:"last_updated,omitempty"`
	TrainingImages int    `json:"training_images"`
}

func toEncodingSummary(enc database.StoredEncoding) encodingSummary {
	s := encodingSummary{
		EmployeeID:     enc.EmployeeID,
		Name:           enc.Name,
		Dim:            enc.Dim(),
		Model:          enc.Model,
		TrainingImages: enc.TrainingImages,
	}
	if !enc.LastUpdated.IsZero() {
		s.LastUpdated = enc.LastUpdated.Format(config.DateLayout)
	}
	return s
}

// List returns all enrolled employees. ?name= filters by normalized name.
func (h *EncodingsHandler) List(w http.ResponseWriter, r *http.Request) {
	var (
		encs []database.StoredEncoding
		err  error
	)
	if name := r.URL.Query().Get("name"); name != "" {
		encs, err = h.store.FindByName(r.Context(), name)
	} else {
		encs, err = h.store.List(r.Context())
	}
	if err != nil {
		log.Printf("Listing encodings failed: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to list encodings")
		return
	}

	out := make([]encodingSummary, 0, len(encs))
	for _, enc := range encs {
		out = append(out, toEncodingSummary(enc))
	}
	respondJSON(w, http.StatusOK, out)
}

// Get returns one employee's enrollment
func (h *EncodingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	enc, err := h.store.Get(r.Context(), chi.URLParam(r, "employeeID"))
	if err != nil {
		log.Printf("Getting encoding failed: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to get encoding")
		return
	}
	if enc == nil {
		respondError(w, http.StatusNotFound, "encoding not found")
		return
	}
	respondJSON(w, http.StatusOK, toEncodingSummary(*enc))
}

// EnrollRequest enrolls or retrains an employee
type EnrollRequest struct {
	EmployeeID     string    `json:"employee_id"`
	Name           string    `json:"name"`
	Encoding       []float32 `json:"encoding"`
	TrainingImages int       `json:"training_images"`
}

// Enroll stores an encoding, replacing the employee's previous one
func (h *EncodingsHandler) Enroll(w http.ResponseWriter, r *http.Request) {
	var req EnrollRequest
	if err := decodeJSON(w, r, constants.MaxRequestBodySize, &req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	req.EmployeeID = strings.TrimSpace(req.EmployeeID)
	req.Name = strings.TrimSpace(req.Name)
	if req.EmployeeID == "" || req.Name == "" {
		respondError(w, http.StatusBadRequest, "employee_id and name are required")
		return
	}
	if req.TrainingImages < 0 {
		respondError(w, http.StatusBadRequest, "training_images must not be negative")
		return
	}

	enc := database.StoredEncoding{
		EmployeeID:     req.EmployeeID,
		Name:           req.Name,
		Encoding:       req.Encoding,
		Model:          h.model,
		LastUpdated:    time.Now().UTC().Truncate(24 * time.Hour),
		TrainingImages: req.TrainingImages,
	}
	if _, err := h.store.Save(r.Context(), enc); err != nil {
		switch {
		case errors.Is(err, database.ErrEmptyEncoding), errors.Is(err, database.ErrDimensionMismatch):
			respondError(w, http.StatusBadRequest, err.Error())
		default:
			log.Printf("Enrolling %s failed: %v", sanitizeForLog(req.EmployeeID), err)
			respondError(w, http.StatusInternalServerError, "failed to save encoding")
		}
		return
	}

	log.Printf("Enrolled %s (%s)", sanitizeForLog(req.EmployeeID), sanitizeForLog(req.Name))
	respondJSON(w, http.StatusCreated, toEncodingSummary(enc))
}

// Delete removes an employee's enrollment
func (h *EncodingsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	err := h.store.Delete(r.Context(), chi.URLParam(r, "employeeID"))
	switch {
	case errors.Is(err, database.ErrNotFound):
		respondError(w, http.StatusNotFound, "encoding not found")
	case err != nil:
		log.Printf("Deleting encoding failed: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to delete encoding")
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}
