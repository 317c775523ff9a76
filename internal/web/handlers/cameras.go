package handlers

import (
	"encoding/base64"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/recognition"
)

// CamerasHandler handles camera endpoints
type CamerasHandler struct {
	config     *config.Config
	recognizer *recognition.Recognizer
}

// NewCamerasHandler creates a new cameras handler
func NewCamerasHandler(cfg *config.Config, recognizer *recognition.Recognizer) *CamerasHandler {
	return &CamerasHandler{
		config:     cfg,
		recognizer: recognizer,
	}
}

// List returns all configured cameras
func (h *CamerasHandler) List(w http.ResponseWriter, r *http.Request) {
	cameras := h.config.Cameras
	if cameras == nil {
		cameras = []config.CameraConfig{}
	}
	respondJSON(w, http.StatusOK, cameras)
}

// Get returns a single camera
func (h *CamerasHandler) Get(w http.ResponseWriter, r *http.Request) {
	camera, ok := h.camera(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, camera)
}

// DetectRequest carries an optional base64 frame
type DetectRequest struct {
	Frame string `json:"frame"`
}

// DetectResponse reports the outcome of one processed frame
type DetectResponse struct {
	Recognized bool              `json:"recognized"`
	Record     *attendanceRecord `json:"record,omitempty"`
}

// Detect processes one frame from a camera
func (h *CamerasHandler) Detect(w http.ResponseWriter, r *http.Request) {
	camera, ok := h.camera(w, r)
	if !ok {
		return
	}
	if !camera.FaceRecognitionEnabled {
		respondError(w, http.StatusConflict, "face recognition is disabled for this camera")
		return
	}

	var req DetectRequest
	if err := decodeJSON(w, r, constants.MaxRequestBodySize, &req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	frame, err := base64.StdEncoding.DecodeString(req.Frame)
	if err != nil {
		respondError(w, http.StatusBadRequest, "frame must be base64 encoded")
		return
	}

	rec, err := h.recognizer.ProcessFaceDetection(r.Context(), camera, frame)
	if err != nil {
		log.Printf("Detection on camera %d failed: %v", camera.ID, err)
		respondError(w, http.StatusInternalServerError, "face detection failed")
		return
	}
	if rec == nil {
		respondJSON(w, http.StatusOK, DetectResponse{Recognized: false})
		return
	}

	out := toAttendanceRecord(*rec)
	respondJSON(w, http.StatusOK, DetectResponse{Recognized: true, Record: &out})
}

func (h *CamerasHandler) camera(w http.ResponseWriter, r *http.Request) (config.CameraConfig, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid camera id")
		return config.CameraConfig{}, false
	}
	camera, ok := h.config.Camera(id)
	if !ok {
		respondError(w, http.StatusNotFound, "camera not found")
		return config.CameraConfig{}, false
	}
	return camera, true
}
