package handlers

import (
	"log"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/database"
)

// AttendanceHandler handles attendance log endpoints
type AttendanceHandler struct {
	store  database.AttendanceReader
	writer database.AttendanceWriter
	now    func() time.Time
}

// NewAttendanceHandler creates a new attendance handler. Check-outs are written to writer.
func NewAttendanceHandler(store database.AttendanceReader, writer database.AttendanceWriter) *AttendanceHandler {
	return &AttendanceHandler{store: store, writer: writer, now: time.Now}
}

// attendanceRecord is the API representation of an attendance record
type attendanceRecord struct {
	ID         string  `json:"id"`
	EmployeeID string  `json:"employee_id"`
	Name       string  `json:"name"`
	Timestamp  string  `json:"timestamp"`
	CameraID   int     `json:"camera_id"`
	Action     string  `json:"action"`
	Confidence float64 `json:"confidence"`
	Distance   float64 `json:"distance"`
}

func toAttendanceRecord(rec database.AttendanceRecord) attendanceRecord {
	return attendanceRecord{
		ID:         rec.ID,
		EmployeeID: rec.EmployeeID,
		Name:       rec.Name,
		Timestamp:  rec.Timestamp.Format(time.RFC3339),
		CameraID:   rec.CameraID,
		Action:     rec.Action,
		Confidence: rec.Confidence,
		Distance:   rec.Distance,
	}
}

// List returns attendance records, newest first.
// Query: employee_id, camera_id, since (RFC 3339), limit.
func (h *AttendanceHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := database.AttendanceFilter{EmployeeID: q.Get("employee_id")}

	cameraID, err := queryInt(r, "camera_id", 0)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid camera_id")
		return
	}
	filter.CameraID = cameraID

	if since := q.Get("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid since, expected RFC 3339")
			return
		}
		filter.Since = t
	}

	limit, err := queryInt(r, "limit", constants.DefaultAttendancePageSize)
	if err != nil || limit < 1 {
		respondError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	filter.Limit = min(limit, constants.MaxAttendancePageSize)

	records, err := h.store.List(r.Context(), filter)
	if err != nil {
		log.Printf("Listing attendance failed: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to list attendance")
		return
	}

	out := make([]attendanceRecord, 0, len(records))
	for _, rec := range records {
		out = append(out, toAttendanceRecord(rec))
	}
	respondJSON(w, http.StatusOK, out)
}

// Summary returns the number of records per employee
func (h *AttendanceHandler) Summary(w http.ResponseWriter, r *http.Request) {
	counts, err := h.store.CountByEmployee(r.Context())
	if err != nil {
		log.Printf("Counting attendance failed: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to count attendance")
		return
	}
	respondJSON(w, http.StatusOK, counts)
}

// CheckoutRequest closes an employee's working day
type CheckoutRequest struct {
	EmployeeID string `json:"employee_id"`
	CameraID   int    `json:"camera_id"`
}

// CheckoutResponse reports the recorded check-out
type CheckoutResponse struct {
	Record    attendanceRecord `json:"record"`
	WorkHours float64          `json:"work_hours"`
}

// Checkout records a check-out for an employee checked in today
func (h *AttendanceHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req CheckoutRequest
	if err := decodeJSON(w, r, constants.MaxRequestBodySize, &req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	req.EmployeeID = strings.TrimSpace(req.EmployeeID)
	if req.EmployeeID == "" {
		respondError(w, http.StatusBadRequest, "employee_id is required")
		return
	}

	now := h.now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	today, err := h.store.List(r.Context(), database.AttendanceFilter{EmployeeID: req.EmployeeID, Since: midnight})
	if err != nil {
		log.Printf("Listing attendance failed: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to list attendance")
		return
	}

	// records are newest first, keep the earliest check-in
	var checkIn *database.AttendanceRecord
	for i := range today {
		if today[i].Action == constants.ActionCheckIn {
			checkIn = &today[i]
		}
	}
	if checkIn == nil {
		respondError(w, http.StatusBadRequest, "no check-in found for today")
		return
	}

	rec := database.AttendanceRecord{
		ID:         uuid.NewString(),
		EmployeeID: checkIn.EmployeeID,
		Name:       checkIn.Name,
		Timestamp:  now,
		CameraID:   req.CameraID,
		Action:     constants.ActionCheckOut,
		Confidence: 1,
	}
	if err := h.writer.Record(r.Context(), rec); err != nil {
		log.Printf("Recording check-out for %s failed: %v", sanitizeForLog(req.EmployeeID), err)
		respondError(w, http.StatusInternalServerError, "failed to record check-out")
		return
	}

	hours := math.Round(now.Sub(checkIn.Timestamp).Hours()*100) / 100
	log.Printf("Check-out recorded for employee: %s", sanitizeForLog(req.EmployeeID))
	respondJSON(w, http.StatusOK, CheckoutResponse{Record: toAttendanceRecord(rec), WorkHours: hours})
}
