package database

import (
	"time"
)

// StoredEncoding is an enrolled face encoding of one employee.
type StoredEncoding struct {
	ID             int64
	EmployeeID     string
	Name           string
	Encoding       []float32
	Model          string
	LastUpdated    time.Time
	TrainingImages int
	CreatedAt      time.Time
}

// Dim returns the encoding dimension.
func (e StoredEncoding) Dim() int {
	return len(e.Encoding)
}

// AttendanceRecord is one check-in event produced by a camera.
type AttendanceRecord struct {
	ID         string    `json:"id"`
	EmployeeID string    `json:"employee_id"`
	Name       string    `json:"name"`
	Timestamp  time.Time `json:"timestamp"`
	CameraID   int       `json:"camera_id"`
	Action     string    `json:"action"`
	Confidence float64   `json:"confidence"`
	Distance   float64   `json:"distance"`
}

// AttendanceFilter narrows attendance listings. Zero values match everything.
type AttendanceFilter struct {
	EmployeeID string
	CameraID   int
	Since      time.Time
	Limit      int
}

// Matches reports whether rec passes the filter (Limit is ignored).
func (f AttendanceFilter) Matches(rec AttendanceRecord) bool {
	if f.EmployeeID != "" && rec.EmployeeID != f.EmployeeID {
		return false
	}
	if f.CameraID != 0 && rec.CameraID != f.CameraID {
		return false
	}
	if !f.Since.IsZero() && rec.Timestamp.Before(f.Since) {
		return false
	}
	return true
}
