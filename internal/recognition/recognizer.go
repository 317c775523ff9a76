package recognition

import (
	"context"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/frames"
)

// Stats counts the outcome of processed frames.
type Stats struct {
	Frames       int `json:"frames"`
	Unchanged    int `json:"unchanged"`
	Faces        int `json:"faces"`
	Recognized   int `json:"recognized"`
	Unknown      int `json:"unknown"`
	LowQuality   int `json:"low_quality"`
	OutsideArea  int `json:"outside_area"`
	RecordErrors int `json:"record_errors"`
}

// Recognizer runs detection and matching for camera frames.
type Recognizer struct {
	detector Detector
	matcher  *Matcher
	writer   database.AttendanceWriter
	gate     *frames.Gate

	// Clock returns the time stamped on new records.
	Clock func() time.Time
	// NewID returns the ID of new records.
	NewID func() string

	mu                   sync.RWMutex
	threshold            float64
	enforceDetectionArea bool
	stats                Stats
}

// NewRecognizer wires a detector and an encoding store. writer may be nil.
func NewRecognizer(detector Detector, store database.EncodingReader, writer database.AttendanceWriter, cfg config.FaceConfig) *Recognizer {
	return &Recognizer{
		detector:             detector,
		matcher:              NewMatcher(store, cfg),
		writer:               writer,
		gate:                 frames.NewGate(cfg.FrameChangeThreshold),
		Clock:                time.Now,
		NewID:                uuid.NewString,
		threshold:            cfg.ConfidenceThreshold,
		enforceDetectionArea: cfg.EnforceDetectionArea,
	}
}

// Matcher returns the matcher used for detected faces.
func (r *Recognizer) Matcher() *Matcher {
	return r.matcher
}

// ConfidenceThreshold returns the minimum detection confidence.
func (r *Recognizer) ConfidenceThreshold() float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.threshold
}

// SetConfidenceThreshold updates the minimum detection confidence and the matcher's
// cosine bound, clamped to the supported range. Returns the value applied.
func (r *Recognizer) SetConfidenceThreshold(threshold float64) float64 {
	threshold = ClampConfidenceThreshold(threshold)
	r.mu.Lock()
	r.threshold = threshold
	r.mu.Unlock()
	r.matcher.SetThreshold(threshold)
	return threshold
}

// ClampConfidenceThreshold limits a threshold to the supported range. NaN maps to the minimum.
func ClampConfidenceThreshold(threshold float64) float64 {
	if math.IsNaN(threshold) {
		return constants.MinConfidenceThreshold
	}
	return max(constants.MinConfidenceThreshold, min(constants.MaxConfidenceThreshold, threshold))
}

// Stats returns a snapshot of the counters.
func (r *Recognizer) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stats
}

func (r *Recognizer) count(fn func(s *Stats)) {
	r.mu.Lock()
	fn(&r.stats)
	r.mu.Unlock()
}

// ProcessFaceDetection detects faces in frame and returns an attendance record for the
// first recognized one. A frame without recognized faces yields nil and no error.
// Image frames that match the camera's previous successfully processed frame are skipped.
func (r *Recognizer) ProcessFaceDetection(ctx context.Context, camera config.CameraConfig, frame []byte) (*database.AttendanceRecord, error) {
	if !r.gate.Changed(camera.ID, frame) {
		r.count(func(s *Stats) { s.Unchanged++ })
		return nil, nil
	}

	rec, err := r.processFrame(ctx, camera, frame)
	if err != nil {
		// a failed frame must not suppress its retry
		r.gate.Reset(camera.ID)
	}
	return rec, err
}

func (r *Recognizer) processFrame(ctx context.Context, camera config.CameraConfig, frame []byte) (*database.AttendanceRecord, error) {
	faces, err := r.detector.Detect(ctx, camera.ID, frame)
	if err != nil {
		return nil, fmt.Errorf("detect faces on camera %d: %w", camera.ID, err)
	}

	threshold := r.ConfidenceThreshold()
	r.count(func(s *Stats) {
		s.Frames++
		s.Faces += len(faces)
	})

	for _, face := range faces {
		if face.Confidence < threshold {
			r.count(func(s *Stats) { s.LowQuality++ })
			continue
		}
		if r.enforceDetectionArea && !camera.DetectionArea.ContainsFace(face.Location) {
			r.count(func(s *Stats) { s.OutsideArea++ })
			continue
		}

		match, err := r.matcher.Match(ctx, face.Encoding)
		if err != nil {
			return nil, fmt.Errorf("match face on camera %d: %w", camera.ID, err)
		}
		if match == nil {
			r.count(func(s *Stats) { s.Unknown++ })
			log.Printf("Unknown person detected on camera %d", camera.ID)
			continue
		}

		rec := database.AttendanceRecord{
			ID:         r.NewID(),
			EmployeeID: match.Encoding.EmployeeID,
			Name:       match.Encoding.Name,
			Timestamp:  r.Clock(),
			CameraID:   camera.ID,
			Action:     constants.ActionCheckIn,
			Confidence: face.Confidence,
			Distance:   match.Distance,
		}
		r.count(func(s *Stats) { s.Recognized++ })

		if r.writer != nil {
			if err := r.writer.Record(ctx, rec); err != nil {
				r.count(func(s *Stats) { s.RecordErrors++ })
				return &rec, fmt.Errorf("record attendance: %w", err)
			}
		}
		return &rec, nil
	}

	return nil, nil
}
