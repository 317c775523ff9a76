// Package recognition turns camera frames into attendance records.
package recognition

import (
	"context"

	"github.com/kozaktomas/face-attendance/internal/facematch"
)

// DetectedFace is one face found in a frame.
type DetectedFace struct {
	Location   facematch.BBox `json:"location"`
	Confidence float64        `json:"confidence"`
	Encoding   []float32      `json:"encoding"`
}

// Detector finds faces in a frame.
type Detector interface {
	Detect(ctx context.Context, cameraID int, frame []byte) ([]DetectedFace, error)
}

// SimulatedDetector ignores the frame and always reports the same face.
type SimulatedDetector struct {
	Face DetectedFace
}

// NewSimulatedDetector returns a detector producing the demo face of John Smith.
func NewSimulatedDetector() *SimulatedDetector {
	return &SimulatedDetector{
		Face: DetectedFace{
			Location:   facematch.BBox{100, 200, 150, 250},
			Confidence: 0.95,
			Encoding:   []float32{0.1, 0.2, 0.3, 0.4},
		},
	}
}

// Detect returns a copy of the configured face.
func (d *SimulatedDetector) Detect(ctx context.Context, cameraID int, frame []byte) ([]DetectedFace, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	face := d.Face
	face.Encoding = append([]float32(nil), d.Face.Encoding...)
	return []DetectedFace{face}, nil
}
