package recognition

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"math"
	"testing"
	"time"

	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/database/memory"
	"github.com/kozaktomas/face-attendance/internal/facematch"
)

var fixedTime = time.Date(2024, 12, 2, 8, 30, 0, 0, time.UTC)

func loadDefaults(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Defaults()
	if err != nil {
		t.Fatalf("load defaults: %v", err)
	}
	return cfg
}

func seededStore(t *testing.T, cfg *config.Config) *memory.EncodingStore {
	t.Helper()
	store := memory.NewEncodingStore()
	if _, err := database.Seed(context.Background(), store, cfg.Encodings, cfg.Face.ModelType); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return store
}

func newTestRecognizer(t *testing.T, face config.FaceConfig) (*Recognizer, *memory.AttendanceStore, *config.Config) {
	t.Helper()
	cfg := loadDefaults(t)
	attendance := memory.NewAttendanceStore()
	r := NewRecognizer(NewSimulatedDetector(), seededStore(t, cfg), attendance, face)
	r.Clock = func() time.Time { return fixedTime }
	return r, attendance, cfg
}

func TestProcessFaceDetection_AlwaysRecognizesFirstEmployee(t *testing.T) {
	strategies := []string{config.StrategyEuclidean, config.StrategyCosine, config.StrategyExact}

	for _, strategy := range strategies {
		t.Run(strategy, func(t *testing.T) {
			cfg := loadDefaults(t)
			face := cfg.Face
			face.MatchStrategy = strategy
			r, _, _ := newTestRecognizer(t, face)

			for _, cameraID := range []int{1, 2, 42, -7} {
				camera := config.CameraConfig{ID: cameraID, ProcessingFPS: 1}
				rec, err := r.ProcessFaceDetection(context.Background(), camera, nil)
				if err != nil {
					t.Fatalf("camera %d: unexpected error: %v", cameraID, err)
				}
				if rec == nil {
					t.Fatalf("camera %d: expected a record", cameraID)
				}
				if rec.EmployeeID != "EMP001" {
					t.Errorf("camera %d: expected EMP001, got %s", cameraID, rec.EmployeeID)
				}
				if rec.Confidence != 0.95 {
					t.Errorf("camera %d: expected confidence 0.95, got %v", cameraID, rec.Confidence)
				}
				if rec.CameraID != cameraID {
					t.Errorf("expected camera %d, got %d", cameraID, rec.CameraID)
				}
			}

			if r.Stats().Unknown != 0 {
				t.Errorf("unknown branch taken %d times", r.Stats().Unknown)
			}
		})
	}
}

func TestProcessFaceDetection_RecordFields(t *testing.T) {
	cfg := loadDefaults(t)
	r, attendance, _ := newTestRecognizer(t, cfg.Face)
	r.NewID = func() string { return "rec-1" }

	camera, _ := cfg.Camera(1)
	rec, err := r.ProcessFaceDetection(context.Background(), camera, []byte("frame"))
	if err != nil {
		t.Fatal(err)
	}

	if rec.ID != "rec-1" {
		t.Errorf("expected ID rec-1, got %s", rec.ID)
	}
	if rec.Name != "John Smith" {
		t.Errorf("expected John Smith, got %s", rec.Name)
	}
	if rec.Action != "check_in" {
		t.Errorf("expected check_in, got %s", rec.Action)
	}
	if !rec.Timestamp.Equal(fixedTime) {
		t.Errorf("expected timestamp %v, got %v", fixedTime, rec.Timestamp)
	}
	if rec.Distance != 0 {
		t.Errorf("expected distance 0, got %v", rec.Distance)
	}
	if attendance.Len() != 1 {
		t.Errorf("expected 1 stored record, got %d", attendance.Len())
	}
}

func TestProcessFaceDetection_TwoCamerasTwoRecords(t *testing.T) {
	cfg := loadDefaults(t)
	r, attendance, _ := newTestRecognizer(t, cfg.Face)

	var records []string
	for _, camera := range cfg.EnabledCameras() {
		rec, err := r.ProcessFaceDetection(context.Background(), camera, nil)
		if err != nil {
			t.Fatal(err)
		}
		if rec != nil {
			records = append(records, rec.EmployeeID)
		}
	}

	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	for _, id := range records {
		if id != "EMP001" {
			t.Errorf("expected EMP001, got %s", id)
		}
	}
	if attendance.Len() != 2 {
		t.Errorf("expected 2 stored records, got %d", attendance.Len())
	}
}

func TestProcessFaceDetection_Filters(t *testing.T) {
	tests := []struct {
		name      string
		face      DetectedFace
		area      facematch.Region
		threshold float64
		wantStat  func(Stats) int
	}{
		{
			name:      "low confidence",
			face:      DetectedFace{Location: facematch.BBox{100, 200, 150, 250}, Confidence: 0.5, Encoding: []float32{0.1, 0.2, 0.3, 0.4}},
			threshold: 0.8,
			wantStat:  func(s Stats) int { return s.LowQuality },
		},
		{
			name:      "outside detection area",
			face:      DetectedFace{Location: facematch.BBox{0, 0, 20, 20}, Confidence: 0.95, Encoding: []float32{0.1, 0.2, 0.3, 0.4}},
			area:      facematch.Region{X: 100, Y: 100, Width: 400, Height: 300},
			threshold: 0.8,
			wantStat:  func(s Stats) int { return s.OutsideArea },
		},
		{
			name:      "unknown person",
			face:      DetectedFace{Location: facematch.BBox{100, 200, 150, 250}, Confidence: 0.95, Encoding: []float32{2, 2, 2, 2}},
			threshold: 0.8,
			wantStat:  func(s Stats) int { return s.Unknown },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := loadDefaults(t)
			face := cfg.Face
			face.ConfidenceThreshold = tt.threshold
			attendance := memory.NewAttendanceStore()
			r := NewRecognizer(&SimulatedDetector{Face: tt.face}, seededStore(t, cfg), attendance, face)

			rec, err := r.ProcessFaceDetection(context.Background(), config.CameraConfig{ID: 1, DetectionArea: tt.area}, nil)
			if err != nil {
				t.Fatal(err)
			}
			if rec != nil {
				t.Errorf("expected no record, got %+v", rec)
			}
			if got := tt.wantStat(r.Stats()); got != 1 {
				t.Errorf("expected counter 1, got %d", got)
			}
			if attendance.Len() != 0 {
				t.Errorf("expected no stored records, got %d", attendance.Len())
			}
		})
	}
}

type failingDetector struct{ err error }

func (d failingDetector) Detect(ctx context.Context, cameraID int, frame []byte) ([]DetectedFace, error) {
	return nil, d.err
}

func TestProcessFaceDetection_Errors(t *testing.T) {
	cfg := loadDefaults(t)
	boom := errors.New("boom")

	t.Run("detector", func(t *testing.T) {
		r := NewRecognizer(failingDetector{err: boom}, seededStore(t, cfg), nil, cfg.Face)
		if _, err := r.ProcessFaceDetection(context.Background(), config.CameraConfig{ID: 1}, nil); !errors.Is(err, boom) {
			t.Errorf("expected wrapped detector error, got %v", err)
		}
	})

	t.Run("store", func(t *testing.T) {
		store := seededStore(t, cfg)
		store.FindNearestError = boom
		r := NewRecognizer(NewSimulatedDetector(), store, nil, cfg.Face)
		if _, err := r.ProcessFaceDetection(context.Background(), config.CameraConfig{ID: 1}, nil); !errors.Is(err, boom) {
			t.Errorf("expected wrapped store error, got %v", err)
		}
	})

	t.Run("attendance writer", func(t *testing.T) {
		attendance := memory.NewAttendanceStore()
		attendance.RecordError = boom
		r := NewRecognizer(NewSimulatedDetector(), seededStore(t, cfg), attendance, cfg.Face)
		rec, err := r.ProcessFaceDetection(context.Background(), config.CameraConfig{ID: 1}, nil)
		if !errors.Is(err, boom) {
			t.Errorf("expected wrapped writer error, got %v", err)
		}
		if rec == nil || rec.EmployeeID != "EMP001" {
			t.Errorf("expected the unsaved record to be returned, got %+v", rec)
		}
		if r.Stats().RecordErrors != 1 {
			t.Errorf("expected 1 record error, got %d", r.Stats().RecordErrors)
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		r := NewRecognizer(NewSimulatedDetector(), seededStore(t, cfg), nil, cfg.Face)
		if _, err := r.ProcessFaceDetection(ctx, config.CameraConfig{ID: 1}, nil); !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})
}

func TestSetConfidenceThreshold(t *testing.T) {
	cfg := loadDefaults(t)
	r := NewRecognizer(NewSimulatedDetector(), memory.NewEncodingStore(), nil, cfg.Face)

	tests := []struct {
		in   float64
		want float64
	}{
		{0.5, 0.5},
		{0.01, 0.1},
		{-3, 0.1},
		{1.5, 1.0},
		{1.0, 1.0},
		{math.NaN(), 0.1},
	}
	for _, tt := range tests {
		if got := r.SetConfidenceThreshold(tt.in); got != tt.want {
			t.Errorf("SetConfidenceThreshold(%v) = %v, want %v", tt.in, got, tt.want)
		}
		if r.ConfidenceThreshold() != tt.want {
			t.Errorf("ConfidenceThreshold() = %v, want %v", r.ConfidenceThreshold(), tt.want)
		}
	}
}

func pngFrame(t *testing.T, shade uint8) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 64, 48))
	for x := range 64 {
		for y := range 48 {
			img.SetGray(x, y, color.Gray{Y: shade + uint8(x)})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestProcessFaceDetection_SkipsUnchangedFrames(t *testing.T) {
	cfg := loadDefaults(t)
	r, attendance, _ := newTestRecognizer(t, cfg.Face)
	frame := pngFrame(t, 10)

	steps := []struct {
		camera     int
		wantRecord bool
	}{
		{1, true},
		{1, false}, // same picture again
		{2, true},  // other camera keeps its own history
		{1, false},
	}
	for i, step := range steps {
		rec, err := r.ProcessFaceDetection(context.Background(), config.CameraConfig{ID: step.camera}, frame)
		if err != nil {
			t.Fatalf("step %d: unexpected error: %v", i, err)
		}
		if (rec != nil) != step.wantRecord {
			t.Errorf("step %d: record = %v, want record %v", i, rec, step.wantRecord)
		}
	}

	stats := r.Stats()
	if stats.Unchanged != 2 {
		t.Errorf("expected 2 unchanged frames, got %d", stats.Unchanged)
	}
	if stats.Frames != 2 {
		t.Errorf("expected 2 processed frames, got %d", stats.Frames)
	}
	if attendance.Len() != 2 {
		t.Errorf("expected 2 records, got %d", attendance.Len())
	}
}

func TestProcessFaceDetection_GateDisabled(t *testing.T) {
	cfg := loadDefaults(t)
	face := cfg.Face
	face.FrameChangeThreshold = -1
	r, _, _ := newTestRecognizer(t, face)
	frame := pngFrame(t, 10)

	for i := range 3 {
		rec, err := r.ProcessFaceDetection(context.Background(), config.CameraConfig{ID: 1}, frame)
		if err != nil || rec == nil {
			t.Fatalf("frame %d: expected a record, got %v, %v", i, rec, err)
		}
	}
	if r.Stats().Unchanged != 0 {
		t.Errorf("disabled gate skipped %d frames", r.Stats().Unchanged)
	}
}

// flakyDetector fails the first n calls, n being failures, then reports the demo face.
type flakyDetector struct {
	failures int
	calls    int
}

func (d *flakyDetector) Detect(ctx context.Context, cameraID int, frame []byte) ([]DetectedFace, error) {
	d.calls++
	if d.calls <= d.failures {
		return nil, errors.New("transient")
	}
	return NewSimulatedDetector().Detect(ctx, cameraID, frame)
}

func TestProcessFaceDetection_RetriesFailedFrame(t *testing.T) {
	cfg := loadDefaults(t)
	detector := &flakyDetector{failures: 1}
	r := NewRecognizer(detector, seededStore(t, cfg), nil, cfg.Face)
	camera := config.CameraConfig{ID: 1}
	frame := pngFrame(t, 10)

	if _, err := r.ProcessFaceDetection(context.Background(), camera, frame); err == nil {
		t.Fatal("expected the first detection to fail")
	}

	rec, err := r.ProcessFaceDetection(context.Background(), camera, frame)
	if err != nil {
		t.Fatalf("retry: unexpected error: %v", err)
	}
	if rec == nil || rec.EmployeeID != "EMP001" {
		t.Errorf("expected the retried frame to be recognized, got %+v", rec)
	}
	if detector.calls != 2 {
		t.Errorf("expected 2 detector calls, got %d", detector.calls)
	}
	if r.Stats().Unchanged != 0 {
		t.Errorf("retry counted as unchanged frame")
	}

	// Once processed, the same frame is skipped again.
	if rec, _ := r.ProcessFaceDetection(context.Background(), camera, frame); rec != nil {
		t.Errorf("expected unchanged frame to be skipped, got %+v", rec)
	}
}

func TestSetConfidenceThreshold_BoundsCosineMatches(t *testing.T) {
	cfg := loadDefaults(t)
	face := cfg.Face
	face.MatchStrategy = config.StrategyCosine

	// cosine distance 0.1019 from the detected face
	store := memory.NewEncodingStore()
	if _, err := store.Save(context.Background(), database.StoredEncoding{
		EmployeeID: "EMP007", Name: "Near Miss", Encoding: []float32{0.4, 0.2, 0.3, 0.4},
	}); err != nil {
		t.Fatal(err)
	}
	r := NewRecognizer(NewSimulatedDetector(), store, nil, face)
	camera := config.CameraConfig{ID: 1}

	rec, err := r.ProcessFaceDetection(context.Background(), camera, nil)
	if err != nil || rec == nil {
		t.Fatalf("expected a match under bound 0.2, got %v, %v", rec, err)
	}

	if applied := r.SetConfidenceThreshold(0.95); applied != 0.95 {
		t.Fatalf("expected 0.95 applied, got %v", applied)
	}
	if got := r.Matcher().Threshold(); got != 0.95 {
		t.Errorf("matcher threshold = %v, want 0.95", got)
	}
	rec, err = r.ProcessFaceDetection(context.Background(), camera, nil)
	if err != nil {
		t.Fatal(err)
	}
	if rec != nil {
		t.Errorf("expected rejection under bound 0.05, got %+v", rec)
	}
	if r.Stats().Unknown != 1 {
		t.Errorf("expected 1 unknown face, got %d", r.Stats().Unknown)
	}
}
