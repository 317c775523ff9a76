package handlers

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/database/memory"
	"github.com/kozaktomas/face-attendance/internal/recognition"
)

type testEnv struct {
	config     *config.Config
	encodings  *memory.EncodingStore
	attendance *memory.AttendanceStore
	recognizer *recognition.Recognizer
}

// newTestEnv creates the default setup backed by seeded memory stores
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	cfg, err := config.Defaults()
	if err != nil {
		t.Fatalf("load defaults: %v", err)
	}

	encodings := memory.NewEncodingStore()
	if _, err := database.Seed(context.Background(), encodings, cfg.Encodings, cfg.Face.ModelType); err != nil {
		t.Fatalf("seed: %v", err)
	}
	attendance := memory.NewAttendanceStore()

	r := recognition.NewRecognizer(recognition.NewSimulatedDetector(), encodings, attendance, cfg.Face)
	r.Clock = func() time.Time { return time.Date(2024, 12, 2, 8, 30, 0, 0, time.UTC) }

	return &testEnv{config: cfg, encodings: encodings, attendance: attendance, recognizer: r}
}

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}
