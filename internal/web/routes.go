package web

import (
	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/face-attendance/internal/web/handlers"
)

func (s *Server) setupRoutes() {
	configHandler := handlers.NewConfigHandler(s.config, s.deps.Recognizer, s.deps.Encodings, s.deps.Backend)
	camerasHandler := handlers.NewCamerasHandler(s.config, s.deps.Recognizer)
	encodingsHandler := handlers.NewEncodingsHandler(s.deps.Encodings, s.config.Face.ModelType)
	attendanceHandler := handlers.NewAttendanceHandler(s.deps.Attendance, s.deps.Recorder)

	s.router.Get("/api/v1/health", handlers.HealthCheck)

	s.router.Route("/api/v1", func(r chi.Router) {
		// Config
		r.Get("/config", configHandler.Get)
		r.Put("/config/threshold", configHandler.UpdateThreshold)
		r.Get("/stats", configHandler.Stats)

		// Cameras
		r.Get("/cameras", camerasHandler.List)
		r.Get("/cameras/{id}", camerasHandler.Get)
		r.Post("/cameras/{id}/detect", camerasHandler.Detect)

		// Encodings (enrollment)
		r.Get("/encodings", encodingsHandler.List)
		r.Post("/encodings", encodingsHandler.Enroll)
		r.Get("/encodings/{employeeID}", encodingsHandler.Get)
		r.Delete("/encodings/{employeeID}", encodingsHandler.Delete)

		// Attendance
		r.Get("/attendance", attendanceHandler.List)
		r.Get("/attendance/summary", attendanceHandler.Summary)
		r.Post("/attendance/checkout", attendanceHandler.Checkout)
	})
}
