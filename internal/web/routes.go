package web

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/kozaktomas/touch-guard/internal/web/handlers"
	"github.com/kozaktomas/touch-guard/internal/web/middleware"
)

func (s *Server) setupRoutes() {
	trainingHandler := handlers.NewTrainingHandler(s.session, s.jobManager, s.logger)
	inferenceHandler := handlers.NewInferenceHandler(s.session, s.logger)
	examplesHandler := handlers.NewExamplesHandler(s.session)
	statusHandler := handlers.NewStatusHandler(s.session)

	// Health check (no auth required)
	s.router.Get("/api/v1/health", handlers.HealthCheck)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RequireToken(s.config.Web.APIToken))

		// Event streams stay open, so they are kept out of the timeout group.
		r.Get("/training/{jobId}/events", trainingHandler.Events)
		r.Get("/inference/events", inferenceHandler.Events)

		r.Group(func(r chi.Router) {
			r.Use(chiMiddleware.Timeout(time.Minute))

			r.Get("/status", statusHandler.Get)

			// Training (long-running batches)
			r.Get("/training", trainingHandler.List)
			r.Post("/training", trainingHandler.Start)
			r.Get("/training/{jobId}", trainingHandler.Status)
			r.Delete("/training/{jobId}", trainingHandler.Cancel)

			// Inference loop
			r.Post("/inference", inferenceHandler.Start)
			r.Delete("/inference", inferenceHandler.Stop)

			// Examples
			r.Get("/examples", examplesHandler.List)
			r.Delete("/examples", examplesHandler.Reset)
			r.Delete("/examples/{label}", examplesHandler.ClearLabel)
		})
	})

	s.router.Get("/", s.serveIndex)
}

// serveIndex serves a short landing page pointing at the API
func (s *Server) serveIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`<!DOCTYPE html>
<html>
<head>
    <title>touch-guard</title>
    <style>
        body { font-family: system-ui, sans-serif; display: flex; justify-content: center; align-items: center; height: 100vh; margin: 0; background: #1a1a2e; color: #eee; }
        .container { text-align: center; }
        h1 { color: #00d9ff; }
        a { color: #00d9ff; }
        code { background: #2a2a3e; padding: 2px 8px; border-radius: 4px; }
    </style>
</head>
<body>
    <div class="container">
        <h1>touch-guard</h1>
        <p>Train with <code>POST /api/v1/training</code>, then start detection with <code>POST /api/v1/inference</code>.</p>
        <p>Live state: <a href="/api/v1/inference/events">/api/v1/inference/events</a></p>
    </div>
</body>
</html>`))
}
