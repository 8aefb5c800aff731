package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"tablelens/internal/middleware"
)

// RouterConfig carries the middleware knobs the router needs.
type RouterConfig struct {
	CORSAllowedOrigins []string
	RateLimitRPS       float64
	RateLimitBurst     int
}

// NewRouter wires the chi router: logging, panic recovery, request IDs,
// CORS, and per-client rate limiting around the API routes.
func NewRouter(h *Handler, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
	}))
	r.Use(middleware.RateLimiter(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		Burst:             cfg.RateLimitBurst,
	}))

	r.Get("/healthz", h.Healthz)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/analysis", func(r chi.Router) {
			r.Post("/table", h.AnalyzeTable)
			r.Post("/batch", h.AnalyzeBatch)
			r.Get("/batch/{jobID}/status", func(w http.ResponseWriter, r *http.Request) {
				h.JobStatus(w, r, chi.URLParam(r, "jobID"))
			})
			r.Get("/batch/{jobID}/results", func(w http.ResponseWriter, r *http.Request) {
				h.JobResults(w, r, chi.URLParam(r, "jobID"))
			})
			r.Post("/custom-prompt", h.CustomPrompt)
			r.Get("/estimate-cost", h.EstimateCost)
			r.Get("/categories", h.Categories)
			r.Get("/error-summary", h.ErrorSummary)
			r.Get("/error-recommendations", h.ErrorRecommendations)
		})

		r.Route("/workflow", func(r chi.Router) {
			r.Post("/start-complete-analysis", h.StartWorkflow)
			r.Get("/status/{workflowID}", func(w http.ResponseWriter, r *http.Request) {
				h.WorkflowStatus(w, r, chi.URLParam(r, "workflowID"))
			})
			r.Get("/results/{workflowID}", func(w http.ResponseWriter, r *http.Request) {
				h.WorkflowResults(w, r, chi.URLParam(r, "workflowID"))
			})
			r.Delete("/{workflowID}", func(w http.ResponseWriter, r *http.Request) {
				h.CancelWorkflow(w, r, chi.URLParam(r, "workflowID"))
			})
			r.Post("/estimate-workflow-cost", h.EstimateWorkflow)
			r.Get("/active-workflows", h.ActiveWorkflows)
		})
	})

	return r
}
