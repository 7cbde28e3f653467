package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"ridex/internal/services"
)

// HealthReporter builds health reports on demand
type HealthReporter interface {
	Report(ctx context.Context) (services.HealthReport, error)
}

// HealthHandler handles health-related HTTP requests
type HealthHandler struct {
	reporter HealthReporter
	logger   *slog.Logger
	now      func() time.Time
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(reporter HealthReporter, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		reporter: reporter,
		logger:   logger.With(slog.String("handler", "health")),
		now:      time.Now,
	}
}

// Routes sets up the health routes
func (h *HealthHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.HealthCheck)
	r.Get("/live", h.LivenessCheck)
	r.Get("/ready", h.ReadinessCheck)
	return r
}

// HealthCheck handles GET /api/health. Degraded dependencies still answer
// 200; only a failure to build the report answers 500.
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report, err := h.reporter.Report(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	render.JSON(w, r, report.Response())
}

// LivenessCheck handles GET /api/health/live
func (h *HealthHandler) LivenessCheck(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]string{
		"status":    "alive",
		"timestamp": h.now().UTC().Format(time.RFC3339),
	})
}

// ReadinessCheck handles GET /api/health/ready
func (h *HealthHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	report, err := h.reporter.Report(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if !report.Ready() {
		render.Status(r, http.StatusServiceUnavailable)
	}
	render.JSON(w, r, report.ReadinessResponse())
}

func (h *HealthHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.ErrorContext(r.Context(), "Health check failed", slog.String("error", err.Error()))
	render.Status(r, http.StatusInternalServerError)
	render.JSON(w, r, services.NewHealthErrorResponse(err, h.now()))
}
