package http

import (
	"net/http"

	apierrors "ridex/internal/errors"
)

// MetricsHandler serves the Prometheus exposition
type MetricsHandler struct {
	exposition http.Handler
	errHandler *apierrors.ErrorHandler
}

// NewMetricsHandler wraps the exposition handler. A nil handler means
// metrics are disabled.
func NewMetricsHandler(exposition http.Handler, errHandler *apierrors.ErrorHandler) *MetricsHandler {
	return &MetricsHandler{exposition: exposition, errHandler: errHandler}
}

// Enabled reports whether an exposition handler is configured
func (h *MetricsHandler) Enabled() bool {
	return h.exposition != nil
}

// ServeHTTP implements http.Handler
func (h *MetricsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.exposition == nil {
		h.errHandler.NotFound(w, r)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	h.exposition.ServeHTTP(w, r)
}
