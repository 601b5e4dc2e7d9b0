package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	"licensed/internal/infrastructure"
	"licensed/internal/store"
	"licensed/pkg/contracts/domain"
)

// HealthHandler handles health-related HTTP requests
type HealthHandler struct {
	store  *store.Store
	logger *slog.Logger
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(st *store.Store, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		store:  st,
		logger: logger.With(slog.String("handler", "health")),
	}
}

// HealthCheck handles GET /healthz. Degrades to 503 when the database
// does not answer a ping.
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	status := "ok"
	if err := h.store.Ping(ctx); err != nil {
		h.logger.ErrorContext(ctx, "database ping failed",
			slog.String("error", err.Error()))
		status = "degraded"
		render.Status(r, http.StatusServiceUnavailable)
	}

	render.JSON(w, r, domain.HealthResponse{
		Status:  status,
		Service: infrastructure.ServiceName,
		Version: infrastructure.ServiceVersion,
	})
}
