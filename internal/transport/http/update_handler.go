package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	apierrors "licensed/internal/errors"
	"licensed/internal/infrastructure"
	"licensed/internal/license"
	"licensed/internal/middleware"
	"licensed/pkg/contracts/domain"
)

// UpdateHandler handles client update-check requests
type UpdateHandler struct {
	service *license.Service
	metrics *infrastructure.BusinessMetrics
	logger  *slog.Logger
}

// NewUpdateHandler creates a new update handler
func NewUpdateHandler(service *license.Service, metrics *infrastructure.BusinessMetrics, logger *slog.Logger) *UpdateHandler {
	return &UpdateHandler{
		service: service,
		metrics: metrics,
		logger:  logger.With(slog.String("handler", "updates")),
	}
}

// Routes returns a chi router for update endpoints
func (h *UpdateHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/check", h.Check)
	return r
}

// Check handles POST /api/updates/check
func (h *UpdateHandler) Check(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reqID := middleware.GetRequestID(ctx)
	tracer := otel.Tracer("update-handler")

	ctx, span := tracer.Start(ctx, "update_handler.check",
		trace.WithAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.route", "/api/updates/check"),
			attribute.String("request_id", reqID),
		),
	)
	defer span.End()

	data := &domain.UpdateCheckRequest{}
	if err := render.Decode(r, data); err != nil {
		span.RecordError(err)
		h.logger.WarnContext(ctx, "failed to decode update check request",
			slog.String("error", err.Error()))
		h.badRequest(w, r.WithContext(ctx), err.Error())
		return
	}
	if err := validate.Struct(data); err != nil {
		span.RecordError(err)
		h.logger.WarnContext(ctx, "update check validation failed",
			slog.String("error", err.Error()))
		h.badRequest(w, r.WithContext(ctx), err.Error())
		return
	}

	if h.metrics != nil {
		h.metrics.UpdateChecksTotal.Add(ctx, 1)
	}

	result, err := h.service.CheckUpdate(ctx, data.LicenseKey, data.DeviceID, data.CurrentVersion)
	if err != nil {
		span.RecordError(err)
		span.SetAttributes(attribute.String("error.code", license.CodeForError(err)))

		if h.metrics != nil && license.CodeForError(err) == license.CodeInternalError {
			h.metrics.SystemErrors.Add(ctx, 1)
		}

		h.logger.WarnContext(ctx, "update check failed",
			slog.String("error", err.Error()),
			slog.String("error_code", license.CodeForError(err)),
			slog.String("trace_id", infrastructure.TraceIDFromContext(ctx)))

		problem := apierrors.MapLicenseError(err, r.URL.Path, infrastructure.TraceIDFromContext(ctx))
		render.Render(w, r, problem)
		return
	}

	span.SetAttributes(
		attribute.Bool("update.has_update", result.HasUpdate),
		attribute.Bool("update.mandatory", result.Mandatory),
		attribute.String("update.latest_version", result.LatestVersion),
	)

	h.logger.InfoContext(ctx, "update check handled",
		slog.String("request_id", reqID),
		slog.String("current_version", data.CurrentVersion),
		slog.String("latest_version", result.LatestVersion),
		slog.Bool("has_update", result.HasUpdate),
		slog.Bool("mandatory", result.Mandatory))

	render.JSON(w, r, domain.UpdateCheckResponse{
		Status:        "ok",
		HasUpdate:     result.HasUpdate,
		Mandatory:     result.Mandatory,
		LatestVersion: result.LatestVersion,
		DownloadURL:   result.DownloadURL,
		License:       signedLicense(result.License),
	})
}

func (h *UpdateHandler) badRequest(w http.ResponseWriter, r *http.Request, detail string) {
	ctx := r.Context()
	reqID := middleware.GetRequestID(ctx)

	problem := apierrors.NewProblemDetails(
		http.StatusBadRequest,
		"/errors/invalid-request",
		"Invalid Request",
		detail,
		r.URL.Path+"#"+reqID,
	).WithExtension("trace_id", infrastructure.TraceIDFromContext(ctx))

	render.Render(w, r, problem)
}
