package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	apierrors "licensed/internal/errors"
	"licensed/internal/infrastructure"
	"licensed/internal/license"
	"licensed/internal/middleware"
	"licensed/internal/store"
	"licensed/pkg/contracts/domain"
)

// validate is the shared request validator; rules live on the contract
// structs as tags.
var validate = validator.New()

// LicenseHandler handles license-related HTTP requests
type LicenseHandler struct {
	service *license.Service
	metrics *infrastructure.BusinessMetrics
	logger  *slog.Logger
}

// NewLicenseHandler creates a new license handler
func NewLicenseHandler(service *license.Service, metrics *infrastructure.BusinessMetrics, logger *slog.Logger) *LicenseHandler {
	return &LicenseHandler{
		service: service,
		metrics: metrics,
		logger:  logger.With(slog.String("handler", "license")),
	}
}

// Routes returns a chi router for license endpoints
func (h *LicenseHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/trial/start", h.StartTrial)
	r.Post("/activate", h.Activate)
	r.Post("/validate", h.Validate)
	r.Get("/profile", h.GetProfile)
	r.Get("/devices", h.ListDevices)
	r.Delete("/devices/{device_id}", h.RemoveDevice)
	r.Post("/redeem", h.Redeem)

	return r
}

// StartTrial handles POST /api/license/trial/start
func (h *LicenseHandler) StartTrial(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reqID := middleware.GetRequestID(ctx)
	tracer := otel.Tracer("license-handler")

	ctx, span := tracer.Start(ctx, "license_handler.start_trial",
		trace.WithAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.route", "/api/license/trial/start"),
			attribute.String("request_id", reqID),
		),
	)
	defer span.End()

	data := &domain.TrialStartRequest{}
	if !h.decodeAndValidate(w, r.WithContext(ctx), span, data) {
		return
	}

	if h.metrics != nil {
		h.metrics.TrialStartsTotal.Add(ctx, 1)
	}

	envelope, err := h.service.StartTrial(ctx, data.DeviceID, data.DeviceName)
	if err != nil {
		h.handleError(w, r.WithContext(ctx), span, err)
		return
	}

	h.logger.InfoContext(ctx, "trial start handled",
		slog.String("request_id", reqID),
		slog.String("trace_id", infrastructure.TraceIDFromContext(ctx)))

	render.JSON(w, r, licenseResponse(envelope))
}

// Activate handles POST /api/license/activate
func (h *LicenseHandler) Activate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reqID := middleware.GetRequestID(ctx)
	tracer := otel.Tracer("license-handler")

	ctx, span := tracer.Start(ctx, "license_handler.activate",
		trace.WithAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.route", "/api/license/activate"),
			attribute.String("request_id", reqID),
		),
	)
	defer span.End()

	data := &domain.ActivateRequest{}
	if !h.decodeAndValidate(w, r.WithContext(ctx), span, data) {
		return
	}

	if h.metrics != nil {
		h.metrics.LicenseActivationAttempts.Add(ctx, 1)
	}

	envelope, err := h.service.Activate(ctx, data.LicenseKey, data.DeviceID, data.DeviceName)
	if err != nil {
		h.handleError(w, r.WithContext(ctx), span, err)
		return
	}

	if h.metrics != nil {
		h.metrics.LicenseActivationSuccess.Add(ctx, 1)
	}
	span.SetAttributes(attribute.String("license.user_type", string(envelope.Payload.UserType)))

	h.logger.InfoContext(ctx, "activation handled",
		slog.String("request_id", reqID),
		slog.String("trace_id", infrastructure.TraceIDFromContext(ctx)),
		slog.String("user_type", string(envelope.Payload.UserType)))

	render.JSON(w, r, licenseResponse(envelope))
}

// Validate handles POST /api/license/validate
func (h *LicenseHandler) Validate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reqID := middleware.GetRequestID(ctx)
	tracer := otel.Tracer("license-handler")

	ctx, span := tracer.Start(ctx, "license_handler.validate",
		trace.WithAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.route", "/api/license/validate"),
			attribute.String("request_id", reqID),
		),
	)
	defer span.End()

	data := &domain.ValidateRequest{}
	if !h.decodeAndValidate(w, r.WithContext(ctx), span, data) {
		return
	}

	if h.metrics != nil {
		h.metrics.LicenseValidationChecks.Add(ctx, 1)
	}

	envelope, err := h.service.Validate(ctx, data.LicenseKey, data.DeviceID)
	if err != nil {
		if h.metrics != nil {
			h.metrics.LicenseValidationFailures.Add(ctx, 1)
		}
		h.handleError(w, r.WithContext(ctx), span, err)
		return
	}

	render.JSON(w, r, licenseResponse(envelope))
}

// GetProfile handles GET /api/license/profile
func (h *LicenseHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reqID := middleware.GetRequestID(ctx)
	tracer := otel.Tracer("license-handler")

	ctx, span := tracer.Start(ctx, "license_handler.get_profile",
		trace.WithAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.route", "/api/license/profile"),
			attribute.String("request_id", reqID),
		),
	)
	defer span.End()

	licenseKey := r.URL.Query().Get("license_key")
	if licenseKey == "" {
		h.badRequest(w, r.WithContext(ctx), span, "license_key query parameter is required")
		return
	}
	deviceID := r.URL.Query().Get("device_id")

	envelope, err := h.service.GetProfile(ctx, licenseKey, deviceID)
	if err != nil {
		h.handleError(w, r.WithContext(ctx), span, err)
		return
	}

	render.JSON(w, r, licenseResponse(envelope))
}

// ListDevices handles GET /api/license/devices
func (h *LicenseHandler) ListDevices(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reqID := middleware.GetRequestID(ctx)
	tracer := otel.Tracer("license-handler")

	ctx, span := tracer.Start(ctx, "license_handler.list_devices",
		trace.WithAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.route", "/api/license/devices"),
			attribute.String("request_id", reqID),
		),
	)
	defer span.End()

	licenseKey := r.URL.Query().Get("license_key")
	if licenseKey == "" {
		h.badRequest(w, r.WithContext(ctx), span, "license_key query parameter is required")
		return
	}

	activations, err := h.service.ListDevices(ctx, licenseKey)
	if err != nil {
		h.handleError(w, r.WithContext(ctx), span, err)
		return
	}

	span.SetAttributes(attribute.Int("license.device_count", len(activations)))

	render.JSON(w, r, deviceListResponse(activations))
}

// RemoveDevice handles DELETE /api/license/devices/{device_id}
func (h *LicenseHandler) RemoveDevice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reqID := middleware.GetRequestID(ctx)
	tracer := otel.Tracer("license-handler")

	ctx, span := tracer.Start(ctx, "license_handler.remove_device",
		trace.WithAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.route", "/api/license/devices/{device_id}"),
			attribute.String("request_id", reqID),
		),
	)
	defer span.End()

	licenseKey := r.URL.Query().Get("license_key")
	if licenseKey == "" {
		h.badRequest(w, r.WithContext(ctx), span, "license_key query parameter is required")
		return
	}
	deviceID := chi.URLParam(r, "device_id")

	if h.metrics != nil {
		h.metrics.DeviceRemovalsTotal.Add(ctx, 1)
	}

	activations, err := h.service.RemoveDevice(ctx, licenseKey, deviceID)
	if err != nil {
		h.handleError(w, r.WithContext(ctx), span, err)
		return
	}

	h.logger.InfoContext(ctx, "device removal handled",
		slog.String("request_id", reqID),
		slog.String("trace_id", infrastructure.TraceIDFromContext(ctx)),
		slog.Int("remaining_devices", len(activations)))

	render.JSON(w, r, deviceListResponse(activations))
}

// Redeem handles POST /api/license/redeem
func (h *LicenseHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reqID := middleware.GetRequestID(ctx)
	tracer := otel.Tracer("license-handler")

	ctx, span := tracer.Start(ctx, "license_handler.redeem",
		trace.WithAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.route", "/api/license/redeem"),
			attribute.String("request_id", reqID),
		),
	)
	defer span.End()

	data := &domain.RedeemRequest{}
	if !h.decodeAndValidate(w, r.WithContext(ctx), span, data) {
		return
	}

	if h.metrics != nil {
		h.metrics.CodeRedemptionsTotal.Add(ctx, 1)
	}

	envelope, err := h.service.Redeem(ctx, data.ActivationCode, data.DeviceID, data.DeviceName)
	if err != nil {
		h.handleError(w, r.WithContext(ctx), span, err)
		return
	}

	infrastructure.AddSpanEvent(ctx, "license.redeem.success", map[string]interface{}{
		"user_type": string(envelope.Payload.UserType),
	})

	h.logger.InfoContext(ctx, "redemption handled",
		slog.String("request_id", reqID),
		slog.String("trace_id", infrastructure.TraceIDFromContext(ctx)),
		slog.String("user_type", string(envelope.Payload.UserType)))

	render.JSON(w, r, licenseResponse(envelope))
}

// decodeAndValidate decodes the JSON body into data and runs validator
// tags. Writes the problem response itself and returns false on failure.
func (h *LicenseHandler) decodeAndValidate(w http.ResponseWriter, r *http.Request, span trace.Span, data interface{}) bool {
	ctx := r.Context()

	if err := render.Decode(r, data); err != nil {
		span.RecordError(err)
		span.SetAttributes(attribute.String("error.type", "request_decode"))

		h.logger.WarnContext(ctx, "failed to decode request",
			slog.String("error", err.Error()),
			slog.String("path", r.URL.Path))

		h.badRequest(w, r, span, err.Error())
		return false
	}

	if err := validate.Struct(data); err != nil {
		span.RecordError(err)
		span.SetAttributes(attribute.String("error.type", "request_validation"))

		h.logger.WarnContext(ctx, "request validation failed",
			slog.String("error", err.Error()),
			slog.String("path", r.URL.Path))

		h.badRequest(w, r, span, err.Error())
		return false
	}

	return true
}

func (h *LicenseHandler) badRequest(w http.ResponseWriter, r *http.Request, span trace.Span, detail string) {
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

// handleError maps domain errors to RFC 7807 responses
func (h *LicenseHandler) handleError(w http.ResponseWriter, r *http.Request, span trace.Span, err error) {
	ctx := r.Context()

	span.RecordError(err)
	span.SetAttributes(attribute.String("error.code", license.CodeForError(err)))

	if h.metrics != nil && license.CodeForError(err) == license.CodeInternalError {
		h.metrics.SystemErrors.Add(ctx, 1)
	}

	h.logger.WarnContext(ctx, "license operation failed",
		slog.String("error", err.Error()),
		slog.String("error_code", license.CodeForError(err)),
		slog.String("path", r.URL.Path),
		slog.String("trace_id", infrastructure.TraceIDFromContext(ctx)))

	problem := apierrors.MapLicenseError(err, r.URL.Path, infrastructure.TraceIDFromContext(ctx))
	render.Render(w, r, problem)
}

// licenseResponse converts a signed envelope into the wire contract
func licenseResponse(envelope license.Envelope) domain.LicenseResponse {
	return domain.LicenseResponse{
		Status:  "ok",
		License: signedLicense(envelope),
	}
}

func signedLicense(envelope license.Envelope) domain.SignedLicense {
	p := envelope.Payload
	return domain.SignedLicense{
		Payload: domain.LicensePayload{
			LicenseKey:         p.LicenseKey,
			UserType:           string(p.UserType),
			ExpireAt:           p.ExpireAt,
			MaxDevices:         p.MaxDevices,
			LatestVersion:      p.LatestVersion,
			MinimumVersion:     p.MinimumVersion,
			DownloadURL:        p.DownloadURL,
			IssuedAt:           p.IssuedAt,
			TrialRemainingDays: p.TrialRemainingDays,
		},
		Signature: envelope.Signature,
	}
}

func deviceListResponse(activations []store.DeviceActivation) domain.DeviceListResponse {
	devices := make([]domain.Device, 0, len(activations))
	for _, act := range activations {
		d := domain.Device{
			DeviceID:    act.DeviceID,
			ActivatedAt: act.ActivatedAt.UTC(),
			LastSeenAt:  act.LastSeenAt.UTC(),
		}
		if act.DeviceName != nil {
			d.DeviceName = *act.DeviceName
		}
		devices = append(devices, d)
	}
	return domain.DeviceListResponse{
		Status:  "ok",
		Devices: devices,
	}
}
