package errors

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/render"

	"licensed/internal/license"
)

// ProblemDetails implements RFC 7807 Problem Details for HTTP APIs
type ProblemDetails struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`

	// Additional fields for extensibility
	Extensions map[string]interface{} `json:"-"`
}

// Render implements the render.Renderer interface
func (pd *ProblemDetails) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, pd.Status)
	return nil
}

// MarshalJSON custom marshaler to include extensions
func (pd *ProblemDetails) MarshalJSON() ([]byte, error) {
	data := make(map[string]interface{})

	data["type"] = pd.Type
	data["title"] = pd.Title
	data["status"] = pd.Status

	if pd.Detail != "" {
		data["detail"] = pd.Detail
	}
	if pd.Instance != "" {
		data["instance"] = pd.Instance
	}

	for k, v := range pd.Extensions {
		data[k] = v
	}

	return json.Marshal(data)
}

// NewProblemDetails creates a new RFC 7807 compliant error
func NewProblemDetails(status int, problemType, title, detail, instance string) *ProblemDetails {
	return &ProblemDetails{
		Type:       problemType,
		Title:      title,
		Status:     status,
		Detail:     detail,
		Instance:   instance,
		Extensions: make(map[string]interface{}),
	}
}

// WithExtension adds an extension field to the problem details
func (pd *ProblemDetails) WithExtension(key string, value interface{}) *ProblemDetails {
	pd.Extensions[key] = value
	return pd
}

// MapLicenseError maps domain errors to HTTP problem details
func MapLicenseError(err error, instance, traceID string) render.Renderer {
	code := license.CodeForError(err)

	switch {
	case errors.Is(err, license.ErrLicenseNotFound):
		return NewProblemDetails(
			http.StatusNotFound,
			"/errors/license-not-found",
			"License Not Found",
			"The specified license key was not found.",
			instance,
		).WithExtension("trace_id", traceID).
			WithExtension("error_code", code)

	case errors.Is(err, license.ErrActivationNotFound):
		return NewProblemDetails(
			http.StatusNotFound,
			"/errors/activation-not-found",
			"Activation Not Found",
			"This device has not been activated on the specified license.",
			instance,
		).WithExtension("trace_id", traceID).
			WithExtension("error_code", code)

	case errors.Is(err, license.ErrTrialExpired):
		return NewProblemDetails(
			http.StatusForbidden,
			"/errors/trial-expired",
			"Trial Expired",
			"The trial period for this license has ended.",
			instance,
		).WithExtension("trace_id", traceID).
			WithExtension("error_code", code)

	case errors.Is(err, license.ErrDeviceLimitExceeded):
		return NewProblemDetails(
			http.StatusForbidden,
			"/errors/device-limit-exceeded",
			"Device Limit Exceeded",
			"The license has reached its maximum number of activated devices. Remove a device to free a slot.",
			instance,
		).WithExtension("trace_id", traceID).
			WithExtension("error_code", code)

	case errors.Is(err, license.ErrActivationCodeNotFound):
		return NewProblemDetails(
			http.StatusNotFound,
			"/errors/activation-code-not-found",
			"Activation Code Not Found",
			"The specified activation code was not found.",
			instance,
		).WithExtension("trace_id", traceID).
			WithExtension("error_code", code)

	case errors.Is(err, license.ErrActivationCodeExpired):
		return NewProblemDetails(
			http.StatusBadRequest,
			"/errors/activation-code-expired",
			"Activation Code Expired",
			"This activation code can no longer be redeemed.",
			instance,
		).WithExtension("trace_id", traceID).
			WithExtension("error_code", code)

	case errors.Is(err, license.ErrActivationCodeDepleted):
		return NewProblemDetails(
			http.StatusBadRequest,
			"/errors/activation-code-depleted",
			"Activation Code Depleted",
			"This activation code has reached its usage limit.",
			instance,
		).WithExtension("trace_id", traceID).
			WithExtension("error_code", code)

	case errors.Is(err, context.DeadlineExceeded):
		return NewProblemDetails(
			http.StatusGatewayTimeout,
			"/errors/timeout",
			"Request Timeout",
			"The request timed out while processing. Please try again.",
			instance,
		).WithExtension("trace_id", traceID).
			WithExtension("error_code", "timeout")

	case errors.Is(err, context.Canceled):
		return NewProblemDetails(
			http.StatusRequestTimeout,
			"/errors/request-canceled",
			"Request Canceled",
			"The request was canceled before completion.",
			instance,
		).WithExtension("trace_id", traceID).
			WithExtension("error_code", "request_canceled")

	default:
		return NewProblemDetails(
			http.StatusInternalServerError,
			"/errors/internal-error",
			"Internal Server Error",
			"An unexpected error occurred while processing your request.",
			instance,
		).WithExtension("trace_id", traceID).
			WithExtension("error_code", code)
	}
}
