package infrastructure

import (
	"go.opentelemetry.io/otel/metric"
)

// BusinessMetrics holds all application-specific metrics
type BusinessMetrics struct {
	// HTTP metrics
	HTTPRequestsTotal   metric.Int64Counter
	HTTPRequestDuration metric.Float64Histogram
	HTTPActiveRequests  metric.Int64UpDownCounter

	// License metrics
	TrialStartsTotal          metric.Int64Counter
	LicenseActivationAttempts metric.Int64Counter
	LicenseActivationSuccess  metric.Int64Counter
	LicenseValidationChecks   metric.Int64Counter
	LicenseValidationFailures metric.Int64Counter
	CodeRedemptionsTotal      metric.Int64Counter
	DeviceRemovalsTotal       metric.Int64Counter
	UpdateChecksTotal         metric.Int64Counter

	// System metrics
	SystemErrors metric.Int64Counter
}

// CreateBusinessMetrics creates application-specific metrics
func CreateBusinessMetrics(meter metric.Meter) (*BusinessMetrics, error) {
	httpRequestsTotal, err := meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
	)
	if err != nil {
		return nil, err
	}

	httpRequestDuration, err := meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	httpActiveRequests, err := meter.Int64UpDownCounter(
		"http_active_requests",
		metric.WithDescription("Number of active HTTP requests"),
	)
	if err != nil {
		return nil, err
	}

	trialStartsTotal, err := meter.Int64Counter(
		"license_trial_starts_total",
		metric.WithDescription("Total number of trial start requests"),
	)
	if err != nil {
		return nil, err
	}

	licenseActivationAttempts, err := meter.Int64Counter(
		"license_activation_attempts_total",
		metric.WithDescription("Total number of license activation attempts"),
	)
	if err != nil {
		return nil, err
	}

	licenseActivationSuccess, err := meter.Int64Counter(
		"license_activation_success_total",
		metric.WithDescription("Total number of successful license activations"),
	)
	if err != nil {
		return nil, err
	}

	licenseValidationChecks, err := meter.Int64Counter(
		"license_validation_checks_total",
		metric.WithDescription("Total number of license validation checks"),
	)
	if err != nil {
		return nil, err
	}

	licenseValidationFailures, err := meter.Int64Counter(
		"license_validation_failures_total",
		metric.WithDescription("Total number of license validation failures"),
	)
	if err != nil {
		return nil, err
	}

	codeRedemptionsTotal, err := meter.Int64Counter(
		"license_code_redemptions_total",
		metric.WithDescription("Total number of activation code redemptions"),
	)
	if err != nil {
		return nil, err
	}

	deviceRemovalsTotal, err := meter.Int64Counter(
		"license_device_removals_total",
		metric.WithDescription("Total number of device removals"),
	)
	if err != nil {
		return nil, err
	}

	updateChecksTotal, err := meter.Int64Counter(
		"license_update_checks_total",
		metric.WithDescription("Total number of update checks"),
	)
	if err != nil {
		return nil, err
	}

	systemErrors, err := meter.Int64Counter(
		"system_errors_total",
		metric.WithDescription("Total number of system errors"),
	)
	if err != nil {
		return nil, err
	}

	return &BusinessMetrics{
		HTTPRequestsTotal:   httpRequestsTotal,
		HTTPRequestDuration: httpRequestDuration,
		HTTPActiveRequests:  httpActiveRequests,

		TrialStartsTotal:          trialStartsTotal,
		LicenseActivationAttempts: licenseActivationAttempts,
		LicenseActivationSuccess:  licenseActivationSuccess,
		LicenseValidationChecks:   licenseValidationChecks,
		LicenseValidationFailures: licenseValidationFailures,
		CodeRedemptionsTotal:      codeRedemptionsTotal,
		DeviceRemovalsTotal:       deviceRemovalsTotal,
		UpdateChecksTotal:         updateChecksTotal,

		SystemErrors: systemErrors,
	}, nil
}
