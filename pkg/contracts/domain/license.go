// Package domain contains the request and response contracts of the
// licensing API. These types serve as the Single Source of Truth (SSOT)
// shared by the HTTP transport, the CLI, and client integrations.
package domain

import (
	"time"
)

// TrialStartRequest starts (or resumes) the per-device trial.
// CurrentVersion is accepted for telemetry; it does not affect the grant.
type TrialStartRequest struct {
	DeviceID       string `json:"device_id" validate:"required,min=4,max=128"`
	DeviceName     string `json:"device_name,omitempty" validate:"omitempty,max=128"`
	CurrentVersion string `json:"current_version,omitempty" validate:"omitempty,max=32"`
}

// ActivateRequest binds a device to an existing license
type ActivateRequest struct {
	LicenseKey     string `json:"license_key" validate:"required,min=4,max=128"`
	DeviceID       string `json:"device_id" validate:"required,min=4,max=128"`
	DeviceName     string `json:"device_name,omitempty" validate:"omitempty,max=128"`
	CurrentVersion string `json:"current_version,omitempty" validate:"omitempty,max=32"`
}

// ValidateRequest confirms an existing device binding
type ValidateRequest struct {
	LicenseKey     string `json:"license_key" validate:"required,min=4,max=128"`
	DeviceID       string `json:"device_id" validate:"required,min=4,max=128"`
	CurrentVersion string `json:"current_version,omitempty" validate:"omitempty,max=32"`
}

// RedeemRequest converts an activation code into a license grant.
// Redemption does not bind the device; clients activate separately.
type RedeemRequest struct {
	ActivationCode string `json:"activation_code" validate:"required,min=4,max=64"`
	DeviceID       string `json:"device_id" validate:"required,min=4,max=128"`
	DeviceName     string `json:"device_name,omitempty" validate:"omitempty,max=128"`
	CurrentVersion string `json:"current_version,omitempty" validate:"omitempty,max=32"`
}

// UpdateCheckRequest asks whether a newer client build is available and
// whether the caller's build is still allowed to run.
type UpdateCheckRequest struct {
	LicenseKey     string `json:"license_key" validate:"required,min=4,max=128"`
	DeviceID       string `json:"device_id" validate:"required,min=4,max=128"`
	CurrentVersion string `json:"current_version" validate:"required,max=32"`
}

// LicensePayload is the signed claim set describing the license state at
// issuance time. Clients verify the accompanying signature before
// trusting any field.
type LicensePayload struct {
	LicenseKey         string     `json:"license_key"`
	UserType           string     `json:"user_type"`
	ExpireAt           *time.Time `json:"expire_at"`
	MaxDevices         int        `json:"max_devices"`
	LatestVersion      string     `json:"latest_version"`
	MinimumVersion     string     `json:"minimum_version"`
	DownloadURL        string     `json:"download_url"`
	IssuedAt           time.Time  `json:"issued_at"`
	TrialRemainingDays *int       `json:"trial_remaining_days"`
}

// SignedLicense couples a payload with its HMAC signature
type SignedLicense struct {
	Payload   LicensePayload `json:"payload"`
	Signature string         `json:"signature"`
}

// LicenseResponse is the standard success envelope for operations that
// yield a signed license.
type LicenseResponse struct {
	Status  string        `json:"status"`
	License SignedLicense `json:"license"`
}

// Device describes one activation slot of a license
type Device struct {
	DeviceID    string    `json:"device_id"`
	DeviceName  string    `json:"device_name,omitempty"`
	ActivatedAt time.Time `json:"activated_at"`
	LastSeenAt  time.Time `json:"last_seen_at"`
}

// DeviceListResponse lists the activations of a license
type DeviceListResponse struct {
	Status  string   `json:"status"`
	Devices []Device `json:"devices"`
}

// UpdateCheckResponse carries the version verdict alongside a freshly
// signed license so clients refresh both in one round trip.
type UpdateCheckResponse struct {
	Status        string        `json:"status"`
	HasUpdate     bool          `json:"has_update"`
	Mandatory     bool          `json:"mandatory"`
	LatestVersion string        `json:"latest_version"`
	DownloadURL   string        `json:"download_url"`
	License       SignedLicense `json:"license"`
}

// HealthResponse reports process and dependency liveness
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Version string `json:"version"`
}
