package license

import (
	"time"

	"licensed/internal/store"
)

// Payload is the canonical representation of a license's current state,
// issued to clients inside a signed envelope.
type Payload struct {
	LicenseKey         string         `json:"license_key"`
	UserType           store.UserType `json:"user_type"`
	ExpireAt           *time.Time     `json:"expire_at"`
	MaxDevices         int            `json:"max_devices"`
	LatestVersion      string         `json:"latest_version"`
	MinimumVersion     string         `json:"minimum_version"`
	DownloadURL        string         `json:"download_url"`
	IssuedAt           time.Time      `json:"issued_at"`
	TrialRemainingDays *int           `json:"trial_remaining_days,omitempty"`
}

// Envelope wraps a payload with its signature, proving the payload was
// issued by this service and not modified since.
type Envelope struct {
	Payload   Payload `json:"payload"`
	Signature string  `json:"signature"`
}

// Defaults are process-wide version and download metadata applied when a
// license carries no per-record override.
type Defaults struct {
	LatestVersion  string
	MinimumVersion string
	DownloadURL    string
}

// Issuer assembles and signs license payloads. Signatures are never
// cached: issued_at is always the moment of issuance, so two identical
// requests produce different envelopes on purpose.
type Issuer struct {
	signer   *Signer
	defaults Defaults
	clock    Clock
}

// NewIssuer creates an issuer with explicit configuration; no ambient
// global lookups.
func NewIssuer(signer *Signer, defaults Defaults, clock Clock) *Issuer {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Issuer{signer: signer, defaults: defaults, clock: clock}
}

// Issue builds a freshly signed envelope for the license's current state
func (i *Issuer) Issue(lic *store.License) (Envelope, error) {
	now := i.clock.Now()

	payload := Payload{
		LicenseKey:         lic.LicenseKey,
		UserType:           lic.UserType,
		ExpireAt:           EnsureUTC(lic.ExpireAt),
		MaxDevices:         lic.MaxDevices,
		LatestVersion:      orDefault(lic.LatestVersion, i.defaults.LatestVersion),
		MinimumVersion:     orDefault(lic.MinimumVersion, i.defaults.MinimumVersion),
		DownloadURL:        orDefault(lic.DownloadURL, i.defaults.DownloadURL),
		IssuedAt:           now,
		TrialRemainingDays: RemainingDays(lic.ExpireAt, now),
	}

	signature, err := i.signer.Sign(payload)
	if err != nil {
		return Envelope{}, err
	}

	return Envelope{Payload: payload, Signature: signature}, nil
}

// VersionDefaults exposes the process defaults for callers that need the
// effective version gates without issuing a payload.
func (i *Issuer) VersionDefaults() Defaults {
	return i.defaults
}

func orDefault(override *string, fallback string) string {
	if override != nil && *override != "" {
		return *override
	}
	return fallback
}
