package license

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"licensed/internal/store"
)

// TrialKeyPrefix derives the deterministic license key for per-device
// trials, making StartTrial idempotent per device.
const TrialKeyPrefix = "trial-"

// UpdateCheck is the result of comparing a client's version against the
// effective version gates of its license.
type UpdateCheck struct {
	HasUpdate     bool
	Mandatory     bool
	LatestVersion string
	DownloadURL   string
	License       Envelope
}

// CreateLicenseParams are the operator-facing inputs for out-of-band
// license provisioning.
type CreateLicenseParams struct {
	LicenseKey string // minted when empty
	UserType   store.UserType
	TrialDays  int // used only for trial licenses
	MaxDevices int
	Notes      string
}

// CreateCodeParams are the operator-facing inputs for minting a
// redeemable activation code.
type CreateCodeParams struct {
	Code       string
	UserType   store.UserType
	ValidDays  *int
	MaxDevices int
	UsageLimit *int
	ExpiresAt  *time.Time
	Notes      string
}

// Service implements the trust subsystem: trial lifecycle, device
// activation, code redemption, update checks, and payload issuance.
// All durable state flows through the store; each operation runs inside
// one transaction.
type Service struct {
	store     *store.Store
	issuer    *Issuer
	clock     Clock
	trialDays int
	logger    *slog.Logger
}

// NewService wires the service with explicit dependencies
func NewService(st *store.Store, issuer *Issuer, trialDays int, clock Clock, logger *slog.Logger) *Service {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Service{
		store:     st,
		issuer:    issuer,
		clock:     clock,
		trialDays: trialDays,
		logger:    logger.With(slog.String("component", "license_service")),
	}
}

// StartTrial creates-or-returns the per-device trial license. Repeated
// calls for the same device return the existing grant unchanged; the
// trial window is never reset or extended.
func (s *Service) StartTrial(ctx context.Context, deviceID, deviceName string) (Envelope, error) {
	licenseKey := TrialKeyPrefix + deviceID

	var lic *store.License
	err := s.store.InTx(ctx, func(tx *store.Store) error {
		existing, err := tx.GetLicenseByKey(ctx, licenseKey)
		if err == nil {
			lic = existing
			return nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return err
		}

		now := s.clock.Now()
		expireAt := now.Add(time.Duration(s.trialDays) * 24 * time.Hour)
		notes := "auto trial"
		created := &store.License{
			LicenseKey:     licenseKey,
			UserType:       store.UserTypeTrial,
			ExpireAt:       &expireAt,
			TrialStartedAt: &now,
			MaxDevices:     1,
			Notes:          &notes,
		}
		if err := tx.CreateLicense(ctx, created); err != nil {
			return fmt.Errorf("failed to create trial license: %w", err)
		}
		lic = created

		s.logger.InfoContext(ctx, "trial license created",
			slog.String("license_key", licenseKey),
			slog.Time("expire_at", expireAt))
		return nil
	})
	if err != nil {
		return Envelope{}, err
	}

	return s.issuer.Issue(lic)
}

// Activate binds a device to a license, consuming one unit of device
// quota unless the device is already bound (idempotent re-activation).
func (s *Service) Activate(ctx context.Context, licenseKey, deviceID, deviceName string) (Envelope, error) {
	var lic *store.License
	err := s.store.InTx(ctx, func(tx *store.Store) error {
		// Locking the license row serializes the count-then-insert
		// sequence across concurrent activations of the same license.
		found, err := tx.GetLicenseByKeyForUpdate(ctx, licenseKey)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrLicenseNotFound
			}
			return err
		}
		lic = found

		now := s.clock.Now()
		if err := s.checkTrialWindow(lic, now); err != nil {
			return err
		}

		act, err := tx.GetActivation(ctx, lic.ID, deviceID)
		if err == nil {
			return tx.TouchActivation(ctx, act.ID, now)
		}
		if !errors.Is(err, store.ErrNotFound) {
			return err
		}

		count, err := tx.CountActivations(ctx, lic.ID)
		if err != nil {
			return err
		}
		if count >= int64(lic.MaxDevices) {
			return ErrDeviceLimitExceeded
		}

		newAct := &store.DeviceActivation{
			LicenseID:   lic.ID,
			DeviceID:    deviceID,
			ActivatedAt: now,
			LastSeenAt:  now,
		}
		if deviceName != "" {
			newAct.DeviceName = &deviceName
		}
		if err := tx.CreateActivation(ctx, newAct); err != nil {
			return fmt.Errorf("failed to create activation: %w", err)
		}

		s.logger.InfoContext(ctx, "device activated",
			slog.String("license_key", licenseKey),
			slog.Int64("devices_used", count+1),
			slog.Int("max_devices", lic.MaxDevices))
		return nil
	})
	if err != nil {
		return Envelope{}, err
	}

	return s.issuer.Issue(lic)
}

// Validate confirms an existing activation and refreshes its liveness
// timestamp. Unknown devices are rejected; this never activates.
func (s *Service) Validate(ctx context.Context, licenseKey, deviceID string) (Envelope, error) {
	var lic *store.License
	err := s.store.InTx(ctx, func(tx *store.Store) error {
		found, err := tx.GetLicenseByKey(ctx, licenseKey)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrLicenseNotFound
			}
			return err
		}
		lic = found

		act, err := tx.GetActivation(ctx, lic.ID, deviceID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrActivationNotFound
			}
			return err
		}

		now := s.clock.Now()
		if err := s.checkTrialWindow(lic, now); err != nil {
			return err
		}

		return tx.TouchActivation(ctx, act.ID, now)
	})
	if err != nil {
		return Envelope{}, err
	}

	return s.issuer.Issue(lic)
}

// GetProfile returns the current signed state of a license. When a device
// is supplied it must already be activated.
func (s *Service) GetProfile(ctx context.Context, licenseKey, deviceID string) (Envelope, error) {
	lic, err := s.store.GetLicenseByKey(ctx, licenseKey)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Envelope{}, ErrLicenseNotFound
		}
		return Envelope{}, err
	}

	if deviceID != "" {
		if _, err := s.store.GetActivation(ctx, lic.ID, deviceID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return Envelope{}, ErrActivationNotFound
			}
			return Envelope{}, err
		}
	}

	return s.issuer.Issue(lic)
}

// ListDevices returns every activation of a license, ordered by
// activation time for deterministic output.
func (s *Service) ListDevices(ctx context.Context, licenseKey string) ([]store.DeviceActivation, error) {
	lic, err := s.store.GetLicenseByKey(ctx, licenseKey)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrLicenseNotFound
		}
		return nil, err
	}
	return s.store.ListActivations(ctx, lic.ID)
}

// RemoveDevice unbinds a device, freeing one quota slot. Removal of an
// unknown device is not an error. Returns the post-removal device list.
func (s *Service) RemoveDevice(ctx context.Context, licenseKey, deviceID string) ([]store.DeviceActivation, error) {
	var licenseID uint
	err := s.store.InTx(ctx, func(tx *store.Store) error {
		lic, err := tx.GetLicenseByKey(ctx, licenseKey)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrLicenseNotFound
			}
			return err
		}
		licenseID = lic.ID

		removed, err := tx.DeleteActivation(ctx, lic.ID, deviceID)
		if err != nil {
			return err
		}
		if removed > 0 {
			s.logger.InfoContext(ctx, "device removed",
				slog.String("license_key", licenseKey))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s.store.ListActivations(ctx, licenseID)
}

// Redeem converts an activation code into a license grant, or upgrades the
// license already keyed by the code string. Bounded by the code's own
// expiry and usage limit; the whole sequence commits as one transaction.
// The device is recorded for audit but not bound; activation is a
// separate call.
func (s *Service) Redeem(ctx context.Context, code, deviceID, deviceName string) (Envelope, error) {
	var lic *store.License
	err := s.store.InTx(ctx, func(tx *store.Store) error {
		// Lock the code row so concurrent redemptions of the same code
		// observe used_count serially.
		ac, err := tx.GetActivationCodeForUpdate(ctx, code)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrActivationCodeNotFound
			}
			return err
		}

		now := s.clock.Now()
		if ac.ExpiresAt != nil && !ac.ExpiresAt.UTC().After(now) {
			return ErrActivationCodeExpired
		}
		if ac.UsageLimit != nil && ac.UsedCount >= *ac.UsageLimit {
			return ErrActivationCodeDepleted
		}

		var expireAt *time.Time
		if ac.ValidDays != nil {
			t := now.Add(time.Duration(*ac.ValidDays) * 24 * time.Hour)
			expireAt = &t
		}

		existing, err := tx.GetLicenseByKey(ctx, code)
		switch {
		case errors.Is(err, store.ErrNotFound):
			// The code string doubles as the license key, so first
			// redemption mints the license under that key.
			notes := "redeemed"
			created := &store.License{
				LicenseKey:       code,
				UserType:         ac.UserType,
				ExpireAt:         expireAt,
				MaxDevices:       ac.MaxDevices,
				Notes:            &notes,
				ActivationCodeID: &ac.ID,
			}
			if err := tx.CreateLicense(ctx, created); err != nil {
				return fmt.Errorf("failed to create redeemed license: %w", err)
			}
			lic = created
		case err != nil:
			return err
		default:
			// Repeat redemption renews/upgrades the license in place
			updates := map[string]interface{}{
				"user_type":          ac.UserType,
				"expire_at":          expireAt,
				"max_devices":        ac.MaxDevices,
				"activation_code_id": ac.ID,
			}
			if err := tx.UpdateLicense(ctx, existing.ID, updates); err != nil {
				return fmt.Errorf("failed to upgrade license: %w", err)
			}
			existing.UserType = ac.UserType
			existing.ExpireAt = expireAt
			existing.MaxDevices = ac.MaxDevices
			existing.ActivationCodeID = &ac.ID
			lic = existing
		}

		// Re-validated inside the same transaction: the increment aborts
		// if a concurrent redemption already consumed the last use.
		ok, err := tx.IncrementCodeUsage(ctx, ac.ID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrActivationCodeDepleted
		}

		s.logger.InfoContext(ctx, "activation code redeemed",
			slog.String("code", code),
			slog.String("device_id", deviceID),
			slog.String("user_type", string(ac.UserType)),
			slog.Int("used_count", ac.UsedCount+1))
		return nil
	})
	if err != nil {
		return Envelope{}, err
	}

	return s.issuer.Issue(lic)
}

// CheckUpdate reports whether a newer client version exists and whether
// the caller's version is still acceptable. Requires an existing
// activation; it never implicitly activates.
func (s *Service) CheckUpdate(ctx context.Context, licenseKey, deviceID, currentVersion string) (UpdateCheck, error) {
	lic, err := s.store.GetLicenseByKey(ctx, licenseKey)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return UpdateCheck{}, ErrLicenseNotFound
		}
		return UpdateCheck{}, err
	}

	if _, err := s.store.GetActivation(ctx, lic.ID, deviceID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return UpdateCheck{}, ErrActivationNotFound
		}
		return UpdateCheck{}, err
	}

	defaults := s.issuer.VersionDefaults()
	latest := orDefault(lic.LatestVersion, defaults.LatestVersion)
	minimum := orDefault(lic.MinimumVersion, defaults.MinimumVersion)
	downloadURL := orDefault(lic.DownloadURL, defaults.DownloadURL)

	envelope, err := s.issuer.Issue(lic)
	if err != nil {
		return UpdateCheck{}, err
	}

	return UpdateCheck{
		HasUpdate:     CompareVersions(currentVersion, latest) < 0,
		Mandatory:     CompareVersions(currentVersion, minimum) < 0,
		LatestVersion: latest,
		DownloadURL:   downloadURL,
		License:       envelope,
	}, nil
}

// mintLicenseKey returns a 128-bit URL-safe random token.
func mintLicenseKey() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// CreateLicense provisions a license out-of-band (operator surface).
// A key is minted when none is supplied.
func (s *Service) CreateLicense(ctx context.Context, params CreateLicenseParams) (*store.License, error) {
	key := params.LicenseKey
	if key == "" {
		minted, err := mintLicenseKey()
		if err != nil {
			return nil, fmt.Errorf("minting license key: %w", err)
		}
		key = minted
	}

	now := s.clock.Now()
	lic := &store.License{
		LicenseKey: key,
		UserType:   params.UserType,
		MaxDevices: params.MaxDevices,
	}
	if params.Notes != "" {
		lic.Notes = &params.Notes
	}
	if params.UserType == store.UserTypeTrial {
		trialDays := params.TrialDays
		if trialDays <= 0 {
			trialDays = s.trialDays
		}
		expireAt := now.Add(time.Duration(trialDays) * 24 * time.Hour)
		lic.ExpireAt = &expireAt
		lic.TrialStartedAt = &now
	}

	if err := s.store.CreateLicense(ctx, lic); err != nil {
		return nil, fmt.Errorf("failed to create license: %w", err)
	}

	s.logger.InfoContext(ctx, "license provisioned",
		slog.String("license_key", key),
		slog.String("user_type", string(params.UserType)),
		slog.Int("max_devices", params.MaxDevices))
	return lic, nil
}

// DeleteLicense removes a license and all of its activations in one
// transaction (explicit cascade).
func (s *Service) DeleteLicense(ctx context.Context, licenseKey string) error {
	return s.store.InTx(ctx, func(tx *store.Store) error {
		lic, err := tx.GetLicenseByKey(ctx, licenseKey)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrLicenseNotFound
			}
			return err
		}
		return tx.DeleteLicense(ctx, lic.ID)
	})
}

// CreateActivationCode mints a redeemable code (operator surface)
func (s *Service) CreateActivationCode(ctx context.Context, params CreateCodeParams) (*store.ActivationCode, error) {
	ac := &store.ActivationCode{
		Code:       params.Code,
		UserType:   params.UserType,
		ValidDays:  params.ValidDays,
		MaxDevices: params.MaxDevices,
		UsageLimit: params.UsageLimit,
		ExpiresAt:  params.ExpiresAt,
	}
	if params.Notes != "" {
		ac.Notes = &params.Notes
	}
	if err := s.store.CreateActivationCode(ctx, ac); err != nil {
		return nil, fmt.Errorf("failed to create activation code: %w", err)
	}
	return ac, nil
}

// RevokeActivationCode deletes a code so it can no longer be redeemed.
// Licenses already produced by the code are untouched.
func (s *Service) RevokeActivationCode(ctx context.Context, code string) error {
	removed, err := s.store.DeleteActivationCode(ctx, code)
	if err != nil {
		return err
	}
	if removed == 0 {
		return ErrActivationCodeNotFound
	}
	return nil
}

// checkTrialWindow rejects trial-gated operations once the window has
// passed. The record is kept for audit; only the operation is refused.
func (s *Service) checkTrialWindow(lic *store.License, now time.Time) error {
	if !lic.IsTrial() {
		return nil
	}
	if lic.ExpireAt != nil && !lic.ExpireAt.UTC().After(now) {
		return ErrTrialExpired
	}
	return nil
}
