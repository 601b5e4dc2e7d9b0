package store

import (
	"time"
)

// UserType is the entitlement class of a license
type UserType string

const (
	UserTypeTrial UserType = "trial"
	UserTypePro   UserType = "pro"
)

// License is a licensing grant keyed by a unique opaque license key.
// A nil ExpireAt means the license never expires.
type License struct {
	ID               uint      `gorm:"primaryKey"`
	LicenseKey       string    `gorm:"size:64;not null;uniqueIndex:uq_license_key"`
	UserType         UserType  `gorm:"size:16;not null;default:trial"`
	ExpireAt         *time.Time
	TrialStartedAt   *time.Time
	MaxDevices       int     `gorm:"not null;default:1"`
	Notes            *string `gorm:"size:255"`
	LatestVersion    *string `gorm:"size:32"`
	MinimumVersion   *string `gorm:"size:32"`
	DownloadURL      *string `gorm:"size:255"`
	ActivationCodeID *uint
	CreatedAt        time.Time
	UpdatedAt        time.Time

	// Back-reference to the code that produced or last upgraded this
	// license, audit only; the code does not own the license.
	ActivationCode *ActivationCode    `gorm:"foreignKey:ActivationCodeID;constraint:OnDelete:SET NULL"`
	Activations    []DeviceActivation `gorm:"foreignKey:LicenseID;constraint:OnDelete:CASCADE"`
}

// IsTrial reports whether this is a trial grant
func (l *License) IsTrial() bool {
	return l.UserType == UserTypeTrial
}

// DeviceActivation binds one device to a license. The (license, device)
// pair is unique; re-activating refreshes LastSeenAt instead of duplicating.
type DeviceActivation struct {
	ID          uint    `gorm:"primaryKey"`
	LicenseID   uint    `gorm:"not null;uniqueIndex:uq_license_device"`
	DeviceID    string  `gorm:"size:128;not null;uniqueIndex:uq_license_device"`
	DeviceName  *string `gorm:"size:128"`
	ActivatedAt time.Time
	LastSeenAt  time.Time
}

// ActivationCode is a redeemable grant template. UsedCount only grows and
// must never pass UsageLimit when one is set.
type ActivationCode struct {
	ID         uint     `gorm:"primaryKey"`
	Code       string   `gorm:"size:64;not null;uniqueIndex:uq_activation_code"`
	UserType   UserType `gorm:"size:16;not null;default:pro"`
	ValidDays  *int
	MaxDevices int  `gorm:"not null;default:3"`
	UsageLimit *int
	UsedCount  int `gorm:"not null;default:0"`
	ExpiresAt  *time.Time
	Notes      *string `gorm:"size:255"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
