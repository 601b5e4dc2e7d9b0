package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"licensed/internal/config"
)

// ErrNotFound is returned when a requested record does not exist
var ErrNotFound = errors.New("record not found")

// Store is the sole reader and writer of durable license state.
// All mutating request flows run inside a single transaction via InTx.
type Store struct {
	db *gorm.DB
}

// New wraps an existing gorm handle. Used directly by tests and by Open.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Open connects to the configured database and applies pool settings
func Open(cfg config.DatabaseConfig, logger *slog.Logger) (*Store, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access connection pool: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	logger.Info("database connected",
		slog.Int("max_open_conns", cfg.MaxOpenConns),
		slog.Int("max_idle_conns", cfg.MaxIdleConns))

	return &Store{db: db}, nil
}

// AutoMigrate creates or updates the schema for all license models
func (s *Store) AutoMigrate() error {
	return s.db.AutoMigrate(&ActivationCode{}, &License{}, &DeviceActivation{})
}

// InTx runs fn inside one transaction; any error rolls the unit back entirely
func (s *Store) InTx(ctx context.Context, fn func(tx *Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

// GetLicenseByKey returns the license with the given key, or ErrNotFound
func (s *Store) GetLicenseByKey(ctx context.Context, licenseKey string) (*License, error) {
	var lic License
	err := s.db.WithContext(ctx).
		Where("license_key = ?", licenseKey).
		First(&lic).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &lic, nil
}

// forUpdate applies a SELECT ... FOR UPDATE clause where the dialect
// supports it. SQLite serializes writers at the database level, so the
// row lock is unnecessary (and unsupported) there.
func (s *Store) forUpdate(tx *gorm.DB) *gorm.DB {
	if s.db.Dialector.Name() == "sqlite" {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

// GetLicenseByKeyForUpdate locks the license row for the remainder of the
// transaction. Serializes concurrent count-then-insert sequences against
// the same license so the device quota cannot be oversubscribed.
func (s *Store) GetLicenseByKeyForUpdate(ctx context.Context, licenseKey string) (*License, error) {
	var lic License
	err := s.forUpdate(s.db.WithContext(ctx)).
		Where("license_key = ?", licenseKey).
		First(&lic).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &lic, nil
}

// CreateLicense inserts a new license record
func (s *Store) CreateLicense(ctx context.Context, lic *License) error {
	return s.db.WithContext(ctx).Create(lic).Error
}

// UpdateLicense applies a partial field set to the given license.
// Keys are column names; nil values clear nullable columns.
func (s *Store) UpdateLicense(ctx context.Context, licenseID uint, updates map[string]interface{}) error {
	if len(updates) == 0 {
		return nil
	}
	updates["updated_at"] = time.Now().UTC()
	return s.db.WithContext(ctx).
		Model(&License{}).
		Where("id = ?", licenseID).
		Updates(updates).Error
}

// DeleteLicense removes a license and its activations in one unit.
// The activation delete is explicit rather than relying on FK cascade.
func (s *Store) DeleteLicense(ctx context.Context, licenseID uint) error {
	if err := s.db.WithContext(ctx).
		Where("license_id = ?", licenseID).
		Delete(&DeviceActivation{}).Error; err != nil {
		return err
	}
	return s.db.WithContext(ctx).Delete(&License{}, licenseID).Error
}

// GetActivation returns the binding for (license, device), or ErrNotFound
func (s *Store) GetActivation(ctx context.Context, licenseID uint, deviceID string) (*DeviceActivation, error) {
	var act DeviceActivation
	err := s.db.WithContext(ctx).
		Where("license_id = ? AND device_id = ?", licenseID, deviceID).
		First(&act).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &act, nil
}

// CountActivations returns the number of devices bound to a license
func (s *Store) CountActivations(ctx context.Context, licenseID uint) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&DeviceActivation{}).
		Where("license_id = ?", licenseID).
		Count(&count).Error
	return count, err
}

// CreateActivation inserts a new device binding
func (s *Store) CreateActivation(ctx context.Context, act *DeviceActivation) error {
	return s.db.WithContext(ctx).Create(act).Error
}

// TouchActivation refreshes the liveness timestamp of a binding
func (s *Store) TouchActivation(ctx context.Context, activationID uint, seenAt time.Time) error {
	return s.db.WithContext(ctx).
		Model(&DeviceActivation{}).
		Where("id = ?", activationID).
		Update("last_seen_at", seenAt).Error
}

// ListActivations returns all bindings for a license ordered by activation time
func (s *Store) ListActivations(ctx context.Context, licenseID uint) ([]DeviceActivation, error) {
	var acts []DeviceActivation
	err := s.db.WithContext(ctx).
		Where("license_id = ?", licenseID).
		Order("activated_at ASC").
		Find(&acts).Error
	return acts, err
}

// DeleteActivation removes the (license, device) binding if present.
// Returns the number of rows removed; zero is not an error.
func (s *Store) DeleteActivation(ctx context.Context, licenseID uint, deviceID string) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("license_id = ? AND device_id = ?", licenseID, deviceID).
		Delete(&DeviceActivation{})
	return result.RowsAffected, result.Error
}

// GetActivationCode returns the code record, or ErrNotFound
func (s *Store) GetActivationCode(ctx context.Context, code string) (*ActivationCode, error) {
	var ac ActivationCode
	err := s.db.WithContext(ctx).
		Where("code = ?", code).
		First(&ac).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &ac, nil
}

// GetActivationCodeForUpdate locks the code row for the rest of the
// transaction, serializing concurrent redemptions of the same code.
func (s *Store) GetActivationCodeForUpdate(ctx context.Context, code string) (*ActivationCode, error) {
	var ac ActivationCode
	err := s.forUpdate(s.db.WithContext(ctx)).
		Where("code = ?", code).
		First(&ac).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &ac, nil
}

// CreateActivationCode inserts a new redeemable code
func (s *Store) CreateActivationCode(ctx context.Context, ac *ActivationCode) error {
	return s.db.WithContext(ctx).Create(ac).Error
}

// IncrementCodeUsage bumps used_count, re-validating the usage limit inside
// the same statement. Returns false when the code is already depleted.
func (s *Store) IncrementCodeUsage(ctx context.Context, codeID uint) (bool, error) {
	result := s.db.WithContext(ctx).
		Model(&ActivationCode{}).
		Where("id = ? AND (usage_limit IS NULL OR used_count < usage_limit)", codeID).
		Updates(map[string]interface{}{
			"used_count": gorm.Expr("used_count + 1"),
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// Ping verifies database connectivity
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the underlying connection pool
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// DeleteActivationCode revokes a code. Returns the number of rows removed.
func (s *Store) DeleteActivationCode(ctx context.Context, code string) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("code = ?", code).
		Delete(&ActivationCode{})
	return result.RowsAffected, result.Error
}
