package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Discard,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	st := New(db)
	require.NoError(t, st.AutoMigrate())
	return st
}

func TestGetLicenseByKey(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	_, err := st.GetLicenseByKey(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	lic := &License{LicenseKey: "KEY-1", UserType: UserTypePro, MaxDevices: 2}
	require.NoError(t, st.CreateLicense(ctx, lic))
	require.NotZero(t, lic.ID)

	got, err := st.GetLicenseByKey(ctx, "KEY-1")
	require.NoError(t, err)
	assert.Equal(t, lic.ID, got.ID)
	assert.Equal(t, UserTypePro, got.UserType)
	assert.Equal(t, 2, got.MaxDevices)
}

func TestCreateLicenseDuplicateKey(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.CreateLicense(ctx, &License{LicenseKey: "DUP", MaxDevices: 1}))
	err := st.CreateLicense(ctx, &License{LicenseKey: "DUP", MaxDevices: 1})
	assert.Error(t, err)
}

func TestUpdateLicense(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	lic := &License{LicenseKey: "KEY-1", UserType: UserTypeTrial, MaxDevices: 1}
	require.NoError(t, st.CreateLicense(ctx, lic))

	expire := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, st.UpdateLicense(ctx, lic.ID, map[string]interface{}{
		"user_type":   UserTypePro,
		"expire_at":   &expire,
		"max_devices": 5,
	}))

	got, err := st.GetLicenseByKey(ctx, "KEY-1")
	require.NoError(t, err)
	assert.Equal(t, UserTypePro, got.UserType)
	assert.Equal(t, 5, got.MaxDevices)
	require.NotNil(t, got.ExpireAt)
	assert.Equal(t, expire, got.ExpireAt.UTC())

	// nil clears a nullable column
	require.NoError(t, st.UpdateLicense(ctx, lic.ID, map[string]interface{}{
		"expire_at": nil,
	}))
	got, err = st.GetLicenseByKey(ctx, "KEY-1")
	require.NoError(t, err)
	assert.Nil(t, got.ExpireAt)
}

func TestActivationLifecycle(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	lic := &License{LicenseKey: "KEY-1", MaxDevices: 3}
	require.NoError(t, st.CreateLicense(ctx, lic))

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	_, err := st.GetActivation(ctx, lic.ID, "device-a")
	assert.ErrorIs(t, err, ErrNotFound)

	first := &DeviceActivation{LicenseID: lic.ID, DeviceID: "device-a", ActivatedAt: now, LastSeenAt: now}
	require.NoError(t, st.CreateActivation(ctx, first))
	second := &DeviceActivation{LicenseID: lic.ID, DeviceID: "device-b", ActivatedAt: now.Add(time.Minute), LastSeenAt: now.Add(time.Minute)}
	require.NoError(t, st.CreateActivation(ctx, second))

	count, err := st.CountActivations(ctx, lic.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	// Ordered by activation time
	list, err := st.ListActivations(ctx, lic.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "device-a", list[0].DeviceID)
	assert.Equal(t, "device-b", list[1].DeviceID)

	require.NoError(t, st.TouchActivation(ctx, first.ID, now.Add(time.Hour)))
	got, err := st.GetActivation(ctx, lic.ID, "device-a")
	require.NoError(t, err)
	assert.Equal(t, now.Add(time.Hour), got.LastSeenAt.UTC())

	removed, err := st.DeleteActivation(ctx, lic.ID, "device-a")
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	removed, err = st.DeleteActivation(ctx, lic.ID, "device-a")
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestActivationUniquePerLicenseDevice(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	lic := &License{LicenseKey: "KEY-1", MaxDevices: 3}
	require.NoError(t, st.CreateLicense(ctx, lic))
	other := &License{LicenseKey: "KEY-2", MaxDevices: 3}
	require.NoError(t, st.CreateLicense(ctx, other))

	now := time.Now().UTC()
	require.NoError(t, st.CreateActivation(ctx, &DeviceActivation{LicenseID: lic.ID, DeviceID: "device-a", ActivatedAt: now, LastSeenAt: now}))

	// Same pair rejected
	err := st.CreateActivation(ctx, &DeviceActivation{LicenseID: lic.ID, DeviceID: "device-a", ActivatedAt: now, LastSeenAt: now})
	assert.Error(t, err)

	// Same device on a different license is fine
	require.NoError(t, st.CreateActivation(ctx, &DeviceActivation{LicenseID: other.ID, DeviceID: "device-a", ActivatedAt: now, LastSeenAt: now}))
}

func TestDeleteLicenseRemovesActivations(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	lic := &License{LicenseKey: "KEY-1", MaxDevices: 3}
	require.NoError(t, st.CreateLicense(ctx, lic))
	now := time.Now().UTC()
	require.NoError(t, st.CreateActivation(ctx, &DeviceActivation{LicenseID: lic.ID, DeviceID: "device-a", ActivatedAt: now, LastSeenAt: now}))

	require.NoError(t, st.DeleteLicense(ctx, lic.ID))

	_, err := st.GetLicenseByKey(ctx, "KEY-1")
	assert.ErrorIs(t, err, ErrNotFound)

	count, err := st.CountActivations(ctx, lic.ID)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestIncrementCodeUsage(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	limit := 2
	code := &ActivationCode{Code: "LIMITED", UserType: UserTypePro, MaxDevices: 3, UsageLimit: &limit}
	require.NoError(t, st.CreateActivationCode(ctx, code))

	ok, err := st.IncrementCodeUsage(ctx, code.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = st.IncrementCodeUsage(ctx, code.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	// Guard refuses the increment past the limit
	ok, err = st.IncrementCodeUsage(ctx, code.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := st.GetActivationCode(ctx, "LIMITED")
	require.NoError(t, err)
	assert.Equal(t, 2, got.UsedCount)
}

func TestIncrementCodeUsageUnlimited(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	code := &ActivationCode{Code: "OPEN", UserType: UserTypePro, MaxDevices: 3}
	require.NoError(t, st.CreateActivationCode(ctx, code))

	for i := 0; i < 5; i++ {
		ok, err := st.IncrementCodeUsage(ctx, code.ID)
		require.NoError(t, err)
		assert.True(t, ok)
	}

	got, err := st.GetActivationCode(ctx, "OPEN")
	require.NoError(t, err)
	assert.Equal(t, 5, got.UsedCount)
}

func TestDeleteActivationCode(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.CreateActivationCode(ctx, &ActivationCode{Code: "GONE", UserType: UserTypePro, MaxDevices: 1}))

	removed, err := st.DeleteActivationCode(ctx, "GONE")
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	removed, err = st.DeleteActivationCode(ctx, "GONE")
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestInTxRollsBackOnError(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	sentinel := errors.New("abort")
	err := st.InTx(ctx, func(tx *Store) error {
		if err := tx.CreateLicense(ctx, &License{LicenseKey: "ROLLBACK", MaxDevices: 1}); err != nil {
			return err
		}
		return sentinel
	})
	assert.ErrorIs(t, err, sentinel)

	_, err = st.GetLicenseByKey(ctx, "ROLLBACK")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestInTxCommits(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	err := st.InTx(ctx, func(tx *Store) error {
		return tx.CreateLicense(ctx, &License{LicenseKey: "COMMIT", MaxDevices: 1})
	})
	require.NoError(t, err)

	_, err = st.GetLicenseByKey(ctx, "COMMIT")
	require.NoError(t, err)
}

func TestPing(t *testing.T) {
	st := newTestStore(t)
	assert.NoError(t, st.Ping(context.Background()))
}
