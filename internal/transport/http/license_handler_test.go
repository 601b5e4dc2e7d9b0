package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"licensed/internal/license"
	"licensed/internal/store"
	"licensed/pkg/contracts/domain"
)

var handlerTestNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type handlerClock struct{ t time.Time }

func (c handlerClock) Now() time.Time { return c.t }

func newTestServer(t *testing.T) (*httptest.Server, *license.Service, *store.Store) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Discard,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	st := store.New(db)
	require.NoError(t, st.AutoMigrate())

	signer := license.NewSigner("handler-test-secret")
	issuer := license.NewIssuer(signer, license.Defaults{
		LatestVersion:  "1.4.0",
		MinimumVersion: "1.1.0",
		DownloadURL:    "https://example.com/downloads/latest",
	}, handlerClock{t: handlerTestNow})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := license.NewService(st, issuer, 15, handlerClock{t: handlerTestNow}, logger)

	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))
		r.Mount("/license", NewLicenseHandler(svc, nil, logger).Routes())
		r.Mount("/updates", NewUpdateHandler(svc, nil, logger).Routes())
	})
	r.Get("/healthz", NewHealthHandler(st, logger).HealthCheck)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, svc, st
}

func postJSON(t *testing.T, url string, body interface{}) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response, out interface{}) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func TestTrialStartEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/license/trial/start", domain.TrialStartRequest{
		DeviceID:   "device-0001",
		DeviceName: "workstation",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body domain.LicenseResponse
	decodeJSON(t, resp, &body)

	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "trial-device-0001", body.License.Payload.LicenseKey)
	assert.Equal(t, "trial", body.License.Payload.UserType)
	assert.Equal(t, 1, body.License.Payload.MaxDevices)
	assert.NotEmpty(t, body.License.Signature)
	require.NotNil(t, body.License.Payload.TrialRemainingDays)
	assert.Equal(t, 15, *body.License.Payload.TrialRemainingDays)
}

func TestTrialStartValidation(t *testing.T) {
	srv, _, _ := newTestServer(t)

	// device_id below the minimum length
	resp := postJSON(t, srv.URL+"/api/license/trial/start", domain.TrialStartRequest{
		DeviceID: "ab",
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var problem map[string]interface{}
	decodeJSON(t, resp, &problem)
	assert.Equal(t, "/errors/invalid-request", problem["type"])
}

func TestActivateEndpoint(t *testing.T) {
	srv, svc, _ := newTestServer(t)
	ctx := context.Background()

	_, err := svc.CreateLicense(ctx, license.CreateLicenseParams{
		LicenseKey: "PRO-KEY-01",
		UserType:   store.UserTypePro,
		MaxDevices: 1,
	})
	require.NoError(t, err)

	resp := postJSON(t, srv.URL+"/api/license/activate", domain.ActivateRequest{
		LicenseKey: "PRO-KEY-01",
		DeviceID:   "device-0001",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body domain.LicenseResponse
	decodeJSON(t, resp, &body)
	assert.Equal(t, "pro", body.License.Payload.UserType)

	// Second device exceeds the quota
	resp = postJSON(t, srv.URL+"/api/license/activate", domain.ActivateRequest{
		LicenseKey: "PRO-KEY-01",
		DeviceID:   "device-0002",
	})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	var problem map[string]interface{}
	decodeJSON(t, resp, &problem)
	assert.Equal(t, "device_limit_exceeded", problem["error_code"])
}

func TestActivateUnknownLicenseEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/license/activate", domain.ActivateRequest{
		LicenseKey: "does-not-exist",
		DeviceID:   "device-0001",
	})
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	var problem map[string]interface{}
	decodeJSON(t, resp, &problem)
	assert.Equal(t, "license_not_found", problem["error_code"])
}

func TestValidateEndpoint(t *testing.T) {
	srv, svc, _ := newTestServer(t)
	ctx := context.Background()

	_, err := svc.StartTrial(ctx, "device-0001", "")
	require.NoError(t, err)

	// Unknown device rejected without activating it
	resp := postJSON(t, srv.URL+"/api/license/validate", domain.ValidateRequest{
		LicenseKey: "trial-device-0001",
		DeviceID:   "device-0001",
	})
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	var problem map[string]interface{}
	decodeJSON(t, resp, &problem)
	assert.Equal(t, "activation_not_found", problem["error_code"])

	_, err = svc.Activate(ctx, "trial-device-0001", "device-0001", "")
	require.NoError(t, err)

	resp = postJSON(t, srv.URL+"/api/license/validate", domain.ValidateRequest{
		LicenseKey: "trial-device-0001",
		DeviceID:   "device-0001",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func TestProfileEndpoint(t *testing.T) {
	srv, svc, _ := newTestServer(t)
	ctx := context.Background()

	_, err := svc.StartTrial(ctx, "device-0001", "")
	require.NoError(t, err)

	resp, err := http.Get(srv.URL + "/api/license/profile?license_key=trial-device-0001")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body domain.LicenseResponse
	decodeJSON(t, resp, &body)
	assert.Equal(t, "trial-device-0001", body.License.Payload.LicenseKey)

	// Missing query parameter
	resp, err = http.Get(srv.URL + "/api/license/profile")
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestDeviceEndpoints(t *testing.T) {
	srv, svc, _ := newTestServer(t)
	ctx := context.Background()

	_, err := svc.CreateLicense(ctx, license.CreateLicenseParams{
		LicenseKey: "PRO-KEY-01",
		UserType:   store.UserTypePro,
		MaxDevices: 3,
	})
	require.NoError(t, err)
	_, err = svc.Activate(ctx, "PRO-KEY-01", "device-0001", "laptop")
	require.NoError(t, err)
	_, err = svc.Activate(ctx, "PRO-KEY-01", "device-0002", "")
	require.NoError(t, err)

	resp, err := http.Get(srv.URL + "/api/license/devices?license_key=PRO-KEY-01")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var list domain.DeviceListResponse
	decodeJSON(t, resp, &list)
	require.Len(t, list.Devices, 2)
	assert.Equal(t, "device-0001", list.Devices[0].DeviceID)
	assert.Equal(t, "laptop", list.Devices[0].DeviceName)

	// Removal returns the post-removal list
	req, err := http.NewRequest(http.MethodDelete,
		srv.URL+"/api/license/devices/device-0001?license_key=PRO-KEY-01", nil)
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	decodeJSON(t, resp, &list)
	require.Len(t, list.Devices, 1)
	assert.Equal(t, "device-0002", list.Devices[0].DeviceID)
}

func TestRedeemEndpoint(t *testing.T) {
	srv, svc, _ := newTestServer(t)
	ctx := context.Background()

	limit := 1
	_, err := svc.CreateActivationCode(ctx, license.CreateCodeParams{
		Code:       "GIFT-2025",
		UserType:   store.UserTypePro,
		MaxDevices: 3,
		UsageLimit: &limit,
	})
	require.NoError(t, err)

	resp := postJSON(t, srv.URL+"/api/license/redeem", domain.RedeemRequest{
		ActivationCode: "GIFT-2025",
		DeviceID:       "device-0001",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body domain.LicenseResponse
	decodeJSON(t, resp, &body)
	assert.Equal(t, "GIFT-2025", body.License.Payload.LicenseKey)
	assert.Equal(t, "pro", body.License.Payload.UserType)

	// Usage limit consumed
	resp = postJSON(t, srv.URL+"/api/license/redeem", domain.RedeemRequest{
		ActivationCode: "GIFT-2025",
		DeviceID:       "device-0002",
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var problem map[string]interface{}
	decodeJSON(t, resp, &problem)
	assert.Equal(t, "activation_code_depleted", problem["error_code"])
}

func TestUpdateCheckEndpoint(t *testing.T) {
	srv, svc, _ := newTestServer(t)
	ctx := context.Background()

	_, err := svc.CreateLicense(ctx, license.CreateLicenseParams{
		LicenseKey: "PRO-KEY-01",
		UserType:   store.UserTypePro,
		MaxDevices: 1,
	})
	require.NoError(t, err)
	_, err = svc.Activate(ctx, "PRO-KEY-01", "device-0001", "")
	require.NoError(t, err)

	resp := postJSON(t, srv.URL+"/api/updates/check", domain.UpdateCheckRequest{
		LicenseKey:     "PRO-KEY-01",
		DeviceID:       "device-0001",
		CurrentVersion: "1.0.0",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body domain.UpdateCheckResponse
	decodeJSON(t, resp, &body)
	assert.Equal(t, "ok", body.Status)
	assert.True(t, body.HasUpdate)
	assert.True(t, body.Mandatory)
	assert.Equal(t, "1.4.0", body.LatestVersion)
	assert.NotEmpty(t, body.License.Signature)

	// Unknown device must not pass
	resp = postJSON(t, srv.URL+"/api/updates/check", domain.UpdateCheckRequest{
		LicenseKey:     "PRO-KEY-01",
		DeviceID:       "device-9999",
		CurrentVersion: "1.4.0",
	})
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestHealthzEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body domain.HealthResponse
	decodeJSON(t, resp, &body)
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "licensed", body.Service)
}
