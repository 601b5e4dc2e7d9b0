package license

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"licensed/internal/store"
)

func testIssuer(now time.Time) *Issuer {
	return NewIssuer(NewSigner("test-secret"), Defaults{
		LatestVersion:  "1.4.0",
		MinimumVersion: "1.1.0",
		DownloadURL:    "https://example.com/downloads/latest",
	}, fixedClock{t: now})
}

func TestIssueAppliesDefaults(t *testing.T) {
	issuer := testIssuer(testNow)

	envelope, err := issuer.Issue(&store.License{
		LicenseKey: "KEY-1",
		UserType:   store.UserTypePro,
		MaxDevices: 3,
	})
	require.NoError(t, err)

	p := envelope.Payload
	assert.Equal(t, "1.4.0", p.LatestVersion)
	assert.Equal(t, "1.1.0", p.MinimumVersion)
	assert.Equal(t, "https://example.com/downloads/latest", p.DownloadURL)
	assert.Equal(t, testNow, p.IssuedAt)
	assert.Nil(t, p.ExpireAt)
	assert.Nil(t, p.TrialRemainingDays)
}

func TestIssueHonorsPerLicenseOverrides(t *testing.T) {
	issuer := testIssuer(testNow)

	latest, minimum, url := "9.9.9", "9.0.0", "https://example.com/special"
	envelope, err := issuer.Issue(&store.License{
		LicenseKey:     "KEY-1",
		UserType:       store.UserTypePro,
		MaxDevices:     3,
		LatestVersion:  &latest,
		MinimumVersion: &minimum,
		DownloadURL:    &url,
	})
	require.NoError(t, err)

	p := envelope.Payload
	assert.Equal(t, "9.9.9", p.LatestVersion)
	assert.Equal(t, "9.0.0", p.MinimumVersion)
	assert.Equal(t, "https://example.com/special", p.DownloadURL)
}

func TestIssueFreshIssuedAt(t *testing.T) {
	lic := &store.License{LicenseKey: "KEY-1", UserType: store.UserTypePro, MaxDevices: 1}

	first, err := testIssuer(testNow).Issue(lic)
	require.NoError(t, err)
	second, err := testIssuer(testNow.Add(time.Minute)).Issue(lic)
	require.NoError(t, err)

	// Same state, different issuance instants: signatures diverge
	assert.NotEqual(t, first.Payload.IssuedAt, second.Payload.IssuedAt)
	assert.NotEqual(t, first.Signature, second.Signature)
}

func TestIssueTrialRemainingDays(t *testing.T) {
	issuer := testIssuer(testNow)

	expire := testNow.Add(10*24*time.Hour + 5*time.Hour)
	envelope, err := issuer.Issue(&store.License{
		LicenseKey: "trial-dev",
		UserType:   store.UserTypeTrial,
		ExpireAt:   &expire,
		MaxDevices: 1,
	})
	require.NoError(t, err)

	require.NotNil(t, envelope.Payload.TrialRemainingDays)
	assert.Equal(t, 10, *envelope.Payload.TrialRemainingDays)
	require.NotNil(t, envelope.Payload.ExpireAt)
	assert.Equal(t, time.UTC, envelope.Payload.ExpireAt.Location())
}
