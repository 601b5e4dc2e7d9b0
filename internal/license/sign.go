package license

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"
)

// Signer computes keyed message authentication codes over canonicalized
// license payloads. The secret is read-only process configuration, safe
// for unsynchronized concurrent use.
type Signer struct {
	secret []byte
}

// NewSigner creates a signer with the process-wide secret key
func NewSigner(secret string) *Signer {
	return &Signer{secret: []byte(secret)}
}

// Sign canonicalizes the payload and returns the URL-safe base64 encoding
// of its HMAC-SHA-256 digest.
func (s *Signer) Sign(p Payload) (string, error) {
	canonical, err := canonicalize(p)
	if err != nil {
		return "", fmt.Errorf("failed to canonicalize payload: %w", err)
	}
	mac := hmac.New(sha256.New, s.secret)
	mac.Write(canonical)
	return base64.URLEncoding.EncodeToString(mac.Sum(nil)), nil
}

// Verify recomputes the signature over a fresh canonicalization and
// compares in constant time.
func (s *Signer) Verify(p Payload, signature string) bool {
	expected, err := s.Sign(p)
	if err != nil {
		return false
	}
	return hmac.Equal([]byte(expected), []byte(signature))
}

// canonicalize renders the payload as a deterministic byte sequence:
// keys ordered lexicographically, timestamps as UTC RFC 3339 strings,
// no insignificant whitespace. encoding/json sorts map keys, which gives
// the ordering guarantee.
func canonicalize(p Payload) ([]byte, error) {
	fields := map[string]interface{}{
		"license_key":     p.LicenseKey,
		"user_type":       p.UserType,
		"max_devices":     p.MaxDevices,
		"latest_version":  p.LatestVersion,
		"minimum_version": p.MinimumVersion,
		"download_url":    p.DownloadURL,
		"issued_at":       p.IssuedAt.UTC().Format(time.RFC3339),
		"expire_at":       nil,
	}
	if p.ExpireAt != nil {
		fields["expire_at"] = p.ExpireAt.UTC().Format(time.RFC3339)
	}
	if p.TrialRemainingDays != nil {
		fields["trial_remaining_days"] = *p.TrialRemainingDays
	}
	return json.Marshal(fields)
}
