// Package webhook authenticates and decodes inbound Linear webhook deliveries.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw request body.
const SignatureHeader = "Linear-Signature"

// DefaultReplayWindow bounds how far a delivery timestamp may drift from now.
const DefaultReplayWindow = 60 * time.Second

// AuthError rejects a delivery before any processing.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string {
	return "webhook authentication failed: " + e.Reason
}

// Authenticator checks delivery signatures and timestamps.
//
// An empty secret disables signature verification. This exists for local
// development only; every skipped check is logged as a warning.
type Authenticator struct {
	secret string
	window time.Duration
	now    func() time.Time
	logger *slog.Logger
}

// NewAuthenticator creates an Authenticator for secret.
func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{
		secret: secret,
		window: DefaultReplayWindow,
		now:    time.Now,
		logger: slog.Default(),
	}
}

// Insecure reports whether signature verification is disabled.
func (a *Authenticator) Insecure() bool {
	return a.secret == ""
}

// Sign returns the hex HMAC-SHA256 of body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks signature against the HMAC of the exact raw body
// bytes using a constant-time comparison. An empty secret skips the check.
func VerifySignature(secret string, body []byte, signature string) error {
	if secret == "" {
		return nil
	}
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return &AuthError{Reason: "missing " + SignatureHeader + " header"}
	}
	expected := Sign(secret, body)
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(signature))) {
		return &AuthError{Reason: "signature mismatch"}
	}
	return nil
}

// CheckTimestamp rejects a millisecond timestamp more than DefaultReplayWindow
// away from now. Zero means the field was absent and is accepted.
func CheckTimestamp(tsMillis int64, now time.Time) error {
	return checkTimestamp(tsMillis, now, DefaultReplayWindow)
}

func checkTimestamp(tsMillis int64, now time.Time, window time.Duration) error {
	if tsMillis == 0 {
		return nil
	}
	diff := now.Sub(time.UnixMilli(tsMillis))
	if diff < 0 {
		diff = -diff
	}
	if diff > window {
		return &AuthError{Reason: fmt.Sprintf("timestamp outside replay window (%.1fs)", diff.Seconds())}
	}
	return nil
}

// VerifySignature verifies a delivery with the configured secret, warning
// when verification is disabled.
func (a *Authenticator) VerifySignature(body []byte, signature string) error {
	if a.secret == "" {
		a.logger.Warn("webhook secret not configured, skipping signature verification")
	}
	return VerifySignature(a.secret, body, signature)
}

// CheckTimestamp checks a delivery timestamp against the authenticator's clock.
func (a *Authenticator) CheckTimestamp(tsMillis int64) error {
	if tsMillis == 0 {
		a.logger.Debug("webhook timestamp missing, accepting delivery")
	}
	return checkTimestamp(tsMillis, a.now(), a.window)
}
