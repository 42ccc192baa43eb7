package webhook

import (
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func newTestAuthenticator(secret string, now time.Time) *Authenticator {
	a := NewAuthenticator(secret)
	a.now = func() time.Time { return now }
	a.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	return a
}

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"action":"create","type":"ProjectUpdate","data":{"id":"U1"}}`)
	a := newTestAuthenticator("s3cret", time.Now())
	good := Sign("s3cret", body)

	tests := []struct {
		name    string
		body    []byte
		sig     string
		wantErr bool
	}{
		{"valid", body, good, false},
		{"uppercase hex", body, strings.ToUpper(good), false},
		{"missing header", body, "", true},
		{"wrong secret", body, Sign("other", body), true},
		{"body altered", append([]byte(" "), body...), good, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := a.VerifySignature(tt.body, tt.sig)
			if (err != nil) != tt.wantErr {
				t.Fatalf("VerifySignature() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				var authErr *AuthError
				if !errors.As(err, &authErr) {
					t.Errorf("error %T is not *AuthError", err)
				}
			}
		})
	}
}

func TestVerifySignature_EmptySecretSkips(t *testing.T) {
	a := newTestAuthenticator("", time.Now())
	if !a.Insecure() {
		t.Fatal("expected insecure authenticator")
	}
	if err := a.VerifySignature([]byte("anything"), ""); err != nil {
		t.Errorf("VerifySignature with empty secret: %v", err)
	}
}

func TestCheckTimestamp(t *testing.T) {
	now := time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)
	a := newTestAuthenticator("s", now)

	tests := []struct {
		name    string
		ts      int64
		wantErr bool
	}{
		{"absent", 0, false},
		{"exact", now.UnixMilli(), false},
		{"30s old", now.Add(-30 * time.Second).UnixMilli(), false},
		{"59s in future", now.Add(59 * time.Second).UnixMilli(), false},
		{"61s old", now.Add(-61 * time.Second).UnixMilli(), true},
		{"2m in future", now.Add(2 * time.Minute).UnixMilli(), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := a.CheckTimestamp(tt.ts)
			if (err != nil) != tt.wantErr {
				t.Errorf("CheckTimestamp(%d) error = %v, wantErr %v", tt.ts, err, tt.wantErr)
			}
		})
	}
}

func TestPackageLevelChecks(t *testing.T) {
	body := []byte(`{}`)
	if err := VerifySignature("k", body, Sign("k", body)); err != nil {
		t.Errorf("VerifySignature: %v", err)
	}
	if err := VerifySignature("k", body, "deadbeef"); err == nil {
		t.Error("VerifySignature accepted a bad signature")
	}
	now := time.UnixMilli(1736510400000)
	if err := CheckTimestamp(now.Add(-2*time.Minute).UnixMilli(), now); err == nil {
		t.Error("CheckTimestamp accepted a stale delivery")
	}
}
