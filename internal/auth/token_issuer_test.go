package auth

import (
	"context"
	"testing"
	"time"
)

func TestIssueDeviceTokenRoundTrip(t *testing.T) {
	clockTime := time.Unix(1700000000, 0).UTC()
	issuer := NewTokenIssuer(TokenIssuerConfig{
		SigningSecret: []byte("test-secret"),
		Issuer:        "pathshala-sync",
		Audience:      "pathshala-authority",
		TokenTTL:      time.Hour,
		Clock:         func() time.Time { return clockTime },
	})

	token, expiresIn, err := issuer.IssueDeviceToken(context.Background(), "device-1")
	if err != nil {
		t.Fatalf("unexpected issue error: %v", err)
	}
	if expiresIn != 3600 {
		t.Fatalf("expected 3600s expiry, got %d", expiresIn)
	}

	deviceID, err := issuer.ValidateToken(token)
	if err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
	if deviceID != "device-1" {
		t.Fatalf("expected device-1, got %q", deviceID)
	}
}

func TestIssueDeviceTokenRequiresDeviceID(t *testing.T) {
	issuer := NewTokenIssuer(TokenIssuerConfig{
		SigningSecret: []byte("test-secret"),
		Issuer:        "pathshala-sync",
		Audience:      "pathshala-authority",
	})

	if _, _, err := issuer.IssueDeviceToken(context.Background(), "  "); err == nil {
		t.Fatalf("expected error for empty device id")
	}
}

func TestValidateTokenRejectsExpired(t *testing.T) {
	issuedAt := time.Unix(1700000000, 0).UTC()
	issuer := NewTokenIssuer(TokenIssuerConfig{
		SigningSecret: []byte("test-secret"),
		Issuer:        "pathshala-sync",
		Audience:      "pathshala-authority",
		TokenTTL:      time.Minute,
		Clock:         func() time.Time { return issuedAt },
	})

	token, _, err := issuer.IssueDeviceToken(context.Background(), "device-1")
	if err != nil {
		t.Fatalf("unexpected issue error: %v", err)
	}

	validator := NewTokenIssuer(TokenIssuerConfig{
		SigningSecret: []byte("test-secret"),
		Issuer:        "pathshala-sync",
		Audience:      "pathshala-authority",
		Clock:         func() time.Time { return issuedAt.Add(2 * time.Minute) },
	})

	if _, err := validator.ValidateToken(token); err == nil {
		t.Fatalf("expected expired token to be rejected")
	}
}

func TestValidateTokenRejectsWrongAudience(t *testing.T) {
	issuer := NewTokenIssuer(TokenIssuerConfig{
		SigningSecret: []byte("test-secret"),
		Issuer:        "pathshala-sync",
		Audience:      "some-other-audience",
	})

	token, _, err := issuer.IssueDeviceToken(context.Background(), "device-1")
	if err != nil {
		t.Fatalf("unexpected issue error: %v", err)
	}

	validator := NewTokenIssuer(TokenIssuerConfig{
		SigningSecret: []byte("test-secret"),
		Issuer:        "pathshala-sync",
		Audience:      "pathshala-authority",
	})

	if _, err := validator.ValidateToken(token); err == nil {
		t.Fatalf("expected audience mismatch to be rejected")
	}
}
