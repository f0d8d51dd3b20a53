package auth

import (
	"testing"
	"time"
)

func TestTokenIssuer_PairAndParse(t *testing.T) {
	issuer := NewTokenIssuer("secret", time.Minute, time.Hour)

	access, refresh, err := issuer.Pair(42)
	if err != nil {
		t.Fatalf("pair: %v", err)
	}
	uid, err := issuer.ParseAccess(access)
	if err != nil || uid != 42 {
		t.Fatalf("parse access: uid=%d err=%v", uid, err)
	}
	if _, err := issuer.ParseAccess(refresh); err == nil {
		t.Fatalf("refresh token must not pass as access token")
	}

	fresh, err := issuer.Refresh(refresh)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if uid, err := issuer.ParseAccess(fresh); err != nil || uid != 42 {
		t.Fatalf("parse refreshed: uid=%d err=%v", uid, err)
	}
	if _, err := issuer.Refresh(access); err == nil {
		t.Fatalf("access token must not be accepted for refresh")
	}
}

func TestTokenIssuer_RejectsExpiredAndForeign(t *testing.T) {
	issuer := NewTokenIssuer("secret", time.Minute, time.Hour)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	issuer.now = func() time.Time { return now }

	access, _, err := issuer.Pair(1)
	if err != nil {
		t.Fatalf("pair: %v", err)
	}
	now = now.Add(2 * time.Minute)
	if _, err := issuer.ParseAccess(access); err != ErrInvalidToken {
		t.Fatalf("expected expired token to fail, got %v", err)
	}

	other := NewTokenIssuer("other", time.Minute, time.Hour)
	foreign, _, err := other.Pair(1)
	if err != nil {
		t.Fatalf("pair: %v", err)
	}
	if _, err := NewTokenIssuer("secret", time.Minute, time.Hour).ParseAccess(foreign); err != ErrInvalidToken {
		t.Fatalf("expected signature mismatch to fail, got %v", err)
	}
}
