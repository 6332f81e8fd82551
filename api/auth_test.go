package api

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"taskman/domain"
)

func newTestAuth(t *testing.T) *Auth {
	t.Helper()
	auth, err := NewAuth([]byte("test-secret"))
	if err != nil {
		t.Fatalf("NewAuth: %v", err)
	}
	return auth
}

func TestNewAuthRejectsEmptySecret(t *testing.T) {
	if _, err := NewAuth(nil); err == nil {
		t.Fatal("expected error for empty secret")
	}
	if _, err := NewAuth([]byte{}); err == nil {
		t.Fatal("expected error for empty secret")
	}
}

func TestIssueAndVerifyRoundTrip(t *testing.T) {
	auth := newTestAuth(t)

	token, err := auth.IssueToken("user-1", "a@b.com", domain.RoleUser)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	ident, err := auth.IdentityFromBearer([]byte(token))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if ident.SubjectID != "user-1" || ident.Email != "a@b.com" || ident.Role != domain.RoleUser {
		t.Fatalf("unexpected identity: %+v", ident)
	}
	if ident.ExpiresAt.Sub(ident.IssuedAt) != time.Hour {
		t.Fatalf("unexpected validity window: %v", ident.ExpiresAt.Sub(ident.IssuedAt))
	}
}

func TestVerifyExpiredToken(t *testing.T) {
	auth := newTestAuth(t)

	auth.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	token, err := auth.IssueToken("user-1", "a@b.com", domain.RoleUser)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	auth.now = time.Now

	if _, err := auth.IdentityFromBearer([]byte(token)); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestVerifyWrongSignature(t *testing.T) {
	other, err := NewAuth([]byte("other-secret"))
	if err != nil {
		t.Fatalf("NewAuth: %v", err)
	}
	token, err := other.IssueToken("user-1", "a@b.com", domain.RoleUser)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	auth := newTestAuth(t)
	if _, err := auth.IdentityFromBearer([]byte(token)); !errors.Is(err, ErrTokenSignature) {
		t.Fatalf("expected ErrTokenSignature, got %v", err)
	}
}

func TestVerifyExpiredWithValidSignature(t *testing.T) {
	// An expired token with a valid signature must still be rejected as
	// expired; expiry is checked after parsing, not trusted to the parser.
	auth := newTestAuth(t)
	claims := jwt.MapClaims{
		"sub":   "user-1",
		"email": "a@b.com",
		"role":  "user",
		"iat":   time.Now().Add(-2 * time.Hour).Unix(),
		"exp":   time.Now().Add(-time.Hour).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := auth.IdentityFromBearer([]byte(token)); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestVerifyGarbageToken(t *testing.T) {
	auth := newTestAuth(t)
	if _, err := auth.IdentityFromBearer([]byte("not.a.jwt")); !errors.Is(err, ErrTokenMalformed) {
		t.Fatalf("expected ErrTokenMalformed, got %v", err)
	}
}

func TestVerifyRejectsUnknownRole(t *testing.T) {
	auth := newTestAuth(t)
	claims := jwt.MapClaims{
		"sub":  "user-1",
		"role": "owner",
		"iat":  time.Now().Unix(),
		"exp":  time.Now().Add(time.Hour).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := auth.IdentityFromBearer([]byte(token)); !errors.Is(err, ErrTokenMalformed) {
		t.Fatalf("expected ErrTokenMalformed, got %v", err)
	}
}

func TestVerifyRejectsMissingExpiry(t *testing.T) {
	auth := newTestAuth(t)
	claims := jwt.MapClaims{"sub": "user-1", "role": "user"}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := auth.IdentityFromBearer([]byte(token)); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}
