package api

import (
	"errors"
	"strings"
	"testing"
)

func TestBearerTokenFromStringSuccess(t *testing.T) {
	token, err := bearerTokenFromString("Bearer header.payload.signature")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(token) != "header.payload.signature" {
		t.Fatalf("unexpected token content: %s", string(token))
	}
}

func TestBearerTokenFromStringTrimsSpaces(t *testing.T) {
	token, err := bearerTokenFromString("  Bearer a.b.c  ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(token) != "a.b.c" {
		t.Fatalf("unexpected token content: %s", string(token))
	}
}

func TestBearerTokenFromStringMissing(t *testing.T) {
	for _, raw := range []string{"", "   ", "Basic dXNlcjpwdw==", "Bearer"} {
		if _, err := bearerTokenFromString(raw); !errors.Is(err, errMissingAuthorization) {
			t.Fatalf("expected missing credential error for %q, got %v", raw, err)
		}
	}
}

func TestBearerTokenFromStringMalformed(t *testing.T) {
	if _, err := bearerTokenFromString("Bearer notajwt"); !errors.Is(err, ErrTokenMalformed) {
		t.Fatalf("expected malformed error, got %v", err)
	}
	header := "Bearer " + strings.Repeat(".", 1000)
	if _, err := bearerTokenFromString(header); !errors.Is(err, ErrTokenMalformed) {
		t.Fatalf("expected malformed error, got %v", err)
	}
}
