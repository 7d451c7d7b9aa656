package jwt

import (
	"testing"
	"time"
)

func TestGenerateAndParseRoundTrip(t *testing.T) {
	id := Identity{UserID: "u-1", Username: "ada", Email: "ada@example.com"}
	token, err := GenerateToken(id, "secret", time.Minute)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	claims, err := Parse(token, "secret")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got := claims.Identity(); got != id {
		t.Fatalf("unexpected identity: %+v", got)
	}
}

func TestParseRejectsWrongSecret(t *testing.T) {
	token, err := GenerateToken(Identity{UserID: "u-1"}, "secret", time.Minute)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := Parse(token, "other"); err == nil {
		t.Fatalf("expected signature error")
	}
}

func TestParseRejectsExpiredToken(t *testing.T) {
	token, err := GenerateToken(Identity{UserID: "u-1"}, "secret", -time.Minute)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := Parse(token, "secret"); err == nil {
		t.Fatalf("expected expiry error")
	}
}

func TestParseRejectsMissingUser(t *testing.T) {
	token, err := GenerateToken(Identity{}, "secret", time.Minute)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := Parse(token, "secret"); err == nil {
		t.Fatalf("expected missing user error")
	}
}
