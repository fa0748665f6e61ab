package utils

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestNewAccessToken(t *testing.T) {
	tok, err := NewAccessToken("k", "user-1", "CUSTOMER", time.Hour)
	if err != nil {
		t.Fatalf("new token: %v", err)
	}
	parsed, err := jwt.Parse(tok.Token, func(*jwt.Token) (interface{}, error) { return []byte("k"), nil })
	if err != nil || !parsed.Valid {
		t.Fatalf("parse: %v", err)
	}
	claims := parsed.Claims.(jwt.MapClaims)
	if sub, _ := claims.GetSubject(); sub != "user-1" {
		t.Fatalf("sub = %q, want user-1", sub)
	}
	if claims["role"] != "CUSTOMER" {
		t.Fatalf("role = %v, want CUSTOMER", claims["role"])
	}
	if time.Until(tok.Exp) <= 59*time.Minute {
		t.Fatalf("exp = %s, want about an hour from now", tok.Exp)
	}
}

func TestNewAccessToken_Rejects(t *testing.T) {
	if _, err := NewAccessToken("", "u", "CUSTOMER", time.Hour); err == nil {
		t.Fatalf("empty secret accepted")
	}
	if _, err := NewAccessToken("k", "", "CUSTOMER", time.Hour); err == nil {
		t.Fatalf("empty subject accepted")
	}
}
