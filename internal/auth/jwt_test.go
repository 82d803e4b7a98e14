package auth

import (
	"testing"
	"time"
)

func TestSignAndParse(t *testing.T) {
	tok, err := SignJWT("01HSESSION", "s3cret", time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	sid, err := ParseJWT(tok, "s3cret")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if sid != "01HSESSION" {
		t.Fatalf("expected subject 01HSESSION, got %q", sid)
	}
}

func TestParseRejects(t *testing.T) {
	tok, _ := SignJWT("01HSESSION", "s3cret", time.Hour)
	if _, err := ParseJWT(tok, "other"); err == nil {
		t.Fatalf("expected wrong secret to fail")
	}

	expired, _ := SignJWT("01HSESSION", "s3cret", -time.Minute)
	if _, err := ParseJWT(expired, "s3cret"); err == nil {
		t.Fatalf("expected expired token to fail")
	}

	if _, err := ParseJWT("not-a-token", "s3cret"); err == nil {
		t.Fatalf("expected garbage to fail")
	}
}
