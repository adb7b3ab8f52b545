package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"rewardkit/core"
)

func TestStaticTokens(t *testing.T) {
	p := StaticTokens{"secret-1": "tech-1"}

	user, err := p.Resolve(context.Background(), "secret-1")
	if err != nil || user != "tech-1" {
		t.Fatalf("got %v %v", user, err)
	}
	if _, err := p.Resolve(context.Background(), "wrong"); !errors.Is(err, core.ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
	if _, err := p.Resolve(context.Background(), ""); !errors.Is(err, core.ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated for empty token, got %v", err)
	}
}

func TestJWTRoundTrip(t *testing.T) {
	j := JWT{Secret: []byte("test-secret"), Issuer: "rewardkit"}

	token, err := j.Sign("tech-1", time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	user, err := j.Resolve(context.Background(), token)
	if err != nil || user != "tech-1" {
		t.Fatalf("got %v %v", user, err)
	}
}

func TestJWTRejectsExpired(t *testing.T) {
	j := JWT{Secret: []byte("test-secret")}
	token, err := j.Sign("tech-1", -time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := j.Resolve(context.Background(), token); !errors.Is(err, core.ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}

func TestJWTRejectsWrongSecret(t *testing.T) {
	signer := JWT{Secret: []byte("key-a")}
	token, err := signer.Sign("tech-1", time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	verifier := JWT{Secret: []byte("key-b")}
	if _, err := verifier.Resolve(context.Background(), token); !errors.Is(err, core.ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}

func TestJWTRejectsWrongIssuer(t *testing.T) {
	signer := JWT{Secret: []byte("key"), Issuer: "someone-else"}
	token, err := signer.Sign("tech-1", time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	verifier := JWT{Secret: []byte("key"), Issuer: "rewardkit"}
	if _, err := verifier.Resolve(context.Background(), token); !errors.Is(err, core.ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}
