package security

import (
	"errors"
	"testing"
	"time"
)

func TestIssueAndVerifyRoundTrip(t *testing.T) {
	manager := TokenManager{Secret: []byte("test-secret"), TTL: time.Hour}

	token, err := manager.Issue("user-1", time.Now())
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	subject, err := manager.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if subject != "user-1" {
		t.Fatalf("expected subject user-1, got %q", subject)
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	manager := TokenManager{Secret: []byte("test-secret"), TTL: time.Minute}

	token, err := manager.Issue("user-1", time.Now().Add(-2*time.Minute))
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := manager.Verify(token); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	issuer := TokenManager{Secret: []byte("secret-a"), TTL: time.Hour}
	verifier := TokenManager{Secret: []byte("secret-b"), TTL: time.Hour}

	token, err := issuer.Issue("user-1", time.Now())
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := verifier.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestVerifyRejectsGarbage(t *testing.T) {
	manager := TokenManager{Secret: []byte("test-secret")}
	if _, err := manager.Verify("not-a-token"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}
