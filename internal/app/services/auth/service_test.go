package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	domainuser "bazaar/internal/domain/user"
	"bazaar/internal/infra/security"
	"bazaar/internal/infra/storage/memory"
)

func newService() *Service {
	return &Service{
		Users:     memory.NewUserRepository(),
		Passwords: security.BcryptHasher{Cost: 4},
		Tokens:    security.TokenManager{Secret: []byte("test-secret"), TTL: time.Hour},
	}
}

func TestRegisterThenLogin(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	registered, err := svc.Register(ctx, RegisterParams{
		Email:    "Alice@Example.com",
		Name:     "Alice",
		Password: "correct horse",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if registered.Token == "" {
		t.Fatalf("register returned no token")
	}
	if registered.User.Email != "alice@example.com" {
		t.Fatalf("email not normalized: %q", registered.User.Email)
	}

	loggedIn, err := svc.Login(ctx, LoginParams{Email: "alice@example.com", Password: "correct horse"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if loggedIn.User.ID != registered.User.ID {
		t.Fatalf("login resolved a different user")
	}
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	svc := newService()
	ctx := context.Background()
	if _, err := svc.Register(ctx, RegisterParams{Email: "a@b.com", Name: "A", Password: "correct horse"}); err != nil {
		t.Fatalf("register: %v", err)
	}

	if _, err := svc.Login(ctx, LoginParams{Email: "a@b.com", Password: "wrong"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := svc.Login(ctx, LoginParams{Email: "nobody@b.com", Password: "correct horse"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown email, got %v", err)
	}
}

func TestRegisterRejectsShortPassword(t *testing.T) {
	svc := newService()
	if _, err := svc.Register(context.Background(), RegisterParams{Email: "a@b.com", Name: "A", Password: "short"}); !errors.Is(err, ErrPasswordTooShort) {
		t.Fatalf("expected ErrPasswordTooShort, got %v", err)
	}
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	svc := newService()
	ctx := context.Background()
	if _, err := svc.Register(ctx, RegisterParams{Email: "a@b.com", Name: "A", Password: "correct horse"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := svc.Register(ctx, RegisterParams{Email: "A@B.com", Name: "A2", Password: "correct horse"}); !errors.Is(err, domainuser.ErrEmailAlreadyUsed) {
		t.Fatalf("expected ErrEmailAlreadyUsed, got %v", err)
	}
}
