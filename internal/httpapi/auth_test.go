package httpapi

import (
	"context"
	"strings"
	"testing"
	"time"

	"shopledger/backend/internal/domain"
	"shopledger/backend/internal/store/memory"
)

func TestLoginAndParseToken(t *testing.T) {
	repo := memory.NewSeeded()
	manager := NewAuthManager("test-secret-key", time.Hour, repo)

	resp, err := manager.Login(domain.LoginRequest{Username: "owner", Password: "owner123"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if resp.Role != domain.RoleOwner {
		t.Fatalf("expected role owner, got %s", resp.Role)
	}

	actor, err := manager.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token failed: %v", err)
	}
	if actor.Username != "owner" || actor.Role != domain.RoleOwner {
		t.Fatalf("unexpected actor: %+v", actor)
	}
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	repo := memory.NewSeeded()
	manager := NewAuthManager("test-secret-key", time.Hour, repo)

	if _, err := manager.Login(domain.LoginRequest{Username: "owner", Password: "nope"}); err == nil {
		t.Fatalf("expected login to fail with wrong password")
	}
	if _, err := manager.Login(domain.LoginRequest{Username: "ghost", Password: "owner123"}); err == nil {
		t.Fatalf("expected login to fail for unknown user")
	}
}

func TestLoginPicksUpNewlyProvisionedUsers(t *testing.T) {
	repo := memory.NewSeeded()
	manager := NewAuthManager("test-secret-key", time.Hour, repo)

	hash, err := hashPassword("fresh-pass")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	err = repo.CreateUser(context.Background(), domain.UserAccount{
		Username:  "newhire",
		Password:  hash,
		Role:      domain.RoleEmployee,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	resp, err := manager.Login(domain.LoginRequest{Username: "newhire", Password: "fresh-pass"})
	if err != nil {
		t.Fatalf("expected login for user provisioned after startup: %v", err)
	}
	if resp.Role != domain.RoleEmployee {
		t.Fatalf("expected employee role, got %s", resp.Role)
	}
}

func TestBootstrapUpgradesPlainTextPasswords(t *testing.T) {
	repo := memory.NewSeeded()
	err := repo.CreateUser(context.Background(), domain.UserAccount{
		Username:  "legacy",
		Password:  "plain-secret",
		Role:      domain.RoleEmployee,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	manager := NewAuthManager("test-secret-key", time.Hour, repo)
	if _, err := manager.Login(domain.LoginRequest{Username: "legacy", Password: "plain-secret"}); err != nil {
		t.Fatalf("expected login with upgraded password: %v", err)
	}

	users, err := repo.ListUsers(context.Background())
	if err != nil {
		t.Fatalf("list users: %v", err)
	}
	for _, user := range users {
		if user.Username == "legacy" {
			if !strings.HasPrefix(user.Password, "$2") {
				t.Fatalf("expected stored password upgraded to bcrypt, got %q", user.Password)
			}
			return
		}
	}
	t.Fatalf("legacy user missing from store")
}

func TestParseTokenRejectsGarbage(t *testing.T) {
	manager := NewAuthManager("test-secret-key", time.Hour, memory.NewSeeded())

	if _, err := manager.ParseToken("not-a-token"); err == nil {
		t.Fatalf("expected garbage token to be rejected")
	}

	other := NewAuthManager("another-secret", time.Hour, memory.NewSeeded())
	resp, err := other.Login(domain.LoginRequest{Username: "owner", Password: "owner123"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if _, err := manager.ParseToken(resp.AccessToken); err == nil {
		t.Fatalf("expected token signed with another secret to be rejected")
	}
}
