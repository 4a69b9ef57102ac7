package auth

import (
	"context"
	"testing"

	"github.com/demulla/servicedesk/internal/model"
)

// TestBootstrap_SeedsWhenEmpty は管理者が0件の場合にデフォルト管理者が作成されることを検証する。
func TestBootstrap_SeedsWhenEmpty(t *testing.T) {
	var created *model.AdminUser
	adminRepo := &mockAdminRepo{
		countFn: func(ctx context.Context) (int, error) { return 0, nil },
		createFn: func(ctx context.Context, admin *model.AdminUser) error {
			created = admin
			return nil
		},
	}

	cfg := BootstrapConfig{
		Username: "admin",
		Password: "admin123",
		Email:    "admin@demulla.local",
	}
	if err := Bootstrap(context.Background(), adminRepo, cfg); err != nil {
		t.Fatalf("Bootstrap returned error: %v", err)
	}

	if created == nil {
		t.Fatal("Bootstrap should create a default admin when none exists")
	}
	if created.Username != "admin" {
		t.Errorf("Username = %q, want %q", created.Username, "admin")
	}
	if !created.IsActive {
		t.Error("seeded admin should be active")
	}
	if created.PasswordHash == "" || created.PasswordHash == "admin123" {
		t.Error("password must be stored as a hash, never plaintext")
	}
	if !VerifyPassword("admin123", created.PasswordHash) {
		t.Error("seeded hash should verify against the seed password")
	}
}

// TestBootstrap_NoopWhenAdminsExist は管理者が存在する場合に何もしないことを検証する。
func TestBootstrap_NoopWhenAdminsExist(t *testing.T) {
	createCalled := false
	adminRepo := &mockAdminRepo{
		countFn: func(ctx context.Context) (int, error) { return 1, nil },
		createFn: func(ctx context.Context, admin *model.AdminUser) error {
			createCalled = true
			return nil
		},
	}

	cfg := BootstrapConfig{Username: "admin", Password: "admin123", Email: "admin@demulla.local"}
	if err := Bootstrap(context.Background(), adminRepo, cfg); err != nil {
		t.Fatalf("Bootstrap returned error: %v", err)
	}
	if createCalled {
		t.Error("Bootstrap should be a no-op when admins already exist")
	}
}
