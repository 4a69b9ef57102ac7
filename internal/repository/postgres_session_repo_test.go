package repository

import (
	"context"
	"testing"
	"time"

	"github.com/demulla/servicedesk/internal/model"
	"github.com/google/uuid"
)

// createTestAdmin はFK制約を満たすための管理者アカウントを作成する。
func createTestAdmin(t *testing.T, repo *PostgresAdminRepo) *model.AdminUser {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Microsecond)
	admin := &model.AdminUser{
		ID:           uuid.New().String(),
		Username:     "admin-" + uuid.New().String()[:8],
		PasswordHash: "hash:salt",
		Email:        uuid.New().String()[:8] + "@demulla.example",
		FullName:     "Test Admin",
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := repo.Create(context.Background(), admin); err != nil {
		t.Fatalf("failed to create test admin: %v", err)
	}
	return admin
}

// TestPostgresSessionRepo_CreateAndFind はセッションの作成と取得を検証する。
func TestPostgresSessionRepo_CreateAndFind(t *testing.T) {
	db := setupTestDB(t)
	adminRepo := NewPostgresAdminRepo(db)
	repo := NewPostgresSessionRepo(db)
	ctx := context.Background()

	admin := createTestAdmin(t, adminRepo)

	session := &model.Session{
		ID:        uuid.New().String(),
		AdminID:   admin.ID,
		ExpiresAt: time.Now().UTC().Add(24 * time.Hour),
		CreatedAt: time.Now().UTC(),
	}
	if err := repo.Create(ctx, session); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	found, err := repo.FindByID(ctx, session.ID)
	if err != nil {
		t.Fatalf("FindByID returned error: %v", err)
	}
	if found == nil {
		t.Fatal("FindByID returned nil for valid session")
	}
	if found.AdminID != admin.ID {
		t.Errorf("AdminID = %q, want %q", found.AdminID, admin.ID)
	}
}

// TestPostgresSessionRepo_ExpiredEqualsUnknown は期限切れセッションと不明なIDが
// どちらもnilで返り、呼び出し側から区別できないことを検証する。
func TestPostgresSessionRepo_ExpiredEqualsUnknown(t *testing.T) {
	db := setupTestDB(t)
	adminRepo := NewPostgresAdminRepo(db)
	repo := NewPostgresSessionRepo(db)
	ctx := context.Background()

	admin := createTestAdmin(t, adminRepo)

	expired := &model.Session{
		ID:        uuid.New().String(),
		AdminID:   admin.ID,
		ExpiresAt: time.Now().UTC().Add(-1 * time.Minute),
		CreatedAt: time.Now().UTC().Add(-25 * time.Hour),
	}
	if err := repo.Create(ctx, expired); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	foundExpired, err := repo.FindByID(ctx, expired.ID)
	if err != nil {
		t.Fatalf("FindByID(expired) returned error: %v", err)
	}
	foundUnknown, err := repo.FindByID(ctx, uuid.New().String())
	if err != nil {
		t.Fatalf("FindByID(unknown) returned error: %v", err)
	}

	if foundExpired != nil || foundUnknown != nil {
		t.Errorf("expired (%v) and unknown (%v) sessions should both be nil", foundExpired, foundUnknown)
	}
}

// TestPostgresSessionRepo_DeleteByID はログアウトによる即時無効化を検証する。
func TestPostgresSessionRepo_DeleteByID(t *testing.T) {
	db := setupTestDB(t)
	adminRepo := NewPostgresAdminRepo(db)
	repo := NewPostgresSessionRepo(db)
	ctx := context.Background()

	admin := createTestAdmin(t, adminRepo)

	session := &model.Session{
		ID:        uuid.New().String(),
		AdminID:   admin.ID,
		ExpiresAt: time.Now().UTC().Add(24 * time.Hour),
		CreatedAt: time.Now().UTC(),
	}
	if err := repo.Create(ctx, session); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	if err := repo.DeleteByID(ctx, session.ID); err != nil {
		t.Fatalf("DeleteByID returned error: %v", err)
	}

	found, err := repo.FindByID(ctx, session.ID)
	if err != nil {
		t.Fatalf("FindByID returned error: %v", err)
	}
	if found != nil {
		t.Error("deleted session should not be found")
	}
}

// TestPostgresSessionRepo_DeleteExpired は期限切れセッションのみ削除されることを検証する。
func TestPostgresSessionRepo_DeleteExpired(t *testing.T) {
	db := setupTestDB(t)
	adminRepo := NewPostgresAdminRepo(db)
	repo := NewPostgresSessionRepo(db)
	ctx := context.Background()

	admin := createTestAdmin(t, adminRepo)

	expired := &model.Session{
		ID:        uuid.New().String(),
		AdminID:   admin.ID,
		ExpiresAt: time.Now().UTC().Add(-1 * time.Hour),
		CreatedAt: time.Now().UTC().Add(-25 * time.Hour),
	}
	valid := &model.Session{
		ID:        uuid.New().String(),
		AdminID:   admin.ID,
		ExpiresAt: time.Now().UTC().Add(24 * time.Hour),
		CreatedAt: time.Now().UTC(),
	}
	for _, s := range []*model.Session{expired, valid} {
		if err := repo.Create(ctx, s); err != nil {
			t.Fatalf("Create returned error: %v", err)
		}
	}

	deleted, err := repo.DeleteExpired(ctx)
	if err != nil {
		t.Fatalf("DeleteExpired returned error: %v", err)
	}
	if deleted != 1 {
		t.Errorf("DeleteExpired removed %d sessions, want 1", deleted)
	}

	found, err := repo.FindByID(ctx, valid.ID)
	if err != nil {
		t.Fatalf("FindByID returned error: %v", err)
	}
	if found == nil {
		t.Error("valid session should survive DeleteExpired")
	}
}

// TestPostgresAdminRepo_LoginAttempts は失敗カウントの加算とロック設定を検証する。
func TestPostgresAdminRepo_LoginAttempts(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPostgresAdminRepo(db)
	ctx := context.Background()

	admin := createTestAdmin(t, repo)
	lockedUntil := time.Now().UTC().Add(30 * time.Minute).Truncate(time.Microsecond)

	// 閾値未満の失敗ではロックされない
	for i := 0; i < 4; i++ {
		if err := repo.RecordLoginFailure(ctx, admin.ID, 5, lockedUntil); err != nil {
			t.Fatalf("RecordLoginFailure returned error: %v", err)
		}
	}
	found, err := repo.FindByID(ctx, admin.ID)
	if err != nil {
		t.Fatalf("FindByID returned error: %v", err)
	}
	if found.LoginAttempts != 4 {
		t.Errorf("LoginAttempts = %d, want 4", found.LoginAttempts)
	}
	if found.LockedUntil != nil {
		t.Error("account should not be locked before reaching the threshold")
	}

	// 5回目の失敗でロックされる
	if err := repo.RecordLoginFailure(ctx, admin.ID, 5, lockedUntil); err != nil {
		t.Fatalf("RecordLoginFailure returned error: %v", err)
	}
	found, err = repo.FindByID(ctx, admin.ID)
	if err != nil {
		t.Fatalf("FindByID returned error: %v", err)
	}
	if found.LockedUntil == nil {
		t.Fatal("account should be locked at the threshold")
	}

	// 成功でリセットされる
	now := time.Now().UTC().Truncate(time.Microsecond)
	if err := repo.RecordLoginSuccess(ctx, admin.ID, now); err != nil {
		t.Fatalf("RecordLoginSuccess returned error: %v", err)
	}
	found, err = repo.FindByID(ctx, admin.ID)
	if err != nil {
		t.Fatalf("FindByID returned error: %v", err)
	}
	if found.LoginAttempts != 0 || found.LockedUntil != nil {
		t.Errorf("login success should reset attempts and lock, got attempts=%d locked=%v",
			found.LoginAttempts, found.LockedUntil)
	}
	if found.LastLogin == nil {
		t.Error("last_login should be recorded on success")
	}
}
