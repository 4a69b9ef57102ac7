package auth

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/demulla/servicedesk/internal/model"
	"github.com/demulla/servicedesk/internal/repository"
	"github.com/google/uuid"
)

// BootstrapConfig は初回起動時の管理者シードの設定。
type BootstrapConfig struct {
	Username string
	Password string
	Email    string
}

// Bootstrap は管理者アカウントが1件も存在しない場合にデフォルト管理者を作成する。
// 既に管理者が存在する場合は何もしない（冪等）。
// デフォルトパスワードのままの運用は安全でないため、作成時に警告ログを出す。
func Bootstrap(ctx context.Context, adminRepo repository.AdminRepository, cfg BootstrapConfig) error {
	count, err := adminRepo.Count(ctx)
	if err != nil {
		return fmt.Errorf("failed to count admin users: %w", err)
	}
	if count > 0 {
		return nil
	}

	hash, err := HashPassword(cfg.Password)
	if err != nil {
		return fmt.Errorf("failed to hash default admin password: %w", err)
	}

	now := time.Now()
	admin := &model.AdminUser{
		ID:           uuid.New().String(),
		Username:     cfg.Username,
		PasswordHash: hash,
		Email:        cfg.Email,
		FullName:     "System Administrator",
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := adminRepo.Create(ctx, admin); err != nil {
		return fmt.Errorf("failed to create default admin: %w", err)
	}

	slog.Warn("default admin account created with seed credentials; change the password immediately",
		slog.String("username", cfg.Username),
		slog.String("admin_id", admin.ID),
	)
	return nil
}
