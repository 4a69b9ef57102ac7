// Package auth は管理者認証とセッション管理を提供する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/demulla/servicedesk/internal/model"
	"github.com/demulla/servicedesk/internal/repository"
)

const (
	// maxLoginAttempts はアカウントをロックするまでの連続失敗回数。
	maxLoginAttempts = 5
	// lockDuration は連続失敗によるロックの継続時間。
	lockDuration = 30 * time.Minute
)

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge int // セッション有効期間（秒）
}

// Service は管理者認証に関するビジネスロジックを提供する。
type Service struct {
	adminRepo   repository.AdminRepository
	sessionRepo repository.SessionRepository
	config      ServiceConfig
}

// NewService はServiceを生成する。
func NewService(adminRepo repository.AdminRepository, sessionRepo repository.SessionRepository, config ServiceConfig) *Service {
	return &Service{
		adminRepo:   adminRepo,
		sessionRepo: sessionRepo,
		config:      config,
	}
}

// Login はユーザー名とパスワードを検証し、成功時にセッションを発行する。
// 存在しないユーザーと誤ったパスワードは同一のエラーを返し、アカウントの存在を漏らさない。
// 連続5回の失敗で30分間アカウントをロックする。
func (s *Service) Login(ctx context.Context, username, password string) (*model.Session, error) {
	admin, err := s.adminRepo.FindByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("failed to find admin: %w", err)
	}
	if admin == nil {
		slog.Warn("login attempt for unknown user", slog.String("username", username))
		return nil, model.NewInvalidCredentialsError()
	}

	now := time.Now()
	if admin.IsLocked(now) {
		slog.Warn("login attempt for locked account", slog.String("username", username))
		return nil, model.NewAccountLockedError()
	}

	if !VerifyPassword(password, admin.PasswordHash) {
		if err := s.adminRepo.RecordLoginFailure(ctx, admin.ID, maxLoginAttempts, now.Add(lockDuration)); err != nil {
			slog.Error("failed to record login failure", slog.String("error", err.Error()))
		}
		slog.Warn("failed login attempt", slog.String("username", username))
		return nil, model.NewInvalidCredentialsError()
	}

	if err := s.adminRepo.RecordLoginSuccess(ctx, admin.ID, now); err != nil {
		slog.Error("failed to record login success", slog.String("error", err.Error()))
	}

	session, err := s.createSession(ctx, admin.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	slog.Info("admin logged in",
		slog.String("admin_id", admin.ID),
		slog.String("username", admin.Username),
	)
	return session, nil
}

// Authorize はセッションIDから管理者を解決する。
// 不明なセッションと期限切れセッションはリポジトリ層で同一のnil経路に合流するため、
// 呼び出し側には常に同じUNAUTHORIZEDエラーが返る。
func (s *Service) Authorize(ctx context.Context, sessionID string) (*model.AdminUser, error) {
	if sessionID == "" {
		return nil, model.NewUnauthorizedError()
	}

	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil {
		return nil, model.NewUnauthorizedError()
	}

	admin, err := s.adminRepo.FindByID(ctx, session.AdminID)
	if err != nil {
		return nil, fmt.Errorf("failed to find admin: %w", err)
	}
	if admin == nil || !admin.IsActive {
		return nil, model.NewUnauthorizedError()
	}

	return admin, nil
}

// Logout はセッションを即時に無効化する。
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	if err := s.sessionRepo.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	slog.Info("admin logged out", slog.String("session_id", sessionID))
	return nil
}

// createSession はセッションを作成し永続化する。
func (s *Service) createSession(ctx context.Context, adminID string) (*model.Session, error) {
	sessionID, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	session := &model.Session{
		ID:        sessionID,
		AdminID:   adminID,
		ExpiresAt: time.Now().Add(time.Duration(s.config.SessionMaxAge) * time.Second),
		CreatedAt: time.Now(),
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	return session, nil
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
