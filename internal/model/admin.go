// Package model はドメインモデルを定義する。
package model

import "time"

// AdminUser は管理者アカウントを表す。
// PasswordHashは「pbkdf2ハッシュ(hex):ソルト(hex)」形式で保存され、平文は保持しない。
type AdminUser struct {
	ID            string
	Username      string
	PasswordHash  string
	Email         string
	FullName      string
	IsActive      bool
	LastLogin     *time.Time
	LoginAttempts int
	LockedUntil   *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// IsLocked はアカウントが一時ロック中かどうかを判定する。
// 連続ログイン失敗によるロックはlocked_untilの経過で自動解除される。
func (a *AdminUser) IsLocked(now time.Time) bool {
	return a.LockedUntil != nil && now.Before(*a.LockedUntil)
}

// Session は管理者のログインセッションを表す。
type Session struct {
	ID        string
	AdminID   string
	ExpiresAt time.Time
	CreatedAt time.Time
}
