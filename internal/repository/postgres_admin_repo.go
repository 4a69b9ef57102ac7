package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/demulla/servicedesk/internal/model"
)

// PostgresAdminRepo はPostgreSQLを使用した管理者アカウントリポジトリ。
type PostgresAdminRepo struct {
	db *sql.DB
}

// NewPostgresAdminRepo はPostgresAdminRepoを生成する。
func NewPostgresAdminRepo(db *sql.DB) *PostgresAdminRepo {
	return &PostgresAdminRepo{db: db}
}

const adminColumns = `id, username, password_hash, email, full_name, is_active,
	last_login, login_attempts, locked_until, created_at, updated_at`

// Count は管理者アカウント数を返す。
func (r *PostgresAdminRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM admin_users`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count admin users: %w", err)
	}
	return count, nil
}

// Create は管理者アカウントを作成する。
func (r *PostgresAdminRepo) Create(ctx context.Context, admin *model.AdminUser) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO admin_users
		 (id, username, password_hash, email, full_name, is_active,
		  last_login, login_attempts, locked_until, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		admin.ID, admin.Username, admin.PasswordHash, admin.Email, admin.FullName,
		admin.IsActive, admin.LastLogin, admin.LoginAttempts, admin.LockedUntil,
		admin.CreatedAt, admin.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert admin user: %w", err)
	}
	return nil
}

// FindByUsername は有効な管理者をユーザー名で検索する。見つからない場合はnilを返す。
func (r *PostgresAdminRepo) FindByUsername(ctx context.Context, username string) (*model.AdminUser, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+adminColumns+` FROM admin_users WHERE username = $1 AND is_active = TRUE`,
		username,
	)
	admin, err := scanAdmin(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find admin by username: %w", err)
	}
	return admin, nil
}

// FindByID は指定IDの管理者を取得する。見つからない場合はnilを返す。
func (r *PostgresAdminRepo) FindByID(ctx context.Context, id string) (*model.AdminUser, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+adminColumns+` FROM admin_users WHERE id = $1`,
		id,
	)
	admin, err := scanAdmin(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find admin by ID: %w", err)
	}
	return admin, nil
}

// RecordLoginSuccess は失敗カウントとロックをリセットし、最終ログイン日時を記録する。
func (r *PostgresAdminRepo) RecordLoginSuccess(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE admin_users
		 SET login_attempts = 0, locked_until = NULL, last_login = $2, updated_at = $2
		 WHERE id = $1`,
		id, at,
	)
	if err != nil {
		return fmt.Errorf("failed to record login success: %w", err)
	}
	return nil
}

// RecordLoginFailure は失敗カウントを加算し、閾値に達した場合はlockedUntilを設定する。
// 加算とロック判定を単一のUPDATEで行い、並行ログイン試行でもカウントを失わない。
func (r *PostgresAdminRepo) RecordLoginFailure(ctx context.Context, id string, maxAttempts int, lockedUntil time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE admin_users
		 SET login_attempts = login_attempts + 1,
		     locked_until = CASE WHEN login_attempts + 1 >= $2 THEN $3 ELSE locked_until END,
		     updated_at = now()
		 WHERE id = $1`,
		id, maxAttempts, lockedUntil,
	)
	if err != nil {
		return fmt.Errorf("failed to record login failure: %w", err)
	}
	return nil
}

// scanAdmin は1行分の管理者アカウントをスキャンする。
func scanAdmin(row rowScanner) (*model.AdminUser, error) {
	admin := &model.AdminUser{}
	err := row.Scan(
		&admin.ID, &admin.Username, &admin.PasswordHash, &admin.Email, &admin.FullName,
		&admin.IsActive, &admin.LastLogin, &admin.LoginAttempts, &admin.LockedUntil,
		&admin.CreatedAt, &admin.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return admin, nil
}

// compile-time interface check
var _ AdminRepository = (*PostgresAdminRepo)(nil)
