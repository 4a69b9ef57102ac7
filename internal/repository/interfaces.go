// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/demulla/servicedesk/internal/model"
)

// RequestFilter はサービスリクエスト一覧の絞り込み条件を表す。
// ゼロ値のフィールドは条件に含めない。
type RequestFilter struct {
	Status     model.Status
	Category   string
	Department string
	Priority   model.Priority
	Limit      int
	Offset     int
}

// RequestRepository はサービスリクエストの永続化インターフェース。
type RequestRepository interface {
	// Create はサービスリクエストを作成する。
	Create(ctx context.Context, req *model.ServiceRequest) error

	// FindByID は指定IDのリクエストを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.ServiceRequest, error)

	// List はフィルタ条件に一致するリクエストをcreated_at降順で返す。
	List(ctx context.Context, filter RequestFilter) ([]*model.ServiceRequest, error)

	// Count はフィルタ条件に一致するリクエスト数を返す。
	Count(ctx context.Context, filter RequestFilter) (int, error)

	// UpdateStatus は現在ステータスを条件とした単一のUPDATEでステータスを遷移させる。
	// 2人の管理者が同時に同じリクエストを遷移させた場合、勝者は1人だけになる。
	// 前提条件（status = from）を満たす行がなければnilを返す。
	// resolvedAtはそのまま列に書き込まれる（nilでクリア）。
	UpdateStatus(ctx context.Context, id string, from, to model.Status, assignedTo string, updatedAt time.Time, resolvedAt *time.Time) (*model.ServiceRequest, error)

	// AppendAttachment は添付ファイル名をリクエストに追記する。
	AppendAttachment(ctx context.Context, id, filename string) error

	// CountByStatus はステータスごとの件数を返す。
	CountByStatus(ctx context.Context) (map[model.Status]int, error)

	// CountByCategory はカテゴリごとの件数を返す。
	CountByCategory(ctx context.Context) (map[string]int, error)

	// CountByDepartment は部署ごとの件数を返す。
	CountByDepartment(ctx context.Context) (map[string]int, error)

	// CountByPriority は優先度ごとの件数を返す。
	CountByPriority(ctx context.Context) (map[string]int, error)

	// AvgResolutionSeconds は解決済みリクエストの平均解決時間（秒）を返す。
	// 解決済みリクエストが存在しない場合は0を返す。
	AvgResolutionSeconds(ctx context.Context) (float64, error)

	// ListRecent は直近のリクエストをcreated_at降順で最大limit件返す。
	ListRecent(ctx context.Context, limit int) ([]*model.ServiceRequest, error)
}

// AdminRepository は管理者アカウントの永続化インターフェース。
type AdminRepository interface {
	// Count は管理者アカウント数を返す。初回起動時のシード判定に使用する。
	Count(ctx context.Context) (int, error)

	// Create は管理者アカウントを作成する。
	Create(ctx context.Context, admin *model.AdminUser) error

	// FindByUsername は有効(is_active)な管理者をユーザー名で検索する。見つからない場合はnilを返す。
	FindByUsername(ctx context.Context, username string) (*model.AdminUser, error)

	// FindByID は指定IDの管理者を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.AdminUser, error)

	// RecordLoginSuccess は失敗カウントとロックをリセットし、最終ログイン日時を記録する。
	RecordLoginSuccess(ctx context.Context, id string, at time.Time) error

	// RecordLoginFailure は失敗カウントを加算し、閾値に達した場合はlockedUntilを設定する。
	RecordLoginFailure(ctx context.Context, id string, maxAttempts int, lockedUntil time.Time) error
}

// SessionRepository は管理者セッションの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error

	// FindByID は指定IDのセッションを取得する。期限切れ・不明の場合はいずれもnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)

	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error

	// DeleteExpired は期限切れセッションを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context) (int64, error)
}
