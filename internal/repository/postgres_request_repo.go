package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/demulla/servicedesk/internal/model"
)

// PostgresRequestRepo はPostgreSQLを使用したサービスリクエストリポジトリ。
type PostgresRequestRepo struct {
	db *sql.DB
}

// NewPostgresRequestRepo はPostgresRequestRepoを生成する。
func NewPostgresRequestRepo(db *sql.DB) *PostgresRequestRepo {
	return &PostgresRequestRepo{db: db}
}

const requestColumns = `id, requester_name, email, department, category, description,
	priority, contact_pref, assigned_to, status, attachments, created_at, updated_at, resolved_at`

// Create はサービスリクエストを作成する。
func (r *PostgresRequestRepo) Create(ctx context.Context, req *model.ServiceRequest) error {
	attachments, err := json.Marshal(req.Attachments)
	if err != nil {
		return fmt.Errorf("failed to marshal attachments: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO service_requests
		 (id, requester_name, email, department, category, description,
		  priority, contact_pref, assigned_to, status, attachments, created_at, updated_at, resolved_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		req.ID, req.RequesterName, req.Email, req.Department, req.Category, req.Description,
		req.Priority, req.ContactPreference, req.AssignedTo, req.Status, attachments,
		req.CreatedAt, req.UpdatedAt, req.ResolvedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert service request: %w", err)
	}
	return nil
}

// FindByID は指定IDのリクエストを取得する。見つからない場合はnilを返す。
func (r *PostgresRequestRepo) FindByID(ctx context.Context, id string) (*model.ServiceRequest, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+requestColumns+` FROM service_requests WHERE id = $1`,
		id,
	)
	req, err := scanRequest(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find service request: %w", err)
	}
	return req, nil
}

// List はフィルタ条件に一致するリクエストをcreated_at降順で返す。
func (r *PostgresRequestRepo) List(ctx context.Context, filter RequestFilter) ([]*model.ServiceRequest, error) {
	where, args := buildRequestWhere(filter)

	query := `SELECT ` + requestColumns + ` FROM service_requests` + where + ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list service requests: %w", err)
	}
	defer rows.Close()

	var results []*model.ServiceRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan service request: %w", err)
		}
		results = append(results, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate service requests: %w", err)
	}
	return results, nil
}

// Count はフィルタ条件に一致するリクエスト数を返す。
func (r *PostgresRequestRepo) Count(ctx context.Context, filter RequestFilter) (int, error) {
	where, args := buildRequestWhere(filter)

	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM service_requests`+where,
		args...,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count service requests: %w", err)
	}
	return count, nil
}

// UpdateStatus は現在ステータスを条件とした単一のUPDATEでステータスを遷移させる。
// 前提条件を満たす行がなければnilを返す（同時更新で先を越された場合を含む）。
func (r *PostgresRequestRepo) UpdateStatus(ctx context.Context, id string, from, to model.Status, assignedTo string, updatedAt time.Time, resolvedAt *time.Time) (*model.ServiceRequest, error) {
	row := r.db.QueryRowContext(ctx,
		`UPDATE service_requests
		 SET status = $3,
		     assigned_to = CASE WHEN $4 <> '' THEN $4 ELSE assigned_to END,
		     updated_at = $5,
		     resolved_at = $6
		 WHERE id = $1 AND status = $2
		 RETURNING `+requestColumns,
		id, from, to, assignedTo, updatedAt, resolvedAt,
	)
	req, err := scanRequest(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update request status: %w", err)
	}
	return req, nil
}

// AppendAttachment は添付ファイル名をリクエストに追記する。
func (r *PostgresRequestRepo) AppendAttachment(ctx context.Context, id, filename string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE service_requests
		 SET attachments = attachments || to_jsonb($2::text), updated_at = now()
		 WHERE id = $1`,
		id, filename,
	)
	if err != nil {
		return fmt.Errorf("failed to append attachment: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("service request not found: %s", id)
	}
	return nil
}

// CountByStatus はステータスごとの件数を返す。
func (r *PostgresRequestRepo) CountByStatus(ctx context.Context) (map[model.Status]int, error) {
	counts, err := r.countGroupedBy(ctx, "status")
	if err != nil {
		return nil, err
	}
	result := make(map[model.Status]int, len(counts))
	for k, v := range counts {
		result[model.Status(k)] = v
	}
	return result, nil
}

// CountByCategory はカテゴリごとの件数を返す。
func (r *PostgresRequestRepo) CountByCategory(ctx context.Context) (map[string]int, error) {
	return r.countGroupedBy(ctx, "category")
}

// CountByDepartment は部署ごとの件数を返す。
func (r *PostgresRequestRepo) CountByDepartment(ctx context.Context) (map[string]int, error) {
	return r.countGroupedBy(ctx, "department")
}

// CountByPriority は優先度ごとの件数を返す。
func (r *PostgresRequestRepo) CountByPriority(ctx context.Context) (map[string]int, error) {
	return r.countGroupedBy(ctx, "priority")
}

// AvgResolutionSeconds は解決済みリクエストの平均解決時間（秒）を返す。
func (r *PostgresRequestRepo) AvgResolutionSeconds(ctx context.Context) (float64, error) {
	var avg sql.NullFloat64
	err := r.db.QueryRowContext(ctx,
		`SELECT AVG(EXTRACT(EPOCH FROM (resolved_at - created_at)))
		 FROM service_requests
		 WHERE resolved_at IS NOT NULL`,
	).Scan(&avg)
	if err != nil {
		return 0, fmt.Errorf("failed to compute average resolution time: %w", err)
	}
	if !avg.Valid {
		return 0, nil
	}
	return avg.Float64, nil
}

// ListRecent は直近のリクエストをcreated_at降順で最大limit件返す。
func (r *PostgresRequestRepo) ListRecent(ctx context.Context, limit int) ([]*model.ServiceRequest, error) {
	return r.List(ctx, RequestFilter{Limit: limit})
}

// countGroupedBy は指定列でGROUP BYした件数を返す。
// columnは呼び出し側が固定文字列のみを渡すこと。
func (r *PostgresRequestRepo) countGroupedBy(ctx context.Context, column string) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+column+`, COUNT(*) FROM service_requests GROUP BY `+column,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to count by %s: %w", column, err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var key string
		var count int
		if err := rows.Scan(&key, &count); err != nil {
			return nil, fmt.Errorf("failed to scan count row: %w", err)
		}
		counts[key] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate count rows: %w", err)
	}
	return counts, nil
}

// buildRequestWhere はフィルタからWHERE句とバインド引数を組み立てる。
func buildRequestWhere(filter RequestFilter) (string, []any) {
	var conds []string
	var args []any

	if filter.Status != "" {
		args = append(args, filter.Status)
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.Category != "" {
		args = append(args, filter.Category)
		conds = append(conds, fmt.Sprintf("category = $%d", len(args)))
	}
	if filter.Department != "" {
		args = append(args, filter.Department)
		conds = append(conds, fmt.Sprintf("department = $%d", len(args)))
	}
	if filter.Priority != "" {
		args = append(args, filter.Priority)
		conds = append(conds, fmt.Sprintf("priority = $%d", len(args)))
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// rowScanner はsql.Rowとsql.Rowsの共通スキャンインターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

// scanRequest は1行分のサービスリクエストをスキャンする。
func scanRequest(row rowScanner) (*model.ServiceRequest, error) {
	req := &model.ServiceRequest{}
	var attachments []byte

	err := row.Scan(
		&req.ID, &req.RequesterName, &req.Email, &req.Department, &req.Category,
		&req.Description, &req.Priority, &req.ContactPreference, &req.AssignedTo,
		&req.Status, &attachments, &req.CreatedAt, &req.UpdatedAt, &req.ResolvedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(attachments) > 0 {
		if err := json.Unmarshal(attachments, &req.Attachments); err != nil {
			return nil, fmt.Errorf("failed to unmarshal attachments: %w", err)
		}
	}
	return req, nil
}

// compile-time interface check
var _ RequestRepository = (*PostgresRequestRepo)(nil)
