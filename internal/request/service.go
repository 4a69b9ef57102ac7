// Package request はサービスリクエストのライフサイクルを管理するサービス層。
package request

import (
	"context"
	"fmt"
	"regexp"
	"time"
	"unicode/utf8"

	"github.com/demulla/servicedesk/internal/model"
	"github.com/demulla/servicedesk/internal/notify"
	"github.com/demulla/servicedesk/internal/repository"
	"github.com/demulla/servicedesk/internal/security"
	"github.com/google/uuid"
)

// emailPattern は申請者メールアドレスの形式チェック。
// 厳密なRFC準拠ではなく「ローカル部@ドメイン.TLD」の形だけを要求する。
var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// 長さ上限は文字数（rune）単位。バイト数ではない。
const (
	maxNameLength        = 100
	maxDescriptionLength = 5000
)

// Notifier はライフサイクルイベントの通知インターフェース。
type Notifier interface {
	Dispatch(event notify.Event, req *model.ServiceRequest)
}

// MetricsRecorder はリクエスト処理の計測インターフェース。
type MetricsRecorder interface {
	RecordSubmission(category string, priority string)
	RecordStatusTransition(from, to string)
}

// SubmitInput は申請フォーム・APIからの入力値。サニタイズ前の生の値を受け取る。
type SubmitInput struct {
	RequesterName     string
	Email             string
	Department        string
	Category          string
	Description       string
	Priority          string
	ContactPreference string
}

// Stats は管理ダッシュボード用の集計結果。
type Stats struct {
	Total                int
	ByStatus             map[model.Status]int
	ByCategory           map[string]int
	ByDepartment         map[string]int
	ByPriority           map[string]int
	AvgResolutionSeconds float64
	Recent               []*model.ServiceRequest
}

// Service はサービスリクエストの作成・遷移・参照を提供する。
type Service struct {
	repo      repository.RequestRepository
	sanitizer security.TextSanitizerService
	notifier  Notifier
	metrics   MetricsRecorder
}

// NewService はServiceを生成する。notifierとmetricsはnil許容。
func NewService(repo repository.RequestRepository, sanitizer security.TextSanitizerService, notifier Notifier, metrics MetricsRecorder) *Service {
	return &Service{
		repo:      repo,
		sanitizer: sanitizer,
		notifier:  notifier,
		metrics:   metrics,
	}
}

// Submit は入力を検証・サニタイズしてサービスリクエストを作成する。
// 成功時は初期ステータスOpen、CreatedAtとUpdatedAtが同一のリクエストを返す。
func (s *Service) Submit(ctx context.Context, input SubmitInput) (*model.ServiceRequest, error) {
	name := s.sanitizer.Sanitize(input.RequesterName)
	description := s.sanitizer.Sanitize(input.Description)

	if name == "" {
		return nil, model.NewValidationError("氏名は必須です")
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return nil, model.NewValidationError("氏名が長すぎます")
	}
	if input.Email == "" {
		return nil, model.NewValidationError("メールアドレスは必須です")
	}
	if !emailPattern.MatchString(input.Email) {
		return nil, model.NewValidationError("メールアドレスの形式が正しくありません")
	}
	if !model.IsValidDepartment(input.Department) {
		return nil, model.NewValidationError("部署の選択が正しくありません")
	}
	if !model.IsValidCategory(input.Category) {
		return nil, model.NewValidationError("カテゴリの選択が正しくありません")
	}
	if description == "" {
		return nil, model.NewValidationError("内容の説明は必須です")
	}
	if utf8.RuneCountInString(description) > maxDescriptionLength {
		return nil, model.NewValidationError("内容の説明が長すぎます")
	}

	priority := model.Priority(input.Priority)
	if input.Priority == "" {
		priority = model.PriorityMedium
	} else if !model.IsValidPriority(priority) {
		return nil, model.NewValidationError("優先度の選択が正しくありません")
	}

	contactPref := input.ContactPreference
	if contactPref == "" {
		contactPref = "email"
	} else if !model.IsValidContactPreference(contactPref) {
		return nil, model.NewValidationError("希望連絡手段の選択が正しくありません")
	}

	now := time.Now()
	req := &model.ServiceRequest{
		ID:                uuid.New().String(),
		RequesterName:     name,
		Email:             input.Email,
		Department:        input.Department,
		Category:          input.Category,
		Description:       description,
		Priority:          priority,
		ContactPreference: contactPref,
		Status:            model.StatusOpen,
		Attachments:       []string{},
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := s.repo.Create(ctx, req); err != nil {
		return nil, fmt.Errorf("failed to create service request: %w", err)
	}

	if s.metrics != nil {
		s.metrics.RecordSubmission(req.Category, string(req.Priority))
	}
	if s.notifier != nil {
		s.notifier.Dispatch(notify.EventRequestCreated, req)
	}
	return req, nil
}

// Transition はリクエストのステータスを遷移させる。
// 遷移の可否判定と永続化の前提条件チェックは分離されている。前者は
// ユーザー向けのエラーを返し、後者は同時更新の敗者を検出する。
func (s *Service) Transition(ctx context.Context, id string, to model.Status, assignedTo string) (*model.ServiceRequest, error) {
	if !model.IsValidStatus(to) {
		return nil, model.NewValidationError("ステータスの値が正しくありません")
	}

	current, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find service request: %w", err)
	}
	if current == nil {
		return nil, model.NewRequestNotFoundError(id)
	}

	if !model.CanTransition(current.Status, to) {
		return nil, model.NewIllegalTransitionError(current.Status, to)
	}

	now := time.Now()
	resolvedAt := resolvedAtAfter(current, to, now)

	updated, err := s.repo.UpdateStatus(ctx, id, current.Status, to, assignedTo, now, resolvedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to update request status: %w", err)
	}
	if updated == nil {
		// 条件付きUPDATEの空振り。別の管理者が先に遷移させている。
		fresh, ferr := s.repo.FindByID(ctx, id)
		if ferr != nil {
			return nil, fmt.Errorf("failed to re-read service request: %w", ferr)
		}
		if fresh == nil {
			return nil, model.NewRequestNotFoundError(id)
		}
		return nil, model.NewIllegalTransitionError(fresh.Status, to)
	}

	if s.metrics != nil {
		s.metrics.RecordStatusTransition(string(current.Status), string(to))
	}
	if s.notifier != nil {
		s.notifier.Dispatch(notify.EventStatusChanged, updated)
	}
	return updated, nil
}

// resolvedAtAfter は遷移後のresolved_atの値を決める。
// Resolvedに入る時に記録し、Reopenで消し、Resolved→Closedでは保持する。
func resolvedAtAfter(current *model.ServiceRequest, to model.Status, now time.Time) *time.Time {
	switch to {
	case model.StatusResolved:
		return &now
	case model.StatusOpen:
		return nil
	default:
		return current.ResolvedAt
	}
}

// Get は指定IDのリクエストを返す。見つからない場合はREQUEST_NOT_FOUND。
func (s *Service) Get(ctx context.Context, id string) (*model.ServiceRequest, error) {
	req, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find service request: %w", err)
	}
	if req == nil {
		return nil, model.NewRequestNotFoundError(id)
	}
	return req, nil
}

// List はフィルタ条件に一致するリクエスト一覧と総件数を返す。
func (s *Service) List(ctx context.Context, filter repository.RequestFilter) ([]*model.ServiceRequest, int, error) {
	if filter.Status != "" && !model.IsValidStatus(filter.Status) {
		return nil, 0, model.NewValidationError("ステータスの値が正しくありません")
	}
	if filter.Priority != "" && !model.IsValidPriority(filter.Priority) {
		return nil, 0, model.NewValidationError("優先度の値が正しくありません")
	}

	requests, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list service requests: %w", err)
	}
	total, err := s.repo.Count(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count service requests: %w", err)
	}
	return requests, total, nil
}

// AttachFile は検証済みの添付ファイル名をリクエストに記録する。
func (s *Service) AttachFile(ctx context.Context, id, filename string) error {
	req, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to find service request: %w", err)
	}
	if req == nil {
		return model.NewRequestNotFoundError(id)
	}
	if err := s.repo.AppendAttachment(ctx, id, filename); err != nil {
		return fmt.Errorf("failed to append attachment: %w", err)
	}
	return nil
}

// Stats はダッシュボード用の集計を返す。
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	byStatus, err := s.repo.CountByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count by status: %w", err)
	}
	byCategory, err := s.repo.CountByCategory(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count by category: %w", err)
	}
	byDepartment, err := s.repo.CountByDepartment(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count by department: %w", err)
	}
	byPriority, err := s.repo.CountByPriority(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count by priority: %w", err)
	}
	avg, err := s.repo.AvgResolutionSeconds(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compute average resolution time: %w", err)
	}
	recent, err := s.repo.ListRecent(ctx, 5)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent requests: %w", err)
	}

	total := 0
	for _, n := range byStatus {
		total += n
	}
	return &Stats{
		Total:                total,
		ByStatus:             byStatus,
		ByCategory:           byCategory,
		ByDepartment:         byDepartment,
		ByPriority:           byPriority,
		AvgResolutionSeconds: avg,
		Recent:               recent,
	}, nil
}
