package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/demulla/servicedesk/internal/model"
	"github.com/demulla/servicedesk/internal/repository"
	"github.com/demulla/servicedesk/internal/request"
	"github.com/go-chi/chi/v5"
)

const (
	// defaultRequestsPerPage はJSON API一覧のデフォルト取得件数。
	defaultRequestsPerPage = 20
	// maxRequestsPerPage はJSON API一覧の取得件数の上限。
	maxRequestsPerPage = 100
)

// RequestServiceInterface はリクエストハンドラーが必要とするサービスインターフェース。
type RequestServiceInterface interface {
	// Submit は入力を検証してサービスリクエストを作成する。
	Submit(ctx context.Context, input request.SubmitInput) (*model.ServiceRequest, error)
	// Transition はリクエストのステータスを遷移させる。
	Transition(ctx context.Context, id string, to model.Status, assignedTo string) (*model.ServiceRequest, error)
	// Get は指定IDのリクエストを返す。
	Get(ctx context.Context, id string) (*model.ServiceRequest, error)
	// List はフィルタ条件に一致するリクエスト一覧と総件数を返す。
	List(ctx context.Context, filter repository.RequestFilter) ([]*model.ServiceRequest, int, error)
	// AttachFile は保存済みの添付ファイル名をリクエストに記録する。
	AttachFile(ctx context.Context, id, filename string) error
	// Stats はダッシュボード用の集計を返す。
	Stats(ctx context.Context) (*request.Stats, error)
}

// AttachmentStore は添付ファイルの保存・取得インターフェース。
type AttachmentStore interface {
	// Save は添付ファイルを検証して保存し、保存名を返す。
	Save(requestID, filename string, r io.Reader) (string, error)
	// Open は保存済みの添付ファイルを開く。見つからない場合は(nil, nil)。
	Open(storedName string) (io.ReadCloser, error)
}

// RequestAPIHandler はサービスリクエストのJSON APIハンドラー。
type RequestAPIHandler struct {
	service RequestServiceInterface
}

// NewRequestAPIHandler はRequestAPIHandlerを生成する。
func NewRequestAPIHandler(service RequestServiceInterface) *RequestAPIHandler {
	return &RequestAPIHandler{service: service}
}

// --- レスポンス型 ---

// requestResponse はサービスリクエスト1件のJSONレスポンス。
type requestResponse struct {
	ID                string     `json:"id"`
	RequesterName     string     `json:"requester_name"`
	Email             string     `json:"email"`
	Department        string     `json:"department"`
	Category          string     `json:"category"`
	Description       string     `json:"description"`
	Priority          string     `json:"priority"`
	ContactPreference string     `json:"contact_preference"`
	AssignedTo        string     `json:"assigned_to,omitempty"`
	Status            string     `json:"status"`
	Attachments       []string   `json:"attachments"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
	ResolvedAt        *time.Time `json:"resolved_at,omitempty"`
}

// requestListResponse はリクエスト一覧のJSONレスポンス。
type requestListResponse struct {
	Requests []requestResponse `json:"requests"`
	Total    int               `json:"total"`
	Page     int               `json:"page"`
	PerPage  int               `json:"per_page"`
}

// statusUpdateRequest はステータス更新リクエストのボディ。
type statusUpdateRequest struct {
	Status     string `json:"status"`
	AssignedTo string `json:"assigned_to,omitempty"`
}

// apiErrorResponse はAPIエラーレスポンスの統一フォーマット。
type apiErrorResponse struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

func toRequestResponse(req *model.ServiceRequest) requestResponse {
	attachments := req.Attachments
	if attachments == nil {
		attachments = []string{}
	}
	return requestResponse{
		ID:                req.ID,
		RequesterName:     req.RequesterName,
		Email:             req.Email,
		Department:        req.Department,
		Category:          req.Category,
		Description:       req.Description,
		Priority:          string(req.Priority),
		ContactPreference: req.ContactPreference,
		AssignedTo:        req.AssignedTo,
		Status:            string(req.Status),
		Attachments:       attachments,
		CreatedAt:         req.CreatedAt,
		UpdatedAt:         req.UpdatedAt,
		ResolvedAt:        req.ResolvedAt,
	}
}

// ListRequests はリクエスト一覧をフィルタ・ページネーション付きで返す。
// GET /api/requests?status=&category=&department=&priority=&page=&per_page=
func (h *RequestAPIHandler) ListRequests(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	page := parsePositiveInt(q.Get("page"), 1)
	perPage := parsePositiveInt(q.Get("per_page"), defaultRequestsPerPage)
	if perPage > maxRequestsPerPage {
		perPage = maxRequestsPerPage
	}

	filter := repository.RequestFilter{
		Status:     model.Status(q.Get("status")),
		Category:   q.Get("category"),
		Department: q.Get("department"),
		Priority:   model.Priority(q.Get("priority")),
		Limit:      perPage,
		Offset:     (page - 1) * perPage,
	}

	requests, total, err := h.service.List(r.Context(), filter)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := requestListResponse{
		Requests: make([]requestResponse, len(requests)),
		Total:    total,
		Page:     page,
		PerPage:  perPage,
	}
	for i, req := range requests {
		resp.Requests[i] = toRequestResponse(req)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// GetRequest はリクエスト詳細を返す。
// GET /api/requests/:id
func (h *RequestAPIHandler) GetRequest(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	req, err := h.service.Get(r.Context(), id)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toRequestResponse(req))
}

// UpdateRequestStatus はリクエストのステータスを遷移させる。
// PUT /api/requests/:id/status
func (h *RequestAPIHandler) UpdateRequestStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var body statusUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     model.ErrCodeInvalidRequest,
			Message:  "リクエストボディの形式が正しくありません。",
			Category: "validation",
			Action:   "JSONの形式を確認してください。",
		})
		return
	}

	updated, err := h.service.Transition(r.Context(), id, model.Status(body.Status), body.AssignedTo)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toRequestResponse(updated))
}

// parsePositiveInt は正の整数をパースする。無効な値はフォールバックを返す。
func parsePositiveInt(s string, fallback int) int {
	if s == "" {
		return fallback
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return fallback
	}
	return n
}

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(apiErrorResponse{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		statusCode := mapAPIErrorToHTTPStatus(apiErr)
		writeAPIErrorResponse(w, statusCode, apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	writeAPIErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeValidationFailed, model.ErrCodeInvalidRequest, model.ErrCodeInvalidAttachment:
		return http.StatusBadRequest
	case model.ErrCodeRequestNotFound:
		return http.StatusNotFound
	case model.ErrCodeIllegalTransition:
		return http.StatusConflict
	case model.ErrCodeUnauthorized, model.ErrCodeInvalidCredentials:
		return http.StatusUnauthorized
	case model.ErrCodeAccountLocked:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
