package handler

import (
	"embed"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"mime/multipart"
	"net/http"
	"sort"
	"strings"

	"github.com/demulla/servicedesk/internal/model"
	"github.com/demulla/servicedesk/internal/repository"
	"github.com/demulla/servicedesk/internal/request"
	"github.com/demulla/servicedesk/internal/upload"
	"github.com/go-chi/chi/v5"
)

//go:embed templates/*.html
var templateFS embed.FS

// templates は埋め込み済みの全画面テンプレート。
var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// webRequestsPerPage は管理画面の一覧の1ページあたりの件数。
const webRequestsPerPage = 50

// renderTemplate は指定テンプレートをHTMLレスポンスとして書き込む。
func renderTemplate(w http.ResponseWriter, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := templates.ExecuteTemplate(w, name, data); err != nil {
		slog.Error("failed to render template",
			slog.String("template", name),
			slog.String("error", err.Error()),
		)
	}
}

// --- 画面データ型 ---

// homePageData はトップページの表示データ。
type homePageData struct {
	Total      int
	Open       int
	InProgress int
	Resolved   int
}

// submitPageData は申請フォームの表示データ。
type submitPageData struct {
	Categories         []string
	Departments        []string
	Priorities         []model.Priority
	ContactPreferences []string
	Error              string
	Form               request.SubmitInput
}

// successPageData は申請完了画面の表示データ。
type successPageData struct {
	Request *model.ServiceRequest
}

// loginPageData はログイン画面の表示データ。
type loginPageData struct {
	Error    string
	Username string
}

// requestRow は管理画面の一覧の1行。遷移先の選択肢を含む。
type requestRow struct {
	*model.ServiceRequest
	NextStatuses []model.Status
	StatusClass  string // CSSクラス用。スペースをハイフンに置換したステータス名
}

// requestsPageData は管理画面の一覧の表示データ。
type requestsPageData struct {
	Rows       []requestRow
	Total      int
	Page       int
	PrevPage   int
	NextPage   int
	HasNext    bool
	Error      string
	Statuses   []model.Status
	Categories []string
	Filter     repository.RequestFilter
}

// statEntry はダッシュボードの集計1項目。
type statEntry struct {
	Name  string
	Count int
}

// dashboardPageData はダッシュボードの表示データ。
// テンプレートから扱いやすいよう、集計はすべてGo側で展開しておく。
type dashboardPageData struct {
	Total         int
	Open          int
	InProgress    int
	Resolved      int
	Closed        int
	ByCategory    []statEntry
	ByDepartment  []statEntry
	ByPriority    []statEntry
	AvgResolution string
	Recent        []requestRow
}

// WebHandler はサーバーサイドレンダリングの画面ハンドラー。
type WebHandler struct {
	service RequestServiceInterface
	store   AttachmentStore
}

// NewWebHandler はWebHandlerを生成する。
func NewWebHandler(service RequestServiceInterface, store AttachmentStore) *WebHandler {
	return &WebHandler{service: service, store: store}
}

// Home はトップページを表示する。
// GET /
func (h *WebHandler) Home(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		slog.Error("failed to load stats for homepage", slog.String("error", err.Error()))
		renderTemplate(w, "home.html", homePageData{})
		return
	}

	renderTemplate(w, "home.html", homePageData{
		Total:      stats.Total,
		Open:       stats.ByStatus[model.StatusOpen],
		InProgress: stats.ByStatus[model.StatusInProgress],
		Resolved:   stats.ByStatus[model.StatusResolved],
	})
}

// SubmitForm は申請フォームを表示する。
// GET /submit
func (h *WebHandler) SubmitForm(w http.ResponseWriter, r *http.Request) {
	renderTemplate(w, "submit.html", h.submitPageData("", request.SubmitInput{}))
}

// SubmitPost は申請フォームの送信を処理する。
// POST /submit
func (h *WebHandler) SubmitPost(w http.ResponseWriter, r *http.Request) {
	var files []*multipart.FileHeader

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			renderTemplate(w, "submit.html", h.submitPageData("フォームの内容を読み取れませんでした。", request.SubmitInput{}))
			return
		}
		if r.MultipartForm != nil {
			files = r.MultipartForm.File["attachments"]
		}
	} else if err := r.ParseForm(); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		renderTemplate(w, "submit.html", h.submitPageData("フォームの内容を読み取れませんでした。", request.SubmitInput{}))
		return
	}

	input := request.SubmitInput{
		RequesterName:     r.PostFormValue("requester_name"),
		Email:             r.PostFormValue("email"),
		Department:        r.PostFormValue("department"),
		Category:          r.PostFormValue("category"),
		Description:       r.PostFormValue("description"),
		Priority:          r.PostFormValue("priority"),
		ContactPreference: r.PostFormValue("contact_preference"),
	}

	// リクエスト作成前に添付ファイルの拡張子を検証し、作成後の失敗を避ける
	for _, fh := range files {
		if fh.Filename == "" {
			continue
		}
		if !upload.IsAllowed(fh.Filename) {
			w.WriteHeader(http.StatusBadRequest)
			renderTemplate(w, "submit.html", h.submitPageData(
				model.NewInvalidAttachmentError(fh.Filename).Message, input))
			return
		}
	}

	req, err := h.service.Submit(r.Context(), input)
	if err != nil {
		var msg string
		var apiErr *model.APIError
		if errors.As(err, &apiErr) {
			msg = apiErr.Message
			w.WriteHeader(mapAPIErrorToHTTPStatus(apiErr))
		} else {
			slog.Error("failed to submit request", slog.String("error", err.Error()))
			msg = "内部エラーが発生しました。しばらく待ってから再度お試しください。"
			w.WriteHeader(http.StatusInternalServerError)
		}
		renderTemplate(w, "submit.html", h.submitPageData(msg, input))
		return
	}

	// 添付ファイルの保存はベストエフォート。失敗してもリクエスト自体は受理済み。
	for _, fh := range files {
		if fh.Filename == "" {
			continue
		}
		if err := h.saveAttachment(r, req.ID, fh); err != nil {
			slog.Warn("failed to save attachment",
				slog.String("request_id", req.ID),
				slog.String("filename", fh.Filename),
				slog.String("error", err.Error()),
			)
		}
	}

	http.Redirect(w, r, "/submission-success/"+req.ID, http.StatusSeeOther)
}

// saveAttachment は添付ファイル1件を保存してリクエストに記録する。
func (h *WebHandler) saveAttachment(r *http.Request, requestID string, fh *multipart.FileHeader) error {
	f, err := fh.Open()
	if err != nil {
		return fmt.Errorf("failed to open uploaded file: %w", err)
	}
	defer f.Close()

	storedName, err := h.store.Save(requestID, fh.Filename, f)
	if err != nil {
		return err
	}

	// 記録するのは元ファイル名部分。ダウンロードURLはID＋ファイル名で組み立てる。
	filename := strings.TrimPrefix(storedName, requestID+"_")
	return h.service.AttachFile(r.Context(), requestID, filename)
}

// SubmissionSuccess は申請完了画面を表示する。
// GET /submission-success/:id
func (h *WebHandler) SubmissionSuccess(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	req, err := h.service.Get(r.Context(), id)
	if err != nil {
		http.Redirect(w, r, "/submit", http.StatusSeeOther)
		return
	}

	renderTemplate(w, "success.html", successPageData{Request: req})
}

// RequestsPage は管理画面のリクエスト一覧を表示する。
// GET /requests?status=&category=&page=&error=
func (h *WebHandler) RequestsPage(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := parsePositiveInt(q.Get("page"), 1)

	filter := repository.RequestFilter{
		Status:     model.Status(q.Get("status")),
		Category:   q.Get("category"),
		Department: q.Get("department"),
		Priority:   model.Priority(q.Get("priority")),
		Limit:      webRequestsPerPage,
		Offset:     (page - 1) * webRequestsPerPage,
	}

	requests, total, err := h.service.List(r.Context(), filter)
	if err != nil {
		// 無効なフィルタ値は全件表示に落とす
		filter = repository.RequestFilter{Limit: webRequestsPerPage}
		requests, total, err = h.service.List(r.Context(), filter)
		if err != nil {
			handleServiceError(w, err)
			return
		}
	}

	rows := make([]requestRow, len(requests))
	for i, req := range requests {
		rows[i] = toRequestRow(req)
	}

	renderTemplate(w, "requests.html", requestsPageData{
		Rows:       rows,
		Total:      total,
		Page:       page,
		PrevPage:   page - 1,
		NextPage:   page + 1,
		HasNext:    page*webRequestsPerPage < total,
		Error:      transitionErrorMessage(q.Get("error")),
		Statuses:   model.ValidStatuses(),
		Categories: model.Categories,
		Filter:     filter,
	})
}

// DashboardPage は分析ダッシュボードを表示する。
// GET /dashboard
func (h *WebHandler) DashboardPage(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	recent := make([]requestRow, len(stats.Recent))
	for i, req := range stats.Recent {
		recent[i] = toRequestRow(req)
	}

	renderTemplate(w, "dashboard.html", dashboardPageData{
		Total:         stats.Total,
		Open:          stats.ByStatus[model.StatusOpen],
		InProgress:    stats.ByStatus[model.StatusInProgress],
		Resolved:      stats.ByStatus[model.StatusResolved],
		Closed:        stats.ByStatus[model.StatusClosed],
		ByCategory:    toStatEntries(stats.ByCategory),
		ByDepartment:  toStatEntries(stats.ByDepartment),
		ByPriority:    toStatEntries(stats.ByPriority),
		AvgResolution: formatDuration(stats.AvgResolutionSeconds),
		Recent:        recent,
	})
}

// toStatEntries はマップの集計を件数降順のスライスに変換する。
func toStatEntries(counts map[string]int) []statEntry {
	entries := make([]statEntry, 0, len(counts))
	for name, count := range counts {
		entries = append(entries, statEntry{Name: name, Count: count})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Count != entries[j].Count {
			return entries[i].Count > entries[j].Count
		}
		return entries[i].Name < entries[j].Name
	})
	return entries
}

// submitPageData は申請フォームの表示データを組み立てる。
func (h *WebHandler) submitPageData(errMsg string, form request.SubmitInput) submitPageData {
	return submitPageData{
		Categories:         model.Categories,
		Departments:        model.Departments,
		Priorities:         model.ValidPriorities(),
		ContactPreferences: model.ContactPreferences,
		Error:              errMsg,
		Form:               form,
	}
}

// toRequestRow は一覧の1行と遷移先の選択肢を組み立てる。
func toRequestRow(req *model.ServiceRequest) requestRow {
	var next []model.Status
	for _, to := range model.ValidStatuses() {
		if model.CanTransition(req.Status, to) {
			next = append(next, to)
		}
	}
	return requestRow{
		ServiceRequest: req,
		NextStatuses:   next,
		StatusClass:    strings.ReplaceAll(string(req.Status), " ", "-"),
	}
}

// transitionErrorMessage はリダイレクトで渡されたエラーコードを表示用メッセージに変換する。
func transitionErrorMessage(code string) string {
	switch code {
	case "":
		return ""
	case model.ErrCodeIllegalTransition:
		return "許可されていないステータス遷移です。画面を更新して再度お試しください。"
	case model.ErrCodeRequestNotFound:
		return "指定されたリクエストが見つかりません。"
	case model.ErrCodeValidationFailed:
		return "入力内容に誤りがあります。"
	default:
		return "操作を完了できませんでした。しばらく待ってから再度お試しください。"
	}
}

// formatDuration は秒数を「2.5時間」のような表示用文字列に変換する。
func formatDuration(seconds float64) string {
	if seconds <= 0 {
		return "-"
	}
	hours := seconds / 3600
	if hours < 1 {
		return fmt.Sprintf("%.0f分", seconds/60)
	}
	return fmt.Sprintf("%.1f時間", hours)
}
