package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path/filepath"

	"github.com/demulla/servicedesk/internal/middleware"
	"github.com/demulla/servicedesk/internal/model"
	"github.com/go-chi/chi/v5"
)

// AuthServiceInterface は管理者ハンドラーが必要とする認証サービスのインターフェース。
type AuthServiceInterface interface {
	// Login は資格情報を検証し、成功時にセッションを発行する。
	Login(ctx context.Context, username, password string) (*model.Session, error)
	// Logout はセッションを即時に無効化する。
	Logout(ctx context.Context, sessionID string) error
}

// CookieConfig はセッションCookieの属性設定。
type CookieConfig struct {
	Secure bool // HTTPS配下でのみCookieを送信する
	MaxAge int  // Cookieの有効期間（秒）
}

// AdminHandler は管理者のログイン・ログアウトと管理画面操作のハンドラー。
type AdminHandler struct {
	authService    AuthServiceInterface
	requestService RequestServiceInterface
	store          AttachmentStore
	cookie         CookieConfig
}

// NewAdminHandler はAdminHandlerを生成する。
func NewAdminHandler(authService AuthServiceInterface, requestService RequestServiceInterface, store AttachmentStore, cookie CookieConfig) *AdminHandler {
	return &AdminHandler{
		authService:    authService,
		requestService: requestService,
		store:          store,
		cookie:         cookie,
	}
}

// LoginForm はログインフォームを表示する。
// GET /admin/login
func (h *AdminHandler) LoginForm(w http.ResponseWriter, r *http.Request) {
	renderTemplate(w, "login.html", loginPageData{})
}

// LoginPost は資格情報を検証してセッションCookieを発行する。
// POST /admin/login
func (h *AdminHandler) LoginPost(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		renderTemplate(w, "login.html", loginPageData{Error: "フォームの内容を読み取れませんでした。"})
		return
	}

	username := r.PostFormValue("username")
	password := r.PostFormValue("password")

	session, err := h.authService.Login(r.Context(), username, password)
	if err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) {
			w.WriteHeader(mapAPIErrorToHTTPStatus(apiErr))
			renderTemplate(w, "login.html", loginPageData{Error: apiErr.Message, Username: username})
			return
		}
		slog.Error("login failed", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusInternalServerError)
		renderTemplate(w, "login.html", loginPageData{Error: "内部エラーが発生しました。しばらく待ってから再度お試しください。"})
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.AdminSessionCookieName,
		Value:    session.ID,
		Path:     "/",
		MaxAge:   h.cookie.MaxAge,
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

// Logout はセッションを破棄してCookieを削除する。
// GET /admin/logout
func (h *AdminHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(middleware.AdminSessionCookieName); err == nil {
		if err := h.authService.Logout(r.Context(), cookie.Value); err != nil {
			slog.Error("logout failed", slog.String("error", err.Error()))
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.AdminSessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, "/admin/login", http.StatusSeeOther)
}

// TransitionForm は管理画面のフォームからステータスを遷移させる。
// POST /requests/:id/status
func (h *AdminHandler) TransitionForm(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := r.ParseForm(); err != nil {
		http.Redirect(w, r, "/requests?error=invalid_form", http.StatusSeeOther)
		return
	}

	to := model.Status(r.PostFormValue("status"))
	assignedTo := r.PostFormValue("assigned_to")

	_, err := h.requestService.Transition(r.Context(), id, to, assignedTo)
	if err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) {
			http.Redirect(w, r, "/requests?error="+apiErr.Code, http.StatusSeeOther)
			return
		}
		slog.Error("transition failed", slog.String("error", err.Error()))
		http.Redirect(w, r, "/requests?error=INTERNAL_ERROR", http.StatusSeeOther)
		return
	}

	http.Redirect(w, r, "/requests", http.StatusSeeOther)
}

// DownloadAttachment は添付ファイルを返す。
// GET /uploads/:requestID/:filename
func (h *AdminHandler) DownloadAttachment(w http.ResponseWriter, r *http.Request) {
	requestID := chi.URLParam(r, "requestID")
	filename := chi.URLParam(r, "filename")

	// 保存名は「リクエストID_元ファイル名」
	storedName := fmt.Sprintf("%s_%s", requestID, filename)
	f, err := h.store.Open(storedName)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if f == nil {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewRequestNotFoundError(requestID))
		return
	}
	defer f.Close()

	contentType := mime.TypeByExtension(filepath.Ext(filename))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))

	if _, err := io.Copy(w, f); err != nil {
		slog.Error("failed to stream attachment", slog.String("error", err.Error()))
	}
}
