// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/demulla/servicedesk/internal/model"
)

// AdminSessionCookieName は管理者セッションIDを格納するCookie名。
const AdminSessionCookieName = "admin_session"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// adminIDContextKey はリクエストコンテキストに管理者IDを格納するためのキー。
var adminIDContextKey = contextKey("admin_id")

// SessionAuthorizer はセッションIDから認証済み管理者を解決するインターフェース。
// auth.Serviceの部分集合として定義する。セッションの有効性だけでなく
// 管理者アカウント自体の状態（is_active）も検証する。
type SessionAuthorizer interface {
	Authorize(ctx context.Context, sessionID string) (*model.AdminUser, error)
}

// NewAdminSessionMiddleware はHTTP Only Cookieから管理者セッションを読み取り、
// Authorizeで検証するミドルウェアを返す。
// 認証済み管理者IDをリクエストコンテキストに注入する。
// 未認証の場合、APIリクエストには401、画面リクエストにはログイン画面への
// リダイレクトを返す。期限切れ・不明なセッション・無効化済み管理者の
// 応答は区別しない。
func NewAdminSessionMiddleware(authorizer SessionAuthorizer) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(AdminSessionCookieName)
			if err != nil || cookie.Value == "" {
				rejectUnauthenticated(w, r)
				return
			}

			admin, err := authorizer.Authorize(r.Context(), cookie.Value)
			if err != nil {
				var apiErr *model.APIError
				if !errors.As(err, &apiErr) {
					slog.Error("failed to authorize admin session",
						slog.String("error", err.Error()),
					)
				}
				rejectUnauthenticated(w, r)
				return
			}

			ctx := context.WithValue(r.Context(), adminIDContextKey, admin.ID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// rejectUnauthenticated は未認証リクエストへの応答を書き込む。
func rejectUnauthenticated(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.URL.Path, "/api/") {
		WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}
	http.Redirect(w, r, "/admin/login", http.StatusSeeOther)
}

// AdminIDFromContext はリクエストコンテキストから管理者IDを取得する。
// セッションミドルウェアを通過したリクエストでのみ有効。
func AdminIDFromContext(ctx context.Context) (string, error) {
	adminID, ok := ctx.Value(adminIDContextKey).(string)
	if !ok || adminID == "" {
		return "", fmt.Errorf("admin ID not found in context")
	}
	return adminID, nil
}

// ContextWithAdminID はコンテキストに管理者IDを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithAdminID(ctx context.Context, adminID string) context.Context {
	return context.WithValue(ctx, adminIDContextKey, adminID)
}
