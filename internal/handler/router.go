// Package handler はHTTPハンドラーとルーティングを提供する。
package handler

import (
	"log/slog"
	"net/http"

	"github.com/demulla/servicedesk/internal/middleware"
	"github.com/go-chi/chi/v5"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	SessionAuthorizer middleware.SessionAuthorizer
	RateLimiter       *middleware.RateLimiter
	HTTPMetrics       middleware.HTTPMetricsRecorder
	Logger            *slog.Logger

	// サービス
	RequestService RequestServiceInterface
	AuthService    AuthServiceInterface

	// 添付ファイル
	AttachmentStore AttachmentStore

	// セッションCookie設定
	Cookie CookieConfig

	// 運用エンドポイント
	DBPinger       Pinger
	MetricsHandler http.Handler
}

// NewRouter は全ルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → Logging → (ルートごとのRateLimit/Session)
//
// /healthと/metricsはレート制限の外に置く。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewLoggingMiddleware(deps.Logger, deps.HTTPMetrics))

	webHandler := NewWebHandler(deps.RequestService, deps.AttachmentStore)
	adminHandler := NewAdminHandler(deps.AuthService, deps.RequestService, deps.AttachmentStore, deps.Cookie)
	apiHandler := NewRequestAPIHandler(deps.RequestService)
	statsHandler := NewStatsAPIHandler(deps.RequestService)
	healthHandler := NewHealthHandler(deps.DBPinger)

	// --- 運用エンドポイント（レート制限なし） ---
	r.Get("/health", healthHandler.Health)
	r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)

	// --- 認証不要のルート ---
	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// 申請フォーム
		r.Get("/", webHandler.Home)
		r.Get("/submit", webHandler.SubmitForm)
		r.Post("/submit", webHandler.SubmitPost)
		r.Get("/submission-success/{id}", webHandler.SubmissionSuccess)

		// 管理者ログイン（ログイン専用レート制限を追加）
		r.Get("/admin/login", adminHandler.LoginForm)
		r.With(deps.RateLimiter.LoginMiddleware()).Post("/admin/login", adminHandler.LoginPost)

		// 公開JSON API
		r.Get("/api/requests", apiHandler.ListRequests)
		r.Get("/api/requests/{id}", apiHandler.GetRequest)
	})

	// --- 認証が必要なルート ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewAdminSessionMiddleware(deps.SessionAuthorizer))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// 管理画面
		r.Get("/requests", webHandler.RequestsPage)
		r.Get("/dashboard", webHandler.DashboardPage)
		r.Get("/admin/logout", adminHandler.Logout)
		r.Post("/requests/{id}/status", adminHandler.TransitionForm)
		r.Get("/uploads/{requestID}/{filename}", adminHandler.DownloadAttachment)

		// 管理JSON API
		r.Put("/api/requests/{id}/status", apiHandler.UpdateRequestStatus)
		r.Get("/api/stats", statsHandler.Stats)
	})

	return r
}
