package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/demulla/servicedesk/internal/auth"
	"github.com/demulla/servicedesk/internal/model"
)

// mockSessionAuthorizer はテスト用のSessionAuthorizer実装。
type mockSessionAuthorizer struct {
	authorizeFn func(ctx context.Context, sessionID string) (*model.AdminUser, error)
}

func (m *mockSessionAuthorizer) Authorize(ctx context.Context, sessionID string) (*model.AdminUser, error) {
	return m.authorizeFn(ctx, sessionID)
}

func okHandler(t *testing.T, wantAdminID string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		adminID, err := AdminIDFromContext(r.Context())
		if err != nil {
			t.Errorf("AdminIDFromContext returned error: %v", err)
		}
		if adminID != wantAdminID {
			t.Errorf("admin ID = %q, want %q", adminID, wantAdminID)
		}
		w.WriteHeader(http.StatusOK)
	})
}

// TestAdminSessionMiddleware_ValidSession は有効なセッションの通過を検証する。
func TestAdminSessionMiddleware_ValidSession(t *testing.T) {
	authorizer := &mockSessionAuthorizer{
		authorizeFn: func(ctx context.Context, sessionID string) (*model.AdminUser, error) {
			if sessionID != "sess-1" {
				t.Errorf("authorized session %q, want sess-1", sessionID)
			}
			return &model.AdminUser{ID: "admin-1", Username: "admin", IsActive: true}, nil
		},
	}
	mw := NewAdminSessionMiddleware(authorizer)

	req := httptest.NewRequest("GET", "/dashboard", nil)
	req.AddCookie(&http.Cookie{Name: AdminSessionCookieName, Value: "sess-1"})
	rec := httptest.NewRecorder()

	mw(okHandler(t, "admin-1")).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

// TestAdminSessionMiddleware_MissingCookie はCookieなしの画面リクエストがログイン画面へ誘導されることを検証する。
func TestAdminSessionMiddleware_MissingCookie(t *testing.T) {
	authorizer := &mockSessionAuthorizer{
		authorizeFn: func(ctx context.Context, sessionID string) (*model.AdminUser, error) {
			t.Fatal("Authorize must not be called without a cookie")
			return nil, nil
		},
	}
	mw := NewAdminSessionMiddleware(authorizer)

	req := httptest.NewRequest("GET", "/dashboard", nil)
	rec := httptest.NewRecorder()

	mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not be reached")
	})).ServeHTTP(rec, req)

	if rec.Code != http.StatusSeeOther {
		t.Errorf("status = %d, want 303", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/admin/login" {
		t.Errorf("Location = %q, want /admin/login", loc)
	}
}

// TestAdminSessionMiddleware_UnknownSessionOnAPI は不明なセッションのAPIリクエストへの401を検証する。
func TestAdminSessionMiddleware_UnknownSessionOnAPI(t *testing.T) {
	authorizer := &mockSessionAuthorizer{
		authorizeFn: func(ctx context.Context, sessionID string) (*model.AdminUser, error) {
			return nil, model.NewUnauthorizedError()
		},
	}
	mw := NewAdminSessionMiddleware(authorizer)

	req := httptest.NewRequest("PUT", "/api/requests/abc/status", nil)
	req.AddCookie(&http.Cookie{Name: AdminSessionCookieName, Value: "expired-or-unknown"})
	rec := httptest.NewRecorder()

	mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not be reached")
	})).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), model.ErrCodeUnauthorized) {
		t.Errorf("body should contain %q, got %q", model.ErrCodeUnauthorized, rec.Body.String())
	}
}

// TestAdminSessionMiddleware_AuthorizerError は検証エラー時に認証失敗として扱われることを検証する。
func TestAdminSessionMiddleware_AuthorizerError(t *testing.T) {
	authorizer := &mockSessionAuthorizer{
		authorizeFn: func(ctx context.Context, sessionID string) (*model.AdminUser, error) {
			return nil, errors.New("db down")
		},
	}
	mw := NewAdminSessionMiddleware(authorizer)

	req := httptest.NewRequest("GET", "/api/stats", nil)
	req.AddCookie(&http.Cookie{Name: AdminSessionCookieName, Value: "sess-1"})
	rec := httptest.NewRecorder()

	mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not be reached")
	})).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

// stubAdminRepo は固定の管理者を返すAdminRepository実装。
type stubAdminRepo struct {
	admin *model.AdminUser
}

func (s *stubAdminRepo) Count(ctx context.Context) (int, error)                    { return 1, nil }
func (s *stubAdminRepo) Create(ctx context.Context, admin *model.AdminUser) error  { return nil }
func (s *stubAdminRepo) FindByUsername(ctx context.Context, username string) (*model.AdminUser, error) {
	return s.admin, nil
}
func (s *stubAdminRepo) FindByID(ctx context.Context, id string) (*model.AdminUser, error) {
	return s.admin, nil
}
func (s *stubAdminRepo) RecordLoginSuccess(ctx context.Context, id string, at time.Time) error {
	return nil
}
func (s *stubAdminRepo) RecordLoginFailure(ctx context.Context, id string, maxAttempts int, lockedUntil time.Time) error {
	return nil
}

// stubSessionRepo は固定のセッションを返すSessionRepository実装。
type stubSessionRepo struct {
	session *model.Session
}

func (s *stubSessionRepo) Create(ctx context.Context, session *model.Session) error { return nil }
func (s *stubSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	return s.session, nil
}
func (s *stubSessionRepo) DeleteByID(ctx context.Context, id string) error     { return nil }
func (s *stubSessionRepo) DeleteExpired(ctx context.Context) (int64, error)    { return 0, nil }

// TestAdminSessionMiddleware_DeactivatedAdmin は認証サービス本体を通し、
// 無効化された管理者の生きているセッションが拒否されることを検証する。
func TestAdminSessionMiddleware_DeactivatedAdmin(t *testing.T) {
	session := &model.Session{
		ID:        "sess-1",
		AdminID:   "admin-1",
		ExpiresAt: time.Now().Add(time.Hour),
	}
	admin := &model.AdminUser{ID: "admin-1", Username: "admin", IsActive: false}

	authService := auth.NewService(
		&stubAdminRepo{admin: admin},
		&stubSessionRepo{session: session},
		auth.ServiceConfig{SessionMaxAge: 3600},
	)
	mw := NewAdminSessionMiddleware(authService)

	req := httptest.NewRequest("GET", "/api/stats", nil)
	req.AddCookie(&http.Cookie{Name: AdminSessionCookieName, Value: "sess-1"})
	rec := httptest.NewRecorder()

	mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not be reached for a deactivated admin")
	})).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}

	// 同じ構成で有効な管理者なら通過する。
	admin.IsActive = true
	req = httptest.NewRequest("GET", "/api/stats", nil)
	req.AddCookie(&http.Cookie{Name: AdminSessionCookieName, Value: "sess-1"})
	rec = httptest.NewRecorder()

	mw(okHandler(t, "admin-1")).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

// TestAdminIDFromContext_Missing はコンテキスト未設定時のエラーを検証する。
func TestAdminIDFromContext_Missing(t *testing.T) {
	if _, err := AdminIDFromContext(context.Background()); err == nil {
		t.Error("AdminIDFromContext should fail for a bare context")
	}
}

// TestContextWithAdminID は注入した管理者IDの取得を検証する。
func TestContextWithAdminID(t *testing.T) {
	ctx := ContextWithAdminID(context.Background(), "admin-9")
	adminID, err := AdminIDFromContext(ctx)
	if err != nil {
		t.Fatalf("AdminIDFromContext returned error: %v", err)
	}
	if adminID != "admin-9" {
		t.Errorf("admin ID = %q, want admin-9", adminID)
	}
}
