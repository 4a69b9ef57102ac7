package handler

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/demulla/servicedesk/internal/middleware"
	"github.com/demulla/servicedesk/internal/model"
)

// mockAuthService はテスト用のAuthServiceInterface実装。
type mockAuthService struct {
	loginFn  func(ctx context.Context, username, password string) (*model.Session, error)
	logoutFn func(ctx context.Context, sessionID string) error
}

func (m *mockAuthService) Login(ctx context.Context, username, password string) (*model.Session, error) {
	return m.loginFn(ctx, username, password)
}

func (m *mockAuthService) Logout(ctx context.Context, sessionID string) error {
	return m.logoutFn(ctx, sessionID)
}

var _ AuthServiceInterface = (*mockAuthService)(nil)

func postForm(target string, values url.Values) *http.Request {
	req := httptest.NewRequest("POST", target, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

// TestLoginPost_Success はログイン成功時のCookie発行とリダイレクトを検証する。
func TestLoginPost_Success(t *testing.T) {
	auth := &mockAuthService{
		loginFn: func(ctx context.Context, username, password string) (*model.Session, error) {
			if username != "admin" || password != "secret" {
				t.Errorf("Login(%q, %q), want (admin, secret)", username, password)
			}
			return &model.Session{ID: "sess-1", AdminID: "admin-1", ExpiresAt: time.Now().Add(time.Hour)}, nil
		},
	}
	h := NewAdminHandler(auth, nil, nil, CookieConfig{Secure: true, MaxAge: 86400})

	req := postForm("/admin/login", url.Values{"username": {"admin"}, "password": {"secret"}})
	rec := httptest.NewRecorder()
	h.LoginPost(rec, req)

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want 303", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/dashboard" {
		t.Errorf("Location = %q, want /dashboard", loc)
	}

	cookies := rec.Result().Cookies()
	var sessionCookie *http.Cookie
	for _, c := range cookies {
		if c.Name == middleware.AdminSessionCookieName {
			sessionCookie = c
		}
	}
	if sessionCookie == nil {
		t.Fatal("session cookie should be set")
	}
	if sessionCookie.Value != "sess-1" {
		t.Errorf("cookie value = %q, want sess-1", sessionCookie.Value)
	}
	if !sessionCookie.HttpOnly {
		t.Error("session cookie must be HttpOnly")
	}
	if !sessionCookie.Secure {
		t.Error("session cookie should be Secure per config")
	}
	if sessionCookie.SameSite != http.SameSiteLaxMode {
		t.Error("session cookie should be SameSite=Lax")
	}
}

// TestLoginPost_InvalidCredentials は認証失敗時のフォーム再表示を検証する。
func TestLoginPost_InvalidCredentials(t *testing.T) {
	auth := &mockAuthService{
		loginFn: func(ctx context.Context, username, password string) (*model.Session, error) {
			return nil, model.NewInvalidCredentialsError()
		},
	}
	h := NewAdminHandler(auth, nil, nil, CookieConfig{})

	req := postForm("/admin/login", url.Values{"username": {"admin"}, "password": {"wrong"}})
	rec := httptest.NewRecorder()
	h.LoginPost(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
	if len(rec.Result().Cookies()) != 0 {
		t.Error("failed login must not set a session cookie")
	}
	body := rec.Body.String()
	if !strings.Contains(body, "ユーザー名またはパスワードが正しくありません") {
		t.Error("login form should show the credentials error")
	}
	if !strings.Contains(body, `value="admin"`) {
		t.Error("login form should preserve the entered username")
	}
}

// TestLoginPost_LockedAccount はロック中アカウントへの403を検証する。
func TestLoginPost_LockedAccount(t *testing.T) {
	auth := &mockAuthService{
		loginFn: func(ctx context.Context, username, password string) (*model.Session, error) {
			return nil, model.NewAccountLockedError()
		},
	}
	h := NewAdminHandler(auth, nil, nil, CookieConfig{})

	req := postForm("/admin/login", url.Values{"username": {"admin"}, "password": {"secret"}})
	rec := httptest.NewRecorder()
	h.LoginPost(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
}

// TestLogout_DestroysSession はログアウト時のセッション破棄とCookie削除を検証する。
func TestLogout_DestroysSession(t *testing.T) {
	loggedOut := ""
	auth := &mockAuthService{
		logoutFn: func(ctx context.Context, sessionID string) error {
			loggedOut = sessionID
			return nil
		},
	}
	h := NewAdminHandler(auth, nil, nil, CookieConfig{})

	req := httptest.NewRequest("GET", "/admin/logout", nil)
	req.AddCookie(&http.Cookie{Name: middleware.AdminSessionCookieName, Value: "sess-1"})
	rec := httptest.NewRecorder()
	h.Logout(rec, req)

	if loggedOut != "sess-1" {
		t.Errorf("logged out session = %q, want sess-1", loggedOut)
	}
	if rec.Code != http.StatusSeeOther {
		t.Errorf("status = %d, want 303", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/admin/login" {
		t.Errorf("Location = %q, want /admin/login", loc)
	}

	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].MaxAge != -1 {
		t.Error("logout should expire the session cookie")
	}
}

// TestTransitionForm_Success はフォーム遷移成功時のリダイレクトを検証する。
func TestTransitionForm_Success(t *testing.T) {
	service := &mockRequestService{
		transitionFn: func(ctx context.Context, id string, to model.Status, assignedTo string) (*model.ServiceRequest, error) {
			if id != "req-1" || to != model.StatusInProgress {
				t.Errorf("Transition(%q, %q), want (req-1, In Progress)", id, to)
			}
			return testRequest(id, to), nil
		},
	}
	h := NewAdminHandler(nil, service, nil, CookieConfig{})

	req := postForm("/requests/req-1/status", url.Values{"status": {"In Progress"}, "assigned_to": {"hanako"}})
	req = chiRequest("POST", "/requests/req-1/status", req.Body, map[string]string{"id": "req-1"})
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.TransitionForm(rec, req)

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want 303", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/requests" {
		t.Errorf("Location = %q, want /requests", loc)
	}
}

// TestTransitionForm_IllegalTransition は遷移拒否時のエラー付きリダイレクトを検証する。
func TestTransitionForm_IllegalTransition(t *testing.T) {
	service := &mockRequestService{
		transitionFn: func(ctx context.Context, id string, to model.Status, assignedTo string) (*model.ServiceRequest, error) {
			return nil, model.NewIllegalTransitionError(model.StatusOpen, model.StatusClosed)
		},
	}
	h := NewAdminHandler(nil, service, nil, CookieConfig{})

	req := postForm("/requests/req-1/status", url.Values{"status": {"Closed"}})
	req = chiRequest("POST", "/requests/req-1/status", req.Body, map[string]string{"id": "req-1"})
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.TransitionForm(rec, req)

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want 303", rec.Code)
	}
	if loc := rec.Header().Get("Location"); !strings.Contains(loc, model.ErrCodeIllegalTransition) {
		t.Errorf("Location = %q, want error code in query", loc)
	}
}

// TestDownloadAttachment はID突き合わせ済みの保存名でのダウンロードを検証する。
func TestDownloadAttachment(t *testing.T) {
	store := &mockAttachmentStore{
		openFn: func(storedName string) (io.ReadCloser, error) {
			if storedName != "req-1_report.pdf" {
				t.Errorf("opened %q, want req-1_report.pdf", storedName)
			}
			return io.NopCloser(strings.NewReader("pdf bytes")), nil
		},
	}
	h := NewAdminHandler(nil, nil, store, CookieConfig{})

	req := chiRequest("GET", "/uploads/req-1/report.pdf", nil, map[string]string{
		"requestID": "req-1",
		"filename":  "report.pdf",
	})
	rec := httptest.NewRecorder()
	h.DownloadAttachment(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Body.String() != "pdf bytes" {
		t.Errorf("body = %q, want attachment bytes", rec.Body.String())
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "report.pdf") {
		t.Errorf("Content-Disposition = %q, want filename", cd)
	}
}

// TestDownloadAttachment_Missing は未保存ファイルへの404を検証する。
func TestDownloadAttachment_Missing(t *testing.T) {
	store := &mockAttachmentStore{
		openFn: func(storedName string) (io.ReadCloser, error) {
			return nil, nil
		},
	}
	h := NewAdminHandler(nil, nil, store, CookieConfig{})

	req := chiRequest("GET", "/uploads/req-1/missing.pdf", nil, map[string]string{
		"requestID": "req-1",
		"filename":  "missing.pdf",
	})
	rec := httptest.NewRecorder()
	h.DownloadAttachment(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}
