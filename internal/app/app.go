package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/demulla/servicedesk/internal/auth"
	"github.com/demulla/servicedesk/internal/config"
	"github.com/demulla/servicedesk/internal/database"
	"github.com/demulla/servicedesk/internal/handler"
	"github.com/demulla/servicedesk/internal/logger"
	"github.com/demulla/servicedesk/internal/metrics"
	"github.com/demulla/servicedesk/internal/middleware"
	"github.com/demulla/servicedesk/internal/notify"
	"github.com/demulla/servicedesk/internal/repository"
	"github.com/demulla/servicedesk/internal/request"
	"github.com/demulla/servicedesk/internal/security"
	"github.com/demulla/servicedesk/internal/upload"
	"golang.org/x/time/rate"
)

// sessionSweepInterval は期限切れセッションの掃除間隔。
const sessionSweepInterval = 1 * time.Hour

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// runServe はWebサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. リポジトリの初期化
	requestRepo := repository.NewPostgresRequestRepo(db)
	adminRepo := repository.NewPostgresAdminRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)

	// 3. 初期管理者アカウントの確保
	if err := auth.Bootstrap(context.Background(), adminRepo, auth.BootstrapConfig{
		Username: cfg.DefaultAdminUsername,
		Password: cfg.DefaultAdminPassword,
		Email:    cfg.DefaultAdminEmail,
	}); err != nil {
		return fmt.Errorf("admin bootstrap failed: %w", err)
	}

	// 4. メトリクスと通知の初期化
	collector := metrics.NewCollector()

	var sender notify.Sender
	if cfg.MailEnabled() {
		sender = notify.NewMailgunSender(cfg.MailgunDomain, cfg.MailgunAPIKey, cfg.MailFrom)
		slog.Info("mail notifications enabled",
			slog.String("domain", cfg.MailgunDomain),
			slog.String("to", cfg.AdminNotifyEmail),
		)
	} else {
		slog.Info("mail notifications disabled (Mailgun settings are not configured)")
	}
	dispatcher := notify.NewDispatcher(sender, cfg.AdminNotifyEmail, cfg.NotifyTimeout, collector)

	// 5. ドメインサービスの初期化
	sanitizer := security.NewTextSanitizer()
	requestService := request.NewService(requestRepo, sanitizer, dispatcher, collector)
	authService := auth.NewService(adminRepo, sessionRepo, auth.ServiceConfig{
		SessionMaxAge: cfg.SessionMaxAge,
	})

	// 6. 添付ファイルストアの初期化
	store, err := upload.NewStore(cfg.UploadDir, cfg.MaxUploadSize)
	if err != nil {
		return fmt.Errorf("failed to initialize upload store: %w", err)
	}

	// 7. ルーターの構築
	// configのレート制限はreq/min単位なのでreq/secに変換する
	rateLimiterCfg := middleware.DefaultRateLimiterConfig()
	rateLimiterCfg.GeneralRate = rate.Limit(float64(cfg.RateLimitGeneral) / 60.0)
	rateLimiterCfg.GeneralBurst = cfg.RateLimitGeneral
	rateLimiterCfg.LoginRate = rate.Limit(float64(cfg.RateLimitLogin) / 60.0)
	rateLimiterCfg.LoginBurst = cfg.RateLimitLogin
	rateLimiter := middleware.NewRateLimiter(rateLimiterCfg)
	defer rateLimiter.Stop()

	deps := &handler.RouterDeps{
		SessionAuthorizer: authService,
		RateLimiter:   rateLimiter,
		HTTPMetrics:   collector,
		Logger:        slog.Default(),

		RequestService: requestService,
		AuthService:    authService,

		AttachmentStore: store,

		Cookie: handler.CookieConfig{
			Secure: cfg.CookieSecure,
			MaxAge: cfg.SessionMaxAge,
		},

		DBPinger:       db,
		MetricsHandler: collector.Handler(),
	}

	router := handler.NewRouter(deps)

	// 8. 期限切れセッションの定期削除
	sweepCtx, cancelSweep := context.WithCancel(context.Background())
	defer cancelSweep()
	go sweepSessions(sweepCtx, sessionRepo)

	// 9. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	// 送信中の通知goroutineを待ってから終了する
	dispatcher.Wait()

	slog.Info("server stopped gracefully")
	return nil
}

// sweepSessions は期限切れセッションを定期的に削除する。
// 起動直後に1回実行し、以降はsessionSweepInterval間隔で繰り返す。
func sweepSessions(ctx context.Context, sessionRepo repository.SessionRepository) {
	sweep := func() {
		deleted, err := sessionRepo.DeleteExpired(ctx)
		if err != nil {
			slog.Error("session sweep failed", slog.String("error", err.Error()))
			return
		}
		if deleted > 0 {
			slog.Info("expired sessions deleted", slog.Int64("count", deleted))
		}
	}

	sweep()

	ticker := time.NewTicker(sessionSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweep()
		}
	}
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
