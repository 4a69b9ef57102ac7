// Package config はアプリケーション設定の読み込みを提供する。
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Session
	SessionMaxAge int // 秒

	// Mail（Mailgun設定が空の場合は通知を無効化する）
	MailgunDomain    string
	MailgunAPIKey    string
	AdminNotifyEmail string
	MailFrom         string
	NotifyTimeout    time.Duration

	// Upload
	UploadDir     string
	MaxUploadSize int64

	// Bootstrap
	DefaultAdminUsername string
	DefaultAdminPassword string
	DefaultAdminEmail    string

	// Rate Limit（req/min単位）
	RateLimitGeneral int
	RateLimitLogin   int

	// Server
	ServerPort string
	BaseURL    string

	// Cookie
	CookieSecure bool
}

// Load は環境変数からConfigを読み込む。
// カレントディレクトリに.envがあれば先に読み込む（既存の環境変数が優先）。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	// .envはローカル開発用。存在しなくてもエラーにしない。
	_ = godotenv.Load()

	cfg := &Config{}

	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	cfg.SessionMaxAge = getEnvInt("SESSION_MAX_AGE", 86400)

	cfg.MailgunDomain = os.Getenv("MAILGUN_DOMAIN")
	cfg.MailgunAPIKey = os.Getenv("MAILGUN_API_KEY")
	cfg.AdminNotifyEmail = os.Getenv("ADMIN_NOTIFY_EMAIL")
	cfg.MailFrom = getEnvString("MAIL_FROM", "servicedesk@"+cfg.MailgunDomain)
	cfg.NotifyTimeout = getEnvDuration("NOTIFY_TIMEOUT", 10*time.Second)

	cfg.UploadDir = getEnvString("UPLOAD_DIR", "uploads")
	cfg.MaxUploadSize = getEnvInt64("MAX_UPLOAD_SIZE", 16*1024*1024)

	cfg.DefaultAdminUsername = getEnvString("DEFAULT_ADMIN_USERNAME", "admin")
	cfg.DefaultAdminPassword = getEnvString("DEFAULT_ADMIN_PASSWORD", "admin123")
	cfg.DefaultAdminEmail = getEnvString("DEFAULT_ADMIN_EMAIL", "admin@demulla.local")

	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitLogin = getEnvInt("RATE_LIMIT_LOGIN", 10)

	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.BaseURL = getEnvString("BASE_URL", "http://localhost:"+cfg.ServerPort)
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")

	return cfg, nil
}

// MailEnabled はメール通知が設定済みかどうかを返す。
func (c *Config) MailEnabled() bool {
	return c.MailgunDomain != "" && c.MailgunAPIKey != "" && c.AdminNotifyEmail != ""
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
