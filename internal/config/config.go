// Package config はアプリケーション全体の設定を提供する。
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Backend API
	APIBaseURL string

	// WhatsApp連携（別系統のAPIサーフェス。Bearerではなくテナントヘッダーで認証する）
	WhatsAppAPIURL   string
	WhatsAppTenantID string

	// ローカル状態
	StatePath   string
	DownloadDir string

	// Auth
	CurrentUserTimeout time.Duration
	LogoutTimeout      time.Duration

	// Polling
	PollInterval             time.Duration
	PollIntervalConnecting   time.Duration
	PollIntervalDisconnected time.Duration

	// Gateway
	RequestRatePerSec float64
	RequestBurst      int

	// Download history
	HistoryRetentionDays int

	// Agent
	AgentPort string

	// クライアント環境識別文字列（UI層から引き渡されるUser-Agent相当）
	ClientUserAgent string
}

// Load は環境変数からConfigを読み込む。
// カレントディレクトリに.envファイルが存在する場合は先に読み込む（存在しなくてもエラーにしない）。
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}

	cfg.APIBaseURL = getEnvString("API_BASE_URL", "http://localhost:8000")
	if err := validateBaseURL(cfg.APIBaseURL); err != nil {
		return nil, fmt.Errorf("invalid API_BASE_URL: %w", err)
	}

	cfg.WhatsAppAPIURL = getEnvString("WHATSAPP_API_URL", "https://api-dev.lexgoia.com.br")
	if err := validateBaseURL(cfg.WhatsAppAPIURL); err != nil {
		return nil, fmt.Errorf("invalid WHATSAPP_API_URL: %w", err)
	}
	cfg.WhatsAppTenantID = getEnvString("WHATSAPP_TENANT_ID", "lexgo-main-tenant")

	cfg.StatePath = getEnvString("STATE_PATH", defaultStatePath())
	cfg.DownloadDir = getEnvString("DOWNLOAD_DIR", defaultDownloadDir())

	cfg.CurrentUserTimeout = getEnvDuration("CURRENT_USER_TIMEOUT", 5*time.Second)
	cfg.LogoutTimeout = getEnvDuration("LOGOUT_TIMEOUT", 3*time.Second)

	cfg.PollInterval = getEnvDuration("POLL_INTERVAL", 7*time.Second)
	cfg.PollIntervalConnecting = getEnvDuration("POLL_INTERVAL_CONNECTING", 3*time.Second)
	cfg.PollIntervalDisconnected = getEnvDuration("POLL_INTERVAL_DISCONNECTED", 10*time.Second)

	cfg.RequestRatePerSec = getEnvFloat("REQUEST_RATE_PER_SEC", 10)
	cfg.RequestBurst = getEnvInt("REQUEST_BURST", 20)

	cfg.HistoryRetentionDays = getEnvInt("HISTORY_RETENTION_DAYS", 90)

	cfg.AgentPort = getEnvString("AGENT_PORT", "8090")
	cfg.ClientUserAgent = getEnvString("CLIENT_USER_AGENT", "")

	return cfg, nil
}

// validateBaseURL はベースURLがhttp/httpsの絶対URLであることを検証する。
func validateBaseURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https: %s", raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("host is empty: %s", raw)
	}
	return nil
}

// defaultStatePath はローカル状態DBのデフォルトパスを返す。
// ホームディレクトリが特定できない場合はカレントディレクトリ直下を使う。
func defaultStatePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "catman.db"
	}
	return filepath.Join(home, ".catman", "state.db")
}

// defaultDownloadDir はカタログPDFの保存先デフォルトディレクトリを返す。
func defaultDownloadDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, "Downloads")
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

func getEnvFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
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
