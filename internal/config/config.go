// Package config はアプリケーション設定の読み込みを提供する。
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Connector（外部プロトコルコネクタ）
	ConnectorAPIID   string
	ConnectorAPIHash string
	BridgeURL        string
	BridgeTimeout    time.Duration

	// Session
	SessionBaseDir    string
	SessionExpiryDays int

	// Rate Limit（req/min/user）
	RateLimitGeneral int
	RateLimitLogin   int

	// Diagnostics
	SentryDSN string

	// Server
	ServerPort string
	BaseURL    string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.ConnectorAPIID = os.Getenv("CONNECTOR_API_ID")
	if cfg.ConnectorAPIID == "" {
		missing = append(missing, "CONNECTOR_API_ID")
	}

	cfg.ConnectorAPIHash = os.Getenv("CONNECTOR_API_HASH")
	if cfg.ConnectorAPIHash == "" {
		missing = append(missing, "CONNECTOR_API_HASH")
	}

	cfg.BridgeURL = os.Getenv("CONNECTOR_BRIDGE_URL")
	if cfg.BridgeURL == "" {
		missing = append(missing, "CONNECTOR_BRIDGE_URL")
	}

	cfg.BaseURL = os.Getenv("BASE_URL")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.BridgeTimeout = getEnvDuration("CONNECTOR_BRIDGE_TIMEOUT", 30*time.Second)
	cfg.SessionBaseDir = getEnvString("SESSION_BASE_DIR", "/var/lib/gramlink/sessions")
	cfg.SessionExpiryDays = getEnvInt("SESSION_EXPIRY_DAYS", 5)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitLogin = getEnvInt("RATE_LIMIT_LOGIN", 10)
	cfg.SentryDSN = getEnvString("SENTRY_DSN", "")
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
}

// SessionExpiry はセッションのデフォルト有効期間をDurationで返す。
func (c *Config) SessionExpiry() time.Duration {
	return time.Duration(c.SessionExpiryDays) * 24 * time.Hour
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
