package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Upstream Portal API
	PortalAPIBaseURL      string
	PortalAPIServiceToken string // バックグラウンド再取得用のサービストークン（未設定可）
	PortalAPITimeout      time.Duration
	RetryMax              int
	RetryBackoff          time.Duration

	// Database
	DatabaseURL string

	// Cache
	CacheMaxAge          time.Duration
	RefreshInterval      time.Duration
	RefreshMaxConcurrent int

	// Workflow
	ClearDelay time.Duration
	BulkNotes  string

	// Rate Limit
	RateLimitGeneral int
	RateLimitSubmit  int

	// History
	HistoryRetentionDays int

	// Server
	ServerPort string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.PortalAPIBaseURL = os.Getenv("PORTAL_API_BASE_URL")
	if cfg.PortalAPIBaseURL == "" {
		missing = append(missing, "PORTAL_API_BASE_URL")
	}

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.PortalAPIServiceToken = getEnvString("PORTAL_API_SERVICE_TOKEN", "")
	cfg.PortalAPITimeout = getEnvDuration("PORTAL_API_TIMEOUT", 30*time.Second)
	cfg.RetryMax = getEnvInt("FETCH_RETRY_MAX", 3)
	cfg.RetryBackoff = getEnvDuration("FETCH_RETRY_BACKOFF", time.Second)
	cfg.CacheMaxAge = getEnvDuration("CACHE_MAX_AGE", 5*time.Minute)
	cfg.RefreshInterval = getEnvDuration("REFRESH_INTERVAL", 5*time.Minute)
	cfg.RefreshMaxConcurrent = getEnvInt("REFRESH_MAX_CONCURRENT", 10)
	cfg.ClearDelay = getEnvDuration("CLEAR_DELAY", 3*time.Second)
	cfg.BulkNotes = getEnvString("BULK_NOTES", "Bulk assignment via Assignment Page")
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitSubmit = getEnvInt("RATE_LIMIT_SUBMIT", 10)
	cfg.HistoryRetentionDays = getEnvInt("HISTORY_RETENTION_DAYS", 90)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
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
