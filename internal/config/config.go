// Package config は環境変数からアプリケーション設定を読み込む。
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Presence バックエンドの種別
const (
	PresenceBackendMemory = "memory"
	PresenceBackendRedis  = "redis"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// OAuth
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string

	// Session
	SessionSecret string
	SessionMaxAge int

	// Video
	VideoAPIKey    string
	VideoAPISecret string
	VideoTokenTTL  time.Duration

	// Rate Limit
	RateLimitGeneral int
	RateLimitToken   int

	// Presence
	PresenceBackend string
	RedisURL        string

	// Cleanup
	CallIdleTimeout time.Duration
	CleanupInterval time.Duration

	// Logging
	LogLevel string

	// Server
	ServerPort string
	BaseURL    string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigin string
}

// DotEnvPath は起動時に読み込む .env ファイルのパス。
// 既に設定済みの環境変数は上書きしない。
var DotEnvPath = ".env"

// Load は環境変数からConfigを読み込む。
// 必須項目の欠落と、任意項目の不正値（数値・期間として読めない、0以下）はまとめて1つのエラーで返す。
func Load() (*Config, error) {
	if err := loadDotEnv(DotEnvPath); err != nil {
		return nil, err
	}

	var env envReader
	cfg := &Config{
		DatabaseURL:        env.required("DATABASE_URL"),
		GoogleClientID:     env.required("GOOGLE_CLIENT_ID"),
		GoogleClientSecret: env.required("GOOGLE_CLIENT_SECRET"),
		GoogleRedirectURL:  env.required("GOOGLE_REDIRECT_URL"),
		SessionSecret:      env.required("SESSION_SECRET"),
		BaseURL:            env.required("BASE_URL"),
		VideoAPIKey:        env.required("VIDEO_API_KEY"),
		VideoAPISecret:     env.required("VIDEO_API_SECRET"),

		SessionMaxAge:     env.positiveInt("SESSION_MAX_AGE", 86400),
		VideoTokenTTL:     env.positiveDuration("VIDEO_TOKEN_TTL", time.Hour),
		RateLimitGeneral:  env.positiveInt("RATE_LIMIT_GENERAL", 120),
		RateLimitToken:    env.positiveInt("RATE_LIMIT_TOKEN", 20),
		PresenceBackend:   strings.ToLower(env.str("PRESENCE_BACKEND", PresenceBackendMemory)),
		RedisURL:          env.str("REDIS_URL", "redis://localhost:6379/0"),
		CallIdleTimeout:   env.positiveDuration("CALL_IDLE_TIMEOUT", 2*time.Hour),
		CleanupInterval:   env.positiveDuration("CLEANUP_INTERVAL", 24*time.Hour),
		LogLevel:          env.str("LOG_LEVEL", "info"),
		ServerPort:        env.str("SERVER_PORT", "8080"),
		CookieDomain:      env.str("COOKIE_DOMAIN", ""),
		CORSAllowedOrigin: env.str("CORS_ALLOWED_ORIGIN", "http://localhost:3000"),
	}
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")

	switch cfg.PresenceBackend {
	case PresenceBackendMemory, PresenceBackendRedis:
	default:
		env.invalid = append(env.invalid, fmt.Sprintf("PRESENCE_BACKEND=%q (want %q or %q)",
			cfg.PresenceBackend, PresenceBackendMemory, PresenceBackendRedis))
	}

	if err := env.err(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// envReader は環境変数を読みながら問題を蓄積する。
type envReader struct {
	missing []string
	invalid []string
}

func (e *envReader) required(key string) string {
	v := os.Getenv(key)
	if v == "" {
		e.missing = append(e.missing, key)
	}
	return v
}

func (e *envReader) str(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func (e *envReader) positiveInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil || i <= 0 {
		e.invalid = append(e.invalid, fmt.Sprintf("%s=%q (want a positive integer)", key, v))
		return def
	}
	return i
}

func (e *envReader) positiveDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		e.invalid = append(e.invalid, fmt.Sprintf("%s=%q (want a positive duration such as 90s)", key, v))
		return def
	}
	return d
}

func (e *envReader) err() error {
	var errs []error
	if len(e.missing) > 0 {
		errs = append(errs, fmt.Errorf("required environment variables are not set: %s", strings.Join(e.missing, ", ")))
	}
	if len(e.invalid) > 0 {
		errs = append(errs, fmt.Errorf("invalid environment variables: %s", strings.Join(e.invalid, "; ")))
	}
	return errors.Join(errs...)
}

// LoadDatabaseURL はDATABASE_URLのみを読み込む。管理CLIなどDB以外の設定が不要な場合に使う。
func LoadDatabaseURL() (string, error) {
	if err := loadDotEnv(DotEnvPath); err != nil {
		return "", err
	}
	var env envReader
	v := env.required("DATABASE_URL")
	return v, env.err()
}

// loadDotEnv は .env が存在すれば読み込む。存在しない場合は何もしない。
func loadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}
