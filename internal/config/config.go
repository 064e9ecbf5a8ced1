// Package config は環境変数からアプリケーション設定を読み込む。
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/hitoshi/campusbuzz/internal/model"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string `env:"DATABASE_URL,required,notEmpty"`

	// Chat transport
	// 未設定でも起動はできる。その場合の起動処理はエラー画面への遷移を返す。
	ChatAppID          string        `env:"CHAT_APP_ID"`
	ChatRegion         string        `env:"CHAT_REGION"`
	ChatAuthKey        string        `env:"CHAT_AUTH_KEY"`
	ChatBaseURL        string        `env:"CHAT_BASE_URL"`
	ChatRequestsPerSec float64       `env:"CHAT_REQUESTS_PER_SECOND" envDefault:"10"`
	ChatBurst          int           `env:"CHAT_BURST" envDefault:"5"`
	ChatHTTPTimeout    time.Duration `env:"CHAT_HTTP_TIMEOUT" envDefault:"15s"`

	// Bootstrap
	ChatInitTimeout      time.Duration `env:"CHAT_INIT_TIMEOUT" envDefault:"15s"`
	ChatLoginTimeout     time.Duration `env:"CHAT_LOGIN_TIMEOUT" envDefault:"10s"`
	ChatRegisterTimeout  time.Duration `env:"CHAT_REGISTER_TIMEOUT" envDefault:"10s"`
	BootstrapConcurrency string        `env:"BOOTSTRAP_CONCURRENCY" envDefault:"coalesce"`
	AppVersion           string        `env:"APP_VERSION" envDefault:"1.0.0"`

	// Session
	SessionMaxAge          int           `env:"SESSION_MAX_AGE" envDefault:"86400"`
	SessionCleanupInterval time.Duration `env:"SESSION_CLEANUP_INTERVAL" envDefault:"10m"`
	PresenceIdleThreshold  time.Duration `env:"PRESENCE_IDLE_THRESHOLD" envDefault:"30m"`

	// Rate Limit
	// 単位はreq/min。GeneralとGroupCreateはユーザー単位、AuthはクライアントIP単位。
	RateLimitGeneral     int `env:"RATE_LIMIT_GENERAL" envDefault:"120"`
	RateLimitGroupCreate int `env:"RATE_LIMIT_GROUP_CREATE" envDefault:"10"`
	RateLimitAuth        int `env:"RATE_LIMIT_AUTH" envDefault:"20"`

	// Logging
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Server
	ServerPort string `env:"SERVER_PORT" envDefault:"8080"`
	BaseURL    string `env:"BASE_URL" envDefault:"http://localhost:8080"`

	// Cookie
	// COOKIE_SECUREが未設定の場合はBASE_URLがhttpsかどうかで決める。
	CookieSecure bool   `env:"COOKIE_SECURE"`
	CookieDomain string `env:"COOKIE_DOMAIN"`

	// CORS
	CORSAllowedOrigin string `env:"CORS_ALLOWED_ORIGIN" envDefault:"http://localhost:3000"`
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定、または値が不正な場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if _, ok := os.LookupEnv("COOKIE_SECURE"); !ok {
		cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var invalid []string
	switch c.BootstrapConcurrency {
	case "coalesce", "reject":
	default:
		invalid = append(invalid, fmt.Sprintf("BOOTSTRAP_CONCURRENCY=%q (want coalesce or reject)", c.BootstrapConcurrency))
	}
	if c.SessionMaxAge <= 0 {
		invalid = append(invalid, "SESSION_MAX_AGE must be positive")
	}
	if c.RateLimitGeneral <= 0 || c.RateLimitGroupCreate <= 0 || c.RateLimitAuth <= 0 {
		invalid = append(invalid, "RATE_LIMIT_* must be positive")
	}
	if c.ChatRequestsPerSec <= 0 {
		invalid = append(invalid, "CHAT_REQUESTS_PER_SECOND must be positive")
	}
	for name, d := range map[string]time.Duration{
		"CHAT_INIT_TIMEOUT":        c.ChatInitTimeout,
		"CHAT_LOGIN_TIMEOUT":       c.ChatLoginTimeout,
		"CHAT_REGISTER_TIMEOUT":    c.ChatRegisterTimeout,
		"SESSION_CLEANUP_INTERVAL": c.SessionCleanupInterval,
	} {
		if d <= 0 {
			invalid = append(invalid, name+" must be positive")
		}
	}
	if len(invalid) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(invalid, "; "))
	}
	return nil
}

// Transport はチャットトランスポートの接続設定を返す。
func (c *Config) Transport() model.TransportConfig {
	return model.TransportConfig{
		EndpointRegion: c.ChatRegion,
		ApplicationID:  c.ChatAppID,
		AccessKey:      c.ChatAuthKey,
	}
}
