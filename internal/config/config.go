package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	// DatabaseURLが設定されている場合はDBPathより優先される（postgres://）。
	DBPath      string `env:"DB_PATH" envDefault:"wikifeed.db"`
	DatabaseURL string `env:"DATABASE_URL"`

	// Upstream
	UserAgent      string        `env:"USER_AGENT" envDefault:"wikifeed/1.0 (+https://github.com/hitoshi/wikifeed)"`
	WikipediaLang  string        `env:"WIKIPEDIA_LANG" envDefault:"ja"`
	SummaryTimeout time.Duration `env:"SUMMARY_TIMEOUT" envDefault:"10s"`
	MaxAttempts    int           `env:"MAX_ATTEMPTS" envDefault:"12"`

	// Content fetch
	ContentTimeout       time.Duration `env:"CONTENT_TIMEOUT" envDefault:"15s"`
	ContentMaxSize       int64         `env:"CONTENT_MAX_SIZE" envDefault:"5242880"`
	BoilerplateRulesPath string        `env:"BOILERPLATE_RULES_PATH"`
	AllowPrivateNetworks bool          `env:"ALLOW_PRIVATE_NETWORKS" envDefault:"false"`

	// Rate Limit (req/min)
	RateLimitGeneral int `env:"RATE_LIMIT_GENERAL" envDefault:"120"`
	RateLimitContent int `env:"RATE_LIMIT_CONTENT" envDefault:"30"`

	// Server
	ServerPort        string `env:"SERVER_PORT" envDefault:"8080"`
	CORSAllowedOrigin string `env:"CORS_ALLOWED_ORIGIN" envDefault:"*"`

	// Logging
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// Load は環境変数からConfigを読み込む。
// 値の形式が不正な場合や範囲外の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment variables: %w", err)
	}

	if cfg.DSN() == "" {
		return nil, fmt.Errorf("either DB_PATH or DATABASE_URL must be set")
	}
	if cfg.MaxAttempts < 1 {
		return nil, fmt.Errorf("MAX_ATTEMPTS must be positive: %d", cfg.MaxAttempts)
	}
	if cfg.WikipediaLang == "" {
		return nil, fmt.Errorf("WIKIPEDIA_LANG must not be empty")
	}
	if cfg.RateLimitGeneral < 1 || cfg.RateLimitContent < 1 {
		return nil, fmt.Errorf("rate limits must be positive: general=%d content=%d",
			cfg.RateLimitGeneral, cfg.RateLimitContent)
	}

	return cfg, nil
}

// DSN はデータベース接続先を返す。
// DATABASE_URLが設定されていればそれを、なければDB_PATHを返す。
func (c *Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return c.DBPath
}
