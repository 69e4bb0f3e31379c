// Package config は環境変数と環境別の.envファイルからアプリケーション設定を読み込む。
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Environment は実行環境を表す。読み込む.envファイルを決定する。
type Environment string

const (
	EnvDevelopment Environment = "DEVELOPMENT"
	EnvProduction  Environment = "PRODUCTION"
	EnvTest        Environment = "TEST"
)

// EnvFileName は実行環境に対応する.envファイル名を返す。
func EnvFileName(env Environment) string {
	switch env {
	case EnvProduction:
		return ".env.production"
	case EnvTest:
		return ".env.testing"
	default:
		return ".env.development"
	}
}

// Config はアプリケーション全体の設定を保持する。
// 起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	Environment Environment

	// Database
	DatabaseURL string
	AutoMigrate bool

	// Discord OAuth
	DiscordClientID     string
	DiscordClientSecret string
	DiscordCallbackURL  string
	DiscordAPIBaseURL   string
	ProviderTimeout     time.Duration

	// Session
	SessionSecret          string
	SessionMaxAge          int    // 秒
	SessionStoreURL        string // 空の場合はPostgreSQLのsessionsテーブルを使用
	SessionCleanupInterval time.Duration

	// Rate Limit
	RateLimitGeneral int // req/min

	// Server
	ServerPort string

	// Cookie
	CookieSecure   bool
	CookieDomain   string
	CookieSameSite http.SameSite // Noneの場合はCookieSecureも有効になる

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// ENVIRONMENTに応じた.envファイル（ENV_DIR配下）があれば補助的に読み込むが、
// 実際の環境変数が常に優先される。必須項目が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	env := parseEnvironment(os.Getenv("ENVIRONMENT"))

	dir := os.Getenv("ENV_DIR")
	if dir == "" {
		dir = "."
	}
	fileVals, err := readEnvFile(filepath.Join(dir, EnvFileName(env)))
	if err != nil {
		return nil, err
	}
	l := loader{file: fileVals}

	cfg := &Config{Environment: env}

	var missing []string
	require := func(key string) string {
		v := l.get(key)
		if v == "" {
			missing = append(missing, key)
		}
		return v
	}

	cfg.DatabaseURL = l.get("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		host := require("DB_HOST")
		user := require("DB_USER")
		name := require("DB_NAME")
		cfg.DatabaseURL = buildDatabaseURL(host, l.string("DB_PORT", "5432"), user, l.get("DB_PASS"), name, l.string("DB_SSLMODE", "disable"))
	}

	cfg.DiscordClientID = require("DISCORD_CLIENT_ID")
	cfg.DiscordClientSecret = require("DISCORD_CLIENT_SECRET")
	cfg.DiscordCallbackURL = require("DISCORD_CALLBACK_URL")
	cfg.SessionSecret = require("SESSION_SECRET")

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.AutoMigrate = l.bool("AUTO_MIGRATE", true)
	cfg.DiscordAPIBaseURL = l.string("DISCORD_API_BASE_URL", "https://discord.com/api/v10")
	cfg.ProviderTimeout = l.duration("PROVIDER_TIMEOUT", 10*time.Second)
	cfg.SessionMaxAge = l.int("SESSION_MAX_AGE", 86400)
	cfg.SessionStoreURL = l.string("SESSION_STORE_URL", l.get("REDIS_URI"))
	cfg.SessionCleanupInterval = l.duration("SESSION_CLEANUP_INTERVAL", time.Hour)
	cfg.RateLimitGeneral = l.int("RATE_LIMIT_GENERAL", 120)
	cfg.ServerPort = l.string("PORT", "3003")
	cfg.CookieSecure = env == EnvProduction
	cfg.CookieDomain = l.get("COOKIE_DOMAIN")
	cfg.CookieSameSite = parseSameSite(l.get("COOKIE_SAME_SITE"))
	if cfg.CookieSameSite == http.SameSiteNoneMode {
		cfg.CookieSecure = true
	}
	cfg.CORSAllowedOrigin = l.string("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
}

// UsesExternalSessionStore は外部セッションストア（Redis）を使うかどうかを返す。
func (c *Config) UsesExternalSessionStore() bool {
	return c.SessionStoreURL != ""
}

func parseEnvironment(v string) Environment {
	switch Environment(strings.ToUpper(v)) {
	case EnvProduction:
		return EnvProduction
	case EnvTest:
		return EnvTest
	default:
		return EnvDevelopment
	}
}

// parseSameSite はCOOKIE_SAME_SITE（lax / strict / none）を解釈する。不明な値はLax。
func parseSameSite(v string) http.SameSite {
	switch strings.ToLower(v) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}

// readEnvFile は.envファイルを読み込む。ファイルが存在しない場合は空のマップを返す。
func readEnvFile(path string) (map[string]string, error) {
	vals, err := godotenv.Read(path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read env file %s: %w", path, err)
	}
	return vals, nil
}

func buildDatabaseURL(host, port, user, pass, name, sslmode string) string {
	u := url.URL{
		Scheme:   "postgres",
		Host:     net.JoinHostPort(host, port),
		Path:     "/" + name,
		RawQuery: url.Values{"sslmode": {sslmode}}.Encode(),
	}
	if pass != "" {
		u.User = url.UserPassword(user, pass)
	} else {
		u.User = url.User(user)
	}
	return u.String()
}

// loader は環境変数を優先し、なければ.envファイルの値を返す。
type loader struct {
	file map[string]string
}

func (l loader) get(key string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return l.file[key]
}

func (l loader) string(key, defaultVal string) string {
	if v := l.get(key); v != "" {
		return v
	}
	return defaultVal
}

func (l loader) int(key string, defaultVal int) int {
	v := l.get(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func (l loader) bool(key string, defaultVal bool) bool {
	v := l.get(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func (l loader) duration(key string, defaultVal time.Duration) time.Duration {
	v := l.get(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
