package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/guildview/internal/metrics"
	"github.com/hitoshi/guildview/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger  *slog.Logger
	Metrics metrics.MetricsCollector

	// ミドルウェア依存
	SessionResolver   middleware.SessionResolver
	CookieVerifier    middleware.CookieVerifier
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter

	// 認証
	AuthService  AuthServiceInterface
	CookieSigner CookieSigner
	AuthConfig   AuthHandlerConfig

	// GraphQL
	GraphQL http.Handler

	// 運用
	Health         http.Handler
	MetricsHandler http.Handler
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → Metrics → SecurityHeaders → CORS → [/api] Session → RateLimit
//
// /api/auth/status と /api/auth/logout はRequireAuthで保護する。
// /api/graphql は未認証でも到達し、拒否はリゾルバーが行う。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	mc := deps.Metrics
	if mc == nil {
		mc = metrics.Nop{}
	}

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewMetricsMiddleware(mc))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	if deps.Health != nil {
		r.Method(http.MethodGet, "/health", deps.Health)
	}
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	authHandler := NewAuthHandler(deps.AuthService, deps.CookieSigner, deps.AuthConfig)

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionResolver, deps.CookieVerifier))
		if deps.RateLimiter != nil {
			r.Use(deps.RateLimiter.Middleware())
		}

		r.Route("/auth", func(r chi.Router) {
			// OAuthフロー
			r.Get("/login", authHandler.Login)
			r.Get("/redirect", authHandler.Redirect)

			// 認証必須
			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireAuth())
				r.Get("/status", authHandler.Status)
				r.Get("/logout", authHandler.Logout)
			})
		})

		r.Method(http.MethodPost, "/graphql", deps.GraphQL)
	})

	return r
}
