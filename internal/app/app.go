// Package app はコマンドの解析と依存関係のワイヤリングを行い、各モードを起動する。
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/hitoshi/guildview/internal/auth"
	"github.com/hitoshi/guildview/internal/config"
	"github.com/hitoshi/guildview/internal/database"
	"github.com/hitoshi/guildview/internal/discord"
	"github.com/hitoshi/guildview/internal/graph"
	"github.com/hitoshi/guildview/internal/handler"
	"github.com/hitoshi/guildview/internal/logger"
	"github.com/hitoshi/guildview/internal/metrics"
	"github.com/hitoshi/guildview/internal/middleware"
	"github.com/hitoshi/guildview/internal/repository"
	"github.com/hitoshi/guildview/internal/worker/cleanup"
)

const shutdownTimeout = 30 * time.Second

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, slog.LevelInfo)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 実行環境に応じたログレベルで再設定
	logger.SetupDefault(w, logger.LevelFor(string(cfg.Environment)))

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("PORT")
		if port == "" {
			port = "3003"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("environment", string(cfg.Environment)),
		slog.String("port", cfg.ServerPort),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case CommandMigrate:
		return runMigrate(cfg)
	case CommandCleanup:
		return runCleanup(ctx, cfg)
	default:
		return runServe(ctx, cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// ctxがキャンセルされるとグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config) error {
	// 1. DB接続
	db, err := openDatabase(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	if cfg.AutoMigrate {
		if err := runMigrate(cfg); err != nil {
			return err
		}
	}

	// 2. メトリクス
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	mc := metrics.NewCollector(registry)

	// 3. リポジトリの初期化（セッションストアはRedisかPostgreSQL）
	healthChecks := map[string]repository.Pinger{"postgres": db}
	userRepo := repository.NewPostgresUserRepo(db)

	var sessionRepo repository.SessionRepository
	if cfg.UsesExternalSessionStore() {
		rdb, err := database.OpenRedis(ctx, cfg.SessionStoreURL)
		if err != nil {
			return err
		}
		defer rdb.Close()
		sessionRepo = repository.NewRedisSessionRepo(rdb)
		healthChecks["redis"] = database.RedisPinger{Client: rdb}
		slog.Info("using redis session store")
	} else {
		sessionRepo = repository.NewPostgresSessionRepo(db)
		slog.Info("using postgres session store")
	}

	// 4. Discord連携
	httpClient := discord.NewHTTPClient(cfg.ProviderTimeout)
	discordClient := discord.NewClient(cfg.DiscordAPIBaseURL, httpClient, mc)
	oauthProvider := auth.NewDiscordOAuthProvider(auth.DiscordOAuthConfig{
		ClientID:     cfg.DiscordClientID,
		ClientSecret: cfg.DiscordClientSecret,
		RedirectURL:  cfg.DiscordCallbackURL,
		UserInfoURL:  strings.TrimRight(cfg.DiscordAPIBaseURL, "/") + "/users/@me",
		HTTPClient:   httpClient,
	})

	// 5. 認証サービスとGraphQLスキーマ
	authService := auth.NewService(oauthProvider, userRepo, sessionRepo, mc,
		auth.ServiceConfig{SessionMaxAge: cfg.SessionMaxAge},
	)
	signer := auth.NewCookieSigner(cfg.SessionSecret)

	schema, err := graph.NewSchema(discordClient)
	if err != nil {
		return fmt.Errorf("failed to build graphql schema: %w", err)
	}

	// 6. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(middleware.NewRateLimiterConfig(cfg.RateLimitGeneral))
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:            slog.Default(),
		Metrics:           mc,
		SessionResolver:   authService,
		CookieVerifier:    signer,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		AuthService:       authService,
		CookieSigner:      signer,
		AuthConfig: handler.AuthHandlerConfig{
			CookieDomain:   cfg.CookieDomain,
			CookieSecure:   cfg.CookieSecure,
			CookieSameSite: cfg.CookieSameSite,
			SessionMaxAge:  cfg.SessionMaxAge,
		},
		GraphQL:        graph.NewHandler(schema),
		Health:         handler.NewHealthHandler(healthChecks),
		MetricsHandler: metrics.Handler(registry),
	})

	// 7. HTTPサーバーとバックグラウンドジョブの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("API server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	})

	// Redisのセッションは有効期限で自動削除されるため、掃除はPostgreSQLのみ
	if !cfg.UsesExternalSessionStore() {
		job := cleanup.NewCleanupJob(db, slog.Default(), mc)
		g.Go(func() error {
			job.Start(gctx, cfg.SessionCleanupInterval)
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down API server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	version, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully", slog.Uint64("version", uint64(version)))
	return nil
}

// runCleanup は期限切れセッションを1回削除して終了する。cronからの実行を想定する。
func runCleanup(ctx context.Context, cfg *config.Config) error {
	db, err := openDatabase(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	if _, err := cleanup.NewCleanupJob(db, slog.Default(), nil).Run(ctx); err != nil {
		return fmt.Errorf("session cleanup failed: %w", err)
	}
	return nil
}

func openDatabase(ctx context.Context, databaseURL string) (*sql.DB, error) {
	db, err := database.Open(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established",
		slog.String("database_url", maskDatabaseURL(databaseURL)),
	)
	return db, nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	target := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(target)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLのパスワードをマスクする。
// パースできない場合は全体を伏せる。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}
