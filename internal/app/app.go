package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/codemeet/internal/auth"
	"github.com/hitoshi/codemeet/internal/call"
	"github.com/hitoshi/codemeet/internal/calltoken"
	"github.com/hitoshi/codemeet/internal/config"
	"github.com/hitoshi/codemeet/internal/database"
	"github.com/hitoshi/codemeet/internal/handler"
	"github.com/hitoshi/codemeet/internal/interview"
	"github.com/hitoshi/codemeet/internal/logger"
	"github.com/hitoshi/codemeet/internal/metrics"
	"github.com/hitoshi/codemeet/internal/middleware"
	"github.com/hitoshi/codemeet/internal/presence"
	"github.com/hitoshi/codemeet/internal/repository"
	"github.com/hitoshi/codemeet/internal/security"
	"github.com/hitoshi/codemeet/internal/user"
	"github.com/hitoshi/codemeet/internal/worker/cleanup"
)

// Init はアプリケーションの初期化を行う。
// JSON構造化ログをセットアップし、環境変数からConfigを読み込む。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 設定読み込み前にログを使えるようにする。レベルは読み込み後に確定させる。
	logger.SetupDefault(w, os.Getenv("LOG_LEVEL"))

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.SetupDefault(w, cfg.LogLevel)
	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
		slog.String("presence_backend", cfg.PresenceBackend),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case CommandWorker:
		return runWorker(ctx, cfg)
	case CommandMigrate:
		return runMigrate(cfg, ParseMigrateDirection(args))
	default:
		return runServe(ctx, cfg)
	}
}

// openDatabase はDB接続を開き、疎通を確認する。
func openDatabase(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := database.Ping(ctx, db, 5*time.Second); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	slog.Info("database connection established",
		slog.String("database_url", logger.MaskDatabaseURL(cfg.DatabaseURL)),
	)
	return db, nil
}

// newPresenceBroker は設定に応じた参加者配信ブローカーを生成する。
// redisの場合、返されるクリーンアップ関数でクライアントも閉じる。
func newPresenceBroker(ctx context.Context, cfg *config.Config) (presence.Broker, func(), error) {
	if cfg.PresenceBackend != config.PresenceBackendRedis {
		broker := presence.NewMemoryBroker()
		return broker, func() { broker.Close() }, nil
	}

	client, err := presence.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	broker := presence.NewRedisBroker(client)
	cleanupFn := func() {
		broker.Close()
		client.Close()
	}
	return broker, cleanupFn, nil
}

// newMetrics はプロセス単位のレジストリとコレクターを生成する。
func newMetrics() (*prometheus.Registry, *metrics.Collector) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg, metrics.NewCollector(reg)
}

// services はserve/workerが共有するドメインサービス群。
type services struct {
	userRepo    *repository.PostgresUserRepo
	sessionRepo *repository.PostgresSessionRepo
	callRepo    *repository.PostgresCallRepo

	users      *user.Service
	calls      *call.Service
	interviews *interview.Service
}

func newServices(db *sql.DB, broker presence.Broker, collector *metrics.Collector) *services {
	userRepo := repository.NewPostgresUserRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)
	callRepo := repository.NewPostgresCallRepo(db)
	interviewRepo := repository.NewPostgresInterviewRepo(db)

	users := user.NewService(userRepo, sessionRepo, security.NewURLGuard(), collector)
	calls := call.NewService(callRepo, broker, collector)
	interviews := interview.NewService(interviewRepo, userRepo, calls, security.NewContentSanitizer())

	return &services{
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
		callRepo:    callRepo,
		users:       users,
		calls:       calls,
		interviews:  interviews,
	}
}

// newRouterDeps はHTTPルーターの依存関係を組み立てる。
func newRouterDeps(cfg *config.Config, db *sql.DB, svc *services, reg *prometheus.Registry, collector *metrics.Collector) *handler.RouterDeps {
	oauthProvider := auth.NewGoogleOAuthProvider(auth.GoogleOAuthConfig{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleRedirectURL,
	})
	authService := auth.NewService(
		oauthProvider, svc.users, svc.userRepo, svc.sessionRepo,
		auth.ServiceConfig{SessionMaxAge: cfg.SessionMaxAge},
	)

	issuer := calltoken.NewIssuer(calltoken.Config{
		APIKey: cfg.VideoAPIKey,
		Secret: cfg.VideoAPISecret,
		TTL:    cfg.VideoTokenTTL,
	}, middleware.UserIDFromContext, svc.userRepo, collector)

	return &handler.RouterDeps{
		SessionFinder: svc.sessionRepo,
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure:  cfg.CookieSecure,
			CookieDomain:  cfg.CookieDomain,
			TrustedOrigin: cfg.CORSAllowedOrigin,
		},
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter: middleware.NewRateLimiter(
			middleware.RateLimiterConfigPerMinute(cfg.RateLimitGeneral, cfg.RateLimitToken),
		),
		Logger:            slog.Default(),
		HTTPRecorder:      collector,
		RoleFinder:        svc.userRepo,
		CallTokenVerifier: calltoken.NewVerifier(cfg.VideoAPIKey, cfg.VideoAPISecret),

		AuthService: authService,
		AuthConfig: handler.AuthHandlerConfig{
			BaseURL:       cfg.BaseURL,
			CookieDomain:  cfg.CookieDomain,
			CookieSecure:  cfg.CookieSecure,
			SessionMaxAge: cfg.SessionMaxAge,
		},

		UserService:      svc.users,
		TokenIssuer:      issuer,
		CallService:      svc.calls,
		InterviewService: svc.interviews,

		MetricsHandler: metrics.Handler(reg),
		HealthCheck: func(ctx context.Context) error {
			return db.PingContext(ctx)
		},
	}
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// ctxがキャンセルされるとグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config) error {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	broker, closeBroker, err := newPresenceBroker(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeBroker()

	reg, collector := newMetrics()
	svc := newServices(db, broker, collector)
	deps := newRouterDeps(cfg, db, svc, reg, collector)
	defer deps.RateLimiter.Stop()

	// WebSocketはハイジャック時にサーバーのデッドラインを解除するため、
	// 通常リクエストと同じタイムアウトで問題ない。
	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           handler.NewRouter(deps),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// 期限切れセッションの削除と放置された通話の終了を定期実行する。
// ctxがキャンセルされるとシャットダウンする。
func runWorker(ctx context.Context, cfg *config.Config) error {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	broker, closeBroker, err := newPresenceBroker(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeBroker()

	_, collector := newMetrics()
	svc := newServices(db, broker, collector)

	job := cleanup.NewCleanupJob(
		svc.sessionRepo, svc.callRepo, svc.calls, collector, slog.Default(),
		cleanup.Config{IdleTimeout: cfg.CallIdleTimeout},
	)

	slog.Info("worker starting",
		slog.Duration("cleanup_interval", cfg.CleanupInterval),
		slog.Duration("call_idle_timeout", cfg.CallIdleTimeout),
	)

	// スケジューラをメインgoroutineで実行（ブロッキング）
	cleanup.NewScheduler(job, slog.Default()).Start(ctx, cfg.CleanupInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// upはすべての未適用マイグレーションを適用し、downはすべて取り消す。
func runMigrate(cfg *config.Config, direction MigrateDirection) error {
	slog.Info("running database migrations",
		slog.String("direction", string(direction)),
		slog.String("database_url", logger.MaskDatabaseURL(cfg.DatabaseURL)),
	)

	migrateFn := database.RunMigrations
	if direction == MigrateDown {
		migrateFn = database.RollbackMigrations
	}
	if err := migrateFn(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	version, dirty, err := database.SchemaVersion(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully",
		slog.Uint64("version", uint64(version)),
		slog.Bool("dirty", dirty),
	)
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /healthz エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	return checkHealth(fmt.Sprintf("http://localhost:%s/healthz", port))
}

func checkHealth(url string) error {
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}
