package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/codemeet/internal/middleware"
)

// SetupAuthRoutes は認証関連のルーティングを設定したchi.Routerを返す。
func SetupAuthRoutes(service AuthServiceInterface, config AuthHandlerConfig) http.Handler {
	r := chi.NewRouter()
	h := NewAuthHandler(service, config)
	mountAuthRoutes(r, h)
	return r
}

func mountAuthRoutes(r chi.Router, h *AuthHandler) {
	r.Route("/auth", func(r chi.Router) {
		// OAuthフロー
		r.Get("/google/login", h.Login)
		r.Get("/google/callback", h.Callback)

		// セッション管理
		r.Post("/logout", h.Logout)
		r.Get("/me", h.Me)
	})
}

// HealthChecker は依存先（DBなど）の疎通を確認する。
type HealthChecker func(ctx context.Context) error

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	SessionFinder     middleware.SessionFinder
	CSRFConfig        middleware.CSRFConfig
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger
	HTTPRecorder      middleware.HTTPRecorder
	RoleFinder        middleware.UserFinder
	CallTokenVerifier middleware.CallTokenVerifier

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// ディレクトリ
	UserService UserServiceInterface

	// ビデオ基盤
	TokenIssuer TokenIssuer
	CallService CallServiceInterface

	// 面接
	InterviewService InterviewServiceInterface

	// 運用
	MetricsHandler http.Handler
	HealthCheck    HealthChecker
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	CORS → SecurityHeaders → Logging → Recovery → Metrics
//	/api:      Session → RateLimit(General) → CSRF
//	/video/v1: CallToken
//
// 認証ルート（/auth/*）、/healthz、/metrics はセッション不要。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewRecoveryMiddleware(logger))
	if deps.HTTPRecorder != nil {
		r.Use(middleware.NewMetricsMiddleware(deps.HTTPRecorder))
	}

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	userHandler := NewUserHandler(deps.UserService)
	tokenHandler := NewTokenHandler(deps.TokenIssuer)
	callHandler := NewCallHandler(deps.CallService, deps.CORSAllowedOrigin)
	interviewHandler := NewInterviewHandler(deps.InterviewService, deps.UserService)
	requireInterviewer := middleware.RequireInterviewer(deps.RoleFinder)

	// --- 認証不要のルート ---

	r.Get("/healthz", healthHandler(deps.HealthCheck))
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	mountAuthRoutes(r, authHandler)

	// CSRFトークン取得
	r.Handle("/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig))

	// --- セッション認証が必要なルート ---
	// ミドルウェアスタック: Session → RateLimit(General) → CSRF
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionFinder))
		r.Use(deps.RateLimiter.GeneralMiddleware())
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))

		// ディレクトリ
		r.Route("/api/users", func(r chi.Router) {
			r.Post("/sync", userHandler.Sync)
			r.Get("/by-external/{externalId}", userHandler.ByExternalID)
			r.Get("/me/role", userHandler.MyRole)
			r.Delete("/me", userHandler.Withdraw)
		})

		// ビデオトークン発行（発行専用レート制限を追加）
		r.With(deps.RateLimiter.TokenMiddleware()).Post("/api/video/token", tokenHandler.Issue)

		// 面接
		r.Route("/api/interviews", func(r chi.Router) {
			r.With(requireInterviewer).Post("/", interviewHandler.Schedule)
			r.With(requireInterviewer).Get("/", interviewHandler.ListAll)
			r.Get("/mine", interviewHandler.ListMine)
			r.Get("/dashboard", interviewHandler.Dashboard)
			r.Get("/by-call/{callId}", interviewHandler.GetByCall)

			r.Route("/{id}", func(r chi.Router) {
				r.With(requireInterviewer).Patch("/status", interviewHandler.UpdateStatus)
				r.With(requireInterviewer).Post("/comments", interviewHandler.AddComment)
				r.Get("/comments", interviewHandler.ListComments)
			})
		})
	})

	// --- ビデオトークン認証のルート ---
	r.Route("/video/v1", func(r chi.Router) {
		r.Use(middleware.NewCallTokenMiddleware(deps.CallTokenVerifier))

		r.Get("/connect", callHandler.Connect)
		r.Route("/calls/{type}/{id}", func(r chi.Router) {
			r.Put("/", callHandler.Upsert)
			r.Get("/", callHandler.Get)
			r.Post("/join", callHandler.Join)
			r.Post("/leave", callHandler.Leave)
			r.Post("/end", callHandler.End)
			r.Get("/participants", callHandler.Participants)
			r.Get("/participants/ws", callHandler.ParticipantsStream)
		})
	})

	return r
}

// healthHandler は疎通確認の結果を返す。
// GET /healthz
func healthHandler(check HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := check(ctx); err != nil {
				slog.Error("health check failed", slog.String("error", err.Error()))
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
