package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/campusbuzz/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger *slog.Logger

	// ミドルウェア依存
	SessionFinder     middleware.SessionFinder
	Presence          middleware.PresenceToucher
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	CSRF              middleware.CSRFConfig

	// 運用
	HealthChecker  HealthChecker
	Transport      TransportStatus
	MetricsHandler http.Handler

	// 認証・起動
	Launcher      SessionLauncher
	AppLauncher   AppLauncher
	Accounts      AccountResolver
	Profiles      ProfileReader
	Authenticator ChatAuthenticator
	AuthConfig    AuthHandlerConfig

	// グループ
	GroupService GroupServiceInterface

	// イベント・お知らせ・メッセージ
	BulletinService BulletinService
	Messages        MessageSender
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// 全ルート共通のミドルウェアスタック:
//
//	RequestID → RealIP → Logging → Recovery → SecurityHeaders → CORS → CSRF
//
// 認証が必要なルートではさらに Session → Presence → RateLimit(General) を適用する。
// Presenceは未設定なら省略する。
// サインイン・サインアップ・起動はクライアントIP単位で制限する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	csrfConfig := deps.CSRF
	if csrfConfig.Logger == nil {
		csrfConfig.Logger = logger
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewCSRFMiddleware(csrfConfig))

	authHandler := NewAuthHandler(deps.Launcher, deps.Profiles, deps.AuthConfig, logger)
	bootHandler := NewBootstrapHandler(deps.AppLauncher, deps.Accounts, deps.Authenticator, deps.AuthConfig, logger)
	groupHandler := NewGroupHandler(deps.GroupService, deps.Profiles, logger)
	bulletinHandler := NewBulletinHandler(deps.BulletinService, logger)
	messageHandler := NewMessageHandler(deps.Messages, logger)

	// --- 認証不要のルート ---

	r.Get("/health", NewHealthHandler(deps.HealthChecker, deps.Transport))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}
	r.Method(http.MethodGet, "/api/csrf-token", middleware.NewCSRFTokenHandler(csrfConfig))

	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimiter.AuthMiddleware())
		r.Post("/auth/signup", authHandler.SignUp)
		r.Post("/auth/signin", authHandler.SignIn)
		r.Post("/api/launch", bootHandler.Launch)
	})
	r.Post("/auth/logout", authHandler.Logout)

	// --- 認証が必要なルート ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionFinder, logger))
		if deps.Presence != nil {
			r.Use(middleware.NewPresenceMiddleware(deps.Presence, logger))
		}
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Get("/auth/me", authHandler.Me)
		r.Post("/api/chat/bootstrap", bootHandler.Bootstrap)
		r.Post("/api/media/validate", ValidateMedia)

		r.Route("/api/groups", func(r chi.Router) {
			r.Get("/", groupHandler.SearchGroups)
			r.With(deps.RateLimiter.GroupCreateMiddleware()).Post("/", groupHandler.CreateGroup)
			r.Get("/joined", groupHandler.ListJoinedGroups)
			r.Post("/common", groupHandler.JoinCommonGroups)
			r.Post("/{guid}/join", groupHandler.JoinGroup)
			r.Post("/{guid}/members", groupHandler.AddMembers)
		})

		r.Get("/api/colleges/{college}/groups", groupHandler.ListCollegeGroups)

		r.Route("/api/events", func(r chi.Router) {
			r.Get("/", bulletinHandler.ListEvents)
			r.Post("/", bulletinHandler.CreateEvent)
			r.Post("/{id}/attend", bulletinHandler.AttendEvent)
			r.Delete("/{id}/attend", bulletinHandler.LeaveEvent)
		})
		r.Get("/api/announcements", bulletinHandler.ListAnnouncements)
		r.Post("/api/announcements", bulletinHandler.CreateAnnouncement)
		r.Post("/api/messages", messageHandler.SendMessage)
	})

	return r
}
