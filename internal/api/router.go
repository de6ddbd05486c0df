package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/hibiken/asynq"
	"github.com/hugh/dealdesk/internal/admin"
	"github.com/hugh/dealdesk/internal/analysis"
	"github.com/hugh/dealdesk/internal/api/handlers"
	"github.com/hugh/dealdesk/internal/api/middleware"
	"github.com/hugh/dealdesk/internal/auth"
	"github.com/hugh/dealdesk/internal/billing"
	"github.com/hugh/dealdesk/internal/metrics"
	"github.com/hugh/dealdesk/internal/notifications"
	"github.com/hugh/dealdesk/internal/team"
	"github.com/hugh/dealdesk/pkg/util"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Router struct {
	chi.Router
}

type RouterConfig struct {
	DB     *gorm.DB
	Redis  *redis.Client
	Logger *slog.Logger
	Clock  util.Clock

	Metrics *metrics.Metrics

	JWTService          *auth.JWTService
	AuthService         *auth.Service
	BillingService      *billing.Service
	TeamService         *team.Service
	AnalysisService     *analysis.Service
	NotificationService *notifications.Service
	AdminService        *admin.Service
	Settings            *admin.SettingsService
	AdminChecker        middleware.AdminChecker
	PINVerifier         *admin.PINVerifier
	AsynqClient         *asynq.Client

	WebhookSecret  string
	AllowedOrigins []string // CORS allowed origins
	SecureCookies  bool
	RateLimitReqs  int // Rate limit requests per window
	RateLimitSecs  int // Rate limit window in seconds
	ExportLimit    int // Report exports per user per window
}

func NewRouter(cfg RouterConfig) *Router {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.Logging(cfg.Logger))
	r.Use(cfg.Metrics.Middleware)

	if cfg.RateLimitReqs > 0 {
		r.Use(middleware.RateLimit(middleware.NewRateLimiter(cfg.RateLimitReqs, cfg.RateLimitSecs, cfg.Clock)))
	}

	allowedOrigins := cfg.AllowedOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"http://localhost:3000", "http://localhost:8080"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token", "X-Admin-PIN"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	healthHandler := handlers.NewHealthHandler(cfg.DB, cfg.Redis)
	authHandler := handlers.NewAuthHandler(cfg.AuthService, cfg.BillingService, cfg.SecureCookies, cfg.Logger)
	subscriptionHandler := handlers.NewSubscriptionHandler(cfg.BillingService, cfg.Logger)
	seatHandler := handlers.NewSeatHandler(cfg.BillingService, cfg.Logger)
	teamHandler := handlers.NewTeamHandler(cfg.TeamService, cfg.Logger)
	analysisHandler := handlers.NewAnalysisHandler(cfg.AnalysisService, cfg.Logger)
	notificationHandler := handlers.NewNotificationHandler(cfg.NotificationService, cfg.Logger)
	adminHandler := handlers.NewAdminHandler(cfg.AdminService, cfg.Settings, cfg.PINVerifier, cfg.AsynqClient, cfg.Logger)
	webhookHandler := handlers.NewWebhookHandler(cfg.BillingService, cfg.WebhookSecret, cfg.Logger)

	exportLimit := cfg.ExportLimit
	if exportLimit <= 0 {
		exportLimit = 10
	}
	exportLimiter := middleware.NewRateLimiter(exportLimit, 60, cfg.Clock)

	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)
	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.CSRF(middleware.NewCSRFStore(cfg.Clock)))

		r.Post("/auth/register", authHandler.Register)
		r.Post("/auth/login", authHandler.Login)
		r.Post("/auth/logout", authHandler.Logout)

		r.Post("/webhooks/payments", webhookHandler.Payments)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWTService))

			r.Get("/me", authHandler.Me)
			r.Delete("/account", authHandler.DeleteAccount)

			r.Route("/subscription", func(r chi.Router) {
				r.Get("/status", subscriptionHandler.Status)
				r.Post("/trial", subscriptionHandler.StartTrial)
				r.Post("/upgrade", subscriptionHandler.Upgrade)
				r.Post("/cancel", subscriptionHandler.Cancel)
			})

			r.Route("/seats", func(r chi.Router) {
				r.Get("/info", seatHandler.Info)
				r.Post("/purchase", seatHandler.Purchase)
				r.Post("/add", seatHandler.Add)
				r.Post("/remove", seatHandler.Remove)
			})

			r.Route("/team", func(r chi.Router) {
				r.Post("/invitations", teamHandler.Invite)
				r.Get("/invitations", teamHandler.ListInvitations)
				r.Get("/invitations/received", teamHandler.ListReceived)
				r.Post("/invitations/{id}/accept", teamHandler.Accept)
				r.Post("/invitations/{id}/decline", teamHandler.Decline)
				r.Post("/invitations/{id}/rescind", teamHandler.Rescind)
				r.Get("/members", teamHandler.ListMembers)
				r.Delete("/members/{id}", teamHandler.RemoveMember)
				r.Get("/memberships", teamHandler.ListMemberships)
				r.Post("/memberships/{ownerID}/leave", teamHandler.Leave)
			})

			r.Post("/calculate", analysisHandler.Calculate)
			r.Route("/analyses", func(r chi.Router) {
				r.Get("/", analysisHandler.List)
				r.Post("/", analysisHandler.Create)
				r.Get("/{id}", analysisHandler.Get)
				r.Delete("/{id}", analysisHandler.Delete)
				r.With(middleware.RateLimitByUser(exportLimiter)).Post("/{id}/export", analysisHandler.Export)
			})

			r.Route("/notifications", func(r chi.Router) {
				r.Get("/", notificationHandler.List)
				r.Post("/{id}/read", notificationHandler.MarkRead)
			})

			r.Route("/admin", func(r chi.Router) {
				r.Use(middleware.RequireAdmin(cfg.AdminChecker, cfg.Logger))

				r.Get("/users", adminHandler.ListUsers)
				r.Get("/stats", adminHandler.Stats)
				r.Put("/users/{id}/admin", adminHandler.SetAdmin)
				r.Put("/users/{id}/subscription", adminHandler.GrantSubscription)
				r.Delete("/users/{id}", adminHandler.DeleteUser)
				r.Get("/settings", adminHandler.GetSettings)
				r.Put("/settings", adminHandler.UpdateSettings)
				r.Post("/sweeps", adminHandler.RunSweeps)
			})
		})
	})

	return &Router{r}
}

var _ http.Handler = (*Router)(nil)
