package api

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/charlesng35/opsdash/internal/app"
	iauth "github.com/charlesng35/opsdash/internal/auth"
	"github.com/charlesng35/opsdash/internal/guard"
	"github.com/charlesng35/opsdash/internal/handlers"
	"github.com/charlesng35/opsdash/internal/identity"
	"github.com/charlesng35/opsdash/internal/middleware"
	"github.com/charlesng35/opsdash/internal/monitoring"
	"github.com/charlesng35/opsdash/internal/monitoring/checks"
	"github.com/charlesng35/opsdash/internal/realtime"
	"github.com/charlesng35/opsdash/internal/services"
)

// NewRouter builds the Gin engine, wires middleware and registers every route.
func NewRouter(db *gorm.DB, cfg *app.Config, sessions *iauth.SessionService, hub *realtime.Hub) (*gin.Engine, error) {
	if db == nil {
		return nil, fmt.Errorf("database handle must be provided")
	}
	if sessions == nil {
		return nil, fmt.Errorf("session service must be provided")
	}
	if cfg == nil {
		return nil, fmt.Errorf("config must be provided")
	}
	if hub == nil {
		return nil, fmt.Errorf("realtime hub must be provided")
	}

	userSvc, err := services.NewUserService(db)
	if err != nil {
		return nil, err
	}
	notificationSvc, err := services.NewNotificationService(db, hub)
	if err != nil {
		return nil, err
	}

	tokenSessions := iauth.NewTokenSession(sessions.JWT(), sessions)
	resolver := identity.NewRoleResolver(userSvc)
	gate := guard.New(cfg.Guard.GuardOptions())

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())
	if cfg.RateLimit.Enabled {
		r.Use(middleware.RateLimit(cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.Burst))
	}
	r.Use(middleware.Authenticate(tokenSessions, resolver, cfg.Auth.CookieName()))

	registerHealthRoutes(r, cfg, db, hub)
	if cfg.Monitoring.Prometheus.Enabled {
		endpoint := cfg.Monitoring.Prometheus.Endpoint
		if endpoint == "" {
			endpoint = "/metrics"
		}
		r.GET(endpoint, gin.WrapH(promhttp.Handler()))
	}

	api := r.Group("/api")

	authHandler := handlers.NewAuthHandler(userSvc, sessions, handlers.CookieConfig{
		Name:   cfg.Auth.CookieName(),
		Secure: cfg.Auth.Cookie.Secure,
	})
	registerAuthRoutes(api, authHandler)
	registerUserRoutes(api, handlers.NewUserHandler(userSvc))
	registerNotificationRoutes(api, gate, handlers.NewNotificationHandler(notificationSvc))

	realtimeHandler := handlers.NewRealtimeHandler(hub, tokenSessions, cfg.Auth.CookieName(), realtime.StreamNotifications)
	api.GET("/realtime", realtimeHandler.Stream)

	registerViewRoutes(r, gate, handlers.NewViewHandler(notificationSvc, cfg.Notifications.StoreOptions()))

	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}

func registerHealthRoutes(r *gin.Engine, cfg *app.Config, db *gorm.DB, hub *realtime.Hub) {
	if !cfg.Monitoring.Health.Enabled {
		for _, path := range []string{"/health", "/health/live", "/health/ready"} {
			r.GET(path, handlers.DisabledHealth)
		}
		return
	}

	manager := monitoring.NewHealthManager()
	manager.RegisterReadiness(checks.Database(db, 0))
	manager.RegisterReadiness(checks.Realtime(hub))

	health := handlers.NewHealthHandler(manager)
	r.GET("/health", health.Health)
	r.GET("/health/live", health.Live)
	r.GET("/health/ready", health.Ready)
}

func registerAuthRoutes(api *gin.RouterGroup, handler *handlers.AuthHandler) {
	auth := api.Group("/auth")
	{
		auth.POST("/login", handler.Login)
		auth.POST("/refresh", handler.Refresh)
		auth.POST("/logout", middleware.RequireSession(), handler.Logout)
		auth.GET("/me", middleware.RequireSession(), handler.Me)
	}
}

func registerUserRoutes(api *gin.RouterGroup, handler *handlers.UserHandler) {
	api.GET("/users/:id/role", middleware.RequireSession(), handler.Role)
}

func registerNotificationRoutes(api *gin.RouterGroup, gate *guard.Guard, handler *handlers.NotificationHandler) {
	group := api.Group("/notifications", middleware.RequireRoles(gate))
	{
		group.GET("", handler.List)
		group.POST("/read-all", handler.MarkAllRead)
		group.DELETE("", handler.Clear)
		group.PATCH("/:id", handler.Update)
		group.DELETE("/:id", handler.Delete)
	}
	api.POST("/notifications", middleware.RequireRoles(gate, identity.Leader), handler.Create)
}

// registerViewRoutes mounts one page group per role. Each group only admits
// its own role; the other role is sent to the forbidden path.
func registerViewRoutes(r *gin.Engine, gate *guard.Guard, handler *handlers.ViewHandler) {
	for _, role := range []identity.Role{identity.Leader, identity.Member} {
		pages := r.Group("/"+role.String(), middleware.GuardView(gate, role))
		{
			pages.GET("/dashboard", handler.Dashboard)
			pages.GET("/notifications", handler.Center)
			pages.GET("/notifications/:id/open", handler.Open)
		}
	}
}
