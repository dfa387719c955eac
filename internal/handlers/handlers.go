package handlers

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"snapify/internal/config"
	"snapify/internal/middleware"
	"snapify/internal/models"
	"snapify/internal/service"
)

// Pinger is a dependency the health check can probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

type Deps struct {
	Config   *config.AppConfig
	Log      zerolog.Logger
	Database Pinger
	Cache    Pinger
	Auth     *service.AuthService
	Events   *service.EventService
	Photos   *service.PhotoService
	Users    middleware.UserLookup
	Sessions middleware.SessionLookup
	Nonces   middleware.NonceStore
}

type HandlerSet struct {
	log      zerolog.Logger
	cfg      *config.AppConfig
	db       Pinger
	cache    Pinger
	auth     *service.AuthService
	events   *service.EventService
	photos   *service.PhotoService
	users    middleware.UserLookup
	sessions middleware.SessionLookup
	nonces   middleware.NonceStore
}

func NewHandlerSet(d Deps) HandlerSet {
	return HandlerSet{
		log:      d.Log,
		cfg:      d.Config,
		db:       d.Database,
		cache:    d.Cache,
		auth:     d.Auth,
		events:   d.Events,
		photos:   d.Photos,
		users:    d.Users,
		sessions: d.Sessions,
		nonces:   d.Nonces,
	}
}

func (h HandlerSet) Register(router *gin.RouterGroup) {
	router.GET("/healthz", h.Health)

	authenticated := []gin.HandlerFunc{
		middleware.Auth(h.cfg.Security.JWTAccessSecret, h.users, h.sessions),
		middleware.Signature(h.cfg.Security.RequireSignature, h.cfg.Security.SignatureSecret, h.nonces),
	}

	v1 := router.Group("/v1")

	auth := v1.Group("/auth")
	auth.POST("/register", h.RegisterUser)
	auth.POST("/login", h.Login)
	auth.POST("/refresh", h.Refresh)
	auth.POST("/logout", h.Logout)

	account := v1.Group("/auth", authenticated...)
	account.GET("/me", h.Me)
	account.GET("/sessions", h.ListSessions)
	account.DELETE("/sessions/:deviceId", h.RevokeSession)

	events := v1.Group("/events")
	events.GET("", h.GetEventByID)
	events.GET("/:code", h.GetEvent)
	events.GET("/:code/photos", h.ListPhotos)
	events.POST("/:code/photos", h.CapturePhoto)
	events.POST("", append(authenticated, h.CreateEvent)...)

	owned := v1.Group("/events/:code", authenticated...)
	owned.Use(middleware.RequireEventOwner(h.events))
	owned.PATCH("", h.UpdateEvent)
	owned.DELETE("", h.DeleteEvent)

	photos := v1.Group("/photos")
	photos.POST("", h.RecordPhoto)
	photos.GET("/:id", h.GetPhoto)
	photos.DELETE("/:id", append(authenticated, h.DeletePhoto)...)

	me := v1.Group("/me", authenticated...)
	me.GET("/events", h.MyEvents)

	admin := v1.Group("/admin", authenticated...)
	admin.Use(middleware.RequireRoles(models.UserRoleAdmin))
	admin.GET("/events", h.AdminListEvents)
}
