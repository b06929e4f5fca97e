package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"fotoreg/api/internal/audit"
	"fotoreg/api/internal/config"
	"fotoreg/api/internal/middleware"
	"fotoreg/api/internal/models"
	"fotoreg/api/internal/repository"
	"fotoreg/api/internal/service"
	"fotoreg/api/internal/storage"
	"fotoreg/api/internal/ws"
)

type HandlerSet struct {
	log zerolog.Logger
	cfg *config.AppConfig

	db    *pgxpool.Pool
	cache *redis.Client

	authService     *service.AuthService
	photoService    *service.PhotoService
	locationService *service.LocationService
	userService     *service.UserService

	users       *repository.UserRepository
	sessions    *repository.SessionRepository
	photos      *repository.PhotoRepository
	audits      *repository.AuditRepository
	permissions *repository.PermissionRepository

	hub       *ws.Hub
	wsHandler *ws.Handler
}

func NewHandlerSet(
	log zerolog.Logger,
	db *pgxpool.Pool,
	cache *redis.Client,
	store *storage.ObjectStore,
	hub *ws.Hub,
	cfg *config.AppConfig,
) HandlerSet {
	userRepo := repository.NewUserRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	photoRepo := repository.NewPhotoRepository(db)
	locationRepo := repository.NewLocationRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	permissionRepo := repository.NewPermissionRepository(db)

	recorder := audit.NewRecorder(auditRepo, log)

	authService := service.NewAuthService(userRepo, sessionRepo, hub, recorder, cfg, log)
	photoService := service.NewPhotoService(photoRepo, store, hub, recorder, cfg, log)
	locationService := service.NewLocationService(locationRepo, userRepo, hub, log)
	userService := service.NewUserService(userRepo, sessionRepo, recorder, log)

	wsHandler := ws.NewHandler(hub, authService, locationService, cfg.AllowCORSOrigins)

	return HandlerSet{
		log:             log,
		cfg:             cfg,
		db:              db,
		cache:           cache,
		authService:     authService,
		photoService:    photoService,
		locationService: locationService,
		userService:     userService,
		users:           userRepo,
		sessions:        sessionRepo,
		photos:          photoRepo,
		audits:          auditRepo,
		permissions:     permissionRepo,
		hub:             hub,
		wsHandler:       wsHandler,
	}
}

func (h HandlerSet) Register(router *gin.RouterGroup) {
	router.GET("/health", h.Health)
	router.GET("/ws", h.wsHandler.Serve)

	api := router.Group("/api")
	api.Use(middleware.RateLimit(h.cache, h.log, "general", h.cfg.RateLimit.GeneralMax, h.cfg.RateLimit.GeneralWindow))

	api.GET("/status", middleware.OptionalAuth(h.cfg.Security.JWTSecret, h.users, h.sessions), h.Status)

	authed := middleware.Auth(h.cfg.Security.JWTSecret, h.users, h.sessions, h.log)

	auth := api.Group("/auth")
	{
		limited := auth.Group("")
		limited.Use(middleware.RateLimit(h.cache, h.log, "auth", h.cfg.RateLimit.AuthMax, h.cfg.RateLimit.AuthWindow))
		limited.POST("/login", h.Login)
		limited.POST("/refresh", h.Refresh)

		auth.POST("/logout", authed, h.Logout)
		auth.GET("/verify", authed, h.Verify)
		auth.POST("/change-password", authed, h.ChangePassword)
		auth.GET("/sessions", authed, h.ListSessions)
	}

	photos := api.Group("/photos")
	photos.Use(authed)
	{
		uploadLimit := middleware.RateLimit(h.cache, h.log, "upload", h.cfg.RateLimit.UploadMax, h.cfg.RateLimit.UploadWindow)
		photos.POST("/upload", uploadLimit, h.UploadPhoto)

		photos.GET("", h.ListPhotos)
		photos.GET("/my", h.MyPhotos)
		photos.GET("/search", h.SearchPhotos)
		photos.GET("/stats", middleware.RequireRoles(models.UserRoleAdmin), h.PhotoStats)
		photos.GET("/:id", h.GetPhoto)
		photos.GET("/:id/download", h.DownloadPhoto)
		ownPhoto := middleware.RequireOwnership("id", h.photos.OwnerID)
		photos.DELETE("/:id", ownPhoto, h.DeletePhoto)
		photos.GET("/:id/comments", ownPhoto, h.ListComments)
		photos.POST("/:id/comments", ownPhoto, h.CreateComment)
	}

	locations := api.Group("/locations")
	locations.Use(authed)
	{
		post := locations.Group("")
		post.Use(middleware.RateLimit(h.cache, h.log, "location", h.cfg.RateLimit.LocationMax, h.cfg.RateLimit.LocationWindow))
		post.POST("", h.ReportLocation)

		locations.GET("/latest", middleware.RequireRoles(models.UserRoleAdmin), h.LatestLocations)
		locations.GET("/:userId/history", h.LocationHistory)
	}

	users := api.Group("/users")
	users.Use(authed)
	{
		admin := middleware.RequireRoles(models.UserRoleAdmin)
		users.GET("", admin, h.ListUsers)
		users.POST("", admin, h.CreateUser)
		users.GET("/operators", admin, h.ListOperators)
		users.GET("/stats", admin, h.UserStats)
		users.GET("/:id", h.GetUser)
		users.PUT("/:id", admin, h.UpdateUser)
		users.POST("/:id/reset-password", admin, h.ResetPassword)
		users.DELETE("/:id", admin, h.DeleteUser)
	}

	auditGroup := api.Group("/audit")
	auditGroup.Use(authed)
	{
		view := middleware.RequirePermissions(h.permissions, "audit.view")
		auditGroup.GET("", view, h.ListAuditLogs)
		auditGroup.GET("/stats", view, h.AuditStats)
		auditGroup.GET("/export", middleware.RequirePermissions(h.permissions, "audit.export"), h.ExportAuditLogs)
	}
}
