package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"gymhub/api/internal/config"
	"gymhub/api/internal/middleware"
	"gymhub/api/internal/models"
	"gymhub/api/internal/repository"
	"gymhub/api/internal/security"
	"gymhub/api/internal/service"
)

// Deps carries everything the HTTP layer needs. DB and Cache are optional:
// the memory storage driver runs without them.
type Deps struct {
	Log          zerolog.Logger
	Config       *config.AppConfig
	Tokens       *security.TokenIssuer
	Users        repository.UserStore
	Auth         *service.AuthService
	MFA          *service.MFAService
	Provisioning *service.ProvisioningService
	DB           Pinger
	Cache        *redis.Client
}

type HandlerSet struct {
	log          zerolog.Logger
	cfg          *config.AppConfig
	tokens       *security.TokenIssuer
	users        repository.UserStore
	authService  *service.AuthService
	mfaService   *service.MFAService
	provisioning *service.ProvisioningService
	db           Pinger
	cache        *redis.Client
}

func NewHandlerSet(deps Deps) HandlerSet {
	return HandlerSet{
		log:          deps.Log,
		cfg:          deps.Config,
		tokens:       deps.Tokens,
		users:        deps.Users,
		authService:  deps.Auth,
		mfaService:   deps.MFA,
		provisioning: deps.Provisioning,
		db:           deps.DB,
		cache:        deps.Cache,
	}
}

func (h HandlerSet) Register(router *gin.RouterGroup) {
	router.GET("/healthz", h.Health)

	v1 := router.Group("/v1")
	{
		auth := v1.Group("/auth")
		auth.POST("/register", h.RegisterAccount)
		auth.POST("/login", h.Login)
		auth.POST("/refresh", h.Refresh)
		auth.POST("/logout", h.Logout)

		protected := v1.Group("/auth")
		protected.Use(middleware.Auth(h.tokens, h.users), middleware.Authorize())
		protected.GET("/me", h.Me)
		protected.POST("/password", h.ChangePassword)
		protected.GET("/mfa", h.MFAStatus)
		protected.POST("/mfa/setup", h.MFASetup)
		protected.POST("/mfa/enable", h.MFAEnable)
		protected.POST("/mfa/disable", h.MFADisable)
		protected.POST("/mfa/backup-codes", h.MFABackupCodes)
	}

	admin := v1.Group("/admin")
	admin.Use(
		middleware.Auth(h.tokens, h.users),
		middleware.Authorize(models.RoleSuperAdmin),
	)
	admin.GET("/plans", h.ListPlans)
	admin.POST("/admins", h.CreateAdmin)

	gyms := v1.Group("/gyms")
	gyms.Use(
		middleware.Auth(h.tokens, h.users),
		middleware.Authorize(models.RoleAdmin),
	)
	gyms.POST("", h.CreateGym)
}
