package transport

import (
	"net/http"
	"time"

	"github.com/ds124wfegd/timecapsule/internal/metrics"
	"github.com/ds124wfegd/timecapsule/internal/transport/middleware"

	"github.com/gin-gonic/gin"
)

type RouterConfig struct {
	ClientURL          string
	RequestTimeout     time.Duration
	MaxMultipartMemory int64
	// AuthLimiter throttles /api/auth per client IP; nil disables it.
	AuthLimiter *middleware.RateLimiter
}

type Handlers struct {
	Capsules *CapsuleHandler
	Messages *ScheduledMessageHandler
	Users    *UserHandler
}

func InitRoutes(cfg RouterConfig, h Handlers, tokens middleware.TokenParser) *gin.Engine {

	router := gin.New()
	if cfg.MaxMultipartMemory > 0 {
		router.MaxMultipartMemory = cfg.MaxMultipartMemory
	}

	// Middleware
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.ClientURL))
	router.Use(middleware.Metrics())
	router.Use(middleware.Logger())
	if cfg.RequestTimeout > 0 {
		router.Use(middleware.Timeout(cfg.RequestTimeout))
	}

	authRequired := middleware.AuthRequired(tokens)

	// API routes
	api := router.Group("/api")
	{
		// Auth routes
		authRoutes := api.Group("/auth")
		if cfg.AuthLimiter != nil {
			authRoutes.Use(cfg.AuthLimiter.Handler())
		}
		{
			authRoutes.POST("/register", h.Users.Register)
			authRoutes.POST("/login", h.Users.Login)
			authRoutes.GET("/me", authRequired, h.Users.Me)
			authRoutes.POST("/forgot-password", h.Users.ForgotPassword)
			authRoutes.POST("/reset-password/:token", h.Users.ResetPassword)
		}

		// Capsule routes
		capsules := api.Group("/capsules")
		{
			capsules.GET("/share/:token", h.Capsules.GetSharedCapsule)

			owned := capsules.Group("", authRequired)
			owned.POST("", h.Capsules.CreateCapsule)
			owned.GET("", h.Capsules.GetCapsules)
			owned.GET("/:id", h.Capsules.GetCapsule)
			owned.DELETE("/:id", h.Capsules.DeleteCapsule)
			owned.POST("/:id/regenerate-token", h.Capsules.RegenerateShareToken)
		}

		// Scheduled message routes
		messages := api.Group("/scheduled-messages", authRequired)
		{
			messages.POST("", h.Messages.CreateMessage)
			messages.GET("", h.Messages.GetMessages)
			messages.DELETE("/:id", h.Messages.DeleteMessage)
		}

		// Health check
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{
				"status":    "OK",
				"timestamp": time.Now().UTC(),
			})
		})
	}

	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, ErrorResponse{Success: false, Message: "Route not found"})
	})

	return router
}
