package api

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"cvstudio/internal/api/middleware"
	"cvstudio/internal/auth"
	"cvstudio/internal/config"
	"cvstudio/internal/gateway"
	"cvstudio/internal/renderfarm"
	"cvstudio/internal/storage"
)

// RegisterRoutes 注册 API 路由，不包含 /api 前缀。
func RegisterRoutes(
	router *gin.Engine,
	cfg *config.Config,
	db *gorm.DB,
	farm *renderfarm.Pool,
	asynqClient *asynq.Client,
	authService *auth.AuthService,
	redisClient *redis.Client,
	logger *slog.Logger,
	storageClient *storage.Client,
) {
	gw := gateway.New(db)

	renderHandler := NewRenderHandler(gw, farm)
	cvHandler := NewCVHandler(db, asynqClient, storageClient, cfg.Limits.MaxCVs)
	templateHandler := NewTemplateHandler(db, asynqClient)
	authHandler := NewAuthHandler(db, authService, redisClient, logger, cfg.Limits.LoginRateLimitPerHour)
	wsHandler := NewWsHandler(redisClient, authService, logger, cfg.API.AllowedOrigins)
	assetHandler := NewAssetHandler(storageClient, logger, cfg.API.ClamdAddr)

	authMiddleware := middleware.AuthMiddleware(authService)
	adminMiddleware := middleware.RequireAdminMiddleware()

	v1 := router.Group("/v1")
	{
		v1.GET("/ws", wsHandler.HandleConnection)

		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/register", authHandler.Register)
			authGroup.POST("/login", authHandler.Login)
			authGroup.POST("/refresh", authHandler.Refresh)
			authGroup.POST("/logout", authMiddleware, authHandler.Logout)
		}

		cvGroup := v1.Group("/cv")
		cvGroup.Use(authMiddleware)
		{
			cvGroup.POST("", cvHandler.CreateCV)
			cvGroup.GET("", cvHandler.ListCVs)
			cvGroup.GET("/:id", cvHandler.GetCV)
			cvGroup.PUT("/:id", cvHandler.UpdateCV)
			cvGroup.DELETE("/:id", cvHandler.DeleteCV)
			cvGroup.GET("/:id/preview", renderHandler.PreviewCV)
			cvGroup.GET("/:id/download", renderHandler.DownloadCV)
		}

		templateGroup := v1.Group("/templates")
		templateGroup.Use(authMiddleware)
		{
			templateGroup.GET("", templateHandler.ListTemplates)
			templateGroup.GET("/:id", templateHandler.GetTemplate)
			templateGroup.GET("/:id/preview", renderHandler.PreviewTemplate)

			adminGroup := templateGroup.Group("")
			adminGroup.Use(adminMiddleware)
			{
				adminGroup.POST("", templateHandler.CreateTemplate)
				adminGroup.PUT("/:id", templateHandler.UpdateTemplate)
				adminGroup.DELETE("/:id", templateHandler.DeleteTemplate)
			}
		}

		assetGroup := v1.Group("/assets")
		assetGroup.Use(authMiddleware)
		{
			assetGroup.POST("/upload", assetHandler.UploadAsset)
			assetGroup.GET("", assetHandler.ListAssets)
			assetGroup.GET("/view", assetHandler.GetAssetURL)
		}
	}
}
