package router

import (
	"time"

	"loyalty/config"
	"loyalty/internal/handler"
	"loyalty/internal/middleware"
	"loyalty/internal/repository"
	"loyalty/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

func Setup(cfg *config.Config, db *gorm.DB, log *logrus.Logger) *gin.Engine {
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RateLimit(middleware.NewInMemoryRateLimiter(100, 60*time.Second)))

	// Repositories
	userRepo := repository.NewUserRepository(db)
	merchantRepo := repository.NewMerchantRepository(db)
	orderRepo := repository.NewOrderRepository(db)
	pointsRepo := repository.NewPointsRepository(db)
	adminRepo := repository.NewAdminRepository(db)
	auditRepo := repository.NewAuditLogRepository(db)

	// Services
	settlementSvc := service.NewSettlementService(db, orderRepo, pointsRepo, &cfg.Points, log)
	pointsSvc := service.NewPointsService(db, userRepo, pointsRepo, log)
	authSvc := service.NewAuthService(cfg, adminRepo)

	// Handlers
	webhookHandler := handler.NewPaymentWebhookHandler(orderRepo, settlementSvc, log)
	orderHandler := handler.NewOrderHandler(cfg, orderRepo, userRepo, merchantRepo, settlementSvc)
	pointsHandler := handler.NewPointsHandler(pointsSvc)
	adminHandler := handler.NewAdminHandler(pointsSvc, settlementSvc, auditRepo)
	adminAuthHandler := handler.NewAdminAuthHandler(authSvc)

	api := r.Group("/api/v1")
	{
		api.POST("/webhooks/payment", webhookHandler.Handle)
		api.POST("/admin/login", adminAuthHandler.Login)

		authed := api.Group("", middleware.AuthRequired(&cfg.JWT))
		{
			authed.POST("/orders", orderHandler.Create)
			authed.GET("/orders", orderHandler.List)
			authed.GET("/orders/:id", orderHandler.Get)
			authed.GET("/points/balance", pointsHandler.GetBalance)
			authed.GET("/points/records", pointsHandler.GetHistory)
		}

		admin := api.Group("/admin", middleware.AuthRequired(&cfg.JWT), middleware.AdminRequired())
		{
			admin.POST("/points/adjust", adminHandler.AdjustPoints)
			admin.POST("/orders/:id/refund", adminHandler.RefundOrder)
			admin.POST("/orders/:id/cancel", adminHandler.CancelOrder)
			admin.GET("/users/:id/verify-balance", adminHandler.VerifyBalance)
		}
	}

	return r
}
