// Package api HTTP 路由与依赖装配
package api

import (
	"context"
	"fmt"
	"time"

	"backend/api/handlers/aiadmin"
	"backend/api/handlers/aigateway"
	"backend/internal/aicore"
	"backend/internal/aiprovider"
	"backend/internal/auth"
	"backend/internal/config"
	"backend/internal/feature"
	"backend/internal/infra"
	"backend/internal/middleware"
	"backend/internal/notification"
	"backend/internal/settings"
	"backend/internal/subscription"
	"backend/internal/worker"
	"backend/internal/worker/handlers"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// SetupRouter 装配全部服务并返回 HTTP 路由和后台任务服务器
func SetupRouter(cfg *config.Config, db *gorm.DB, redisClient redis.UniversalClient, log *zap.Logger) (*gin.Engine, *worker.Server, error) {
	gin.SetMode(cfg.Server.Mode)

	// 领域服务
	settingsSvc := settings.NewService(db)
	featureSvc := feature.NewService(db)
	subscriptionSvc := subscription.NewService(db)
	notificationSvc := notification.NewService(db)
	ledger := aicore.NewLedger(db)
	conversations := aicore.NewConversationStore(db,
		cfg.AI.Gateway.ContextMaxTurns, cfg.AI.Gateway.ContextMaxTokens)

	if cfg.Database.AutoMigrate {
		if err := migrateAndSeed(settingsSvc, featureSvc, subscriptionSvc, notificationSvc, ledger, conversations, db); err != nil {
			return nil, nil, err
		}
	}

	// 网关流水线
	prices, err := aicore.LoadPriceTable(cfg.AI.Gateway.PriceTablePath)
	if err != nil {
		return nil, nil, err
	}

	factory := aiprovider.NewFactory(map[string]aiprovider.ProviderCredentials{
		aiprovider.ProviderAnthropic: {
			APIKey:  cfg.AI.Anthropic.APIKey,
			BaseURL: cfg.AI.Anthropic.BaseURL,
		},
		aiprovider.ProviderOpenAI: {
			APIKey:  cfg.AI.OpenAI.APIKey,
			BaseURL: cfg.AI.OpenAI.BaseURL,
		},
	}, time.Duration(cfg.AI.Gateway.ProviderTimeoutSeconds)*time.Second)

	enqueuer := worker.NewEnqueuer(cfg.Redis)
	guard := aicore.NewBudgetGuard(ledger, aicore.NewRedisCrossingLatch(redisClient), enqueuer)
	limiter := aicore.NewRateLimiter(aicore.NewRedisCounterStore(redisClient))
	resolver := aicore.NewResolver(featureSvc, subscriptionSvc, aicore.ResolverDefaults{
		MaxTokens:              cfg.AI.Gateway.DefaultMaxTokens,
		RateLimitWindowSeconds: cfg.AI.Gateway.DefaultRateLimitWindowSeconds,
		RateLimitMaxRequests:   cfg.AI.Gateway.DefaultRateLimitMaxRequests,
	})
	invoker := aicore.NewInvoker(factory, time.Duration(cfg.AI.Gateway.ProviderTimeoutSeconds)*time.Second)
	accountant := aicore.NewAccountant(prices, cfg.AI.Gateway.FXRateUSDToEUR)

	gateway := aicore.NewService(settingsSvc, guard, limiter, resolver, conversations, invoker, accountant, ledger)

	// 后台任务
	budgetHandler := handlers.NewBudgetHandler(db, settingsSvc, featureSvc, notificationSvc, log)
	workerSrv := worker.NewServer(cfg.Redis, budgetHandler, log)

	// HTTP 处理器
	jwtService := auth.NewJWTService(cfg.Auth.JWTSecret, "backend")
	gatewayHandler := aigateway.NewHandler(gateway, conversations)
	adminHandler := aiadmin.NewHandler(settingsSvc, featureSvc, ledger, notificationSvc)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	router.GET("/ready", func(c *gin.Context) {
		if err := infra.HealthCheck(); err != nil {
			c.JSON(503, gin.H{"status": "degraded", "error": fmt.Sprintf("database: %v", err)})
			return
		}
		if err := infra.HealthCheckRedis(); err != nil {
			c.JSON(503, gin.H{"status": "degraded", "error": fmt.Sprintf("redis: %v", err)})
			return
		}
		c.JSON(200, gin.H{"status": "ready"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	authed := router.Group("/api", middleware.AuthMiddleware(jwtService))
	{
		ai := authed.Group("/ai")
		{
			ai.POST("/request", gatewayHandler.ProcessRequest)
			ai.GET("/conversations/:id", gatewayHandler.GetConversation)
		}

		admin := authed.Group("/admin/ai", middleware.AdminRequired())
		{
			admin.GET("/settings", adminHandler.GetSettings)
			admin.PUT("/settings", adminHandler.UpdateSettings)

			admin.GET("/features", adminHandler.ListFeatures)
			admin.POST("/features", adminHandler.CreateFeature)
			admin.PUT("/features/:key", adminHandler.UpdateFeature)
			admin.DELETE("/features/:key", adminHandler.DeleteFeature)

			admin.GET("/prompts", adminHandler.ListPrompts)
			admin.PUT("/prompts", adminHandler.UpsertPrompt)
			admin.DELETE("/prompts/:key", adminHandler.DeletePrompt)

			admin.GET("/usage", adminHandler.GetUsageStats)
			admin.GET("/ledger", adminHandler.ListLedgerEntries)

			admin.GET("/notifications", adminHandler.ListNotifications)
			admin.POST("/notifications/:id/read", adminHandler.MarkNotificationRead)
		}
	}

	return router, workerSrv, nil
}

// migrateAndSeed 迁移全部表结构并预置功能配置
func migrateAndSeed(
	settingsSvc *settings.Service,
	featureSvc *feature.Service,
	subscriptionSvc *subscription.Service,
	notificationSvc *notification.Service,
	ledger *aicore.Ledger,
	conversations *aicore.ConversationStore,
	db *gorm.DB,
) error {
	migrations := []func() error{
		settingsSvc.AutoMigrate,
		featureSvc.AutoMigrate,
		subscriptionSvc.AutoMigrate,
		notificationSvc.AutoMigrate,
		ledger.AutoMigrate,
		conversations.AutoMigrate,
		func() error { return db.AutoMigrate(&handlers.BudgetEvent{}) },
	}
	for _, migrate := range migrations {
		if err := migrate(); err != nil {
			return fmt.Errorf("表结构迁移失败: %w", err)
		}
	}
	return featureSvc.SeedDefaults(context.Background())
}
