// Package main 是应用程序的入口点。
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/subosito/gotenv"

	"healthguide-go/internal/config"
	"healthguide-go/internal/handler"
	"healthguide-go/internal/middleware"
	"healthguide-go/internal/model"
	"healthguide-go/internal/pipeline"
	"healthguide-go/internal/repository"
	"healthguide-go/internal/service"
	"healthguide-go/pkg/database"
	"healthguide-go/pkg/es"
	"healthguide-go/pkg/kafka"
	"healthguide-go/pkg/log"
	"healthguide-go/pkg/storage"
	"healthguide-go/pkg/token"
	"healthguide-go/pkg/triage"
)

func main() {
	// 0. 加载 .env（可选），其中的变量会被 viper 的环境变量绑定读取
	_ = gotenv.Load()

	// 1. 初始化配置
	config.Init(envOr("CONFIG_PATH", "./configs/config.yaml"))
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	// 3. 初始化数据库、Redis 与外部存储
	database.InitMySQL(cfg.Database.MySQL.DSN)
	database.Migrate(&model.TriageOutcome{})
	database.InitRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)
	storage.InitMinIO(cfg.MinIO)
	if err := es.InitES(cfg.Elasticsearch); err != nil {
		log.Errorf("es 初始化失败 %s", err)
		return
	}
	kafka.InitProducer(cfg.Kafka)

	// 4. 初始化 Repository
	conversationRepo := repository.NewConversationRepository(database.RDB)
	preferenceRepo := repository.NewPreferenceRepository(database.RDB, cfg.Conversation.SnapshotTTL)
	outcomeRepo := repository.NewOutcomeRepository(database.DB)

	// 5. 初始化 Service (依赖注入)
	jwtManager := token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.ConversationExpireHours)
	triageClient := triage.NewClient(cfg.Triage)
	preferenceService := service.NewPreferenceService(preferenceRepo, cfg.Conversation)
	conversationService := service.NewConversationService(
		cfg.Triage,
		cfg.Conversation,
		triageClient,
		conversationRepo,
		preferenceService,
		kafka.OutcomePublisher{},
		jwtManager,
	)
	adminService := service.NewAdminService(outcomeRepo, cfg.Elasticsearch, cfg.MinIO)

	// 6. 初始化分诊结果处理管道，并启动后台 Kafka 消费者与空闲会话回收
	processor := pipeline.NewProcessor(cfg.Elasticsearch, cfg.MinIO, outcomeRepo)
	bgCtx, cancelBg := context.WithCancel(context.Background())
	defer cancelBg()
	go kafka.StartConsumer(bgCtx, cfg.Kafka, processor, database.RDB)
	go conversationService.RunSweeper(bgCtx)

	// 7. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New() // 使用 New() 创建一个不带默认中间件的引擎
	r.Use(middleware.RequestLogger(), gin.Recovery())

	conversationHandler := handler.NewConversationHandler(conversationService)
	preferenceHandler := handler.NewPreferenceHandler(preferenceService)
	adminHandler := handler.NewAdminHandler(adminService)

	// 8. 注册路由
	r.GET("/health", handler.Health)
	r.GET("/chat/:token", handler.NewChatHandler(conversationService, jwtManager).Handle)

	apiV1 := r.Group("/api/v1")
	{
		apiV1.POST("/conversations", conversationHandler.Start)

		// 需要会话令牌的路由
		conversation := apiV1.Group("/conversation")
		conversation.Use(middleware.ConversationAuth(jwtManager))
		{
			conversation.GET("", conversationHandler.Get)
			conversation.GET("/mine", conversationHandler.ListMine)
			conversation.POST("/messages", conversationHandler.SendMessage)
			conversation.POST("/providers", conversationHandler.RequestProviders)
			conversation.POST("/providers/reveal", conversationHandler.RevealProviders)
			conversation.DELETE("", conversationHandler.End)
		}

		preferences := apiV1.Group("/preferences")
		{
			preferences.GET("", preferenceHandler.Get)
			preferences.PUT("", preferenceHandler.Update)
		}

		admin := apiV1.Group("/admin")
		admin.Use(middleware.AdminAuthMiddleware(cfg.Admin.TokenHash))
		{
			admin.GET("/outcomes", adminHandler.ListOutcomes)
			admin.GET("/outcomes/search", adminHandler.SearchOutcomes)
			admin.GET("/outcomes/:id/transcript", adminHandler.TranscriptURL)
		}
	}

	// 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	// 等待中断信号以实现优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("HTTP 服务器关闭失败: %v", err)
	}

	// 结束所有会话并取消在途的后端调用
	conversationService.Shutdown()
	cancelBg()
	if err := kafka.CloseProducer(); err != nil {
		log.Errorf("关闭 Kafka 生产者失败: %v", err)
	}
	log.Info("服务已优雅关闭")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
