package router

import (
	"time"

	"voice-chat-service/internal/client"
	"voice-chat-service/internal/config"
	"voice-chat-service/internal/handler"
	"voice-chat-service/internal/middleware"
	"voice-chat-service/internal/repository"
	"voice-chat-service/internal/service"
	"voice-chat-service/internal/websocket"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Setup wires the full service graph and returns the engine plus the
// presence service, whose sweeper the caller starts with its own context.
func Setup(cfg *config.Config, db *gorm.DB, redisClient *redis.Client, logger *zap.Logger) (*gin.Engine, *service.PresenceService) {
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Logger(logger))
	r.Use(middleware.CORS("*"))
	r.Use(middleware.MetricsMiddleware())

	// Repositories
	convRepo := repository.NewConversationRepository(db)
	messageRepo := repository.NewMessageRepository(db)
	voiceRepo := repository.NewVoiceRepository(db)

	// Clients
	userClient := client.NewUserClient(cfg.Services.UserServiceURL, 10*time.Second)

	// Hub first; services broadcast through it
	hub := websocket.NewHub(logger)

	// Services
	presenceService := service.NewPresenceService(convRepo, hub, logger,
		cfg.Presence.TTL(), cfg.Presence.SweepInterval())
	voiceService := service.NewVoiceService(voiceRepo, convRepo, userClient, hub, logger)
	messageService := service.NewMessageService(messageRepo, convRepo, userClient, hub, logger)

	// Auth
	validator := middleware.NewAuthServiceValidator(cfg.Auth.ServiceURL, cfg.Auth.SecretKey, logger)

	// Handlers
	wsHandler := websocket.NewWSHandler(hub, presenceService, convRepo, validator, logger)
	voiceHandler := handler.NewVoiceHandler(voiceService, logger)
	messageHandler := handler.NewMessageHandler(messageService, logger)
	presenceHandler := handler.NewPresenceHandler(presenceService, convRepo, logger)
	healthHandler := handler.NewHealthHandler(db, redisClient)

	// Health and metrics (no auth)
	r.GET("/health", healthHandler.Health)
	r.GET("/ready", healthHandler.Ready)
	r.GET("/metrics", middleware.MetricsHandler())

	api := r.Group(cfg.Server.BasePath)
	{
		api.GET("/health", healthHandler.Health)
		api.GET("/ready", healthHandler.Ready)

		// WebSocket endpoint; token arrives as a query parameter
		api.GET("/ws", wsHandler.HandleWebSocket)

		authenticated := api.Group("")
		authenticated.Use(middleware.AuthMiddleware(validator))
		{
			// Presence snapshot
			authenticated.GET("/conversations/:conversationId/presence", presenceHandler.GetPresence)

			// Messages
			authenticated.GET("/conversations/:conversationId/messages", messageHandler.GetMessages)
			authenticated.POST("/conversations/:conversationId/messages", messageHandler.SendMessage)
			authenticated.POST("/messages/:messageId/delivered", messageHandler.MarkDelivered)
			authenticated.POST("/messages/:messageId/read", messageHandler.MarkRead)
			authenticated.GET("/messages/:messageId/read-receipts", messageHandler.GetReadReceipts)
			authenticated.DELETE("/messages/:messageId", messageHandler.DeleteMessage)

			// Voice rooms
			authenticated.GET("/conversations/:conversationId/voice-room", voiceHandler.GetRoom)
			authenticated.POST("/conversations/:conversationId/voice-room/join", voiceHandler.Join)
			authenticated.POST("/conversations/:conversationId/voice-room/leave", voiceHandler.Leave)
			authenticated.POST("/conversations/:conversationId/voice-room/heartbeat", voiceHandler.Heartbeat)
			authenticated.POST("/conversations/:conversationId/voice-room/transmit", voiceHandler.Transmit)
			authenticated.POST("/conversations/:conversationId/voice-room/transmissions/:transmissionId/played", voiceHandler.MarkPlayed)
		}
	}

	return r, presenceService
}
