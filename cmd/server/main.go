package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/lexmx/asistente-backend/internal/api"
	"github.com/lexmx/asistente-backend/internal/cache/redis"
	"github.com/lexmx/asistente-backend/internal/config"
	"github.com/lexmx/asistente-backend/internal/rag"
	"github.com/lexmx/asistente-backend/internal/service"
	"github.com/lexmx/asistente-backend/internal/service/chat"
	"github.com/lexmx/asistente-backend/internal/service/connect"
	"github.com/lexmx/asistente-backend/internal/service/quota"
	"github.com/lexmx/asistente-backend/internal/storage/postgres"
)

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("failed to load configuration")
	}

	// Configure log format
	if cfg.LogFormat == "text" {
		logger.SetFormatter(&logrus.TextFormatter{})
	}

	logger.Info("starting asistente-backend server")

	// Connect to database
	ctx := context.Background()
	db, err := postgres.New(ctx, cfg.Database.DSN)
	if err != nil {
		logger.WithError(err).Fatal("failed to connect to database")
	}
	defer db.Close()

	// Initialize Redis client
	redisClient, err := redis.New(cfg.Redis.URI)
	if err != nil {
		logger.WithError(err).Fatal("failed to connect to redis")
	}
	defer redisClient.Close()

	// Initialize retrieval backend client
	ragClient := rag.NewClient(cfg.RAG.BaseURL, cfg.RAG.Timeout, cfg.RAG.TopK)

	// Initialize services
	authService := service.NewAuthService(cfg.Server.JWTSecret)

	// Initialize repositories
	convRepo := postgres.NewConversationRepository(db.Pool())
	quotaRepo := postgres.NewQuotaRepository(db.Pool())
	connectRepo := postgres.NewConnectRepository(db.Pool())

	// Initialize quota gate
	quotaService := quota.NewService(quotaRepo, logger)

	// Initialize chat orchestration
	chatService := chat.NewService(convRepo, redisClient, quotaService, ragClient, logger, cfg.RAG.TopK)

	// Initialize Connect marketplace
	cedulaClient := connect.NewCedulaClient(cfg.Connect.CedulaLookupURL)
	postalClient := connect.NewPostalClient(cfg.Connect.PostalLookupURL)
	var mailer connect.Mailer
	if m := connect.NewWebhookMailer(cfg.Connect.MailWebhookURL); m != nil {
		mailer = m
	}
	connectService := connect.NewService(connectRepo, cedulaClient, mailer, logger)

	// Initialize rate limiter
	limiter := redis.NewFixedWindowLimiter(redisClient, cfg.RateLimit.Requests, cfg.RateLimit.Window)

	// Initialize API server
	server := api.NewServer(authService, convRepo, chatService, quotaService, connectService, postalClient, ragClient, limiter, logger)

	// Create Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Add middleware
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(middleware.RequestID())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:    true,
		LogStatus: true,
		LogMethod: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			logger.WithFields(logrus.Fields{
				"method":     v.Method,
				"uri":        v.URI,
				"status":     v.Status,
				"request_id": c.Response().Header().Get(echo.HeaderXRequestID),
			}).Info("request")
			return nil
		},
	}))

	// Health check endpoint (public)
	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status": "ok",
		})
	})

	// Prometheus metrics (public)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// API routes (authenticated, rate limited)
	v1 := e.Group("/api/v1", server.AuthMiddleware, server.RateLimitMiddleware)

	v1.POST("/conversations", server.CreateConversation)
	v1.GET("/conversations", server.ListConversations)
	v1.GET("/conversations/active", server.GetActiveConversation)
	v1.GET("/conversations/:id", server.GetConversation)
	v1.DELETE("/conversations/:id", server.DeleteConversation)
	v1.POST("/messages", server.SendMessage)
	v1.POST("/conversations/:id/messages", server.SendMessage)

	v1.GET("/quota", server.GetQuota)

	v1.POST("/search", server.Search)
	v1.GET("/documents/:id", server.GetDocument)
	v1.POST("/audit", server.AuditDocument)
	v1.POST("/enhance", server.EnhanceText)
	v1.POST("/extract-text", server.ExtractText)

	v1.POST("/connect/profile", server.RegisterProfile)
	v1.GET("/connect/profile", server.GetOwnProfile)
	v1.GET("/connect/lawyers", server.SearchLawyers)
	v1.POST("/connect/requests", server.CreateConnectRequest)
	v1.GET("/connect/requests", server.ListConnectRequests)
	v1.POST("/connect/requests/:id/status", server.UpdateConnectRequest)
	v1.GET("/connect/postal/:cp", server.LookupPostalCode)

	// Start server
	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	go func() {
		logger.WithField("addr", addr).Info("server listening")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("server error")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("server shutdown error")
	}

	logger.Info("server stopped")
}
