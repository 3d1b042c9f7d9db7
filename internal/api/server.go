package api

import (
	"github.com/sirupsen/logrus"

	"github.com/lexmx/asistente-backend/internal/cache/redis"
	"github.com/lexmx/asistente-backend/internal/rag"
	"github.com/lexmx/asistente-backend/internal/service"
	"github.com/lexmx/asistente-backend/internal/service/chat"
	"github.com/lexmx/asistente-backend/internal/service/connect"
	"github.com/lexmx/asistente-backend/internal/service/quota"
	"github.com/lexmx/asistente-backend/internal/storage/postgres"
)

// Server holds API dependencies.
type Server struct {
	authService    *service.AuthService
	convRepo       *postgres.ConversationRepository
	chatService    *chat.Service
	quotaService   *quota.Service
	connectService *connect.Service
	postalClient   *connect.PostalClient
	ragClient      *rag.Client
	limiter        *redis.FixedWindowLimiter
	logger         *logrus.Logger
}

// NewServer creates a new API server.
func NewServer(
	authService *service.AuthService,
	convRepo *postgres.ConversationRepository,
	chatService *chat.Service,
	quotaService *quota.Service,
	connectService *connect.Service,
	postalClient *connect.PostalClient,
	ragClient *rag.Client,
	limiter *redis.FixedWindowLimiter,
	logger *logrus.Logger,
) *Server {
	return &Server{
		authService:    authService,
		convRepo:       convRepo,
		chatService:    chatService,
		quotaService:   quotaService,
		connectService: connectService,
		postalClient:   postalClient,
		ragClient:      ragClient,
		limiter:        limiter,
		logger:         logger,
	}
}
