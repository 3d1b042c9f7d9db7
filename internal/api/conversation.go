package api

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	cacheredis "github.com/lexmx/asistente-backend/internal/cache/redis"
	"github.com/lexmx/asistente-backend/internal/service/chat"
	"github.com/lexmx/asistente-backend/internal/storage/postgres"
	"github.com/lexmx/asistente-backend/internal/types"
)

// CreateConversationRequest is the request body for creating a conversation.
type CreateConversationRequest struct {
	Estado *string `json:"estado,omitempty"`
}

// ListConversationsResponse is the response for listing conversations.
type ListConversationsResponse struct {
	Conversations []types.Conversation `json:"conversations"`
	ActiveID      *uuid.UUID           `json:"active_id,omitempty"`
}

// DeleteConversationResponse reports the fallback after deleting.
type DeleteConversationResponse struct {
	Success bool                `json:"success"`
	Active  *types.Conversation `json:"active,omitempty"`
}

// CreateConversation creates a new empty conversation and makes it active.
func (s *Server) CreateConversation(c echo.Context) error {
	var req CreateConversationRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "cuerpo de la solicitud inválido"})
	}

	userID := GetUserID(c)
	conv, err := s.convRepo.Create(c.Request().Context(), userID, req.Estado)
	if err != nil {
		s.logger.WithError(err).Error("failed to create conversation")
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "no se pudo crear la conversación"})
	}

	if _, err := s.chatService.SwitchConversation(c.Request().Context(), userID, conv.ID); err != nil {
		s.logger.WithError(err).Warn("failed to activate new conversation")
	}

	return c.JSON(http.StatusCreated, conv)
}

// ListConversations returns the user's conversations ordered by recency,
// along with the durable active pointer.
func (s *Server) ListConversations(c echo.Context) error {
	userID := GetUserID(c)

	convs, err := s.convRepo.List(c.Request().Context(), userID)
	if err != nil {
		s.logger.WithError(err).Error("failed to list conversations")
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "no se pudieron cargar las conversaciones"})
	}
	if convs == nil {
		convs = []types.Conversation{}
	}

	resp := ListConversationsResponse{Conversations: convs}
	if active, err := s.chatService.ActiveConversation(c.Request().Context(), userID); err == nil {
		resp.ActiveID = &active.ID
	}

	return c.JSON(http.StatusOK, resp)
}

// GetConversation switches to a conversation: loads its messages, marks it
// active and returns it. The in-memory view always equals the persisted
// messages after a switch.
func (s *Server) GetConversation(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "identificador de conversación inválido"})
	}

	userID := GetUserID(c)
	full, err := s.chatService.SwitchConversation(c.Request().Context(), userID, id)
	if err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			return c.JSON(http.StatusNotFound, ErrorResponse{Error: "conversación no encontrada"})
		}
		if errors.Is(err, chat.ErrBusy) {
			return c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error()})
		}
		s.logger.WithError(err).Error("failed to get conversation")
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "no se pudo cargar la conversación"})
	}

	if full.Messages == nil {
		full.Messages = []types.Message{}
	}
	return c.JSON(http.StatusOK, full)
}

// GetActiveConversation resolves the durable active pointer. Returns 204
// when the user has no active conversation (empty state).
func (s *Server) GetActiveConversation(c echo.Context) error {
	userID := GetUserID(c)

	full, err := s.chatService.ActiveConversation(c.Request().Context(), userID)
	if err != nil {
		if errors.Is(err, cacheredis.ErrNoActive) || errors.Is(err, postgres.ErrNotFound) {
			return c.NoContent(http.StatusNoContent)
		}
		s.logger.WithError(err).Error("failed to resolve active conversation")
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "no se pudo cargar la conversación activa"})
	}

	if full.Messages == nil {
		full.Messages = []types.Message{}
	}
	return c.JSON(http.StatusOK, full)
}

// DeleteConversation removes a conversation and reports the fallback active
// conversation, if any remains.
func (s *Server) DeleteConversation(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "identificador de conversación inválido"})
	}

	userID := GetUserID(c)
	next, err := s.chatService.DeleteConversation(c.Request().Context(), userID, id)
	if err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			return c.JSON(http.StatusNotFound, ErrorResponse{Error: "conversación no encontrada"})
		}
		s.logger.WithError(err).Error("failed to delete conversation")
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "no se pudo eliminar la conversación"})
	}

	return c.JSON(http.StatusOK, DeleteConversationResponse{Success: true, Active: next})
}
