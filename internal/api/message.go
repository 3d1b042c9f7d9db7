package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/lexmx/asistente-backend/internal/envelope"
	"github.com/lexmx/asistente-backend/internal/extract"
	"github.com/lexmx/asistente-backend/internal/metrics"
	"github.com/lexmx/asistente-backend/internal/render"
	"github.com/lexmx/asistente-backend/internal/service/chat"
	"github.com/lexmx/asistente-backend/internal/storage/postgres"
)

// SendMessageRequest is the request body for dispatching a chat message.
// Kind selects the envelope; sentinel serialization happens server-side so
// clients never build marker text themselves.
type SendMessageRequest struct {
	Kind         envelope.Kind       `json:"kind"`
	Prompt       string              `json:"prompt"`
	DocumentName string              `json:"document_name,omitempty"`
	DocumentText string              `json:"document_text,omitempty"`
	Draft        *envelope.DraftSpec `json:"draft,omitempty"`
	Estado       string              `json:"estado,omitempty"`
}

// MessageCompleteEvent closes a message stream: the persisted messages, the
// rendered assistant HTML and its citation map.
type MessageCompleteEvent struct {
	Result             *chat.SendResult `json:"result"`
	UserDisplayContent string           `json:"user_display_content"`
	AssistantHTML      string           `json:"assistant_html,omitempty"`
	DocIDs             []string         `json:"doc_ids,omitempty"`
}

// SendMessage handles POST /conversations/:id/messages and POST /messages
// (the latter creates the conversation lazily). The assistant reply streams
// back as SSE token events followed by a completion event.
func (s *Server) SendMessage(c echo.Context) error {
	var convID *uuid.UUID
	if idStr := c.Param("id"); idStr != "" {
		id, err := uuid.Parse(idStr)
		if err != nil {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "identificador de conversación inválido"})
		}
		convID = &id
	}

	var req SendMessageRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "cuerpo de la solicitud inválido"})
	}

	env, err := buildEnvelope(&req)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	}

	userID := GetUserID(c)

	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	metrics.SSEConnectionsActive.Inc()
	defer metrics.SSEConnectionsActive.Dec()

	result, err := s.chatService.SendMessage(c.Request().Context(), userID, convID, env, req.Estado, func(chunk string) error {
		return sendSSEEvent(w, "token", map[string]string{"token": chunk})
	})
	if err != nil {
		return s.sendError(w, result, err)
	}

	rendered := render.Assistant(result.AssistantMessage.Content)
	return sendSSEEvent(w, "message_complete", &MessageCompleteEvent{
		Result:             result,
		UserDisplayContent: envelope.FilterDocumentContent(result.UserMessage.Content),
		AssistantHTML:      rendered.HTML,
		DocIDs:             rendered.DocIDs,
	})
}

// sendError translates orchestration failures into SSE error events. Before
// any SSE write has happened the response is still a plain JSON error.
func (s *Server) sendError(w *echo.Response, result *chat.SendResult, err error) error {
	switch {
	case errors.Is(err, chat.ErrBusy):
		return jsonOrEvent(w, http.StatusConflict, err.Error(), result)
	case errors.Is(err, chat.ErrQuotaExceeded):
		return jsonOrEvent(w, http.StatusForbidden, err.Error(), result)
	case errors.Is(err, postgres.ErrNotFound):
		return jsonOrEvent(w, http.StatusNotFound, "conversación no encontrada", result)
	default:
		s.logger.WithError(err).Error("failed to process message")
		return jsonOrEvent(w, http.StatusBadGateway, "el asistente no está disponible en este momento", result)
	}
}

// jsonOrEvent writes a JSON error when the stream has not started, or an SSE
// error event carrying any partial content when it has.
func jsonOrEvent(w *echo.Response, status int, msg string, result *chat.SendResult) error {
	if !w.Committed {
		w.Header().Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		w.WriteHeader(status)
		return json.NewEncoder(w).Encode(ErrorResponse{Error: msg})
	}
	payload := map[string]any{"error": msg}
	if result != nil && result.Partial != "" {
		payload["partial"] = result.Partial
	}
	return sendSSEEvent(w, "error", payload)
}

func buildEnvelope(req *SendMessageRequest) (envelope.Request, error) {
	switch req.Kind {
	case envelope.KindDocumentAnalysis:
		if err := extract.Validate(req.DocumentText); err != nil {
			return envelope.Request{}, err
		}
		return envelope.DocumentAnalysis(req.Prompt, req.DocumentName, req.DocumentText), nil

	case envelope.KindSentenceAudit:
		if err := extract.Validate(req.DocumentText); err != nil {
			return envelope.Request{}, err
		}
		return envelope.SentenceAudit(req.Prompt, req.DocumentText), nil

	case envelope.KindDraft:
		if req.Draft == nil || strings.TrimSpace(req.Draft.TipoDocumento) == "" || strings.TrimSpace(req.Draft.Hechos) == "" {
			return envelope.Request{}, errors.New("tipo de documento y hechos son requeridos")
		}
		return envelope.Request{Kind: envelope.KindDraft, Prompt: req.Prompt, Draft: req.Draft}, nil

	case envelope.KindPlain, "":
		if strings.TrimSpace(req.Prompt) == "" {
			return envelope.Request{}, errors.New("la consulta no puede estar vacía")
		}
		return envelope.Plain(req.Prompt), nil

	default:
		return envelope.Request{}, fmt.Errorf("tipo de solicitud desconocido: %s", req.Kind)
	}
}

func sendSSEEvent(w *echo.Response, event string, data any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, jsonData); err != nil {
		return err
	}
	w.Flush()
	return nil
}
