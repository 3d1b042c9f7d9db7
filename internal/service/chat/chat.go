// Package chat orchestrates the conversation flow: quota gating, streaming
// from the retrieval backend, and persistence side effects. Messages are
// persisted exactly once each: the user message up front, the assistant
// reply only after its stream completes.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/lexmx/asistente-backend/internal/cache/redis"
	"github.com/lexmx/asistente-backend/internal/envelope"
	"github.com/lexmx/asistente-backend/internal/metrics"
	"github.com/lexmx/asistente-backend/internal/rag"
	"github.com/lexmx/asistente-backend/internal/service/quota"
	"github.com/lexmx/asistente-backend/internal/storage/postgres"
	"github.com/lexmx/asistente-backend/internal/types"
)

// ErrQuotaExceeded is returned when the monthly allowance is exhausted.
var ErrQuotaExceeded = errors.New("límite de consultas alcanzado")

const maxTitleLen = 60

// ConversationStore is the persistence surface for conversations.
type ConversationStore interface {
	Create(ctx context.Context, userID string, estado *string) (*types.Conversation, error)
	GetByID(ctx context.Context, id uuid.UUID, userID string) (*types.Conversation, error)
	GetWithMessages(ctx context.Context, id uuid.UUID, userID string) (*types.ConversationWithMessages, error)
	List(ctx context.Context, userID string) ([]types.Conversation, error)
	MostRecent(ctx context.Context, userID string) (*types.Conversation, error)
	AppendMessage(ctx context.Context, msg *types.Message, derivedTitle string) error
	Delete(ctx context.Context, id uuid.UUID, userID string) error
}

// ActiveStore is the durable per-user active-conversation pointer.
type ActiveStore interface {
	GetActiveConversation(ctx context.Context, userID string) (string, error)
	SetActiveConversation(ctx context.Context, userID, conversationID string) error
	ClearActiveConversation(ctx context.Context, userID string) error
}

// QuotaGate guards query dispatch.
type QuotaGate interface {
	CheckCanQuery(ctx context.Context, userID string) (*quota.CheckResult, error)
	RecordDispatch(ctx context.Context, userID string)
}

// Streamer opens a chunked chat completion.
type Streamer interface {
	StreamChat(ctx context.Context, req *rag.ChatRequest, onChunk rag.ChunkCallback) error
}

// Service wires sessions, storage and the retrieval backend together.
type Service struct {
	convs  ConversationStore
	active ActiveStore
	quota  QuotaGate
	rag    Streamer
	logger *logrus.Logger
	topK   int

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewService creates a new chat Service.
func NewService(convs ConversationStore, active ActiveStore, quotaGate QuotaGate, streamer Streamer, logger *logrus.Logger, topK int) *Service {
	return &Service{
		convs:    convs,
		active:   active,
		quota:    quotaGate,
		rag:      streamer,
		logger:   logger,
		topK:     topK,
		sessions: make(map[string]*Session),
	}
}

// session returns the user's session, creating one on first use. One session
// per user mirrors the invariant of at most one active conversation per
// browser session.
func (s *Service) session(userID string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[userID]
	if !ok {
		sess = NewSession()
		s.sessions[userID] = sess
	}
	return sess
}

// SendResult is the outcome of one SendMessage call.
type SendResult struct {
	Conversation     *types.Conversation `json:"conversation"`
	UserMessage      types.Message       `json:"user_message"`
	AssistantMessage *types.Message      `json:"assistant_message,omitempty"`
	// Partial holds whatever streamed before a failure; partial answers are
	// preserved, not rolled back.
	Partial        string `json:"partial,omitempty"`
	QuotaRemaining int    `json:"quota_remaining"`
}

// SendMessage dispatches one user query. conversationID may be nil: the
// conversation is created lazily on the first message and becomes active.
// Chunks are forwarded to onChunk in arrival order as they stream in.
func (s *Service) SendMessage(ctx context.Context, userID string, conversationID *uuid.UUID, req envelope.Request, estado string, onChunk func(string) error) (*SendResult, error) {
	sess := s.session(userID)
	if !sess.begin() {
		return nil, ErrBusy
	}

	check, err := s.quota.CheckCanQuery(ctx, userID)
	if err != nil {
		sess.end()
		return nil, fmt.Errorf("check quota: %w", err)
	}
	if !check.CanQuery {
		sess.end()
		metrics.QuotaBlockedTotal.Inc()
		return nil, ErrQuotaExceeded
	}

	conv, err := s.ensureConversation(ctx, sess, userID, conversationID, estado)
	if err != nil {
		sess.end()
		return nil, err
	}
	if conv.Estado != nil && estado == "" {
		estado = *conv.Estado
	}

	content := req.Serialize()

	userMsg := types.Message{ConversationID: conv.ID, Role: types.RoleUser, Content: content}
	if err := s.convs.AppendMessage(ctx, &userMsg, deriveTitle(content)); err != nil {
		sess.end()
		return nil, fmt.Errorf("persist user message: %w", err)
	}

	// One increment per dispatched query; never decremented, even when the
	// stream fails afterwards.
	s.quota.RecordDispatch(ctx, userID)
	metrics.MessagesTotal.WithLabelValues(string(types.RoleUser)).Inc()

	start := time.Now()
	final, streamErr := sess.run(ctx, s.streamFunc(estado, onChunk), content)
	result := &SendResult{
		Conversation:   conv,
		UserMessage:    userMsg,
		QuotaRemaining: remainingAfterDispatch(check),
	}

	if streamErr != nil {
		metrics.RecordStream("error", time.Since(start).Seconds())
		result.Partial = final
		s.logger.WithError(streamErr).WithField("conversation_id", conv.ID).Error("chat stream failed")
		return result, streamErr
	}
	metrics.RecordStream("success", time.Since(start).Seconds())

	assistantMsg := types.Message{ConversationID: conv.ID, Role: types.RoleAssistant, Content: final}
	if err := s.convs.AppendMessage(ctx, &assistantMsg, ""); err != nil {
		return result, fmt.Errorf("persist assistant message: %w", err)
	}
	metrics.MessagesTotal.WithLabelValues(string(types.RoleAssistant)).Inc()

	result.AssistantMessage = &assistantMsg
	return result, nil
}

// streamFunc adapts the retrieval client to the session's StreamFunc shape.
// Chunks are teed to forward (the transport-level listener, may be nil) after
// the session has recorded them.
func (s *Service) streamFunc(estado string, forward func(string) error) StreamFunc {
	return func(ctx context.Context, history []types.Message, onChunk func(string) error) error {
		msgs := make([]rag.ChatMessage, len(history))
		for i, m := range history {
			msgs[i] = rag.ChatMessage{Role: string(m.Role), Content: m.Content}
		}
		return s.rag.StreamChat(ctx, &rag.ChatRequest{
			Messages: msgs,
			Estado:   estado,
			TopK:     s.topK,
		}, func(chunk string) error {
			if err := onChunk(chunk); err != nil {
				return err
			}
			if forward != nil {
				return forward(chunk)
			}
			return nil
		})
	}
}

// ensureConversation resolves or lazily creates the target conversation and
// keeps the session's in-memory list equal to its persisted messages, so a
// switch never bleeds messages across conversations.
func (s *Service) ensureConversation(ctx context.Context, sess *Session, userID string, conversationID *uuid.UUID, estado string) (*types.Conversation, error) {
	if conversationID == nil {
		var estadoPtr *string
		if estado != "" {
			estadoPtr = &estado
		}
		conv, err := s.convs.Create(ctx, userID, estadoPtr)
		if err != nil {
			return nil, fmt.Errorf("create conversation: %w", err)
		}
		sess.adopt(conv.ID, nil)
		if err := s.active.SetActiveConversation(ctx, userID, conv.ID.String()); err != nil {
			s.logger.WithError(err).Warn("failed to set active conversation pointer")
		}
		return conv, nil
	}

	if sess.ConversationID() == *conversationID {
		conv, err := s.convs.GetByID(ctx, *conversationID, userID)
		if err != nil {
			return nil, err
		}
		return conv, nil
	}

	full, err := s.convs.GetWithMessages(ctx, *conversationID, userID)
	if err != nil {
		return nil, err
	}
	sess.adopt(full.ID, full.Messages)
	if err := s.active.SetActiveConversation(ctx, userID, full.ID.String()); err != nil {
		s.logger.WithError(err).Warn("failed to set active conversation pointer")
	}
	return &full.Conversation, nil
}

// SwitchConversation loads a conversation into the session and marks it
// active. Switching never writes messages.
func (s *Service) SwitchConversation(ctx context.Context, userID string, conversationID uuid.UUID) (*types.ConversationWithMessages, error) {
	full, err := s.convs.GetWithMessages(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}
	sess := s.session(userID)
	if sess.Loading() {
		return nil, ErrBusy
	}
	sess.Replace(full.ID, full.Messages)
	if err := s.active.SetActiveConversation(ctx, userID, full.ID.String()); err != nil {
		s.logger.WithError(err).Warn("failed to set active conversation pointer")
	}
	return full, nil
}

// ActiveConversation resolves the durable pointer to a full conversation.
// Returns redis.ErrNoActive when the pointer is unset.
func (s *Service) ActiveConversation(ctx context.Context, userID string) (*types.ConversationWithMessages, error) {
	idStr, err := s.active.GetActiveConversation(ctx, userID)
	if err != nil {
		return nil, err
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		// Stale or corrupt pointer: clear it and report empty state.
		_ = s.active.ClearActiveConversation(ctx, userID)
		return nil, redis.ErrNoActive
	}
	return s.convs.GetWithMessages(ctx, id, userID)
}

// DeleteConversation removes a conversation. Deleting the active one falls
// back to the most recently updated remaining conversation and loads its
// messages; deleting the last conversation empties the pointer and clears
// the session. Returns the new active conversation, or nil for empty state.
func (s *Service) DeleteConversation(ctx context.Context, userID string, conversationID uuid.UUID) (*types.Conversation, error) {
	if err := s.convs.Delete(ctx, conversationID, userID); err != nil {
		return nil, err
	}

	activeID, err := s.active.GetActiveConversation(ctx, userID)
	if err != nil || activeID != conversationID.String() {
		// Deleted a background conversation; the pointer stands.
		return nil, nil
	}

	sess := s.session(userID)
	next, err := s.convs.MostRecent(ctx, userID)
	if err != nil {
		// Only a confirmed empty account clears the pointer; a transient
		// lookup failure is surfaced instead.
		if !errors.Is(err, postgres.ErrNotFound) {
			return nil, fmt.Errorf("find fallback conversation: %w", err)
		}
		if clearErr := s.active.ClearActiveConversation(ctx, userID); clearErr != nil {
			s.logger.WithError(clearErr).Warn("failed to clear active conversation pointer")
		}
		sess.Clear()
		return nil, nil
	}

	full, err := s.convs.GetWithMessages(ctx, next.ID, userID)
	if err != nil {
		return nil, fmt.Errorf("load fallback conversation: %w", err)
	}
	sess.Replace(full.ID, full.Messages)
	if err := s.active.SetActiveConversation(ctx, userID, next.ID.String()); err != nil {
		s.logger.WithError(err).Warn("failed to set active conversation pointer")
	}
	return next, nil
}

// Session exposes the user's session for read access.
func (s *Service) Session(userID string) *Session {
	return s.session(userID)
}

func remainingAfterDispatch(check *quota.CheckResult) int {
	if check.Remaining == types.UnlimitedQueries {
		return types.UnlimitedQueries
	}
	if check.Remaining > 0 {
		return check.Remaining - 1
	}
	return 0
}

// deriveTitle builds a conversation title from the first message: hidden
// payloads stripped, first line, truncated.
func deriveTitle(content string) string {
	visible := envelope.FilterDocumentContent(content)
	line := visible
	if i := strings.IndexByte(visible, '\n'); i >= 0 {
		line = visible[:i]
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return "Nueva consulta"
	}
	runes := []rune(line)
	if len(runes) > maxTitleLen {
		return string(runes[:maxTitleLen]) + "…"
	}
	return line
}
