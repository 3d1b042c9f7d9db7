package chat

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/lexmx/asistente-backend/internal/types"
)

// ErrBusy is returned when a send is attempted while another is in flight.
// Sends are serialized, not queued.
var ErrBusy = errors.New("ya hay una consulta en curso")

// StreamFunc opens a streaming completion for the given history and invokes
// onChunk for each fragment in arrival order.
type StreamFunc func(ctx context.Context, history []types.Message, onChunk func(string) error) error

// Session owns the in-memory message list for one user's open conversation.
// The last message is the only mutation point: while a stream is in flight
// incoming fragments are appended to it in place; everything else is
// append-only.
type Session struct {
	mu             sync.Mutex
	conversationID uuid.UUID
	messages       []types.Message
	loading        bool
	lastErr        error
}

// NewSession creates an empty session.
func NewSession() *Session {
	return &Session{}
}

// ConversationID returns the conversation the session currently mirrors.
func (s *Session) ConversationID() uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversationID
}

// Messages returns a copy of the in-memory message list.
func (s *Session) Messages() []types.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Loading reports whether a send is in flight.
func (s *Session) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// Err returns the error recorded by the last send, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Clear resets the message list to empty. It does not touch persisted
// conversation state; that is the caller's responsibility. Like Replace it
// is ignored while a send is in flight: the stream appends to the last
// message, which must not vanish under it.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loading {
		return
	}
	s.conversationID = uuid.Nil
	s.messages = nil
	s.lastErr = nil
}

// Replace swaps the in-memory list wholesale, used when switching
// conversations. It never triggers a save; only a completed streaming
// response does.
func (s *Session) Replace(conversationID uuid.UUID, msgs []types.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loading {
		return
	}
	s.conversationID = conversationID
	s.messages = make([]types.Message, len(msgs))
	copy(s.messages, msgs)
	s.lastErr = nil
}

// adopt points the session at a conversation on behalf of the holder of the
// in-flight slot. The loading guard on Replace and Clear applies to outside
// callers only.
func (s *Session) adopt(conversationID uuid.UUID, msgs []types.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversationID = conversationID
	s.messages = make([]types.Message, len(msgs))
	copy(s.messages, msgs)
}

// begin reserves the in-flight slot, failing when a send is already running.
// Reserving before any side effects keeps two concurrent sends from both
// passing the busy check; the loser must see ErrBusy before it persists
// anything or consumes quota.
func (s *Session) begin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loading {
		return false
	}
	s.loading = true
	s.lastErr = nil
	return true
}

// end releases the in-flight slot without streaming, for sends that abort
// after begin.
func (s *Session) end() {
	s.mu.Lock()
	s.loading = false
	s.mu.Unlock()
}

// Send appends the user message and an empty assistant placeholder, then
// streams the reply, appending each fragment to the placeholder in arrival
// order. It returns the final assistant content.
//
// If a send is already in flight the call is a no-op and returns ErrBusy:
// the message list is unchanged and no request is issued. On a stream error
// the partial assistant content is preserved (best-effort failure policy)
// and the error is recorded.
func (s *Session) Send(ctx context.Context, stream StreamFunc, content string) (string, error) {
	if !s.begin() {
		return "", ErrBusy
	}
	return s.run(ctx, stream, content)
}

// run streams the reply with the in-flight slot already held and releases
// it on return.
func (s *Session) run(ctx context.Context, stream StreamFunc, content string) (string, error) {
	s.mu.Lock()
	convID := s.conversationID
	s.messages = append(s.messages,
		types.Message{ConversationID: convID, Role: types.RoleUser, Content: content},
		types.Message{ConversationID: convID, Role: types.RoleAssistant},
	)
	history := make([]types.Message, len(s.messages)-1)
	copy(history, s.messages[:len(s.messages)-1])
	s.mu.Unlock()

	err := stream(ctx, history, func(chunk string) error {
		s.mu.Lock()
		s.messages[len(s.messages)-1].Content += chunk
		s.mu.Unlock()
		return nil
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = false
	if err != nil {
		s.lastErr = err
		return s.messages[len(s.messages)-1].Content, err
	}
	return s.messages[len(s.messages)-1].Content, nil
}
