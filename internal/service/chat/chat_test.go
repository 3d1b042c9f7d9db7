package chat

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexmx/asistente-backend/internal/cache/redis"
	"github.com/lexmx/asistente-backend/internal/envelope"
	"github.com/lexmx/asistente-backend/internal/rag"
	"github.com/lexmx/asistente-backend/internal/service/quota"
	"github.com/lexmx/asistente-backend/internal/storage/postgres"
	"github.com/lexmx/asistente-backend/internal/types"
)

// fakeConvStore is an in-memory ConversationStore.
type fakeConvStore struct {
	convs         map[uuid.UUID]*types.Conversation
	messages      map[uuid.UUID][]types.Message
	order         []uuid.UUID // creation order, oldest first
	mostRecentErr error
}

func newFakeConvStore() *fakeConvStore {
	return &fakeConvStore{
		convs:    make(map[uuid.UUID]*types.Conversation),
		messages: make(map[uuid.UUID][]types.Message),
	}
}

func (f *fakeConvStore) Create(ctx context.Context, userID string, estado *string) (*types.Conversation, error) {
	conv := &types.Conversation{
		ID:        uuid.New(),
		UserID:    userID,
		Estado:    estado,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	f.convs[conv.ID] = conv
	f.order = append(f.order, conv.ID)
	return conv, nil
}

func (f *fakeConvStore) GetByID(ctx context.Context, id uuid.UUID, userID string) (*types.Conversation, error) {
	conv, ok := f.convs[id]
	if !ok || conv.UserID != userID {
		return nil, postgres.ErrNotFound
	}
	return conv, nil
}

func (f *fakeConvStore) GetWithMessages(ctx context.Context, id uuid.UUID, userID string) (*types.ConversationWithMessages, error) {
	conv, err := f.GetByID(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	return &types.ConversationWithMessages{Conversation: *conv, Messages: f.messages[id]}, nil
}

func (f *fakeConvStore) List(ctx context.Context, userID string) ([]types.Conversation, error) {
	var out []types.Conversation
	for _, conv := range f.convs {
		if conv.UserID == userID {
			out = append(out, *conv)
		}
	}
	return out, nil
}

func (f *fakeConvStore) MostRecent(ctx context.Context, userID string) (*types.Conversation, error) {
	if f.mostRecentErr != nil {
		return nil, f.mostRecentErr
	}
	for i := len(f.order) - 1; i >= 0; i-- {
		if conv, ok := f.convs[f.order[i]]; ok && conv.UserID == userID {
			return conv, nil
		}
	}
	return nil, postgres.ErrNotFound
}

func (f *fakeConvStore) AppendMessage(ctx context.Context, msg *types.Message, derivedTitle string) error {
	conv, ok := f.convs[msg.ConversationID]
	if !ok {
		return postgres.ErrNotFound
	}
	msg.ID = uuid.New()
	f.messages[msg.ConversationID] = append(f.messages[msg.ConversationID], *msg)
	if conv.Title == nil && derivedTitle != "" {
		conv.Title = &derivedTitle
	}
	conv.UpdatedAt = time.Now()
	return nil
}

func (f *fakeConvStore) Delete(ctx context.Context, id uuid.UUID, userID string) error {
	if _, err := f.GetByID(ctx, id, userID); err != nil {
		return err
	}
	delete(f.convs, id)
	delete(f.messages, id)
	return nil
}

// fakeActiveStore is an in-memory ActiveStore.
type fakeActiveStore struct {
	pointers map[string]string
}

func newFakeActiveStore() *fakeActiveStore {
	return &fakeActiveStore{pointers: make(map[string]string)}
}

func (f *fakeActiveStore) GetActiveConversation(ctx context.Context, userID string) (string, error) {
	id, ok := f.pointers[userID]
	if !ok {
		return "", redis.ErrNoActive
	}
	return id, nil
}

func (f *fakeActiveStore) SetActiveConversation(ctx context.Context, userID, conversationID string) error {
	f.pointers[userID] = conversationID
	return nil
}

func (f *fakeActiveStore) ClearActiveConversation(ctx context.Context, userID string) error {
	delete(f.pointers, userID)
	return nil
}

// fakeQuotaGate counts dispatches against a fixed limit.
type fakeQuotaGate struct {
	limit      int
	used       int
	dispatched int
}

func (f *fakeQuotaGate) CheckCanQuery(ctx context.Context, userID string) (*quota.CheckResult, error) {
	if f.limit == types.UnlimitedQueries {
		return &quota.CheckResult{CanQuery: true, Remaining: types.UnlimitedQueries}, nil
	}
	remaining := f.limit - f.used
	if remaining < 0 {
		remaining = 0
	}
	return &quota.CheckResult{CanQuery: remaining > 0, Remaining: remaining}, nil
}

func (f *fakeQuotaGate) RecordDispatch(ctx context.Context, userID string) {
	f.used++
	f.dispatched++
}

// fakeStreamer replays scripted chunks, optionally failing after them.
type fakeStreamer struct {
	chunks  []string
	err     error
	lastReq *rag.ChatRequest
}

func (f *fakeStreamer) StreamChat(ctx context.Context, req *rag.ChatRequest, onChunk rag.ChunkCallback) error {
	f.lastReq = req
	for _, c := range f.chunks {
		if err := onChunk(c); err != nil {
			return err
		}
	}
	return f.err
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestService(streamer *fakeStreamer, gate *fakeQuotaGate) (*Service, *fakeConvStore, *fakeActiveStore) {
	convs := newFakeConvStore()
	active := newFakeActiveStore()
	svc := NewService(convs, active, gate, streamer, testLogger(), 5)
	return svc, convs, active
}

func TestSendMessageCreatesConversationLazily(t *testing.T) {
	streamer := &fakeStreamer{chunks: []string{"El amparo ", "procede."}}
	gate := &fakeQuotaGate{limit: 5}
	svc, convs, active := newTestService(streamer, gate)

	result, err := svc.SendMessage(context.Background(), "user-1", nil, envelope.Plain("¿Qué es el amparo directo?"), "Jalisco", nil)
	require.NoError(t, err)
	require.NotNil(t, result.Conversation)

	// Conversation was created, titled from the first message, and marked
	// active.
	conv := convs.convs[result.Conversation.ID]
	require.NotNil(t, conv)
	require.NotNil(t, conv.Title)
	assert.Equal(t, "¿Qué es el amparo directo?", *conv.Title)
	assert.Equal(t, conv.ID.String(), active.pointers["user-1"])

	// Exactly two persisted messages: the user's and the completed reply.
	msgs := convs.messages[conv.ID]
	require.Len(t, msgs, 2)
	assert.Equal(t, types.RoleUser, msgs[0].Role)
	assert.Equal(t, types.RoleAssistant, msgs[1].Role)
	assert.Equal(t, "El amparo procede.", msgs[1].Content)

	require.NotNil(t, result.AssistantMessage)
	assert.Equal(t, "El amparo procede.", result.AssistantMessage.Content)
	assert.Equal(t, 4, result.QuotaRemaining)
	assert.Equal(t, 1, gate.dispatched)
	assert.Equal(t, "Jalisco", streamer.lastReq.Estado)
}

func TestSendMessageForwardsChunksInOrder(t *testing.T) {
	streamer := &fakeStreamer{chunks: []string{"uno ", "dos ", "tres"}}
	gate := &fakeQuotaGate{limit: 5}
	svc, _, _ := newTestService(streamer, gate)

	var forwarded []string
	_, err := svc.SendMessage(context.Background(), "user-1", nil, envelope.Plain("hola"), "", func(chunk string) error {
		forwarded = append(forwarded, chunk)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"uno ", "dos ", "tres"}, forwarded)
}

func TestSendMessageStreamErrorKeepsUserMessageOnly(t *testing.T) {
	streamErr := errors.New("backend no disponible")
	streamer := &fakeStreamer{chunks: []string{"respuesta par"}, err: streamErr}
	gate := &fakeQuotaGate{limit: 5}
	svc, convs, _ := newTestService(streamer, gate)

	result, err := svc.SendMessage(context.Background(), "user-1", nil, envelope.Plain("hola"), "", nil)
	require.ErrorIs(t, err, streamErr)
	require.NotNil(t, result)
	assert.Equal(t, "respuesta par", result.Partial)
	assert.Nil(t, result.AssistantMessage)

	// The user message persisted before the stream; the failed reply did not.
	msgs := convs.messages[result.Conversation.ID]
	require.Len(t, msgs, 1)
	assert.Equal(t, types.RoleUser, msgs[0].Role)

	// The dispatch still counted.
	assert.Equal(t, 1, gate.dispatched)
}

func TestSendMessageQuotaExhausted(t *testing.T) {
	streamer := &fakeStreamer{chunks: []string{"nunca"}}
	gate := &fakeQuotaGate{limit: 1, used: 1}
	svc, convs, _ := newTestService(streamer, gate)

	_, err := svc.SendMessage(context.Background(), "user-1", nil, envelope.Plain("hola"), "", nil)
	require.ErrorIs(t, err, ErrQuotaExceeded)
	assert.Empty(t, convs.convs)
	assert.Equal(t, 0, gate.dispatched)

	// The rejected send released its in-flight slot.
	assert.False(t, svc.Session("user-1").Loading())
}

// blockingQuotaGate parks CheckCanQuery so a second send can race into the
// window between the busy check and the quota check.
type blockingQuotaGate struct {
	fakeQuotaGate
	entered chan struct{}
	release chan struct{}
}

func (b *blockingQuotaGate) CheckCanQuery(ctx context.Context, userID string) (*quota.CheckResult, error) {
	b.entered <- struct{}{}
	<-b.release
	return b.fakeQuotaGate.CheckCanQuery(ctx, userID)
}

func TestSendMessageConcurrentSendPersistsOnce(t *testing.T) {
	streamer := &fakeStreamer{chunks: []string{"respuesta"}}
	gate := &blockingQuotaGate{
		fakeQuotaGate: fakeQuotaGate{limit: 5},
		entered:       make(chan struct{}),
		release:       make(chan struct{}),
	}
	convs := newFakeConvStore()
	active := newFakeActiveStore()
	svc := NewService(convs, active, gate, streamer, testLogger(), 5)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := svc.SendMessage(context.Background(), "user-1", nil, envelope.Plain("primera"), "", nil)
		assert.NoError(t, err)
	}()
	<-gate.entered

	// The first send already holds the slot even though its quota check has
	// not resolved; the second is rejected before creating a conversation,
	// persisting its message, or consuming quota.
	_, err := svc.SendMessage(context.Background(), "user-1", nil, envelope.Plain("segunda"), "", nil)
	require.ErrorIs(t, err, ErrBusy)

	close(gate.release)
	wg.Wait()

	require.Len(t, convs.convs, 1)
	for id := range convs.convs {
		assert.Len(t, convs.messages[id], 2)
	}
	assert.Equal(t, 1, gate.dispatched)
}

func TestSendMessageQuotaScenario(t *testing.T) {
	// A gratuito user with one remaining query: the send succeeds and the
	// next one is rejected, regardless of whether the first stream failed.
	streamErr := errors.New("corte de red")
	streamer := &fakeStreamer{chunks: []string{"parcial"}, err: streamErr}
	gate := &fakeQuotaGate{limit: 1}
	svc, _, _ := newTestService(streamer, gate)

	result, err := svc.SendMessage(context.Background(), "user-1", nil, envelope.Plain("una"), "", nil)
	require.ErrorIs(t, err, streamErr)
	assert.Equal(t, 0, result.QuotaRemaining)

	_, err = svc.SendMessage(context.Background(), "user-1", nil, envelope.Plain("dos"), "", nil)
	require.ErrorIs(t, err, ErrQuotaExceeded)
}

func TestSendMessageSerializesEnvelope(t *testing.T) {
	streamer := &fakeStreamer{chunks: []string{"análisis"}}
	gate := &fakeQuotaGate{limit: 5}
	svc, convs, _ := newTestService(streamer, gate)

	req := envelope.DocumentAnalysis("Analiza este contrato", "contrato.pdf", "CLÁUSULA PRIMERA...")
	result, err := svc.SendMessage(context.Background(), "user-1", nil, req, "", nil)
	require.NoError(t, err)

	msgs := convs.messages[result.Conversation.ID]
	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[0].Content, envelope.DocStart)
	assert.Contains(t, msgs[0].Content, "CLÁUSULA PRIMERA...")

	// The derived title comes from the visible text, not the hidden payload.
	conv := convs.convs[result.Conversation.ID]
	require.NotNil(t, conv.Title)
	assert.NotContains(t, *conv.Title, "CLÁUSULA")
	assert.Contains(t, *conv.Title, "contrato.pdf")
}

func TestSwitchConversationLoadsMessages(t *testing.T) {
	streamer := &fakeStreamer{chunks: []string{"ok"}}
	gate := &fakeQuotaGate{limit: 10}
	svc, _, active := newTestService(streamer, gate)

	first, err := svc.SendMessage(context.Background(), "user-1", nil, envelope.Plain("primera"), "", nil)
	require.NoError(t, err)
	second, err := svc.SendMessage(context.Background(), "user-1", &first.Conversation.ID, envelope.Plain("segunda"), "", nil)
	require.NoError(t, err)
	assert.Equal(t, first.Conversation.ID, second.Conversation.ID)

	full, err := svc.SwitchConversation(context.Background(), "user-1", first.Conversation.ID)
	require.NoError(t, err)
	assert.Len(t, full.Messages, 4)
	assert.Equal(t, first.Conversation.ID.String(), active.pointers["user-1"])
	assert.Equal(t, first.Conversation.ID, svc.Session("user-1").ConversationID())
}

func TestActiveConversationStalePointer(t *testing.T) {
	streamer := &fakeStreamer{}
	gate := &fakeQuotaGate{limit: 10}
	svc, _, active := newTestService(streamer, gate)

	active.pointers["user-1"] = "no-es-un-uuid"
	_, err := svc.ActiveConversation(context.Background(), "user-1")
	require.ErrorIs(t, err, redis.ErrNoActive)
	assert.NotContains(t, active.pointers, "user-1")
}

func TestDeleteActiveConversationFallsBackToMostRecent(t *testing.T) {
	streamer := &fakeStreamer{chunks: []string{"ok"}}
	gate := &fakeQuotaGate{limit: 10}
	svc, convs, active := newTestService(streamer, gate)

	older, err := svc.SendMessage(context.Background(), "user-1", nil, envelope.Plain("vieja"), "", nil)
	require.NoError(t, err)
	newer, err := svc.SendMessage(context.Background(), "user-1", nil, envelope.Plain("nueva"), "", nil)
	require.NoError(t, err)
	require.Equal(t, newer.Conversation.ID.String(), active.pointers["user-1"])

	next, err := svc.DeleteConversation(context.Background(), "user-1", newer.Conversation.ID)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, older.Conversation.ID, next.ID)
	assert.Equal(t, older.Conversation.ID.String(), active.pointers["user-1"])
	assert.Equal(t, older.Conversation.ID, svc.Session("user-1").ConversationID())
	assert.NotContains(t, convs.convs, newer.Conversation.ID)
}

func TestDeleteActiveConversationFallbackErrorKeepsPointer(t *testing.T) {
	streamer := &fakeStreamer{chunks: []string{"ok"}}
	gate := &fakeQuotaGate{limit: 10}
	svc, convs, active := newTestService(streamer, gate)

	only, err := svc.SendMessage(context.Background(), "user-1", nil, envelope.Plain("única"), "", nil)
	require.NoError(t, err)

	// A transient lookup failure must not be mistaken for an empty account:
	// the pointer and the session survive for a retry.
	convs.mostRecentErr = errors.New("conexión rechazada")
	_, err = svc.DeleteConversation(context.Background(), "user-1", only.Conversation.ID)
	require.Error(t, err)
	require.NotErrorIs(t, err, postgres.ErrNotFound)

	assert.Equal(t, only.Conversation.ID.String(), active.pointers["user-1"])
	assert.NotEmpty(t, svc.Session("user-1").Messages())
}

func TestDeleteLastConversationClearsState(t *testing.T) {
	streamer := &fakeStreamer{chunks: []string{"ok"}}
	gate := &fakeQuotaGate{limit: 10}
	svc, _, active := newTestService(streamer, gate)

	only, err := svc.SendMessage(context.Background(), "user-1", nil, envelope.Plain("única"), "", nil)
	require.NoError(t, err)

	next, err := svc.DeleteConversation(context.Background(), "user-1", only.Conversation.ID)
	require.NoError(t, err)
	assert.Nil(t, next)
	assert.NotContains(t, active.pointers, "user-1")
	assert.Empty(t, svc.Session("user-1").Messages())
}

func TestDeleteBackgroundConversationKeepsPointer(t *testing.T) {
	streamer := &fakeStreamer{chunks: []string{"ok"}}
	gate := &fakeQuotaGate{limit: 10}
	svc, _, active := newTestService(streamer, gate)

	first, err := svc.SendMessage(context.Background(), "user-1", nil, envelope.Plain("primera"), "", nil)
	require.NoError(t, err)
	second, err := svc.SendMessage(context.Background(), "user-1", nil, envelope.Plain("segunda"), "", nil)
	require.NoError(t, err)

	next, err := svc.DeleteConversation(context.Background(), "user-1", first.Conversation.ID)
	require.NoError(t, err)
	assert.Nil(t, next)
	assert.Equal(t, second.Conversation.ID.String(), active.pointers["user-1"])
}

func TestDeriveTitle(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"plain", "¿Procede el amparo?", "¿Procede el amparo?"},
		{"first line only", "primera línea\nsegunda línea", "primera línea"},
		{"empty falls back", "   \n  ", "Nueva consulta"},
		{
			"long line truncated",
			strings.Repeat("a", 80),
			strings.Repeat("a", 60) + "…",
		},
		{
			"hidden payload stripped",
			envelope.DocumentAnalysis("", "demanda.pdf", "texto oculto").Serialize(),
			"\U0001F4CE demanda.pdf",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, deriveTitle(tt.content))
		})
	}
}
