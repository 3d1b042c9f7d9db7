package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lexmx/asistente-backend/internal/types"
)

// ConversationRepository handles database operations for conversations and
// their messages.
type ConversationRepository struct {
	pool *pgxpool.Pool
}

// NewConversationRepository creates a new ConversationRepository.
func NewConversationRepository(pool *pgxpool.Pool) *ConversationRepository {
	return &ConversationRepository{pool: pool}
}

// Create creates a new empty conversation for the given user.
func (r *ConversationRepository) Create(ctx context.Context, userID string, estado *string) (*types.Conversation, error) {
	var conv types.Conversation
	err := r.pool.QueryRow(ctx,
		`INSERT INTO conversations (user_id, estado)
		 VALUES ($1, $2)
		 RETURNING id, user_id, title, estado, created_at, updated_at`,
		userID, estado,
	).Scan(&conv.ID, &conv.UserID, &conv.Title, &conv.Estado, &conv.CreatedAt, &conv.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	return &conv, nil
}

// GetByID returns a conversation if it exists and belongs to the given user.
func (r *ConversationRepository) GetByID(ctx context.Context, id uuid.UUID, userID string) (*types.Conversation, error) {
	var conv types.Conversation
	err := r.pool.QueryRow(ctx,
		`SELECT id, user_id, title, estado, created_at, updated_at
		 FROM conversations WHERE id = $1 AND user_id = $2`,
		id, userID,
	).Scan(&conv.ID, &conv.UserID, &conv.Title, &conv.Estado, &conv.CreatedAt, &conv.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	return &conv, nil
}

// GetWithMessages returns a conversation with all its messages in append order.
func (r *ConversationRepository) GetWithMessages(ctx context.Context, id uuid.UUID, userID string) (*types.ConversationWithMessages, error) {
	conv, err := r.GetByID(ctx, id, userID)
	if err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, conversation_id, role, content, created_at
		 FROM messages WHERE conversation_id = $1 ORDER BY created_at, id`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("get messages: %w", err)
	}
	defer rows.Close()

	var msgs []types.Message
	for rows.Next() {
		var m types.Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	return &types.ConversationWithMessages{Conversation: *conv, Messages: msgs}, nil
}

// List returns a user's conversations ordered by recency.
func (r *ConversationRepository) List(ctx context.Context, userID string) ([]types.Conversation, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, title, estado, created_at, updated_at
		 FROM conversations WHERE user_id = $1 ORDER BY updated_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var convs []types.Conversation
	for rows.Next() {
		var c types.Conversation
		if err := rows.Scan(&c.ID, &c.UserID, &c.Title, &c.Estado, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		convs = append(convs, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversations: %w", err)
	}
	return convs, nil
}

// MostRecent returns the most recently updated conversation for a user, or
// ErrNotFound when none remain. Used for the delete-active fallback.
func (r *ConversationRepository) MostRecent(ctx context.Context, userID string) (*types.Conversation, error) {
	var conv types.Conversation
	err := r.pool.QueryRow(ctx,
		`SELECT id, user_id, title, estado, created_at, updated_at
		 FROM conversations WHERE user_id = $1 ORDER BY updated_at DESC LIMIT 1`,
		userID,
	).Scan(&conv.ID, &conv.UserID, &conv.Title, &conv.Estado, &conv.CreatedAt, &conv.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("most recent conversation: %w", err)
	}
	return &conv, nil
}

// AppendMessage appends one message, touches the conversation's updated_at
// and sets the title when the conversation has none yet. Callers invoke this
// exactly once per user message and once per completed assistant response,
// never for streaming fragments.
func (r *ConversationRepository) AppendMessage(ctx context.Context, msg *types.Message, derivedTitle string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx,
		`INSERT INTO messages (conversation_id, role, content)
		 VALUES ($1, $2, $3)
		 RETURNING id, created_at`,
		msg.ConversationID, msg.Role, msg.Content,
	).Scan(&msg.ID, &msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	tag, err := tx.Exec(ctx,
		`UPDATE conversations
		 SET updated_at = now(),
		     title = COALESCE(title, NULLIF($2, ''))
		 WHERE id = $1`,
		msg.ConversationID, derivedTitle,
	)
	if err != nil {
		return fmt.Errorf("touch conversation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Delete removes a conversation and, by cascade, its messages.
func (r *ConversationRepository) Delete(ctx context.Context, id uuid.UUID, userID string) error {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM conversations WHERE id = $1 AND user_id = $2`,
		id, userID,
	)
	if err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
