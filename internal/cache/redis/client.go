package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNoActive is returned when a user has no active conversation pointer.
var ErrNoActive = errors.New("no active conversation")

const activeKeyPrefix = "asistente:active_conversation:"

// Client wraps the Redis client.
type Client struct {
	rdb *redis.Client
}

// New creates a new Redis client from a URI.
func New(uri string) (*Client, error) {
	opt, err := redis.ParseURL(uri)
	if err != nil {
		return nil, err
	}

	rdb := redis.NewClient(opt)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &Client{rdb: rdb}, nil
}

// NewFromClient wraps an existing go-redis client. Used by tests with
// miniredis.
func NewFromClient(rdb *redis.Client) *Client {
	return &Client{rdb: rdb}
}

// Get retrieves a value by key.
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	return c.rdb.Get(ctx, key).Result()
}

// Set stores a value with an optional TTL.
func (c *Client) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	return c.rdb.Set(ctx, key, value, ttl).Err()
}

// Delete removes a key.
func (c *Client) Delete(ctx context.Context, key string) error {
	return c.rdb.Del(ctx, key).Err()
}

// GetActiveConversation reads the durable per-user pointer to the open
// conversation. The pointer is independent of any in-memory session.
func (c *Client) GetActiveConversation(ctx context.Context, userID string) (string, error) {
	val, err := c.rdb.Get(ctx, activeKeyPrefix+userID).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNoActive
	}
	if err != nil {
		return "", err
	}
	return val, nil
}

// SetActiveConversation writes the per-user pointer. Written on every
// conversation switch or creation.
func (c *Client) SetActiveConversation(ctx context.Context, userID, conversationID string) error {
	return c.rdb.Set(ctx, activeKeyPrefix+userID, conversationID, 0).Err()
}

// ClearActiveConversation removes the pointer, leaving the empty state.
func (c *Client) ClearActiveConversation(ctx context.Context, userID string) error {
	return c.rdb.Del(ctx, activeKeyPrefix+userID).Err()
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}
