package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lexmx/asistente-backend/internal/types"
)

// defaultFreeLimit is the monthly query allowance for the gratuito plan.
const defaultFreeLimit = 5

// QuotaRepository handles database operations for user query quotas.
type QuotaRepository struct {
	pool *pgxpool.Pool
}

// NewQuotaRepository creates a new QuotaRepository.
func NewQuotaRepository(pool *pgxpool.Pool) *QuotaRepository {
	return &QuotaRepository{pool: pool}
}

// Get returns the quota row for a user, creating a gratuito-plan row when
// none exists yet.
func (r *QuotaRepository) Get(ctx context.Context, userID string) (*types.UserQuota, error) {
	q := &types.UserQuota{UserID: userID}
	err := r.pool.QueryRow(ctx,
		`SELECT queries_used, queries_limit, subscription_type
		 FROM user_quotas WHERE user_id = $1`,
		userID,
	).Scan(&q.QueriesUsed, &q.QueriesLimit, &q.SubscriptionType)
	if err == nil {
		return q, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("get quota: %w", err)
	}

	err = r.pool.QueryRow(ctx,
		`INSERT INTO user_quotas (user_id, queries_used, queries_limit, subscription_type)
		 VALUES ($1, 0, $2, $3)
		 ON CONFLICT (user_id) DO UPDATE SET user_id = EXCLUDED.user_id
		 RETURNING queries_used, queries_limit, subscription_type`,
		userID, defaultFreeLimit, types.PlanGratuito,
	).Scan(&q.QueriesUsed, &q.QueriesLimit, &q.SubscriptionType)
	if err != nil {
		return nil, fmt.Errorf("init quota: %w", err)
	}
	return q, nil
}

// IncrementUsage adds exactly one to the user's usage counter. Usage is
// never decremented from this layer.
func (r *QuotaRepository) IncrementUsage(ctx context.Context, userID string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE user_quotas SET queries_used = queries_used + 1 WHERE user_id = $1`,
		userID,
	)
	if err != nil {
		return fmt.Errorf("increment usage: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
