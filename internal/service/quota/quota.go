// Package quota implements the per-user monthly query allowance gate.
package quota

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/lexmx/asistente-backend/internal/types"
)

// Store is the persistence surface the gate needs.
type Store interface {
	Get(ctx context.Context, userID string) (*types.UserQuota, error)
	IncrementUsage(ctx context.Context, userID string) error
}

// Service gates query dispatch on the user's remaining allowance.
type Service struct {
	store  Store
	logger *logrus.Logger
}

// NewService creates a new quota Service.
func NewService(store Store, logger *logrus.Logger) *Service {
	return &Service{store: store, logger: logger}
}

// CheckResult is the outcome of a quota check.
type CheckResult struct {
	CanQuery  bool             `json:"can_query"`
	Remaining int              `json:"remaining"` // -1 when unlimited
	Quota     *types.UserQuota `json:"quota"`
}

// CheckCanQuery reports whether the user may dispatch one more query.
// Premium, platinum and enterprise plans always pass regardless of usage.
func (s *Service) CheckCanQuery(ctx context.Context, userID string) (*CheckResult, error) {
	q, err := s.store.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get quota: %w", err)
	}

	if q.Unlimited() {
		return &CheckResult{CanQuery: true, Remaining: types.UnlimitedQueries, Quota: q}, nil
	}

	remaining := q.QueriesLimit - q.QueriesUsed
	if remaining < 0 {
		remaining = 0
	}
	return &CheckResult{CanQuery: remaining > 0, Remaining: remaining, Quota: q}, nil
}

// RecordDispatch increments usage by exactly one for a dispatched query.
// Usage is never decremented from this layer, even when the downstream
// stream later fails. The check-then-increment pair is deliberately not
// transactional against concurrent devices; sends are already serialized
// per user upstream.
func (s *Service) RecordDispatch(ctx context.Context, userID string) {
	if err := s.store.IncrementUsage(ctx, userID); err != nil {
		s.logger.WithError(err).WithField("user_id", userID).Error("failed to record query dispatch")
	}
}
