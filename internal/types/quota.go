package types

// SubscriptionType identifies a billing plan.
type SubscriptionType string

const (
	PlanGratuito   SubscriptionType = "gratuito"
	PlanPro        SubscriptionType = "pro"
	PlanPremium    SubscriptionType = "premium"
	PlanPlatinum   SubscriptionType = "platinum"
	PlanEnterprise SubscriptionType = "enterprise"
)

// UnlimitedQueries is the sentinel limit meaning "no cap".
const UnlimitedQueries = -1

// UserQuota tracks a user's monthly query allowance.
type UserQuota struct {
	UserID           string           `json:"user_id"`
	QueriesUsed      int              `json:"queries_used"`
	QueriesLimit     int              `json:"queries_limit"`
	SubscriptionType SubscriptionType `json:"subscription_type"`
}

// Unlimited reports whether the plan has no query cap. Premium, platinum and
// enterprise plans are always unlimited regardless of the stored limit.
func (q *UserQuota) Unlimited() bool {
	switch q.SubscriptionType {
	case PlanPremium, PlanPlatinum, PlanEnterprise:
		return true
	}
	return q.QueriesLimit == UnlimitedQueries
}
