package subscription

import (
	"time"

	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/app/domain/user"
)

// Status mirrors the payment provider's subscription status.
type Status string

const (
	StatusActive     Status = "active"
	StatusTrialing   Status = "trialing"
	StatusPastDue    Status = "past_due"
	StatusCanceled   Status = "canceled"
	StatusIncomplete Status = "incomplete"

	// StatusNone describes a user who never subscribed. It is never stored.
	StatusNone Status = "none"
)

// Entitled reports whether the status grants the paid plan.
func (s Status) Entitled() bool {
	return s == StatusActive || s == StatusTrialing
}

// Subscription is a user's billing relationship.
type Subscription struct {
	ID                   string     `json:"id"`
	UserID               string     `json:"user_id"`
	Plan                 user.Plan  `json:"plan"`
	Status               Status     `json:"status"`
	CustomerID           string     `json:"customer_id,omitempty"`
	ProviderSubscription string     `json:"provider_subscription_id,omitempty"`
	CurrentPeriodEnd     *time.Time `json:"current_period_end,omitempty"`
	CancelAtPeriodEnd    bool       `json:"cancel_at_period_end"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}
