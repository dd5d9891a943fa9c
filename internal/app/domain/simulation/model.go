package simulation

import (
	"time"

	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/ecosystem"
)

// Attempt is a user's simulation run together with the persisted engine state.
type Attempt struct {
	ID          string           `json:"id"`
	UserID      string           `json:"user_id"`
	Status      ecosystem.Status `json:"status"`
	State       ecosystem.State  `json:"state"`
	Score       *int             `json:"score,omitempty"`
	FeedbackID  string           `json:"feedback_id,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
}
