package storage

import (
	"context"
	"time"

	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/app/domain/drill"
	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/app/domain/feedback"
	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/app/domain/simulation"
	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/app/domain/subscription"
	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/app/domain/user"
	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/ecosystem"
)

// Missing records are reported by wrapping errors.ErrNotFound from
// internal/errors so callers can map them to 404.

// UserStore persists user profiles.
type UserStore interface {
	CreateUser(ctx context.Context, u user.User) (user.User, error)
	UpdateUser(ctx context.Context, u user.User) (user.User, error)
	GetUser(ctx context.Context, id string) (user.User, error)
	ListUsers(ctx context.Context, limit int) ([]user.User, error)
	// DeleteUser removes the profile and remembers the id as deleted.
	DeleteUser(ctx context.Context, id string) error
	UserDeleted(ctx context.Context, id string) (bool, error)
}

// DrillStore persists drills and drill attempts.
type DrillStore interface {
	CreateDrill(ctx context.Context, d drill.Drill) (drill.Drill, error)
	UpdateDrill(ctx context.Context, d drill.Drill) (drill.Drill, error)
	GetDrill(ctx context.Context, id string) (drill.Drill, error)
	ListDrills(ctx context.Context, filter drill.Filter) ([]drill.Drill, error)
	DeleteDrill(ctx context.Context, id string) error

	CreateAttempt(ctx context.Context, a drill.Attempt) (drill.Attempt, error)
	// UpdateAttempt writes a only while the stored status is still from. A
	// changed status yields a conflict error.
	UpdateAttempt(ctx context.Context, a drill.Attempt, from drill.AttemptStatus) (drill.Attempt, error)
	GetAttempt(ctx context.Context, id string) (drill.Attempt, error)
	ListAttempts(ctx context.Context, userID string, limit int) ([]drill.Attempt, error)
	// ListOpenAttemptsBefore returns in-progress attempts whose deadline is before cutoff.
	ListOpenAttemptsBefore(ctx context.Context, cutoff time.Time) ([]drill.Attempt, error)
}

// SimulationStore persists simulation attempts.
type SimulationStore interface {
	CreateSimulation(ctx context.Context, a simulation.Attempt) (simulation.Attempt, error)
	UpdateSimulation(ctx context.Context, a simulation.Attempt) (simulation.Attempt, error)
	GetSimulation(ctx context.Context, id string) (simulation.Attempt, error)
	ListSimulations(ctx context.Context, userID string, limit int) ([]simulation.Attempt, error)
	// ListSimulationsByStatus returns attempts in status last updated before cutoff.
	ListSimulationsByStatus(ctx context.Context, status ecosystem.Status, updatedBefore time.Time) ([]simulation.Attempt, error)
}

// SubscriptionStore persists billing subscriptions, one per user.
type SubscriptionStore interface {
	UpsertSubscription(ctx context.Context, s subscription.Subscription) (subscription.Subscription, error)
	GetSubscriptionByUser(ctx context.Context, userID string) (subscription.Subscription, error)
	GetSubscriptionByCustomer(ctx context.Context, customerID string) (subscription.Subscription, error)
	// ListSubscriptionsEndingBefore returns subscriptions flagged to cancel whose period ended before cutoff.
	ListSubscriptionsEndingBefore(ctx context.Context, cutoff time.Time) ([]subscription.Subscription, error)
}

// FeedbackStore persists feedback records.
type FeedbackStore interface {
	CreateFeedback(ctx context.Context, f feedback.Feedback) (feedback.Feedback, error)
	GetFeedback(ctx context.Context, id string) (feedback.Feedback, error)
	DeleteFeedback(ctx context.Context, id string) error
	ListFeedback(ctx context.Context, userID string, target feedback.TargetType, limit int) ([]feedback.Feedback, error)
}
