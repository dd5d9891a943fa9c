package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/app/domain/subscription"
	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/app/domain/user"
)

type subscriptionRow struct {
	ID                     string       `db:"id"`
	UserID                 string       `db:"user_id"`
	Plan                   string       `db:"plan"`
	Status                 string       `db:"status"`
	CustomerID             string       `db:"customer_id"`
	ProviderSubscriptionID string       `db:"provider_subscription_id"`
	CurrentPeriodEnd       sql.NullTime `db:"current_period_end"`
	CancelAtPeriodEnd      bool         `db:"cancel_at_period_end"`
	CreatedAt              time.Time    `db:"created_at"`
	UpdatedAt              time.Time    `db:"updated_at"`
}

func (r subscriptionRow) model() subscription.Subscription {
	return subscription.Subscription{
		ID:                   r.ID,
		UserID:               r.UserID,
		Plan:                 user.Plan(r.Plan),
		Status:               subscription.Status(r.Status),
		CustomerID:           r.CustomerID,
		ProviderSubscription: r.ProviderSubscriptionID,
		CurrentPeriodEnd:     timePtr(r.CurrentPeriodEnd),
		CancelAtPeriodEnd:    r.CancelAtPeriodEnd,
		CreatedAt:            r.CreatedAt,
		UpdatedAt:            r.UpdatedAt,
	}
}

const subscriptionColumns = `id, user_id, plan, status, customer_id, provider_subscription_id, current_period_end, cancel_at_period_end, created_at, updated_at`

// --- SubscriptionStore ------------------------------------------------------

func (s *Store) UpsertSubscription(ctx context.Context, sub subscription.Subscription) (subscription.Subscription, error) {
	sub.ID = newID(sub.ID)
	now := s.now()
	sub.UpdatedAt = now

	err := s.db.QueryRowxContext(ctx, `
		INSERT INTO subscriptions (id, user_id, plan, status, customer_id, provider_subscription_id,
		                           current_period_end, cancel_at_period_end, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		ON CONFLICT (user_id) DO UPDATE
		SET plan = EXCLUDED.plan,
		    status = EXCLUDED.status,
		    customer_id = EXCLUDED.customer_id,
		    provider_subscription_id = EXCLUDED.provider_subscription_id,
		    current_period_end = EXCLUDED.current_period_end,
		    cancel_at_period_end = EXCLUDED.cancel_at_period_end,
		    updated_at = EXCLUDED.updated_at
		RETURNING id, created_at
	`, sub.ID, sub.UserID, string(sub.Plan), string(sub.Status), sub.CustomerID, sub.ProviderSubscription,
		nullTime(sub.CurrentPeriodEnd), sub.CancelAtPeriodEnd, now).Scan(&sub.ID, &sub.CreatedAt)
	if err != nil {
		return subscription.Subscription{}, err
	}
	return sub, nil
}

func (s *Store) GetSubscriptionByUser(ctx context.Context, userID string) (subscription.Subscription, error) {
	var row subscriptionRow
	if err := s.db.GetContext(ctx, &row, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE user_id = $1`, userID); err != nil {
		return subscription.Subscription{}, mapErr("subscription for user", userID, err)
	}
	return row.model(), nil
}

func (s *Store) GetSubscriptionByCustomer(ctx context.Context, customerID string) (subscription.Subscription, error) {
	var row subscriptionRow
	if err := s.db.GetContext(ctx, &row, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE customer_id = $1 AND customer_id <> ''`, customerID); err != nil {
		return subscription.Subscription{}, mapErr("subscription for customer", customerID, err)
	}
	return row.model(), nil
}

func (s *Store) ListSubscriptionsEndingBefore(ctx context.Context, cutoff time.Time) ([]subscription.Subscription, error) {
	var rows []subscriptionRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+subscriptionColumns+` FROM subscriptions
		WHERE cancel_at_period_end AND status <> $1 AND current_period_end < $2
	`, string(subscription.StatusCanceled), cutoff)
	if err != nil {
		return nil, err
	}
	out := make([]subscription.Subscription, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.model())
	}
	return out, nil
}
