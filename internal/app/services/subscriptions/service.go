package subscriptions

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/app/domain/subscription"
	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/app/domain/user"
	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/app/metrics"
	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/app/storage"
	apperrors "github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/errors"
	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/platform/billing"
	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/pkg/logger"
)

// Webhook handling outcomes recorded in metrics.
const (
	outcomeProcessed = "processed"
	outcomeIgnored   = "ignored"
	outcomeFailed    = "failed"
)

var errBillingDisabled = errors.New("billing is not configured")

// Provider is the payment provider.
type Provider interface {
	CreateCheckoutSession(ctx context.Context, p billing.CheckoutParams) (billing.CheckoutSession, error)
	CancelAtPeriodEnd(ctx context.Context, subscriptionID string) (billing.SubscriptionInfo, error)
}

// Verifier authenticates webhook deliveries.
type Verifier interface {
	Verify(payload []byte, header string) error
}

// PlanSync applies the plan a subscription grants to the user record.
type PlanSync interface {
	SetPlan(ctx context.Context, id string, plan user.Plan) (user.User, error)
}

// Notifier announces subscription changes.
type Notifier interface {
	SubscriptionChanged(ctx context.Context, u user.User, sub subscription.Subscription) error
}

// Service manages billing subscriptions.
type Service struct {
	store    storage.SubscriptionStore
	users    PlanSync
	provider Provider
	verifier Verifier
	notifier Notifier
	now      func() time.Time
	log      *logger.Logger
}

// New constructs a subscription service.
func New(store storage.SubscriptionStore, users PlanSync, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("subscriptions")
	}
	return &Service{store: store, users: users, now: time.Now, log: log}
}

// WithProvider enables checkout and cancellation.
func (s *Service) WithProvider(p Provider) {
	s.provider = p
}

// WithVerifier enables webhook handling.
func (s *Service) WithVerifier(v Verifier) {
	s.verifier = v
}

// WithNotifier sends an email on every status or plan change.
func (s *Service) WithNotifier(n Notifier) {
	s.notifier = n
}

// WithClock overrides the wall clock.
func (s *Service) WithClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Get returns the user's subscription, or a free placeholder when the user
// never subscribed.
func (s *Service) Get(ctx context.Context, userID string) (subscription.Subscription, error) {
	sub, err := s.store.GetSubscriptionByUser(ctx, userID)
	if err == nil {
		return sub, nil
	}
	if apperrors.IsNotFound(err) {
		return subscription.Subscription{UserID: userID, Plan: user.PlanFree, Status: subscription.StatusNone}, nil
	}
	return subscription.Subscription{}, err
}

// Checkout opens a Checkout Session for the pro plan.
func (s *Service) Checkout(ctx context.Context, u user.User) (billing.CheckoutSession, error) {
	if s.provider == nil {
		return billing.CheckoutSession{}, apperrors.Upstream("stripe", errBillingDisabled)
	}
	current, err := s.Get(ctx, u.ID)
	if err != nil {
		return billing.CheckoutSession{}, err
	}
	if current.Status.Entitled() {
		return billing.CheckoutSession{}, apperrors.Conflict("an active subscription already exists")
	}
	session, err := s.provider.CreateCheckoutSession(ctx, billing.CheckoutParams{
		UserID:     u.ID,
		Email:      u.Email,
		CustomerID: current.CustomerID,
	})
	if err != nil {
		return billing.CheckoutSession{}, err
	}
	s.log.WithField("user_id", u.ID).WithField("session_id", session.ID).Info("checkout session created")
	return session, nil
}

// Cancel schedules cancellation at the end of the current period.
func (s *Service) Cancel(ctx context.Context, u user.User) (subscription.Subscription, error) {
	if s.provider == nil {
		return subscription.Subscription{}, apperrors.Upstream("stripe", errBillingDisabled)
	}
	current, err := s.Get(ctx, u.ID)
	if err != nil {
		return subscription.Subscription{}, err
	}
	if !current.Status.Entitled() || current.ProviderSubscription == "" {
		return subscription.Subscription{}, apperrors.Conflict("no active subscription to cancel")
	}
	if current.CancelAtPeriodEnd {
		return current, nil
	}
	info, err := s.provider.CancelAtPeriodEnd(ctx, current.ProviderSubscription)
	if err != nil {
		return subscription.Subscription{}, err
	}
	current.CancelAtPeriodEnd = true
	if info.CurrentPeriodEnd != nil {
		current.CurrentPeriodEnd = info.CurrentPeriodEnd
	}
	updated, err := s.store.UpsertSubscription(ctx, current)
	if err != nil {
		return subscription.Subscription{}, err
	}
	s.log.WithField("user_id", u.ID).WithField("subscription_id", updated.ProviderSubscription).Info("subscription set to cancel at period end")
	s.notify(ctx, u, updated)
	return updated, nil
}

// HandleWebhook verifies and applies a Stripe event. Unknown event types and
// events for unknown customers are acknowledged without changes.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	if s.verifier == nil {
		return apperrors.Unauthorized("webhook signing secret is not configured")
	}
	if err := s.verifier.Verify(payload, signature); err != nil {
		metrics.RecordWebhookEvent("unverified", outcomeFailed)
		return apperrors.Unauthorized("invalid webhook signature")
	}
	ev, err := billing.ParseEvent(payload)
	if err != nil {
		metrics.RecordWebhookEvent("unparsed", outcomeFailed)
		return apperrors.InvalidFormat(err)
	}

	log := s.log.WithField("event_id", ev.ID).WithField("event_type", ev.Type)
	var handled bool
	switch ev.Type {
	case billing.EventCheckoutCompleted:
		handled, err = s.checkoutCompleted(ctx, billing.CheckoutFromObject(ev.Object))
	case billing.EventSubscriptionUpdated:
		handled, err = s.subscriptionChanged(ctx, billing.SubscriptionFromObject(ev.Object), false)
	case billing.EventSubscriptionDeleted:
		handled, err = s.subscriptionChanged(ctx, billing.SubscriptionFromObject(ev.Object), true)
	case billing.EventInvoicePaymentFailed:
		handled, err = s.paymentFailed(ctx, ev.Object.Get("customer").String())
	}
	switch {
	case err != nil:
		metrics.RecordWebhookEvent(ev.Type, outcomeFailed)
		log.WithError(err).Error("webhook event failed")
		return err
	case handled:
		metrics.RecordWebhookEvent(ev.Type, outcomeProcessed)
		log.Info("webhook event processed")
	default:
		metrics.RecordWebhookEvent(ev.Type, outcomeIgnored)
		log.Debug("webhook event ignored")
	}
	return nil
}

// ExpireLapsed cancels subscriptions whose period ended while flagged to
// cancel and returns how many changed.
func (s *Service) ExpireLapsed(ctx context.Context) (int, error) {
	lapsed, err := s.store.ListSubscriptionsEndingBefore(ctx, s.now().UTC())
	if err != nil {
		return 0, err
	}
	expired := 0
	for _, sub := range lapsed {
		sub.Status = subscription.StatusCanceled
		sub.Plan = user.PlanFree
		if _, err := s.apply(ctx, sub); err != nil {
			return expired, err
		}
		expired++
	}
	if expired > 0 {
		s.log.WithField("count", expired).Info("expired lapsed subscriptions")
	}
	return expired, nil
}

func (s *Service) checkoutCompleted(ctx context.Context, c billing.CheckoutCompletion) (bool, error) {
	if strings.TrimSpace(c.UserID) == "" {
		return false, nil
	}
	sub, err := s.Get(ctx, c.UserID)
	if err != nil {
		return false, err
	}
	sub.Plan = user.PlanPro
	sub.Status = subscription.StatusActive
	sub.CancelAtPeriodEnd = false
	if c.CustomerID != "" {
		sub.CustomerID = c.CustomerID
	}
	if c.SubscriptionID != "" {
		sub.ProviderSubscription = c.SubscriptionID
	}
	_, err = s.apply(ctx, sub)
	return err == nil, err
}

func (s *Service) subscriptionChanged(ctx context.Context, info billing.SubscriptionInfo, deleted bool) (bool, error) {
	sub, ok, err := s.locate(ctx, info.CustomerID, info.UserID)
	if err != nil || !ok {
		return false, err
	}
	status := MapStatus(info.Status)
	if deleted {
		status = subscription.StatusCanceled
	}
	sub.Status = status
	sub.Plan = planFor(status)
	sub.CancelAtPeriodEnd = info.CancelAtPeriodEnd && !deleted
	if info.CustomerID != "" {
		sub.CustomerID = info.CustomerID
	}
	if info.ID != "" {
		sub.ProviderSubscription = info.ID
	}
	if info.CurrentPeriodEnd != nil {
		sub.CurrentPeriodEnd = info.CurrentPeriodEnd
	}
	_, err = s.apply(ctx, sub)
	return err == nil, err
}

func (s *Service) paymentFailed(ctx context.Context, customerID string) (bool, error) {
	sub, ok, err := s.locate(ctx, customerID, "")
	if err != nil || !ok {
		return false, err
	}
	sub.Status = subscription.StatusPastDue
	sub.Plan = user.PlanFree
	_, err = s.apply(ctx, sub)
	return err == nil, err
}

// locate finds the record for a provider customer, falling back to the user
// id carried in the provider metadata.
func (s *Service) locate(ctx context.Context, customerID, userID string) (subscription.Subscription, bool, error) {
	if customerID != "" {
		sub, err := s.store.GetSubscriptionByCustomer(ctx, customerID)
		if err == nil {
			return sub, true, nil
		}
		if !apperrors.IsNotFound(err) {
			return subscription.Subscription{}, false, err
		}
	}
	if userID == "" {
		return subscription.Subscription{}, false, nil
	}
	sub, err := s.Get(ctx, userID)
	if err != nil {
		return subscription.Subscription{}, false, err
	}
	return sub, true, nil
}

// apply persists sub, syncs the user's plan and notifies on change.
func (s *Service) apply(ctx context.Context, sub subscription.Subscription) (subscription.Subscription, error) {
	previous, _ := s.store.GetSubscriptionByUser(ctx, sub.UserID)
	saved, err := s.store.UpsertSubscription(ctx, sub)
	if err != nil {
		return subscription.Subscription{}, err
	}
	s.log.WithField("user_id", saved.UserID).
		WithField("status", saved.Status).
		WithField("plan", saved.Plan).
		Info("subscription updated")

	u, err := s.users.SetPlan(ctx, saved.UserID, saved.Plan)
	if err != nil {
		if apperrors.IsNotFound(err) {
			s.log.WithField("user_id", saved.UserID).Warn("subscription belongs to an unknown user")
			return saved, nil
		}
		return subscription.Subscription{}, err
	}
	if previous.Status != saved.Status || previous.Plan != saved.Plan {
		s.notify(ctx, u, saved)
	}
	return saved, nil
}

func (s *Service) notify(ctx context.Context, u user.User, sub subscription.Subscription) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.SubscriptionChanged(ctx, u, sub); err != nil {
		s.log.WithError(err).WithField("user_id", u.ID).Warn("subscription notification failed")
	}
}

// MapStatus folds Stripe's subscription statuses onto the stored set.
func MapStatus(status string) subscription.Status {
	switch status {
	case "active":
		return subscription.StatusActive
	case "trialing":
		return subscription.StatusTrialing
	case "past_due", "unpaid", "paused":
		return subscription.StatusPastDue
	case "canceled", "incomplete_expired":
		return subscription.StatusCanceled
	default:
		return subscription.StatusIncomplete
	}
}

func planFor(status subscription.Status) user.Plan {
	if status.Entitled() {
		return user.PlanPro
	}
	return user.PlanFree
}
