package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/app/domain/drill"
	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/app/domain/feedback"
	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/app/domain/simulation"
	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/app/domain/subscription"
	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/app/domain/user"
	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/app/storage"
	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/ecosystem"
	apperrors "github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/errors"
)

// Store is an in-memory implementation of the storage interfaces. It is safe
// for concurrent use and is primarily intended for tests and local development.
type Store struct {
	mu            sync.RWMutex
	nextID        int64
	now           func() time.Time
	users         map[string]user.User
	drills        map[string]drill.Drill
	attempts      map[string]drill.Attempt
	simulations   map[string]simulation.Attempt
	subscriptions map[string]subscription.Subscription // keyed by user id
	feedback      map[string]feedback.Feedback
	deletedUsers  map[string]time.Time
}

var _ storage.UserStore = (*Store)(nil)
var _ storage.DrillStore = (*Store)(nil)
var _ storage.SimulationStore = (*Store)(nil)
var _ storage.SubscriptionStore = (*Store)(nil)
var _ storage.FeedbackStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		nextID:        1,
		now:           func() time.Time { return time.Now().UTC() },
		users:         make(map[string]user.User),
		drills:        make(map[string]drill.Drill),
		attempts:      make(map[string]drill.Attempt),
		simulations:   make(map[string]simulation.Attempt),
		subscriptions: make(map[string]subscription.Subscription),
		feedback:      make(map[string]feedback.Feedback),
		deletedUsers:  make(map[string]time.Time),
	}
}

func (s *Store) nextIDLocked() string {
	id := s.nextID
	s.nextID++
	return fmt.Sprintf("%d", id)
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, apperrors.ErrNotFound)
}

func applyLimit[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}

// UserStore implementation ----------------------------------------------------

func (s *Store) CreateUser(_ context.Context, u user.User) (user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u.ID == "" {
		u.ID = s.nextIDLocked()
	} else if _, exists := s.users[u.ID]; exists {
		return user.User{}, fmt.Errorf("user %s already exists", u.ID)
	}
	now := s.now()
	u.CreatedAt = now
	u.UpdatedAt = now
	s.users[u.ID] = u
	return u, nil
}

func (s *Store) UpdateUser(_ context.Context, u user.User) (user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.users[u.ID]
	if !ok {
		return user.User{}, notFound("user", u.ID)
	}
	u.CreatedAt = original.CreatedAt
	u.UpdatedAt = s.now()
	s.users[u.ID] = u
	return u, nil
}

func (s *Store) GetUser(_ context.Context, id string) (user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return user.User{}, notFound("user", id)
	}
	return u, nil
}

func (s *Store) ListUsers(_ context.Context, limit int) ([]user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]user.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return applyLimit(out, limit), nil
}

func (s *Store) DeleteUser(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[id]; !ok {
		return notFound("user", id)
	}
	delete(s.users, id)
	delete(s.subscriptions, id)
	s.deletedUsers[id] = s.now()
	return nil
}

func (s *Store) UserDeleted(_ context.Context, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.deletedUsers[id]
	return ok, nil
}

// DrillStore implementation ---------------------------------------------------

func (s *Store) CreateDrill(_ context.Context, d drill.Drill) (drill.Drill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if d.ID == "" {
		d.ID = s.nextIDLocked()
	} else if _, exists := s.drills[d.ID]; exists {
		return drill.Drill{}, fmt.Errorf("drill %s already exists", d.ID)
	}
	now := s.now()
	d.CreatedAt = now
	d.UpdatedAt = now
	d.Tags = cloneStrings(d.Tags)
	s.drills[d.ID] = d
	return cloneDrill(d), nil
}

func (s *Store) UpdateDrill(_ context.Context, d drill.Drill) (drill.Drill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.drills[d.ID]
	if !ok {
		return drill.Drill{}, notFound("drill", d.ID)
	}
	d.CreatedAt = original.CreatedAt
	d.UpdatedAt = s.now()
	d.Tags = cloneStrings(d.Tags)
	s.drills[d.ID] = d
	return cloneDrill(d), nil
}

func (s *Store) GetDrill(_ context.Context, id string) (drill.Drill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.drills[id]
	if !ok {
		return drill.Drill{}, notFound("drill", id)
	}
	return cloneDrill(d), nil
}

func (s *Store) ListDrills(_ context.Context, filter drill.Filter) ([]drill.Drill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]drill.Drill, 0, len(s.drills))
	for _, d := range s.drills {
		if filter.Matches(d) {
			out = append(out, cloneDrill(d))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Title == out[j].Title {
			return out[i].ID < out[j].ID
		}
		return out[i].Title < out[j].Title
	})
	return applyLimit(out, filter.Limit), nil
}

func (s *Store) DeleteDrill(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.drills[id]; !ok {
		return notFound("drill", id)
	}
	delete(s.drills, id)
	return nil
}

func (s *Store) CreateAttempt(_ context.Context, a drill.Attempt) (drill.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.drills[a.DrillID]; !ok {
		return drill.Attempt{}, notFound("drill", a.DrillID)
	}
	if a.ID == "" {
		a.ID = s.nextIDLocked()
	}
	a.UpdatedAt = s.now()
	s.attempts[a.ID] = a
	return cloneAttempt(a), nil
}

func (s *Store) UpdateAttempt(_ context.Context, a drill.Attempt, from drill.AttemptStatus) (drill.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.attempts[a.ID]
	if !ok {
		return drill.Attempt{}, notFound("attempt", a.ID)
	}
	if current.Status != from {
		return drill.Attempt{}, storage.StaleAttempt(a.ID, current.Status)
	}
	a.UpdatedAt = s.now()
	s.attempts[a.ID] = cloneAttempt(a)
	return cloneAttempt(a), nil
}

func (s *Store) GetAttempt(_ context.Context, id string) (drill.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.attempts[id]
	if !ok {
		return drill.Attempt{}, notFound("attempt", id)
	}
	return cloneAttempt(a), nil
}

func (s *Store) ListAttempts(_ context.Context, userID string, limit int) ([]drill.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []drill.Attempt
	for _, a := range s.attempts {
		if a.UserID == userID {
			out = append(out, cloneAttempt(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return applyLimit(out, limit), nil
}

func (s *Store) ListOpenAttemptsBefore(_ context.Context, cutoff time.Time) ([]drill.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []drill.Attempt
	for _, a := range s.attempts {
		if a.Status == drill.AttemptInProgress && a.Deadline.Before(cutoff) {
			out = append(out, cloneAttempt(a))
		}
	}
	return out, nil
}

// SimulationStore implementation ----------------------------------------------

func (s *Store) CreateSimulation(_ context.Context, a simulation.Attempt) (simulation.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a.ID == "" {
		a.ID = s.nextIDLocked()
	}
	now := s.now()
	a.CreatedAt = now
	a.UpdatedAt = now
	s.simulations[a.ID] = cloneSimulation(a)
	return cloneSimulation(a), nil
}

func (s *Store) UpdateSimulation(_ context.Context, a simulation.Attempt) (simulation.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.simulations[a.ID]
	if !ok {
		return simulation.Attempt{}, notFound("simulation", a.ID)
	}
	a.CreatedAt = original.CreatedAt
	a.UpdatedAt = s.now()
	s.simulations[a.ID] = cloneSimulation(a)
	return cloneSimulation(a), nil
}

func (s *Store) GetSimulation(_ context.Context, id string) (simulation.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.simulations[id]
	if !ok {
		return simulation.Attempt{}, notFound("simulation", id)
	}
	return cloneSimulation(a), nil
}

func (s *Store) ListSimulations(_ context.Context, userID string, limit int) ([]simulation.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []simulation.Attempt
	for _, a := range s.simulations {
		if a.UserID == userID {
			out = append(out, cloneSimulation(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return applyLimit(out, limit), nil
}

func (s *Store) ListSimulationsByStatus(_ context.Context, status ecosystem.Status, updatedBefore time.Time) ([]simulation.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []simulation.Attempt
	for _, a := range s.simulations {
		if a.Status == status && a.UpdatedAt.Before(updatedBefore) {
			out = append(out, cloneSimulation(a))
		}
	}
	return out, nil
}

// SubscriptionStore implementation --------------------------------------------

func (s *Store) UpsertSubscription(_ context.Context, sub subscription.Subscription) (subscription.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if existing, ok := s.subscriptions[sub.UserID]; ok {
		sub.ID = existing.ID
		sub.CreatedAt = existing.CreatedAt
	} else {
		if sub.ID == "" {
			sub.ID = s.nextIDLocked()
		}
		sub.CreatedAt = now
	}
	sub.UpdatedAt = now
	s.subscriptions[sub.UserID] = cloneSubscription(sub)
	return cloneSubscription(sub), nil
}

func (s *Store) GetSubscriptionByUser(_ context.Context, userID string) (subscription.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sub, ok := s.subscriptions[userID]
	if !ok {
		return subscription.Subscription{}, notFound("subscription for user", userID)
	}
	return cloneSubscription(sub), nil
}

func (s *Store) GetSubscriptionByCustomer(_ context.Context, customerID string) (subscription.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, sub := range s.subscriptions {
		if customerID != "" && sub.CustomerID == customerID {
			return cloneSubscription(sub), nil
		}
	}
	return subscription.Subscription{}, notFound("subscription for customer", customerID)
}

func (s *Store) ListSubscriptionsEndingBefore(_ context.Context, cutoff time.Time) ([]subscription.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []subscription.Subscription
	for _, sub := range s.subscriptions {
		if sub.CancelAtPeriodEnd && sub.Status != subscription.StatusCanceled &&
			sub.CurrentPeriodEnd != nil && sub.CurrentPeriodEnd.Before(cutoff) {
			out = append(out, cloneSubscription(sub))
		}
	}
	return out, nil
}

// FeedbackStore implementation ------------------------------------------------

func (s *Store) CreateFeedback(_ context.Context, f feedback.Feedback) (feedback.Feedback, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if f.ID == "" {
		f.ID = s.nextIDLocked()
	}
	f.CreatedAt = s.now()
	s.feedback[f.ID] = cloneFeedback(f)
	return cloneFeedback(f), nil
}

func (s *Store) GetFeedback(_ context.Context, id string) (feedback.Feedback, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := s.feedback[id]
	if !ok {
		return feedback.Feedback{}, notFound("feedback", id)
	}
	return cloneFeedback(f), nil
}

func (s *Store) DeleteFeedback(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.feedback[id]; !ok {
		return notFound("feedback", id)
	}
	delete(s.feedback, id)
	return nil
}

func (s *Store) ListFeedback(_ context.Context, userID string, target feedback.TargetType, limit int) ([]feedback.Feedback, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []feedback.Feedback
	for _, f := range s.feedback {
		if f.UserID != userID || (target != "" && f.TargetType != target) {
			continue
		}
		out = append(out, cloneFeedback(f))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return applyLimit(out, limit), nil
}

// clone helpers ---------------------------------------------------------------

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append([]string(nil), in...)
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneInt(v *int) *int {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}

func cloneDrill(d drill.Drill) drill.Drill {
	d.Tags = cloneStrings(d.Tags)
	return d
}

func cloneAttempt(a drill.Attempt) drill.Attempt {
	a.Score = cloneInt(a.Score)
	a.SubmittedAt = cloneTime(a.SubmittedAt)
	return a
}

func cloneSimulation(a simulation.Attempt) simulation.Attempt {
	a.State = a.State.Clone()
	a.Score = cloneInt(a.Score)
	a.CompletedAt = cloneTime(a.CompletedAt)
	return a
}

func cloneSubscription(sub subscription.Subscription) subscription.Subscription {
	sub.CurrentPeriodEnd = cloneTime(sub.CurrentPeriodEnd)
	return sub
}

func cloneFeedback(f feedback.Feedback) feedback.Feedback {
	f.Strengths = cloneStrings(f.Strengths)
	f.Improvements = cloneStrings(f.Improvements)
	return f
}
