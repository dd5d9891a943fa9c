package users

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/app/domain/user"
	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/app/storage"
	apperrors "github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/errors"
	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/platform/cache"
	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/pkg/logger"
)

const (
	maxDisplayName = 80
	defaultListCap = 100
)

// Notifier greets new users.
type Notifier interface {
	Welcome(ctx context.Context, u user.User) error
}

// Identity is the authenticated caller as asserted by the access token.
type Identity struct {
	ID    string
	Email string
}

// Service manages user profiles.
type Service struct {
	store    storage.UserStore
	cache    cache.Cache
	ttl      time.Duration
	notifier Notifier
	log      *logger.Logger
}

// New constructs a user service.
func New(store storage.UserStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("users")
	}
	return &Service{store: store, log: log}
}

// WithCache caches profiles for ttl.
func (s *Service) WithCache(c cache.Cache, ttl time.Duration) {
	s.cache = c
	s.ttl = ttl
}

// WithNotifier sends a welcome email when a user is first seen.
func (s *Service) WithNotifier(n Notifier) {
	s.notifier = n
}

// EnsureUser returns the profile for id, creating it on first sight.
func (s *Service) EnsureUser(ctx context.Context, id Identity) (user.User, error) {
	id.ID = strings.TrimSpace(id.ID)
	id.Email = strings.ToLower(strings.TrimSpace(id.Email))
	if id.ID == "" {
		return user.User{}, apperrors.Validation("user id is required")
	}

	existing, err := s.Get(ctx, id.ID)
	if err == nil {
		return existing, nil
	}
	if !apperrors.IsNotFound(err) {
		return user.User{}, err
	}
	deleted, err := s.store.UserDeleted(ctx, id.ID)
	if err != nil {
		return user.User{}, err
	}
	if deleted {
		return user.User{}, apperrors.Forbidden("this account has been deleted")
	}

	created, err := s.store.CreateUser(ctx, user.User{ID: id.ID, Email: id.Email, Role: user.RoleUser, Plan: user.PlanFree})
	if err != nil {
		// A concurrent request may have created the row first.
		if again, getErr := s.store.GetUser(ctx, id.ID); getErr == nil {
			return again, nil
		}
		return user.User{}, err
	}
	s.log.WithField("user_id", created.ID).Info("user registered")

	if s.notifier != nil {
		if err := s.notifier.Welcome(ctx, created); err != nil {
			s.log.WithError(err).WithField("user_id", created.ID).Warn("welcome email failed")
		}
	}
	return created, nil
}

// Get fetches a profile, consulting the cache first.
func (s *Service) Get(ctx context.Context, id string) (user.User, error) {
	if s.cache != nil {
		var cached user.User
		if hit, err := cache.GetJSON(ctx, s.cache, cacheKey(id), &cached); err == nil && hit {
			return cached, nil
		}
	}
	u, err := s.store.GetUser(ctx, id)
	if err != nil {
		return user.User{}, err
	}
	s.remember(ctx, u)
	return u, nil
}

// List returns users, newest first.
func (s *Service) List(ctx context.Context, limit int) ([]user.User, error) {
	if limit <= 0 || limit > defaultListCap {
		limit = defaultListCap
	}
	return s.store.ListUsers(ctx, limit)
}

// UpdateProfile changes the caller's editable fields.
func (s *Service) UpdateProfile(ctx context.Context, id string, displayName *string) (user.User, error) {
	u, err := s.store.GetUser(ctx, id)
	if err != nil {
		return user.User{}, err
	}
	if displayName != nil {
		name := strings.TrimSpace(*displayName)
		if utf8.RuneCountInString(name) > maxDisplayName {
			return user.User{}, apperrors.Validationf("display_name must be at most %d characters", maxDisplayName)
		}
		u.DisplayName = name
	}
	return s.save(ctx, u)
}

// SetPlan changes a user's billing plan.
func (s *Service) SetPlan(ctx context.Context, id string, plan user.Plan) (user.User, error) {
	if plan != user.PlanFree && plan != user.PlanPro {
		return user.User{}, apperrors.Validationf("unknown plan %q", plan)
	}
	u, err := s.store.GetUser(ctx, id)
	if err != nil {
		return user.User{}, err
	}
	if u.Plan == plan {
		return u, nil
	}
	u.Plan = plan
	updated, err := s.save(ctx, u)
	if err != nil {
		return user.User{}, err
	}
	s.log.WithField("user_id", id).WithField("plan", plan).Info("user plan changed")
	return updated, nil
}

// SetRole changes a user's role.
func (s *Service) SetRole(ctx context.Context, id string, role user.Role) (user.User, error) {
	if role != user.RoleUser && role != user.RoleAdmin {
		return user.User{}, apperrors.Validationf("unknown role %q", role)
	}
	u, err := s.store.GetUser(ctx, id)
	if err != nil {
		return user.User{}, err
	}
	u.Role = role
	updated, err := s.save(ctx, u)
	if err != nil {
		return user.User{}, err
	}
	s.log.WithField("user_id", id).WithField("role", role).Info("user role changed")
	return updated, nil
}

// Delete removes a user.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.store.DeleteUser(ctx, id); err != nil {
		return err
	}
	s.forget(ctx, id)
	s.log.WithField("user_id", id).Info("user deleted")
	return nil
}

func (s *Service) save(ctx context.Context, u user.User) (user.User, error) {
	updated, err := s.store.UpdateUser(ctx, u)
	if err != nil {
		return user.User{}, err
	}
	s.remember(ctx, updated)
	return updated, nil
}

func (s *Service) remember(ctx context.Context, u user.User) {
	if s.cache == nil {
		return
	}
	if err := cache.SetJSON(ctx, s.cache, cacheKey(u.ID), u, s.ttl); err != nil {
		s.log.WithError(err).Debug("cache user profile")
	}
}

func (s *Service) forget(ctx context.Context, id string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, cacheKey(id)); err != nil {
		s.log.WithError(err).Debug("evict user profile")
	}
}

func cacheKey(id string) string { return cache.Key("user", id) }
