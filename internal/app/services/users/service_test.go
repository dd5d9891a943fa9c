package users

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/app/domain/user"
	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/app/storage/memory"
	apperrors "github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/errors"
	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/platform/cache"
	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/pkg/logger"
)

type countingNotifier struct {
	welcomed []string
	err      error
}

func (c *countingNotifier) Welcome(_ context.Context, u user.User) error {
	c.welcomed = append(c.welcomed, u.ID)
	return c.err
}

func TestEnsureUserCreatesOnce(t *testing.T) {
	notifier := &countingNotifier{}
	svc := New(memory.New(), logger.Discard())
	svc.WithNotifier(notifier)
	ctx := context.Background()

	u, err := svc.EnsureUser(ctx, Identity{ID: " sub-1 ", Email: " Ada@Example.com "})
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if u.ID != "sub-1" || u.Email != "ada@example.com" || u.Role != user.RoleUser || u.Plan != user.PlanFree {
		t.Fatalf("unexpected user %+v", u)
	}

	if _, err := svc.EnsureUser(ctx, Identity{ID: "sub-1"}); err != nil {
		t.Fatalf("ensure again: %v", err)
	}
	if len(notifier.welcomed) != 1 {
		t.Fatalf("expected exactly one welcome, got %v", notifier.welcomed)
	}

	if _, err := svc.EnsureUser(ctx, Identity{}); !apperrors.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestEnsureUserIgnoresNotifierFailure(t *testing.T) {
	svc := New(memory.New(), logger.Discard())
	svc.WithNotifier(&countingNotifier{err: errors.New("smtp down")})
	if _, err := svc.EnsureUser(context.Background(), Identity{ID: "u", Email: "a@b.c"}); err != nil {
		t.Fatalf("ensure: %v", err)
	}
}

func TestUpdateProfileAndCache(t *testing.T) {
	store := memory.New()
	c := cache.NewMemory()
	svc := New(store, logger.Discard())
	svc.WithCache(c, time.Minute)
	ctx := context.Background()

	if _, err := svc.EnsureUser(ctx, Identity{ID: "u", Email: "a@b.c"}); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	name := "  Grace Hopper "
	updated, err := svc.UpdateProfile(ctx, "u", &name)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.DisplayName != "Grace Hopper" {
		t.Fatalf("expected trimmed name, got %q", updated.DisplayName)
	}

	var cached user.User
	hit, err := cache.GetJSON(ctx, c, cacheKey("u"), &cached)
	if err != nil || !hit || cached.DisplayName != "Grace Hopper" {
		t.Fatalf("expected refreshed cache entry, hit=%v err=%v cached=%+v", hit, err, cached)
	}

	long := strings.Repeat("x", maxDisplayName+1)
	if _, err := svc.UpdateProfile(ctx, "u", &long); !apperrors.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}

	if err := svc.Delete(ctx, "u"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if hit, _ := cache.GetJSON(ctx, c, cacheKey("u"), &cached); hit {
		t.Fatalf("expected cache eviction on delete")
	}
	if _, err := svc.Get(ctx, "u"); !apperrors.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestDeletedUserIsNotRecreated(t *testing.T) {
	notifier := &countingNotifier{}
	svc := New(memory.New(), logger.Discard())
	svc.WithNotifier(notifier)
	ctx := context.Background()

	if _, err := svc.EnsureUser(ctx, Identity{ID: "gone", Email: "gone@example.com"}); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if err := svc.Delete(ctx, "gone"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	_, err := svc.EnsureUser(ctx, Identity{ID: "gone", Email: "gone@example.com"})
	se := apperrors.GetServiceError(err)
	if se == nil || se.Code != apperrors.CodeForbidden {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if len(notifier.welcomed) != 1 {
		t.Fatalf("expected a single welcome, got %v", notifier.welcomed)
	}
}

func TestSetPlanAndRole(t *testing.T) {
	svc := New(memory.New(), logger.Discard())
	ctx := context.Background()
	if _, err := svc.EnsureUser(ctx, Identity{ID: "u"}); err != nil {
		t.Fatalf("ensure: %v", err)
	}

	u, err := svc.SetPlan(ctx, "u", user.PlanPro)
	if err != nil || u.Plan != user.PlanPro || !u.HasPremium() {
		t.Fatalf("set plan: %+v %v", u, err)
	}
	if _, err := svc.SetPlan(ctx, "u", "gold"); !apperrors.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}

	u, err = svc.SetRole(ctx, "u", user.RoleAdmin)
	if err != nil || !u.IsAdmin() {
		t.Fatalf("set role: %+v %v", u, err)
	}
	if _, err := svc.SetRole(ctx, "missing", user.RoleAdmin); !apperrors.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}

	list, err := svc.List(ctx, 0)
	if err != nil || len(list) != 1 {
		t.Fatalf("list: %v %v", list, err)
	}
}
