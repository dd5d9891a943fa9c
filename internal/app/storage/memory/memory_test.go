package memory

import (
	"context"
	"testing"
	"time"

	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/app/domain/drill"
	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/app/domain/feedback"
	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/app/domain/subscription"
	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/app/domain/user"
	apperrors "github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/errors"
)

func TestUserCRUD(t *testing.T) {
	store := New()
	ctx := context.Background()

	created, err := store.CreateUser(ctx, user.User{ID: "u1", Email: "a@example.com"})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if created.CreatedAt.IsZero() {
		t.Fatalf("expected timestamps to be set")
	}
	if _, err := store.CreateUser(ctx, user.User{ID: "u1"}); err == nil {
		t.Fatalf("expected duplicate user error")
	}

	created.DisplayName = "Ada"
	if _, err := store.UpdateUser(ctx, created); err != nil {
		t.Fatalf("update user: %v", err)
	}
	got, err := store.GetUser(ctx, "u1")
	if err != nil || got.DisplayName != "Ada" {
		t.Fatalf("unexpected user %+v (err %v)", got, err)
	}

	if err := store.DeleteUser(ctx, "u1"); err != nil {
		t.Fatalf("delete user: %v", err)
	}
	if _, err := store.GetUser(ctx, "u1"); !apperrors.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	if deleted, _ := store.UserDeleted(ctx, "u1"); !deleted {
		t.Fatalf("expected deletion to be recorded")
	}
}

func TestDrillFilterAndClone(t *testing.T) {
	store := New()
	ctx := context.Background()

	premium := true
	if _, err := store.CreateDrill(ctx, drill.Drill{Title: "B", Type: drill.TypeCalculation, Difficulty: drill.DifficultyEasy, Tags: []string{"math"}}); err != nil {
		t.Fatalf("create drill: %v", err)
	}
	created, err := store.CreateDrill(ctx, drill.Drill{Title: "A", Type: drill.TypeMarketSizing, Difficulty: drill.DifficultyHard, Premium: true})
	if err != nil {
		t.Fatalf("create drill: %v", err)
	}

	list, err := store.ListDrills(ctx, drill.Filter{Premium: &premium})
	if err != nil {
		t.Fatalf("list drills: %v", err)
	}
	if len(list) != 1 || list[0].ID != created.ID {
		t.Fatalf("unexpected premium listing %+v", list)
	}

	all, _ := store.ListDrills(ctx, drill.Filter{})
	if len(all) != 2 || all[0].Title != "A" {
		t.Fatalf("expected title ordering, got %+v", all)
	}
	all[1].Tags[0] = "mutated"
	again, _ := store.ListDrills(ctx, drill.Filter{Type: drill.TypeCalculation})
	if again[0].Tags[0] != "math" {
		t.Fatalf("store leaked internal slice")
	}
}

func TestAttemptsRequireDrill(t *testing.T) {
	store := New()
	ctx := context.Background()

	if _, err := store.CreateAttempt(ctx, drill.Attempt{DrillID: "missing"}); !apperrors.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}

	d, _ := store.CreateDrill(ctx, drill.Drill{Title: "A"})
	now := time.Now().UTC()
	open, _ := store.CreateAttempt(ctx, drill.Attempt{DrillID: d.ID, UserID: "u1", Status: drill.AttemptInProgress, StartedAt: now, Deadline: now.Add(time.Minute)})
	_, _ = store.CreateAttempt(ctx, drill.Attempt{DrillID: d.ID, UserID: "u1", Status: drill.AttemptEvaluated, StartedAt: now, Deadline: now.Add(time.Minute)})

	stale, err := store.ListOpenAttemptsBefore(ctx, now.Add(2*time.Minute))
	if err != nil {
		t.Fatalf("list open attempts: %v", err)
	}
	if len(stale) != 1 || stale[0].ID != open.ID {
		t.Fatalf("unexpected stale attempts %+v", stale)
	}

	mine, _ := store.ListAttempts(ctx, "u1", 0)
	if len(mine) != 2 {
		t.Fatalf("expected 2 attempts, got %d", len(mine))
	}
}

func TestUpdateAttemptComparesStatus(t *testing.T) {
	store := New()
	ctx := context.Background()
	d, _ := store.CreateDrill(ctx, drill.Drill{Title: "A"})
	now := time.Now().UTC()
	a, _ := store.CreateAttempt(ctx, drill.Attempt{DrillID: d.ID, UserID: "u1", Status: drill.AttemptInProgress, StartedAt: now, Deadline: now.Add(time.Minute)})

	a.Status = drill.AttemptSubmitted
	if _, err := store.UpdateAttempt(ctx, a, drill.AttemptInProgress); err != nil {
		t.Fatalf("first transition: %v", err)
	}
	if _, err := store.UpdateAttempt(ctx, a, drill.AttemptInProgress); !apperrors.IsConflict(err) {
		t.Fatalf("expected conflict on stale status, got %v", err)
	}
	if _, err := store.UpdateAttempt(ctx, drill.Attempt{ID: "missing"}, drill.AttemptInProgress); !apperrors.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSubscriptionUpsertKeepsIdentity(t *testing.T) {
	store := New()
	ctx := context.Background()

	first, err := store.UpsertSubscription(ctx, subscription.Subscription{UserID: "u1", CustomerID: "cus_1", Status: subscription.StatusIncomplete})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	second, err := store.UpsertSubscription(ctx, subscription.Subscription{UserID: "u1", CustomerID: "cus_1", Status: subscription.StatusActive})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected stable id, got %s and %s", first.ID, second.ID)
	}

	byCustomer, err := store.GetSubscriptionByCustomer(ctx, "cus_1")
	if err != nil || byCustomer.Status != subscription.StatusActive {
		t.Fatalf("unexpected subscription %+v (err %v)", byCustomer, err)
	}

	past := time.Now().Add(-time.Hour)
	second.CancelAtPeriodEnd = true
	second.CurrentPeriodEnd = &past
	_, _ = store.UpsertSubscription(ctx, second)
	ending, _ := store.ListSubscriptionsEndingBefore(ctx, time.Now())
	if len(ending) != 1 {
		t.Fatalf("expected 1 lapsed subscription, got %d", len(ending))
	}
}

func TestFeedbackListFiltersByTarget(t *testing.T) {
	store := New()
	ctx := context.Background()

	_, _ = store.CreateFeedback(ctx, feedback.Feedback{UserID: "u1", TargetType: feedback.TargetDrill, TargetID: "a1"})
	_, _ = store.CreateFeedback(ctx, feedback.Feedback{UserID: "u1", TargetType: feedback.TargetSimulation, TargetID: "s1"})
	_, _ = store.CreateFeedback(ctx, feedback.Feedback{UserID: "u2", TargetType: feedback.TargetDrill, TargetID: "a2"})

	list, err := store.ListFeedback(ctx, "u1", feedback.TargetDrill, 0)
	if err != nil {
		t.Fatalf("list feedback: %v", err)
	}
	if len(list) != 1 || list[0].TargetID != "a1" {
		t.Fatalf("unexpected feedback %+v", list)
	}
	all, _ := store.ListFeedback(ctx, "u1", "", 1)
	if len(all) != 1 {
		t.Fatalf("expected limit to apply, got %d", len(all))
	}
}
