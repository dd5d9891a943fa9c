package drills

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/app/domain/drill"
	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/app/domain/feedback"
	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/app/domain/user"
	feedbacksvc "github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/app/services/feedback"
	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/app/storage/memory"
	apperrors "github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/errors"
	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/platform/cache"
	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/pkg/logger"
)

type fakeEvaluator struct {
	score int
	err   error
	seen  []feedbacksvc.DrillSubmission
}

func (f *fakeEvaluator) EvaluateDrill(_ context.Context, sub feedbacksvc.DrillSubmission) (feedback.Feedback, error) {
	f.seen = append(f.seen, sub)
	if f.err != nil {
		return feedback.Feedback{}, f.err
	}
	return feedback.Feedback{ID: "fb-1", UserID: sub.UserID, Score: f.score, Summary: "ok"}, nil
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

var (
	free  = user.User{ID: "u-free", Role: user.RoleUser, Plan: user.PlanFree}
	pro   = user.User{ID: "u-pro", Role: user.RoleUser, Plan: user.PlanPro}
	admin = user.User{ID: "u-admin", Role: user.RoleAdmin, Plan: user.PlanFree}
)

func newService(t *testing.T) (*Service, *clock) {
	t.Helper()
	c := &clock{t: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
	svc := New(memory.New(), logger.Discard())
	svc.WithClock(c.now)
	return svc, c
}

func mustCreate(t *testing.T, svc *Service, title string, premium bool) drill.Drill {
	t.Helper()
	d, err := svc.CreateDrill(context.Background(), Input{
		Title:            title,
		Type:             drill.TypeMarketSizing,
		Difficulty:       drill.DifficultyMedium,
		Prompt:           "How many piano tuners work in Chicago?",
		TimeLimitSeconds: 600,
		Premium:          premium,
		Tags:             []string{" Estimation ", "estimation", "US"},
	})
	require.NoError(t, err)
	return d
}

func TestCreateDrillValidates(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.CreateDrill(context.Background(), Input{Type: "riddle", Difficulty: drill.DifficultyEasy})
	require.Error(t, err)
	se := apperrors.GetServiceError(err)
	require.NotNil(t, se)
	assert.Equal(t, apperrors.CodeValidation, se.Code)
	assert.Len(t, se.Details["issues"], 4)

	d := mustCreate(t, svc, "Piano tuners", false)
	assert.Equal(t, []string{"estimation", "us"}, d.Tags)
}

func TestListDrillsUsesCacheUntilWrite(t *testing.T) {
	svc, _ := newService(t)
	c := cache.NewMemory()
	svc.WithCache(c, time.Minute)
	ctx := context.Background()

	mustCreate(t, svc, "B drill", false)
	list, err := svc.ListDrills(ctx, drill.Filter{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 1, c.Len())

	premium := mustCreate(t, svc, "A drill", true)
	assert.Equal(t, 0, c.Len(), "write must evict the catalog")

	list, err = svc.ListDrills(ctx, drill.Filter{})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, premium.ID, list[0].ID)

	yes := true
	list, err = svc.ListDrills(ctx, drill.Filter{Premium: &yes})
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = svc.ListDrills(ctx, drill.Filter{Type: "riddle"})
	assert.True(t, apperrors.IsValidation(err))
}

func TestUpdateAndDeleteDrill(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	d := mustCreate(t, svc, "Piano tuners", false)

	title := "  Piano tuners revisited "
	limit := 900
	updated, err := svc.UpdateDrill(ctx, d.ID, Patch{Title: &title, TimeLimitSeconds: &limit})
	require.NoError(t, err)
	assert.Equal(t, "Piano tuners revisited", updated.Title)
	assert.Equal(t, 15*time.Minute, updated.TimeLimit())

	bad := 0
	_, err = svc.UpdateDrill(ctx, d.ID, Patch{TimeLimitSeconds: &bad})
	assert.True(t, apperrors.IsValidation(err))

	require.NoError(t, svc.DeleteDrill(ctx, d.ID))
	_, err = svc.GetDrill(ctx, d.ID)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestStartAttemptGatesPremium(t *testing.T) {
	svc, c := newService(t)
	ctx := context.Background()
	d := mustCreate(t, svc, "Premium case", true)

	_, err := svc.StartAttempt(ctx, free, d.ID)
	se := apperrors.GetServiceError(err)
	require.NotNil(t, se)
	assert.Equal(t, apperrors.CodeForbidden, se.Code)

	for _, u := range []user.User{pro, admin} {
		a, err := svc.StartAttempt(ctx, u, d.ID)
		require.NoError(t, err)
		assert.Equal(t, drill.AttemptInProgress, a.Status)
		assert.Equal(t, c.t.Add(10*time.Minute), a.Deadline)
	}
}

func TestSubmitAttemptEvaluates(t *testing.T) {
	svc, c := newService(t)
	eval := &fakeEvaluator{score: 77}
	svc.WithEvaluator(eval)
	ctx := context.Background()
	d := mustCreate(t, svc, "Piano tuners", false)

	a, err := svc.StartAttempt(ctx, free, d.ID)
	require.NoError(t, err)

	c.t = c.t.Add(5 * time.Minute)
	res, err := svc.SubmitAttempt(ctx, free, a.ID, "  about 125 tuners  ")
	require.NoError(t, err)
	require.NotNil(t, res.Feedback)
	assert.Equal(t, drill.AttemptEvaluated, res.Attempt.Status)
	require.NotNil(t, res.Attempt.Score)
	assert.Equal(t, 77, *res.Attempt.Score)
	assert.Equal(t, "fb-1", res.Attempt.FeedbackID)
	require.Len(t, eval.seen, 1)
	assert.Equal(t, "about 125 tuners", eval.seen[0].Response)
	assert.Equal(t, 5*time.Minute, eval.seen[0].Elapsed)

	_, err = svc.SubmitAttempt(ctx, free, a.ID, "again")
	assert.True(t, apperrors.IsConflict(err))
}

func TestSubmitAttemptWithinGrace(t *testing.T) {
	svc, c := newService(t)
	ctx := context.Background()
	d := mustCreate(t, svc, "Piano tuners", false)
	a, err := svc.StartAttempt(ctx, free, d.ID)
	require.NoError(t, err)

	c.t = a.Deadline.Add(SubmissionGrace)
	res, err := svc.SubmitAttempt(ctx, free, a.ID, "answer")
	require.NoError(t, err)
	assert.Equal(t, drill.AttemptSubmitted, res.Attempt.Status)
	assert.Nil(t, res.Feedback)
}

func TestSubmitAttemptPastGraceExpires(t *testing.T) {
	svc, c := newService(t)
	ctx := context.Background()
	d := mustCreate(t, svc, "Piano tuners", false)
	a, err := svc.StartAttempt(ctx, free, d.ID)
	require.NoError(t, err)

	c.t = a.Deadline.Add(SubmissionGrace + time.Second)
	_, err = svc.SubmitAttempt(ctx, free, a.ID, "late answer")
	assert.True(t, apperrors.IsConflict(err))

	got, err := svc.GetAttempt(ctx, free, a.ID)
	require.NoError(t, err)
	assert.Equal(t, drill.AttemptExpired, got.Status)
}

func TestSubmitAttemptKeepsSubmissionWhenEvaluationFails(t *testing.T) {
	svc, _ := newService(t)
	svc.WithEvaluator(&fakeEvaluator{err: errors.New("boom")})
	ctx := context.Background()
	d := mustCreate(t, svc, "Piano tuners", false)
	a, err := svc.StartAttempt(ctx, free, d.ID)
	require.NoError(t, err)

	res, err := svc.SubmitAttempt(ctx, free, a.ID, "answer")
	require.NoError(t, err)
	assert.Equal(t, drill.AttemptSubmitted, res.Attempt.Status)
	assert.Nil(t, res.Attempt.Score)
}

func TestAttemptOwnership(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	d := mustCreate(t, svc, "Piano tuners", false)
	a, err := svc.StartAttempt(ctx, free, d.ID)
	require.NoError(t, err)

	_, err = svc.GetAttempt(ctx, pro, a.ID)
	assert.True(t, apperrors.IsNotFound(err))
	_, err = svc.SubmitAttempt(ctx, pro, a.ID, "answer")
	assert.True(t, apperrors.IsNotFound(err))

	_, err = svc.GetAttempt(ctx, admin, a.ID)
	assert.NoError(t, err)

	list, err := svc.ListAttempts(ctx, free.ID, 0)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestExpireStale(t *testing.T) {
	svc, c := newService(t)
	ctx := context.Background()
	d := mustCreate(t, svc, "Piano tuners", false)
	old, err := svc.StartAttempt(ctx, free, d.ID)
	require.NoError(t, err)

	c.t = c.t.Add(9 * time.Minute)
	fresh, err := svc.StartAttempt(ctx, pro, d.ID)
	require.NoError(t, err)

	c.t = old.Deadline.Add(SubmissionGrace + time.Minute)
	n, err := svc.ExpireStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := svc.GetAttempt(ctx, admin, old.ID)
	require.NoError(t, err)
	assert.Equal(t, drill.AttemptExpired, got.Status)
	got, err = svc.GetAttempt(ctx, admin, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, drill.AttemptInProgress, got.Status)
}

// syncStore holds every GetAttempt caller until the expected number of
// callers have read the attempt.
type syncStore struct {
	*memory.Store
	readers int32
	reads   atomic.Int32
	ready   sync.WaitGroup
}

func newSyncStore(readers int) *syncStore {
	s := &syncStore{Store: memory.New(), readers: int32(readers)}
	s.ready.Add(readers)
	return s
}

func (s *syncStore) GetAttempt(ctx context.Context, id string) (drill.Attempt, error) {
	a, err := s.Store.GetAttempt(ctx, id)
	if s.reads.Add(1) <= s.readers {
		s.ready.Done()
	}
	s.ready.Wait()
	return a, err
}

type countingEvaluator struct {
	calls atomic.Int32
}

func (e *countingEvaluator) EvaluateDrill(_ context.Context, sub feedbacksvc.DrillSubmission) (feedback.Feedback, error) {
	e.calls.Add(1)
	return feedback.Feedback{ID: "fb-" + sub.AttemptID, UserID: sub.UserID, Score: 60, Summary: "ok"}, nil
}

func TestConcurrentSubmitsEvaluateOnce(t *testing.T) {
	store := newSyncStore(2)
	c := &clock{t: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
	svc := New(store, logger.Discard())
	svc.WithClock(c.now)
	eval := &countingEvaluator{}
	svc.WithEvaluator(eval)
	ctx := context.Background()

	d := mustCreate(t, svc, "Piano tuners", false)
	a, err := svc.StartAttempt(ctx, free, d.ID)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.SubmitAttempt(ctx, free, a.ID, "about 125 tuners")
		}(i)
	}
	wg.Wait()

	succeeded, conflicts := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case apperrors.IsConflict(err):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, conflicts)
	assert.Equal(t, int32(1), eval.calls.Load())

	got, err := svc.GetAttempt(ctx, free, a.ID)
	require.NoError(t, err)
	assert.Equal(t, drill.AttemptEvaluated, got.Status)
}

// racingStore submits the listed attempts behind the sweeper's back.
type racingStore struct {
	*memory.Store
}

func (s racingStore) ListOpenAttemptsBefore(ctx context.Context, cutoff time.Time) ([]drill.Attempt, error) {
	open, err := s.Store.ListOpenAttemptsBefore(ctx, cutoff)
	for _, a := range open {
		submitted := a
		submitted.Status = drill.AttemptSubmitted
		if _, err := s.Store.UpdateAttempt(ctx, submitted, drill.AttemptInProgress); err != nil {
			return nil, err
		}
	}
	return open, err
}

func TestExpireStaleSkipsAttemptsThatMovedOn(t *testing.T) {
	store := racingStore{Store: memory.New()}
	c := &clock{t: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
	svc := New(store, logger.Discard())
	svc.WithClock(c.now)
	ctx := context.Background()

	d := mustCreate(t, svc, "Piano tuners", false)
	a, err := svc.StartAttempt(ctx, free, d.ID)
	require.NoError(t, err)

	c.t = a.Deadline.Add(SubmissionGrace + time.Minute)
	n, err := svc.ExpireStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	got, err := svc.GetAttempt(ctx, free, a.ID)
	require.NoError(t, err)
	assert.Equal(t, drill.AttemptSubmitted, got.Status)
}
