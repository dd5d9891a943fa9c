package simulations

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/app/domain/feedback"
	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/app/domain/simulation"
	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/app/domain/user"
	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/app/storage/memory"
	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/ecosystem"
	apperrors "github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/errors"
	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/platform/cache"
	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/pkg/logger"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type stubReviewer struct {
	calls     int
	discarded []string
}

func (r *stubReviewer) ReviewSimulation(_ context.Context, a simulation.Attempt, res ecosystem.Result) (feedback.Feedback, error) {
	r.calls++
	return feedback.Feedback{ID: "fb-sim", UserID: a.UserID, TargetID: a.ID, Score: res.Score}, nil
}

func (r *stubReviewer) Discard(_ context.Context, id string) error {
	r.discarded = append(r.discarded, id)
	return nil
}

// flakyStore fails the first simulation update that links feedback.
type flakyStore struct {
	*memory.Store
	failed bool
}

func (s *flakyStore) UpdateSimulation(ctx context.Context, a simulation.Attempt) (simulation.Attempt, error) {
	if a.FeedbackID != "" && !s.failed {
		s.failed = true
		return simulation.Attempt{}, errors.New("connection reset")
	}
	return s.Store.UpdateSimulation(ctx, a)
}

var (
	owner    = user.User{ID: "owner", Role: user.RoleUser, Plan: user.PlanFree}
	stranger = user.User{ID: "stranger", Role: user.RoleUser, Plan: user.PlanPro}
	admin    = user.User{ID: "admin", Role: user.RoleAdmin}
)

func newService(t *testing.T) (*Service, *testClock) {
	t.Helper()
	c := &testClock{t: time.Now().UTC()}
	svc := New(memory.New(), ecosystem.DefaultConfig(), logger.Discard())
	svc.WithClock(c.now)
	return svc, c
}

func hostileCollapse() CreateInput {
	env := ecosystem.Environment{Temperature: 40, Depth: 1000, Salinity: 0, LightLevel: 0}
	return CreateInput{
		Species: []ecosystem.Species{
			{ID: "a", Name: "A", Type: ecosystem.Producer, EnergyRequirement: 5},
			{ID: "b", Name: "B", Type: ecosystem.Producer, EnergyRequirement: 5},
			{ID: "c", Name: "C", Type: ecosystem.Producer, EnergyRequirement: 5},
		},
		Environment: &env,
	}
}

func TestCreateDefaultsToStarterSetup(t *testing.T) {
	svc, _ := newService(t)
	a, err := svc.Create(context.Background(), owner, CreateInput{})
	require.NoError(t, err)
	assert.Equal(t, ecosystem.StatusSetup, a.Status)
	assert.Len(t, a.State.Species, len(starterSpecies))
	assert.Equal(t, ecosystem.DefaultEnvironment(svc.Config()), a.State.Environment)
	assert.NotEmpty(t, a.State.Interactions)
	assert.Nil(t, a.Score)
}

func TestCreateReportsEveryIssue(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.Create(context.Background(), owner, CreateInput{Species: []ecosystem.Species{
		{ID: "x", Name: "X", Type: "fungus", EnergyRequirement: 10},
	}})
	se := apperrors.GetServiceError(err)
	require.NotNil(t, se)
	assert.Equal(t, apperrors.CodeValidation, se.Code)
	issues, ok := se.Details["issues"].([]string)
	require.True(t, ok)
	assert.Len(t, issues, 2)
}

func TestSetupEditsAndStart(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	a, err := svc.Create(ctx, owner, CreateInput{})
	require.NoError(t, err)

	a, err = svc.AddSpecies(ctx, owner, a.ID, ecosystem.Species{ID: " sea-otter ", Name: "Sea Otter", Type: "Consumer", EnergyRequirement: 10, ReproductionRate: 0.2})
	require.NoError(t, err)
	assert.Len(t, a.State.Species, 5)

	a, err = svc.RemoveSpecies(ctx, owner, a.ID, "kelp")
	require.NoError(t, err)
	assert.Len(t, a.State.Species, 4)

	_, err = svc.UpdateEnvironment(ctx, owner, a.ID, ecosystem.Environment{Temperature: 99})
	assert.True(t, apperrors.IsValidation(err))

	a, err = svc.Start(ctx, owner, a.ID)
	require.NoError(t, err)
	assert.Equal(t, ecosystem.StatusRunning, a.Status)
	require.NotNil(t, a.State.StartedAt)

	_, err = svc.AddSpecies(ctx, owner, a.ID, ecosystem.Presets[1])
	assert.True(t, apperrors.IsConflict(err))
}

func TestStepBoundsAndCompletion(t *testing.T) {
	svc, clock := newService(t)
	ctx := context.Background()
	a, err := svc.Create(ctx, owner, CreateInput{})
	require.NoError(t, err)

	_, err = svc.Step(ctx, owner, a.ID, 1)
	assert.True(t, apperrors.IsConflict(err), "stepping before start")

	_, err = svc.Start(ctx, owner, a.ID)
	require.NoError(t, err)

	_, err = svc.Step(ctx, owner, a.ID, MaxStepsPerCall+1)
	assert.True(t, apperrors.IsValidation(err))

	_, err = svc.Result(ctx, owner, a.ID)
	assert.True(t, apperrors.IsConflict(err), "result before finish")

	clock.advance(svc.Config().TimeLimit + time.Second)
	out, err := svc.Step(ctx, owner, a.ID, 10)
	require.NoError(t, err)
	assert.True(t, out.Finished)
	assert.Equal(t, 1, out.Steps)
	assert.Equal(t, ecosystem.StatusCompleted, out.Attempt.Status)
	assert.Equal(t, ecosystem.EndTimeLimit, out.Attempt.State.EndReason)
	require.NotNil(t, out.Attempt.Score)
	require.NotNil(t, out.Attempt.CompletedAt)

	res, err := svc.Result(ctx, owner, a.ID)
	require.NoError(t, err)
	assert.Equal(t, *out.Attempt.Score, res.Score)
}

func TestStepCollapseFails(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	a, err := svc.Create(ctx, owner, hostileCollapse())
	require.NoError(t, err)
	_, err = svc.Start(ctx, owner, a.ID)
	require.NoError(t, err)

	out, err := svc.Step(ctx, owner, a.ID, 0)
	require.NoError(t, err)
	assert.True(t, out.Finished)
	assert.Equal(t, ecosystem.StatusFailed, out.Attempt.Status)
	require.NotNil(t, out.Attempt.Score)
	assert.Zero(t, *out.Attempt.Score)
}

func TestOwnershipIsEnforced(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	a, err := svc.Create(ctx, owner, CreateInput{})
	require.NoError(t, err)

	_, err = svc.Get(ctx, stranger, a.ID)
	assert.True(t, apperrors.IsNotFound(err))
	_, err = svc.Start(ctx, stranger, a.ID)
	assert.True(t, apperrors.IsNotFound(err))
	_, err = svc.Step(ctx, admin, a.ID, 1)
	assert.True(t, apperrors.IsNotFound(err), "admins may read but not drive another user's run")

	got, err := svc.Get(ctx, admin, a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)

	list, err := svc.List(ctx, owner.ID, 0)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestRunningStatesAreCached(t *testing.T) {
	svc, clock := newService(t)
	c := cache.NewMemory()
	svc.WithCache(c, time.Minute)
	ctx := context.Background()

	a, err := svc.Create(ctx, owner, CreateInput{})
	require.NoError(t, err)
	assert.Zero(t, c.Len())

	_, err = svc.Start(ctx, owner, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, c.Len())

	got, err := svc.Get(ctx, owner, a.ID)
	require.NoError(t, err)
	assert.Equal(t, ecosystem.StatusRunning, got.Status)
	_, err = svc.Get(ctx, stranger, a.ID)
	assert.True(t, apperrors.IsNotFound(err), "cached reads still check ownership")

	clock.advance(svc.Config().TimeLimit + time.Second)
	_, err = svc.Step(ctx, owner, a.ID, 1)
	require.NoError(t, err)
	assert.Zero(t, c.Len(), "finished runs leave the cache")
}

func TestRequestFeedbackOnlyOnceAfterFinish(t *testing.T) {
	svc, _ := newService(t)
	reviewer := &stubReviewer{}
	svc.WithReviewer(reviewer)
	ctx := context.Background()

	a, err := svc.Create(ctx, owner, hostileCollapse())
	require.NoError(t, err)
	_, err = svc.RequestFeedback(ctx, owner, a.ID)
	assert.True(t, apperrors.IsConflict(err))

	_, err = svc.Start(ctx, owner, a.ID)
	require.NoError(t, err)
	_, err = svc.Step(ctx, owner, a.ID, 1)
	require.NoError(t, err)

	f, err := svc.RequestFeedback(ctx, owner, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "fb-sim", f.ID)

	got, err := svc.Get(ctx, owner, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "fb-sim", got.FeedbackID)

	_, err = svc.RequestFeedback(ctx, owner, a.ID)
	assert.True(t, apperrors.IsConflict(err))
	_, err = svc.RequestFeedback(ctx, owner, "  "+a.ID+" ")
	assert.True(t, apperrors.IsConflict(err), "padded ids resolve to the same simulation")
	assert.Equal(t, 1, reviewer.calls)
	assert.Zero(t, svc.locks.size())
}

func TestRequestFeedbackDiscardsUnlinkedReview(t *testing.T) {
	c := &testClock{t: time.Now().UTC()}
	svc := New(&flakyStore{Store: memory.New()}, ecosystem.DefaultConfig(), logger.Discard())
	svc.WithClock(c.now)
	reviewer := &stubReviewer{}
	svc.WithReviewer(reviewer)
	ctx := context.Background()

	a, err := svc.Create(ctx, owner, hostileCollapse())
	require.NoError(t, err)
	_, err = svc.Start(ctx, owner, a.ID)
	require.NoError(t, err)
	_, err = svc.Step(ctx, owner, a.ID, 1)
	require.NoError(t, err)

	_, err = svc.RequestFeedback(ctx, owner, a.ID)
	require.Error(t, err)
	assert.Equal(t, []string{"fb-sim"}, reviewer.discarded)

	got, err := svc.Get(ctx, owner, a.ID)
	require.NoError(t, err)
	assert.Empty(t, got.FeedbackID)

	f, err := svc.RequestFeedback(ctx, owner, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "fb-sim", f.ID)
	assert.Equal(t, 2, reviewer.calls)
	assert.Len(t, reviewer.discarded, 1)
}

func TestFailStale(t *testing.T) {
	svc, clock := newService(t)
	ctx := context.Background()

	running, err := svc.Create(ctx, owner, CreateInput{})
	require.NoError(t, err)
	_, err = svc.Start(ctx, owner, running.ID)
	require.NoError(t, err)
	setup, err := svc.Create(ctx, owner, CreateInput{})
	require.NoError(t, err)

	n, err := svc.FailStale(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	clock.advance(2*svc.Config().TimeLimit + time.Minute)
	n, err = svc.FailStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := svc.Get(ctx, owner, running.ID)
	require.NoError(t, err)
	assert.Equal(t, ecosystem.StatusFailed, got.Status)
	assert.Equal(t, EndAbandoned, got.State.EndReason)

	got, err = svc.Get(ctx, owner, setup.ID)
	require.NoError(t, err)
	assert.Equal(t, ecosystem.StatusSetup, got.Status)
}

func TestConcurrentStepsSerialize(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	a, err := svc.Create(ctx, owner, CreateInput{})
	require.NoError(t, err)
	_, err = svc.Start(ctx, owner, a.ID)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = svc.Step(ctx, owner, a.ID, 1)
		}()
	}
	wg.Wait()

	got, err := svc.Get(ctx, owner, a.ID)
	require.NoError(t, err)
	if got.Status == ecosystem.StatusRunning {
		assert.Equal(t, 8, got.State.Tick)
	}
	assert.Zero(t, svc.locks.size())
}
