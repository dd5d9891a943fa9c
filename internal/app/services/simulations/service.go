package simulations

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/app/domain/feedback"
	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/app/domain/simulation"
	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/app/domain/user"
	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/app/metrics"
	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/app/storage"
	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/ecosystem"
	apperrors "github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/errors"
	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/platform/cache"
	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/pkg/logger"
)

const (
	// MaxStepsPerCall bounds how many ticks a single Step call may advance.
	MaxStepsPerCall = 50

	// EndAbandoned is the end reason recorded by FailStale.
	EndAbandoned = "abandoned"

	defaultListLimit = 50
	maxListLimit     = 200
)

// starterSpecies are the preset ids used when Create receives no species.
var starterSpecies = []string{"phytoplankton", "kelp", "zooplankton", "sardine"}

// Reviewer critiques finished simulations. Discard drops a stored critique
// that could not be linked to its simulation.
type Reviewer interface {
	ReviewSimulation(ctx context.Context, attempt simulation.Attempt, result ecosystem.Result) (feedback.Feedback, error)
	Discard(ctx context.Context, feedbackID string) error
}

// CreateInput seeds a new simulation. Empty species and a nil environment
// fall back to the starter presets and the optimal environment.
type CreateInput struct {
	Species     []ecosystem.Species
	Environment *ecosystem.Environment
}

// StepOutcome reports the effect of a Step call.
type StepOutcome struct {
	Attempt  simulation.Attempt `json:"attempt"`
	Steps    int                `json:"steps"`
	Finished bool               `json:"finished"`
}

// Service runs ecosystem simulations on behalf of users.
type Service struct {
	store    storage.SimulationStore
	cfg      ecosystem.Config
	reviewer Reviewer
	cache    cache.Cache
	ttl      time.Duration
	locks    *attemptLocks
	now      func() time.Time
	log      *logger.Logger
}

// New constructs a simulation service using cfg for every engine.
func New(store storage.SimulationStore, cfg ecosystem.Config, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("simulations")
	}
	return &Service{
		store: store,
		cfg:   cfg,
		locks: newAttemptLocks(),
		now:   time.Now,
		log:   log,
	}
}

// WithReviewer attaches the reviewer used by RequestFeedback.
func (s *Service) WithReviewer(r Reviewer) {
	s.reviewer = r
}

// WithCache caches running simulations for ttl.
func (s *Service) WithCache(c cache.Cache, ttl time.Duration) {
	s.cache = c
	s.ttl = ttl
}

// WithClock overrides the wall clock used by engines and staleness checks.
func (s *Service) WithClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Config returns the engine configuration.
func (s *Service) Config() ecosystem.Config { return s.cfg }

// Presets returns the species catalog offered during setup.
func (s *Service) Presets() []ecosystem.Species {
	return append([]ecosystem.Species(nil), ecosystem.Presets...)
}

// Create starts a simulation in SETUP for u.
func (s *Service) Create(ctx context.Context, u user.User, in CreateInput) (simulation.Attempt, error) {
	species := in.Species
	if len(species) == 0 {
		species = presetsByID(starterSpecies)
	}
	env := ecosystem.DefaultEnvironment(s.cfg)
	if in.Environment != nil {
		env = *in.Environment
	}

	eng, err := ecosystem.New(s.cfg, ecosystem.WithClock(s.now))
	if err != nil {
		return simulation.Attempt{}, apperrors.Internal("simulation engine unavailable", err)
	}
	if err := eng.Initialize(trimSpecies(species), env); err != nil {
		return simulation.Attempt{}, engineError(err)
	}

	st := eng.State()
	a, err := s.store.CreateSimulation(ctx, simulation.Attempt{
		UserID: u.ID,
		Status: st.Status,
		State:  st,
	})
	if err != nil {
		return simulation.Attempt{}, err
	}
	s.log.WithField("simulation_id", a.ID).WithField("user_id", u.ID).WithField("species", len(st.Species)).Info("simulation created")
	return a, nil
}

// UpdateEnvironment replaces the environment during setup.
func (s *Service) UpdateEnvironment(ctx context.Context, u user.User, id string, env ecosystem.Environment) (simulation.Attempt, error) {
	return s.mutate(ctx, u, id, func(eng *ecosystem.Engine) error {
		return eng.UpdateEnvironment(env)
	})
}

// AddSpecies adds a species during setup.
func (s *Service) AddSpecies(ctx context.Context, u user.User, id string, sp ecosystem.Species) (simulation.Attempt, error) {
	return s.mutate(ctx, u, id, func(eng *ecosystem.Engine) error {
		return eng.AddSpecies(trimSpecies([]ecosystem.Species{sp})[0])
	})
}

// RemoveSpecies removes a species during setup.
func (s *Service) RemoveSpecies(ctx context.Context, u user.User, id, speciesID string) (simulation.Attempt, error) {
	return s.mutate(ctx, u, id, func(eng *ecosystem.Engine) error {
		return eng.RemoveSpecies(strings.TrimSpace(speciesID))
	})
}

// Start moves the simulation from SETUP to RUNNING.
func (s *Service) Start(ctx context.Context, u user.User, id string) (simulation.Attempt, error) {
	a, err := s.mutate(ctx, u, id, func(eng *ecosystem.Engine) error {
		return eng.Start()
	})
	if err == nil {
		s.log.WithField("simulation_id", a.ID).Info("simulation started")
	}
	return a, err
}

// Step advances a running simulation by up to n ticks, stopping early when it
// finishes. n defaults to 1.
func (s *Service) Step(ctx context.Context, u user.User, id string, n int) (StepOutcome, error) {
	if n == 0 {
		n = 1
	}
	if n < 0 || n > MaxStepsPerCall {
		return StepOutcome{}, apperrors.Validationf("steps must be between 1 and %d", MaxStepsPerCall)
	}
	var out StepOutcome
	a, err := s.mutate(ctx, u, id, func(eng *ecosystem.Engine) error {
		for i := 0; i < n; i++ {
			finished, err := eng.Step()
			if err != nil {
				return err
			}
			out.Steps++
			if finished {
				out.Finished = true
				break
			}
		}
		return nil
	})
	if err != nil {
		return StepOutcome{}, err
	}
	metrics.RecordSimulationSteps(out.Steps)
	out.Attempt = a
	return out, nil
}

// Get returns a simulation visible to u.
func (s *Service) Get(ctx context.Context, u user.User, id string) (simulation.Attempt, error) {
	id = strings.TrimSpace(id)
	if s.cache != nil {
		var cached simulation.Attempt
		if hit, err := cache.GetJSON(ctx, s.cache, cacheKey(id), &cached); err == nil && hit {
			if !visible(u, cached) {
				return simulation.Attempt{}, apperrors.NotFound("simulation", id)
			}
			return cached, nil
		}
	}
	a, err := s.store.GetSimulation(ctx, id)
	if err != nil {
		return simulation.Attempt{}, err
	}
	if !visible(u, a) {
		return simulation.Attempt{}, apperrors.NotFound("simulation", id)
	}
	return a, nil
}

// List returns the user's simulations, newest first.
func (s *Service) List(ctx context.Context, userID string, limit int) ([]simulation.Attempt, error) {
	if limit <= 0 || limit > maxListLimit {
		limit = defaultListLimit
	}
	return s.store.ListSimulations(ctx, userID, limit)
}

// Result scores a finished simulation.
func (s *Service) Result(ctx context.Context, u user.User, id string) (ecosystem.Result, error) {
	a, err := s.Get(ctx, u, id)
	if err != nil {
		return ecosystem.Result{}, err
	}
	return s.result(a)
}

// RequestFeedback asks the reviewer to critique a finished simulation and
// links the feedback to the attempt. Each simulation is reviewed once.
func (s *Service) RequestFeedback(ctx context.Context, u user.User, id string) (feedback.Feedback, error) {
	if s.reviewer == nil {
		return feedback.Feedback{}, apperrors.Internal("simulation reviews are not configured", nil)
	}
	id = strings.TrimSpace(id)
	unlock := s.locks.lock(id)
	defer unlock()

	a, err := s.owned(ctx, u, id)
	if err != nil {
		return feedback.Feedback{}, err
	}
	if !a.Status.Finished() {
		return feedback.Feedback{}, apperrors.Conflict("simulation has not finished")
	}
	if a.FeedbackID != "" {
		return feedback.Feedback{}, apperrors.Conflict("feedback was already requested").WithDetails("feedback_id", a.FeedbackID)
	}
	res, err := s.result(a)
	if err != nil {
		return feedback.Feedback{}, err
	}
	f, err := s.reviewer.ReviewSimulation(ctx, a, res)
	if err != nil {
		return feedback.Feedback{}, err
	}
	a.FeedbackID = f.ID
	if _, err := s.store.UpdateSimulation(ctx, a); err != nil {
		if derr := s.reviewer.Discard(ctx, f.ID); derr != nil {
			s.log.WithError(derr).WithField("feedback_id", f.ID).Error("discard unlinked feedback")
		}
		return feedback.Feedback{}, err
	}
	s.log.WithField("simulation_id", a.ID).WithField("feedback_id", f.ID).Info("simulation reviewed")
	return f, nil
}

// FailStale fails RUNNING simulations idle for more than twice the time
// limit and returns how many changed.
func (s *Service) FailStale(ctx context.Context) (int, error) {
	cutoff := s.now().UTC().Add(-2 * s.cfg.TimeLimit)
	stale, err := s.store.ListSimulationsByStatus(ctx, ecosystem.StatusRunning, cutoff)
	if err != nil {
		return 0, err
	}
	failed := 0
	for _, candidate := range stale {
		ok, err := s.failStale(ctx, candidate.ID, cutoff)
		if err != nil {
			return failed, err
		}
		if ok {
			failed++
		}
	}
	if failed > 0 {
		s.log.WithField("count", failed).Info("failed stale simulations")
	}
	return failed, nil
}

func (s *Service) failStale(ctx context.Context, id string, cutoff time.Time) (bool, error) {
	unlock := s.locks.lock(id)
	defer unlock()

	// Reload under the lock; a step may have landed since the listing.
	a, err := s.store.GetSimulation(ctx, id)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	if a.Status != ecosystem.StatusRunning || !a.UpdatedAt.Before(cutoff) {
		return false, nil
	}
	eng, err := s.restore(a)
	if err != nil {
		s.log.WithError(err).WithField("simulation_id", id).Warn("skipping unreadable simulation")
		return false, nil
	}
	if err := eng.Abort(EndAbandoned); err != nil {
		return false, nil
	}
	if _, err := s.save(ctx, a, eng); err != nil {
		return false, err
	}
	return true, nil
}

// mutate loads an owned simulation under its lock, applies fn to a restored
// engine and persists the resulting state.
func (s *Service) mutate(ctx context.Context, u user.User, id string, fn func(*ecosystem.Engine) error) (simulation.Attempt, error) {
	id = strings.TrimSpace(id)
	unlock := s.locks.lock(id)
	defer unlock()

	a, err := s.owned(ctx, u, id)
	if err != nil {
		return simulation.Attempt{}, err
	}
	eng, err := s.restore(a)
	if err != nil {
		return simulation.Attempt{}, err
	}
	if err := fn(eng); err != nil {
		return simulation.Attempt{}, engineError(err)
	}
	return s.save(ctx, a, eng)
}

func (s *Service) save(ctx context.Context, a simulation.Attempt, eng *ecosystem.Engine) (simulation.Attempt, error) {
	wasFinished := a.Status.Finished()
	a.State = eng.State()
	a.Status = a.State.Status

	var res ecosystem.Result
	if a.Status.Finished() && !wasFinished {
		var err error
		res, err = eng.Result()
		if err != nil {
			return simulation.Attempt{}, apperrors.Internal("score simulation", err)
		}
		score := res.Score
		completed := s.now().UTC()
		a.Score = &score
		a.CompletedAt = &completed
	}

	saved, err := s.store.UpdateSimulation(ctx, a)
	if err != nil {
		return simulation.Attempt{}, err
	}
	s.remember(ctx, saved)

	if saved.Status.Finished() && !wasFinished {
		metrics.RecordSimulationFinished(string(saved.Status), saved.State.EndReason, res.Score)
		s.log.WithField("simulation_id", saved.ID).
			WithField("status", saved.Status).
			WithField("end_reason", saved.State.EndReason).
			WithField("score", res.Score).
			Info("simulation finished")
	}
	return saved, nil
}

// owned loads a simulation the caller may mutate. Other users' simulations
// are reported as missing.
func (s *Service) owned(ctx context.Context, u user.User, id string) (simulation.Attempt, error) {
	a, err := s.store.GetSimulation(ctx, id)
	if err != nil {
		return simulation.Attempt{}, err
	}
	if a.UserID != u.ID {
		return simulation.Attempt{}, apperrors.NotFound("simulation", id)
	}
	return a, nil
}

func (s *Service) restore(a simulation.Attempt) (*ecosystem.Engine, error) {
	eng, err := ecosystem.Restore(s.cfg, a.State, ecosystem.WithClock(s.now))
	if err != nil {
		return nil, apperrors.Internal("simulation state is unreadable", err)
	}
	return eng, nil
}

func (s *Service) result(a simulation.Attempt) (ecosystem.Result, error) {
	eng, err := s.restore(a)
	if err != nil {
		return ecosystem.Result{}, err
	}
	res, err := eng.Result()
	if err != nil {
		return ecosystem.Result{}, engineError(err)
	}
	return res, nil
}

// remember caches running simulations and evicts everything else.
func (s *Service) remember(ctx context.Context, a simulation.Attempt) {
	if s.cache == nil {
		return
	}
	key := cacheKey(a.ID)
	if a.Status == ecosystem.StatusRunning {
		if err := cache.SetJSON(ctx, s.cache, key, a, s.ttl); err != nil {
			s.log.WithError(err).Debug("simulation cache write failed")
		}
		return
	}
	if err := s.cache.Delete(ctx, key); err != nil {
		s.log.WithError(err).Debug("simulation cache eviction failed")
	}
}

func visible(u user.User, a simulation.Attempt) bool {
	return a.UserID == u.ID || u.IsAdmin()
}

func cacheKey(id string) string {
	return cache.Key("simulation", id)
}

// engineError maps engine failures onto the service error taxonomy.
func engineError(err error) error {
	var verr *ecosystem.ValidationError
	switch {
	case errors.As(err, &verr):
		return apperrors.Validation(verr.Error()).WithDetails("issues", verr.Issues)
	case errors.Is(err, ecosystem.ErrInvalidTransition), errors.Is(err, ecosystem.ErrNotFinished):
		return apperrors.Conflict(err.Error())
	case apperrors.GetServiceError(err) != nil:
		return err
	default:
		return apperrors.Internal("simulation engine failure", err)
	}
}

func presetsByID(ids []string) []ecosystem.Species {
	out := make([]ecosystem.Species, 0, len(ids))
	for _, id := range ids {
		for _, p := range ecosystem.Presets {
			if p.ID == id {
				out = append(out, p)
			}
		}
	}
	return out
}

func trimSpecies(in []ecosystem.Species) []ecosystem.Species {
	out := make([]ecosystem.Species, len(in))
	for i, sp := range in {
		sp.ID = strings.TrimSpace(sp.ID)
		sp.Name = strings.TrimSpace(sp.Name)
		sp.Type = ecosystem.SpeciesType(strings.ToLower(strings.TrimSpace(string(sp.Type))))
		out[i] = sp
	}
	return out
}
