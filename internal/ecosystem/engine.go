package ecosystem

import (
	"fmt"
	"strings"
	"time"
)

// Engine owns one simulation state. It is not safe for concurrent use.
type Engine struct {
	cfg   Config
	state State
	now   func() time.Time
}

// Option customizes an Engine.
type Option func(*Engine)

// WithClock replaces the wall clock used for timestamps and the time limit.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// New returns an engine in SETUP with no species.
func New(cfg Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	e.state = State{Status: StatusSetup, Timestamp: e.now().UTC()}
	return e, nil
}

// Restore rebuilds an engine around a previously persisted state.
func Restore(cfg Config, state State, opts ...Option) (*Engine, error) {
	e, err := New(cfg, opts...)
	if err != nil {
		return nil, err
	}
	switch state.Status {
	case StatusSetup, StatusRunning, StatusCompleted, StatusFailed:
	default:
		return nil, fmt.Errorf("restore: unknown status %q", state.Status)
	}
	if state.Status == StatusRunning && state.StartedAt == nil {
		return nil, fmt.Errorf("restore: running state has no start time")
	}
	e.state = state.Clone()
	return e, nil
}

// Config returns the engine configuration.
func (e *Engine) Config() Config { return e.cfg }

// State returns a copy of the current state.
func (e *Engine) State() State { return e.state.Clone() }

// Status returns the current status.
func (e *Engine) Status() Status { return e.state.Status }

// Initialize validates the species and environment, builds the interaction
// table and computes the initial stability score.
func (e *Engine) Initialize(species []Species, env Environment) error {
	if e.state.Status != StatusSetup {
		return fmt.Errorf("initialize: %w", ErrInvalidTransition)
	}
	verr := &ValidationError{}
	if len(species) < e.cfg.MinSpecies || len(species) > e.cfg.MaxSpecies {
		verr.Addf("species count must be between %d and %d, got %d", e.cfg.MinSpecies, e.cfg.MaxSpecies, len(species))
	}
	seen := make(map[string]bool, len(species))
	for _, s := range species {
		validateSpecies(e.cfg, s, verr)
		if s.ID != "" && seen[s.ID] {
			verr.Addf("duplicate species id %s", s.ID)
		}
		seen[s.ID] = true
	}
	validateEnvironment(e.cfg, env, verr)
	if err := verr.orNil(); err != nil {
		return err
	}

	e.state.Species = append([]Species(nil), species...)
	e.state.Environment = env
	e.refreshSetup()
	return nil
}

// AddSpecies adds a species during setup.
func (e *Engine) AddSpecies(s Species) error {
	if e.state.Status != StatusSetup {
		return fmt.Errorf("add species: %w", ErrInvalidTransition)
	}
	verr := &ValidationError{}
	if len(e.state.Species) >= e.cfg.MaxSpecies {
		verr.Addf("species count cannot exceed %d", e.cfg.MaxSpecies)
	}
	validateSpecies(e.cfg, s, verr)
	if e.indexOf(s.ID) >= 0 {
		verr.Addf("duplicate species id %s", s.ID)
	}
	if err := verr.orNil(); err != nil {
		return err
	}
	e.state.Species = append(e.state.Species, s)
	e.refreshSetup()
	return nil
}

// RemoveSpecies removes a species during setup.
func (e *Engine) RemoveSpecies(id string) error {
	if e.state.Status != StatusSetup {
		return fmt.Errorf("remove species: %w", ErrInvalidTransition)
	}
	idx := e.indexOf(id)
	if idx < 0 {
		return &ValidationError{Issues: []string{fmt.Sprintf("species %s does not exist", id)}}
	}
	if len(e.state.Species) <= e.cfg.MinSpecies {
		return &ValidationError{Issues: []string{fmt.Sprintf("species count cannot drop below %d", e.cfg.MinSpecies)}}
	}
	e.state.Species = append(e.state.Species[:idx], e.state.Species[idx+1:]...)
	e.refreshSetup()
	return nil
}

// UpdateEnvironment replaces the environment during setup.
func (e *Engine) UpdateEnvironment(env Environment) error {
	if e.state.Status != StatusSetup {
		return fmt.Errorf("update environment: %w", ErrInvalidTransition)
	}
	verr := &ValidationError{}
	validateEnvironment(e.cfg, env, verr)
	if err := verr.orNil(); err != nil {
		return err
	}
	e.state.Environment = env
	e.refreshSetup()
	return nil
}

// Start moves the simulation from SETUP to RUNNING.
func (e *Engine) Start() error {
	if e.state.Status != StatusSetup {
		return fmt.Errorf("start: %w", ErrInvalidTransition)
	}
	if n := len(e.state.Species); n < e.cfg.MinSpecies || n > e.cfg.MaxSpecies {
		return &ValidationError{Issues: []string{fmt.Sprintf("species count must be between %d and %d, got %d", e.cfg.MinSpecies, e.cfg.MaxSpecies, n)}}
	}
	now := e.now().UTC()
	e.state.Status = StatusRunning
	e.state.StartedAt = &now
	e.state.Timestamp = now
	return nil
}

// Abort fails an unfinished simulation.
func (e *Engine) Abort(reason string) error {
	if e.state.Status.Finished() {
		return fmt.Errorf("abort: %w", ErrInvalidTransition)
	}
	if strings.TrimSpace(reason) == "" {
		reason = EndAborted
	}
	e.state.Status = StatusFailed
	e.state.EndReason = reason
	e.state.Timestamp = e.now().UTC()
	return nil
}

// Step advances the simulation by one tick and reports whether it finished.
func (e *Engine) Step() (bool, error) {
	if e.state.Status != StatusRunning {
		return false, fmt.Errorf("step: %w", ErrInvalidTransition)
	}

	stress := EnvironmentalStress(e.cfg, e.state.Environment) / 100
	effects := make(map[string]float64, len(e.state.Species))
	for _, in := range e.state.Interactions {
		effects[in.SourceID] += effect(in)
	}

	survivors := e.state.Species[:0]
	var extinct []string
	for _, s := range e.state.Species {
		growth := s.ReproductionRate * e.cfg.BaseGrowth
		delta := growth + effects[s.ID]*e.cfg.InteractionScale - stress*e.cfg.StressPenalty
		s.EnergyRequirement = clamp(s.EnergyRequirement+delta, 0, e.cfg.MaxEnergy)
		if s.EnergyRequirement <= 0 {
			extinct = append(extinct, s.ID)
			continue
		}
		survivors = append(survivors, s)
	}
	e.state.Species = survivors
	if len(extinct) > 0 {
		e.state.Extinct = append(e.state.Extinct, extinct...)
		e.state.Interactions = BuildInteractions(e.state.Species)
	}

	now := e.now().UTC()
	e.state.Tick++
	e.state.Timestamp = now
	e.state.Metrics = ComputeMetrics(e.cfg, e.state.Species, e.state.Environment)
	e.state.StabilityScore = Stability(e.state.Metrics)

	switch {
	case len(e.state.Species) == 0:
		e.finish(StatusFailed, EndCollapse)
	case e.state.StabilityScore >= e.cfg.TargetStability:
		e.finish(StatusCompleted, EndStable)
	case now.Sub(*e.state.StartedAt) > e.cfg.TimeLimit:
		e.finish(StatusCompleted, EndTimeLimit)
	}
	return e.state.Status.Finished(), nil
}

// Elapsed is the running time since Start.
func (e *Engine) Elapsed() time.Duration {
	if e.state.StartedAt == nil {
		return 0
	}
	return e.now().Sub(*e.state.StartedAt)
}

func (e *Engine) finish(status Status, reason string) {
	e.state.Status = status
	e.state.EndReason = reason
}

// refreshSetup recomputes derived state after a setup edit.
func (e *Engine) refreshSetup() {
	e.state.Interactions = BuildInteractions(e.state.Species)
	e.state.Metrics = ComputeMetrics(e.cfg, e.state.Species, e.state.Environment)
	e.state.StabilityScore = InitialStability(e.state.Metrics)
	e.state.Timestamp = e.now().UTC()
}

func (e *Engine) indexOf(id string) int {
	for i, s := range e.state.Species {
		if s.ID == id {
			return i
		}
	}
	return -1
}
