package drills

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/app/domain/drill"
	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/app/domain/feedback"
	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/app/domain/user"
	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/app/metrics"
	feedbacksvc "github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/app/services/feedback"
	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/app/storage"
	apperrors "github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/errors"
	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/platform/cache"
	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/pkg/logger"
)

// SubmissionGrace is how long after the deadline a submission is still accepted.
const SubmissionGrace = 30 * time.Second

const (
	maxTitleLength    = 200
	maxResponseLength = 20000
	maxTimeLimit      = 2 * 60 * 60
	defaultListLimit  = 50
	maxListLimit      = 200
)

var catalogKey = cache.Key("drills", "catalog")

// Evaluator scores submitted responses.
type Evaluator interface {
	EvaluateDrill(ctx context.Context, sub feedbacksvc.DrillSubmission) (feedback.Feedback, error)
}

// Input describes a new drill.
type Input struct {
	Title            string
	Type             drill.Type
	Difficulty       drill.Difficulty
	Prompt           string
	TimeLimitSeconds int
	Premium          bool
	Tags             []string
}

// Patch carries the fields of a drill update. Nil fields are left untouched.
type Patch struct {
	Title            *string
	Type             *drill.Type
	Difficulty       *drill.Difficulty
	Prompt           *string
	TimeLimitSeconds *int
	Premium          *bool
	Tags             []string
}

// Submission is the outcome of SubmitAttempt. Feedback is nil when no
// evaluator is attached or evaluation failed.
type Submission struct {
	Attempt  drill.Attempt      `json:"attempt"`
	Feedback *feedback.Feedback `json:"feedback,omitempty"`
}

// Service manages the drill catalog and timed attempts.
type Service struct {
	store     storage.DrillStore
	evaluator Evaluator
	cache     cache.Cache
	ttl       time.Duration
	now       func() time.Time
	log       *logger.Logger
}

// New constructs a drill service.
func New(store storage.DrillStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("drills")
	}
	return &Service{store: store, now: time.Now, log: log}
}

// WithEvaluator attaches the evaluator used on submission.
func (s *Service) WithEvaluator(e Evaluator) {
	s.evaluator = e
}

// WithCache caches the drill catalog for ttl.
func (s *Service) WithCache(c cache.Cache, ttl time.Duration) {
	s.cache = c
	s.ttl = ttl
}

// WithClock overrides the wall clock.
func (s *Service) WithClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// CreateDrill validates and stores a new drill.
func (s *Service) CreateDrill(ctx context.Context, in Input) (drill.Drill, error) {
	d := drill.Drill{
		Title:            strings.TrimSpace(in.Title),
		Type:             in.Type,
		Difficulty:       in.Difficulty,
		Prompt:           strings.TrimSpace(in.Prompt),
		TimeLimitSeconds: in.TimeLimitSeconds,
		Premium:          in.Premium,
		Tags:             normalizeTags(in.Tags),
	}
	if err := validateDrill(d); err != nil {
		return drill.Drill{}, err
	}
	created, err := s.store.CreateDrill(ctx, d)
	if err != nil {
		return drill.Drill{}, err
	}
	s.invalidate(ctx)
	s.log.WithField("drill_id", created.ID).WithField("type", created.Type).Info("drill created")
	return created, nil
}

// UpdateDrill applies a patch to an existing drill.
func (s *Service) UpdateDrill(ctx context.Context, id string, p Patch) (drill.Drill, error) {
	d, err := s.store.GetDrill(ctx, strings.TrimSpace(id))
	if err != nil {
		return drill.Drill{}, err
	}
	if p.Title != nil {
		d.Title = strings.TrimSpace(*p.Title)
	}
	if p.Type != nil {
		d.Type = *p.Type
	}
	if p.Difficulty != nil {
		d.Difficulty = *p.Difficulty
	}
	if p.Prompt != nil {
		d.Prompt = strings.TrimSpace(*p.Prompt)
	}
	if p.TimeLimitSeconds != nil {
		d.TimeLimitSeconds = *p.TimeLimitSeconds
	}
	if p.Premium != nil {
		d.Premium = *p.Premium
	}
	if p.Tags != nil {
		d.Tags = normalizeTags(p.Tags)
	}
	if err := validateDrill(d); err != nil {
		return drill.Drill{}, err
	}
	updated, err := s.store.UpdateDrill(ctx, d)
	if err != nil {
		return drill.Drill{}, err
	}
	s.invalidate(ctx)
	s.log.WithField("drill_id", updated.ID).Info("drill updated")
	return updated, nil
}

// DeleteDrill removes a drill from the catalog.
func (s *Service) DeleteDrill(ctx context.Context, id string) error {
	if err := s.store.DeleteDrill(ctx, strings.TrimSpace(id)); err != nil {
		return err
	}
	s.invalidate(ctx)
	s.log.WithField("drill_id", id).Info("drill deleted")
	return nil
}

// GetDrill fetches one drill.
func (s *Service) GetDrill(ctx context.Context, id string) (drill.Drill, error) {
	return s.store.GetDrill(ctx, strings.TrimSpace(id))
}

// ListDrills returns the catalog narrowed by filter, ordered by title.
func (s *Service) ListDrills(ctx context.Context, filter drill.Filter) ([]drill.Drill, error) {
	if filter.Type != "" && !filter.Type.Valid() {
		return nil, apperrors.Validationf("unknown drill type %q", filter.Type)
	}
	if filter.Difficulty != "" && !filter.Difficulty.Valid() {
		return nil, apperrors.Validationf("unknown difficulty %q", filter.Difficulty)
	}
	limit := filter.Limit
	if limit <= 0 || limit > maxListLimit {
		limit = defaultListLimit
	}

	catalog, err := s.catalog(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]drill.Drill, 0, len(catalog))
	for _, d := range catalog {
		if filter.Matches(d) {
			out = append(out, d)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// StartAttempt opens a timed attempt for u. Premium drills need premium access.
func (s *Service) StartAttempt(ctx context.Context, u user.User, drillID string) (drill.Attempt, error) {
	d, err := s.store.GetDrill(ctx, strings.TrimSpace(drillID))
	if err != nil {
		return drill.Attempt{}, err
	}
	if d.Premium && !u.HasPremium() {
		return drill.Attempt{}, apperrors.Forbidden("this drill requires a pro subscription")
	}
	now := s.now().UTC()
	a, err := s.store.CreateAttempt(ctx, drill.Attempt{
		DrillID:   d.ID,
		UserID:    u.ID,
		Status:    drill.AttemptInProgress,
		StartedAt: now,
		Deadline:  now.Add(d.TimeLimit()),
	})
	if err != nil {
		return drill.Attempt{}, err
	}
	metrics.RecordDrillAttempt(string(drill.AttemptInProgress))
	s.log.WithField("attempt_id", a.ID).WithField("drill_id", d.ID).WithField("user_id", u.ID).Info("drill attempt started")
	return a, nil
}

// GetAttempt fetches an attempt visible to u.
func (s *Service) GetAttempt(ctx context.Context, u user.User, id string) (drill.Attempt, error) {
	a, err := s.store.GetAttempt(ctx, strings.TrimSpace(id))
	if err != nil {
		return drill.Attempt{}, err
	}
	if a.UserID != u.ID && !u.IsAdmin() {
		return drill.Attempt{}, apperrors.NotFound("attempt", id)
	}
	return a, nil
}

// ListAttempts returns the user's attempts, newest first.
func (s *Service) ListAttempts(ctx context.Context, userID string, limit int) ([]drill.Attempt, error) {
	if limit <= 0 || limit > maxListLimit {
		limit = defaultListLimit
	}
	return s.store.ListAttempts(ctx, userID, limit)
}

// SubmitAttempt records the response and evaluates it. Submissions later than
// the deadline plus SubmissionGrace expire the attempt instead.
func (s *Service) SubmitAttempt(ctx context.Context, u user.User, id, response string) (Submission, error) {
	response = strings.TrimSpace(response)
	if response == "" {
		return Submission{}, apperrors.Validation("response is required")
	}
	if utf8.RuneCountInString(response) > maxResponseLength {
		return Submission{}, apperrors.Validationf("response must be at most %d characters", maxResponseLength)
	}

	a, err := s.GetAttempt(ctx, u, id)
	if err != nil {
		return Submission{}, err
	}
	if a.UserID != u.ID {
		return Submission{}, apperrors.Forbidden("only the owner can submit an attempt")
	}
	if a.Status != drill.AttemptInProgress {
		return Submission{}, apperrors.Conflict("attempt is already " + string(a.Status))
	}

	now := s.now().UTC()
	if now.After(a.Deadline.Add(SubmissionGrace)) {
		a.Status = drill.AttemptExpired
		if _, err := s.store.UpdateAttempt(ctx, a, drill.AttemptInProgress); err != nil {
			return Submission{}, err
		}
		metrics.RecordDrillAttempt(string(drill.AttemptExpired))
		return Submission{}, apperrors.Conflict("attempt expired").
			WithDetails("deadline", a.Deadline).
			WithDetails("status", drill.AttemptExpired)
	}

	a.Response = response
	a.SubmittedAt = &now
	a.Status = drill.AttemptSubmitted
	// Only one concurrent submit wins the in_progress -> submitted transition;
	// the others get a conflict before any evaluation runs.
	a, err = s.store.UpdateAttempt(ctx, a, drill.AttemptInProgress)
	if err != nil {
		return Submission{}, err
	}
	metrics.RecordDrillAttempt(string(drill.AttemptSubmitted))
	log := s.log.WithField("attempt_id", a.ID).WithField("user_id", a.UserID)
	log.Info("drill attempt submitted")

	if s.evaluator == nil {
		return Submission{Attempt: a}, nil
	}
	d, err := s.store.GetDrill(ctx, a.DrillID)
	if err != nil {
		log.WithError(err).Warn("drill lookup for evaluation failed")
		return Submission{Attempt: a}, nil
	}
	f, err := s.evaluator.EvaluateDrill(ctx, feedbacksvc.DrillSubmission{
		UserID:    a.UserID,
		AttemptID: a.ID,
		Drill:     d,
		Response:  response,
		Elapsed:   now.Sub(a.StartedAt),
	})
	if err != nil {
		log.WithError(err).Warn("drill evaluation failed")
		return Submission{Attempt: a}, nil
	}

	score := f.Score
	a.Score = &score
	a.FeedbackID = f.ID
	a.Status = drill.AttemptEvaluated
	a, err = s.store.UpdateAttempt(ctx, a, drill.AttemptSubmitted)
	if err != nil {
		return Submission{}, err
	}
	metrics.RecordDrillAttempt(string(drill.AttemptEvaluated))
	log.WithField("score", score).Info("drill attempt evaluated")
	return Submission{Attempt: a, Feedback: &f}, nil
}

// ExpireStale marks in-progress attempts past their deadline and grace as
// expired and returns how many changed.
func (s *Service) ExpireStale(ctx context.Context) (int, error) {
	cutoff := s.now().UTC().Add(-SubmissionGrace)
	open, err := s.store.ListOpenAttemptsBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	expired := 0
	for _, a := range open {
		a.Status = drill.AttemptExpired
		if _, err := s.store.UpdateAttempt(ctx, a, drill.AttemptInProgress); err != nil {
			if apperrors.IsNotFound(err) || apperrors.IsConflict(err) {
				continue
			}
			return expired, err
		}
		expired++
		metrics.RecordDrillAttempt(string(drill.AttemptExpired))
	}
	if expired > 0 {
		s.log.WithField("count", expired).Info("expired stale drill attempts")
	}
	return expired, nil
}

func (s *Service) catalog(ctx context.Context) ([]drill.Drill, error) {
	if s.cache != nil {
		var cached []drill.Drill
		if hit, err := cache.GetJSON(ctx, s.cache, catalogKey, &cached); err == nil && hit {
			return cached, nil
		}
	}
	all, err := s.store.ListDrills(ctx, drill.Filter{})
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := cache.SetJSON(ctx, s.cache, catalogKey, all, s.ttl); err != nil {
			s.log.WithError(err).Debug("drill catalog cache write failed")
		}
	}
	return all, nil
}

func (s *Service) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, catalogKey); err != nil {
		s.log.WithError(err).Warn("drill catalog cache eviction failed")
	}
}

func validateDrill(d drill.Drill) error {
	var issues []string
	if d.Title == "" {
		issues = append(issues, "title is required")
	} else if utf8.RuneCountInString(d.Title) > maxTitleLength {
		issues = append(issues, "title is too long")
	}
	if !d.Type.Valid() {
		issues = append(issues, "unknown drill type "+string(d.Type))
	}
	if !d.Difficulty.Valid() {
		issues = append(issues, "unknown difficulty "+string(d.Difficulty))
	}
	if d.Prompt == "" {
		issues = append(issues, "prompt is required")
	}
	if d.TimeLimitSeconds <= 0 || d.TimeLimitSeconds > maxTimeLimit {
		issues = append(issues, "time_limit_seconds must be between 1 and 7200")
	}
	if len(issues) == 0 {
		return nil
	}
	return apperrors.Validation(strings.Join(issues, "; ")).WithDetails("issues", issues)
}

func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
