package feedback

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/app/domain/drill"
	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/app/domain/feedback"
	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/app/domain/simulation"
	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/app/domain/user"
	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/app/metrics"
	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/app/storage"
	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/ecosystem"
	apperrors "github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/errors"
	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/platform/llm"
	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/pkg/logger"
)

const defaultListLimit = 50

// Notifier announces stored feedback.
type Notifier interface {
	FeedbackReady(ctx context.Context, u user.User, f feedback.Feedback) error
}

// DrillSubmission is a submitted drill response awaiting evaluation.
type DrillSubmission struct {
	UserID    string
	AttemptID string
	Drill     drill.Drill
	Response  string
	Elapsed   time.Duration
}

// Service produces and stores feedback.
type Service struct {
	store    storage.FeedbackStore
	users    storage.UserStore
	llm      llm.Completer
	notifier Notifier
	log      *logger.Logger
}

// New constructs a feedback service. users may be nil, which disables
// notifications.
func New(store storage.FeedbackStore, users storage.UserStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("feedback")
	}
	return &Service{store: store, users: users, log: log}
}

// WithLLM routes evaluations through the language model. Without one the
// heuristic evaluator is used.
func (s *Service) WithLLM(c llm.Completer) {
	s.llm = c
}

// WithNotifier sends a "feedback ready" email after feedback is stored.
func (s *Service) WithNotifier(n Notifier) {
	s.notifier = n
}

// EvaluateDrill scores a drill response and stores the critique.
func (s *Service) EvaluateDrill(ctx context.Context, sub DrillSubmission) (feedback.Feedback, error) {
	if strings.TrimSpace(sub.UserID) == "" || strings.TrimSpace(sub.AttemptID) == "" {
		return feedback.Feedback{}, apperrors.Validation("user and attempt are required")
	}
	start := time.Now()
	f, evaluator := s.evaluateDrill(ctx, sub)
	metrics.RecordEvaluation(string(feedback.TargetDrill), evaluator, time.Since(start))

	f.UserID = sub.UserID
	f.TargetType = feedback.TargetDrill
	f.TargetID = sub.AttemptID
	return s.persist(ctx, f)
}

// ReviewSimulation critiques a finished simulation. The score is always the
// engine's own score; the model only contributes the narrative.
func (s *Service) ReviewSimulation(ctx context.Context, attempt simulation.Attempt, result ecosystem.Result) (feedback.Feedback, error) {
	if !attempt.Status.Finished() {
		return feedback.Feedback{}, apperrors.Conflict("simulation has not finished")
	}
	start := time.Now()
	f, evaluator := s.reviewSimulation(ctx, attempt, result)
	metrics.RecordEvaluation(string(feedback.TargetSimulation), evaluator, time.Since(start))

	f.UserID = attempt.UserID
	f.TargetType = feedback.TargetSimulation
	f.TargetID = attempt.ID
	f.Score = result.Score
	return s.persist(ctx, f)
}

// Discard removes a stored critique that could not be linked to its target.
func (s *Service) Discard(ctx context.Context, id string) error {
	if err := s.store.DeleteFeedback(ctx, id); err != nil && !apperrors.IsNotFound(err) {
		return err
	}
	s.log.WithField("feedback_id", id).Warn("feedback discarded")
	return nil
}

// Get returns feedback owned by requester. Admins may read any record.
func (s *Service) Get(ctx context.Context, requester user.User, id string) (feedback.Feedback, error) {
	f, err := s.store.GetFeedback(ctx, id)
	if err != nil {
		return feedback.Feedback{}, err
	}
	if f.UserID != requester.ID && !requester.IsAdmin() {
		return feedback.Feedback{}, apperrors.NotFound("feedback", id)
	}
	return f, nil
}

// List returns the user's feedback, newest first, optionally by target type.
func (s *Service) List(ctx context.Context, userID string, target feedback.TargetType, limit int) ([]feedback.Feedback, error) {
	if target != "" && !target.Valid() {
		return nil, apperrors.Validationf("unknown target type %q", target)
	}
	if limit <= 0 || limit > defaultListLimit {
		limit = defaultListLimit
	}
	return s.store.ListFeedback(ctx, userID, target, limit)
}

func (s *Service) persist(ctx context.Context, f feedback.Feedback) (feedback.Feedback, error) {
	stored, err := s.store.CreateFeedback(ctx, f)
	if err != nil {
		return feedback.Feedback{}, err
	}
	s.log.WithField("feedback_id", stored.ID).
		WithField("target_type", stored.TargetType).
		WithField("target_id", stored.TargetID).
		WithField("model", stored.Model).
		Info("feedback stored")
	s.notify(ctx, stored)
	return stored, nil
}

func (s *Service) notify(ctx context.Context, f feedback.Feedback) {
	if s.notifier == nil || s.users == nil {
		return
	}
	u, err := s.users.GetUser(ctx, f.UserID)
	if err != nil {
		s.log.WithError(err).WithField("user_id", f.UserID).Warn("feedback notification skipped")
		return
	}
	if err := s.notifier.FeedbackReady(ctx, u, f); err != nil {
		s.log.WithError(err).WithField("feedback_id", f.ID).Warn("feedback notification failed")
	}
}

func (s *Service) evaluateDrill(ctx context.Context, sub DrillSubmission) (feedback.Feedback, string) {
	if s.llm != nil && strings.TrimSpace(sub.Response) != "" {
		f, err := s.complete(ctx, drillSystemPrompt, drillUserPrompt(sub))
		if err == nil {
			return f, "llm"
		}
		s.log.WithError(err).WithField("attempt_id", sub.AttemptID).Warn("llm drill evaluation failed; using heuristic")
	}
	return HeuristicDrill(sub), HeuristicModel
}

func (s *Service) reviewSimulation(ctx context.Context, attempt simulation.Attempt, result ecosystem.Result) (feedback.Feedback, string) {
	if s.llm != nil {
		f, err := s.complete(ctx, simulationSystemPrompt, simulationUserPrompt(attempt, result))
		if err == nil {
			return f, "llm"
		}
		s.log.WithError(err).WithField("simulation_id", attempt.ID).Warn("llm simulation review failed; using heuristic")
	}
	return HeuristicSimulation(attempt, result), HeuristicModel
}

func (s *Service) complete(ctx context.Context, system, prompt string) (feedback.Feedback, error) {
	out, err := s.llm.Complete(ctx, llm.Request{
		System:      system,
		User:        prompt,
		Temperature: 0.2,
		MaxTokens:   700,
		JSON:        true,
	})
	if err != nil {
		return feedback.Feedback{}, err
	}
	f, err := parseCritique(out.Content)
	if err != nil {
		return feedback.Feedback{}, err
	}
	f.Model = out.Model
	return f, nil
}

func drillUserPrompt(sub DrillSubmission) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Drill type: %s\nDifficulty: %s\nTime limit: %s\nTime used: %s\n\n",
		sub.Drill.Type, sub.Drill.Difficulty, sub.Drill.TimeLimit(), sub.Elapsed.Round(time.Second))
	fmt.Fprintf(&b, "Prompt:\n%s\n\nCandidate response:\n%s\n", sub.Drill.Prompt, sub.Response)
	return b.String()
}

func simulationUserPrompt(attempt simulation.Attempt, result ecosystem.Result) string {
	var b strings.Builder
	st := attempt.State
	fmt.Fprintf(&b, "Outcome: %s (%s) after %d ticks. Score %d/100, rating %s.\n",
		result.Status, result.EndReason, result.Ticks, result.Score, result.Rating)
	fmt.Fprintf(&b, "Environment: temperature %.1f, depth %.1f, salinity %.1f, light %.1f.\n",
		st.Environment.Temperature, st.Environment.Depth, st.Environment.Salinity, st.Environment.LightLevel)
	fmt.Fprintf(&b, "Metrics: diversity %.1f, trophic efficiency %.1f, environmental stress %.1f.\n",
		result.Metrics.Diversity, result.Metrics.TrophicEfficiency, result.Metrics.EnvironmentalStress)
	b.WriteString("Surviving species:\n")
	for _, sp := range st.Species {
		fmt.Fprintf(&b, "- %s (%s, energy %.1f)\n", sp.Name, sp.Type, sp.EnergyRequirement)
	}
	if len(result.Extinct) > 0 {
		fmt.Fprintf(&b, "Extinct: %s\n", strings.Join(result.Extinct, ", "))
	}
	return b.String()
}

const critiqueFormat = `Respond with a JSON object: {"score": integer 0-100, "summary": string, ` +
	`"strengths": [string], "improvements": [string]}. Keep each list to at most four short items.`

const drillSystemPrompt = "You are a senior management consultant grading a candidate's case interview practice drill. " +
	"Judge structure, quantitative rigor, business judgment and clarity of the conclusion. " + critiqueFormat

const simulationSystemPrompt = "You are a management consultant debriefing a candidate on an ecosystem-balancing " +
	"problem-solving game. Explain what drove the outcome and how their hypothesis-driven setup could improve. " + critiqueFormat
