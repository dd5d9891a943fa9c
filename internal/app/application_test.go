package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/app/domain/drill"
	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/app/domain/feedback"
	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/app/services/drills"
	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/app/services/maintenance"
	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/app/services/users"
	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/config"
	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/ecosystem"
	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/pkg/logger"
)

func TestNewDefaultsToMemoryStores(t *testing.T) {
	application, err := New(Stores{}, Deps{}, logger.Discard())
	require.NoError(t, err)

	assert.Equal(t, []string{"users", "drills", "simulations", "feedback", "subscriptions", "maintenance-scheduler"}, application.Services())
	assert.ElementsMatch(t, []string{
		maintenance.JobExpireAttempts,
		maintenance.JobFailSimulations,
		maintenance.JobExpireSubscriptions,
	}, application.Maintenance.Jobs())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, application.Start(ctx))
	require.NoError(t, application.Stop(ctx))
}

func TestNewSkipsDisabledMaintenance(t *testing.T) {
	application, err := New(Stores{}, Deps{Maintenance: &config.MaintenanceConfig{Enabled: false}}, logger.Discard())
	require.NoError(t, err)
	assert.NotContains(t, application.Services(), "maintenance-scheduler")
}

func TestNewRejectsInvalidSimulationConfig(t *testing.T) {
	cfg := ecosystem.DefaultConfig()
	cfg.MinSpecies = 0
	_, err := New(Stores{}, Deps{Simulation: &cfg}, logger.Discard())
	require.Error(t, err)
}

func TestDrillSubmissionProducesHeuristicFeedback(t *testing.T) {
	application, err := New(Stores{}, Deps{}, logger.Discard())
	require.NoError(t, err)
	ctx := context.Background()

	u, err := application.Users.EnsureUser(ctx, users.Identity{ID: "sub-1", Email: "ada@example.com"})
	require.NoError(t, err)

	d, err := application.Drills.CreateDrill(ctx, drills.Input{
		Title:            "Coffee shop revenue",
		Type:             drill.TypeCalculation,
		Difficulty:       drill.DifficultyEasy,
		Prompt:           "Estimate the daily revenue of a coffee shop.",
		TimeLimitSeconds: 600,
	})
	require.NoError(t, err)

	attempt, err := application.Drills.StartAttempt(ctx, u, d.ID)
	require.NoError(t, err)

	sub, err := application.Drills.SubmitAttempt(ctx, u, attempt.ID, "300 customers at $5 each gives $1500 per day.")
	require.NoError(t, err)
	require.NotNil(t, sub.Feedback)
	assert.Equal(t, drill.AttemptEvaluated, sub.Attempt.Status)
	assert.Equal(t, "heuristic", sub.Feedback.Model)

	list, err := application.Feedback.List(ctx, u.ID, feedback.TargetDrill, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, attempt.ID, list[0].TargetID)
}
