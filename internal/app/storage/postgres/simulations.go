package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/app/domain/simulation"
	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/ecosystem"
)

type simulationRow struct {
	ID          string        `db:"id"`
	UserID      string        `db:"user_id"`
	Status      string        `db:"status"`
	State       []byte        `db:"state"`
	Score       sql.NullInt64 `db:"score"`
	FeedbackID  string        `db:"feedback_id"`
	CreatedAt   time.Time     `db:"created_at"`
	UpdatedAt   time.Time     `db:"updated_at"`
	CompletedAt sql.NullTime  `db:"completed_at"`
}

func (r simulationRow) model() (simulation.Attempt, error) {
	a := simulation.Attempt{
		ID:          r.ID,
		UserID:      r.UserID,
		Status:      ecosystem.Status(r.Status),
		Score:       intPtr(r.Score),
		FeedbackID:  r.FeedbackID,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
		CompletedAt: timePtr(r.CompletedAt),
	}
	if len(r.State) > 0 {
		if err := json.Unmarshal(r.State, &a.State); err != nil {
			return simulation.Attempt{}, fmt.Errorf("decode simulation %s state: %w", r.ID, err)
		}
	}
	return a, nil
}

const simulationColumns = `id, user_id, status, state, score, feedback_id, created_at, updated_at, completed_at`

// --- SimulationStore --------------------------------------------------------

func (s *Store) CreateSimulation(ctx context.Context, a simulation.Attempt) (simulation.Attempt, error) {
	a.ID = newID(a.ID)
	now := s.now()
	a.CreatedAt = now
	a.UpdatedAt = now

	stateJSON, err := json.Marshal(a.State)
	if err != nil {
		return simulation.Attempt{}, err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO simulations (id, user_id, status, state, score, feedback_id, created_at, updated_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, a.ID, a.UserID, string(a.Status), stateJSON, nullInt(a.Score), a.FeedbackID, a.CreatedAt, a.UpdatedAt, nullTime(a.CompletedAt))
	if err != nil {
		return simulation.Attempt{}, err
	}
	return a, nil
}

func (s *Store) UpdateSimulation(ctx context.Context, a simulation.Attempt) (simulation.Attempt, error) {
	a.UpdatedAt = s.now()
	stateJSON, err := json.Marshal(a.State)
	if err != nil {
		return simulation.Attempt{}, err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE simulations
		SET status = $2, state = $3, score = $4, feedback_id = $5, updated_at = $6, completed_at = $7
		WHERE id = $1
	`, a.ID, string(a.Status), stateJSON, nullInt(a.Score), a.FeedbackID, a.UpdatedAt, nullTime(a.CompletedAt))
	if err != nil {
		return simulation.Attempt{}, err
	}
	if err := expectRow("simulation", a.ID, res); err != nil {
		return simulation.Attempt{}, err
	}
	return a, nil
}

func (s *Store) GetSimulation(ctx context.Context, id string) (simulation.Attempt, error) {
	var row simulationRow
	if err := s.db.GetContext(ctx, &row, `SELECT `+simulationColumns+` FROM simulations WHERE id = $1`, id); err != nil {
		return simulation.Attempt{}, mapErr("simulation", id, err)
	}
	return row.model()
}

func (s *Store) ListSimulations(ctx context.Context, userID string, limit int) ([]simulation.Attempt, error) {
	var rows []simulationRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT `+simulationColumns+` FROM simulations WHERE user_id = $1 ORDER BY created_at DESC`+limitClause(limit), userID)
	if err != nil {
		return nil, err
	}
	return simulationModels(rows)
}

func (s *Store) ListSimulationsByStatus(ctx context.Context, status ecosystem.Status, updatedBefore time.Time) ([]simulation.Attempt, error) {
	var rows []simulationRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT `+simulationColumns+` FROM simulations WHERE status = $1 AND updated_at < $2`, string(status), updatedBefore)
	if err != nil {
		return nil, err
	}
	return simulationModels(rows)
}

func simulationModels(rows []simulationRow) ([]simulation.Attempt, error) {
	out := make([]simulation.Attempt, 0, len(rows))
	for _, r := range rows {
		a, err := r.model()
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}
