package postgres

import (
	"context"
	"time"

	"github.com/lib/pq"

	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/app/domain/feedback"
)

type feedbackRow struct {
	ID           string         `db:"id"`
	UserID       string         `db:"user_id"`
	TargetType   string         `db:"target_type"`
	TargetID     string         `db:"target_id"`
	Score        int            `db:"score"`
	Summary      string         `db:"summary"`
	Strengths    pq.StringArray `db:"strengths"`
	Improvements pq.StringArray `db:"improvements"`
	Model        string         `db:"model"`
	CreatedAt    time.Time      `db:"created_at"`
}

func (r feedbackRow) model() feedback.Feedback {
	return feedback.Feedback{
		ID:           r.ID,
		UserID:       r.UserID,
		TargetType:   feedback.TargetType(r.TargetType),
		TargetID:     r.TargetID,
		Score:        r.Score,
		Summary:      r.Summary,
		Strengths:    []string(r.Strengths),
		Improvements: []string(r.Improvements),
		Model:        r.Model,
		CreatedAt:    r.CreatedAt,
	}
}

const feedbackColumns = `id, user_id, target_type, target_id, score, summary, strengths, improvements, model, created_at`

// --- FeedbackStore ----------------------------------------------------------

func (s *Store) CreateFeedback(ctx context.Context, f feedback.Feedback) (feedback.Feedback, error) {
	f.ID = newID(f.ID)
	f.CreatedAt = s.now()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO feedback (id, user_id, target_type, target_id, score, summary, strengths, improvements, model, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, f.ID, f.UserID, string(f.TargetType), f.TargetID, f.Score, f.Summary, pq.Array(f.Strengths), pq.Array(f.Improvements), f.Model, f.CreatedAt)
	if err != nil {
		return feedback.Feedback{}, err
	}
	return f, nil
}

func (s *Store) GetFeedback(ctx context.Context, id string) (feedback.Feedback, error) {
	var row feedbackRow
	if err := s.db.GetContext(ctx, &row, `SELECT `+feedbackColumns+` FROM feedback WHERE id = $1`, id); err != nil {
		return feedback.Feedback{}, mapErr("feedback", id, err)
	}
	return row.model(), nil
}

func (s *Store) DeleteFeedback(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM feedback WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return expectRow("feedback", id, res)
}

func (s *Store) ListFeedback(ctx context.Context, userID string, target feedback.TargetType, limit int) ([]feedback.Feedback, error) {
	query := `SELECT ` + feedbackColumns + ` FROM feedback WHERE user_id = $1`
	args := []any{userID}
	if target != "" {
		query += ` AND target_type = $2`
		args = append(args, string(target))
	}
	query += ` ORDER BY created_at DESC` + limitClause(limit)

	var rows []feedbackRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	out := make([]feedback.Feedback, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.model())
	}
	return out, nil
}
