package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/app/domain/drill"
	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/app/storage"
)

type drillRow struct {
	ID               string         `db:"id"`
	Title            string         `db:"title"`
	Type             string         `db:"type"`
	Difficulty       string         `db:"difficulty"`
	Prompt           string         `db:"prompt"`
	TimeLimitSeconds int            `db:"time_limit_seconds"`
	Premium          bool           `db:"premium"`
	Tags             pq.StringArray `db:"tags"`
	CreatedAt        time.Time      `db:"created_at"`
	UpdatedAt        time.Time      `db:"updated_at"`
}

func (r drillRow) model() drill.Drill {
	return drill.Drill{
		ID:               r.ID,
		Title:            r.Title,
		Type:             drill.Type(r.Type),
		Difficulty:       drill.Difficulty(r.Difficulty),
		Prompt:           r.Prompt,
		TimeLimitSeconds: r.TimeLimitSeconds,
		Premium:          r.Premium,
		Tags:             []string(r.Tags),
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
}

type attemptRow struct {
	ID          string        `db:"id"`
	DrillID     string        `db:"drill_id"`
	UserID      string        `db:"user_id"`
	Status      string        `db:"status"`
	Response    string        `db:"response"`
	Score       sql.NullInt64 `db:"score"`
	FeedbackID  string        `db:"feedback_id"`
	StartedAt   time.Time     `db:"started_at"`
	Deadline    time.Time     `db:"deadline"`
	SubmittedAt sql.NullTime  `db:"submitted_at"`
	UpdatedAt   time.Time     `db:"updated_at"`
}

func (r attemptRow) model() drill.Attempt {
	return drill.Attempt{
		ID:          r.ID,
		DrillID:     r.DrillID,
		UserID:      r.UserID,
		Status:      drill.AttemptStatus(r.Status),
		Response:    r.Response,
		Score:       intPtr(r.Score),
		FeedbackID:  r.FeedbackID,
		StartedAt:   r.StartedAt,
		Deadline:    r.Deadline,
		SubmittedAt: timePtr(r.SubmittedAt),
		UpdatedAt:   r.UpdatedAt,
	}
}

const (
	drillColumns   = `id, title, type, difficulty, prompt, time_limit_seconds, premium, tags, created_at, updated_at`
	attemptColumns = `id, drill_id, user_id, status, response, score, feedback_id, started_at, deadline, submitted_at, updated_at`
)

// --- DrillStore -------------------------------------------------------------

func (s *Store) CreateDrill(ctx context.Context, d drill.Drill) (drill.Drill, error) {
	d.ID = newID(d.ID)
	now := s.now()
	d.CreatedAt = now
	d.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO drills (id, title, type, difficulty, prompt, time_limit_seconds, premium, tags, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, d.ID, d.Title, string(d.Type), string(d.Difficulty), d.Prompt, d.TimeLimitSeconds, d.Premium, pq.Array(d.Tags), d.CreatedAt, d.UpdatedAt)
	if err != nil {
		return drill.Drill{}, err
	}
	return d, nil
}

func (s *Store) UpdateDrill(ctx context.Context, d drill.Drill) (drill.Drill, error) {
	existing, err := s.GetDrill(ctx, d.ID)
	if err != nil {
		return drill.Drill{}, err
	}
	d.CreatedAt = existing.CreatedAt
	d.UpdatedAt = s.now()

	res, err := s.db.ExecContext(ctx, `
		UPDATE drills
		SET title = $2, type = $3, difficulty = $4, prompt = $5, time_limit_seconds = $6,
		    premium = $7, tags = $8, updated_at = $9
		WHERE id = $1
	`, d.ID, d.Title, string(d.Type), string(d.Difficulty), d.Prompt, d.TimeLimitSeconds, d.Premium, pq.Array(d.Tags), d.UpdatedAt)
	if err != nil {
		return drill.Drill{}, err
	}
	if err := expectRow("drill", d.ID, res); err != nil {
		return drill.Drill{}, err
	}
	return d, nil
}

func (s *Store) GetDrill(ctx context.Context, id string) (drill.Drill, error) {
	var row drillRow
	if err := s.db.GetContext(ctx, &row, `SELECT `+drillColumns+` FROM drills WHERE id = $1`, id); err != nil {
		return drill.Drill{}, mapErr("drill", id, err)
	}
	return row.model(), nil
}

func (s *Store) ListDrills(ctx context.Context, filter drill.Filter) ([]drill.Drill, error) {
	var (
		where []string
		args  []any
	)
	add := func(clause string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if filter.Type != "" {
		add("type = $%d", string(filter.Type))
	}
	if filter.Difficulty != "" {
		add("difficulty = $%d", string(filter.Difficulty))
	}
	if filter.Premium != nil {
		add("premium = $%d", *filter.Premium)
	}

	query := `SELECT ` + drillColumns + ` FROM drills`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY title, id` + limitClause(filter.Limit)

	var rows []drillRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	out := make([]drill.Drill, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.model())
	}
	return out, nil
}

func (s *Store) DeleteDrill(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM drills WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return expectRow("drill", id, res)
}

func (s *Store) CreateAttempt(ctx context.Context, a drill.Attempt) (drill.Attempt, error) {
	a.ID = newID(a.ID)
	a.UpdatedAt = s.now()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO drill_attempts (id, drill_id, user_id, status, response, score, feedback_id, started_at, deadline, submitted_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, a.ID, a.DrillID, a.UserID, string(a.Status), a.Response, nullInt(a.Score), a.FeedbackID, a.StartedAt, a.Deadline, nullTime(a.SubmittedAt), a.UpdatedAt)
	if err != nil {
		return drill.Attempt{}, err
	}
	return a, nil
}

func (s *Store) UpdateAttempt(ctx context.Context, a drill.Attempt, from drill.AttemptStatus) (drill.Attempt, error) {
	a.UpdatedAt = s.now()

	res, err := s.db.ExecContext(ctx, `
		UPDATE drill_attempts
		SET status = $2, response = $3, score = $4, feedback_id = $5, submitted_at = $6, updated_at = $7
		WHERE id = $1 AND status = $8
	`, a.ID, string(a.Status), a.Response, nullInt(a.Score), a.FeedbackID, nullTime(a.SubmittedAt), a.UpdatedAt, string(from))
	if err != nil {
		return drill.Attempt{}, err
	}
	if rows, err := res.RowsAffected(); err == nil && rows == 0 {
		var current string
		if err := s.db.GetContext(ctx, &current, `SELECT status FROM drill_attempts WHERE id = $1`, a.ID); err != nil {
			return drill.Attempt{}, mapErr("attempt", a.ID, err)
		}
		return drill.Attempt{}, storage.StaleAttempt(a.ID, drill.AttemptStatus(current))
	}
	return a, nil
}

func (s *Store) GetAttempt(ctx context.Context, id string) (drill.Attempt, error) {
	var row attemptRow
	if err := s.db.GetContext(ctx, &row, `SELECT `+attemptColumns+` FROM drill_attempts WHERE id = $1`, id); err != nil {
		return drill.Attempt{}, mapErr("attempt", id, err)
	}
	return row.model(), nil
}

func (s *Store) ListAttempts(ctx context.Context, userID string, limit int) ([]drill.Attempt, error) {
	var rows []attemptRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT `+attemptColumns+` FROM drill_attempts WHERE user_id = $1 ORDER BY started_at DESC`+limitClause(limit), userID)
	if err != nil {
		return nil, err
	}
	return attemptModels(rows), nil
}

func (s *Store) ListOpenAttemptsBefore(ctx context.Context, cutoff time.Time) ([]drill.Attempt, error) {
	var rows []attemptRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT `+attemptColumns+` FROM drill_attempts WHERE status = $1 AND deadline < $2`,
		string(drill.AttemptInProgress), cutoff)
	if err != nil {
		return nil, err
	}
	return attemptModels(rows), nil
}

func attemptModels(rows []attemptRow) []drill.Attempt {
	out := make([]drill.Attempt, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.model())
	}
	return out
}
