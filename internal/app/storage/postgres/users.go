package postgres

import (
	"context"
	"time"

	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/app/domain/user"
)

type userRow struct {
	ID          string    `db:"id"`
	Email       string    `db:"email"`
	DisplayName string    `db:"display_name"`
	Role        string    `db:"role"`
	Plan        string    `db:"plan"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

func (r userRow) model() user.User {
	return user.User{
		ID:          r.ID,
		Email:       r.Email,
		DisplayName: r.DisplayName,
		Role:        user.Role(r.Role),
		Plan:        user.Plan(r.Plan),
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

const userColumns = `id, email, display_name, role, plan, created_at, updated_at`

// --- UserStore --------------------------------------------------------------

func (s *Store) CreateUser(ctx context.Context, u user.User) (user.User, error) {
	u.ID = newID(u.ID)
	now := s.now()
	u.CreatedAt = now
	u.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, email, display_name, role, plan, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, u.ID, u.Email, u.DisplayName, string(u.Role), string(u.Plan), u.CreatedAt, u.UpdatedAt)
	if err != nil {
		return user.User{}, err
	}
	return u, nil
}

func (s *Store) UpdateUser(ctx context.Context, u user.User) (user.User, error) {
	existing, err := s.GetUser(ctx, u.ID)
	if err != nil {
		return user.User{}, err
	}
	u.CreatedAt = existing.CreatedAt
	u.UpdatedAt = s.now()

	res, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET email = $2, display_name = $3, role = $4, plan = $5, updated_at = $6
		WHERE id = $1
	`, u.ID, u.Email, u.DisplayName, string(u.Role), string(u.Plan), u.UpdatedAt)
	if err != nil {
		return user.User{}, err
	}
	if err := expectRow("user", u.ID, res); err != nil {
		return user.User{}, err
	}
	return u, nil
}

func (s *Store) GetUser(ctx context.Context, id string) (user.User, error) {
	var row userRow
	if err := s.db.GetContext(ctx, &row, `SELECT `+userColumns+` FROM users WHERE id = $1`, id); err != nil {
		return user.User{}, mapErr("user", id, err)
	}
	return row.model(), nil
}

func (s *Store) ListUsers(ctx context.Context, limit int) ([]user.User, error) {
	var rows []userRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT `+userColumns+` FROM users ORDER BY created_at DESC`+limitClause(limit)); err != nil {
		return nil, err
	}
	out := make([]user.User, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.model())
	}
	return out, nil
}

func (s *Store) DeleteUser(ctx context.Context, id string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if err := expectRow("user", id, res); err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO deleted_users (id, deleted_at) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET deleted_at = EXCLUDED.deleted_at
	`, id, s.now())
	if err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) UserDeleted(ctx context.Context, id string) (bool, error) {
	var deleted bool
	err := s.db.GetContext(ctx, &deleted, `SELECT EXISTS (SELECT 1 FROM deleted_users WHERE id = $1)`, id)
	return deleted, err
}
