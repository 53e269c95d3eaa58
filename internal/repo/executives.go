package repo

import (
	"context"
	"database/sql"
	"errors"

	"boardroom/internal/domain"
)

func scanExecutive(row interface{ Scan(...any) error }) (domain.Executive, error) {
	var e domain.Executive
	var role string
	err := row.Scan(&role, &e.Name, &e.Title, &e.SystemPrompt, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return e, ErrNotFound
	}
	e.Role = domain.Role(role)
	return e, err
}

func (r Repo) GetExecutive(ctx context.Context, role domain.Role) (domain.Executive, error) {
	e, err := scanExecutive(r.queryRow(ctx, nil, `SELECT role,name,title,system_prompt,created_at,updated_at FROM executives WHERE role=?`, string(role)))
	if errors.Is(err, ErrNotFound) {
		return e, ErrNotFound
	}
	return e, soft("executives", err)
}

func (r Repo) ListExecutives(ctx context.Context) ([]domain.Executive, error) {
	rows, err := r.query(ctx, nil, `SELECT role,name,title,system_prompt,created_at,updated_at FROM executives ORDER BY role ASC`)
	if err != nil {
		return nil, soft("executives", err)
	}
	defer rows.Close()
	res := []domain.Executive{}
	for rows.Next() {
		e, err := scanExecutive(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// UpsertExecutive writes a persona, replacing name, title and prompt on conflict.
func (r Repo) UpsertExecutive(ctx context.Context, e domain.Executive) (domain.Executive, error) {
	now := r.now()
	_, err := r.exec(ctx, nil, `INSERT INTO executives(role,name,title,system_prompt,created_at,updated_at)
VALUES (?,?,?,?,?,?)
ON CONFLICT(role) DO UPDATE SET name=excluded.name, title=excluded.title, system_prompt=excluded.system_prompt, updated_at=excluded.updated_at`,
		string(e.Role), e.Name, e.Title, e.SystemPrompt, now, now)
	if err != nil {
		return domain.Executive{}, err
	}
	return r.GetExecutive(ctx, e.Role)
}

// EnsureExecutive inserts a persona only when the role has none yet.
func (r Repo) EnsureExecutive(ctx context.Context, e domain.Executive) (bool, error) {
	now := r.now()
	res, err := r.exec(ctx, nil, `INSERT INTO executives(role,name,title,system_prompt,created_at,updated_at)
VALUES (?,?,?,?,?,?) ON CONFLICT(role) DO NOTHING`,
		string(e.Role), e.Name, e.Title, e.SystemPrompt, now, now)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}
