package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"boardroom/internal/domain"
)

const insightColumns = `id,role,category,insight_type,COALESCE(urgency,''),COALESCE(impact_level,''),confidence,title,description,actions_json,status,created_at`

func scanInsight(row interface{ Scan(...any) error }) (domain.Insight, error) {
	var in domain.Insight
	var role, actions string
	err := row.Scan(&in.ID, &role, &in.Category, &in.InsightType, &in.Urgency, &in.ImpactLevel, &in.Confidence, &in.Title, &in.Description, &actions, &in.Status, &in.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return in, ErrNotFound
	}
	if err != nil {
		return in, err
	}
	in.Role = domain.Role(role)
	in.Actions = []domain.RecommendedAction{}
	if err := json.Unmarshal([]byte(actions), &in.Actions); err != nil {
		return in, fmt.Errorf("decode recommended actions: %w", err)
	}
	return in, nil
}

func (r Repo) InsertInsight(ctx context.Context, in domain.Insight) (domain.Insight, error) {
	if in.ID == "" {
		in.ID = uuid.NewString()
	}
	if in.CreatedAt == "" {
		in.CreatedAt = r.now()
	}
	if in.Status == "" {
		in.Status = "active"
	}
	if in.Actions == nil {
		in.Actions = []domain.RecommendedAction{}
	}
	actions, err := marshalJSON(in.Actions)
	if err != nil {
		return domain.Insight{}, err
	}
	_, err = r.exec(ctx, nil, `INSERT INTO insights(id,role,category,insight_type,urgency,impact_level,confidence,title,description,actions_json,status,created_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		in.ID, string(in.Role), in.Category, in.InsightType, nullable(in.Urgency), nullable(in.ImpactLevel), in.Confidence, in.Title, in.Description, actions, in.Status, in.CreatedAt)
	if err != nil {
		return domain.Insight{}, err
	}
	return in, nil
}

func (r Repo) GetInsight(ctx context.Context, id string) (domain.Insight, error) {
	in, err := scanInsight(r.queryRow(ctx, nil, `SELECT `+insightColumns+` FROM insights WHERE id=?`, id))
	if errors.Is(err, ErrNotFound) {
		return in, ErrNotFound
	}
	return in, soft("insights", err)
}

type InsightFilters struct {
	Role   domain.Role
	Status string
	Limit  int
}

func (r Repo) ListInsights(ctx context.Context, f InsightFilters) ([]domain.Insight, error) {
	query := `SELECT ` + insightColumns + ` FROM insights WHERE 1=1`
	var args []any
	if f.Role != "" {
		query += ` AND role=?`
		args = append(args, string(f.Role))
	}
	if f.Status != "" {
		query += ` AND status=?`
		args = append(args, f.Status)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, clampLimit(f.Limit, 50))
	rows, err := r.query(ctx, nil, query, args...)
	if err != nil {
		return nil, soft("insights", err)
	}
	defer rows.Close()
	res := []domain.Insight{}
	for rows.Next() {
		in, err := scanInsight(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, in)
	}
	return res, rows.Err()
}
