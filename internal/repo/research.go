package repo

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"boardroom/internal/domain"
)

func (r Repo) InsertResearch(ctx context.Context, rec domain.ResearchRecord) (domain.ResearchRecord, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt == "" {
		rec.CreatedAt = r.now()
	}
	if rec.Sources == nil {
		rec.Sources = []string{}
	}
	sources, err := marshalJSON(rec.Sources)
	if err != nil {
		return domain.ResearchRecord{}, err
	}
	_, err = r.exec(ctx, nil, `INSERT INTO research_log(id,role,query,purpose,provider,model,answer,sources_json,created_at) VALUES (?,?,?,?,?,?,?,?,?)`,
		rec.ID, string(rec.Role), rec.Query, nullable(rec.Purpose), rec.Provider, rec.Model, rec.Answer, sources, rec.CreatedAt)
	if err != nil {
		return domain.ResearchRecord{}, err
	}
	return rec, nil
}

// ListResearch returns a role's most recent research results.
func (r Repo) ListResearch(ctx context.Context, role domain.Role, limit int) ([]domain.ResearchRecord, error) {
	rows, err := r.query(ctx, nil, `SELECT id,role,query,COALESCE(purpose,''),provider,model,answer,sources_json,created_at
FROM research_log WHERE role=? ORDER BY created_at DESC LIMIT ?`, string(role), clampLimit(limit, 6))
	if err != nil {
		return nil, soft("research_log", err)
	}
	defer rows.Close()
	res := []domain.ResearchRecord{}
	for rows.Next() {
		var rec domain.ResearchRecord
		var roleStr string
		var sources sql.NullString
		if err := rows.Scan(&rec.ID, &roleStr, &rec.Query, &rec.Purpose, &rec.Provider, &rec.Model, &rec.Answer, &sources, &rec.CreatedAt); err != nil {
			return nil, soft("research_log", err)
		}
		rec.Role = domain.Role(roleStr)
		rec.Sources = unmarshalStrings(sources)
		res = append(res, rec)
	}
	return res, soft("research_log", rows.Err())
}
