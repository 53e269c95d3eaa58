package repo

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"boardroom/internal/domain"
)

func (r Repo) InsertAudit(ctx context.Context, a domain.AuditEntry) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt == "" {
		a.CreatedAt = r.now()
	}
	_, err := r.exec(ctx, nil, `INSERT INTO access_log(id,role,actor_id,action,entity_type,entity_id,details_json,created_at) VALUES (?,?,?,?,?,?,?,?)`,
		a.ID, nullable(string(a.Role)), nullable(a.ActorID), a.Action, nullable(a.EntityType), nullable(a.EntityID), nullableRaw(a.Details), a.CreatedAt)
	return err
}

func (r Repo) ListAudit(ctx context.Context, limit int) ([]domain.AuditEntry, error) {
	rows, err := r.query(ctx, nil, `SELECT id,COALESCE(role,''),COALESCE(actor_id,''),action,COALESCE(entity_type,''),COALESCE(entity_id,''),details_json,created_at
FROM access_log ORDER BY created_at DESC LIMIT ?`, clampLimit(limit, 50))
	if err != nil {
		return nil, soft("access_log", err)
	}
	defer rows.Close()
	res := []domain.AuditEntry{}
	for rows.Next() {
		var a domain.AuditEntry
		var role string
		var details sql.NullString
		if err := rows.Scan(&a.ID, &role, &a.ActorID, &a.Action, &a.EntityType, &a.EntityID, &details, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.Role = domain.Role(role)
		a.Details = rawOrNil(details)
		res = append(res, a)
	}
	return res, rows.Err()
}
