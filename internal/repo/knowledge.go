package repo

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/google/uuid"

	"boardroom/internal/domain"
)

type KnowledgeFilters struct {
	Role          domain.Role
	KnowledgeType string
	// AsOf excludes entries whose valid_until has passed. Empty disables the check.
	AsOf  string
	Limit int
}

const knowledgeColumns = `id,role,knowledge_type,COALESCE(category,''),entry_key,value_json,confidence,COALESCE(source,''),COALESCE(source_id,''),COALESCE(valid_from,''),COALESCE(valid_until,''),times_referenced,created_at,updated_at`

func scanKnowledge(row interface{ Scan(...any) error }) (domain.KnowledgeEntry, error) {
	var k domain.KnowledgeEntry
	var role, value string
	err := row.Scan(&k.ID, &role, &k.KnowledgeType, &k.Category, &k.Key, &value, &k.Confidence, &k.Source, &k.SourceID, &k.ValidFrom, &k.ValidUntil, &k.TimesReferenced, &k.CreatedAt, &k.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return k, ErrNotFound
	}
	k.Role = domain.Role(role)
	k.Value = []byte(value)
	return k, err
}

// ListKnowledge returns a role's entries ranked by times_referenced then recency.
func (r Repo) ListKnowledge(ctx context.Context, f KnowledgeFilters) ([]domain.KnowledgeEntry, error) {
	query := `SELECT ` + knowledgeColumns + ` FROM knowledge WHERE role=?`
	args := []any{string(f.Role)}
	if f.KnowledgeType != "" {
		query += ` AND knowledge_type=?`
		args = append(args, f.KnowledgeType)
	}
	if f.AsOf != "" {
		query += ` AND (valid_until IS NULL OR valid_until > ?)`
		args = append(args, f.AsOf)
	}
	query += ` ORDER BY times_referenced DESC, updated_at DESC LIMIT ?`
	args = append(args, clampLimit(f.Limit, 20))
	rows, err := r.query(ctx, nil, query, args...)
	if err != nil {
		return nil, soft("knowledge", err)
	}
	defer rows.Close()
	res := []domain.KnowledgeEntry{}
	for rows.Next() {
		k, err := scanKnowledge(rows)
		if err != nil {
			return nil, soft("knowledge", err)
		}
		res = append(res, k)
	}
	return res, soft("knowledge", rows.Err())
}

func (r Repo) GetKnowledge(ctx context.Context, role domain.Role, knowledgeType, key string) (domain.KnowledgeEntry, error) {
	k, err := scanKnowledge(r.queryRow(ctx, nil, `SELECT `+knowledgeColumns+` FROM knowledge WHERE role=? AND knowledge_type=? AND entry_key=?`,
		string(role), knowledgeType, key))
	if errors.Is(err, ErrNotFound) {
		return k, ErrNotFound
	}
	return k, soft("knowledge", err)
}

// UpsertKnowledge writes an entry keyed by (role, knowledge_type, key). On conflict the value,
// category, confidence, source and validity are replaced and times_referenced is kept.
func (r Repo) UpsertKnowledge(ctx context.Context, k domain.KnowledgeEntry) (domain.KnowledgeEntry, error) {
	if k.ID == "" {
		k.ID = uuid.NewString()
	}
	now := r.now()
	if len(k.Value) == 0 {
		k.Value = []byte("{}")
	}
	_, err := r.exec(ctx, nil, `INSERT INTO knowledge(id,role,knowledge_type,category,entry_key,value_json,confidence,source,source_id,valid_from,valid_until,times_referenced,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,0,?,?)
ON CONFLICT(role, knowledge_type, entry_key) DO UPDATE SET
  category=excluded.category,
  value_json=excluded.value_json,
  confidence=excluded.confidence,
  source=excluded.source,
  source_id=excluded.source_id,
  valid_from=excluded.valid_from,
  valid_until=excluded.valid_until,
  updated_at=excluded.updated_at`,
		k.ID, string(k.Role), k.KnowledgeType, nullable(k.Category), k.Key, string(k.Value), k.Confidence,
		nullable(k.Source), nullable(k.SourceID), nullable(k.ValidFrom), nullable(k.ValidUntil), now, now)
	if err != nil {
		return domain.KnowledgeEntry{}, err
	}
	return r.GetKnowledge(ctx, k.Role, k.KnowledgeType, k.Key)
}

// TouchKnowledge increments times_referenced for the given entries.
func (r Repo) TouchKnowledge(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, 0, len(ids))
	for _, id := range ids {
		args = append(args, id)
	}
	_, err := r.exec(ctx, nil, `UPDATE knowledge SET times_referenced = times_referenced + 1 WHERE id IN (`+placeholders+`)`, args...)
	return err
}
