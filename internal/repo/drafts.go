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

const draftColumns = `id,role,source_insight_id,action_type,title,payload_json,fingerprint,status,is_executable,requires_external,COALESCE(risk_level,''),execution_result_json,COALESCE(executed_at,''),COALESCE(created_by,''),created_at,updated_at`

func scanDraft(row interface{ Scan(...any) error }) (domain.ActionDraft, error) {
	var d domain.ActionDraft
	var role, payload string
	var executable, external int
	var result sql.NullString
	err := row.Scan(&d.ID, &role, &d.SourceInsightID, &d.ActionType, &d.Title, &payload, &d.Fingerprint, &d.Status, &executable, &external,
		&d.RiskLevel, &result, &d.ExecutedAt, &d.CreatedBy, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return d, ErrNotFound
	}
	if err != nil {
		return d, err
	}
	d.Role = domain.Role(role)
	d.IsExecutable = executable != 0
	d.RequiresExternal = external != 0
	d.ExecutionResult = rawOrNil(result)
	d.Payload = map[string]any{}
	if err := json.Unmarshal([]byte(payload), &d.Payload); err != nil {
		return d, fmt.Errorf("decode draft payload: %w", err)
	}
	return d, nil
}

func (r Repo) InsertDraft(ctx context.Context, d domain.ActionDraft) (domain.ActionDraft, error) {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	now := r.now()
	if d.CreatedAt == "" {
		d.CreatedAt = now
	}
	d.UpdatedAt = now
	if d.Status == "" {
		d.Status = domain.DraftStatusDraft
	}
	if d.Payload == nil {
		d.Payload = map[string]any{}
	}
	payload, err := marshalJSON(d.Payload)
	if err != nil {
		return domain.ActionDraft{}, err
	}
	_, err = r.exec(ctx, nil, `INSERT INTO action_drafts(id,role,source_insight_id,action_type,title,payload_json,fingerprint,status,is_executable,requires_external,risk_level,execution_result_json,executed_at,created_by,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		d.ID, string(d.Role), d.SourceInsightID, d.ActionType, d.Title, payload, d.Fingerprint, d.Status, boolInt(d.IsExecutable), boolInt(d.RequiresExternal),
		nullable(d.RiskLevel), nullableRaw(d.ExecutionResult), nullable(d.ExecutedAt), nullable(d.CreatedBy), d.CreatedAt, d.UpdatedAt)
	if err != nil {
		return domain.ActionDraft{}, err
	}
	return d, nil
}

func (r Repo) GetDraft(ctx context.Context, id string) (domain.ActionDraft, error) {
	d, err := scanDraft(r.queryRow(ctx, nil, `SELECT `+draftColumns+` FROM action_drafts WHERE id=?`, id))
	if errors.Is(err, ErrNotFound) {
		return d, ErrNotFound
	}
	return d, soft("action_drafts", err)
}

// FindOpenDraft returns a draft with the given fingerprint still awaiting confirmation.
func (r Repo) FindOpenDraft(ctx context.Context, fingerprint string) (domain.ActionDraft, error) {
	d, err := scanDraft(r.queryRow(ctx, nil, `SELECT `+draftColumns+` FROM action_drafts WHERE fingerprint=? AND status=? ORDER BY created_at ASC LIMIT 1`,
		fingerprint, domain.DraftStatusDraft))
	if errors.Is(err, ErrNotFound) {
		return d, ErrNotFound
	}
	return d, soft("action_drafts", err)
}

type DraftFilters struct {
	Role   domain.Role
	Status string
	Limit  int
}

func (r Repo) ListDrafts(ctx context.Context, f DraftFilters) ([]domain.ActionDraft, error) {
	query := `SELECT ` + draftColumns + ` FROM action_drafts WHERE 1=1`
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
		return nil, soft("action_drafts", err)
	}
	defer rows.Close()
	res := []domain.ActionDraft{}
	for rows.Next() {
		d, err := scanDraft(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, d)
	}
	return res, rows.Err()
}

// DraftTransition moves a draft out of the draft status.
type DraftTransition struct {
	ID              string
	Status          string
	ExecutionResult json.RawMessage
	ExecutedAt      string
}

// TransitionDraft applies t only while the draft is still in draft status. It returns
// ErrNotFound when the draft is missing or already left draft.
func (r Repo) TransitionDraft(ctx context.Context, t DraftTransition) (domain.ActionDraft, error) {
	res, err := r.exec(ctx, nil, `UPDATE action_drafts SET status=?, execution_result_json=?, executed_at=?, updated_at=? WHERE id=? AND status=?`,
		t.Status, nullableRaw(t.ExecutionResult), nullable(t.ExecutedAt), r.now(), t.ID, domain.DraftStatusDraft)
	if err != nil {
		return domain.ActionDraft{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ActionDraft{}, ErrNotFound
	}
	return r.GetDraft(ctx, t.ID)
}

// SetDraftResult records the outcome of a draft that has already left draft status.
func (r Repo) SetDraftResult(ctx context.Context, id, status string, result json.RawMessage) (domain.ActionDraft, error) {
	res, err := r.exec(ctx, nil, `UPDATE action_drafts SET status=?, execution_result_json=?, updated_at=? WHERE id=?`,
		status, nullableRaw(result), r.now(), id)
	if err != nil {
		return domain.ActionDraft{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ActionDraft{}, ErrNotFound
	}
	return r.GetDraft(ctx, id)
}
