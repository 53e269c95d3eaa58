package repo

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"boardroom/internal/domain"
)

const decisionColumns = `id,decision_type,category,title,description,proposed_by,approved_by_json,COALESCE(meeting_id,''),options_json,COALESCE(chosen_option,''),COALESCE(rationale,''),expected_impact_json,success_metrics_json,implementation_plan_json,status,human_approval_required,created_at,updated_at`

func scanDecision(row interface{ Scan(...any) error }) (domain.Decision, error) {
	var d domain.Decision
	var proposedBy string
	var approved, options, impact, metrics, plan sql.NullString
	var approval int
	err := row.Scan(&d.ID, &d.DecisionType, &d.Category, &d.Title, &d.Description, &proposedBy, &approved, &d.MeetingID, &options,
		&d.ChosenOption, &d.Rationale, &impact, &metrics, &plan, &d.Status, &approval, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return d, ErrNotFound
	}
	if err != nil {
		return d, err
	}
	d.ProposedBy = domain.Role(proposedBy)
	d.ApprovedBy = unmarshalStrings(approved)
	d.OptionsConsidered = rawOrNil(options)
	d.ExpectedImpact = rawOrNil(impact)
	d.SuccessMetrics = rawOrNil(metrics)
	d.ImplementationPlan = rawOrNil(plan)
	d.HumanApprovalRequired = approval != 0
	return d, nil
}

func (r Repo) InsertDecision(ctx context.Context, d domain.Decision) (domain.Decision, error) {
	return r.insertDecision(ctx, nil, d)
}

func (r Repo) insertDecision(ctx context.Context, tx *sql.Tx, d domain.Decision) (domain.Decision, error) {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	now := r.now()
	if d.CreatedAt == "" {
		d.CreatedAt = now
	}
	d.UpdatedAt = now
	if d.ApprovedBy == nil {
		d.ApprovedBy = []string{}
	}
	approved, err := marshalJSON(d.ApprovedBy)
	if err != nil {
		return domain.Decision{}, err
	}
	_, err = r.exec(ctx, tx, `INSERT INTO decisions(id,decision_type,category,title,description,proposed_by,approved_by_json,meeting_id,options_json,chosen_option,rationale,expected_impact_json,success_metrics_json,implementation_plan_json,status,human_approval_required,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		d.ID, d.DecisionType, d.Category, d.Title, d.Description, string(d.ProposedBy), approved, nullable(d.MeetingID),
		nullableRaw(d.OptionsConsidered), nullable(d.ChosenOption), nullable(d.Rationale), nullableRaw(d.ExpectedImpact),
		nullableRaw(d.SuccessMetrics), nullableRaw(d.ImplementationPlan), d.Status, boolInt(d.HumanApprovalRequired), d.CreatedAt, d.UpdatedAt)
	if err != nil {
		return domain.Decision{}, err
	}
	return d, nil
}

func (r Repo) GetDecision(ctx context.Context, id string) (domain.Decision, error) {
	d, err := scanDecision(r.queryRow(ctx, nil, `SELECT `+decisionColumns+` FROM decisions WHERE id=?`, id))
	if errors.Is(err, ErrNotFound) {
		return d, ErrNotFound
	}
	return d, soft("decisions", err)
}

type DecisionFilters struct {
	ProposedBy domain.Role
	MeetingID  string
	Limit      int
}

// ListDecisions returns decisions newest first.
func (r Repo) ListDecisions(ctx context.Context, f DecisionFilters) ([]domain.Decision, error) {
	query := `SELECT ` + decisionColumns + ` FROM decisions WHERE 1=1`
	var args []any
	if f.ProposedBy != "" {
		query += ` AND proposed_by=?`
		args = append(args, string(f.ProposedBy))
	}
	if f.MeetingID != "" {
		query += ` AND meeting_id=?`
		args = append(args, f.MeetingID)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, clampLimit(f.Limit, 10))
	rows, err := r.query(ctx, nil, query, args...)
	if err != nil {
		return nil, soft("decisions", err)
	}
	defer rows.Close()
	res := []domain.Decision{}
	for rows.Next() {
		d, err := scanDecision(rows)
		if err != nil {
			return nil, soft("decisions", err)
		}
		res = append(res, d)
	}
	return res, soft("decisions", rows.Err())
}
