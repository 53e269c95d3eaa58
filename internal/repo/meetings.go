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

const meetingColumns = `id,title,meeting_type,COALESCE(initiated_by,''),COALESCE(trigger_reason,''),participants_json,agenda_json,status,COALESCE(priority,''),COALESCE(scheduled_at,''),COALESCE(started_at,''),COALESCE(completed_at,''),COALESCE(outcome_summary,''),decisions_json,created_at,updated_at`

func scanMeeting(row interface{ Scan(...any) error }) (domain.Meeting, error) {
	var m domain.Meeting
	var participants, agenda string
	var decisions sql.NullString
	err := row.Scan(&m.ID, &m.Title, &m.MeetingType, &m.InitiatedBy, &m.TriggerReason, &participants, &agenda, &m.Status, &m.Priority,
		&m.ScheduledAt, &m.StartedAt, &m.CompletedAt, &m.OutcomeSummary, &decisions, &m.CreatedAt, &m.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return m, ErrNotFound
	}
	if err != nil {
		return m, err
	}
	m.Participants = []domain.Role{}
	if err := json.Unmarshal([]byte(participants), &m.Participants); err != nil {
		return m, fmt.Errorf("decode participants: %w", err)
	}
	m.Agenda = []string{}
	if err := json.Unmarshal([]byte(agenda), &m.Agenda); err != nil {
		return m, fmt.Errorf("decode agenda: %w", err)
	}
	m.DecisionsMade = []domain.DecisionRef{}
	if decisions.Valid && decisions.String != "" {
		if err := json.Unmarshal([]byte(decisions.String), &m.DecisionsMade); err != nil {
			return m, fmt.Errorf("decode decisions_made: %w", err)
		}
	}
	return m, nil
}

func (r Repo) InsertMeeting(ctx context.Context, m domain.Meeting) (domain.Meeting, error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	now := r.now()
	if m.CreatedAt == "" {
		m.CreatedAt = now
	}
	m.UpdatedAt = now
	if m.Status == "" {
		m.Status = domain.MeetingScheduled
	}
	if m.Participants == nil {
		m.Participants = []domain.Role{}
	}
	if m.Agenda == nil {
		m.Agenda = []string{}
	}
	if m.DecisionsMade == nil {
		m.DecisionsMade = []domain.DecisionRef{}
	}
	participants, err := marshalJSON(m.Participants)
	if err != nil {
		return domain.Meeting{}, err
	}
	agenda, err := marshalJSON(m.Agenda)
	if err != nil {
		return domain.Meeting{}, err
	}
	decisions, err := marshalJSON(m.DecisionsMade)
	if err != nil {
		return domain.Meeting{}, err
	}
	_, err = r.exec(ctx, nil, `INSERT INTO meetings(id,title,meeting_type,initiated_by,trigger_reason,participants_json,agenda_json,status,priority,scheduled_at,started_at,completed_at,outcome_summary,decisions_json,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		m.ID, m.Title, m.MeetingType, nullable(m.InitiatedBy), nullable(m.TriggerReason), participants, agenda, m.Status, nullable(m.Priority),
		nullable(m.ScheduledAt), nullable(m.StartedAt), nullable(m.CompletedAt), nullable(m.OutcomeSummary), decisions, m.CreatedAt, m.UpdatedAt)
	if err != nil {
		return domain.Meeting{}, err
	}
	return m, nil
}

func (r Repo) GetMeeting(ctx context.Context, id string) (domain.Meeting, error) {
	m, err := scanMeeting(r.queryRow(ctx, nil, `SELECT `+meetingColumns+` FROM meetings WHERE id=?`, id))
	if errors.Is(err, ErrNotFound) {
		return m, ErrNotFound
	}
	return m, soft("meetings", err)
}

type MeetingFilters struct {
	Status string
	Limit  int
}

func (r Repo) ListMeetings(ctx context.Context, f MeetingFilters) ([]domain.Meeting, error) {
	query := `SELECT ` + meetingColumns + ` FROM meetings`
	var args []any
	if f.Status != "" {
		query += ` WHERE status=?`
		args = append(args, f.Status)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, clampLimit(f.Limit, 50))
	rows, err := r.query(ctx, nil, query, args...)
	if err != nil {
		return nil, soft("meetings", err)
	}
	defer rows.Close()
	res := []domain.Meeting{}
	for rows.Next() {
		m, err := scanMeeting(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

// StartMeeting moves a scheduled meeting to running. It returns ErrNotFound when no scheduled
// meeting with that id exists, so a concurrent run of the same meeting is refused.
func (r Repo) StartMeeting(ctx context.Context, id, startedAt string) error {
	res, err := r.exec(ctx, nil, `UPDATE meetings SET status=?, started_at=?, updated_at=? WHERE id=? AND status=?`,
		domain.MeetingRunning, startedAt, startedAt, id, domain.MeetingScheduled)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// RevertMeeting puts a running meeting back to scheduled so it can be retried.
func (r Repo) RevertMeeting(ctx context.Context, id string) error {
	_, err := r.exec(ctx, nil, `UPDATE meetings SET status=?, started_at=NULL, updated_at=? WHERE id=? AND status=?`,
		domain.MeetingScheduled, r.now(), id, domain.MeetingRunning)
	return err
}

// MeetingOutcome is everything written when a meeting completes.
type MeetingOutcome struct {
	MeetingID   string
	Decision    domain.Decision
	Summary     domain.MeetingStatement
	CompletedAt string
}

// CompleteMeeting persists the decision and the summary statement and marks the meeting
// completed, all in one transaction.
func (r Repo) CompleteMeeting(ctx context.Context, out MeetingOutcome) (domain.Decision, error) {
	var saved domain.Decision
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		d, err := r.insertDecision(ctx, tx, out.Decision)
		if err != nil {
			return fmt.Errorf("insert decision: %w", err)
		}
		saved = d
		stmt := out.Summary
		stmt.MeetingID = out.MeetingID
		if _, err := r.insertStatement(ctx, tx, stmt); err != nil {
			return fmt.Errorf("insert summary: %w", err)
		}
		refs, err := marshalJSON([]domain.DecisionRef{{DecisionID: d.ID, Title: d.Title}})
		if err != nil {
			return err
		}
		res, err := r.exec(ctx, tx, `UPDATE meetings SET status=?, completed_at=?, outcome_summary=?, decisions_json=?, updated_at=? WHERE id=? AND status=?`,
			domain.MeetingCompleted, out.CompletedAt, stmt.Content, refs, out.CompletedAt, out.MeetingID, domain.MeetingRunning)
		if err != nil {
			return fmt.Errorf("complete meeting: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("complete meeting %s: not running", out.MeetingID)
		}
		return nil
	})
	if err != nil {
		return domain.Decision{}, err
	}
	return saved, nil
}

// InsertStatement appends a statement, assigning the next sequence number for its meeting.
func (r Repo) InsertStatement(ctx context.Context, s domain.MeetingStatement) (domain.MeetingStatement, error) {
	var saved domain.MeetingStatement
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		saved, err = r.insertStatement(ctx, tx, s)
		return err
	})
	return saved, err
}

func (r Repo) insertStatement(ctx context.Context, tx *sql.Tx, s domain.MeetingStatement) (domain.MeetingStatement, error) {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.CreatedAt == "" {
		s.CreatedAt = r.now()
	}
	if err := r.queryRow(ctx, tx, `SELECT COALESCE(MAX(seq),0)+1 FROM meeting_statements WHERE meeting_id=?`, s.MeetingID).Scan(&s.Seq); err != nil {
		return domain.MeetingStatement{}, err
	}
	_, err := r.exec(ctx, tx, `INSERT INTO meeting_statements(id,meeting_id,seq,role,message_type,content,data_json,confidence,created_at) VALUES (?,?,?,?,?,?,?,?,?)`,
		s.ID, s.MeetingID, s.Seq, string(s.Role), s.MessageType, s.Content, nullableRaw(s.DataPresented), s.Confidence, s.CreatedAt)
	if err != nil {
		return domain.MeetingStatement{}, err
	}
	return s, nil
}

// ListStatements returns a meeting's statements in persisted order.
func (r Repo) ListStatements(ctx context.Context, meetingID string) ([]domain.MeetingStatement, error) {
	rows, err := r.query(ctx, nil, `SELECT id,meeting_id,seq,role,message_type,content,data_json,confidence,created_at
FROM meeting_statements WHERE meeting_id=? ORDER BY seq ASC`, meetingID)
	if err != nil {
		return nil, soft("meeting_statements", err)
	}
	defer rows.Close()
	res := []domain.MeetingStatement{}
	for rows.Next() {
		var s domain.MeetingStatement
		var role string
		var data sql.NullString
		if err := rows.Scan(&s.ID, &s.MeetingID, &s.Seq, &role, &s.MessageType, &s.Content, &data, &s.Confidence, &s.CreatedAt); err != nil {
			return nil, err
		}
		s.Role = domain.Role(role)
		s.DataPresented = rawOrNil(data)
		res = append(res, s)
	}
	return res, rows.Err()
}
