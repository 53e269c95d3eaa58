package repo

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/google/uuid"

	"boardroom/internal/domain"
)

// ListEvents returns the most recent operational events.
func (r Repo) ListEvents(ctx context.Context, limit int) ([]domain.Event, error) {
	rows, err := r.query(ctx, nil, `SELECT id,event_type,COALESCE(entity_type,''),COALESCE(entity_id,''),COALESCE(actor_id,''),metadata_json,created_at
FROM event_log ORDER BY created_at DESC LIMIT ?`, clampLimit(limit, 30))
	if err != nil {
		return nil, soft("event_log", err)
	}
	defer rows.Close()
	res := []domain.Event{}
	for rows.Next() {
		var e domain.Event
		var meta sql.NullString
		if err := rows.Scan(&e.ID, &e.EventType, &e.EntityType, &e.EntityID, &e.ActorID, &meta, &e.CreatedAt); err != nil {
			return nil, soft("event_log", err)
		}
		e.Metadata = rawOrNil(meta)
		res = append(res, e)
	}
	return res, soft("event_log", rows.Err())
}

func (r Repo) InsertEvent(ctx context.Context, e domain.Event) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt == "" {
		e.CreatedAt = r.now()
	}
	_, err := r.exec(ctx, nil, `INSERT INTO event_log(id,event_type,entity_type,entity_id,actor_id,metadata_json,created_at) VALUES (?,?,?,?,?,?,?)`,
		e.ID, e.EventType, nullable(e.EntityType), nullable(e.EntityID), nullable(e.ActorID), nullableRaw(e.Metadata), e.CreatedAt)
	return err
}

const kanbanColumns = `id,COALESCE(board_id,''),COALESCE(column_id,''),title,COALESCE(description,''),COALESCE(status,''),priority,COALESCE(area,''),COALESCE(client_id,''),COALESCE(due_date,''),COALESCE(assigned_to,''),COALESCE(created_by,''),created_at,updated_at`

// ListRecentTasks returns kanban tasks by most recent update.
func (r Repo) ListRecentTasks(ctx context.Context, limit int) ([]domain.KanbanTask, error) {
	rows, err := r.query(ctx, nil, `SELECT `+kanbanColumns+` FROM kanban_tasks ORDER BY updated_at DESC LIMIT ?`, clampLimit(limit, 25))
	if err != nil {
		return nil, soft("kanban_tasks", err)
	}
	defer rows.Close()
	res := []domain.KanbanTask{}
	for rows.Next() {
		var t domain.KanbanTask
		if err := rows.Scan(&t.ID, &t.BoardID, &t.ColumnID, &t.Title, &t.Description, &t.Status, &t.Priority, &t.Area, &t.ClientID, &t.DueDate, &t.AssignedTo, &t.CreatedBy, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, soft("kanban_tasks", err)
		}
		res = append(res, t)
	}
	return res, soft("kanban_tasks", rows.Err())
}

func (r Repo) InsertKanbanTask(ctx context.Context, t domain.KanbanTask) (domain.KanbanTask, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	now := r.now()
	if t.CreatedAt == "" {
		t.CreatedAt = now
	}
	if t.UpdatedAt == "" {
		t.UpdatedAt = now
	}
	if t.Priority == "" {
		t.Priority = "medium"
	}
	_, err := r.exec(ctx, nil, `INSERT INTO kanban_tasks(id,board_id,column_id,title,description,status,priority,area,client_id,due_date,assigned_to,created_by,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, nullable(t.BoardID), nullable(t.ColumnID), t.Title, nullable(t.Description), nullable(t.Status), t.Priority, nullable(t.Area),
		nullable(t.ClientID), nullable(t.DueDate), nullable(t.AssignedTo), nullable(t.CreatedBy), t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return domain.KanbanTask{}, err
	}
	return t, nil
}

func (r Repo) InsertKanbanColumn(ctx context.Context, c domain.KanbanColumn) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	_, err := r.exec(ctx, nil, `INSERT INTO kanban_columns(id,board_id,name,stage_key,position) VALUES (?,?,?,?,?)`,
		c.ID, c.BoardID, c.Name, nullable(c.StageKey), c.Position)
	return err
}

// ResolveKanbanColumn picks the column matching stageKey on a board, falling back to the
// board's first column. An empty boardID searches every board.
func (r Repo) ResolveKanbanColumn(ctx context.Context, boardID, stageKey string) (domain.KanbanColumn, error) {
	scan := func(row *sql.Row) (domain.KanbanColumn, error) {
		var c domain.KanbanColumn
		var stage sql.NullString
		err := row.Scan(&c.ID, &c.BoardID, &c.Name, &stage, &c.Position)
		if errors.Is(err, sql.ErrNoRows) {
			return c, ErrNotFound
		}
		c.StageKey = stage.String
		return c, soft("kanban_columns", err)
	}
	base := `SELECT id,board_id,name,stage_key,position FROM kanban_columns WHERE 1=1`
	var args []any
	if boardID != "" {
		base += ` AND board_id=?`
		args = append(args, boardID)
	}
	if key := strings.TrimSpace(stageKey); key != "" {
		c, err := scan(r.queryRow(ctx, nil, base+` AND stage_key=? ORDER BY position ASC LIMIT 1`, append(append([]any{}, args...), key)...))
		if err == nil || !errors.Is(err, ErrNotFound) {
			return c, err
		}
	}
	return scan(r.queryRow(ctx, nil, base+` ORDER BY position ASC LIMIT 1`, args...))
}

// ListOverdueInvoices returns unpaid invoices due before asOf, earliest first.
func (r Repo) ListOverdueInvoices(ctx context.Context, asOf string, limit int) ([]domain.Invoice, error) {
	rows, err := r.query(ctx, nil, `SELECT id,COALESCE(client_id,''),amount,status,due_date,COALESCE(paid_at,''),created_at
FROM invoices WHERE paid_at IS NULL AND due_date < ? ORDER BY due_date ASC LIMIT ?`, asOf, clampLimit(limit, 30))
	if err != nil {
		return nil, soft("invoices", err)
	}
	defer rows.Close()
	res := []domain.Invoice{}
	for rows.Next() {
		var inv domain.Invoice
		if err := rows.Scan(&inv.ID, &inv.ClientID, &inv.Amount, &inv.Status, &inv.DueDate, &inv.PaidAt, &inv.CreatedAt); err != nil {
			return nil, soft("invoices", err)
		}
		res = append(res, inv)
	}
	return res, soft("invoices", rows.Err())
}

func (r Repo) InsertInvoice(ctx context.Context, inv domain.Invoice) error {
	if inv.ID == "" {
		inv.ID = uuid.NewString()
	}
	if inv.CreatedAt == "" {
		inv.CreatedAt = r.now()
	}
	if inv.Status == "" {
		inv.Status = "open"
	}
	_, err := r.exec(ctx, nil, `INSERT INTO invoices(id,client_id,amount,status,due_date,paid_at,created_at) VALUES (?,?,?,?,?,?,?)`,
		inv.ID, nullable(inv.ClientID), inv.Amount, inv.Status, inv.DueDate, nullable(inv.PaidAt), inv.CreatedAt)
	return err
}

// ListPendingRequests returns HR requests awaiting a decision, newest first.
func (r Repo) ListPendingRequests(ctx context.Context, limit int) ([]domain.EmployeeRequest, error) {
	rows, err := r.query(ctx, nil, `SELECT id,user_id,type,COALESCE(title,''),COALESCE(start_date,''),COALESCE(end_date,''),status,created_at
FROM employee_requests WHERE status='pending' ORDER BY created_at DESC LIMIT ?`, clampLimit(limit, 20))
	if err != nil {
		return nil, soft("employee_requests", err)
	}
	defer rows.Close()
	res := []domain.EmployeeRequest{}
	for rows.Next() {
		var req domain.EmployeeRequest
		if err := rows.Scan(&req.ID, &req.UserID, &req.Type, &req.Title, &req.StartDate, &req.EndDate, &req.Status, &req.CreatedAt); err != nil {
			return nil, soft("employee_requests", err)
		}
		res = append(res, req)
	}
	return res, soft("employee_requests", rows.Err())
}

func (r Repo) InsertEmployeeRequest(ctx context.Context, req domain.EmployeeRequest) error {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.CreatedAt == "" {
		req.CreatedAt = r.now()
	}
	if req.Status == "" {
		req.Status = "pending"
	}
	_, err := r.exec(ctx, nil, `INSERT INTO employee_requests(id,user_id,type,title,start_date,end_date,status,created_at) VALUES (?,?,?,?,?,?,?,?)`,
		req.ID, req.UserID, req.Type, nullable(req.Title), nullable(req.StartDate), nullable(req.EndDate), req.Status, req.CreatedAt)
	return err
}

// ListPredictions returns predictions of one kind at or above minConfidence, most confident first.
func (r Repo) ListPredictions(ctx context.Context, kind string, minConfidence float64, limit int) ([]domain.Prediction, error) {
	rows, err := r.query(ctx, nil, `SELECT id,kind,COALESCE(entity_type,''),COALESCE(entity_id,''),COALESCE(entity_name,''),value,confidence,factors_json,created_at
FROM predictions WHERE kind=? AND confidence >= ? ORDER BY confidence DESC, created_at DESC LIMIT ?`, kind, minConfidence, clampLimit(limit, 60))
	if err != nil {
		return nil, soft("predictions", err)
	}
	defer rows.Close()
	res := []domain.Prediction{}
	for rows.Next() {
		var p domain.Prediction
		var factors sql.NullString
		if err := rows.Scan(&p.ID, &p.Kind, &p.EntityType, &p.EntityID, &p.EntityName, &p.Value, &p.Confidence, &factors, &p.CreatedAt); err != nil {
			return nil, soft("predictions", err)
		}
		p.Factors = rawOrNil(factors)
		res = append(res, p)
	}
	return res, soft("predictions", rows.Err())
}

func (r Repo) InsertPrediction(ctx context.Context, p domain.Prediction) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt == "" {
		p.CreatedAt = r.now()
	}
	_, err := r.exec(ctx, nil, `INSERT INTO predictions(id,kind,entity_type,entity_id,entity_name,value,confidence,factors_json,created_at) VALUES (?,?,?,?,?,?,?,?,?)`,
		p.ID, p.Kind, nullable(p.EntityType), nullable(p.EntityID), nullable(p.EntityName), p.Value, p.Confidence, nullableRaw(p.Factors), p.CreatedAt)
	return err
}

func (r Repo) InsertDirectMessage(ctx context.Context, m domain.DirectMessage) (domain.DirectMessage, error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt == "" {
		m.CreatedAt = r.now()
	}
	_, err := r.exec(ctx, nil, `INSERT INTO direct_messages(id,from_user_id,to_user_id,body,created_at) VALUES (?,?,?,?,?)`,
		m.ID, m.FromUserID, m.ToUserID, m.Body, m.CreatedAt)
	if err != nil {
		return domain.DirectMessage{}, err
	}
	return m, nil
}
