package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/gowebpki/jcs"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.uber.org/zap"

	"boardroom/internal/domain"
	"boardroom/internal/events"
	"boardroom/internal/repo"
)

// Executable action types.
const (
	ActionCreateKanbanTask  = "create_kanban_task"
	ActionSendDirectMessage = "send_direct_message"
	ActionScheduleMeeting   = "schedule_meeting"
)

var payloadSchemas = map[string]string{
	ActionCreateKanbanTask: `{
  "type": "object",
  "required": ["title"],
  "properties": {
    "title": {"type": "string", "minLength": 1},
    "description": {"type": "string"},
    "priority": {"type": "string"},
    "board_id": {"type": "string"},
    "column_id": {"type": "string"},
    "stage_key": {"type": "string"},
    "due_date": {"type": "string"},
    "assigned_to": {"type": "string"},
    "client_id": {"type": "string"},
    "area": {"type": "string"}
  }
}`,
	ActionSendDirectMessage: `{
  "type": "object",
  "required": ["to_user_id", "text"],
  "properties": {
    "to_user_id": {"type": "string", "minLength": 1},
    "text": {"type": "string", "minLength": 1}
  }
}`,
	ActionScheduleMeeting: `{
  "type": "object",
  "required": ["title"],
  "properties": {
    "title": {"type": "string", "minLength": 1},
    "meeting_type": {"type": "string"},
    "participants": {"type": "array", "items": {"enum": ["ceo", "cfo", "coo", "cco", "cmo", "cto", "chro"]}},
    "agenda": {"type": "array", "items": {"type": "string"}},
    "priority": {"type": "string"},
    "scheduled_at": {"type": "string"}
  }
}`,
}

var compiledSchemas = sync.OnceValues(func() (map[string]*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	for name, src := range payloadSchemas {
		if err := c.AddResource(schemaURL(name), strings.NewReader(src)); err != nil {
			return nil, fmt.Errorf("schema %s: %w", name, err)
		}
	}
	out := map[string]*jsonschema.Schema{}
	for name := range payloadSchemas {
		s, err := c.Compile(schemaURL(name))
		if err != nil {
			return nil, fmt.Errorf("compile schema %s: %w", name, err)
		}
		out[name] = s
	}
	return out, nil
})

func schemaURL(name string) string {
	return "mem://boardroom/actions/" + name + ".json"
}

// SupportedAction reports whether actionType has a local executor.
func SupportedAction(actionType string) bool {
	_, ok := payloadSchemas[actionType]
	return ok
}

// IsExecutable applies the confirmation gate: a supported type, not high or critical risk,
// and nothing outside this system to touch.
func IsExecutable(actionType, risk string, requiresExternal bool) bool {
	switch strings.ToLower(risk) {
	case "high", "critical":
		return false
	}
	return SupportedAction(actionType) && !requiresExternal
}

// ValidatePayload checks payload against the schema for actionType.
func ValidatePayload(actionType string, payload map[string]any) error {
	schemas, err := compiledSchemas()
	if err != nil {
		return err
	}
	s, ok := schemas[actionType]
	if !ok {
		return fmt.Errorf("unsupported action type %s", actionType)
	}
	// the validator wants plain JSON values
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	return s.Validate(doc)
}

// Fingerprint identifies a draft by its insight and action using canonical JSON.
func Fingerprint(insightID string, action domain.RecommendedAction, payload map[string]any) (string, error) {
	if payload == nil {
		payload = map[string]any{}
	}
	data, err := json.Marshal(map[string]any{
		"insight_id":  insightID,
		"action_id":   action.ID,
		"action_type": action.ActionType,
		"title":       action.Title,
		"payload":     payload,
	})
	if err != nil {
		return "", err
	}
	canon, err := jcs.Transform(data)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canon)
	return hex.EncodeToString(sum[:]), nil
}

type CreateDraftOptions struct {
	Role            domain.Role
	SourceInsightID string
	Action          domain.RecommendedAction
	ActorID         string
}

// CreateDraft turns one of an insight's recommended actions into a draft awaiting confirmation.
// An identical open draft is returned instead of creating a duplicate.
func (e Engine) CreateDraft(ctx context.Context, opts CreateDraftOptions) (domain.ActionDraft, error) {
	if strings.TrimSpace(opts.SourceInsightID) == "" {
		return domain.ActionDraft{}, ValidationError{Field: "source_insight_id", Message: "source_insight_id is required"}
	}
	insight, err := e.Store.GetInsight(ctx, opts.SourceInsightID)
	if err != nil {
		return domain.ActionDraft{}, fmt.Errorf("insight %s: %w", opts.SourceInsightID, err)
	}
	role := opts.Role
	if role == "" {
		role = insight.Role
	}
	if !role.Valid() {
		return domain.ActionDraft{}, ValidationError{Field: "role", Message: "unknown role " + string(role)}
	}
	if role != insight.Role {
		return domain.ActionDraft{}, ValidationError{Field: "role", Message: fmt.Sprintf("insight belongs to %s", insight.Role)}
	}
	matched, ok := matchAction(insight.Actions, opts.Action)
	if !ok {
		return domain.ActionDraft{}, ValidationError{Field: "action", Message: "action is not among the insight's recommended actions"}
	}
	payload := opts.Action.Payload
	if payload == nil {
		payload = matched.Payload
	}
	if payload == nil {
		payload = map[string]any{}
	}
	executable := IsExecutable(matched.ActionType, matched.RiskLevel, matched.RequiresExternal)
	if executable {
		if err := ValidatePayload(matched.ActionType, payload); err != nil {
			return domain.ActionDraft{}, ValidationError{Field: "payload", Message: err.Error()}
		}
	}
	fp, err := Fingerprint(insight.ID, matched, payload)
	if err != nil {
		return domain.ActionDraft{}, fmt.Errorf("fingerprint: %w", err)
	}
	existing, err := e.Store.FindOpenDraft(ctx, fp)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return domain.ActionDraft{}, err
	}
	title := strings.TrimSpace(opts.Action.Title)
	if title == "" {
		title = matched.Title
	}
	d, err := e.Store.InsertDraft(ctx, domain.ActionDraft{
		Role: role, SourceInsightID: insight.ID, ActionType: matched.ActionType, Title: title, Payload: payload,
		Fingerprint: fp, Status: domain.DraftStatusDraft, IsExecutable: executable, RequiresExternal: matched.RequiresExternal,
		RiskLevel: matched.RiskLevel, CreatedBy: opts.ActorID,
	})
	if err != nil {
		return domain.ActionDraft{}, fmt.Errorf("insert draft: %w", err)
	}
	e.Events.Append(ctx, "draft.created", "action_draft", d.ID, opts.ActorID, events.Payload{"action_type": d.ActionType, "is_executable": d.IsExecutable})
	return d, nil
}

func matchAction(actions []domain.RecommendedAction, want domain.RecommendedAction) (domain.RecommendedAction, bool) {
	if id := strings.TrimSpace(want.ID); id != "" {
		for _, a := range actions {
			if a.ID == id {
				return a, true
			}
		}
		return domain.RecommendedAction{}, false
	}
	title := strings.ToLower(strings.TrimSpace(want.Title))
	if title == "" {
		return domain.RecommendedAction{}, false
	}
	for _, a := range actions {
		if strings.ToLower(strings.TrimSpace(a.Title)) == title {
			return a, true
		}
	}
	return domain.RecommendedAction{}, false
}

type ConfirmDraftOptions struct {
	DraftID string
	ActorID string
}

// ConfirmDraft runs an executable draft's effect. The draft is claimed before the effect runs,
// so a second confirmation is refused even when both arrive together.
func (e Engine) ConfirmDraft(ctx context.Context, opts ConfirmDraftOptions) (domain.ActionDraft, error) {
	d, err := e.Store.GetDraft(ctx, opts.DraftID)
	if err != nil {
		return domain.ActionDraft{}, err
	}
	if d.Status != domain.DraftStatusDraft {
		return domain.ActionDraft{}, InvalidStateError{Entity: "draft", ID: d.ID, Reason: "status is " + d.Status}
	}
	if !d.IsExecutable || d.RequiresExternal {
		return domain.ActionDraft{}, InvalidStateError{Entity: "draft", ID: d.ID, Reason: "needs manual follow-through"}
	}
	executedAt := e.nowString()
	if _, err := e.Store.TransitionDraft(ctx, repo.DraftTransition{ID: d.ID, Status: domain.DraftStatusExecuted, ExecutedAt: executedAt}); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.ActionDraft{}, InvalidStateError{Entity: "draft", ID: d.ID, Reason: "already confirmed or discarded"}
		}
		return domain.ActionDraft{}, err
	}

	result, execErr := e.executeDraft(ctx, d, opts.ActorID)
	if execErr != nil {
		body, _ := json.Marshal(map[string]any{"error": execErr.Error()})
		failed, err := e.Store.SetDraftResult(context.WithoutCancel(ctx), d.ID, domain.DraftStatusFailed, body)
		if err != nil {
			e.log().Error("draft failure not recorded", zap.String("draft_id", d.ID), zap.Error(err))
			failed = d
			failed.Status = domain.DraftStatusFailed
		}
		e.Events.Append(ctx, "draft.failed", "action_draft", d.ID, opts.ActorID, events.Payload{"error": execErr.Error()})
		return failed, &ExecutionError{DraftID: d.ID, Err: execErr}
	}
	body, err := json.Marshal(result)
	if err != nil {
		return domain.ActionDraft{}, err
	}
	done, err := e.Store.SetDraftResult(ctx, d.ID, domain.DraftStatusExecuted, body)
	if err != nil {
		return domain.ActionDraft{}, fmt.Errorf("record draft result: %w", err)
	}
	e.Events.Append(ctx, "draft.executed", "action_draft", d.ID, opts.ActorID, events.Payload{"action_type": d.ActionType})
	e.Events.Audit(ctx, d.Role, opts.ActorID, "draft.confirm", "action_draft", d.ID, events.Payload{"action_type": d.ActionType})
	return done, nil
}

type DiscardDraftOptions struct {
	DraftID string
	ActorID string
}

func (e Engine) DiscardDraft(ctx context.Context, opts DiscardDraftOptions) (domain.ActionDraft, error) {
	d, err := e.Store.GetDraft(ctx, opts.DraftID)
	if err != nil {
		return domain.ActionDraft{}, err
	}
	if d.Status != domain.DraftStatusDraft {
		return domain.ActionDraft{}, InvalidStateError{Entity: "draft", ID: d.ID, Reason: "status is " + d.Status}
	}
	out, err := e.Store.TransitionDraft(ctx, repo.DraftTransition{ID: d.ID, Status: domain.DraftStatusDiscarded})
	if errors.Is(err, repo.ErrNotFound) {
		return domain.ActionDraft{}, InvalidStateError{Entity: "draft", ID: d.ID, Reason: "already confirmed or discarded"}
	}
	if err != nil {
		return domain.ActionDraft{}, err
	}
	e.Events.Append(ctx, "draft.discarded", "action_draft", d.ID, opts.ActorID, nil)
	return out, nil
}

func (e Engine) executeDraft(ctx context.Context, d domain.ActionDraft, actorID string) (map[string]any, error) {
	p := d.Payload
	switch d.ActionType {
	case ActionCreateKanbanTask:
		title := payloadString(p, "title")
		if title == "" {
			return nil, errors.New("title is required")
		}
		columnID := payloadString(p, "column_id")
		boardID := payloadString(p, "board_id")
		if columnID == "" {
			col, err := e.Store.ResolveKanbanColumn(ctx, boardID, payloadString(p, "stage_key"))
			switch {
			case err == nil:
				columnID = col.ID
				boardID = col.BoardID
			case errors.Is(err, repo.ErrNotFound):
				return nil, errors.New("no kanban column available")
			default:
				return nil, fmt.Errorf("resolve column: %w", err)
			}
		}
		creator := actorID
		if creator == "" {
			creator = "boardroom:" + string(d.Role)
		}
		task, err := e.Store.InsertKanbanTask(ctx, domain.KanbanTask{
			BoardID: boardID, ColumnID: columnID, Title: title, Description: payloadString(p, "description"),
			Status: "todo", Priority: NormalizePriority(payloadString(p, "priority")), Area: payloadString(p, "area"),
			ClientID: payloadString(p, "client_id"), DueDate: payloadString(p, "due_date"), AssignedTo: payloadString(p, "assigned_to"),
			CreatedBy: creator,
		})
		if err != nil {
			return nil, fmt.Errorf("create task: %w", err)
		}
		return map[string]any{"task_id": task.ID, "column_id": task.ColumnID, "priority": task.Priority}, nil
	case ActionSendDirectMessage:
		to, text := payloadString(p, "to_user_id"), payloadString(p, "text")
		if to == "" || text == "" {
			return nil, errors.New("to_user_id and text are required")
		}
		from := actorID
		if from == "" {
			from = "boardroom:" + string(d.Role)
		}
		msg, err := e.Store.InsertDirectMessage(ctx, domain.DirectMessage{FromUserID: from, ToUserID: to, Body: text})
		if err != nil {
			return nil, fmt.Errorf("send message: %w", err)
		}
		return map[string]any{"message_id": msg.ID, "to_user_id": to}, nil
	case ActionScheduleMeeting:
		var participants []domain.Role
		for _, r := range payloadStrings(p, "participants") {
			participants = append(participants, domain.Role(r))
		}
		m, err := e.ScheduleMeeting(ctx, ScheduleMeetingOptions{
			Title: payloadString(p, "title"), MeetingType: payloadString(p, "meeting_type"), Participants: participants,
			Agenda: payloadStrings(p, "agenda"), Priority: payloadString(p, "priority"), ScheduledAt: payloadString(p, "scheduled_at"),
			InitiatedBy: actorID, TriggerReason: "action_draft",
		})
		if err != nil {
			return nil, err
		}
		return map[string]any{"meeting_id": m.ID}, nil
	}
	return nil, fmt.Errorf("unsupported action type %s", d.ActionType)
}

// NormalizePriority maps free-form priorities onto low, medium, high or urgent.
func NormalizePriority(p string) string {
	switch strings.ToLower(strings.TrimSpace(p)) {
	case "low", "baixa":
		return "low"
	case "high", "alta":
		return "high"
	case "urgent", "urgente", "critical", "critica", "crítica":
		return "urgent"
	default:
		return "medium"
	}
}

func payloadString(p map[string]any, key string) string {
	v, ok := p[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(fmt.Sprint(v))
}

func payloadStrings(p map[string]any, key string) []string {
	var out []string
	switch v := p[key].(type) {
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
	case []string:
		for _, s := range v {
			if strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
	}
	return out
}
