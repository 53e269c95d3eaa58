package app

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"boardroom/internal/domain"
	"boardroom/internal/engine"
)

// SeedFile is a demo signal bundle, usually kept next to boardroom.yml.
type SeedFile struct {
	Columns     []SeedColumn     `yaml:"kanban_columns"`
	Events      []SeedEvent      `yaml:"events"`
	Tasks       []SeedTask       `yaml:"tasks"`
	Invoices    []SeedInvoice    `yaml:"invoices"`
	Requests    []SeedRequest    `yaml:"requests"`
	Predictions []SeedPrediction `yaml:"predictions"`
	Insights    []SeedInsight    `yaml:"insights"`
	Knowledge   []SeedKnowledge  `yaml:"knowledge"`
}

type SeedColumn struct {
	ID       string `yaml:"id"`
	BoardID  string `yaml:"board_id"`
	Name     string `yaml:"name"`
	StageKey string `yaml:"stage_key"`
	Position int    `yaml:"position"`
}

type SeedEvent struct {
	Type       string         `yaml:"type"`
	EntityType string         `yaml:"entity_type"`
	EntityID   string         `yaml:"entity_id"`
	Metadata   map[string]any `yaml:"metadata"`
}

type SeedTask struct {
	Title      string `yaml:"title"`
	BoardID    string `yaml:"board_id"`
	ColumnID   string `yaml:"column_id"`
	Status     string `yaml:"status"`
	Priority   string `yaml:"priority"`
	Area       string `yaml:"area"`
	DueDate    string `yaml:"due_date"`
	AssignedTo string `yaml:"assigned_to"`
}

type SeedInvoice struct {
	ClientID string  `yaml:"client_id"`
	Amount   float64 `yaml:"amount"`
	Status   string  `yaml:"status"`
	DueDate  string  `yaml:"due_date"`
	PaidAt   string  `yaml:"paid_at"`
}

type SeedRequest struct {
	UserID    string `yaml:"user_id"`
	Type      string `yaml:"type"`
	Title     string `yaml:"title"`
	StartDate string `yaml:"start_date"`
	EndDate   string `yaml:"end_date"`
	Status    string `yaml:"status"`
}

type SeedPrediction struct {
	Kind       string         `yaml:"kind"`
	EntityType string         `yaml:"entity_type"`
	EntityID   string         `yaml:"entity_id"`
	EntityName string         `yaml:"entity_name"`
	Value      float64        `yaml:"value"`
	Confidence float64        `yaml:"confidence"`
	Factors    map[string]any `yaml:"factors"`
}

type SeedInsight struct {
	Role        string       `yaml:"role"`
	Category    string       `yaml:"category"`
	Urgency     string       `yaml:"urgency"`
	Confidence  float64      `yaml:"confidence"`
	Title       string       `yaml:"title"`
	Description string       `yaml:"description"`
	Actions     []SeedAction `yaml:"actions"`
}

type SeedAction struct {
	Title            string         `yaml:"title"`
	ActionType       string         `yaml:"action_type"`
	RiskLevel        string         `yaml:"risk_level"`
	RequiresExternal bool           `yaml:"requires_external"`
	Payload          map[string]any `yaml:"payload"`
}

type SeedKnowledge struct {
	Role          string  `yaml:"role"`
	KnowledgeType string  `yaml:"knowledge_type"`
	Category      string  `yaml:"category"`
	Key           string  `yaml:"key"`
	Value         any     `yaml:"value"`
	Confidence    float64 `yaml:"confidence"`
	ValidUntil    string  `yaml:"valid_until"`
}

// SeedReport counts what was written.
type SeedReport struct {
	Columns     int `json:"kanban_columns"`
	Events      int `json:"events"`
	Tasks       int `json:"tasks"`
	Invoices    int `json:"invoices"`
	Requests    int `json:"requests"`
	Predictions int `json:"predictions"`
	Insights    int `json:"insights"`
	Knowledge   int `json:"knowledge"`
}

func LoadSeed(path string) (SeedFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return SeedFile{}, err
	}
	var f SeedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return SeedFile{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return f, nil
}

// Seed writes every record of f. Insights and knowledge go through the engine so they are
// validated the same way as API input.
func (rt *Runtime) Seed(ctx context.Context, f SeedFile, actorID string) (SeedReport, error) {
	var rep SeedReport
	r := rt.Repo
	for _, c := range f.Columns {
		if err := r.InsertKanbanColumn(ctx, domain.KanbanColumn{ID: c.ID, BoardID: c.BoardID, Name: c.Name, StageKey: c.StageKey, Position: c.Position}); err != nil {
			return rep, fmt.Errorf("column %q: %w", c.Name, err)
		}
		rep.Columns++
	}
	for _, ev := range f.Events {
		meta, err := rawJSON(ev.Metadata)
		if err != nil {
			return rep, err
		}
		if err := r.InsertEvent(ctx, domain.Event{EventType: ev.Type, EntityType: ev.EntityType, EntityID: ev.EntityID, ActorID: actorID, Metadata: meta}); err != nil {
			return rep, fmt.Errorf("event %q: %w", ev.Type, err)
		}
		rep.Events++
	}
	for _, t := range f.Tasks {
		_, err := r.InsertKanbanTask(ctx, domain.KanbanTask{
			Title: t.Title, BoardID: t.BoardID, ColumnID: t.ColumnID, Status: t.Status,
			Priority: engine.NormalizePriority(t.Priority), Area: t.Area, DueDate: t.DueDate, AssignedTo: t.AssignedTo, CreatedBy: actorID,
		})
		if err != nil {
			return rep, fmt.Errorf("task %q: %w", t.Title, err)
		}
		rep.Tasks++
	}
	for _, inv := range f.Invoices {
		if err := r.InsertInvoice(ctx, domain.Invoice{ClientID: inv.ClientID, Amount: inv.Amount, Status: inv.Status, DueDate: inv.DueDate, PaidAt: inv.PaidAt}); err != nil {
			return rep, fmt.Errorf("invoice: %w", err)
		}
		rep.Invoices++
	}
	for _, req := range f.Requests {
		err := r.InsertEmployeeRequest(ctx, domain.EmployeeRequest{
			UserID: req.UserID, Type: req.Type, Title: req.Title, StartDate: req.StartDate, EndDate: req.EndDate, Status: req.Status,
		})
		if err != nil {
			return rep, fmt.Errorf("request %q: %w", req.Title, err)
		}
		rep.Requests++
	}
	for _, p := range f.Predictions {
		factors, err := rawJSON(p.Factors)
		if err != nil {
			return rep, err
		}
		err = r.InsertPrediction(ctx, domain.Prediction{
			Kind: p.Kind, EntityType: p.EntityType, EntityID: p.EntityID, EntityName: p.EntityName,
			Value: p.Value, Confidence: p.Confidence, Factors: factors,
		})
		if err != nil {
			return rep, fmt.Errorf("prediction %q: %w", p.Kind, err)
		}
		rep.Predictions++
	}
	for _, in := range f.Insights {
		role, err := domain.ParseRole(in.Role)
		if err != nil {
			return rep, err
		}
		actions := make([]domain.RecommendedAction, 0, len(in.Actions))
		for _, a := range in.Actions {
			actions = append(actions, domain.RecommendedAction{
				Title: a.Title, ActionType: a.ActionType, RiskLevel: a.RiskLevel, RequiresExternal: a.RequiresExternal, Payload: a.Payload,
			})
		}
		_, err = rt.Engine.CreateInsight(ctx, domain.Insight{
			Role: role, Category: in.Category, Urgency: in.Urgency, Confidence: in.Confidence,
			Title: in.Title, Description: in.Description, Actions: actions,
		}, actorID)
		if err != nil {
			return rep, fmt.Errorf("insight %q: %w", in.Title, err)
		}
		rep.Insights++
	}
	for _, k := range f.Knowledge {
		role, err := domain.ParseRole(k.Role)
		if err != nil {
			return rep, err
		}
		value, err := rawJSON(k.Value)
		if err != nil {
			return rep, err
		}
		_, err = rt.Engine.PutKnowledge(ctx, engine.PutKnowledgeOptions{
			Role: role, KnowledgeType: k.KnowledgeType, Category: k.Category, Key: k.Key, Value: value,
			Confidence: k.Confidence, Source: "seed", ValidUntil: k.ValidUntil, ActorID: actorID,
		})
		if err != nil {
			return rep, fmt.Errorf("knowledge %q: %w", k.Key, err)
		}
		rep.Knowledge++
	}
	rt.Logger.Info("seed applied",
		zap.Int("events", rep.Events), zap.Int("tasks", rep.Tasks), zap.Int("invoices", rep.Invoices),
		zap.Int("predictions", rep.Predictions), zap.Int("insights", rep.Insights), zap.Int("knowledge", rep.Knowledge))
	return rep, nil
}

func rawJSON(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode seed value: %w", err)
	}
	return b, nil
}
