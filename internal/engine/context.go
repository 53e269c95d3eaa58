package engine

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"boardroom/internal/domain"
	"boardroom/internal/repo"
)

type ContextOptions struct {
	Role    domain.Role
	ActorID string
	// PredictionMinConfidence overrides the configured threshold when set.
	PredictionMinConfidence *float64
	IncludePredictions      bool
	IncludeEventLog         bool
	IncludeKanban           bool
	TouchKnowledge          bool
}

// FullContext returns options that include every optional source.
func FullContext(role domain.Role, actorID string) ContextOptions {
	return ContextOptions{Role: role, ActorID: actorID, IncludePredictions: true, IncludeEventLog: true, IncludeKanban: true}
}

// ClampConfidence bounds a prediction threshold to 0..100.
func ClampConfidence(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	}
	return v
}

// BuildContext aggregates the signals one executive sees. Source failures are listed in Missing
// and never returned as errors; only an invalid role is.
func (e Engine) BuildContext(ctx context.Context, opts ContextOptions) (domain.ExecutiveContext, error) {
	if !opts.Role.Valid() {
		return domain.ExecutiveContext{}, ValidationError{Field: "role", Message: "unknown role " + string(opts.Role)}
	}
	ctx, span := tracer.Start(ctx, "engine.BuildContext", trace.WithAttributes(attribute.String("role", string(opts.Role))))
	defer span.End()

	caps := e.cfg().Context
	now := e.nowString()
	out := domain.ExecutiveContext{
		GeneratedAt: now,
		Role:        opts.Role,
		Predictions: []domain.Prediction{},
		Missing:     []string{},
		Data: domain.ContextData{
			EventLog:        []domain.Event{},
			RecentTasks:     []domain.KanbanTask{},
			OverdueInvoices: []domain.Invoice{},
			PendingRequests: []domain.EmployeeRequest{},
			Knowledge:       []domain.KnowledgeEntry{},
			RecentDecisions: []domain.Decision{},
			RecentResearch:  []domain.ResearchRecord{},
		},
	}
	miss := func(source string, err error) {
		out.Missing = append(out.Missing, source)
		lvl := e.log().Warn
		if errors.Is(err, repo.ErrSourceMissing) || errors.Is(err, repo.ErrNotFound) {
			lvl = e.log().Debug
		}
		lvl("context source unavailable", zap.String("role", string(opts.Role)), zap.String("source", source), zap.Error(err))
	}

	if opts.IncludeEventLog {
		if v, err := e.Store.ListEvents(ctx, caps.Events); err != nil {
			miss("event_log", err)
		} else {
			out.Data.EventLog = orEmpty(v)
		}
	}
	if opts.IncludeKanban {
		if v, err := e.Store.ListRecentTasks(ctx, caps.Tasks); err != nil {
			miss("kanban_tasks", err)
		} else {
			out.Data.RecentTasks = orEmpty(v)
		}
	}
	if opts.Role == domain.RoleCFO {
		if v, err := e.Store.ListOverdueInvoices(ctx, now, caps.Invoices); err != nil {
			miss("invoices", err)
		} else {
			out.Data.OverdueInvoices = orEmpty(v)
		}
	}
	if opts.Role == domain.RoleCHRO {
		if v, err := e.Store.ListPendingRequests(ctx, caps.Requests); err != nil {
			miss("employee_requests", err)
		} else {
			out.Data.PendingRequests = orEmpty(v)
		}
	}
	if ex, err := e.Store.GetExecutive(ctx, opts.Role); err != nil {
		miss("executives", err)
	} else {
		out.Data.Executive = &ex
	}
	if v, err := e.Store.ListKnowledge(ctx, repo.KnowledgeFilters{Role: opts.Role, AsOf: now, Limit: caps.Knowledge}); err != nil {
		miss("knowledge", err)
	} else {
		out.Data.Knowledge = orEmpty(v)
	}
	if v, err := e.Store.ListDecisions(ctx, repo.DecisionFilters{ProposedBy: opts.Role, Limit: caps.Decisions}); err != nil {
		miss("decisions", err)
	} else {
		out.Data.RecentDecisions = orEmpty(v)
	}
	if v, err := e.Store.ListResearch(ctx, opts.Role, caps.Research); err != nil {
		miss("research_log", err)
	} else {
		out.Data.RecentResearch = orEmpty(v)
	}
	if opts.IncludePredictions {
		minConf := caps.PredictionMinConfidence
		if opts.PredictionMinConfidence != nil {
			minConf = *opts.PredictionMinConfidence
		}
		preds, err := e.fetchPredictions(ctx, opts.Role, ClampConfidence(minConf), caps.Predictions)
		if err != nil {
			miss("predictions", err)
		}
		out.Predictions = preds
	}
	if opts.TouchKnowledge && len(out.Data.Knowledge) > 0 {
		e.touchKnowledge(ctx, out.Data.Knowledge, caps.TouchLimit)
	}
	span.SetAttributes(attribute.Int("missing", len(out.Missing)), attribute.Int("predictions", len(out.Predictions)))
	return out, nil
}

const defaultPredictionCap = 60

// fetchPredictions reads every kind for role concurrently and concatenates them in kind order up
// to limit. A failing kind is skipped and reported through the returned error.
func (e Engine) fetchPredictions(ctx context.Context, role domain.Role, minConf float64, limit int) ([]domain.Prediction, error) {
	if limit <= 0 {
		limit = defaultPredictionCap
	}
	kinds := PredictionKinds(role)
	results := make([][]domain.Prediction, len(kinds))
	errs := make([]error, len(kinds))
	var g errgroup.Group
	g.SetLimit(4)
	for i, kind := range kinds {
		g.Go(func() error {
			results[i], errs[i] = e.Store.ListPredictions(ctx, kind, minConf, limit)
			return nil
		})
	}
	_ = g.Wait()

	out := []domain.Prediction{}
	for i := range kinds {
		if errs[i] != nil {
			continue
		}
		for _, p := range results[i] {
			if len(out) >= limit {
				break
			}
			out = append(out, p)
		}
	}
	return out, errors.Join(errs...)
}

func (e Engine) touchKnowledge(ctx context.Context, entries []domain.KnowledgeEntry, limit int) {
	if limit <= 0 {
		limit = 10
	}
	ids := make([]string, 0, limit)
	for _, k := range entries {
		if len(ids) == limit {
			break
		}
		ids = append(ids, k.ID)
	}
	if err := e.Store.TouchKnowledge(ctx, ids); err != nil {
		e.log().Warn("knowledge touch failed", zap.Int("entries", len(ids)), zap.Error(err))
	}
}

func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
