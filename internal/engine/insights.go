package engine

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"boardroom/internal/domain"
	"boardroom/internal/events"
)

// CreateInsight records an insight produced upstream, assigning ids to its actions.
func (e Engine) CreateInsight(ctx context.Context, in domain.Insight, actorID string) (domain.Insight, error) {
	if !in.Role.Valid() {
		return domain.Insight{}, ValidationError{Field: "role", Message: "unknown role " + string(in.Role)}
	}
	if strings.TrimSpace(in.Title) == "" {
		return domain.Insight{}, ValidationError{Field: "title", Message: "title is required"}
	}
	if in.Category == "" {
		in.Category = "general"
	}
	if in.InsightType == "" {
		in.InsightType = "recommendation"
	}
	if in.Confidence < 0 || in.Confidence > 1 {
		return domain.Insight{}, ValidationError{Field: "confidence", Message: "confidence must be within 0..1"}
	}
	actions := make([]domain.RecommendedAction, 0, len(in.Actions))
	for _, a := range in.Actions {
		if strings.TrimSpace(a.Title) == "" || strings.TrimSpace(a.ActionType) == "" {
			return domain.Insight{}, ValidationError{Field: "recommended_actions", Message: "every action needs a title and an action_type"}
		}
		switch strings.ToLower(a.RiskLevel) {
		case "":
			a.RiskLevel = "low"
		case "low", "medium", "high", "critical":
			a.RiskLevel = strings.ToLower(a.RiskLevel)
		default:
			return domain.Insight{}, ValidationError{Field: "risk_level", Message: "risk_level must be low, medium, high or critical"}
		}
		if a.ID == "" {
			a.ID = uuid.NewString()
		}
		actions = append(actions, a)
	}
	in.Actions = actions
	saved, err := e.Store.InsertInsight(ctx, in)
	if err != nil {
		return domain.Insight{}, err
	}
	e.Events.Append(ctx, "insight.created", "insight", saved.ID, actorID, events.Payload{"role": saved.Role, "actions": len(saved.Actions)})
	return saved, nil
}
