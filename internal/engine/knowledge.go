package engine

import (
	"context"
	"encoding/json"
	"strings"

	"boardroom/internal/domain"
	"boardroom/internal/events"
	"boardroom/internal/repo"
)

type PutKnowledgeOptions struct {
	Role          domain.Role
	KnowledgeType string
	Category      string
	Key           string
	Value         json.RawMessage
	Confidence    float64
	Source        string
	SourceID      string
	ValidFrom     string
	ValidUntil    string
	ActorID       string
}

// PutKnowledge writes a knowledge entry keyed by role, type and key. Re-putting the same key
// replaces its value and keeps its usage count.
func (e Engine) PutKnowledge(ctx context.Context, opts PutKnowledgeOptions) (domain.KnowledgeEntry, error) {
	if !opts.Role.Valid() {
		return domain.KnowledgeEntry{}, ValidationError{Field: "role", Message: "unknown role " + string(opts.Role)}
	}
	kt := strings.TrimSpace(opts.KnowledgeType)
	if kt == "" {
		return domain.KnowledgeEntry{}, ValidationError{Field: "knowledge_type", Message: "knowledge_type is required"}
	}
	key := strings.TrimSpace(opts.Key)
	if key == "" {
		return domain.KnowledgeEntry{}, ValidationError{Field: "key", Message: "key is required"}
	}
	value := opts.Value
	if len(value) == 0 {
		value = json.RawMessage(`{}`)
	}
	if !json.Valid(value) {
		return domain.KnowledgeEntry{}, ValidationError{Field: "value", Message: "value must be valid JSON"}
	}
	if opts.Confidence < 0 || opts.Confidence > 1 {
		return domain.KnowledgeEntry{}, ValidationError{Field: "confidence", Message: "confidence must be within 0..1"}
	}
	conf := opts.Confidence
	if conf == 0 {
		conf = 0.7
	}
	source := opts.Source
	if source == "" {
		source = "manual"
	}
	k, err := e.Store.UpsertKnowledge(ctx, domain.KnowledgeEntry{
		Role: opts.Role, KnowledgeType: kt, Category: opts.Category, Key: key, Value: value, Confidence: conf,
		Source: source, SourceID: opts.SourceID, ValidFrom: opts.ValidFrom, ValidUntil: opts.ValidUntil,
	})
	if err != nil {
		return domain.KnowledgeEntry{}, err
	}
	e.Events.Append(ctx, "knowledge.put", "knowledge", k.ID, opts.ActorID, events.Payload{"role": k.Role, "key": k.Key})
	return k, nil
}

// ListKnowledge returns a role's entries, including expired ones.
func (e Engine) ListKnowledge(ctx context.Context, role domain.Role, knowledgeType string, limit int) ([]domain.KnowledgeEntry, error) {
	if !role.Valid() {
		return nil, ValidationError{Field: "role", Message: "unknown role " + string(role)}
	}
	return e.Store.ListKnowledge(ctx, repo.KnowledgeFilters{Role: role, KnowledgeType: knowledgeType, Limit: limit})
}
