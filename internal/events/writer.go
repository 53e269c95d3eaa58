package events

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"boardroom/internal/domain"
)

// Store is where pipeline events and audit entries land.
type Store interface {
	InsertEvent(ctx context.Context, e domain.Event) error
	InsertAudit(ctx context.Context, a domain.AuditEntry) error
}

// Writer records pipeline events and audit entries. Writes are best-effort: failures are
// logged and never returned.
type Writer struct {
	Store  Store
	Logger *zap.Logger
}

type Payload map[string]any

// Append writes one event_log row.
func (w Writer) Append(ctx context.Context, evtType, entityType, entityID, actorID string, payload Payload) {
	if w.Store == nil {
		return
	}
	err := w.Store.InsertEvent(ctx, domain.Event{
		EventType: evtType, EntityType: entityType, EntityID: entityID, ActorID: actorID, Metadata: encode(payload),
	})
	if err != nil {
		w.logger().Warn("event write failed", zap.String("type", evtType), zap.String("entity_id", entityID), zap.Error(err))
	}
}

// Audit writes one access_log row.
func (w Writer) Audit(ctx context.Context, role domain.Role, actorID, action, entityType, entityID string, details Payload) {
	if w.Store == nil {
		return
	}
	err := w.Store.InsertAudit(ctx, domain.AuditEntry{
		Role: role, ActorID: actorID, Action: action, EntityType: entityType, EntityID: entityID, Details: encode(details),
	})
	if err != nil {
		w.logger().Warn("audit write failed", zap.String("action", action), zap.String("entity_id", entityID), zap.Error(err))
	}
}

func encode(p Payload) json.RawMessage {
	if p == nil {
		p = Payload{}
	}
	data, err := json.Marshal(p)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return data
}

func (w Writer) logger() *zap.Logger {
	if w.Logger == nil {
		return zap.NewNop()
	}
	return w.Logger
}
