package repo

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"boardroom/internal/domain"
)

func (r Repo) InsertConversation(ctx context.Context, c domain.Conversation) (domain.Conversation, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := r.now()
	c.CreatedAt = now
	c.UpdatedAt = now
	if c.Status == "" {
		c.Status = "active"
	}
	_, err := r.exec(ctx, nil, `INSERT INTO conversations(id,role,user_id,title,status,created_at,updated_at) VALUES (?,?,?,?,?,?,?)`,
		c.ID, string(c.Role), nullable(c.UserID), c.Title, c.Status, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return domain.Conversation{}, err
	}
	return c, nil
}

func (r Repo) GetConversation(ctx context.Context, id string) (domain.Conversation, error) {
	var c domain.Conversation
	var role string
	err := r.queryRow(ctx, nil, `SELECT id,role,COALESCE(user_id,''),title,status,created_at,updated_at FROM conversations WHERE id=?`, id).
		Scan(&c.ID, &role, &c.UserID, &c.Title, &c.Status, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return c, ErrNotFound
	}
	c.Role = domain.Role(role)
	return c, soft("conversations", err)
}

func (r Repo) InsertChatMessage(ctx context.Context, m domain.ChatMessage) (domain.ChatMessage, error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt == "" {
		m.CreatedAt = r.now()
	}
	_, err := r.exec(ctx, nil, `INSERT INTO conversation_messages(id,conversation_id,sender,content,metadata_json,processing_ms,created_at) VALUES (?,?,?,?,?,?,?)`,
		m.ID, m.ConversationID, m.Sender, m.Content, nullableRaw(m.Metadata), m.ProcessingMS, m.CreatedAt)
	if err != nil {
		return domain.ChatMessage{}, err
	}
	_, _ = r.exec(ctx, nil, `UPDATE conversations SET updated_at=? WHERE id=?`, m.CreatedAt, m.ConversationID)
	return m, nil
}

// ListChatMessages returns the last limit messages of a conversation in chronological order.
func (r Repo) ListChatMessages(ctx context.Context, conversationID string, limit int) ([]domain.ChatMessage, error) {
	rows, err := r.query(ctx, nil, `SELECT id,conversation_id,sender,content,metadata_json,COALESCE(processing_ms,0),created_at
FROM conversation_messages WHERE conversation_id=? ORDER BY created_at DESC LIMIT ?`, conversationID, clampLimit(limit, 50))
	if err != nil {
		return nil, soft("conversation_messages", err)
	}
	defer rows.Close()
	res := []domain.ChatMessage{}
	for rows.Next() {
		var m domain.ChatMessage
		var meta sql.NullString
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Sender, &m.Content, &meta, &m.ProcessingMS, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Metadata = rawOrNil(meta)
		res = append(res, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(res)-1; i < j; i, j = i+1, j-1 {
		res[i], res[j] = res[j], res[i]
	}
	return res, nil
}
