package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"boardroom/internal/domain"
	"boardroom/internal/events"
	"boardroom/internal/llm"
	"boardroom/internal/repo"
	"boardroom/internal/research"
)

type ChatOptions struct {
	Role           domain.Role
	ActorID        string
	Message        string
	ConversationID string
	// History overrides the stored conversation turns when set.
	History []llm.Message
	// IncludeMarket forces external research.
	IncludeMarket bool
}

type ChatResult struct {
	ConversationID string   `json:"conversation_id"`
	Reply          string   `json:"reply"`
	Provider       *string  `json:"provider"`
	Model          *string  `json:"model"`
	Sources        []string `json:"sources"`
	Missing        []string `json:"missing"`
	UsedMarket     bool     `json:"used_market"`
}

// Chat answers one message as the given executive. Generation failures yield a fallback reply,
// not an error.
func (e Engine) Chat(ctx context.Context, opts ChatOptions) (ChatResult, error) {
	started := time.Now()
	if !opts.Role.Valid() {
		return ChatResult{}, ValidationError{Field: "role", Message: "unknown role " + string(opts.Role)}
	}
	message := strings.TrimSpace(opts.Message)
	if message == "" {
		return ChatResult{}, ValidationError{Field: "message", Message: "message is required"}
	}
	ctx, span := tracer.Start(ctx, "engine.Chat", trace.WithAttributes(attribute.String("role", string(opts.Role))))
	defer span.End()

	exec, err := e.Store.GetExecutive(ctx, opts.Role)
	if errors.Is(err, repo.ErrNotFound) {
		return ChatResult{}, ValidationError{Field: "role", Message: fmt.Sprintf("executive %s not found; seed executives first", opts.Role)}
	}
	if err != nil {
		return ChatResult{}, fmt.Errorf("load executive: %w", err)
	}
	cfg := e.cfg()

	conv, reused := e.resolveConversation(ctx, opts, message)
	history := opts.History
	if len(history) == 0 && reused {
		history = e.storedHistory(ctx, conv.ID, cfg.Chat.HistoryTurns)
	}
	e.saveMessage(ctx, domain.ChatMessage{ConversationID: conv.ID, Sender: domain.SenderUser, Content: message})

	execCtx, err := e.BuildContext(ctx, ContextOptions{
		Role: opts.Role, ActorID: opts.ActorID, IncludePredictions: true, IncludeEventLog: true, IncludeKanban: true, TouchKnowledge: true,
	})
	if err != nil {
		return ChatResult{}, err
	}

	var market *research.Result
	if e.Research.ShouldSearch(opts.Role, message, opts.IncludeMarket) {
		res := e.Research.Search(ctx, research.Request{Role: opts.Role, Query: message, Purpose: fmt.Sprintf("Market context for the %s", strings.ToUpper(string(opts.Role)))})
		market = &res
	}

	req := llm.Request{
		Task:        TaskForRole(opts.Role),
		System:      exec.SystemPrompt + "\n\n" + advisoryPreamble,
		Messages:    append(boundHistory(history, cfg.Chat.HistoryTurns, cfg.Chat.HistoryChars), llm.Message{Role: "user", Content: chatUserContent(execCtx, market, message, cfg.Chat.ContextChars)}),
		Temperature: cfg.Chat.Temperature,
		MaxTokens:   cfg.Chat.MaxTokens,
	}
	result := ChatResult{ConversationID: conv.ID, Sources: []string{}, Missing: execCtx.Missing, UsedMarket: market != nil && !market.Stub}
	if market != nil {
		result.Sources = market.Sources
	}

	resp, genErr := e.Generator.Generate(ctx, req)
	if genErr != nil {
		span.RecordError(genErr)
		span.SetStatus(codes.Error, "generation failed")
		e.log().Warn("chat generation failed", zap.String("role", string(opts.Role)), zap.Error(genErr))
		hint := hintChatFailed
		if errors.Is(genErr, llm.ErrNoProvider) || !e.providersConfigured() {
			hint = hintNotConfigured
		}
		result.Reply = hint + " " + chatFollowUp
	} else {
		result.Reply = finishReply(resp.Text, market, cfg.Chat.MaxSources)
		result.Provider = &resp.Provider
		result.Model = &resp.Model
	}

	meta, _ := json.Marshal(map[string]any{
		"provider": result.Provider, "model": result.Model, "sources": result.Sources,
		"missing": result.Missing, "used_market": result.UsedMarket, "fallback": genErr != nil,
	})
	e.saveMessage(ctx, domain.ChatMessage{
		ConversationID: conv.ID, Sender: domain.SenderAssistant, Content: result.Reply, Metadata: meta,
		ProcessingMS: time.Since(started).Milliseconds(),
	})
	e.Events.Audit(ctx, opts.Role, opts.ActorID, "chat", "conversation", conv.ID, events.Payload{
		"used_market": result.UsedMarket, "fallback": genErr != nil, "missing": result.Missing,
	})
	return result, nil
}

func (e Engine) resolveConversation(ctx context.Context, opts ChatOptions, message string) (domain.Conversation, bool) {
	if opts.ConversationID != "" {
		conv, err := e.Store.GetConversation(ctx, opts.ConversationID)
		if err == nil && conv.Role == opts.Role {
			return conv, true
		}
		if err != nil && !errors.Is(err, repo.ErrNotFound) {
			e.log().Warn("conversation lookup failed", zap.String("conversation_id", opts.ConversationID), zap.Error(err))
		}
	}
	conv, err := e.Store.InsertConversation(ctx, domain.Conversation{Role: opts.Role, UserID: opts.ActorID, Title: Truncate(message, 80)})
	if err != nil {
		e.log().Warn("conversation create failed", zap.String("role", string(opts.Role)), zap.Error(err))
		return domain.Conversation{Role: opts.Role}, false
	}
	return conv, false
}

func (e Engine) storedHistory(ctx context.Context, conversationID string, turns int) []llm.Message {
	msgs, err := e.Store.ListChatMessages(ctx, conversationID, turns)
	if err != nil {
		e.log().Warn("conversation history unavailable", zap.String("conversation_id", conversationID), zap.Error(err))
		return nil
	}
	out := make([]llm.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, llm.Message{Role: m.Sender, Content: m.Content})
	}
	return out
}

func (e Engine) saveMessage(ctx context.Context, m domain.ChatMessage) {
	if m.ConversationID == "" {
		return
	}
	if _, err := e.Store.InsertChatMessage(ctx, m); err != nil {
		e.log().Warn("chat message not saved", zap.String("conversation_id", m.ConversationID), zap.String("sender", m.Sender), zap.Error(err))
	}
}

// boundHistory keeps the last turns entries with a known role, each cut to chars.
func boundHistory(history []llm.Message, turns, chars int) []llm.Message {
	kept := make([]llm.Message, 0, len(history))
	for _, m := range history {
		switch m.Role {
		case domain.SenderUser, domain.SenderAssistant, domain.SenderSystem:
		default:
			continue
		}
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		kept = append(kept, llm.Message{Role: m.Role, Content: Truncate(m.Content, chars)})
	}
	if turns > 0 && len(kept) > turns {
		kept = kept[len(kept)-turns:]
	}
	return kept
}

func chatUserContent(execCtx domain.ExecutiveContext, market *research.Result, question string, contextChars int) string {
	data, _ := json.Marshal(execCtx)
	var b strings.Builder
	b.WriteString("Company context (JSON):\n")
	b.WriteString(Truncate(string(data), contextChars))
	b.WriteString("\n\n")
	b.WriteString(marketSection(market))
	b.WriteString("\n\nQuestion:\n")
	b.WriteString(question)
	return b.String()
}

func marketSection(market *research.Result) string {
	if market == nil {
		return noMarket
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Market research (%s/%s):\n%s\n", market.Provider, market.Model, market.Answer)
	if len(market.Sources) > 0 {
		b.WriteString("Sources:\n")
		for _, s := range market.Sources {
			b.WriteString("- " + s + "\n")
		}
	}
	b.WriteString(marketRules)
	return b.String()
}

func finishReply(text string, market *research.Result, maxSources int) string {
	reply := strings.TrimSpace(text)
	if market == nil {
		return reply
	}
	if len(market.Sources) > 0 && !hasURL(reply) {
		srcs := market.Sources
		if maxSources > 0 && len(srcs) > maxSources {
			srcs = srcs[:maxSources]
		}
		reply += "\n\nSources:\n- " + strings.Join(srcs, "\n- ")
	}
	if market.Stub && !strings.Contains(strings.ToLower(reply), "market context unavailable") {
		reply += "\n\nNote: market context unavailable right now, so no external market figures were used."
	}
	return reply
}
