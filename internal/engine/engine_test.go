package engine_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"boardroom/internal/config"
	"boardroom/internal/db"
	"boardroom/internal/domain"
	"boardroom/internal/engine"
	"boardroom/internal/llm"
	"boardroom/internal/migrate"
	"boardroom/internal/repo"
	"boardroom/internal/research"
)

var testNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeGenerator struct {
	mu       sync.Mutex
	reply    func(req llm.Request) (llm.Response, error)
	requests []llm.Request
	disabled bool
}

func (g *fakeGenerator) Generate(_ context.Context, req llm.Request) (llm.Response, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, req)
	if g.disabled {
		return llm.Response{}, llm.ErrNoProvider
	}
	return g.reply(req)
}

func (g *fakeGenerator) Configured() bool { return !g.disabled }

func (g *fakeGenerator) calls() []llm.Request {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]llm.Request(nil), g.requests...)
}

type testEnv struct {
	Engine engine.Engine
	Repo   repo.Repo
	Gen    *fakeGenerator
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	r := repo.New(conn, db.DialectSQLite)
	var mu sync.Mutex
	clock := testNow.Add(-time.Hour)
	r.Now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		clock = clock.Add(time.Millisecond)
		return clock
	}
	cfg := config.Default()
	gen := &fakeGenerator{reply: func(req llm.Request) (llm.Response, error) {
		return llm.Response{Provider: "fake", Model: "fake-1", Text: "Diagnosis: steady."}, nil
	}}
	eng := engine.New(r, cfg)
	eng.Generator = gen
	eng.Now = func() time.Time { return testNow }
	ctx := context.Background()
	if _, err := eng.SeedExecutives(ctx, false); err != nil {
		t.Fatalf("seed executives: %v", err)
	}
	return testEnv{Engine: eng, Repo: r, Gen: gen, Ctx: ctx}
}

func TestBuildContextRoleSources(t *testing.T) {
	env := newTestEnv(t)
	ctx := env.Ctx
	mustInvoice := func(inv domain.Invoice) {
		if err := env.Repo.InsertInvoice(ctx, inv); err != nil {
			t.Fatalf("insert invoice: %v", err)
		}
	}
	mustInvoice(domain.Invoice{ID: "inv-overdue", Amount: 100, DueDate: "2024-02-01T00:00:00.000000Z"})
	mustInvoice(domain.Invoice{ID: "inv-future", Amount: 200, DueDate: "2024-04-01T00:00:00.000000Z"})
	mustInvoice(domain.Invoice{ID: "inv-paid", Amount: 300, DueDate: "2024-01-01T00:00:00.000000Z", PaidAt: "2024-01-02T00:00:00.000000Z", Status: "paid"})
	if err := env.Repo.InsertEmployeeRequest(ctx, domain.EmployeeRequest{UserID: "u-1", Type: "vacation"}); err != nil {
		t.Fatal(err)
	}
	for _, p := range []domain.Prediction{
		{Kind: domain.KindPaymentRisk, EntityName: "Acme", Value: 0.8, Confidence: 90},
		{Kind: domain.KindPaymentRisk, EntityName: "Low", Value: 0.1, Confidence: 20},
		{Kind: domain.KindRevenue, Value: 12000, Confidence: 60},
		{Kind: domain.KindDelay, Value: 3, Confidence: 99},
	} {
		if err := env.Repo.InsertPrediction(ctx, p); err != nil {
			t.Fatal(err)
		}
	}

	cfo, err := env.Engine.BuildContext(ctx, engine.FullContext(domain.RoleCFO, "tester"))
	if err != nil {
		t.Fatalf("build cfo: %v", err)
	}
	if len(cfo.Missing) != 0 {
		t.Fatalf("unexpected missing: %v", cfo.Missing)
	}
	if len(cfo.Data.OverdueInvoices) != 1 || cfo.Data.OverdueInvoices[0].ID != "inv-overdue" {
		t.Fatalf("overdue invoices = %+v", cfo.Data.OverdueInvoices)
	}
	if len(cfo.Data.PendingRequests) != 0 {
		t.Fatalf("cfo should not see employee requests")
	}
	if len(cfo.Predictions) != 2 || cfo.Predictions[0].Kind != domain.KindPaymentRisk || cfo.Predictions[1].Kind != domain.KindRevenue {
		t.Fatalf("cfo predictions = %+v", cfo.Predictions)
	}
	if cfo.Data.Executive == nil || cfo.Data.Executive.Role != domain.RoleCFO {
		t.Fatalf("executive missing from context")
	}
	if cfo.GeneratedAt != domain.FormatTime(testNow) {
		t.Fatalf("generated_at = %s", cfo.GeneratedAt)
	}

	chro, err := env.Engine.BuildContext(ctx, engine.FullContext(domain.RoleCHRO, "tester"))
	if err != nil {
		t.Fatal(err)
	}
	if len(chro.Data.PendingRequests) != 1 || len(chro.Data.OverdueInvoices) != 0 {
		t.Fatalf("chro sources wrong: %+v", chro.Data)
	}

	low := 0.0
	opts := engine.FullContext(domain.RoleCFO, "tester")
	opts.PredictionMinConfidence = &low
	all, err := env.Engine.BuildContext(ctx, opts)
	if err != nil {
		t.Fatal(err)
	}
	if len(all.Predictions) != 3 {
		t.Fatalf("expected 3 predictions at min confidence 0, got %d", len(all.Predictions))
	}

	bare, err := env.Engine.BuildContext(ctx, engine.ContextOptions{Role: domain.RoleCOO})
	if err != nil {
		t.Fatal(err)
	}
	if bare.Predictions == nil || bare.Data.EventLog == nil || bare.Data.RecentTasks == nil || len(bare.Predictions) != 0 {
		t.Fatalf("optional sources should be empty, non-nil lists")
	}

	if _, err := env.Engine.BuildContext(ctx, engine.ContextOptions{Role: "cio"}); err == nil {
		t.Fatalf("expected invalid role error")
	}
}

func TestBuildContextTouchesTopKnowledge(t *testing.T) {
	env := newTestEnv(t)
	ctx := env.Ctx
	for i := 0; i < 12; i++ {
		if _, err := env.Repo.UpsertKnowledge(ctx, domain.KnowledgeEntry{Role: domain.RoleCOO, KnowledgeType: "fact", Key: string(rune('a' + i))}); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := env.Repo.UpsertKnowledge(ctx, domain.KnowledgeEntry{Role: domain.RoleCOO, KnowledgeType: "fact", Key: "expired", ValidUntil: "2024-01-01T00:00:00.000000Z"}); err != nil {
		t.Fatal(err)
	}
	opts := engine.FullContext(domain.RoleCOO, "tester")
	opts.TouchKnowledge = true
	c, err := env.Engine.BuildContext(ctx, opts)
	if err != nil {
		t.Fatal(err)
	}
	if len(c.Data.Knowledge) != 12 {
		t.Fatalf("expected 12 live entries, got %d", len(c.Data.Knowledge))
	}
	entries, err := env.Repo.ListKnowledge(ctx, repo.KnowledgeFilters{Role: domain.RoleCOO, Limit: 50})
	if err != nil {
		t.Fatal(err)
	}
	touched := 0
	for _, k := range entries {
		if k.TimesReferenced == 1 {
			touched++
		}
		if k.TimesReferenced > 1 {
			t.Fatalf("entry %s touched twice", k.Key)
		}
	}
	if touched != 10 {
		t.Fatalf("expected 10 touched entries, got %d", touched)
	}

	preview := engine.FullContext(domain.RoleCOO, "tester")
	if _, err := env.Engine.BuildContext(ctx, preview); err != nil {
		t.Fatal(err)
	}
	again, _ := env.Repo.ListKnowledge(ctx, repo.KnowledgeFilters{Role: domain.RoleCOO, Limit: 50})
	sum := 0
	for _, k := range again {
		sum += k.TimesReferenced
	}
	if sum != 10 {
		t.Fatalf("preview must not touch knowledge, total references %d", sum)
	}
}

func TestChatPersistsConversation(t *testing.T) {
	env := newTestEnv(t)
	res, err := env.Engine.Chat(env.Ctx, engine.ChatOptions{Role: domain.RoleCOO, ActorID: "u-1", Message: "How is delivery going this week?"})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if res.Reply != "Diagnosis: steady." || res.Provider == nil || *res.Provider != "fake" {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.UsedMarket || len(res.Sources) != 0 {
		t.Fatalf("research should not run for this message")
	}
	conv, err := env.Repo.GetConversation(env.Ctx, res.ConversationID)
	if err != nil {
		t.Fatalf("conversation: %v", err)
	}
	if conv.Role != domain.RoleCOO || conv.Title != "How is delivery going this week?" {
		t.Fatalf("conversation = %+v", conv)
	}
	msgs, err := env.Repo.ListChatMessages(env.Ctx, res.ConversationID, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 || msgs[0].Sender != domain.SenderUser || msgs[1].Sender != domain.SenderAssistant {
		t.Fatalf("messages = %+v", msgs)
	}

	req := env.Gen.calls()[0]
	if req.Task != llm.TaskAnalysis || req.Temperature != 0.4 || req.MaxTokens != 950 {
		t.Fatalf("request knobs = %+v", req)
	}
	if !strings.Contains(req.System, "advisory mode") {
		t.Fatalf("system prompt lacks preamble")
	}

	second, err := env.Engine.Chat(env.Ctx, engine.ChatOptions{Role: domain.RoleCOO, Message: "And next week?", ConversationID: res.ConversationID})
	if err != nil {
		t.Fatal(err)
	}
	if second.ConversationID != res.ConversationID {
		t.Fatalf("conversation should be reused")
	}
	last := env.Gen.calls()[1]
	if len(last.Messages) != 3 {
		t.Fatalf("expected 2 history turns + question, got %d", len(last.Messages))
	}

	other, err := env.Engine.Chat(env.Ctx, engine.ChatOptions{Role: domain.RoleCFO, Message: "Cash?", ConversationID: res.ConversationID})
	if err != nil {
		t.Fatal(err)
	}
	if other.ConversationID == res.ConversationID {
		t.Fatalf("conversation of another role must not be reused")
	}
}

func TestChatValidation(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.Chat(env.Ctx, engine.ChatOptions{Role: "cio", Message: "hi"}); err == nil {
		t.Fatalf("expected role validation error")
	}
	if _, err := env.Engine.Chat(env.Ctx, engine.ChatOptions{Role: domain.RoleCEO, Message: "   "}); err == nil {
		t.Fatalf("expected message validation error")
	}
}

func TestChatFallbackWhenNotConfigured(t *testing.T) {
	env := newTestEnv(t)
	env.Gen.disabled = true
	res, err := env.Engine.Chat(env.Ctx, engine.ChatOptions{Role: domain.RoleCEO, Message: "What should we focus on?"})
	if err != nil {
		t.Fatalf("fallback must not error: %v", err)
	}
	if !strings.HasPrefix(res.Reply, "AI integrations are not configured") {
		t.Fatalf("reply = %q", res.Reply)
	}
	if res.Provider != nil || res.Model != nil {
		t.Fatalf("fallback must have null provider and model")
	}
}

type staticResearch struct {
	res research.Result
	err error
}

func (s staticResearch) Name() string  { return "perplexity" }
func (s staticResearch) Model() string { return "sonar" }
func (s staticResearch) Search(context.Context, research.Request) (research.Result, error) {
	return s.res, s.err
}

func TestChatAppendsResearchSources(t *testing.T) {
	env := newTestEnv(t)
	env.Engine.Research = &research.Adapter{
		Provider: staticResearch{res: research.Result{Answer: "Average ticket is 4k.", Sources: []string{"https://1.example", "https://2.example"}, Provider: "perplexity", Model: "sonar"}},
		Recorder: env.Repo,
	}
	res, err := env.Engine.Chat(env.Ctx, engine.ChatOptions{Role: domain.RoleCMO, Message: "What is the market average ticket?"})
	if err != nil {
		t.Fatal(err)
	}
	if !res.UsedMarket || !strings.Contains(res.Reply, "Sources:\n- https://1.example\n- https://2.example") {
		t.Fatalf("reply = %q", res.Reply)
	}
	if !strings.Contains(env.Gen.calls()[0].Messages[0].Content, "Average ticket is 4k.") {
		t.Fatalf("market answer missing from prompt")
	}
	logged, err := env.Repo.ListResearch(env.Ctx, domain.RoleCMO, 6)
	if err != nil || len(logged) != 1 {
		t.Fatalf("research log = %v, %v", logged, err)
	}
}

func TestChatStubNotice(t *testing.T) {
	env := newTestEnv(t)
	res, err := env.Engine.Chat(env.Ctx, engine.ChatOptions{Role: domain.RoleCFO, Message: "Compare our pricing", IncludeMarket: true})
	if err != nil {
		t.Fatal(err)
	}
	if res.UsedMarket {
		t.Fatalf("stubbed research is not market usage")
	}
	if !strings.Contains(res.Reply, "market context unavailable") {
		t.Fatalf("reply lacks unavailability notice: %q", res.Reply)
	}
	if !strings.Contains(env.Gen.calls()[0].Messages[0].Content, "Market context unavailable (perplexity): not configured.") {
		t.Fatalf("stub answer missing from prompt")
	}
}
