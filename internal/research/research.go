package research

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"boardroom/internal/domain"
)

type Request struct {
	Role    domain.Role
	Query   string
	Purpose string
}

type Result struct {
	Answer   string   `json:"answer"`
	Sources  []string `json:"sources"`
	Provider string   `json:"provider"`
	Model    string   `json:"model"`
	Stub     bool     `json:"stub"`
}

// Provider runs a web-grounded search.
type Provider interface {
	Name() string
	Model() string
	Search(ctx context.Context, req Request) (Result, error)
}

// Cache stores answers between calls. A miss is (Result{}, false, nil).
type Cache interface {
	Get(ctx context.Context, key string) (Result, bool, error)
	Set(ctx context.Context, key string, res Result, ttl time.Duration) error
}

// Recorder persists each research call.
type Recorder interface {
	InsertResearch(ctx context.Context, rec domain.ResearchRecord) (domain.ResearchRecord, error)
}

type Status struct {
	Provider   string `json:"provider"`
	Model      string `json:"model"`
	Configured bool   `json:"configured"`
	Cached     bool   `json:"cached"`
}

// Adapter wraps a Provider with trigger detection, caching, logging and stub fallback.
type Adapter struct {
	Provider Provider
	Cache    Cache
	Recorder Recorder
	CacheTTL time.Duration
	// Triggers extend the built-in market words.
	Triggers []string
	// Name and Model label stub answers when Provider is nil.
	Name   string
	Model  string
	Logger *zap.Logger
}

var marketWords = []string{
	"market", "trend", "benchmark", "competitor", "price", "pricing", "average", "cost", "roi",
	"mercado", "tendência", "preço", "custo", "concorr",
}

// cmoWords trigger research only for the marketing executive.
var cmoWords = []string{"campaign", "campanha", "traffic", "tráfego", "trafego"}

// ShouldSearch decides whether a message needs external market context.
func ShouldSearch(role domain.Role, message string, force bool, extra ...string) bool {
	if force {
		return true
	}
	msg := strings.ToLower(message)
	if strings.Contains(msg, "perplexity") || strings.Contains(msg, "sonar") {
		return true
	}
	for _, w := range marketWords {
		if strings.Contains(msg, w) {
			return true
		}
	}
	for _, w := range extra {
		if w = strings.ToLower(strings.TrimSpace(w)); w != "" && strings.Contains(msg, w) {
			return true
		}
	}
	if role == domain.RoleCMO {
		for _, w := range cmoWords {
			if strings.Contains(msg, w) {
				return true
			}
		}
	}
	return false
}

func (a *Adapter) ShouldSearch(role domain.Role, message string, force bool) bool {
	var extra []string
	if a != nil {
		extra = a.Triggers
	}
	return ShouldSearch(role, message, force, extra...)
}

func (a *Adapter) Configured() bool {
	return a != nil && a.Provider != nil
}

func (a *Adapter) Status() Status {
	st := Status{Provider: a.name(), Model: a.model()}
	if a != nil {
		st.Configured = a.Provider != nil
		st.Cached = a.Cache != nil
	}
	return st
}

// Search never fails: any problem yields a stub answer that tells the caller not to invent data.
func (a *Adapter) Search(ctx context.Context, req Request) Result {
	if a == nil || a.Provider == nil {
		return a.record(ctx, req, Stub(a.name(), a.model(), "not configured"))
	}
	logger := a.logger()
	key := CacheKey(req.Role, req.Query)
	if a.Cache != nil {
		res, ok, err := a.Cache.Get(ctx, key)
		if err != nil {
			logger.Warn("research cache read failed", zap.Error(err))
		}
		if ok {
			return res
		}
	}
	res, err := a.Provider.Search(ctx, req)
	if err != nil {
		logger.Warn("research failed", zap.String("provider", a.Provider.Name()), zap.String("role", string(req.Role)), zap.Error(err))
		return a.record(ctx, req, Stub(a.Provider.Name(), a.Provider.Model(), shortReason(err)))
	}
	if res.Sources == nil {
		res.Sources = []string{}
	}
	if a.Cache != nil {
		if err := a.Cache.Set(ctx, key, res, a.CacheTTL); err != nil {
			logger.Warn("research cache write failed", zap.Error(err))
		}
	}
	return a.record(ctx, req, res)
}

func (a *Adapter) record(ctx context.Context, req Request, res Result) Result {
	if a == nil || a.Recorder == nil {
		return res
	}
	_, err := a.Recorder.InsertResearch(ctx, domain.ResearchRecord{
		Role: req.Role, Query: req.Query, Purpose: req.Purpose,
		Provider: res.Provider, Model: res.Model, Answer: res.Answer, Sources: res.Sources,
	})
	if err != nil {
		a.logger().Warn("research log failed", zap.Error(err))
	}
	return res
}

// Stub is the placeholder answer used when research is unavailable.
func Stub(provider, model, reason string) Result {
	return Result{
		Answer:   fmt.Sprintf("Market context unavailable (%s): %s. Do not invent numbers or sources; ask to configure the integration.", provider, reason),
		Sources:  []string{},
		Provider: provider,
		Model:    model,
		Stub:     true,
	}
}

// CacheKey hashes role and normalized query.
func CacheKey(role domain.Role, query string) string {
	sum := sha256.Sum256([]byte(string(role) + "\x00" + strings.ToLower(strings.TrimSpace(query))))
	return "boardroom:research:" + hex.EncodeToString(sum[:16])
}

func shortReason(err error) string {
	msg := strings.TrimSpace(err.Error())
	if len(msg) <= 160 {
		return msg
	}
	cut := 160
	for cut > 0 && !utf8.RuneStart(msg[cut]) {
		cut--
	}
	return msg[:cut]
}

func (a *Adapter) name() string {
	if a == nil || a.Name == "" {
		if a != nil && a.Provider != nil {
			return a.Provider.Name()
		}
		return "perplexity"
	}
	return a.Name
}

func (a *Adapter) model() string {
	if a == nil || a.Model == "" {
		if a != nil && a.Provider != nil {
			return a.Provider.Model()
		}
		return "sonar"
	}
	return a.Model
}

func (a *Adapter) logger() *zap.Logger {
	if a == nil || a.Logger == nil {
		return zap.NewNop()
	}
	return a.Logger
}
