// Package agrisage is an agricultural advisory engine for Indian farmers.
// It answers questions over government weather, soil, and market data using
// hybrid retrieval plus an external generation service, guarded by a
// deterministic safety layer: restricted questions are hard-blocked,
// actionable advice requires authoritative provenance, and every degraded
// path lands in the rules engine instead of an error.
package agrisage

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/agrisage/agrisage/llm"
	"github.com/agrisage/agrisage/retrieval"
	"github.com/agrisage/agrisage/rules"
	"github.com/agrisage/agrisage/safety"
	"github.com/agrisage/agrisage/store"
)

// Engine is the main entry point for the advisory engine.
type Engine interface {
	// Ask runs a question through the full pipeline: hard block, hybrid
	// retrieval, generation, confidence combining, safety gate, fallback.
	Ask(ctx context.Context, q Query) (*Answer, error)

	// Fallback answers directly from the deterministic rules engine,
	// bypassing retrieval and generation.
	Fallback(ctx context.Context, q Query) (*Answer, error)

	// Store returns the underlying store for diagnostic access.
	Store() *store.Store

	// Close cleanly shuts down the engine.
	Close() error
}

// Query is one user question.
type Query struct {
	Text     string `json:"question"`
	Location string `json:"location,omitempty"`
	Locale   string `json:"locale,omitempty"`
}

// Provenance is one cited source excerpt backing an answer.
type Provenance struct {
	Source   string `json:"source"`
	RowID    string `json:"row_id"`
	Excerpt  string `json:"excerpt"`
	Date     string `json:"date,omitempty"`
	District string `json:"district,omitempty"`
	URL      string `json:"url,omitempty"`
}

// Answer is the result of one query.
type Answer struct {
	Answer           string       `json:"answer"`
	Confidence       float64      `json:"confidence"`
	Provenance       []Provenance `json:"provenance"`
	Escalate         bool         `json:"escalate"`
	FallbackUsed     bool         `json:"fallback_used"`
	Actionable       bool         `json:"actionable"`
	SafetyGateReason string       `json:"safety_gate_reason,omitempty"`
}

// Retriever is the retrieval collaborator.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int, location string) (retrieval.Result, error)
}

// FactsSource supplies district observations for the rules engine.
type FactsSource interface {
	LatestObservations(ctx context.Context, district string) (*store.DistrictFacts, error)
}

// AuditLog records answered queries. Writes are fire-and-forget.
type AuditLog interface {
	LogQuery(ctx context.Context, q store.QueryLog) error
}

const (
	// escalationThreshold routes low-combined-confidence answers to the
	// rules engine instead of surfacing them.
	escalationThreshold = 0.4

	// escalateMarker is the literal token the model is instructed to emit
	// when it decides a question needs a human expert.
	escalateMarker = "ESCALATE"

	provenanceLimit = 3
	excerptLen      = 200
)

// restrictedAnswer is the fixed response for hard-blocked questions.
const restrictedAnswer = "This question involves chemicals or dosages that require expert consultation. " +
	"Please contact your local agricultural extension officer or Krishi Vigyan Kendra for safe recommendations."

// blockedAnswer is the conservative response when the safety gate rejects
// an actionable answer. Distinct from the rules fallback: no advice is
// substituted, the user is redirected.
const blockedAnswer = "I cannot confirm this recommendation against authoritative data sources. " +
	"Please consult your local agricultural extension officer or Krishi Vigyan Kendra before taking action."

// sourceURLs enriches provenance entries with a link to the upstream feed.
var sourceURLs = map[string]string{
	"weather_forecast":  "https://mausam.imd.gov.in",
	"soil_card":         "https://soilhealth.dac.gov.in",
	"market_prices":     "https://agmarknet.gov.in",
	"enam_trades":       "https://enam.gov.in",
	"real_weather_data": "https://power.larc.nasa.gov",
	"real_mandi_prices": "https://data.gov.in",
}

// engine is the concrete implementation of Engine.
type engine struct {
	cfg       Config
	store     *store.Store
	genLLM    llm.Provider
	retriever Retriever
	facts     FactsSource
	audit     AuditLog
}

// New creates an advisory engine with the given configuration. All shared
// handles are constructed here and owned by the engine; nothing is global.
func New(cfg Config) (Engine, error) {
	if cfg.TopK < 0 {
		return nil, fmt.Errorf("%w: top_k must not be negative", ErrInvalidConfig)
	}
	if cfg.EmbeddingDim < 0 {
		return nil, fmt.Errorf("%w: embedding_dim must not be negative", ErrInvalidConfig)
	}
	if cfg.GenerationTimeout < 0 {
		return nil, fmt.Errorf("%w: generation_timeout must not be negative", ErrInvalidConfig)
	}
	if cfg.EmbeddingDim == 0 {
		cfg.EmbeddingDim = 768
	}
	if cfg.TopK == 0 {
		cfg.TopK = 5
	}
	if cfg.GenerationTimeout == 0 {
		cfg.GenerationTimeout = 30 * time.Second
	}

	s, err := store.New(cfg.ResolveDBPath(), cfg.EmbeddingDim)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	genLLM, err := llm.NewProvider(cfg.Generation)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("creating generation provider: %w", err)
	}

	embedLLM, err := llm.NewProvider(cfg.Embedding)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("creating embedding provider: %w", err)
	}

	return &engine{
		cfg:       cfg,
		store:     s,
		genLLM:    genLLM,
		retriever: retrieval.New(s, embedLLM),
		facts:     s,
		audit:     s,
	}, nil
}

// Ask runs the full answer pipeline for one question.
func (e *engine) Ask(ctx context.Context, q Query) (*Answer, error) {
	question := strings.TrimSpace(q.Text)
	if question == "" {
		return nil, ErrEmptyQuestion
	}

	// Restricted-substance questions never reach retrieval or generation.
	if safety.IsRestricted(question) {
		answer := &Answer{
			Answer:     restrictedAnswer,
			Confidence: 1.0,
			Provenance: []Provenance{},
			Escalate:   true,
			Actionable: safety.IsActionable(question),
		}
		e.logAnswer(question, answer)
		return answer, nil
	}

	result, err := e.retriever.Retrieve(ctx, question, e.cfg.TopK, q.Location)
	if err != nil {
		slog.Warn("retrieval failed, using fallback rules", "error", err)
		return e.fallbackAnswer(ctx, q, false), nil
	}
	if len(result.Documents) == 0 {
		return e.fallbackAnswer(ctx, q, false), nil
	}

	text, genConfidence := e.generate(ctx, result.Documents, question, q.Location)
	if text == "" {
		return e.fallbackAnswer(ctx, q, false), nil
	}

	combined := safety.Combine(result.Score, genConfidence)

	decision := safety.Evaluate(question, documentMetas(result.Documents), result.Score, genConfidence)
	if !decision.IsSafe {
		answer := &Answer{
			Answer:           blockedAnswer,
			Confidence:       combined,
			Provenance:       []Provenance{},
			Escalate:         true,
			FallbackUsed:     false,
			Actionable:       decision.IsActionableQuery,
			SafetyGateReason: decision.BlockReason,
		}
		e.logAnswer(question, answer)
		return answer, nil
	}

	if combined < escalationThreshold || strings.Contains(text, escalateMarker) {
		return e.fallbackAnswer(ctx, q, true), nil
	}

	answer := &Answer{
		Answer:     text,
		Confidence: combined,
		Provenance: buildProvenance(result.Documents),
		Escalate:   false,
		Actionable: decision.IsActionableQuery,
	}
	e.logAnswer(question, answer)
	return answer, nil
}

// Fallback answers directly from the rules engine.
func (e *engine) Fallback(ctx context.Context, q Query) (*Answer, error) {
	question := strings.TrimSpace(q.Text)
	if question == "" {
		return nil, ErrEmptyQuestion
	}
	return e.fallbackAnswer(ctx, q, false), nil
}

// Store returns the underlying store for diagnostic access.
func (e *engine) Store() *store.Store {
	return e.store
}

// Close shuts down the engine.
func (e *engine) Close() error {
	return e.store.Close()
}

// fallbackAnswer builds a deterministic answer from the rules engine,
// feeding it the freshest district observations available. A facts lookup
// failure just means the rules run on defaults.
func (e *engine) fallbackAnswer(ctx context.Context, q Query, forceEscalate bool) *Answer {
	var obs rules.Observations
	if q.Location != "" {
		facts, err := e.facts.LatestObservations(ctx, q.Location)
		if err != nil {
			slog.Warn("facts lookup failed", "location", q.Location, "error", err)
		} else if facts != nil {
			obs = rules.Observations{
				SoilMoisture: facts.SoilMoisture,
				PrecipProb:   facts.PrecipProb,
				SoilN:        facts.SoilN,
				SoilP:        facts.SoilP,
				SoilK:        facts.SoilK,
			}
		}
	}

	advice := rules.Respond(q.Text, obs)

	answer := &Answer{
		Answer:       advice.Advice,
		Confidence:   advice.Confidence,
		Provenance:   []Provenance{},
		Escalate:     advice.Escalate || forceEscalate,
		FallbackUsed: true,
		Actionable:   safety.IsActionable(q.Text),
	}
	e.logAnswer(q.Text, answer)
	return answer
}

// generate calls the generation service with a bounded timeout. Failure is
// a normal value: ("", 0.0), never an error, so the caller degrades to the
// rules engine instead of failing the request.
func (e *engine) generate(ctx context.Context, docs []retrieval.Document, question, location string) (string, float64) {
	genCtx, cancel := context.WithTimeout(ctx, e.cfg.GenerationTimeout)
	defer cancel()

	resp, err := e.genLLM.Chat(genCtx, llm.ChatRequest{
		Model: e.cfg.Generation.Model,
		Messages: []llm.Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: buildPrompt(docs, question, location)},
		},
		Temperature: 0.3,
		MaxTokens:   500,
	})
	if err != nil {
		slog.Warn("generation failed", "error", err)
		return "", 0.0
	}

	text := strings.TrimSpace(resp.Content)
	if text == "" {
		return "", 0.0
	}

	confidence, parsed := llm.ParseConfidence(text)
	if !parsed {
		slog.Warn("generation confidence unparseable, using default",
			"default", llm.DefaultConfidence)
	}
	return text, confidence
}

// buildProvenance cites the top documents backing a direct answer.
func buildProvenance(docs []retrieval.Document) []Provenance {
	n := len(docs)
	if n > provenanceLimit {
		n = provenanceLimit
	}
	prov := make([]Provenance, n)
	for i, d := range docs[:n] {
		// Truncate on runes, not bytes: record text carries ₹ and °C and a
		// byte cut can split a rune and emit invalid UTF-8.
		excerpt := d.Content
		if utf8.RuneCountInString(excerpt) > excerptLen {
			excerpt = string([]rune(excerpt)[:excerptLen]) + "..."
		}
		prov[i] = Provenance{
			Source:   d.Meta.Source,
			RowID:    d.Meta.RowID,
			Excerpt:  excerpt,
			Date:     d.Meta.Date,
			District: d.Meta.District,
			URL:      sourceURLs[d.Meta.Source],
		}
	}
	return prov
}

func documentMetas(docs []retrieval.Document) []store.Metadata {
	metas := make([]store.Metadata, len(docs))
	for i, d := range docs {
		metas[i] = d.Meta
	}
	return metas
}

// logAnswer appends to the query audit log. Fire-and-forget: audit failures
// never block or fail the response path.
func (e *engine) logAnswer(question string, a *Answer) {
	err := e.audit.LogQuery(context.Background(), store.QueryLog{
		Query:        question,
		Answer:       a.Answer,
		Confidence:   a.Confidence,
		Escalate:     a.Escalate,
		FallbackUsed: a.FallbackUsed,
		GateReason:   a.SafetyGateReason,
	})
	if err != nil {
		slog.Warn("query audit log write failed", "error", err)
	}
}
