package agrisage

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/agrisage/agrisage/llm"
	"github.com/agrisage/agrisage/retrieval"
	"github.com/agrisage/agrisage/store"
)

type fakeRetriever struct {
	result retrieval.Result
	err    error
}

func (f *fakeRetriever) Retrieve(ctx context.Context, query string, k int, location string) (retrieval.Result, error) {
	return f.result, f.err
}

type fakeFacts struct {
	facts *store.DistrictFacts
	err   error
}

func (f *fakeFacts) LatestObservations(ctx context.Context, district string) (*store.DistrictFacts, error) {
	return f.facts, f.err
}

type fakeAudit struct {
	logged []store.QueryLog
}

func (f *fakeAudit) LogQuery(ctx context.Context, q store.QueryLog) error {
	f.logged = append(f.logged, q)
	return nil
}

type fakeGenerator struct {
	content string
	err     error
}

func (f *fakeGenerator) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &llm.ChatResponse{Content: f.content}, nil
}

func (f *fakeGenerator) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, errors.New("not an embedding model")
}

func newTestEngine(r Retriever, g llm.Provider) (*engine, *fakeAudit) {
	audit := &fakeAudit{}
	return &engine{
		cfg: Config{
			TopK:              5,
			GenerationTimeout: 5 * time.Second,
		},
		genLLM:    g,
		retriever: r,
		facts:     &fakeFacts{},
		audit:     audit,
	}, audit
}

func marketDocs(relevance float64) retrieval.Result {
	return retrieval.Result{
		Documents: []retrieval.Document{
			{
				Content: "Market price for Rice at Dehradun Mandi on 2024-06-01: ₹2200 per unit",
				Meta: store.Metadata{
					Source:   "market_prices",
					RowID:    "17",
					District: "Dehradun",
					Date:     "2024-06-01",
					Type:     "market",
				},
				Relevance: relevance,
			},
		},
		Score: relevance,
	}
}

func TestAskEmptyQuestion(t *testing.T) {
	e, _ := newTestEngine(&fakeRetriever{}, &fakeGenerator{})

	if _, err := e.Ask(context.Background(), Query{Text: "   "}); !errors.Is(err, ErrEmptyQuestion) {
		t.Fatalf("error = %v, want ErrEmptyQuestion", err)
	}
}

func TestAskRestrictedHardBlock(t *testing.T) {
	// Retrieval and generation would both succeed, but the hard block must
	// fire before either is consulted.
	e, audit := newTestEngine(
		&fakeRetriever{result: marketDocs(0.9)},
		&fakeGenerator{content: "Answer: use 5ml.\nConfidence: 0.9"},
	)

	answer, err := e.Ask(context.Background(), Query{Text: "What pesticide dose for aphids on wheat?"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !answer.Escalate {
		t.Errorf("Escalate = false, want true")
	}
	if answer.Confidence != 1.0 {
		t.Errorf("Confidence = %f, want 1.0", answer.Confidence)
	}
	if len(answer.Provenance) != 0 {
		t.Errorf("Provenance = %v, want empty", answer.Provenance)
	}
	if answer.FallbackUsed {
		t.Errorf("FallbackUsed = true, want false")
	}
	if answer.Answer != restrictedAnswer {
		t.Errorf("Answer = %q, want fixed restricted response", answer.Answer)
	}
	if len(audit.logged) != 1 {
		t.Errorf("audit log entries = %d, want 1", len(audit.logged))
	}
}

func TestAskEmptyRetrievalFallsBack(t *testing.T) {
	e, _ := newTestEngine(&fakeRetriever{}, &fakeGenerator{content: "unused"})

	answer, err := e.Ask(context.Background(), Query{Text: "when should I water my wheat"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !answer.FallbackUsed {
		t.Errorf("FallbackUsed = false, want true")
	}
	if len(answer.Provenance) != 0 {
		t.Errorf("Provenance = %v, want empty", answer.Provenance)
	}
}

func TestAskRetrievalErrorFallsBack(t *testing.T) {
	e, _ := newTestEngine(
		&fakeRetriever{err: errors.New("store unreachable")},
		&fakeGenerator{content: "unused"},
	)

	answer, err := e.Ask(context.Background(), Query{Text: "when should I water my wheat"})
	if err != nil {
		t.Fatalf("upstream failure surfaced as error: %v", err)
	}
	if !answer.FallbackUsed {
		t.Errorf("FallbackUsed = false, want true")
	}
}

func TestAskGenerationFailureFallsBack(t *testing.T) {
	e, _ := newTestEngine(
		&fakeRetriever{result: marketDocs(0.9)},
		&fakeGenerator{err: errors.New("timeout")},
	)

	answer, err := e.Ask(context.Background(), Query{Text: "rice price in Dehradun"})
	if err != nil {
		t.Fatalf("generation failure surfaced as error: %v", err)
	}
	if !answer.FallbackUsed {
		t.Errorf("FallbackUsed = false, want true")
	}
}

func TestAskEscalateMarkerFallsBack(t *testing.T) {
	e, _ := newTestEngine(
		&fakeRetriever{result: marketDocs(0.9)},
		&fakeGenerator{content: "ESCALATE: This question requires expert consultation.\nConfidence: 0.9"},
	)

	answer, err := e.Ask(context.Background(), Query{Text: "rice price in Dehradun"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !answer.Escalate {
		t.Errorf("Escalate = false, want true")
	}
	if !answer.FallbackUsed {
		t.Errorf("FallbackUsed = false, want true")
	}
}

func TestAskLowCombinedConfidenceFallsBack(t *testing.T) {
	// retrieval 0.3, generation 0.3 -> combined 0.3 < 0.4.
	e, _ := newTestEngine(
		&fakeRetriever{result: marketDocs(0.3)},
		&fakeGenerator{content: "Answer: maybe.\nConfidence: 0.3"},
	)

	answer, err := e.Ask(context.Background(), Query{Text: "rice price in Dehradun"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !answer.Escalate {
		t.Errorf("Escalate = false, want true")
	}
	if !answer.FallbackUsed {
		t.Errorf("FallbackUsed = false, want true")
	}
}

func TestAskSafetyGateBlocks(t *testing.T) {
	// Actionable query backed only by a non-authoritative source: the
	// conservative-blocked path, distinct from the rules fallback.
	result := retrieval.Result{
		Documents: []retrieval.Document{
			{
				Content:   "Community post about irrigating wheat",
				Meta:      store.Metadata{Source: "community_forum", RowID: "1", Type: "advisory"},
				Relevance: 0.9,
			},
		},
		Score: 0.9,
	}
	e, _ := newTestEngine(
		&fakeRetriever{result: result},
		&fakeGenerator{content: "Answer: irrigate tonight.\nConfidence: 0.9"},
	)

	answer, err := e.Ask(context.Background(), Query{Text: "should I irrigate wheat today"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if answer.SafetyGateReason == "" {
		t.Errorf("SafetyGateReason empty, want populated")
	}
	if !strings.Contains(answer.SafetyGateReason, "no authoritative source") {
		t.Errorf("SafetyGateReason = %q, want authoritative-source failure", answer.SafetyGateReason)
	}
	if !answer.Escalate {
		t.Errorf("Escalate = false, want true")
	}
	if answer.FallbackUsed {
		t.Errorf("FallbackUsed = true, want false (blocked, not fallback)")
	}
	if !answer.Actionable {
		t.Errorf("Actionable = false, want true")
	}
	if len(answer.Provenance) != 0 {
		t.Errorf("Provenance = %v, want empty on blocked path", answer.Provenance)
	}
	if answer.Answer != blockedAnswer {
		t.Errorf("Answer = %q, want fixed conservative response", answer.Answer)
	}
}

func TestAskDirectAnswer(t *testing.T) {
	longContent := strings.Repeat("Market price data. ", 20) // > 200 chars
	result := retrieval.Result{
		Documents: []retrieval.Document{
			marketDocs(0.9).Documents[0],
			{
				Content:   longContent,
				Meta:      store.Metadata{Source: "enam_trades", RowID: "4", Type: "trade"},
				Relevance: 0.9,
			},
			{
				Content:   "Market price for Wheat at Haridwar Mandi on 2024-06-01: ₹2100 per unit",
				Meta:      store.Metadata{Source: "market_prices", RowID: "9", Type: "market"},
				Relevance: 0.9,
			},
			{
				Content:   "Market price for Maize at Rudrapur Mandi on 2024-06-01: ₹1800 per unit",
				Meta:      store.Metadata{Source: "market_prices", RowID: "12", Type: "market"},
				Relevance: 0.9,
			},
		},
		Score: 0.9,
	}
	e, audit := newTestEngine(
		&fakeRetriever{result: result},
		&fakeGenerator{content: "Answer: Rice is trading at ₹2200 at Dehradun Mandi.\nConfidence: 0.8"},
	)

	answer, err := e.Ask(context.Background(), Query{Text: "Rice price in Dehradun", Location: "Dehradun"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if answer.Escalate {
		t.Errorf("Escalate = true, want false")
	}
	if answer.FallbackUsed {
		t.Errorf("FallbackUsed = true, want false")
	}

	want := 0.6*0.9 + 0.4*0.8
	if diff := answer.Confidence - want; diff < -1e-9 || diff > 1e-9 {
		t.Errorf("Confidence = %f, want %f", answer.Confidence, want)
	}

	if len(answer.Provenance) != 3 {
		t.Fatalf("Provenance length = %d, want 3 (capped)", len(answer.Provenance))
	}
	if answer.Provenance[0].URL != "https://agmarknet.gov.in" {
		t.Errorf("Provenance[0].URL = %q, want agmarknet link", answer.Provenance[0].URL)
	}
	if got := answer.Provenance[1].Excerpt; len(got) != 203 || !strings.HasSuffix(got, "...") {
		t.Errorf("long excerpt not truncated to 200+ellipsis: len=%d", len(got))
	}

	if len(audit.logged) != 1 {
		t.Errorf("audit log entries = %d, want 1", len(audit.logged))
	}
}

func TestBuildProvenanceExcerptKeepsRunesIntact(t *testing.T) {
	// The rupee sign lands exactly on the truncation boundary; a byte
	// slice would cut it in half and leave invalid UTF-8 in the excerpt.
	content := strings.Repeat("a", excerptLen-1) + "₹2200 per unit at Dehradun Mandi"
	docs := []retrieval.Document{{
		Content: content,
		Meta:    store.Metadata{Source: "market_prices", RowID: "3"},
	}}

	excerpt := buildProvenance(docs)[0].Excerpt
	if !utf8.ValidString(excerpt) {
		t.Fatalf("excerpt is not valid UTF-8: %q", excerpt)
	}
	if want := strings.Repeat("a", excerptLen-1) + "₹..."; excerpt != want {
		t.Errorf("excerpt = %q, want truncation after the rupee sign", excerpt)
	}
	if got := utf8.RuneCountInString(excerpt); got != excerptLen+3 {
		t.Errorf("excerpt runes = %d, want %d", got, excerptLen+3)
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"negative top_k", Config{TopK: -1}},
		{"negative embedding_dim", Config{EmbeddingDim: -8}},
		{"negative generation_timeout", Config{GenerationTimeout: -time.Second}},
	}

	for _, tt := range tests {
		if _, err := New(tt.cfg); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("%s: error = %v, want ErrInvalidConfig", tt.name, err)
		}
	}
}

func TestFallbackDirect(t *testing.T) {
	soilN, soilP, soilK := 200.0, 5.0, 50.0
	e, _ := newTestEngine(&fakeRetriever{}, &fakeGenerator{})
	e.facts = &fakeFacts{facts: &store.DistrictFacts{
		SoilN: &soilN, SoilP: &soilP, SoilK: &soilK,
	}}

	answer, err := e.Fallback(context.Background(), Query{
		Text:     "which fertilizer does my field need",
		Location: "Dehradun",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !answer.FallbackUsed {
		t.Errorf("FallbackUsed = false, want true")
	}
	for _, nutrient := range []string{"Nitrogen", "Phosphorus", "Potassium"} {
		if !strings.Contains(answer.Answer, nutrient) {
			t.Errorf("answer %q missing deficient nutrient %s", answer.Answer, nutrient)
		}
	}
}

func TestResolveDBPath(t *testing.T) {
	cfg := Config{DBPath: "/tmp/explicit.db"}
	if got := cfg.ResolveDBPath(); got != "/tmp/explicit.db" {
		t.Errorf("explicit path = %q", got)
	}

	cfg = Config{DBName: "custom", StorageDir: "local"}
	if got := cfg.ResolveDBPath(); got != "custom.db" {
		t.Errorf("local path = %q, want custom.db", got)
	}

	cfg = Config{}
	got := cfg.ResolveDBPath()
	if !strings.HasSuffix(got, "agrisage.db") {
		t.Errorf("default path = %q, want .../agrisage.db", got)
	}
}
