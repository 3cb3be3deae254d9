package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/agrisage/agrisage/llm"
	"github.com/agrisage/agrisage/store"
)

type fakeIndex struct {
	candidates []store.Candidate
	err        error
	lastK      int
}

func (f *fakeIndex) VectorSearch(ctx context.Context, embedding []float32, k int) ([]store.Candidate, error) {
	f.lastK = k
	if f.err != nil {
		return nil, f.err
	}
	if len(f.candidates) > k {
		return f.candidates[:k], nil
	}
	return f.candidates, nil
}

type fakeEmbedder struct {
	err error
}

func (f *fakeEmbedder) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	return nil, errors.New("not a chat model")
}

func (f *fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{0.1, 0.2, 0.3}
	}
	return out, nil
}

func TestRetrieveZeroHits(t *testing.T) {
	e := New(&fakeIndex{}, &fakeEmbedder{})

	result, err := e.Retrieve(context.Background(), "rice price", 5, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Documents) != 0 {
		t.Errorf("documents = %d, want 0", len(result.Documents))
	}
	if result.Score != 0.0 {
		t.Errorf("score = %f, want 0.0", result.Score)
	}
}

func TestRetrieveEmbedError(t *testing.T) {
	e := New(&fakeIndex{}, &fakeEmbedder{err: errors.New("service down")})

	if _, err := e.Retrieve(context.Background(), "rice price", 5, ""); err == nil {
		t.Fatal("expected error when embedding fails")
	}
}

func TestRetrieveSearchError(t *testing.T) {
	e := New(&fakeIndex{err: errors.New("db locked")}, &fakeEmbedder{})

	if _, err := e.Retrieve(context.Background(), "rice price", 5, ""); err == nil {
		t.Fatal("expected error when vector search fails")
	}
}

func TestRetrieveOverfetch(t *testing.T) {
	tests := []struct {
		k         int
		wantFetch int
	}{
		{2, 6},
		{5, 15},
		{10, 15}, // capped
		{0, 15},  // default k applied first
	}

	for _, tt := range tests {
		idx := &fakeIndex{}
		e := New(idx, &fakeEmbedder{})
		if _, err := e.Retrieve(context.Background(), "rice price", tt.k, ""); err != nil {
			t.Fatalf("k=%d: unexpected error: %v", tt.k, err)
		}
		if idx.lastK != tt.wantFetch {
			t.Errorf("k=%d: fetch = %d, want %d", tt.k, idx.lastK, tt.wantFetch)
		}
	}
}

func TestRetrieveDegradedWhenAllFiltered(t *testing.T) {
	// A pest question against weather-only records: filtering drops
	// everything, so raw vector results come back at the fixed score.
	idx := &fakeIndex{candidates: []store.Candidate{
		candidate("weather_forecast", "weather", "Dehradun"),
		candidate("weather_forecast", "weather", "Haridwar"),
		candidate("weather_forecast", "weather", "Nainital"),
	}}
	e := New(idx, &fakeEmbedder{})

	result, err := e.Retrieve(context.Background(), "my crop has a fungus", 2, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Documents) != 2 {
		t.Fatalf("documents = %d, want 2 (first k raw)", len(result.Documents))
	}
	if result.Score != 0.3 {
		t.Errorf("score = %f, want exactly 0.3", result.Score)
	}
	for i, d := range result.Documents {
		if d.Relevance != 0.3 {
			t.Errorf("doc %d relevance = %f, want 0.3", i, d.Relevance)
		}
	}
}

func TestRetrieveTopKMeanScore(t *testing.T) {
	idx := &fakeIndex{candidates: []store.Candidate{
		candidate("market_prices", "market", "Haridwar"),
		candidate("market_prices", "market", "Dehradun"),
		candidate("weather_forecast", "weather", "Dehradun"),
		candidate("enam_trades", "trade", "Dehradun"),
	}}
	e := New(idx, &fakeEmbedder{})

	result, err := e.Retrieve(context.Background(), "rice price", 2, "Dehradun")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Documents) != 2 {
		t.Fatalf("documents = %d, want 2", len(result.Documents))
	}

	// Exact-district type matches (market 1.2, trade 1.2) outrank the
	// Haridwar market record (0.9) and the Dehradun weather record (0.8);
	// their mean of 1.2 is capped at 1.0.
	want := 1.0
	if diff := result.Score - want; diff < -1e-9 || diff > 1e-9 {
		t.Errorf("score = %f, want %f", result.Score, want)
	}
	for i, d := range result.Documents {
		if d.Meta.District != "Dehradun" {
			t.Errorf("doc %d district = %q, want Dehradun", i, d.Meta.District)
		}
	}
}

func TestRetrieveMeanScoreBelowCap(t *testing.T) {
	// No location signal: type-matched candidates score 0.9 and the mean
	// passes through unclamped.
	idx := &fakeIndex{candidates: []store.Candidate{
		candidate("market_prices", "market", "Haridwar"),
		candidate("market_prices", "market", "Dehradun"),
		candidate("weather_forecast", "weather", "Dehradun"),
		candidate("enam_trades", "trade", "Dehradun"),
	}}
	e := New(idx, &fakeEmbedder{})

	result, err := e.Retrieve(context.Background(), "rice price", 2, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Documents) != 2 {
		t.Fatalf("documents = %d, want 2", len(result.Documents))
	}
	want := 0.9
	if diff := result.Score - want; diff < -1e-9 || diff > 1e-9 {
		t.Errorf("score = %f, want %f", result.Score, want)
	}
}
