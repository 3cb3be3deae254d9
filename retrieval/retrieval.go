// Package retrieval implements hybrid retrieval over the record index:
// vector similarity narrowed by intent and location metadata.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/agrisage/agrisage/llm"
	"github.com/agrisage/agrisage/store"
)

// Index is the slice of the record store the retriever needs.
type Index interface {
	VectorSearch(ctx context.Context, embedding []float32, k int) ([]store.Candidate, error)
}

// Document is one retrieved record with its intent/location relevance.
type Document struct {
	Content   string
	Meta      store.Metadata
	Relevance float64
}

// Result is the outcome of one hybrid retrieval.
// Invariants: Score is in [0, 1], and 0.0 exactly when Documents is empty.
type Result struct {
	Documents []Document
	Score     float64
}

// Engine performs hybrid retrieval: vector search over-fetch, metadata
// filtering, top-k selection with an aggregate relevance score.
type Engine struct {
	index    Index
	embedder llm.Provider
}

// New creates a retrieval engine over the given index and embedder.
func New(index Index, embedder llm.Provider) *Engine {
	return &Engine{index: index, embedder: embedder}
}

const (
	// overfetchFactor widens the vector search window so metadata filtering
	// has candidates to discard; capped at maxOverfetch.
	overfetchFactor = 3
	maxOverfetch    = 15

	// degradedScore is the fixed aggregate when filtering eliminated every
	// candidate and raw vector results are returned unvetted.
	degradedScore = 0.3

	defaultTopK = 5
)

// Retrieve returns the top-k records for the query. Zero index hits yield
// an empty Result with Score 0.0 and no error. When intent/location
// filtering vetoes every candidate, the first k raw vector results are
// returned with Score exactly degradedScore so callers can tell the
// evidence is present but unvetted.
func (e *Engine) Retrieve(ctx context.Context, query string, k int, location string) (Result, error) {
	if k <= 0 {
		k = defaultTopK
	}
	fetch := k * overfetchFactor
	if fetch > maxOverfetch {
		fetch = maxOverfetch
	}

	embeddings, err := e.embedder.Embed(ctx, []string{query})
	if err != nil {
		return Result{}, fmt.Errorf("embedding query: %w", err)
	}
	if len(embeddings) == 0 || len(embeddings[0]) == 0 {
		return Result{}, fmt.Errorf("empty query embedding")
	}

	candidates, err := e.index.VectorSearch(ctx, embeddings[0], fetch)
	if err != nil {
		return Result{}, fmt.Errorf("vector search: %w", err)
	}
	if len(candidates) == 0 {
		slog.Info("retrieval: no candidates", "query", query)
		return Result{}, nil
	}

	filtered := FilterByIntent(candidates, query, location)
	filteredCount := len(filtered)

	var result Result
	if filteredCount == 0 {
		n := k
		if n > len(candidates) {
			n = len(candidates)
		}
		docs := make([]Document, n)
		for i, c := range candidates[:n] {
			docs[i] = Document{Content: c.Content, Meta: c.Meta, Relevance: degradedScore}
		}
		result = Result{Documents: docs, Score: degradedScore}
	} else {
		// Stable sort keeps vector order as the tie-break within equal
		// relevance.
		sort.SliceStable(filtered, func(i, j int) bool {
			return filtered[i].Relevance > filtered[j].Relevance
		})
		if len(filtered) > k {
			filtered = filtered[:k]
		}
		sum := 0.0
		for _, d := range filtered {
			sum += d.Relevance
		}
		// Boosted relevances can exceed 1.0; the aggregate stays in [0, 1].
		score := sum / float64(len(filtered))
		if score > 1.0 {
			score = 1.0
		}
		result = Result{Documents: filtered, Score: score}
	}

	slog.Info("retrieval: hybrid search complete",
		"query", query,
		"candidates", len(candidates),
		"filtered", filteredCount,
		"returned", len(result.Documents),
		"score", result.Score,
	)
	return result, nil
}
