package retrieval

import (
	"strings"

	"github.com/agrisage/agrisage/intent"
	"github.com/agrisage/agrisage/store"
)

// typesByIntent maps a primary intent to the record types considered
// relevant evidence for it.
var typesByIntent = map[intent.Intent][]string{
	intent.Irrigation: {"weather", "soil"},
	intent.Weather:    {"weather"},
	intent.Soil:       {"soil"},
	intent.Market:     {"market", "trade"},
	intent.Fertilizer: {"soil"},
	intent.Pest:       {"advisory"},
}

// Relevance scoring: base credit for surviving vector search, plus boosts
// for record-type and district matches. Candidates below keepThreshold are
// dropped. These are heuristic policy weights, not calibrated probabilities.
const (
	baseRelevance        = 0.5
	typeMatchBoost       = 0.4
	districtExactBoost   = 0.3
	districtPartialBoost = 0.2
	keepThreshold        = 0.6
)

// FilterByIntent re-scores candidates using the query's primary intent and
// the caller's location, preserving input order. When the classifier yields
// no intent signal, every candidate passes through with relevance 1.0;
// skipping the filter is a valid outcome, not a failure.
func FilterByIntent(candidates []store.Candidate, query, location string) []Document {
	scores := intent.Classify(query)
	primary, ok := intent.Primary(scores)
	if !ok {
		docs := make([]Document, len(candidates))
		for i, c := range candidates {
			docs[i] = Document{Content: c.Content, Meta: c.Meta, Relevance: 1.0}
		}
		return docs
	}

	relevant := make(map[string]bool)
	for _, t := range typesByIntent[primary] {
		relevant[t] = true
	}

	loc := strings.ToLower(strings.TrimSpace(location))

	var docs []Document
	for _, c := range candidates {
		rel := baseRelevance
		if relevant[c.Meta.Type] {
			rel += typeMatchBoost
		}
		if loc != "" && c.Meta.District != "" {
			district := strings.ToLower(c.Meta.District)
			if district == loc {
				rel += districtExactBoost
			} else if strings.Contains(district, loc) {
				rel += districtPartialBoost
			}
		}
		if rel >= keepThreshold {
			docs = append(docs, Document{Content: c.Content, Meta: c.Meta, Relevance: rel})
		}
	}
	return docs
}
